package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/pkg/util"
)

// SegmentSource is one clip feeding a program segment. The clip is read
// from SourceIn for ClipDuration so its fades land where they do on the
// timeline; Offset and the segment duration then select the covered part.
type SegmentSource struct {
	Path         string
	Kind         media.Kind
	SourceIn     time.Duration
	ClipDuration time.Duration
	Offset       time.Duration
	FadeIn       time.Duration
	FadeOut      time.Duration
}

// Segment is a stretch of the program with no clip boundary inside it
type Segment struct {
	Index    int
	Duration time.Duration
	// Video is nil for black
	Video *SegmentSource
	// Audio sources are mixed; none renders silence
	Audio  []SegmentSource
	Output string
}

// RenderSegment encodes one program segment
func (e *Executor) RenderSegment(ctx context.Context, seg Segment, enc EncodeOptions, progressFunc ProgressFunc) error {
	if seg.Duration <= 0 {
		return fmt.Errorf("segment %d: invalid duration %v", seg.Index, seg.Duration)
	}
	if seg.Output == "" {
		return fmt.Errorf("segment %d: output path is required", seg.Index)
	}

	e.logger.Debug().
		Int("segment", seg.Index).
		Dur("duration", seg.Duration).
		Bool("black", seg.Video == nil).
		Int("audio_sources", len(seg.Audio)).
		Str("output", seg.Output).
		Msg("rendering segment")

	opts := RunOptions{
		Args:            segmentArgs(seg, enc),
		ProgressHandler: progressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Int("segment", seg.Index).Msg("segment render")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("segment %d render failed: %w", seg.Index, err)
	}
	return nil
}

func segmentArgs(seg Segment, enc EncodeOptions) []string {
	enc = enc.withDefaults()
	dur := util.FormatSeconds(seg.Duration)

	var args, graph []string
	input := 0

	if v := seg.Video; v != nil {
		args = append(args, sourceInput(*v)...)
		chain := NewFilterBuilder().
			FadeIn(0, v.FadeIn).
			FadeOut(v.ClipDuration-v.FadeOut, v.FadeOut).
			Trim(v.Offset, seg.Duration).
			Fit(enc.Width, enc.Height).
			FPS(enc.FPS).
			PixelFormat("yuv420p")
		graph = append(graph, chain.Chain(fmt.Sprintf("[%d:v]", input), "[v]"))
	} else {
		args = append(args, "-f", "lavfi", "-i",
			fmt.Sprintf("color=c=black:s=%dx%d:r=%s:d=%s", enc.Width, enc.Height, formatRate(enc.FPS), dur))
		graph = append(graph, NewFilterBuilder().PixelFormat("yuv420p").Chain(fmt.Sprintf("[%d:v]", input), "[v]"))
	}
	input++

	var labels []string
	for i, a := range seg.Audio {
		args = append(args, sourceInput(a)...)
		label := fmt.Sprintf("[a%d]", i)
		chain := NewFilterBuilder().
			AudioFadeIn(0, a.FadeIn).
			AudioFadeOut(a.ClipDuration-a.FadeOut, a.FadeOut).
			AudioTrim(a.Offset, seg.Duration).
			AudioFormat(enc.SampleRate, enc.Channels).
			AudioPad(seg.Duration)
		graph = append(graph, chain.Chain(fmt.Sprintf("[%d:a]", input), label))
		labels = append(labels, label)
		input++
	}

	switch len(labels) {
	case 0:
		args = append(args, "-f", "lavfi", "-i",
			fmt.Sprintf("anullsrc=r=%d:cl=%s", enc.SampleRate, channelLayout(enc.Channels)))
		graph = append(graph, NewFilterBuilder().AudioFormat(enc.SampleRate, enc.Channels).Chain(fmt.Sprintf("[%d:a]", input), "[a]"))
	case 1:
		graph = append(graph, labels[0]+"anull[a]")
	default:
		graph = append(graph, fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0[a]", strings.Join(labels, ""), len(labels)))
	}

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", strconv.Itoa(enc.CRF),
		"-c:a", enc.AudioCodec,
		"-b:a", enc.AudioBitrate,
		"-ar", strconv.Itoa(enc.SampleRate),
		"-ac", strconv.Itoa(enc.Channels),
		"-t", dur,
		seg.Output,
	)
	return args
}

func sourceInput(s SegmentSource) []string {
	if s.Kind == media.KindImage {
		return []string{"-loop", "1", "-t", util.FormatSeconds(s.ClipDuration), "-i", s.Path}
	}
	return []string{
		"-ss", util.FormatSeconds(s.SourceIn),
		"-t", util.FormatSeconds(s.ClipDuration),
		"-i", s.Path,
	}
}

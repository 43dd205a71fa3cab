package ffmpeg

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/kikiluvv/splice/internal/playback"
	"github.com/kikiluvv/splice/internal/timeline"
	"github.com/kikiluvv/splice/pkg/util"
)

// DecodeAudio extracts interleaved float samples for a range of an asset's
// native timeline. Output shorter than the range is padded with silence.
// It implements playback.Decoder.
func (e *Executor) DecodeAudio(ctx context.Context, req playback.AudioRequest) ([]float32, error) {
	if req.Asset == nil {
		return nil, fmt.Errorf("decode audio: no asset")
	}
	if req.SampleRate <= 0 || req.Channels <= 0 {
		return nil, fmt.Errorf("decode audio: invalid format %d Hz x %d", req.SampleRate, req.Channels)
	}
	if req.Range.Empty() {
		return nil, nil
	}

	data, err := e.Capture(ctx, audioArgs(req.Asset.Path, req.Range, req.SampleRate, req.Channels))
	if err != nil {
		return nil, fmt.Errorf("decode audio %s %v: %w", req.Asset.Name, req.Range, err)
	}

	frames := util.SamplesFor(req.Range.Duration(), req.SampleRate)
	return samplesFromRaw(data, frames*req.Channels), nil
}

func audioArgs(path string, r timeline.Range, sampleRate, channels int) []string {
	return []string{
		"-ss", util.FormatSeconds(r.Start),
		"-t", util.FormatSeconds(r.Duration()),
		"-i", path,
		"-vn",
		"-acodec", "pcm_f32le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-f", "f32le",
		"pipe:1",
	}
}

// samplesFromRaw decodes little-endian float32 PCM into exactly n samples
func samplesFromRaw(data []byte, n int) []float32 {
	out := make([]float32, n)
	count := min(len(data)/4, n)
	for i := 0; i < count; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

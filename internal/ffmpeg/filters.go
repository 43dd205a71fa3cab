package ffmpeg

import (
	"fmt"
	"strings"
	"time"

	"github.com/kikiluvv/splice/pkg/util"
)

// FilterBuilder helps construct complex ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		// Return self without adding filter - allows chaining to continue
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// Fit scales into width x height keeping the aspect ratio and pads the rest
// with black
func (fb *FilterBuilder) Fit(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", width, height),
		"setsar=1",
	)
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fps=%s", formatRate(fps)))
	return fb
}

// PixelFormat converts to a pixel format
func (fb *FilterBuilder) PixelFormat(pix string) *FilterBuilder {
	fb.filters = append(fb.filters, "format="+pix)
	return fb
}

// FadeIn ramps video up from black over d starting at st
func (fb *FilterBuilder) FadeIn(st, d time.Duration) *FilterBuilder {
	if d <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fade=t=in:st=%s:d=%s", util.FormatSeconds(st), util.FormatSeconds(d)))
	return fb
}

// FadeOut ramps video down to black over d starting at st
func (fb *FilterBuilder) FadeOut(st, d time.Duration) *FilterBuilder {
	if d <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fade=t=out:st=%s:d=%s", util.FormatSeconds(st), util.FormatSeconds(d)))
	return fb
}

// AudioFadeIn ramps audio up from silence
func (fb *FilterBuilder) AudioFadeIn(st, d time.Duration) *FilterBuilder {
	if d <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("afade=t=in:st=%s:d=%s", util.FormatSeconds(st), util.FormatSeconds(d)))
	return fb
}

// AudioFadeOut ramps audio down to silence
func (fb *FilterBuilder) AudioFadeOut(st, d time.Duration) *FilterBuilder {
	if d <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("afade=t=out:st=%s:d=%s", util.FormatSeconds(st), util.FormatSeconds(d)))
	return fb
}

// Trim keeps d of video starting at start and resets timestamps
func (fb *FilterBuilder) Trim(start, d time.Duration) *FilterBuilder {
	fb.filters = append(fb.filters,
		fmt.Sprintf("trim=start=%s:duration=%s", util.FormatSeconds(start), util.FormatSeconds(d)),
		"setpts=PTS-STARTPTS",
	)
	return fb
}

// AudioTrim keeps d of audio starting at start and resets timestamps
func (fb *FilterBuilder) AudioTrim(start, d time.Duration) *FilterBuilder {
	fb.filters = append(fb.filters,
		fmt.Sprintf("atrim=start=%s:duration=%s", util.FormatSeconds(start), util.FormatSeconds(d)),
		"asetpts=PTS-STARTPTS",
	)
	return fb
}

// AudioFormat resamples and remixes to the output layout
func (fb *FilterBuilder) AudioFormat(sampleRate, channels int) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("aformat=sample_fmts=fltp:sample_rates=%d:channel_layouts=%s", sampleRate, channelLayout(channels)))
	return fb
}

// AudioPad pads audio with silence up to d
func (fb *FilterBuilder) AudioPad(d time.Duration) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("apad=whole_dur=%s", util.FormatSeconds(d)))
	return fb
}

// AudioVolume adjusts audio volume
func (fb *FilterBuilder) AudioVolume(volumeDB float64) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("volume=%fdB", volumeDB))
	return fb
}

// Loudnorm normalizes integrated loudness to target LUFS
func (fb *FilterBuilder) Loudnorm(target float64) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("loudnorm=I=%.1f:TP=-1.5:LRA=11", target))
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

// BuildAll returns all filters as a slice
func (fb *FilterBuilder) BuildAll() []string {
	return fb.filters
}

// Chain wraps the filters between input and output pad labels for use in a
// filter graph. An empty chain passes video through.
func (fb *FilterBuilder) Chain(in, out string) string {
	body := fb.Build()
	if body == "" {
		body = "null"
	}
	return in + body + out
}

func channelLayout(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	}
	return fmt.Sprintf("%dc", channels)
}

func formatRate(fps float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", fps), "0"), ".")
}

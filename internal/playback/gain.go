package playback

import (
	"time"

	"github.com/kikiluvv/splice/internal/timeline"
)

// Gain returns the fade gain of c at timeline time t. It is 0 outside the
// clip, rises linearly from 0 to 1 across FadeIn and falls from 1 to 0
// across FadeOut. Where the two windows meet the lower value wins.
func Gain(c timeline.Clip, t time.Duration) float64 {
	if t < c.Start || t >= c.End() {
		return 0
	}
	g := 1.0
	if c.FadeIn > 0 {
		if rel := t - c.Start; rel < c.FadeIn {
			g = float64(rel) / float64(c.FadeIn)
		}
	}
	if c.FadeOut > 0 {
		if rem := c.End() - t; rem < c.FadeOut {
			g = min(g, float64(rem)/float64(c.FadeOut))
		}
	}
	return g
}

// sampleTime is the offset of sample frame i at rate
func sampleTime(i, rate int) time.Duration {
	return time.Duration(int64(i) * int64(time.Second) / int64(rate))
}

// applyRamp scales interleaved samples by the clip gain of each sample frame.
// Frame k of buf sits at origin + sampleTime(first+k).
func applyRamp(buf []float32, channels int, c timeline.Clip, origin time.Duration, first, rate int) {
	if channels <= 0 || rate <= 0 {
		return
	}
	frames := len(buf) / channels
	for k := 0; k < frames; k++ {
		g := float32(Gain(c, origin+sampleTime(first+k, rate)))
		if g == 1 {
			continue
		}
		for ch := 0; ch < channels; ch++ {
			buf[k*channels+ch] *= g
		}
	}
}

package playback

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

func newCanvas(width, height int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return canvas
}

// drawLayer blends frame over dst at the given gain, scaling it to the
// canvas size first. A nil frame is an opaque black layer.
func drawLayer(dst *image.RGBA, frame image.Image, gain float64) {
	if gain <= 0 {
		return
	}
	bounds := dst.Bounds()
	if frame == nil {
		frame = image.NewUniform(color.Black)
	} else if fb := frame.Bounds(); fb.Dx() != bounds.Dx() || fb.Dy() != bounds.Dy() {
		frame = resize.Resize(uint(bounds.Dx()), uint(bounds.Dy()), frame, resize.Bilinear)
	}

	if gain >= 1 {
		draw.Draw(dst, bounds, frame, frame.Bounds().Min, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(gain * 255))})
	draw.DrawMask(dst, bounds, frame, frame.Bounds().Min, mask, image.Point{}, draw.Over)
}

// mixInto sums src into dst sample by sample
func mixInto(dst, src []float32) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] += src[i]
	}
}

func clampAudio(buf []float32) {
	for i, v := range buf {
		switch {
		case v > 1:
			buf[i] = 1
		case v < -1:
			buf[i] = -1
		}
	}
}

package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/playback"
	"github.com/kikiluvv/splice/pkg/util"
)

// DecodeFrame extracts the picture of an asset at a source time, fitted to
// the requested size. It implements playback.Decoder.
func (e *Executor) DecodeFrame(ctx context.Context, req playback.FrameRequest) (image.Image, error) {
	if req.Asset == nil {
		return nil, fmt.Errorf("decode frame: no asset")
	}
	if req.Width <= 0 || req.Height <= 0 {
		return nil, fmt.Errorf("decode frame: invalid size %dx%d", req.Width, req.Height)
	}

	data, err := e.Capture(ctx, frameArgs(req.Asset.Path, req.Asset.Kind, req.At, req.Width, req.Height))
	if err != nil {
		return nil, fmt.Errorf("decode frame %s@%s: %w", req.Asset.Name, util.FormatDuration(req.At), err)
	}

	return rgbaFromRaw(data, req.Width, req.Height)
}

func frameArgs(path string, kind media.Kind, at time.Duration, width, height int) []string {
	var args []string
	if kind != media.KindImage {
		args = append(args, "-ss", util.FormatSeconds(at))
	}
	args = append(args,
		"-i", path,
		"-an",
		"-frames:v", "1",
		"-vf", NewFilterBuilder().Fit(width, height).PixelFormat("rgba").Build(),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	return args
}

func rgbaFromRaw(data []byte, width, height int) (*image.RGBA, error) {
	want := width * height * 4
	if len(data) < want {
		return nil, fmt.Errorf("short frame: got %d bytes, want %d", len(data), want)
	}
	return &image.RGBA{
		Pix:    data[:want],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

package pipeline

import (
	"context"

	"github.com/kikiluvv/splice/internal/ffmpeg"
)

// Encoder renders and joins program segments
type Encoder interface {
	RenderSegment(ctx context.Context, seg ffmpeg.Segment, enc ffmpeg.EncodeOptions, progressFunc ffmpeg.ProgressFunc) error
	Concat(ctx context.Context, opts ffmpeg.ConcatOptions) error
}

// RenderOptions configures one export. Zero size, rate or quality values
// fall back to the project settings and the pipeline config.
type RenderOptions struct {
	OutputPath string
	Quality    int // CRF value
	Preset     string
	Width      int
	Height     int
	FPS        float64
	// Normalize runs loudness normalisation over the joined program audio
	Normalize bool
	// Progress is called after each segment finishes
	Progress func(done, total int)
}

// Config holds pipeline-specific configuration
type Config struct {
	Workers int
	TempDir string
	// KeepTemp leaves rendered segments on disk for inspection
	KeepTemp bool
	// Encode supplies codec defaults; sizes come from the project
	Encode ffmpeg.EncodeOptions
	// LoudnessTarget is the integrated loudness in LUFS used by Normalize
	LoudnessTarget float64
}

// DefaultConfig returns four workers rendering into the system temp dir
func DefaultConfig() *Config {
	return &Config{
		Workers:        4,
		LoudnessTarget: -16,
	}
}

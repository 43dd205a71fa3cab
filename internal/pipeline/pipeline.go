// Package pipeline exports a project timeline to a single media file.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kikiluvv/splice/internal/ffmpeg"
	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/project"
	"github.com/kikiluvv/splice/pkg/util"
)

// Pipeline renders the composited program of a project
type Pipeline struct {
	logger zerolog.Logger
	config *Config
	ffmpeg Encoder
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, cfg *Config, enc Encoder) (*Pipeline, error) {
	if enc == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &Pipeline{
		logger: logging.WithComponent(logger, "pipeline"),
		config: cfg,
		ffmpeg: enc,
	}, nil
}

// Render executes the rendering pipeline for a project: plan segments,
// render them concurrently, then join them into opts.OutputPath.
func (p *Pipeline) Render(ctx context.Context, proj *project.Project, opts RenderOptions) (string, error) {
	// Validate project
	if proj == nil || proj.Timeline == nil || proj.Assets == nil {
		return "", fmt.Errorf("project cannot be nil")
	}
	if opts.OutputPath == "" {
		return "", fmt.Errorf("output path cannot be empty")
	}

	segs, err := Plan(proj.Timeline, proj.Assets)
	if err != nil {
		return "", fmt.Errorf("plan %s: %w", proj.Name, err)
	}
	enc := p.encodeOptions(proj.Settings, opts)

	p.logger.Info().
		Str("project", proj.Name).
		Str("output", opts.OutputPath).
		Int("segments", len(segs)).
		Dur("duration", proj.Timeline.TotalDuration()).
		Msg("starting render pipeline")
	started := time.Now()

	workDir, err := os.MkdirTemp(p.config.TempDir, "splice-render-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	outputs := make([]string, len(segs))
	for i := range segs {
		segs[i].Output = filepath.Join(workDir, fmt.Sprintf("segment_%04d.mp4", i))
		outputs[i] = segs[i].Output
	}
	if !p.config.KeepTemp {
		defer func() {
			util.CleanupFiles(outputs...)
			_ = os.Remove(workDir)
		}()
	}

	// Stage 1: render segments
	// progress callbacks are serialised so callers need no locking
	var (
		progressMu sync.Mutex
		done       int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for _, seg := range segs {
		g.Go(func() error {
			if err := p.ffmpeg.RenderSegment(gctx, seg, enc, nil); err != nil {
				return err
			}
			progressMu.Lock()
			defer progressMu.Unlock()
			done++
			p.logger.Debug().
				Int("segment", seg.Index).
				Int("done", done).
				Int("total", len(segs)).
				Msg("segment rendered")
			if opts.Progress != nil {
				opts.Progress(done, len(segs))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("render segments: %w", err)
	}

	// Stage 2: join
	concat := ffmpeg.ConcatOptions{
		Inputs:  outputs,
		Output:  opts.OutputPath,
		Encode:  enc,
		TempDir: workDir,
	}
	if opts.Normalize {
		concat.AudioFilter = ffmpeg.NewFilterBuilder().Loudnorm(p.config.LoudnessTarget).Build()
	}
	if err := util.EnsureDir(filepath.Dir(opts.OutputPath)); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := p.ffmpeg.Concat(ctx, concat); err != nil {
		return "", fmt.Errorf("join segments: %w", err)
	}

	p.logger.Info().
		Str("output", opts.OutputPath).
		Dur("elapsed", time.Since(started)).
		Msg("render pipeline complete")

	return opts.OutputPath, nil
}

// encodeOptions fixes one output format for every segment
func (p *Pipeline) encodeOptions(settings project.Settings, opts RenderOptions) ffmpeg.EncodeOptions {
	enc := p.config.Encode
	enc.Width, enc.Height = settings.Width, settings.Height
	enc.FPS = settings.FrameRate
	enc.SampleRate = settings.SampleRate
	enc.Channels = settings.Channels

	if opts.Width > 0 && opts.Height > 0 {
		enc.Width, enc.Height = opts.Width, opts.Height
	}
	if opts.FPS > 0 {
		enc.FPS = opts.FPS
	}
	if opts.Quality > 0 {
		enc.CRF = opts.Quality
	}
	if opts.Preset != "" {
		enc.Preset = opts.Preset
	}
	return enc
}

package main

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/kikiluvv/splice/internal/config"
	"github.com/kikiluvv/splice/internal/edit"
	"github.com/kikiluvv/splice/internal/ffmpeg"
	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/playback"
	"github.com/kikiluvv/splice/internal/probecache"
	"github.com/kikiluvv/splice/internal/project"
	"github.com/kikiluvv/splice/internal/session"
)

// workspace wires the session to ffmpeg and the probe cache for one command
type workspace struct {
	cfg     *config.Config
	ffmpeg  *ffmpeg.Executor
	cache   *probecache.Cache
	session *session.Session
}

// offlineDecoder stands in when ffmpeg is missing; playback shows black
type offlineDecoder struct {
	err error
}

func (d offlineDecoder) DecodeFrame(ctx context.Context, req playback.FrameRequest) (image.Image, error) {
	return nil, d.err
}

func (d offlineDecoder) DecodeAudio(ctx context.Context, req playback.AudioRequest) ([]float32, error) {
	return nil, d.err
}

func openWorkspace(ctx context.Context) *workspace {
	cfg := config.FromContext(ctx)
	w := &workspace{cfg: cfg}

	var (
		prober  media.Prober
		decoder playback.Decoder
	)
	exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
		FFmpegPath:    cfg.FFmpeg.BinaryPath,
		FFprobePath:   cfg.FFmpeg.ProbePath,
		Threads:       cfg.FFmpeg.Threads,
		StillDuration: cfg.Project.StillDuration,
	})
	if err != nil {
		log.Warn().Err(err).Msg("ffmpeg unavailable, import and playback disabled")
		decoder = offlineDecoder{err: err}
	} else {
		w.ffmpeg = exec
		prober, decoder = exec, exec
	}

	if prober != nil && cfg.Cache.Enabled {
		cache, err := probecache.Open(log.Logger, cfg.Cache.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Cache.Path).Msg("probe cache disabled")
		} else {
			w.cache = cache
			prober = cache.Wrap(prober)
		}
	}

	w.session = session.New(log.Logger, project.NewStore(log.Logger), session.Options{
		Settings: project.Settings{
			FrameRate:  cfg.Playback.FrameRate,
			SampleRate: cfg.Playback.SampleRate,
			Channels:   cfg.Playback.Channels,
			Width:      cfg.Playback.Width,
			Height:     cfg.Playback.Height,
		},
		DecodeTimeout: cfg.Playback.DecodeTimeout,
		Prober:        prober,
		Decoder:       decoder,
	})
	return w
}

// openProjectWorkspace opens a workspace with the --project file loaded
func openProjectWorkspace(ctx context.Context) (*workspace, error) {
	w := openWorkspace(ctx)
	if err := w.session.Load(projectPath); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *workspace) Close() {
	w.session.Close()
	if w.cache != nil {
		if err := w.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close probe cache")
		}
	}
}

func (w *workspace) save() error {
	return w.session.Save(projectPath)
}

// importPath imports path, resolving it to an absolute path first so the
// project stays valid from any working directory
func (w *workspace) importPath(ctx context.Context, path string) (*media.Asset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return w.session.Import(ctx, abs)
}

// resolveAsset accepts an asset id or a media path, importing the latter
func (w *workspace) resolveAsset(ctx context.Context, ref string) (*media.Asset, error) {
	if a, ok := w.session.Get(ref); ok {
		return a, nil
	}
	st, err := w.session.ProjectState()
	if err != nil {
		return nil, err
	}
	abs, _ := filepath.Abs(ref)
	for _, a := range st.Assets {
		if a.Path == abs {
			return a, nil
		}
	}
	return w.importPath(ctx, ref)
}

// applyAndSave runs one edit against the project file
func applyAndSave(ctx context.Context, tool edit.ToolMode, op edit.Command) error {
	w, err := openProjectWorkspace(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	w.session.SetToolMode(tool)
	if err := w.session.ApplyOperation(op); err != nil {
		return fmt.Errorf("%s rejected: %w", op.Name(), err)
	}
	if err := w.save(); err != nil {
		return err
	}

	log.Info().Str("op", op.Name()).Str("project", projectPath).Msg("edit applied")
	return nil
}

package main

import (
	"fmt"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/splice/internal/ffmpeg"
	"github.com/kikiluvv/splice/internal/pipeline"
	"github.com/kikiluvv/splice/pkg/util"
)

var (
	renderCRF       int
	renderPreset    string
	renderWidth     int
	renderHeight    int
	renderFPS       float64
	renderWorkers   int
	renderNormalize bool
	renderKeepTemp  bool
)

var renderCmd = &cobra.Command{
	Use:   "render [output file]",
	Short: "Render the composited program to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := openProjectWorkspace(ctx)
		if err != nil {
			return err
		}
		defer w.Close()
		if w.ffmpeg == nil {
			return fmt.Errorf("render needs ffmpeg")
		}

		proj, err := w.session.Snapshot()
		if err != nil {
			return err
		}

		workers := renderWorkers
		if workers <= 0 {
			workers = w.cfg.Concurrency
		}
		pipe, err := pipeline.New(log.Logger, &pipeline.Config{
			Workers:  workers,
			TempDir:  w.cfg.TempDir,
			KeepTemp: renderKeepTemp,
			Encode: ffmpeg.EncodeOptions{
				VideoCodec:   w.cfg.FFmpeg.VideoCodec,
				AudioCodec:   w.cfg.FFmpeg.AudioCodec,
				AudioBitrate: w.cfg.FFmpeg.AudioBitrate,
				CRF:          w.cfg.FFmpeg.CRF,
				Preset:       w.cfg.FFmpeg.Preset,
			},
			LoudnessTarget: -16,
		}, w.ffmpeg)
		if err != nil {
			return err
		}

		started := time.Now()
		out, err := pipe.Render(ctx, proj, pipeline.RenderOptions{
			OutputPath: args[0],
			Quality:    renderCRF,
			Preset:     renderPreset,
			Width:      renderWidth,
			Height:     renderHeight,
			FPS:        renderFPS,
			Normalize:  renderNormalize,
			Progress: func(done, total int) {
				log.Info().Msgf("segments %d/%d", done, total)
			},
		})
		if err != nil {
			return err
		}

		log.Info().
			Str("output", out).
			Str("length", util.FormatDuration(proj.Timeline.TotalDuration())).
			Dur("elapsed", time.Since(started)).
			Msg("render complete")
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview [time] [output.png]",
	Short: "Composite the program at time and write the frame as PNG",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := util.ParseTimestamp(args[0])
		if err != nil {
			return err
		}

		w, err := openProjectWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer w.Close()

		comp, err := w.session.CurrentComposite(cmd.Context(), at)
		if err != nil {
			return err
		}

		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		if err := png.Encode(f, comp.Video); err != nil {
			f.Close()
			return fmt.Errorf("encode png: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}

		var peak float64
		for _, v := range comp.Audio {
			peak = math.Max(peak, math.Abs(float64(v)))
		}
		ev := log.Info().
			Str("at", util.FormatDuration(at)).
			Str("output", args[1]).
			Float64("audio_peak", peak)
		for _, tr := range comp.Tracks {
			if tr.Failed {
				ev = ev.Str("failed_track", tr.TrackID)
			}
		}
		ev.Msg("preview written")
		return nil
	},
}

func init() {
	renderCmd.Flags().IntVar(&renderCRF, "crf", 0, "quality (default from config)")
	renderCmd.Flags().StringVar(&renderPreset, "preset", "", "encoder preset (default from config)")
	renderCmd.Flags().IntVar(&renderWidth, "width", 0, "output width (default project width)")
	renderCmd.Flags().IntVar(&renderHeight, "height", 0, "output height (default project height)")
	renderCmd.Flags().Float64Var(&renderFPS, "fps", 0, "output frame rate (default project rate)")
	renderCmd.Flags().IntVar(&renderWorkers, "workers", 0, "concurrent segment renders (default config concurrency)")
	renderCmd.Flags().BoolVar(&renderNormalize, "normalize", false, "normalise program loudness")
	renderCmd.Flags().BoolVar(&renderKeepTemp, "keep-temp", false, "keep rendered segments")
}

package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ConcatOptions defines concatenation parameters
type ConcatOptions struct {
	Inputs   []string
	Output   string
	ReEncode bool
	// AudioFilter is applied to the joined audio; it forces re-encoding
	AudioFilter  string
	Encode       EncodeOptions
	TempDir      string
	ProgressFunc ProgressFunc
}

// Concat joins rendered segments into one file
func (e *Executor) Concat(ctx context.Context, opts ConcatOptions) error {
	if len(opts.Inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Str("output", opts.Output).
		Msg("concatenating segments")

	// Create temporary concat file list
	concatFile, err := createConcatFile(opts.TempDir, opts.Inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(concatFile)

	runOpts := RunOptions{
		Args:            concatArgs(concatFile, opts),
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("concatenating")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("concat failed: %w", err)
	}
	return nil
}

func concatArgs(listFile string, opts ConcatOptions) []string {
	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
	}

	switch {
	case opts.ReEncode:
		enc := opts.Encode.withDefaults()
		args = append(args,
			"-c:v", enc.VideoCodec,
			"-preset", enc.Preset,
			"-crf", strconv.Itoa(enc.CRF),
		)
		if opts.AudioFilter != "" {
			args = append(args, "-af", opts.AudioFilter)
		}
		args = append(args, "-c:a", enc.AudioCodec, "-b:a", enc.AudioBitrate)
	case opts.AudioFilter != "":
		enc := opts.Encode.withDefaults()
		args = append(args,
			"-c:v", "copy",
			"-af", opts.AudioFilter,
			"-c:a", enc.AudioCodec,
			"-b:a", enc.AudioBitrate,
			"-ar", strconv.Itoa(enc.SampleRate),
		)
	default:
		args = append(args, "-c", "copy")
	}

	return append(args, "-movflags", "+faststart", opts.Output)
}

// createConcatFile generates a temporary file list for ffmpeg concat
func createConcatFile(dir string, inputs []string) (string, error) {
	tmpFile, err := os.CreateTemp(dir, "splice-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return "", err
		}
		// the concat demuxer quotes with ' and escapes it as '\''
		quoted := strings.ReplaceAll(absPath, "'", `'\''`)
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", quoted); err != nil {
			return "", err
		}
	}

	return tmpFile.Name(), nil
}

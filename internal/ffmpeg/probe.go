package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/pkg/util"
)

// demuxers that hold a single still picture
var imageFormats = map[string]bool{
	"image2":      true,
	"png_pipe":    true,
	"jpeg_pipe":   true,
	"webp_pipe":   true,
	"bmp_pipe":    true,
	"tiff_pipe":   true,
	"qoi_pipe":    true,
	"pam_pipe":    true,
	"ppm_pipe":    true,
	"j2k_pipe":    true,
	"svg_pipe":    true,
	"dpx_pipe":    true,
	"exr_pipe":    true,
	"sgi_pipe":    true,
	"xwd_pipe":    true,
	"pcx_pipe":    true,
	"photocd":     true,
	"gem_pipe":    true,
	"pictor_pipe": true,
}

// Probe extracts the metadata the editor needs from a media file
func (e *Executor) Probe(ctx context.Context, filePath string) (media.Info, error) {
	if filePath == "" {
		return media.Info{}, fmt.Errorf("file path is required")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return media.Info{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	info, err := parseProbe(output, e.stillDuration)
	if err != nil {
		return media.Info{}, err
	}

	e.logger.Debug().
		Str("path", filePath).
		Str("kind", string(info.Kind)).
		Dur("duration", info.Duration).
		Msg("probed")
	return info, nil
}

func parseProbe(output []byte, still time.Duration) (media.Info, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return media.Info{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var info media.Info
	hasVideo, hasAudio := false, false

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			// embedded cover art is not a picture track
			if stream.Disposition.AttachedPic == 1 || hasVideo {
				continue
			}
			hasVideo = true
			info.Width = stream.Width
			info.Height = stream.Height

			// Calculate FPS from r_frame_rate (e.g., "30/1")
			if stream.RFrameRate != "" {
				info.FrameRate = util.ParseFrameRate(stream.RFrameRate)
			}
		case "audio":
			if hasAudio {
				continue
			}
			hasAudio = true
			info.Channels = stream.Channels
			if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
				info.SampleRate = sr
			}
		}
	}

	// Parse duration
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(dur * float64(time.Second))
	}

	switch {
	case hasVideo && isImageFormat(probe.Format.FormatName):
		info.Kind = media.KindImage
		info.Duration = still
		info.FrameRate = 0
		info.Channels = 0
		info.SampleRate = 0
	case hasVideo:
		info.Kind = media.KindVideo
	case hasAudio:
		info.Kind = media.KindAudio
	default:
		return media.Info{}, fmt.Errorf("no audio or video streams")
	}

	return info, nil
}

func isImageFormat(name string) bool {
	for _, n := range strings.Split(name, ",") {
		if imageFormats[n] {
			return true
		}
	}
	return false
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		RFrameRate  string `json:"r_frame_rate"`
		SampleRate  string `json:"sample_rate"`
		Channels    int    `json:"channels"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

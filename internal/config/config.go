package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir     string `yaml:"work_dir"`
	TempDir     string `yaml:"temp_dir"`
	Concurrency int    `yaml:"concurrency"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Preview output format
	Playback PlaybackConfig `yaml:"playback"`

	// New project defaults
	Project ProjectConfig `yaml:"project"`

	// Probe cache
	Cache CacheConfig `yaml:"cache"`
}

type FFmpegConfig struct {
	BinaryPath   string `yaml:"binary_path"`
	ProbePath    string `yaml:"probe_path"`
	Threads      int    `yaml:"threads"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	VideoCodec   string `yaml:"video_codec"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
}

type PlaybackConfig struct {
	FrameRate     float64       `yaml:"frame_rate"`
	SampleRate    int           `yaml:"sample_rate"`
	Channels      int           `yaml:"channels"`
	Width         int           `yaml:"width"`
	Height        int           `yaml:"height"`
	DecodeTimeout time.Duration `yaml:"decode_timeout"`
}

type ProjectConfig struct {
	DefaultName   string        `yaml:"default_name"`
	StillDuration time.Duration `yaml:"still_duration"`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the editor cannot run with
func (c *Config) Validate() error {
	if c.Playback.FrameRate <= 0 {
		return fmt.Errorf("playback.frame_rate must be positive")
	}
	if c.Playback.SampleRate <= 0 {
		return fmt.Errorf("playback.sample_rate must be positive")
	}
	if c.Playback.Channels < 1 || c.Playback.Channels > 8 {
		return fmt.Errorf("playback.channels must be between 1 and 8")
	}
	if c.Playback.Width <= 0 || c.Playback.Height <= 0 {
		return fmt.Errorf("playback.width and playback.height must be positive")
	}
	if c.Project.StillDuration <= 0 {
		return fmt.Errorf("project.still_duration must be positive")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		WorkDir:     "./work",
		TempDir:     os.TempDir(),
		Concurrency: 4,
		FFmpeg: FFmpegConfig{
			BinaryPath:   "ffmpeg",
			ProbePath:    "ffprobe",
			Threads:      0,
			Preset:       "medium",
			CRF:          23,
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			AudioBitrate: "192k",
		},
		Playback: PlaybackConfig{
			FrameRate:     30,
			SampleRate:    48000,
			Channels:      2,
			Width:         1280,
			Height:        720,
			DecodeTimeout: 5 * time.Second,
		},
		Project: ProjectConfig{
			DefaultName:   "Untitled",
			StillDuration: 5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(os.Getenv("HOME"), ".splice", "probe.db"),
		},
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

func findConfigFile() string {
	candidates := []string{
		"./splice.yaml",
		"./splice.yml",
		filepath.Join(os.Getenv("HOME"), ".splice", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}

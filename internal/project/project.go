// Package project ties a timeline and its media registry together with the
// session metadata, and reads and writes them as a YAML document.
package project

import (
	"fmt"
	"time"

	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
)

// Settings are the output parameters of a project
type Settings struct {
	FrameRate  float64
	SampleRate int
	Channels   int
	Width      int
	Height     int
}

// DefaultSettings returns 1080p30 with 48kHz stereo audio
func DefaultSettings() Settings {
	return Settings{
		FrameRate:  30,
		SampleRate: 48000,
		Channels:   2,
		Width:      1920,
		Height:     1080,
	}
}

// Validate checks the settings are usable for playback and export
func (s Settings) Validate() error {
	if s.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive")
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if s.Channels <= 0 {
		return fmt.Errorf("channels must be positive")
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid size %dx%d", s.Width, s.Height)
	}
	return nil
}

// Project is a timeline plus the assets it references
type Project struct {
	Name     string
	Modified time.Time
	Settings Settings
	Timeline *timeline.Timeline
	Assets   *media.Registry
}

// New creates an empty project
func New(name string, settings Settings) *Project {
	return &Project{
		Name:     name,
		Modified: time.Now().UTC(),
		Settings: settings,
		Timeline: timeline.New(),
		Assets:   media.NewRegistry(),
	}
}

// Touch records a modification
func (p *Project) Touch() {
	p.Modified = time.Now().UTC()
}

// Validate checks the timeline invariants and that every clip resolves to
// a registered asset whose kind matches its track
func (p *Project) Validate() error {
	if p.Timeline == nil || p.Assets == nil {
		return fmt.Errorf("project %q is incomplete", p.Name)
	}
	if err := p.Settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if err := p.Timeline.Validate(); err != nil {
		return err
	}
	for _, tr := range p.Timeline.Tracks() {
		for _, c := range tr.Clips() {
			if c.IsPlaceholder() {
				continue
			}
			asset, ok := p.Assets.Get(c.AssetID)
			if !ok {
				return fmt.Errorf("clip %s references unknown asset %s", c.ID, c.AssetID)
			}
			if tr.Kind == timeline.KindVideo && !asset.Kind.HasPicture() {
				return fmt.Errorf("clip %s: %s asset on video track %s", c.ID, asset.Kind, tr.ID)
			}
			if tr.Kind == timeline.KindAudio && !asset.HasAudio() {
				return fmt.Errorf("clip %s: asset %s has no audio for track %s", c.ID, asset.ID, tr.ID)
			}
			if asset.Bounded() && c.SourceOut > asset.Duration {
				return fmt.Errorf("clip %s: source out %v past asset duration %v", c.ID, c.SourceOut, asset.Duration)
			}
		}
	}
	return nil
}

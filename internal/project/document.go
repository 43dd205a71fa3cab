package project

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
)

// Version is the document version written by Marshal
const Version = 1

// ErrCorruptProject is returned when a document cannot be turned into a
// valid project. Nothing is partially loaded.
var ErrCorruptProject = errors.New("corrupt project")

type document struct {
	Version  int         `yaml:"version"`
	Name     string      `yaml:"name"`
	Modified time.Time   `yaml:"modified"`
	Settings settingsDoc `yaml:"settings"`
	Assets   []assetDoc  `yaml:"assets"`
	Tracks   []trackDoc  `yaml:"tracks"`
	Playhead string      `yaml:"playhead,omitempty"`
}

type settingsDoc struct {
	FrameRate  float64 `yaml:"frame_rate,omitempty"`
	SampleRate int     `yaml:"sample_rate,omitempty"`
	Channels   int     `yaml:"channels,omitempty"`
	Width      int     `yaml:"width,omitempty"`
	Height     int     `yaml:"height,omitempty"`
}

type assetDoc struct {
	ID         string  `yaml:"id"`
	Path       string  `yaml:"path"`
	Name       string  `yaml:"name,omitempty"`
	Kind       string  `yaml:"kind"`
	Duration   string  `yaml:"duration"`
	FrameRate  float64 `yaml:"frame_rate,omitempty"`
	SampleRate int     `yaml:"sample_rate,omitempty"`
	Channels   int     `yaml:"channels,omitempty"`
	Width      int     `yaml:"width,omitempty"`
	Height     int     `yaml:"height,omitempty"`
}

type trackDoc struct {
	ID    string    `yaml:"id"`
	Name  string    `yaml:"name,omitempty"`
	Kind  string    `yaml:"kind"`
	Muted bool      `yaml:"muted,omitempty"`
	Clips []clipDoc `yaml:"clips"`
}

type clipDoc struct {
	ID        string `yaml:"id"`
	Asset     string `yaml:"asset,omitempty"`
	SourceIn  string `yaml:"source_in"`
	SourceOut string `yaml:"source_out"`
	Start     string `yaml:"start"`
	FadeIn    string `yaml:"fade_in,omitempty"`
	FadeOut   string `yaml:"fade_out,omitempty"`
	Disabled  bool   `yaml:"disabled,omitempty"`
}

// Marshal encodes p as a version 1 YAML document
func Marshal(p *Project) ([]byte, error) {
	if p == nil || p.Timeline == nil || p.Assets == nil {
		return nil, fmt.Errorf("marshal: incomplete project")
	}
	if p.Name == "" {
		return nil, fmt.Errorf("marshal: project name is required")
	}

	doc := document{
		Version:  Version,
		Name:     p.Name,
		Modified: p.Modified.UTC(),
		Settings: settingsDoc{
			FrameRate:  p.Settings.FrameRate,
			SampleRate: p.Settings.SampleRate,
			Channels:   p.Settings.Channels,
			Width:      p.Settings.Width,
			Height:     p.Settings.Height,
		},
		Assets: []assetDoc{},
		Tracks: []trackDoc{},
	}
	if p.Timeline.Playhead > 0 {
		doc.Playhead = p.Timeline.Playhead.String()
	}

	for _, a := range p.Assets.Assets() {
		doc.Assets = append(doc.Assets, assetDoc{
			ID:         a.ID,
			Path:       a.Path,
			Name:       a.Name,
			Kind:       string(a.Kind),
			Duration:   a.Duration.String(),
			FrameRate:  a.FrameRate,
			SampleRate: a.SampleRate,
			Channels:   a.Channels,
			Width:      a.Width,
			Height:     a.Height,
		})
	}

	for _, tr := range p.Timeline.Tracks() {
		td := trackDoc{
			ID:    tr.ID,
			Name:  tr.Name,
			Kind:  string(tr.Kind),
			Muted: tr.Muted,
			Clips: []clipDoc{},
		}
		for _, c := range tr.Clips() {
			td.Clips = append(td.Clips, clipDoc{
				ID:        c.ID,
				Asset:     c.AssetID,
				SourceIn:  c.SourceIn.String(),
				SourceOut: c.SourceOut.String(),
				Start:     c.Start.String(),
				FadeIn:    optionalDuration(c.FadeIn),
				FadeOut:   optionalDuration(c.FadeOut),
				Disabled:  c.Disabled,
			})
		}
		doc.Tracks = append(doc.Tracks, td)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a project document. Unknown fields are ignored; missing
// or invalid required fields fail with ErrCorruptProject naming the field.
func Unmarshal(data []byte) (*Project, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, corrupt("document", "%v", err)
	}

	if doc.Version == 0 {
		return nil, corrupt("version", "missing")
	}
	if doc.Version < 0 || doc.Version > Version {
		return nil, corrupt("version", "unsupported version %d", doc.Version)
	}
	if doc.Name == "" {
		return nil, corrupt("name", "missing")
	}

	p := &Project{
		Name:     doc.Name,
		Modified: doc.Modified.UTC(),
		Settings: doc.Settings.settings(),
		Timeline: timeline.New(),
		Assets:   media.NewRegistry(),
	}

	for i, ad := range doc.Assets {
		asset, err := ad.asset(fmt.Sprintf("assets[%d]", i))
		if err != nil {
			return nil, err
		}
		if err := p.Assets.Add(asset); err != nil {
			return nil, corrupt(fmt.Sprintf("assets[%d]", i), "%v", err)
		}
	}

	for i, td := range doc.Tracks {
		field := fmt.Sprintf("tracks[%d]", i)
		tr, err := td.track(field)
		if err != nil {
			return nil, err
		}
		if err := p.Timeline.AppendTrack(tr); err != nil {
			return nil, corrupt(field, "%v", err)
		}
	}

	if doc.Playhead != "" {
		at, err := parseDuration("playhead", doc.Playhead)
		if err != nil {
			return nil, err
		}
		p.Timeline.Playhead = at
	}

	if err := p.Validate(); err != nil {
		return nil, corrupt("project", "%v", err)
	}
	return p, nil
}

func (s settingsDoc) settings() Settings {
	out := DefaultSettings()
	if s.FrameRate > 0 {
		out.FrameRate = s.FrameRate
	}
	if s.SampleRate > 0 {
		out.SampleRate = s.SampleRate
	}
	if s.Channels > 0 {
		out.Channels = s.Channels
	}
	if s.Width > 0 {
		out.Width = s.Width
	}
	if s.Height > 0 {
		out.Height = s.Height
	}
	return out
}

func (ad assetDoc) asset(field string) (*media.Asset, error) {
	if ad.ID == "" {
		return nil, corrupt(field+".id", "missing")
	}
	if ad.Path == "" {
		return nil, corrupt(field+".path", "missing")
	}
	kind, err := media.ParseKind(ad.Kind)
	if err != nil {
		return nil, corrupt(field+".kind", "%v", err)
	}
	dur, err := parseDuration(field+".duration", ad.Duration)
	if err != nil {
		return nil, err
	}
	if kind != media.KindImage && dur <= 0 {
		return nil, corrupt(field+".duration", "must be positive")
	}
	return &media.Asset{
		ID:   ad.ID,
		Path: ad.Path,
		Name: ad.Name,
		Info: media.Info{
			Duration:   dur,
			FrameRate:  ad.FrameRate,
			SampleRate: ad.SampleRate,
			Channels:   ad.Channels,
			Width:      ad.Width,
			Height:     ad.Height,
			Kind:       kind,
		},
	}, nil
}

func (td trackDoc) track(field string) (*timeline.Track, error) {
	if td.ID == "" {
		return nil, corrupt(field+".id", "missing")
	}
	kind := timeline.Kind(td.Kind)
	if !kind.Valid() {
		return nil, corrupt(field+".kind", "unknown track kind %q", td.Kind)
	}

	tr := timeline.NewTrack(td.ID, td.Name, kind)
	tr.Muted = td.Muted
	for j, cd := range td.Clips {
		cf := fmt.Sprintf("%s.clips[%d]", field, j)
		c, err := cd.clip(cf)
		if err != nil {
			return nil, err
		}
		if err := tr.Insert(c); err != nil {
			return nil, corrupt(cf, "%v", err)
		}
	}
	return tr, nil
}

func (cd clipDoc) clip(field string) (timeline.Clip, error) {
	if cd.ID == "" {
		return timeline.Clip{}, corrupt(field+".id", "missing")
	}
	c := timeline.Clip{
		ID:       cd.ID,
		AssetID:  cd.Asset,
		Disabled: cd.Disabled,
	}
	var err error
	if c.SourceIn, err = parseDuration(field+".source_in", cd.SourceIn); err != nil {
		return c, err
	}
	if c.SourceOut, err = parseDuration(field+".source_out", cd.SourceOut); err != nil {
		return c, err
	}
	if c.Start, err = parseDuration(field+".start", cd.Start); err != nil {
		return c, err
	}
	if cd.FadeIn != "" {
		if c.FadeIn, err = parseDuration(field+".fade_in", cd.FadeIn); err != nil {
			return c, err
		}
	}
	if cd.FadeOut != "" {
		if c.FadeOut, err = parseDuration(field+".fade_out", cd.FadeOut); err != nil {
			return c, err
		}
	}
	return c, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, corrupt(field, "missing")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, corrupt(field, "%v", err)
	}
	return d, nil
}

func optionalDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

func corrupt(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrCorruptProject, field, fmt.Sprintf(format, args...))
}

// Package media holds the metadata registry for imported assets. It owns no
// media bytes, only what the timeline and the playback scheduler need.
package media

import (
	"context"
	"fmt"
	"time"
)

// Kind classifies an imported asset
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindAudio, KindImage:
		return true
	}
	return false
}

// HasPicture reports whether the asset can feed a video track
func (k Kind) HasPicture() bool {
	return k == KindVideo || k == KindImage
}

// ParseKind converts a persisted kind string
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown media kind %q", s)
	}
	return k, nil
}

// Info is the probed metadata for a file on disk
type Info struct {
	Duration   time.Duration
	FrameRate  float64
	SampleRate int
	Channels   int
	Width      int
	Height     int
	Kind       Kind
}

// Prober extracts Info from a media file
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// ProberFunc adapts a function to the Prober interface
type ProberFunc func(ctx context.Context, path string) (Info, error)

// Probe calls f(ctx, path)
func (f ProberFunc) Probe(ctx context.Context, path string) (Info, error) {
	return f(ctx, path)
}

// Asset is an imported media file. Immutable once probed; clips refer to it
// by ID.
type Asset struct {
	ID   string
	Path string
	Name string
	Info
}

// HasAudio reports whether the asset carries an audio stream
func (a *Asset) HasAudio() bool {
	return a.Kind != KindImage && a.Channels > 0
}

// Bounded reports whether source offsets into the asset are limited by its
// duration. Stills can be held for any length.
func (a *Asset) Bounded() bool {
	return a.Kind != KindImage
}

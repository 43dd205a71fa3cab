package playback

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
)

var (
	// ErrDecodeFailure marks a decode that failed. It never reaches callers of
	// Composite; the track contributes black or silence instead.
	ErrDecodeFailure = errors.New("decode failure")
	// ErrSuperseded is returned when a newer request replaced this one
	// before it completed.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// Tag identifies the request a decode completion answers
type Tag struct {
	TrackID    string
	Generation uint64
}

// FrameRequest asks for the picture of Asset at source time At
type FrameRequest struct {
	Tag
	Asset  *media.Asset
	At     time.Duration
	Width  int
	Height int
}

// AudioRequest asks for interleaved float samples covering Range of the
// asset's native timeline
type AudioRequest struct {
	Tag
	Asset      *media.Asset
	Range      timeline.Range
	SampleRate int
	Channels   int
}

// Decoder is the media decode collaborator. Calls may run concurrently and
// must return promptly once ctx is cancelled.
type Decoder interface {
	DecodeFrame(ctx context.Context, req FrameRequest) (image.Image, error)
	DecodeAudio(ctx context.Context, req AudioRequest) ([]float32, error)
}

// Assets resolves asset references
type Assets interface {
	Get(id string) (*media.Asset, bool)
}

// Source hands out the current timeline snapshot. Snapshots are never
// mutated after publication.
type Source interface {
	Timeline() *timeline.Timeline
}

// SourceFunc adapts a function to Source
type SourceFunc func() *timeline.Timeline

// Timeline calls f()
func (f SourceFunc) Timeline() *timeline.Timeline {
	return f()
}

// Sink receives composites produced while playing or scrubbing
type Sink interface {
	Present(c *Composite)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(c *Composite)

// Present calls f(c)
func (f SinkFunc) Present(c *Composite) {
	f(c)
}

package timeline

import (
	"fmt"
	"time"
)

// Clip is a bounded reference into a media asset placed on a track
type Clip struct {
	ID string
	// AssetID is empty for generated black/silence placeholders
	AssetID   string
	SourceIn  time.Duration
	SourceOut time.Duration
	Start     time.Duration
	TrackID   string
	FadeIn    time.Duration
	FadeOut   time.Duration
	// Disabled clips keep their place but schedule as a gap
	Disabled bool
}

// Duration is the timeline length of the clip (no speed changes)
func (c Clip) Duration() time.Duration {
	return c.SourceOut - c.SourceIn
}

// End is the exclusive timeline end of the clip
func (c Clip) End() time.Duration {
	return c.Start + c.Duration()
}

// Span returns the timeline range occupied by the clip
func (c Clip) Span() Range {
	return Range{Start: c.Start, End: c.End()}
}

// SourceRange returns the range of the asset's native timeline in use
func (c Clip) SourceRange() Range {
	return Range{Start: c.SourceIn, End: c.SourceOut}
}

// SourceOffset maps a timeline instant to the asset's native timeline
func (c Clip) SourceOffset(t time.Duration) time.Duration {
	return t - c.Start + c.SourceIn
}

// IsPlaceholder reports whether the clip renders generated black/silence
func (c Clip) IsPlaceholder() bool {
	return c.AssetID == ""
}

// Validate checks the invariants a single clip must hold on its own
func (c Clip) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidClip)
	}
	if c.SourceIn < 0 {
		return fmt.Errorf("%w: clip %s source in %v is negative", ErrInvalidClip, c.ID, c.SourceIn)
	}
	if c.SourceOut <= c.SourceIn {
		return fmt.Errorf("%w: clip %s source out %v not after source in %v", ErrInvalidClip, c.ID, c.SourceOut, c.SourceIn)
	}
	if c.Start < 0 {
		return fmt.Errorf("%w: clip %s starts at negative time %v", ErrInvalidClip, c.ID, c.Start)
	}
	if c.FadeIn < 0 || c.FadeOut < 0 {
		return fmt.Errorf("%w: clip %s has a negative fade", ErrInvalidClip, c.ID)
	}
	if c.FadeIn+c.FadeOut > c.Duration() {
		return fmt.Errorf("%w: clip %s fades %v+%v over %v", ErrFadeOverflow, c.ID, c.FadeIn, c.FadeOut, c.Duration())
	}
	return nil
}

// FitFades shrinks the fades, fade-out first, until they fit the clip
func (c *Clip) FitFades() {
	d := c.Duration()
	if c.FadeIn > d {
		c.FadeIn = d
	}
	if c.FadeIn+c.FadeOut > d {
		c.FadeOut = d - c.FadeIn
	}
}

package timeline

import (
	"fmt"
	"sort"
	"time"
)

// Kind is the media kind a track carries
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Valid reports whether k is a known track kind
func (k Kind) Valid() bool {
	return k == KindVideo || k == KindAudio
}

// Track is an ordered, non-overlapping lane of clips of one kind
type Track struct {
	ID    string
	Name  string
	Kind  Kind
	Muted bool

	clips []Clip
}

// NewTrack creates an empty track
func NewTrack(id, name string, kind Kind) *Track {
	return &Track{ID: id, Name: name, Kind: kind}
}

// Len returns the number of clips on the track
func (t *Track) Len() int {
	return len(t.clips)
}

// Clips returns a copy of the clips in timeline order
func (t *Track) Clips() []Clip {
	out := make([]Clip, len(t.clips))
	copy(out, t.clips)
	return out
}

// End returns the end of the last clip, or 0 for an empty track
func (t *Track) End() time.Duration {
	if len(t.clips) == 0 {
		return 0
	}
	return t.clips[len(t.clips)-1].End()
}

// upper returns the index of the first clip starting after at
func (t *Track) upper(at time.Duration) int {
	return sort.Search(len(t.clips), func(i int) bool {
		return t.clips[i].Start > at
	})
}

// ClipAt returns the clip covering instant at
func (t *Track) ClipAt(at time.Duration) (Clip, bool) {
	i := t.upper(at)
	if i > 0 && t.clips[i-1].End() > at {
		return t.clips[i-1], true
	}
	return Clip{}, false
}

// ClipsOverlapping returns the clips intersecting r, in order
func (t *Track) ClipsOverlapping(r Range) []Clip {
	if r.Empty() {
		return nil
	}
	// Ends are sorted too because clips never overlap
	i := sort.Search(len(t.clips), func(i int) bool {
		return t.clips[i].End() > r.Start
	})
	var out []Clip
	for ; i < len(t.clips) && t.clips[i].Start < r.End; i++ {
		out = append(out, t.clips[i])
	}
	return out
}

// GapsIn returns the uncovered sub-ranges of r
func (t *Track) GapsIn(r Range) []Range {
	if r.Empty() {
		return nil
	}
	var gaps []Range
	cursor := r.Start
	for _, c := range t.ClipsOverlapping(r) {
		if c.Start > cursor {
			gaps = append(gaps, Range{Start: cursor, End: c.Start})
		}
		cursor = max(cursor, c.End())
	}
	if cursor < r.End {
		gaps = append(gaps, Range{Start: cursor, End: r.End})
	}
	return gaps
}

// Index returns the position of clip id on the track
func (t *Track) Index(id string) (int, bool) {
	for i := range t.clips {
		if t.clips[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Clip returns the clip with the given id
func (t *Track) Clip(id string) (Clip, bool) {
	if i, ok := t.Index(id); ok {
		return t.clips[i], true
	}
	return Clip{}, false
}

// Neighbors returns the clips immediately before and after clip id
func (t *Track) Neighbors(id string) (prev, next *Clip) {
	i, ok := t.Index(id)
	if !ok {
		return nil, nil
	}
	if i > 0 {
		p := t.clips[i-1]
		prev = &p
	}
	if i+1 < len(t.clips) {
		n := t.clips[i+1]
		next = &n
	}
	return prev, next
}

// Insert places c on the track keeping start order. It fails without
// changing the track if c is invalid or would overlap another clip.
func (t *Track) Insert(c Clip) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.TrackID = t.ID

	i := t.upper(c.Start)
	if i > 0 && t.clips[i-1].End() > c.Start {
		return fmt.Errorf("%w: %s %v against %s %v", ErrOverlap, c.ID, c.Span(), t.clips[i-1].ID, t.clips[i-1].Span())
	}
	if i < len(t.clips) && t.clips[i].Start < c.End() {
		return fmt.Errorf("%w: %s %v against %s %v", ErrOverlap, c.ID, c.Span(), t.clips[i].ID, t.clips[i].Span())
	}

	t.clips = append(t.clips, Clip{})
	copy(t.clips[i+1:], t.clips[i:])
	t.clips[i] = c
	return nil
}

// Remove takes clip id off the track
func (t *Track) Remove(id string) (Clip, bool) {
	i, ok := t.Index(id)
	if !ok {
		return Clip{}, false
	}
	c := t.clips[i]
	t.clips = append(t.clips[:i], t.clips[i+1:]...)
	return c, true
}

// Replace swaps clip id for c. On failure the original clip stays in place.
func (t *Track) Replace(id string, c Clip) error {
	old, ok := t.Remove(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	if err := t.Insert(c); err != nil {
		// old fit before, so re-inserting cannot fail
		_ = t.Insert(old)
		return err
	}
	return nil
}

// ShiftFrom moves every clip starting at or after from by delta. Shifting
// never reorders clips, but may collide with the clip before from or push a
// clip below zero; both leave the track unchanged and return an error.
func (t *Track) ShiftFrom(from, delta time.Duration) error {
	i := sort.Search(len(t.clips), func(i int) bool {
		return t.clips[i].Start >= from
	})
	if i == len(t.clips) || delta == 0 {
		return nil
	}
	first := t.clips[i].Start + delta
	if first < 0 {
		return fmt.Errorf("%w: shift by %v moves %s before zero", ErrInvalidClip, delta, t.clips[i].ID)
	}
	if i > 0 && t.clips[i-1].End() > first {
		return fmt.Errorf("%w: shift by %v collides with %s", ErrOverlap, delta, t.clips[i-1].ID)
	}
	for j := i; j < len(t.clips); j++ {
		t.clips[j].Start += delta
	}
	return nil
}

// Validate checks ordering, overlap and per-clip invariants
func (t *Track) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("track %s: unknown kind %q", t.ID, t.Kind)
	}
	for i, c := range t.clips {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("track %s: %w", t.ID, err)
		}
		if c.TrackID != t.ID {
			return fmt.Errorf("track %s: clip %s claims track %s", t.ID, c.ID, c.TrackID)
		}
		if i > 0 && t.clips[i-1].End() > c.Start {
			return fmt.Errorf("track %s: %w: %s and %s", t.ID, ErrOverlap, t.clips[i-1].ID, c.ID)
		}
	}
	return nil
}

func (t *Track) clone() *Track {
	cp := *t
	cp.clips = make([]Clip, len(t.clips))
	copy(cp.clips, t.clips)
	return &cp
}

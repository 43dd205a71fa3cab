package edit

import (
	"time"

	"github.com/google/uuid"

	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
)

func findTrack(tl *timeline.Timeline, id string) (*timeline.Track, error) {
	tr, ok := tl.Track(id)
	if !ok {
		return nil, fail(ErrNotFound, "track %s", id)
	}
	return tr, nil
}

func findClip(tl *timeline.Timeline, id string) (*timeline.Track, timeline.Clip, error) {
	tr, c, ok := tl.FindClip(id)
	if !ok {
		return nil, timeline.Clip{}, fail(ErrNotFound, "clip %s", id)
	}
	return tr, c, nil
}

func newID(id *string) string {
	if *id == "" {
		*id = uuid.NewString()
	}
	return *id
}

// accepts reports whether an asset can be placed on a track of kind k
func accepts(k timeline.Kind, a *media.Asset) bool {
	switch k {
	case timeline.KindVideo:
		return a.Kind.HasPicture()
	case timeline.KindAudio:
		return a.HasAudio()
	}
	return false
}

// AddTrack appends an empty track. NewID is filled in when empty.
type AddTrack struct {
	Kind  timeline.Kind
	Label string
	NewID string
}

func (c *AddTrack) Name() string { return "add-track" }

func (c *AddTrack) Apply(tl *timeline.Timeline, env Env) error {
	if !c.Kind.Valid() {
		return fail(ErrKindMismatch, "unknown track kind %q", c.Kind)
	}
	tr := timeline.NewTrack(newID(&c.NewID), c.Label, c.Kind)
	return tl.AppendTrack(tr)
}

// RemoveTrack drops a track with everything on it
type RemoveTrack struct {
	TrackID string
}

func (c *RemoveTrack) Name() string { return "remove-track" }

func (c *RemoveTrack) Apply(tl *timeline.Timeline, env Env) error {
	if !tl.RemoveTrack(c.TrackID) {
		return fail(ErrNotFound, "track %s", c.TrackID)
	}
	return nil
}

// SetTrackMuted hides a video track or silences an audio track
type SetTrackMuted struct {
	TrackID string
	Muted   bool
}

func (c *SetTrackMuted) Name() string { return "mute-track" }

func (c *SetTrackMuted) Apply(tl *timeline.Timeline, env Env) error {
	tr, err := findTrack(tl, c.TrackID)
	if err != nil {
		return err
	}
	tr.Muted = c.Muted
	return nil
}

// InsertClip places a new clip into free space on a track. An empty AssetID
// inserts a black/silence placeholder.
type InsertClip struct {
	TrackID   string
	AssetID   string
	SourceIn  time.Duration
	SourceOut time.Duration
	Start     time.Duration
	NewID     string
}

func (c *InsertClip) Name() string { return "insert" }

func (c *InsertClip) Apply(tl *timeline.Timeline, env Env) error {
	tr, err := findTrack(tl, c.TrackID)
	if err != nil {
		return err
	}
	if c.SourceIn < 0 || c.SourceOut <= c.SourceIn {
		return fail(ErrInvalidRange, "source range [%v,%v)", c.SourceIn, c.SourceOut)
	}
	if c.Start < 0 {
		return fail(ErrInvalidRange, "start %v is negative", c.Start)
	}
	if c.AssetID != "" {
		a, err := env.asset(c.AssetID)
		if err != nil {
			return err
		}
		if !accepts(tr.Kind, a) {
			return fail(ErrKindMismatch, "%s asset %s on %s track", a.Kind, a.Name, tr.Kind)
		}
		if a.Bounded() && c.SourceOut > a.Duration {
			return fail(ErrBoundaryViolation, "source out %v beyond asset duration %v", c.SourceOut, a.Duration)
		}
	}

	clip := timeline.Clip{
		ID:        newID(&c.NewID),
		AssetID:   c.AssetID,
		SourceIn:  c.SourceIn,
		SourceOut: c.SourceOut,
		Start:     c.Start,
	}
	if err := tr.Insert(clip); err != nil {
		return classify(err)
	}
	return nil
}

// Lift removes a clip and leaves a gap behind
type Lift struct {
	ClipID string
}

func (c *Lift) Name() string { return "lift" }

func (c *Lift) Apply(tl *timeline.Timeline, env Env) error {
	tr, _, err := findClip(tl, c.ClipID)
	if err != nil {
		return err
	}
	tr.Remove(c.ClipID)
	return nil
}

// Split cuts the clip under At into two. The left half keeps the clip id;
// NewID (filled in when empty) names the right half.
type Split struct {
	TrackID string
	At      time.Duration
	NewID   string
}

func (c *Split) Name() string { return "split" }

func (c *Split) Apply(tl *timeline.Timeline, env Env) error {
	tr, err := findTrack(tl, c.TrackID)
	if err != nil {
		return err
	}
	orig, ok := tr.ClipAt(c.At)
	if !ok {
		return fail(ErrInvalidCutPoint, "no clip at %v", c.At)
	}
	if c.At == orig.Start {
		return fail(ErrInvalidCutPoint, "%v is the start of clip %s", c.At, orig.ID)
	}

	cut := orig.SourceOffset(c.At)

	left := orig
	left.SourceOut = cut
	left.FadeOut = 0
	left.FadeIn = min(orig.FadeIn, left.Duration())

	right := orig
	right.ID = newID(&c.NewID)
	right.SourceIn = cut
	right.Start = c.At
	right.FadeIn = 0
	right.FadeOut = min(orig.FadeOut, right.Duration())

	if err := tr.Replace(orig.ID, left); err != nil {
		return classify(err)
	}
	if err := tr.Insert(right); err != nil {
		return classify(err)
	}
	return nil
}

// Join merges two contiguous clips that continue the same source, undoing
// a split at At. The merged clip keeps the left clip's id.
type Join struct {
	TrackID string
	At      time.Duration
}

func (c *Join) Name() string { return "join" }

func (c *Join) Apply(tl *timeline.Timeline, env Env) error {
	tr, err := findTrack(tl, c.TrackID)
	if err != nil {
		return err
	}
	right, ok := tr.ClipAt(c.At)
	if !ok || right.Start != c.At {
		return fail(ErrInvalidCutPoint, "no clip boundary at %v", c.At)
	}
	left, ok := tr.ClipAt(c.At - 1)
	if !ok || left.End() != c.At {
		return fail(ErrInvalidCutPoint, "no clip ends at %v", c.At)
	}
	if left.AssetID != right.AssetID || left.SourceOut != right.SourceIn {
		return fail(ErrInvalidCutPoint, "clips %s and %s are not continuous", left.ID, right.ID)
	}

	merged := left
	merged.SourceOut = right.SourceOut
	merged.FadeOut = right.FadeOut

	tr.Remove(right.ID)
	if err := tr.Replace(left.ID, merged); err != nil {
		return classify(err)
	}
	return nil
}

// RippleDelete removes a clip and pulls everything after it earlier by the
// clip's duration. CloseGap also removes the gap up to the next clip. With
// AllTracks, every track closes the same range.
type RippleDelete struct {
	ClipID    string
	CloseGap  bool
	AllTracks bool
}

func (c *RippleDelete) Name() string { return "ripple-delete" }

func (c *RippleDelete) Apply(tl *timeline.Timeline, env Env) error {
	tr, clip, err := findClip(tl, c.ClipID)
	if err != nil {
		return err
	}
	r := clip.Span()
	if c.CloseGap {
		if _, next := tr.Neighbors(clip.ID); next != nil {
			r.End = next.Start
		}
	}
	return ripple(tl, tr, r, c.AllTracks)
}

// RippleDeleteRange removes an explicit range from a track (clip content or
// gap) and closes it. The range must lie within the track's covered span.
type RippleDeleteRange struct {
	TrackID   string
	Range     timeline.Range
	AllTracks bool
}

func (c *RippleDeleteRange) Name() string { return "ripple-delete-range" }

func (c *RippleDeleteRange) Apply(tl *timeline.Timeline, env Env) error {
	tr, err := findTrack(tl, c.TrackID)
	if err != nil {
		return err
	}
	if c.Range.Start < 0 || c.Range.Empty() {
		return fail(ErrInvalidRange, "range %v", c.Range)
	}
	if c.Range.End > tr.End() {
		return fail(ErrInvalidRange, "range %v exceeds track end %v", c.Range, tr.End())
	}
	return ripple(tl, tr, c.Range, c.AllTracks)
}

func ripple(tl *timeline.Timeline, primary *timeline.Track, r timeline.Range, all bool) error {
	tracks := []*timeline.Track{primary}
	if all {
		tracks = tl.Tracks()
	}
	for _, tr := range tracks {
		if err := cutRange(tr, r); err != nil {
			return err
		}
		if err := tr.ShiftFrom(r.End, -r.Duration()); err != nil {
			return classify(err)
		}
	}
	return nil
}

// cutRange removes all coverage inside r. Clips straddling an edge of r are
// trimmed to it; a clip spanning all of r is split around it.
func cutRange(tr *timeline.Track, r timeline.Range) error {
	for _, c := range tr.ClipsOverlapping(r) {
		tr.Remove(c.ID)

		keepID := c.ID
		if c.Start < r.Start {
			left := c
			left.SourceOut = c.SourceOffset(r.Start)
			left.FadeOut = 0
			left.FitFades()
			if err := tr.Insert(left); err != nil {
				return classify(err)
			}
			keepID = ""
		}
		if c.End() > r.End {
			right := c
			right.ID = newID(&keepID)
			right.SourceIn = c.SourceOffset(r.End)
			right.Start = r.End
			right.FadeIn = 0
			right.FitFades()
			if err := tr.Insert(right); err != nil {
				return classify(err)
			}
		}
	}
	return nil
}

// Edge selects which end of a clip a trim moves
type Edge int

const (
	EdgeStart Edge = iota
	EdgeEnd
)

func (e Edge) String() string {
	if e == EdgeEnd {
		return "end"
	}
	return "start"
}

// Trim moves one edge of a clip to timeline time To, adjusting the source
// point by the same amount. Fades shrink if the clip gets too short for them.
type Trim struct {
	ClipID string
	Edge   Edge
	To     time.Duration
}

func (c *Trim) Name() string { return "trim" }

func (c *Trim) Apply(tl *timeline.Timeline, env Env) error {
	tr, clip, err := findClip(tl, c.ClipID)
	if err != nil {
		return err
	}

	bound := time.Duration(-1)
	if clip.AssetID != "" {
		a, err := env.asset(clip.AssetID)
		if err != nil {
			return err
		}
		if a.Bounded() {
			bound = a.Duration
		}
	}

	prev, next := tr.Neighbors(clip.ID)
	trimmed := clip

	switch c.Edge {
	case EdgeStart:
		if c.To >= clip.End() {
			return fail(ErrBoundaryViolation, "start %v at or after clip end %v", c.To, clip.End())
		}
		if c.To < 0 {
			return fail(ErrBoundaryViolation, "start %v before timeline zero", c.To)
		}
		in := clip.SourceIn + (c.To - clip.Start)
		if in < 0 {
			return fail(ErrBoundaryViolation, "source in %v before asset start", in)
		}
		if prev != nil && prev.End() > c.To {
			return fail(ErrBoundaryViolation, "start %v overlaps %s ending at %v", c.To, prev.ID, prev.End())
		}
		trimmed.Start = c.To
		trimmed.SourceIn = in
		if d := trimmed.Duration(); trimmed.FadeIn+trimmed.FadeOut > d {
			trimmed.FadeIn = max(0, d-trimmed.FadeOut)
			trimmed.FitFades()
		}
	case EdgeEnd:
		if c.To <= clip.Start {
			return fail(ErrBoundaryViolation, "end %v at or before clip start %v", c.To, clip.Start)
		}
		out := clip.SourceOut + (c.To - clip.End())
		if bound >= 0 && out > bound {
			return fail(ErrBoundaryViolation, "source out %v beyond asset duration %v", out, bound)
		}
		if next != nil && next.Start < c.To {
			return fail(ErrBoundaryViolation, "end %v overlaps %s starting at %v", c.To, next.ID, next.Start)
		}
		trimmed.SourceOut = out
		trimmed.FitFades()
	default:
		return fail(ErrInvalidRange, "unknown edge %d", c.Edge)
	}

	if err := tr.Replace(clip.ID, trimmed); err != nil {
		return classify(err)
	}
	return nil
}

// Move relocates a clip to Start on TrackID (the clip's own track when
// empty). Rejected while the blade tool is active.
type Move struct {
	ClipID  string
	TrackID string
	Start   time.Duration
}

func (c *Move) Name() string { return "move" }

func (c *Move) Apply(tl *timeline.Timeline, env Env) error {
	if env.State.Tool == ToolBlade {
		return fail(ErrToolModeConflict, "clips cannot be moved while the %s tool is active", env.State.Tool)
	}
	src, clip, err := findClip(tl, c.ClipID)
	if err != nil {
		return err
	}
	dst := src
	if c.TrackID != "" && c.TrackID != src.ID {
		if dst, err = findTrack(tl, c.TrackID); err != nil {
			return err
		}
		if dst.Kind != src.Kind {
			return fail(ErrKindMismatch, "cannot move from %s track to %s track", src.Kind, dst.Kind)
		}
	}
	if c.Start < 0 {
		return fail(ErrInvalidRange, "start %v is negative", c.Start)
	}

	src.Remove(clip.ID)
	moved := clip
	moved.Start = c.Start
	if err := dst.Insert(moved); err != nil {
		return classify(err)
	}
	return nil
}

// SetFade changes the fade durations of a clip
type SetFade struct {
	ClipID  string
	FadeIn  time.Duration
	FadeOut time.Duration
}

func (c *SetFade) Name() string { return "fade" }

func (c *SetFade) Apply(tl *timeline.Timeline, env Env) error {
	tr, clip, err := findClip(tl, c.ClipID)
	if err != nil {
		return err
	}
	if c.FadeIn < 0 || c.FadeOut < 0 {
		return fail(ErrInvalidRange, "negative fade %v/%v", c.FadeIn, c.FadeOut)
	}
	if c.FadeIn+c.FadeOut > clip.Duration() {
		return fail(ErrFadeExceedsClipDuration, "fades %v+%v over clip duration %v", c.FadeIn, c.FadeOut, clip.Duration())
	}
	clip.FadeIn = c.FadeIn
	clip.FadeOut = c.FadeOut
	if err := tr.Replace(clip.ID, clip); err != nil {
		return classify(err)
	}
	return nil
}

// SetClipEnabled toggles whether a clip contributes to playback
type SetClipEnabled struct {
	ClipID  string
	Enabled bool
}

func (c *SetClipEnabled) Name() string { return "enable" }

func (c *SetClipEnabled) Apply(tl *timeline.Timeline, env Env) error {
	tr, clip, err := findClip(tl, c.ClipID)
	if err != nil {
		return err
	}
	clip.Disabled = !c.Enabled
	if err := tr.Replace(clip.ID, clip); err != nil {
		return classify(err)
	}
	return nil
}

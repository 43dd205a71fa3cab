package timeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Timeline is an ordered list of tracks; index 0 is the topmost track
type Timeline struct {
	Playhead time.Duration

	tracks []*Track
}

// New creates an empty timeline
func New() *Timeline {
	return &Timeline{}
}

// AddTrack appends a new empty track at the bottom of the stack
func (tl *Timeline) AddTrack(kind Kind, name string) (*Track, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown track kind %q", kind)
	}
	tr := NewTrack(uuid.NewString(), name, kind)
	tl.tracks = append(tl.tracks, tr)
	return tr, nil
}

// AppendTrack adds an existing track, as done when loading a project
func (tl *Timeline) AppendTrack(tr *Track) error {
	if tr == nil || tr.ID == "" {
		return fmt.Errorf("track id is required")
	}
	if _, ok := tl.Track(tr.ID); ok {
		return fmt.Errorf("duplicate track id %s", tr.ID)
	}
	tl.tracks = append(tl.tracks, tr)
	return nil
}

// RemoveTrack drops a track and its clips
func (tl *Timeline) RemoveTrack(id string) bool {
	for i, tr := range tl.tracks {
		if tr.ID == id {
			tl.tracks = append(tl.tracks[:i], tl.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// Tracks returns the tracks top to bottom
func (tl *Timeline) Tracks() []*Track {
	out := make([]*Track, len(tl.tracks))
	copy(out, tl.tracks)
	return out
}

// Track looks a track up by id
func (tl *Timeline) Track(id string) (*Track, bool) {
	for _, tr := range tl.tracks {
		if tr.ID == id {
			return tr, true
		}
	}
	return nil, false
}

func (tl *Timeline) mustTrack(id string) (*Track, error) {
	tr, ok := tl.Track(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	return tr, nil
}

// FindClip locates a clip on any track
func (tl *Timeline) FindClip(id string) (*Track, Clip, bool) {
	for _, tr := range tl.tracks {
		if c, ok := tr.Clip(id); ok {
			return tr, c, true
		}
	}
	return nil, Clip{}, false
}

// ClipsOverlapping returns the clips on track intersecting r
func (tl *Timeline) ClipsOverlapping(trackID string, r Range) ([]Clip, error) {
	tr, err := tl.mustTrack(trackID)
	if err != nil {
		return nil, err
	}
	return tr.ClipsOverlapping(r), nil
}

// ClipAt returns the clip on track covering at, if any
func (tl *Timeline) ClipAt(trackID string, at time.Duration) (Clip, bool, error) {
	tr, err := tl.mustTrack(trackID)
	if err != nil {
		return Clip{}, false, err
	}
	c, ok := tr.ClipAt(at)
	return c, ok, nil
}

// GapsIn returns the uncovered parts of r on track
func (tl *Timeline) GapsIn(trackID string, r Range) ([]Range, error) {
	tr, err := tl.mustTrack(trackID)
	if err != nil {
		return nil, err
	}
	return tr.GapsIn(r), nil
}

// TotalDuration is the maximum end time across all tracks
func (tl *Timeline) TotalDuration() time.Duration {
	var end time.Duration
	for _, tr := range tl.tracks {
		end = max(end, tr.End())
	}
	return end
}

// ClipCount returns the number of clips on all tracks
func (tl *Timeline) ClipCount() int {
	n := 0
	for _, tr := range tl.tracks {
		n += tr.Len()
	}
	return n
}

// ReferencesAsset reports whether any clip uses the asset
func (tl *Timeline) ReferencesAsset(assetID string) bool {
	for _, tr := range tl.tracks {
		for _, c := range tr.clips {
			if c.AssetID == assetID {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy that can be mutated freely
func (tl *Timeline) Clone() *Timeline {
	cp := &Timeline{
		Playhead: tl.Playhead,
		tracks:   make([]*Track, len(tl.tracks)),
	}
	for i, tr := range tl.tracks {
		cp.tracks[i] = tr.clone()
	}
	return cp
}

// Validate checks every track invariant plus global clip id uniqueness
func (tl *Timeline) Validate() error {
	if tl.Playhead < 0 {
		return fmt.Errorf("negative playhead %v", tl.Playhead)
	}
	trackIDs := make(map[string]struct{}, len(tl.tracks))
	clipIDs := make(map[string]struct{})
	for _, tr := range tl.tracks {
		if _, dup := trackIDs[tr.ID]; dup {
			return fmt.Errorf("duplicate track id %s", tr.ID)
		}
		trackIDs[tr.ID] = struct{}{}
		if err := tr.Validate(); err != nil {
			return err
		}
		for _, c := range tr.clips {
			if _, dup := clipIDs[c.ID]; dup {
				return fmt.Errorf("duplicate clip id %s", c.ID)
			}
			clipIDs[c.ID] = struct{}{}
		}
	}
	return nil
}

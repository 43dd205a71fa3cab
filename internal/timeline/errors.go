package timeline

import "errors"

var (
	// ErrOverlap is returned when a mutation would make two clips on one
	// track overlap
	ErrOverlap = errors.New("clips overlap")
	// ErrInvalidClip is returned for clips whose own fields are inconsistent
	ErrInvalidClip = errors.New("invalid clip")
	// ErrFadeOverflow is returned when fadeIn + fadeOut exceeds the clip
	ErrFadeOverflow = errors.New("fades exceed clip duration")
	// ErrTrackNotFound is returned for unknown track IDs
	ErrTrackNotFound = errors.New("track not found")
	// ErrClipNotFound is returned for unknown clip IDs
	ErrClipNotFound = errors.New("clip not found")
)

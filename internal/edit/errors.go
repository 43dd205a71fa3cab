package edit

import (
	"errors"
	"fmt"

	"github.com/kikiluvv/splice/internal/timeline"
)

// Rejection kinds. Every failed command wraps exactly one of these.
var (
	ErrInvalidCutPoint         = errors.New("invalid cut point")
	ErrInvalidRange            = errors.New("invalid range")
	ErrBoundaryViolation       = errors.New("boundary violation")
	ErrOverlapConflict         = errors.New("overlap conflict")
	ErrToolModeConflict        = errors.New("tool mode conflict")
	ErrFadeExceedsClipDuration = errors.New("fade exceeds clip duration")
	ErrKindMismatch            = errors.New("track kind mismatch")
	ErrNotFound                = errors.New("not found")
)

var kinds = []error{
	ErrInvalidCutPoint,
	ErrInvalidRange,
	ErrBoundaryViolation,
	ErrOverlapConflict,
	ErrToolModeConflict,
	ErrFadeExceedsClipDuration,
	ErrKindMismatch,
	ErrNotFound,
}

// Error is returned for every rejected command. The timeline it was applied
// to is left unchanged.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns the rejection sentinel wrapped by err, or nil
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func fail(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// classify maps model-level failures onto the rejection kinds
func classify(err error) error {
	if Kind(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, timeline.ErrOverlap):
		return fmt.Errorf("%w: %w", ErrOverlapConflict, err)
	case errors.Is(err, timeline.ErrFadeOverflow):
		return fmt.Errorf("%w: %w", ErrFadeExceedsClipDuration, err)
	case errors.Is(err, timeline.ErrTrackNotFound), errors.Is(err, timeline.ErrClipNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
}

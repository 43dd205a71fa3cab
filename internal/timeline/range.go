package timeline

import (
	"fmt"
	"time"
)

// Range is a half-open time interval [Start, End)
type Range struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns End - Start
func (r Range) Duration() time.Duration {
	return r.End - r.Start
}

// Empty reports whether the range covers no time
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Contains reports whether t lies inside the range
func (r Range) Contains(t time.Duration) bool {
	return t >= r.Start && t < r.End
}

// Overlaps reports whether two ranges share any instant
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// Intersect returns the common part of two ranges (possibly empty)
func (r Range) Intersect(o Range) Range {
	out := Range{Start: max(r.Start, o.Start), End: min(r.End, o.End)}
	if out.End < out.Start {
		out.End = out.Start
	}
	return out
}

// Shift moves the range by d
func (r Range) Shift(d time.Duration) Range {
	return Range{Start: r.Start + d, End: r.End + d}
}

func (r Range) String() string {
	return fmt.Sprintf("[%v,%v)", r.Start, r.End)
}

// Package timeline is the in-memory model of an edit: ordered tracks, each
// holding a start-sorted, non-overlapping run of clips. A gap is simply a
// range with no covering clip.
//
// A Timeline handed out as a snapshot is treated as immutable. Mutations
// happen on a Clone and are published only after Validate succeeds.
package timeline

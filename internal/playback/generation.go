package playback

import (
	"context"
	"sync"
)

// generations tracks the current decode generation per track. Requests
// join the current generation without advancing it, so concurrent
// composites of the same position do not disturb each other. Only
// invalidate (a seek) starts a new generation; it cancels every request of
// the old one, and their completions are no longer accepted.
type generations struct {
	mu     sync.Mutex
	tracks map[string]*generation
}

type generation struct {
	n      uint64
	ctx    context.Context
	cancel context.CancelFunc
}

func newGeneration(n uint64) *generation {
	ctx, cancel := context.WithCancel(context.Background())
	return &generation{n: n, ctx: ctx, cancel: cancel}
}

func newGenerations() *generations {
	return &generations{tracks: make(map[string]*generation)}
}

// begin tags a request on trackID with the current generation. The returned
// context ends with parent or when the generation is superseded; release
// must be called once the request is finished.
func (g *generations) begin(parent context.Context, trackID string) (context.Context, Tag, func()) {
	g.mu.Lock()
	gen, ok := g.tracks[trackID]
	if !ok {
		gen = newGeneration(0)
		g.tracks[trackID] = gen
	}
	tag := Tag{TrackID: trackID, Generation: gen.n}
	genCtx := gen.ctx
	g.mu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(genCtx, cancel)
	return ctx, tag, func() {
		stop()
		cancel()
	}
}

func (g *generations) current(tag Tag) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	gen, ok := g.tracks[tag.TrackID]
	return ok && gen.n == tag.Generation
}

// invalidate supersedes every in-flight request on every track
func (g *generations) invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, gen := range g.tracks {
		gen.cancel()
		g.tracks[id] = newGeneration(gen.n + 1)
	}
}

func (g *generations) latest(trackID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen, ok := g.tracks[trackID]; ok {
		return gen.n
	}
	return 0
}

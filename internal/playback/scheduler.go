// Package playback turns timeline snapshots into composited video frames and
// mixed audio buffers, and drives them to a sink while playing or scrubbing.
package playback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/timeline"
	"github.com/kikiluvv/splice/pkg/util"
)

// State is the transport state of the scheduler
type State int

const (
	Stopped State = iota
	Playing
	Scrubbing
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Scrubbing:
		return "scrubbing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config sets the output format of the scheduler
type Config struct {
	FrameRate     float64
	SampleRate    int
	Channels      int
	Width         int
	Height        int
	DecodeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FrameRate <= 0 {
		c.FrameRate = 30
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Channels <= 0 {
		c.Channels = 2
	}
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	return c
}

// Composite is the program output for one tick
type Composite struct {
	Time       time.Duration
	Video      *image.RGBA
	Audio      []float32
	SampleRate int
	Channels   int
	Tracks     []TrackOutput
}

// TrackOutput describes what a single track contributed to a composite
type TrackOutput struct {
	TrackID string
	Kind    timeline.Kind
	ClipIDs []string
	// Gap is set when no enabled clip covers the tick on this track
	Gap    bool
	Muted  bool
	Failed bool
	// Gain is the fade gain applied to a video layer
	Gain float64
	// Audio is the track's own buffer after fades, before mixing
	Audio []float32
}

// Stats counts scheduler activity since creation
type Stats struct {
	Requests       uint64
	Stale          uint64
	DecodeFailures uint64
	Presented      uint64
}

// Scheduler resolves the play-head against the timeline each tick, requests
// decodes for covered tracks and composites the result.
type Scheduler struct {
	logger  zerolog.Logger
	cfg     Config
	source  Source
	assets  Assets
	decoder Decoder
	sink    Sink
	gens    *generations
	now     func() time.Time

	requests  atomic.Uint64
	stale     atomic.Uint64
	failures  atomic.Uint64
	presented atomic.Uint64

	mu         sync.Mutex
	state      State
	resume     State
	playhead   time.Duration
	anchorPos  time.Duration
	anchorWall time.Time
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	preview chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a stopped scheduler. sink may be nil.
func New(logger zerolog.Logger, cfg Config, source Source, assets Assets, decoder Decoder, sink Sink) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger:  logging.WithComponent(logger, "playback"),
		cfg:     cfg.withDefaults(),
		source:  source,
		assets:  assets,
		decoder: decoder,
		sink:    sink,
		gens:    newGenerations(),
		now:     time.Now,
		preview: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.wg.Add(1)
	go s.previewLoop()
	return s
}

// Config returns the effective output format
func (s *Scheduler) Config() Config {
	return s.cfg
}

// State returns the current transport state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Playhead returns the current play-head position
func (s *Scheduler) Playhead() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

// Stats returns a snapshot of the activity counters
func (s *Scheduler) Stats() Stats {
	return Stats{
		Requests:       s.requests.Load(),
		Stale:          s.stale.Load(),
		DecodeFailures: s.failures.Load(),
		Presented:      s.presented.Load(),
	}
}

func (s *Scheduler) positionLocked() time.Duration {
	if s.state == Playing {
		return s.anchorPos + s.now().Sub(s.anchorWall)
	}
	return s.playhead
}

// Seek moves the play-head. In-flight decodes for the old position are
// abandoned. When not playing, a composite for the new position is
// presented to the sink.
func (s *Scheduler) Seek(t time.Duration) {
	if t < 0 {
		t = 0
	}

	s.mu.Lock()
	s.playhead = t
	playing := s.state == Playing
	if playing {
		s.anchorPos = t
		s.anchorWall = s.now()
	}
	s.mu.Unlock()

	s.gens.invalidate()
	if !playing {
		s.requestPreview()
	}
	s.logger.Debug().Dur("playhead", t).Msg("seek")
}

// Refresh re-presents the current position, picking up timeline edits such
// as fade changes while paused or scrubbing.
func (s *Scheduler) Refresh() {
	if s.State() != Playing {
		s.requestPreview()
	}
}

// Play starts playback from the play-head. While scrubbing, playback
// resumes when the scrub ends.
func (s *Scheduler) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Playing:
		return
	case Scrubbing:
		s.resume = Playing
		return
	}
	if end := s.source.Timeline().TotalDuration(); s.playhead >= end {
		s.playhead = 0
	}
	s.startLocked()
}

// Stop halts playback and keeps the play-head where it is
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == Scrubbing {
		s.resume = Stopped
		s.mu.Unlock()
		return
	}
	wait := s.haltLocked(Stopped)
	s.mu.Unlock()
	wait()
}

// BeginScrub enters scrubbing, pausing playback until EndScrub
func (s *Scheduler) BeginScrub() {
	s.mu.Lock()
	if s.state == Scrubbing {
		s.mu.Unlock()
		return
	}
	prev := s.state
	wait := s.haltLocked(Scrubbing)
	s.resume = prev
	s.mu.Unlock()
	wait()
	s.logger.Debug().Stringer("resume", prev).Msg("scrub started")
}

// Scrub moves the play-head while it is being dragged, entering scrubbing
// if needed
func (s *Scheduler) Scrub(t time.Duration) {
	s.BeginScrub()
	s.Seek(t)
}

// EndScrub leaves scrubbing and returns to the state it interrupted
func (s *Scheduler) EndScrub() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Scrubbing {
		return
	}
	s.state = Stopped
	if s.resume == Playing {
		s.startLocked()
	}
	s.logger.Debug().Stringer("state", s.state).Msg("scrub ended")
}

// Close stops playback and the preview worker
func (s *Scheduler) Close() {
	s.Stop()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) startLocked() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})

	s.state = Playing
	s.anchorPos = s.playhead
	s.anchorWall = s.now()
	s.loopCancel = cancel
	s.loopDone = done

	s.logger.Debug().Dur("from", s.playhead).Msg("playback started")
	go s.run(ctx, done)
}

// haltLocked leaves the playing state and returns a func that waits for the
// playback loop to exit. The wait must happen without s.mu held.
func (s *Scheduler) haltLocked(next State) func() {
	s.playhead = s.positionLocked()
	s.state = next

	cancel, done := s.loopCancel, s.loopDone
	s.loopCancel, s.loopDone = nil, nil
	if cancel == nil {
		return func() {}
	}
	cancel()
	s.logger.Debug().Dur("at", s.playhead).Msg("playback halted")
	return func() { <-done }
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(util.FrameInterval(s.cfg.FrameRate))
	defer ticker.Stop()

	for s.tick(ctx, done) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick presents one frame and reports whether the loop should continue
func (s *Scheduler) tick(ctx context.Context, done chan struct{}) bool {
	s.mu.Lock()
	if s.loopDone != done {
		s.mu.Unlock()
		return false
	}
	pos := s.positionLocked()
	if end := s.source.Timeline().TotalDuration(); pos >= end {
		s.playhead = end
		s.state = Stopped
		s.loopCancel()
		s.loopCancel, s.loopDone = nil, nil
		s.mu.Unlock()
		s.logger.Debug().Dur("at", end).Msg("end of timeline")
		return false
	}
	s.mu.Unlock()

	comp, err := s.Composite(ctx, pos)
	switch {
	case err == nil:
		s.present(comp)
	case errors.Is(err, ErrSuperseded), ctx.Err() != nil:
	default:
		s.logger.Warn().Err(err).Dur("at", pos).Msg("composite failed")
	}
	return true
}

func (s *Scheduler) requestPreview() {
	select {
	case s.preview <- struct{}{}:
	default:
	}
}

// previewLoop renders the play-head position whenever it moves while not
// playing. Requests coalesce, so only the latest position is presented.
func (s *Scheduler) previewLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.preview:
		}

		s.mu.Lock()
		at, playing := s.playhead, s.state == Playing
		s.mu.Unlock()
		if playing {
			continue
		}

		comp, err := s.Composite(s.ctx, at)
		if err != nil {
			if !errors.Is(err, ErrSuperseded) && s.ctx.Err() == nil {
				s.logger.Warn().Err(err).Dur("at", at).Msg("preview failed")
			}
			continue
		}

		s.mu.Lock()
		moved := s.playhead != at || s.state == Playing
		s.mu.Unlock()
		if !moved {
			s.present(comp)
		}
	}
}

func (s *Scheduler) present(c *Composite) {
	s.presented.Add(1)
	if s.sink != nil {
		s.sink.Present(c)
	}
}

type trackResult struct {
	out   TrackOutput
	clip  timeline.Clip
	frame image.Image
	spans []audioSpan
}

// audioSpan is the part of a track buffer filled from one clip
type audioSpan struct {
	clip   timeline.Clip
	offset int
	count  int
}

// Composite produces the program output at timeline time at from the
// current snapshot. Each track's decode runs concurrently tagged with the
// track's current generation; if a seek supersedes any of them before it
// completes the whole composite fails with ErrSuperseded. Concurrent
// composites without a seek in between do not affect each other. Fade gains are read from the newest
// snapshot after decoding so fade edits show up immediately.
func (s *Scheduler) Composite(ctx context.Context, at time.Duration) (*Composite, error) {
	tl := s.source.Timeline()
	tracks := tl.Tracks()
	interval := util.FrameInterval(s.cfg.FrameRate)
	tick := timeline.Range{Start: at, End: at + interval}
	frames := util.SamplesFor(interval, s.cfg.SampleRate)

	results := make([]trackResult, len(tracks))
	var g errgroup.Group
	for i, tr := range tracks {
		rctx, tag, release := s.gens.begin(ctx, tr.ID)
		g.Go(func() error {
			defer release()

			var err error
			if tr.Kind == timeline.KindVideo {
				results[i], err = s.videoTrack(rctx, tag, tr, at)
			} else {
				results[i], err = s.audioTrack(rctx, tag, tr, tick, frames)
			}
			if !s.gens.current(tag) {
				s.stale.Add(1)
				s.logger.Debug().
					Str("track", tag.TrackID).
					Uint64("generation", tag.Generation).
					Msg("dropping stale completion")
				return fmt.Errorf("track %s generation %d: %w", tag.TrackID, tag.Generation, ErrSuperseded)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	live := s.source.Timeline()
	comp := &Composite{
		Time:       at,
		Video:      newCanvas(s.cfg.Width, s.cfg.Height),
		Audio:      make([]float32, frames*s.cfg.Channels),
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Tracks:     make([]TrackOutput, len(results)),
	}

	// index 0 is the topmost track, so draw from the bottom up
	for i := len(results) - 1; i >= 0; i-- {
		r := &results[i]
		switch r.out.Kind {
		case timeline.KindVideo:
			if !r.out.Gap && !r.out.Muted {
				r.out.Gain = Gain(liveClip(live, r.clip), at)
				drawLayer(comp.Video, r.frame, r.out.Gain)
			}
		case timeline.KindAudio:
			for _, sp := range r.spans {
				region := r.out.Audio[sp.offset*s.cfg.Channels : (sp.offset+sp.count)*s.cfg.Channels]
				applyRamp(region, s.cfg.Channels, liveClip(live, sp.clip), at, sp.offset, s.cfg.SampleRate)
			}
			mixInto(comp.Audio, r.out.Audio)
		}
		comp.Tracks[i] = r.out
	}
	clampAudio(comp.Audio)
	return comp, nil
}

// liveClip returns c with the fades it has in the newest snapshot
func liveClip(live *timeline.Timeline, c timeline.Clip) timeline.Clip {
	if _, lc, ok := live.FindClip(c.ID); ok {
		c.FadeIn, c.FadeOut = lc.FadeIn, lc.FadeOut
	}
	return c
}

func (s *Scheduler) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.DecodeTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.DecodeTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Scheduler) decodeFailed(tag Tag, c timeline.Clip, err error) {
	s.failures.Add(1)
	s.logger.Warn().
		Err(fmt.Errorf("%w: %w", ErrDecodeFailure, err)).
		Str("track", tag.TrackID).
		Str("clip", c.ID).
		Str("asset", c.AssetID).
		Msg("substituting black/silence")
}

func (s *Scheduler) videoTrack(ctx context.Context, tag Tag, tr *timeline.Track, at time.Duration) (trackResult, error) {
	res := trackResult{out: TrackOutput{TrackID: tr.ID, Kind: tr.Kind, Muted: tr.Muted}}

	c, ok := tr.ClipAt(at)
	if !ok || c.Disabled {
		res.out.Gap = true
		return res, nil
	}
	res.clip = c
	res.out.ClipIDs = []string{c.ID}
	if tr.Muted || c.IsPlaceholder() {
		return res, nil
	}

	asset, ok := s.assets.Get(c.AssetID)
	if !ok {
		s.decodeFailed(tag, c, fmt.Errorf("asset %s not registered", c.AssetID))
		res.out.Failed = true
		return res, nil
	}

	dctx, cancel := s.requestContext(ctx)
	defer cancel()
	s.requests.Add(1)
	frame, err := s.decoder.DecodeFrame(dctx, FrameRequest{
		Tag:    tag,
		Asset:  asset,
		At:     c.SourceOffset(at),
		Width:  s.cfg.Width,
		Height: s.cfg.Height,
	})
	if err == nil && (frame == nil || frame.Bounds().Empty()) {
		err = fmt.Errorf("empty frame")
	}
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		s.decodeFailed(tag, c, err)
		res.out.Failed = true
		return res, nil
	}
	res.frame = frame
	return res, nil
}

func (s *Scheduler) audioTrack(ctx context.Context, tag Tag, tr *timeline.Track, tick timeline.Range, frames int) (trackResult, error) {
	ch := s.cfg.Channels
	res := trackResult{out: TrackOutput{
		TrackID: tr.ID,
		Kind:    tr.Kind,
		Muted:   tr.Muted,
		Gap:     true,
		Audio:   make([]float32, frames*ch),
	}}

	for _, c := range tr.ClipsOverlapping(tick) {
		if c.Disabled {
			continue
		}
		part := c.Span().Intersect(tick)
		first := util.SamplesFor(part.Start-tick.Start, s.cfg.SampleRate)
		last := min(util.SamplesFor(part.End-tick.Start, s.cfg.SampleRate), frames)
		if last <= first {
			continue
		}
		res.out.Gap = false
		res.out.ClipIDs = append(res.out.ClipIDs, c.ID)
		if tr.Muted || c.IsPlaceholder() {
			continue
		}

		asset, ok := s.assets.Get(c.AssetID)
		if !ok {
			s.decodeFailed(tag, c, fmt.Errorf("asset %s not registered", c.AssetID))
			res.out.Failed = true
			continue
		}

		dctx, cancel := s.requestContext(ctx)
		s.requests.Add(1)
		samples, err := s.decoder.DecodeAudio(dctx, AudioRequest{
			Tag:        tag,
			Asset:      asset,
			Range:      timeline.Range{Start: c.SourceOffset(part.Start), End: c.SourceOffset(part.End)},
			SampleRate: s.cfg.SampleRate,
			Channels:   ch,
		})
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			s.decodeFailed(tag, c, err)
			res.out.Failed = true
			continue
		}

		copy(res.out.Audio[first*ch:last*ch], samples)
		res.spans = append(res.spans, audioSpan{clip: c, offset: first, count: last - first})
	}
	return res, nil
}

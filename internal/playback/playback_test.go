package playback

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
)

const ms = time.Millisecond

var testConfig = Config{FrameRate: 25, SampleRate: 1000, Channels: 1, Width: 8, Height: 8}

type fakeAssets map[string]*media.Asset

func (f fakeAssets) Get(id string) (*media.Asset, bool) {
	a, ok := f[id]
	return a, ok
}

// fakeDecoder paints solid frames and constant audio per asset
type fakeDecoder struct {
	colors map[string]color.RGBA
	levels map[string]float32
	size   int
	fail   map[string]bool

	// block, when set, holds frame decodes until it is closed or ctx ends
	block     chan struct{}
	ignoreCtx bool
	started   chan Tag
	onDecode  func()

	mu     sync.Mutex
	frames []FrameRequest
	audio  []AudioRequest
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		colors: map[string]color.RGBA{
			"red":  {R: 255, A: 255},
			"blue": {B: 255, A: 255},
		},
		levels: map[string]float32{"tone": 0.5, "loud": 0.75},
		size:   8,
		fail:   map[string]bool{},
	}
}

func (d *fakeDecoder) DecodeFrame(ctx context.Context, req FrameRequest) (image.Image, error) {
	d.mu.Lock()
	d.frames = append(d.frames, req)
	d.mu.Unlock()

	if d.started != nil {
		d.started <- req.Tag
	}
	if d.block != nil {
		if d.ignoreCtx {
			<-d.block
		} else {
			select {
			case <-d.block:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if d.onDecode != nil {
		d.onDecode()
	}
	if d.fail[req.Asset.ID] {
		return nil, errors.New("corrupt packet")
	}
	img := image.NewRGBA(image.Rect(0, 0, d.size, d.size))
	draw.Draw(img, img.Bounds(), image.NewUniform(d.colors[req.Asset.ID]), image.Point{}, draw.Src)
	return img, nil
}

func (d *fakeDecoder) DecodeAudio(ctx context.Context, req AudioRequest) ([]float32, error) {
	d.mu.Lock()
	d.audio = append(d.audio, req)
	d.mu.Unlock()

	if d.fail[req.Asset.ID] {
		return nil, errors.New("truncated stream")
	}
	n := int(req.Range.Duration() * time.Duration(req.SampleRate) / time.Second)
	buf := make([]float32, n*req.Channels)
	for i := range buf {
		buf[i] = d.levels[req.Asset.ID]
	}
	return buf, nil
}

type harness struct {
	t       *testing.T
	tl      atomic.Pointer[timeline.Timeline]
	decoder *fakeDecoder
	sched   *Scheduler
	sink    chan *Composite
}

func newHarness(t *testing.T, tl *timeline.Timeline) *harness {
	t.Helper()
	h := &harness{t: t, decoder: newFakeDecoder(), sink: make(chan *Composite, 64)}
	h.tl.Store(tl)

	assets := fakeAssets{}
	for _, id := range []string{"red", "blue"} {
		assets[id] = &media.Asset{ID: id, Info: media.Info{Kind: media.KindVideo}}
	}
	for _, id := range []string{"tone", "loud"} {
		assets[id] = &media.Asset{ID: id, Info: media.Info{Kind: media.KindAudio, Channels: 1}}
	}

	sink := SinkFunc(func(c *Composite) {
		select {
		case h.sink <- c:
		default:
		}
	})
	h.sched = New(zerolog.Nop(), testConfig, SourceFunc(h.tl.Load), assets, h.decoder, sink)
	t.Cleanup(h.sched.Close)
	return h
}

func addClip(t *testing.T, tl *timeline.Timeline, trackID string, c timeline.Clip) {
	t.Helper()
	tr, ok := tl.Track(trackID)
	if !ok {
		t.Fatalf("track %s missing", trackID)
	}
	if err := tr.Insert(c); err != nil {
		t.Fatal(err)
	}
}

func newTimeline(t *testing.T, kinds ...timeline.Kind) *timeline.Timeline {
	t.Helper()
	tl := timeline.New()
	for i, k := range kinds {
		tr := timeline.NewTrack(string(k)+string(rune('0'+i)), "", k)
		if err := tl.AppendTrack(tr); err != nil {
			t.Fatal(err)
		}
	}
	return tl
}

func pixel(img *image.RGBA) color.RGBA {
	return img.RGBAAt(img.Bounds().Dx()/2, img.Bounds().Dy()/2)
}

func TestGainFadeIn(t *testing.T) {
	c := timeline.Clip{ID: "c", SourceOut: 10 * time.Second, Start: 2 * time.Second, FadeIn: time.Second}

	if g := Gain(c, 2*time.Second); g != 0 {
		t.Errorf("gain at clip start = %v, want 0", g)
	}
	if g := Gain(c, 3*time.Second); g != 1 {
		t.Errorf("gain at end of fade-in = %v, want 1", g)
	}
	prev := -1.0
	for at := 2 * time.Second; at <= 3*time.Second; at += 10 * ms {
		g := Gain(c, at)
		if g < prev {
			t.Fatalf("gain decreased at %v: %v < %v", at, g, prev)
		}
		prev = g
	}
	if g := Gain(c, 2500*ms); g != 0.5 {
		t.Errorf("gain halfway = %v", g)
	}
}

func TestGainFadeOutAndOutside(t *testing.T) {
	c := timeline.Clip{ID: "c", SourceOut: 4 * time.Second, FadeIn: time.Second, FadeOut: 2 * time.Second}

	tests := []struct {
		at   time.Duration
		want float64
	}{
		{-time.Second, 0},
		{500 * ms, 0.5},
		{time.Second, 1},
		{2 * time.Second, 1},
		{3 * time.Second, 0.5},
		{4 * time.Second, 0},
		{5 * time.Second, 0},
	}
	for _, tt := range tests {
		if got := Gain(c, tt.at); got != tt.want {
			t.Errorf("Gain(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestCompositeTopmostTrackWins(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo, timeline.KindVideo)
	top, bottom := tl.Tracks()[0].ID, tl.Tracks()[1].ID
	addClip(t, tl, top, timeline.Clip{ID: "t", AssetID: "red", SourceOut: time.Second})
	addClip(t, tl, bottom, timeline.Clip{ID: "b", AssetID: "blue", SourceOut: 2 * time.Second})

	h := newHarness(t, tl)
	ctx := context.Background()

	comp, err := h.sched.Composite(ctx, 500*ms)
	if err != nil {
		t.Fatal(err)
	}
	if p := pixel(comp.Video); p != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("expected top track red, got %v", p)
	}

	comp, err = h.sched.Composite(ctx, 1500*ms)
	if err != nil {
		t.Fatal(err)
	}
	if p := pixel(comp.Video); p != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("expected bottom track through the gap, got %v", p)
	}
	if !comp.Tracks[0].Gap || comp.Tracks[1].Gap {
		t.Errorf("gap flags = %v/%v", comp.Tracks[0].Gap, comp.Tracks[1].Gap)
	}

	comp, err = h.sched.Composite(ctx, 3*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if p := pixel(comp.Video); p != (color.RGBA{A: 255}) {
		t.Errorf("expected black past the end, got %v", p)
	}
}

func TestCompositeScalesFrames(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: time.Second})

	h := newHarness(t, tl)
	h.decoder.size = 3

	comp, err := h.sched.Composite(context.Background(), 100*ms)
	if err != nil {
		t.Fatal(err)
	}
	if got := comp.Video.Bounds(); got.Dx() != 8 || got.Dy() != 8 {
		t.Fatalf("canvas size %v", got)
	}
	for _, pt := range []image.Point{{0, 0}, {7, 7}, {0, 7}} {
		if p := comp.Video.RGBAAt(pt.X, pt.Y); p.R < 250 {
			t.Errorf("pixel %v not covered by scaled frame: %v", pt, p)
		}
	}
}

func TestCompositeAppliesFadeToVideo(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: 4 * time.Second, FadeIn: time.Second})

	h := newHarness(t, tl)
	comp, err := h.sched.Composite(context.Background(), 500*ms)
	if err != nil {
		t.Fatal(err)
	}
	if g := comp.Tracks[0].Gain; g != 0.5 {
		t.Errorf("gain = %v", g)
	}
	if p := pixel(comp.Video); p.R < 125 || p.R > 130 {
		t.Errorf("expected half-faded red over black, got %v", p)
	}
}

func TestCompositeReadsLiveFades(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	trackID := tl.Tracks()[0].ID
	addClip(t, tl, trackID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: 4 * time.Second})

	h := newHarness(t, tl)

	// the fade changes while the frame is being decoded
	edited := tl.Clone()
	tr, _ := edited.Track(trackID)
	c, _ := tr.Clip("a")
	c.FadeIn = 2 * time.Second
	if err := tr.Replace("a", c); err != nil {
		t.Fatal(err)
	}
	h.decoder.onDecode = func() { h.tl.Store(edited) }

	comp, err := h.sched.Composite(context.Background(), 500*ms)
	if err != nil {
		t.Fatal(err)
	}
	if g := comp.Tracks[0].Gain; g != 0.25 {
		t.Errorf("expected gain from the edited fade, got %v", g)
	}
}

func TestCompositeGapIsSilentRegardlessOfOtherTracks(t *testing.T) {
	tl := newTimeline(t, timeline.KindAudio, timeline.KindAudio)
	a, b := tl.Tracks()[0].ID, tl.Tracks()[1].ID
	addClip(t, tl, a, timeline.Clip{ID: "x", AssetID: "tone", SourceOut: 2 * time.Second})
	addClip(t, tl, b, timeline.Clip{ID: "y", AssetID: "tone", SourceOut: 500 * ms})

	h := newHarness(t, tl)
	comp, err := h.sched.Composite(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	gap := comp.Tracks[1]
	if !gap.Gap {
		t.Fatal("expected gap on second track")
	}
	for i, v := range gap.Audio {
		if v != 0 {
			t.Fatalf("gap track sample %d = %v", i, v)
		}
	}
	if len(comp.Audio) != 40 {
		t.Fatalf("expected 40 samples per tick, got %d", len(comp.Audio))
	}
	for i, v := range comp.Audio {
		if v != 0.5 {
			t.Fatalf("mix sample %d = %v, want 0.5", i, v)
		}
	}
}

func TestCompositeSplitsAudioAtClipEdge(t *testing.T) {
	tl := newTimeline(t, timeline.KindAudio)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "x", AssetID: "tone", SourceOut: 1020 * ms})

	h := newHarness(t, tl)
	comp, err := h.sched.Composite(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range comp.Audio {
		want := float32(0)
		if i < 20 {
			want = 0.5
		}
		if v != want {
			t.Fatalf("sample %d = %v, want %v", i, v, want)
		}
	}
}

func TestCompositeAudioFadeAndClamp(t *testing.T) {
	tl := newTimeline(t, timeline.KindAudio, timeline.KindAudio)
	a, b := tl.Tracks()[0].ID, tl.Tracks()[1].ID
	addClip(t, tl, a, timeline.Clip{ID: "x", AssetID: "loud", SourceOut: 2 * time.Second})
	addClip(t, tl, b, timeline.Clip{ID: "y", AssetID: "loud", SourceOut: 2 * time.Second, FadeIn: 40 * ms})

	h := newHarness(t, tl)
	comp, err := h.sched.Composite(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	faded := comp.Tracks[1].Audio
	if faded[0] != 0 {
		t.Errorf("first faded sample = %v", faded[0])
	}
	for i := 1; i < len(faded); i++ {
		if faded[i] < faded[i-1] {
			t.Fatalf("fade-in not monotonic at %d", i)
		}
	}
	if last := comp.Audio[len(comp.Audio)-1]; last != 1 {
		t.Errorf("mix should clamp at 1, got %v", last)
	}
}

func TestCompositeMutedAndDisabled(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo, timeline.KindAudio)
	v, a := tl.Tracks()[0], tl.Tracks()[1]
	addClip(t, tl, v.ID, timeline.Clip{ID: "pic", AssetID: "red", SourceOut: time.Second, Disabled: true})
	addClip(t, tl, a.ID, timeline.Clip{ID: "snd", AssetID: "tone", SourceOut: time.Second})
	a.Muted = true

	h := newHarness(t, tl)
	comp, err := h.sched.Composite(context.Background(), 100*ms)
	if err != nil {
		t.Fatal(err)
	}
	if p := pixel(comp.Video); p != (color.RGBA{A: 255}) {
		t.Errorf("disabled clip drawn: %v", p)
	}
	for _, s := range comp.Audio {
		if s != 0 {
			t.Fatal("muted track audible")
		}
	}
	if len(h.decoder.frames)+len(h.decoder.audio) != 0 {
		t.Error("muted and disabled clips should not be decoded")
	}
}

func TestDecodeFailureSubstitutesBlackAndSilence(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo, timeline.KindVideo, timeline.KindAudio)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "bad", AssetID: "red", SourceOut: time.Second})
	addClip(t, tl, tl.Tracks()[1].ID, timeline.Clip{ID: "under", AssetID: "blue", SourceOut: time.Second})
	addClip(t, tl, tl.Tracks()[2].ID, timeline.Clip{ID: "snd", AssetID: "tone", SourceOut: time.Second})

	h := newHarness(t, tl)
	h.decoder.fail["red"] = true
	h.decoder.fail["tone"] = true

	comp, err := h.sched.Composite(context.Background(), 100*ms)
	if err != nil {
		t.Fatalf("decode failures must not fail the composite: %v", err)
	}
	if p := pixel(comp.Video); p != (color.RGBA{A: 255}) {
		t.Errorf("failed top layer should be black, got %v", p)
	}
	if !comp.Tracks[0].Failed || !comp.Tracks[2].Failed {
		t.Error("failed tracks not flagged")
	}
	for _, s := range comp.Audio {
		if s != 0 {
			t.Fatal("failed audio should be silence")
		}
	}
	if got := h.sched.Stats().DecodeFailures; got != 2 {
		t.Errorf("DecodeFailures = %d", got)
	}
}

func TestSeekSupersedesInFlightDecode(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: 10 * time.Second})

	h := newHarness(t, tl)
	h.decoder.block = make(chan struct{})
	h.decoder.started = make(chan Tag, 8)

	errc := make(chan error, 1)
	go func() {
		_, err := h.sched.Composite(context.Background(), time.Second)
		errc <- err
	}()

	<-h.decoder.started
	h.sched.Seek(5 * time.Second)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("seek did not abandon the in-flight decode")
	}
	if h.sched.Stats().Stale == 0 {
		t.Error("stale completion not counted")
	}
	close(h.decoder.block)
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	trackID := tl.Tracks()[0].ID
	addClip(t, tl, trackID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: 10 * time.Second})

	h := newHarness(t, tl)
	h.decoder.block = make(chan struct{})
	h.decoder.ignoreCtx = true
	h.decoder.started = make(chan Tag, 8)

	errc := make(chan error, 1)
	go func() {
		_, err := h.sched.Composite(context.Background(), time.Second)
		errc <- err
	}()

	tag := <-h.decoder.started
	h.sched.gens.invalidate()
	if h.sched.gens.latest(trackID) <= tag.Generation {
		t.Fatal("generation did not advance")
	}
	close(h.decoder.block)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("late completion accepted: %v", err)
	}
}

func TestSeekPresentsPreviewWhenStopped(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: 10 * time.Second})

	h := newHarness(t, tl)
	h.sched.Seek(3 * time.Second)

	select {
	case c := <-h.sink:
		if c.Time != 3*time.Second {
			t.Errorf("preview time %v", c.Time)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no preview presented")
	}
	if got := h.sched.Playhead(); got != 3*time.Second {
		t.Errorf("playhead = %v", got)
	}
}

func TestTransportStates(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: time.Hour})

	h := newHarness(t, tl)
	s := h.sched

	if s.State() != Stopped {
		t.Fatalf("initial state %v", s.State())
	}
	s.Play()
	if s.State() != Playing {
		t.Fatalf("after play: %v", s.State())
	}
	s.BeginScrub()
	if s.State() != Scrubbing {
		t.Fatalf("after begin scrub: %v", s.State())
	}
	s.Scrub(10 * time.Second)
	s.EndScrub()
	if s.State() != Playing {
		t.Fatalf("scrub should return to playing, got %v", s.State())
	}
	if p := s.Playhead(); p < 10*time.Second {
		t.Errorf("playback should resume from the scrub position, at %v", p)
	}

	s.Stop()
	if s.State() != Stopped {
		t.Fatalf("after stop: %v", s.State())
	}
	s.Scrub(time.Second)
	if s.State() != Scrubbing {
		t.Fatalf("scrub from stopped: %v", s.State())
	}
	s.EndScrub()
	if s.State() != Stopped {
		t.Fatalf("scrub should return to stopped, got %v", s.State())
	}
	if p := s.Playhead(); p != time.Second {
		t.Errorf("playhead = %v", p)
	}
}

func TestPlaybackStopsAtEnd(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: 120 * ms})

	h := newHarness(t, tl)
	h.sched.Play()

	deadline := time.After(3 * time.Second)
	for h.sched.State() == Playing {
		select {
		case <-deadline:
			t.Fatal("playback never reached the end")
		case <-time.After(10 * ms):
		}
	}
	if p := h.sched.Playhead(); p != 120*ms {
		t.Errorf("playhead should rest at the end, got %v", p)
	}
	if h.sched.Stats().Presented == 0 {
		t.Error("no frames presented")
	}
}

func TestCompositeWhilePlayingIsNotSuperseded(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: time.Hour})

	h := newHarness(t, tl)
	// slower than one 40ms frame, so ticks and explicit composites overlap
	h.decoder.onDecode = func() { time.Sleep(60 * ms) }
	h.sched.Play()
	defer h.sched.Stop()

	for i := 0; i < 5; i++ {
		comp, err := h.sched.Composite(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("composite %d: %v", i, err)
		}
		if got := pixel(comp.Video); got != (color.RGBA{R: 255, A: 255}) {
			t.Errorf("composite %d pixel = %v", i, got)
		}
	}
	if got := h.sched.Stats().Stale; got != 0 {
		t.Errorf("Stale = %d without a seek", got)
	}
}

func TestConcurrentCompositesShareGeneration(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	trackID := tl.Tracks()[0].ID
	addClip(t, tl, trackID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: 10 * time.Second})

	h := newHarness(t, tl)
	h.decoder.block = make(chan struct{})
	h.decoder.started = make(chan Tag, 8)

	errc := make(chan error, 2)
	for _, at := range []time.Duration{time.Second, 2 * time.Second} {
		go func() {
			_, err := h.sched.Composite(context.Background(), at)
			errc <- err
		}()
	}

	first, second := <-h.decoder.started, <-h.decoder.started
	if first.Generation != second.Generation {
		t.Errorf("generations %d and %d, want the same", first.Generation, second.Generation)
	}
	if got := h.sched.gens.latest(trackID); got != first.Generation {
		t.Errorf("latest generation = %d, want %d", got, first.Generation)
	}
	close(h.decoder.block)

	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil {
			t.Errorf("composite error = %v", err)
		}
	}
}

func TestCancelledCompositeLeavesOthersRunning(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	addClip(t, tl, tl.Tracks()[0].ID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: 10 * time.Second})

	h := newHarness(t, tl)
	h.decoder.block = make(chan struct{})
	h.decoder.started = make(chan Tag, 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := h.sched.Composite(ctx, time.Second)
		cancelled <- err
	}()
	<-h.decoder.started

	other := make(chan error, 1)
	go func() {
		_, err := h.sched.Composite(context.Background(), time.Second)
		other <- err
	}()
	<-h.decoder.started

	cancel()
	if err := <-cancelled; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled composite error = %v", err)
	}
	close(h.decoder.block)
	if err := <-other; err != nil {
		t.Errorf("unrelated composite error = %v", err)
	}
}

func TestRefreshKeepsGeneration(t *testing.T) {
	tl := newTimeline(t, timeline.KindVideo)
	trackID := tl.Tracks()[0].ID
	addClip(t, tl, trackID, timeline.Clip{ID: "a", AssetID: "red", SourceOut: 10 * time.Second})

	h := newHarness(t, tl)
	h.sched.Seek(time.Second)
	<-h.sink
	before := h.sched.gens.latest(trackID)

	h.sched.Refresh()
	<-h.sink
	if got := h.sched.gens.latest(trackID); got != before {
		t.Errorf("generation moved from %d to %d on refresh", before, got)
	}
}

package edit

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
)

const sec = time.Second

type fixture struct {
	t      *testing.T
	engine *Engine
	tl     *timeline.Timeline
	state  State
	video  string
	audio  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := media.NewRegistry()
	for _, a := range []*media.Asset{
		{ID: "clipA", Path: "/m/a.mp4", Info: media.Info{Kind: media.KindVideo, Duration: 20 * sec, FrameRate: 25, SampleRate: 48000, Channels: 2}},
		{ID: "music", Path: "/m/music.wav", Info: media.Info{Kind: media.KindAudio, Duration: 60 * sec, SampleRate: 48000, Channels: 2}},
		{ID: "still", Path: "/m/title.png", Info: media.Info{Kind: media.KindImage, Duration: 5 * sec}},
	} {
		if err := reg.Add(a); err != nil {
			t.Fatal(err)
		}
	}

	f := &fixture{t: t, engine: NewEngine(zerolog.Nop(), reg), tl: timeline.New()}
	f.video = f.mustApply(&AddTrack{Kind: timeline.KindVideo, Label: "V1", NewID: "v1"}).(*AddTrack).NewID
	f.audio = f.mustApply(&AddTrack{Kind: timeline.KindAudio, Label: "A1", NewID: "a1"}).(*AddTrack).NewID
	return f
}

func (f *fixture) apply(cmd Command) error {
	next, err := f.engine.Apply(f.tl, f.state, cmd)
	f.tl = next
	return err
}

func (f *fixture) mustApply(cmd Command) Command {
	f.t.Helper()
	if err := f.apply(cmd); err != nil {
		f.t.Fatalf("%s: %v", cmd.Name(), err)
	}
	return cmd
}

func (f *fixture) insert(track, id, asset string, start, in, out time.Duration) {
	f.t.Helper()
	f.mustApply(&InsertClip{TrackID: track, AssetID: asset, SourceIn: in, SourceOut: out, Start: start, NewID: id})
}

func (f *fixture) clip(id string) timeline.Clip {
	f.t.Helper()
	_, c, ok := f.tl.FindClip(id)
	if !ok {
		f.t.Fatalf("clip %s not found", id)
	}
	return c
}

func (f *fixture) expectRejected(cmd Command, kind error) {
	f.t.Helper()
	before := f.tl
	err := f.apply(cmd)
	if !errors.Is(err, kind) {
		f.t.Fatalf("%s: expected %v, got %v", cmd.Name(), kind, err)
	}
	var editErr *Error
	if !errors.As(err, &editErr) {
		f.t.Fatalf("%s: expected *edit.Error, got %T", cmd.Name(), err)
	}
	if f.tl != before {
		f.t.Fatalf("%s: rejected command replaced the timeline", cmd.Name())
	}
}

func TestScenarioRippleDeleteClosesGap(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.insert(f.video, "B", "clipA", 7*sec, 10*sec, 13*sec)
	f.insert(f.audio, "M", "music", 6*sec, 0, 4*sec)

	f.mustApply(&RippleDelete{ClipID: "A", CloseGap: true})

	b := f.clip("B")
	if b.Start != 0 || b.Duration() != 3*sec {
		t.Errorf("expected B at [0,3s), got start=%v dur=%v", b.Start, b.Duration())
	}
	if m := f.clip("M"); m.Start != 6*sec {
		t.Errorf("other track moved without all-tracks scope: %v", m.Start)
	}
}

func TestRippleDeleteWithoutCloseGapKeepsGap(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.insert(f.video, "B", "clipA", 7*sec, 10*sec, 13*sec)

	f.mustApply(&RippleDelete{ClipID: "A"})
	if b := f.clip("B"); b.Start != 2*sec {
		t.Errorf("expected B shifted by 5s to 2s, got %v", b.Start)
	}
}

func TestRippleDeleteAllTracksKeepsAlignment(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.insert(f.video, "B", "clipA", 7*sec, 10*sec, 13*sec)
	f.insert(f.audio, "M", "music", 6*sec, 0, 4*sec)

	f.mustApply(&RippleDelete{ClipID: "A", AllTracks: true})

	if b := f.clip("B"); b.Start != 2*sec {
		t.Errorf("B should shift by 5s to 2s, got %v", b.Start)
	}
	if m := f.clip("M"); m.Start != sec {
		t.Errorf("M should shift by 5s to 1s, got %v", m.Start)
	}
}

func TestRippleDeleteAllTracksTrimsStraddlingClips(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 2*sec, 0, 2*sec)
	f.insert(f.audio, "M", "music", 0, 0, 10*sec)
	f.mustApply(&SetFade{ClipID: "M", FadeIn: sec, FadeOut: sec})

	f.mustApply(&RippleDelete{ClipID: "A", AllTracks: true})

	tr, _ := f.tl.Track(f.audio)
	clips := tr.Clips()
	if len(clips) != 2 {
		t.Fatalf("expected music split around the removed range, got %d clips", len(clips))
	}
	left, right := clips[0], clips[1]
	if left.ID != "M" || left.Span() != (timeline.Range{Start: 0, End: 2 * sec}) {
		t.Errorf("left piece = %s %v", left.ID, left.Span())
	}
	if right.Start != 2*sec || right.SourceIn != 4*sec || right.SourceOut != 10*sec {
		t.Errorf("right piece = start %v source [%v,%v)", right.Start, right.SourceIn, right.SourceOut)
	}
	if left.FadeIn != sec || left.FadeOut != 0 || right.FadeIn != 0 || right.FadeOut != sec {
		t.Errorf("fades not kept at outer edges: %v/%v %v/%v", left.FadeIn, left.FadeOut, right.FadeIn, right.FadeOut)
	}
}

func TestRippleDeleteShiftsByExactDuration(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 2*sec)
	f.insert(f.video, "B", "clipA", 2*sec, 2*sec, 5*sec)
	f.insert(f.video, "C", "clipA", 9*sec, 5*sec, 6*sec)
	f.insert(f.video, "D", "clipA", 12*sec, 6*sec, 8*sec)

	tr, _ := f.tl.Track(f.video)
	before := tr.Clips()
	endBefore := tr.End()

	d := f.clip("B").Duration()
	f.mustApply(&RippleDelete{ClipID: "B"})

	tr, _ = f.tl.Track(f.video)
	after := tr.Clips()
	if tr.End() != endBefore-d {
		t.Errorf("track end %v, want %v", tr.End(), endBefore-d)
	}
	for _, old := range before[2:] {
		c := f.clip(old.ID)
		if c.Start != old.Start-d {
			t.Errorf("clip %s start %v, want %v", old.ID, c.Start, old.Start-d)
		}
	}
	if after[0].Start != 0 {
		t.Errorf("earlier clip moved")
	}
}

func TestRippleDeleteRange(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.insert(f.video, "B", "clipA", 7*sec, 10*sec, 13*sec)

	// Close the gap only
	f.mustApply(&RippleDeleteRange{TrackID: f.video, Range: timeline.Range{Start: 5 * sec, End: 7 * sec}})
	if b := f.clip("B"); b.Start != 5*sec || b.SourceIn != 10*sec {
		t.Errorf("gap close moved B to %v (source %v)", b.Start, b.SourceIn)
	}

	f.expectRejected(&RippleDeleteRange{TrackID: f.video, Range: timeline.Range{Start: 6 * sec, End: 9 * sec}}, ErrInvalidRange)
	f.expectRejected(&RippleDeleteRange{TrackID: f.video, Range: timeline.Range{Start: -sec, End: sec}}, ErrInvalidRange)
	f.expectRejected(&RippleDeleteRange{TrackID: f.video, Range: timeline.Range{Start: 2 * sec, End: 2 * sec}}, ErrInvalidRange)

	// Cut into the middle of A
	f.mustApply(&RippleDeleteRange{TrackID: f.video, Range: timeline.Range{Start: sec, End: 2 * sec}})
	tr, _ := f.tl.Track(f.video)
	if tr.End() != 7*sec || tr.Len() != 3 {
		t.Errorf("expected 3 clips ending at 7s, got %d ending %v", tr.Len(), tr.End())
	}
}

func TestScenarioBladeKeepsOuterFades(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "C", "clipA", 0, 0, 10*sec)
	f.mustApply(&SetFade{ClipID: "C", FadeIn: 2 * sec, FadeOut: 2 * sec})

	split := f.mustApply(&Split{TrackID: f.video, At: 5 * sec}).(*Split)

	c1, c2 := f.clip("C"), f.clip(split.NewID)
	if c1.Span() != (timeline.Range{Start: 0, End: 5 * sec}) || c1.FadeIn != 2*sec || c1.FadeOut != 0 {
		t.Errorf("C1 = %v fades %v/%v", c1.Span(), c1.FadeIn, c1.FadeOut)
	}
	if c2.Span() != (timeline.Range{Start: 5 * sec, End: 10 * sec}) || c2.FadeIn != 0 || c2.FadeOut != 2*sec {
		t.Errorf("C2 = %v fades %v/%v", c2.Span(), c2.FadeIn, c2.FadeOut)
	}
	if c1.SourceOut != 5*sec || c2.SourceIn != 5*sec {
		t.Errorf("source split mismatch: %v / %v", c1.SourceOut, c2.SourceIn)
	}
}

func TestSplitMapsToSourceOffset(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "C", "clipA", 3*sec, 4*sec, 12*sec)

	split := f.mustApply(&Split{TrackID: f.video, At: 5 * sec, NewID: "C2"}).(*Split)
	if split.NewID != "C2" {
		t.Fatalf("provided id not used")
	}
	if got := f.clip("C").SourceOut; got != 6*sec {
		t.Errorf("cut should map to source 6s, got %v", got)
	}
	if got := f.clip("C2").SourceIn; got != 6*sec {
		t.Errorf("right half source in %v", got)
	}
}

func TestSplitRejectsBoundaries(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.insert(f.video, "B", "clipA", 5*sec, 5*sec, 10*sec)

	for _, at := range []time.Duration{0, 5 * sec, 10 * sec, 30 * sec} {
		f.expectRejected(&Split{TrackID: f.video, At: at}, ErrInvalidCutPoint)
	}
	f.expectRejected(&Split{TrackID: "nope", At: sec}, ErrNotFound)
}

func TestSplitThenJoinRestoresClip(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "C", "clipA", 2*sec, sec, 9*sec)
	f.mustApply(&SetFade{ClipID: "C", FadeIn: 500 * time.Millisecond, FadeOut: 1500 * time.Millisecond})
	orig := f.clip("C")

	for _, at := range []time.Duration{2500 * time.Millisecond, 3 * sec, 6500 * time.Millisecond, 8500 * time.Millisecond} {
		f.mustApply(&Split{TrackID: f.video, At: at})
		f.mustApply(&Join{TrackID: f.video, At: at})
		if got := f.clip("C"); got != orig {
			t.Fatalf("split/join at %v: got %+v, want %+v", at, got, orig)
		}
		tr, _ := f.tl.Track(f.video)
		if tr.Len() != 1 {
			t.Fatalf("expected one clip after join, got %d", tr.Len())
		}
	}
}

func TestJoinRejectsDiscontinuousClips(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.insert(f.video, "B", "clipA", 5*sec, 6*sec, 8*sec)
	f.expectRejected(&Join{TrackID: f.video, At: 5 * sec}, ErrInvalidCutPoint)
	f.expectRejected(&Join{TrackID: f.video, At: 2 * sec}, ErrInvalidCutPoint)
}

func TestTrim(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 4*sec)
	f.insert(f.video, "B", "clipA", 6*sec, 6*sec, 10*sec)
	f.insert(f.video, "C", "clipA", 10*sec, 15*sec, 18*sec)

	// Extend B's head into the gap
	f.mustApply(&Trim{ClipID: "B", Edge: EdgeStart, To: 5 * sec})
	if b := f.clip("B"); b.Start != 5*sec || b.SourceIn != 5*sec || b.SourceOut != 10*sec {
		t.Errorf("head trim: %+v", b)
	}
	// Shorten B's tail
	f.mustApply(&Trim{ClipID: "B", Edge: EdgeEnd, To: 9 * sec})
	if b := f.clip("B"); b.End() != 9*sec || b.SourceOut != 9*sec {
		t.Errorf("tail trim: %+v", b)
	}

	for _, cmd := range []*Trim{
		{ClipID: "B", Edge: EdgeStart, To: 3 * sec}, // into neighbour
		{ClipID: "A", Edge: EdgeStart, To: -sec},    // before zero
		{ClipID: "B", Edge: EdgeEnd, To: 11 * sec},  // into neighbour
		{ClipID: "C", Edge: EdgeEnd, To: 16 * sec},  // past asset end
		{ClipID: "A", Edge: EdgeEnd, To: 0},         // collapse
	} {
		f.expectRejected(cmd, ErrBoundaryViolation)
	}
}

func TestTrimShrinksFades(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 10*sec)
	f.mustApply(&SetFade{ClipID: "A", FadeIn: 4 * sec, FadeOut: 4 * sec})

	f.mustApply(&Trim{ClipID: "A", Edge: EdgeEnd, To: 6 * sec})
	a := f.clip("A")
	if a.FadeIn != 4*sec || a.FadeOut != 2*sec {
		t.Errorf("tail trim should shrink fade-out: %v/%v", a.FadeIn, a.FadeOut)
	}

	f.mustApply(&Trim{ClipID: "A", Edge: EdgeStart, To: 3 * sec})
	a = f.clip("A")
	if a.FadeIn != sec || a.FadeOut != 2*sec {
		t.Errorf("head trim should shrink fade-in: %v/%v", a.FadeIn, a.FadeOut)
	}
}

func TestTrimStillIsUnbounded(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "T", "still", 0, 0, 5*sec)
	f.mustApply(&Trim{ClipID: "T", Edge: EdgeEnd, To: 30 * sec})
	if got := f.clip("T").Duration(); got != 30*sec {
		t.Errorf("still should extend freely, got %v", got)
	}
}

func TestScenarioMoveBlockedInBladeMode(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)

	f.state.Tool = ToolBlade
	f.expectRejected(&Move{ClipID: "A", Start: 10 * sec}, ErrToolModeConflict)
	if a := f.clip("A"); a.Start != 0 {
		t.Errorf("clip moved despite rejection")
	}

	// Blade mode does not gate cutting
	f.mustApply(&Split{TrackID: f.video, At: 2 * sec})

	f.state.Tool = ToolSelect
	f.mustApply(&Move{ClipID: "A", Start: 10 * sec})
	if a := f.clip("A"); a.Start != 10*sec {
		t.Errorf("move in select mode failed: %v", a.Start)
	}
}

func TestMove(t *testing.T) {
	f := newFixture(t)
	f.mustApply(&AddTrack{Kind: timeline.KindVideo, NewID: "v2"})
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.insert(f.video, "B", "clipA", 7*sec, 5*sec, 8*sec)

	f.expectRejected(&Move{ClipID: "A", Start: 6 * sec}, ErrOverlapConflict)
	f.expectRejected(&Move{ClipID: "A", TrackID: f.audio, Start: 0}, ErrKindMismatch)
	f.expectRejected(&Move{ClipID: "A", Start: -sec}, ErrInvalidRange)
	f.expectRejected(&Move{ClipID: "missing", Start: 0}, ErrNotFound)

	// Overlapping its own old position is fine
	f.mustApply(&Move{ClipID: "A", Start: sec})
	if a := f.clip("A"); a.Start != sec {
		t.Errorf("self-overlapping move failed")
	}

	f.mustApply(&Move{ClipID: "B", TrackID: "v2", Start: 0})
	tr, _, _ := f.tl.FindClip("B")
	if tr.ID != "v2" {
		t.Errorf("B should be on v2, found on %s", tr.ID)
	}
	if b := f.clip("B"); b.TrackID != "v2" {
		t.Errorf("clip track id not updated: %s", b.TrackID)
	}
}

func TestSetFade(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 4*sec)

	f.expectRejected(&SetFade{ClipID: "A", FadeIn: 3 * sec, FadeOut: 2 * sec}, ErrFadeExceedsClipDuration)
	f.expectRejected(&SetFade{ClipID: "A", FadeIn: -sec}, ErrInvalidRange)

	f.mustApply(&SetFade{ClipID: "A", FadeIn: 2 * sec, FadeOut: 2 * sec})
	if a := f.clip("A"); a.FadeIn != 2*sec || a.FadeOut != 2*sec {
		t.Errorf("fades not applied: %+v", a)
	}
}

func TestInsertClip(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)

	f.expectRejected(&InsertClip{TrackID: f.video, AssetID: "clipA", SourceOut: 2 * sec, Start: 4 * sec}, ErrOverlapConflict)
	f.expectRejected(&InsertClip{TrackID: f.video, AssetID: "clipA", SourceIn: 19 * sec, SourceOut: 21 * sec, Start: 10 * sec}, ErrBoundaryViolation)
	f.expectRejected(&InsertClip{TrackID: f.video, AssetID: "music", SourceOut: 2 * sec, Start: 10 * sec}, ErrKindMismatch)
	f.expectRejected(&InsertClip{TrackID: f.audio, AssetID: "still", SourceOut: 2 * sec, Start: 0}, ErrKindMismatch)
	f.expectRejected(&InsertClip{TrackID: f.video, AssetID: "ghost", SourceOut: 2 * sec}, ErrNotFound)
	f.expectRejected(&InsertClip{TrackID: f.video, AssetID: "clipA", SourceIn: 2 * sec, SourceOut: 2 * sec, Start: 10 * sec}, ErrInvalidRange)

	// Video assets feed audio tracks with their sound
	f.insert(f.audio, "snd", "clipA", 0, 0, 5*sec)
	// Placeholders need no asset
	f.insert(f.video, "black", "", 5*sec, 0, 2*sec)
	if !f.clip("black").IsPlaceholder() {
		t.Error("expected placeholder clip")
	}
}

func TestLiftLeavesGap(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.insert(f.video, "B", "clipA", 5*sec, 5*sec, 10*sec)
	f.mustApply(&Lift{ClipID: "A"})
	if b := f.clip("B"); b.Start != 5*sec {
		t.Errorf("lift should not ripple")
	}
	gaps, _ := f.tl.GapsIn(f.video, timeline.Range{Start: 0, End: 10 * sec})
	if len(gaps) != 1 || gaps[0] != (timeline.Range{Start: 0, End: 5 * sec}) {
		t.Errorf("gaps = %v", gaps)
	}
}

func TestBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.insert(f.video, "B", "clipA", 6*sec, 5*sec, 8*sec)

	f.expectRejected(&Batch{Label: "shuffle", Commands: []Command{
		&SetFade{ClipID: "A", FadeIn: sec},
		&Move{ClipID: "A", Start: 20 * sec},
		&Move{ClipID: "B", Start: 19 * sec},
	}}, ErrOverlapConflict)

	if a := f.clip("A"); a.FadeIn != 0 || a.Start != 0 {
		t.Errorf("partial batch leaked: %+v", a)
	}
}

func TestSetClipEnabledAndTrackMute(t *testing.T) {
	f := newFixture(t)
	f.insert(f.video, "A", "clipA", 0, 0, 5*sec)
	f.mustApply(&SetClipEnabled{ClipID: "A", Enabled: false})
	if !f.clip("A").Disabled {
		t.Error("clip should be disabled")
	}
	f.mustApply(&SetTrackMuted{TrackID: f.audio, Muted: true})
	if tr, _ := f.tl.Track(f.audio); !tr.Muted {
		t.Error("track should be muted")
	}
	f.mustApply(&RemoveTrack{TrackID: f.audio})
	f.expectRejected(&RemoveTrack{TrackID: f.audio}, ErrNotFound)
}

func TestRandomEditsKeepInvariants(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(42))
	ms := func(n int) time.Duration { return time.Duration(rng.Intn(n)) * 100 * time.Millisecond }

	clipIDs := func() []string {
		var out []string
		for _, tr := range f.tl.Tracks() {
			for _, c := range tr.Clips() {
				out = append(out, c.ID)
			}
		}
		return out
	}
	pick := func() string {
		ids := clipIDs()
		if len(ids) == 0 {
			return "none"
		}
		return ids[rng.Intn(len(ids))]
	}
	tracks := []string{f.video, f.audio}

	for i := 0; i < 2000; i++ {
		track := tracks[rng.Intn(2)]
		var cmd Command
		switch rng.Intn(8) {
		case 0, 1:
			in := ms(150)
			cmd = &InsertClip{TrackID: track, AssetID: "clipA", SourceIn: in, SourceOut: in + ms(40) + 100*time.Millisecond, Start: ms(400)}
		case 2:
			cmd = &Split{TrackID: track, At: ms(400)}
		case 3:
			cmd = &RippleDelete{ClipID: pick(), AllTracks: rng.Intn(2) == 0}
		case 4:
			cmd = &Trim{ClipID: pick(), Edge: Edge(rng.Intn(2)), To: ms(400)}
		case 5:
			cmd = &Move{ClipID: pick(), TrackID: track, Start: ms(400)}
		case 6:
			cmd = &SetFade{ClipID: pick(), FadeIn: ms(20), FadeOut: ms(20)}
		case 7:
			start := ms(400)
			cmd = &RippleDeleteRange{TrackID: track, Range: timeline.Range{Start: start, End: start + ms(30)}, AllTracks: rng.Intn(2) == 0}
		}
		before := f.tl
		err := f.apply(cmd)
		if err != nil && f.tl != before {
			t.Fatalf("step %d: rejected %s changed the timeline", i, cmd.Name())
		}
		if err := f.tl.Validate(); err != nil {
			t.Fatalf("step %d (%s): invariant broken: %v", i, cmd.Name(), err)
		}
	}
}

func TestParseToolMode(t *testing.T) {
	if m, err := ParseToolMode("Blade"); err != nil || m != ToolBlade {
		t.Errorf("ParseToolMode(Blade) = %v, %v", m, err)
	}
	if m, err := ParseToolMode("select"); err != nil || m != ToolSelect {
		t.Errorf("ParseToolMode(select) = %v, %v", m, err)
	}
	if _, err := ParseToolMode("lasso"); err == nil {
		t.Error("expected error")
	}
}

package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fakeProber(calls *atomic.Int32) Prober {
	return ProberFunc(func(ctx context.Context, path string) (Info, error) {
		calls.Add(1)
		switch path {
		case "/media/broken.mp4":
			return Info{}, errors.New("moov atom not found")
		case "/media/still.png":
			return Info{Kind: KindImage, Width: 640, Height: 480}, nil
		}
		return Info{
			Kind:       KindVideo,
			Duration:   10 * time.Second,
			FrameRate:  25,
			SampleRate: 48000,
			Channels:   2,
			Width:      1280,
			Height:     720,
		}, nil
	})
}

func TestRegistryImport(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry()
	ctx := context.Background()

	asset, err := reg.Import(ctx, fakeProber(&calls), "/media/a.mp4")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if asset.ID == "" {
		t.Fatal("expected asset id")
	}
	if asset.Name != "a.mp4" {
		t.Errorf("expected name a.mp4, got %s", asset.Name)
	}
	if !asset.HasAudio() || !asset.Bounded() {
		t.Errorf("video asset with channels should have audio and be bounded")
	}

	again, err := reg.Import(ctx, fakeProber(&calls), "/media/a.mp4")
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if again.ID != asset.ID {
		t.Errorf("re-import should return existing asset")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 probe call, got %d", calls.Load())
	}

	got, ok := reg.Get(asset.ID)
	if !ok || got != asset {
		t.Errorf("Get did not return imported asset")
	}
}

func TestRegistryImportErrors(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry()
	ctx := context.Background()

	if _, err := reg.Import(ctx, fakeProber(&calls), ""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := reg.Import(ctx, fakeProber(&calls), "/media/broken.mp4"); err == nil {
		t.Error("expected probe error")
	}
	if reg.Len() != 0 {
		t.Errorf("failed imports must not register assets")
	}

	still, err := reg.Import(ctx, fakeProber(&calls), "/media/still.png")
	if err != nil {
		t.Fatalf("image import: %v", err)
	}
	if still.Bounded() || still.HasAudio() {
		t.Errorf("stills are unbounded and silent")
	}
}

func TestRegistryOrderAndRemove(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry()
	ctx := context.Background()

	paths := []string{"/media/c.mp4", "/media/a.mp4", "/media/b.mp4"}
	for _, p := range paths {
		if _, err := reg.Import(ctx, fakeProber(&calls), p); err != nil {
			t.Fatalf("import %s: %v", p, err)
		}
	}

	assets := reg.Assets()
	for i, a := range assets {
		if a.Path != paths[i] {
			t.Errorf("asset %d: expected %s, got %s", i, paths[i], a.Path)
		}
	}

	if !reg.Remove(assets[1].ID) {
		t.Fatal("remove returned false")
	}
	if reg.Remove(assets[1].ID) {
		t.Error("second remove should return false")
	}
	if _, ok := reg.Lookup("/media/a.mp4"); ok {
		t.Error("removed path still resolvable")
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 assets, got %d", reg.Len())
	}
}

func TestRegistryAddRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	a := &Asset{ID: "one", Path: "/x.mp4", Info: Info{Kind: KindVideo, Duration: time.Second}}
	if err := reg.Add(a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.Add(&Asset{ID: "one", Path: "/y.mp4"}); err == nil {
		t.Error("expected duplicate id error")
	}
	if err := reg.Add(&Asset{ID: "two", Path: "/x.mp4"}); err == nil {
		t.Error("expected duplicate path error")
	}
	if err := reg.Add(&Asset{}); err == nil {
		t.Error("expected missing id error")
	}
}

func TestRegistryConcurrentImport(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := reg.Import(ctx, fakeProber(&calls), "/media/shared.mp4")
			if err != nil {
				t.Errorf("import: %v", err)
				return
			}
			ids[i] = a.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent imports produced different ids")
		}
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 asset, got %d", reg.Len())
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindVideo, KindAudio, KindImage} {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("hologram"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestRegistryClone(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry()
	ctx := context.Background()
	a, err := reg.Import(ctx, fakeProber(&calls), "/media/a.mp4")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	cp := reg.Clone()
	if _, err := reg.Import(ctx, fakeProber(&calls), "/media/b.mp4"); err != nil {
		t.Fatalf("import: %v", err)
	}
	reg.Remove(a.ID)

	if cp.Len() != 1 {
		t.Fatalf("clone has %d assets, want 1", cp.Len())
	}
	got, ok := cp.Lookup("/media/a.mp4")
	if !ok || got != a {
		t.Error("clone lost the original asset")
	}
	if reg.Len() != 1 {
		t.Errorf("original has %d assets, want 1", reg.Len())
	}
}

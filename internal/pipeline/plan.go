package pipeline

import (
	"fmt"
	"slices"
	"time"

	"github.com/kikiluvv/splice/internal/ffmpeg"
	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
)

// AssetSource resolves clip asset references
type AssetSource interface {
	Get(id string) (*media.Asset, bool)
}

// Plan cuts the program into segments at every clip boundary on every
// track, so each segment has a fixed set of contributing clips. Each
// segment shows the topmost enabled video clip (black when none or a
// placeholder) and mixes every enabled clip on unmuted audio tracks.
func Plan(tl *timeline.Timeline, assets AssetSource) ([]ffmpeg.Segment, error) {
	total := tl.TotalDuration()
	if total <= 0 {
		return nil, fmt.Errorf("timeline is empty")
	}

	cuts := []time.Duration{0, total}
	for _, tr := range tl.Tracks() {
		for _, c := range tr.Clips() {
			cuts = append(cuts, c.Start, c.End())
		}
	}
	slices.Sort(cuts)
	cuts = slices.Compact(cuts)

	var segs []ffmpeg.Segment
	for i := 0; i+1 < len(cuts); i++ {
		at, end := cuts[i], cuts[i+1]
		seg := ffmpeg.Segment{Index: len(segs), Duration: end - at}

		video, err := topVideo(tl, assets, at)
		if err != nil {
			return nil, err
		}
		seg.Video = video

		if seg.Audio, err = audioSources(tl, assets, at); err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func topVideo(tl *timeline.Timeline, assets AssetSource, at time.Duration) (*ffmpeg.SegmentSource, error) {
	for _, tr := range tl.Tracks() {
		if tr.Kind != timeline.KindVideo || tr.Muted {
			continue
		}
		c, ok := tr.ClipAt(at)
		if !ok || c.Disabled {
			continue
		}
		if c.IsPlaceholder() {
			return nil, nil
		}
		src, err := source(assets, c, at)
		if err != nil {
			return nil, err
		}
		return &src, nil
	}
	return nil, nil
}

func audioSources(tl *timeline.Timeline, assets AssetSource, at time.Duration) ([]ffmpeg.SegmentSource, error) {
	var out []ffmpeg.SegmentSource
	for _, tr := range tl.Tracks() {
		if tr.Kind != timeline.KindAudio || tr.Muted {
			continue
		}
		c, ok := tr.ClipAt(at)
		if !ok || c.Disabled || c.IsPlaceholder() {
			continue
		}
		src, err := source(assets, c, at)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func source(assets AssetSource, c timeline.Clip, at time.Duration) (ffmpeg.SegmentSource, error) {
	a, ok := assets.Get(c.AssetID)
	if !ok {
		return ffmpeg.SegmentSource{}, fmt.Errorf("clip %s: asset %s not found", c.ID, c.AssetID)
	}
	return ffmpeg.SegmentSource{
		Path:         a.Path,
		Kind:         a.Kind,
		SourceIn:     c.SourceIn,
		ClipDuration: c.Duration(),
		Offset:       at - c.Start,
		FadeIn:       c.FadeIn,
		FadeOut:      c.FadeOut,
	}, nil
}

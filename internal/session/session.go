// Package session is the boundary the presentation layer talks to. It owns
// the open project, serialises edits through the edit engine and publishes
// each accepted timeline as an immutable snapshot the playback scheduler
// reads without locking.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/edit"
	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/playback"
	"github.com/kikiluvv/splice/internal/project"
	"github.com/kikiluvv/splice/internal/timeline"
)

var (
	// ErrNoProject is returned by operations that need an open project
	ErrNoProject = errors.New("no project open")
	// ErrLoadInProgress is returned for edits attempted while a project loads
	ErrLoadInProgress = errors.New("project load in progress")
	// ErrAssetInUse is returned when removing an asset a clip still uses
	ErrAssetInUse = errors.New("asset is used by the timeline")
	// ErrNoPath is returned when saving a project that was never saved
	ErrNoPath = errors.New("project has no file path")
)

// Options configures a session
type Options struct {
	// Settings are used for new projects
	Settings      project.Settings
	DecodeTimeout time.Duration
	Prober        media.Prober
	// Decoder is required
	Decoder playback.Decoder
	// Sink receives composites while playing or scrubbing; may be nil
	Sink playback.Sink
}

// State is a read-only view of the open project
type State struct {
	Name     string
	Path     string
	Modified time.Time
	Dirty    bool
	Settings project.Settings
	Tool     edit.ToolMode
	Playback playback.State
	Playhead time.Duration
	Timeline *timeline.Timeline
	Assets   []*media.Asset
	Decoding playback.Stats
}

// openProject is the mutable metadata of the open project. Guarded by
// Session.mu.
type openProject struct {
	name      string
	path      string
	settings  project.Settings
	modified  time.Time
	dirty     bool
	scheduler *playback.Scheduler
}

// Session holds at most one open project
type Session struct {
	logger zerolog.Logger
	store  *project.Store
	opts   Options
	engine *edit.Engine

	// load reads a project file; replaced in tests
	load func(path string) (*project.Project, error)

	loading  atomic.Bool
	timeline atomic.Pointer[timeline.Timeline]
	assets   atomic.Pointer[media.Registry]

	mu   sync.Mutex
	tool edit.ToolMode
	open *openProject
}

// New creates a session with no open project
func New(logger zerolog.Logger, store *project.Store, opts Options) *Session {
	if opts.Settings == (project.Settings{}) {
		opts.Settings = project.DefaultSettings()
	}
	s := &Session{
		logger: logging.WithComponent(logger, "session"),
		store:  store,
		opts:   opts,
	}
	s.engine = edit.NewEngine(logger, s)
	s.load = store.Load
	s.timeline.Store(timeline.New())
	return s
}

// Timeline returns the current published snapshot. Snapshots are never
// mutated.
func (s *Session) Timeline() *timeline.Timeline {
	return s.timeline.Load()
}

// Get resolves an asset of the open project
func (s *Session) Get(id string) (*media.Asset, bool) {
	reg := s.assets.Load()
	if reg == nil {
		return nil, false
	}
	return reg.Get(id)
}

// NewProject discards the open project, if any, and starts an empty one
func (s *Session) NewProject(name string) error {
	if s.loading.Load() {
		return ErrLoadInProgress
	}
	if name == "" {
		name = "Untitled"
	}
	p := project.New(name, s.opts.Settings)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.installLocked(p, "")
	s.open.dirty = true
	s.logger.Info().Str("project", name).Msg("new project")
	return nil
}

// Load replaces the open project with the one at path. Edits attempted
// while the load runs fail with ErrLoadInProgress. A failed load leaves the
// open project untouched.
func (s *Session) Load(path string) error {
	if !s.loading.CompareAndSwap(false, true) {
		return ErrLoadInProgress
	}
	defer s.loading.Store(false)

	p, err := s.load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.installLocked(p, path)
	return nil
}

// installLocked makes p the open project with a fresh scheduler sized to
// its settings
func (s *Session) installLocked(p *project.Project, path string) {
	s.closeLocked()

	playhead := p.Timeline.Playhead
	s.assets.Store(p.Assets)
	s.timeline.Store(p.Timeline)

	cfg := playback.Config{
		FrameRate:     p.Settings.FrameRate,
		SampleRate:    p.Settings.SampleRate,
		Channels:      p.Settings.Channels,
		Width:         p.Settings.Width,
		Height:        p.Settings.Height,
		DecodeTimeout: s.opts.DecodeTimeout,
	}
	sched := playback.New(s.logger, cfg, s, s, s.opts.Decoder, s.opts.Sink)
	sched.Seek(playhead)

	s.open = &openProject{
		name:      p.Name,
		path:      path,
		settings:  p.Settings,
		modified:  p.Modified,
		scheduler: sched,
	}
	s.tool = edit.ToolSelect
}

// Save writes a snapshot of the open project to path, or to the path it
// was loaded from or last saved to when path is empty. Edits may continue
// while the file is written.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	if s.open == nil {
		s.mu.Unlock()
		return ErrNoProject
	}
	if path == "" {
		path = s.open.path
	}
	if path == "" {
		s.mu.Unlock()
		return ErrNoPath
	}
	snap := s.timeline.Load()
	p := s.snapshotLocked()
	open := s.open
	s.mu.Unlock()

	if err := s.store.Save(p, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == open {
		open.path = path
		// edits that landed during the write keep the project dirty
		if s.timeline.Load() == snap && open.modified.Equal(p.Modified) {
			open.dirty = false
		}
	}
	return nil
}

// Snapshot returns a private copy of the open project, as written by Save
func (s *Session) Snapshot() (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return nil, ErrNoProject
	}
	return s.snapshotLocked(), nil
}

func (s *Session) snapshotLocked() *project.Project {
	tl := s.timeline.Load().Clone()
	tl.Playhead = s.open.scheduler.Playhead()
	return &project.Project{
		Name:     s.open.name,
		Modified: s.open.modified,
		Settings: s.open.settings,
		Timeline: tl,
		Assets:   s.assets.Load().Clone(),
	}
}

// Close discards the open project without saving
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open != nil {
		s.logger.Info().Str("project", s.open.name).Msg("project closed")
	}
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.open == nil {
		return
	}
	s.open.scheduler.Close()
	s.open = nil
	s.assets.Store(nil)
	s.timeline.Store(timeline.New())
}

// ApplyOperation runs cmd against the current timeline. On success the new
// timeline is published and the preview refreshed; on failure nothing
// changes and the *edit.Error is returned.
func (s *Session) ApplyOperation(cmd edit.Command) error {
	if s.loading.Load() {
		return ErrLoadInProgress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading.Load() {
		return ErrLoadInProgress
	}
	if s.open == nil {
		return ErrNoProject
	}

	next, err := s.engine.Apply(s.timeline.Load(), edit.State{Tool: s.tool}, cmd)
	if err != nil {
		return err
	}
	s.timeline.Store(next)
	s.touchLocked()
	s.open.scheduler.Refresh()
	return nil
}

func (s *Session) touchLocked() {
	s.open.modified = time.Now().UTC()
	s.open.dirty = true
}

// SetToolMode switches the active editing tool
func (s *Session) SetToolMode(mode edit.ToolMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool = mode
	s.logger.Debug().Stringer("tool", mode).Msg("tool changed")
}

// ToolMode returns the active editing tool
func (s *Session) ToolMode() edit.ToolMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

// Import probes path and adds it to the open project's registry
func (s *Session) Import(ctx context.Context, path string) (*media.Asset, error) {
	if s.loading.Load() {
		return nil, ErrLoadInProgress
	}
	reg := s.assets.Load()
	if reg == nil {
		return nil, ErrNoProject
	}
	if s.opts.Prober == nil {
		return nil, fmt.Errorf("import: no prober configured")
	}

	before := reg.Len()
	asset, err := reg.Import(ctx, s.opts.Prober, path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open != nil && reg.Len() != before {
		s.touchLocked()
		s.logger.Info().
			Str("asset", asset.ID).
			Str("path", asset.Path).
			Str("kind", string(asset.Kind)).
			Dur("duration", asset.Duration).
			Msg("asset imported")
	}
	return asset, nil
}

// RemoveAsset drops an asset no clip references
func (s *Session) RemoveAsset(id string) error {
	if s.loading.Load() {
		return ErrLoadInProgress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return ErrNoProject
	}
	if s.timeline.Load().ReferencesAsset(id) {
		return fmt.Errorf("%w: %s", ErrAssetInUse, id)
	}
	if !s.assets.Load().Remove(id) {
		return fmt.Errorf("asset %s not found", id)
	}
	s.touchLocked()
	return nil
}

// ProjectState returns a consistent view of the open project. The timeline
// is a private copy the caller may keep.
func (s *Session) ProjectState() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return State{}, ErrNoProject
	}
	sched := s.open.scheduler
	tl := s.timeline.Load().Clone()
	tl.Playhead = sched.Playhead()
	return State{
		Name:     s.open.name,
		Path:     s.open.path,
		Modified: s.open.modified,
		Dirty:    s.open.dirty,
		Settings: s.open.settings,
		Tool:     s.tool,
		Playback: sched.State(),
		Playhead: tl.Playhead,
		Timeline: tl,
		Assets:   s.assets.Load().Assets(),
		Decoding: sched.Stats(),
	}, nil
}

func (s *Session) scheduler() (*playback.Scheduler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return nil, ErrNoProject
	}
	return s.open.scheduler, nil
}

// compositeAttempts bounds retries when a concurrent seek supersedes an
// explicit composite request
const compositeAttempts = 3

// CurrentComposite composites the program at t
func (s *Session) CurrentComposite(ctx context.Context, t time.Duration) (*playback.Composite, error) {
	sched, err := s.scheduler()
	if err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		comp, err := sched.Composite(ctx, t)
		if err == nil || !errors.Is(err, playback.ErrSuperseded) || attempt == compositeAttempts || ctx.Err() != nil {
			return comp, err
		}
		s.logger.Debug().Int("attempt", attempt).Dur("at", t).Msg("composite superseded, retrying")
	}
}

// SetPlayhead moves the play-head, abandoning decodes for the old position
func (s *Session) SetPlayhead(t time.Duration) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	sched.Seek(t)
	return nil
}

// Play starts playback from the play-head
func (s *Session) Play() error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	sched.Play()
	return nil
}

// Stop halts playback
func (s *Session) Stop() error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	sched.Stop()
	return nil
}

// BeginScrub starts dragging the play-head
func (s *Session) BeginScrub() error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	sched.BeginScrub()
	return nil
}

// Scrub moves the play-head while dragging
func (s *Session) Scrub(t time.Duration) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	sched.Scrub(t)
	return nil
}

// EndScrub releases the play-head
func (s *Session) EndScrub() error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	sched.EndScrub()
	return nil
}

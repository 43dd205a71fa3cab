package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/pkg/util"
)

// ErrLocked is returned when another process holds the project file
var ErrLocked = errors.New("project file is locked by another process")

// Store reads and writes project documents on disk. Each access takes an
// advisory lock on a sibling .lock file.
type Store struct {
	logger zerolog.Logger
}

// NewStore creates a store
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		logger: logging.WithComponent(logger, "project"),
	}
}

// LockPath returns the advisory lock file used for path
func LockPath(path string) string {
	return path + ".lock"
}

// Save writes p to path. The document is written to a temp file and renamed
// into place so a crash never leaves a truncated project.
func (s *Store) Save(p *Project, path string) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}

	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}

	lock := flock.New(LockPath(path))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to release project lock")
		}
	}()

	if err := util.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}

	s.logger.Info().
		Str("path", path).
		Str("project", p.Name).
		Int("assets", p.Assets.Len()).
		Int("clips", p.Timeline.ClipCount()).
		Msg("project saved")
	return nil
}

// Load reads the project at path. A shared lock keeps a concurrent Save
// from another process out while the file is read.
func (s *Store) Load(path string) (*Project, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}

	lock := flock.New(LockPath(path))
	ok, err := lock.TryRLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to release project lock")
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}

	p, err := Unmarshal(data)
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("project rejected")
		return nil, err
	}

	s.logger.Info().
		Str("path", path).
		Str("project", p.Name).
		Int("tracks", len(p.Timeline.Tracks())).
		Int("clips", p.Timeline.ClipCount()).
		Msg("project loaded")
	return p, nil
}

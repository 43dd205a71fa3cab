// Package probecache keeps probe results in SQLite so re-importing an
// unchanged file skips ffprobe.
package probecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/pkg/util"
)

const schema = `CREATE TABLE IF NOT EXISTS probes (
    path        TEXT PRIMARY KEY,
    size        INTEGER NOT NULL,
    mtime_ns    INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    duration_ns INTEGER NOT NULL,
    frame_rate  REAL NOT NULL,
    sample_rate INTEGER NOT NULL,
    channels    INTEGER NOT NULL,
    width       INTEGER NOT NULL,
    height      INTEGER NOT NULL,
    probed_at   TEXT NOT NULL
)`

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Cache stores probe results keyed by path, size and modification time.
// A row whose size or mtime no longer matches the file is a miss.
type Cache struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Open creates or opens the cache database at path
func Open(logger zerolog.Logger, path string) (*Cache, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Cache{
		db:     db,
		path:   path,
		logger: logging.WithComponent(logger, "probecache"),
	}, nil
}

// Close closes the underlying database connection
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached info for path if size and mtime still match
func (c *Cache) Get(ctx context.Context, path string, size int64, mtime time.Time) (media.Info, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT kind, duration_ns, frame_rate, sample_rate, channels, width, height
         FROM probes WHERE path = ? AND size = ? AND mtime_ns = ?`,
		path, size, mtime.UnixNano(),
	)

	var (
		info     media.Info
		kind     string
		duration int64
	)
	err := row.Scan(&kind, &duration, &info.FrameRate, &info.SampleRate, &info.Channels, &info.Width, &info.Height)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Info{}, false, nil
	}
	if err != nil {
		return media.Info{}, false, fmt.Errorf("get probe: %w", err)
	}

	info.Kind, err = media.ParseKind(kind)
	if err != nil {
		return media.Info{}, false, fmt.Errorf("get probe: %w", err)
	}
	info.Duration = time.Duration(duration)
	return info, true, nil
}

// Put stores info for path, replacing any older row
func (c *Cache) Put(ctx context.Context, path string, size int64, mtime time.Time, info media.Info) error {
	return retryOnBusy(ctx, func() error {
		_, err := c.db.ExecContext(ctx,
			`INSERT INTO probes (
                path, size, mtime_ns, kind, duration_ns, frame_rate,
                sample_rate, channels, width, height, probed_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(path) DO UPDATE SET
                size = excluded.size, mtime_ns = excluded.mtime_ns, kind = excluded.kind,
                duration_ns = excluded.duration_ns, frame_rate = excluded.frame_rate,
                sample_rate = excluded.sample_rate, channels = excluded.channels,
                width = excluded.width, height = excluded.height, probed_at = excluded.probed_at`,
			path, size, mtime.UnixNano(), string(info.Kind), int64(info.Duration), info.FrameRate,
			info.SampleRate, info.Channels, info.Width, info.Height,
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("put probe: %w", err)
		}
		return nil
	})
}

// Len returns the number of cached rows
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM probes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count probes: %w", err)
	}
	return n, nil
}

// Wrap returns a prober that consults the cache before calling p. Cache
// failures are logged and fall through to p.
func (c *Cache) Wrap(p media.Prober) media.Prober {
	return media.ProberFunc(func(ctx context.Context, path string) (media.Info, error) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return media.Info{}, err
		}
		st, err := os.Stat(abs)
		if err != nil {
			return media.Info{}, err
		}

		info, ok, err := c.Get(ctx, abs, st.Size(), st.ModTime())
		if err != nil {
			c.logger.Warn().Err(err).Str("path", abs).Msg("probe cache read failed")
		}
		if ok {
			c.logger.Debug().Str("path", abs).Msg("probe cache hit")
			return info, nil
		}

		info, err = p.Probe(ctx, path)
		if err != nil {
			return media.Info{}, err
		}
		if err := c.Put(ctx, abs, st.Size(), st.ModTime(), info); err != nil {
			c.logger.Warn().Err(err).Str("path", abs).Msg("probe cache write failed")
		}
		return info, nil
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

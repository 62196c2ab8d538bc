// Package cache persists small JSON snapshots of the running daemon so that
// a separate `loadgraph -status` invocation can report on it without
// connecting to the API.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/loadgraph/collectors"
	"gitlab.com/tinyland/lab/loadgraph/history"
)

// SummaryKey is the file (without extension) the daemon writes its snapshot to.
const SummaryKey = "summary"

// ErrNoSnapshot is returned when no readable snapshot exists.
var ErrNoSnapshot = errors.New("cache: no snapshot")

// Snapshot is the daemon state written periodically to the cache directory.
type Snapshot struct {
	WrittenAt  time.Time                    `json:"written_at"`
	PID        int                          `json:"pid"`
	Listen     string                       `json:"listen,omitempty"`
	Interval   time.Duration                `json:"interval"`
	Retention  time.Duration                `json:"retention"`
	Series     []history.Summary            `json:"series"`
	Collectors []collectors.CollectorStatus `json:"collectors"`
	// Sparklines holds a short grid per series, oldest column first.
	// Columns before the series' first sample are omitted.
	Sparklines map[string][]int64 `json:"sparklines,omitempty"`
}

// Stale reports whether the snapshot is older than three write periods,
// which means the daemon that wrote it has most likely stopped.
func (s *Snapshot) Stale(now time.Time, every time.Duration) bool {
	return now.Sub(s.WrittenAt) > 3*every
}

// Store provides atomic JSON snapshot files in a flat directory:
//
//	~/.cache/loadgraph/
//	  loadgraph.pid
//	  summary.json
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a cache store at the given directory.
// The directory is created with 0700 permissions if it does not exist.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("cache: create directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) keyPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// WriteSnapshot writes snap under SummaryKey.
func (s *Store) WriteSnapshot(snap *Snapshot) error {
	return s.set(SummaryKey, snap)
}

// ReadSnapshot reads the snapshot under SummaryKey. A missing file returns
// ErrNoSnapshot. A corrupted file is removed and also returns ErrNoSnapshot.
func (s *Store) ReadSnapshot() (*Snapshot, error) {
	path := s.keyPath(SummaryKey)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("cache: read %s: %w", SummaryKey, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("cache: removing corrupted snapshot",
			slog.String("key", SummaryKey),
			slog.String("error", err.Error()),
		)
		_ = os.Remove(path)
		return nil, ErrNoSnapshot
	}
	return &snap, nil
}

// set writes a value with an atomic write (temp file, then rename) so a
// concurrent reader never sees a partial file.
func (s *Store) set(key string, data any) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key+"-*.json")
	if err != nil {
		return fmt.Errorf("cache: create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	if err := os.Chmod(tmpName, 0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cache: chmod temp for %s: %w", key, err)
	}
	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cache: write temp for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.keyPath(key)); err != nil {
		return fmt.Errorf("cache: rename temp for %s: %w", key, err)
	}

	success = true
	return nil
}

// Age returns how old the snapshot file is based on its modification time.
// Returns 0 if it does not exist.
func (s *Store) Age() time.Duration {
	info, err := os.Stat(s.keyPath(SummaryKey))
	if err != nil {
		return 0
	}
	return time.Since(info.ModTime())
}

// Clear removes snapshot files and leftover temp files. Other files in the
// directory (the PID lock) are left alone.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cache: clear read dir: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("cache: clear remove %s: %w", name, err)
		}
	}
	return nil
}

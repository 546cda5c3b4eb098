// Package positions persists the opaque per-file framer state a
// pkg/logproto.Framer hands back from SaveState, so a restarted
// internal/sources.FileDriver can resume a tailed file exactly where it
// left off instead of rereading or skipping data. It mirrors the
// teacher's pkg/positions.FilePositionManager (dirty-flagged in-memory
// map, atomic write-then-rename flush to a single JSON file) but stores
// a Framer's opaque state blob per path rather than hand-tracked
// offset/inode/device fields, since FileDriver already carries its own
// identity check and delegates resume entirely to the Framer.
package positions

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one path's persisted state.
type Entry struct {
	State    []byte    `json:"state"`
	SavedAt  time.Time `json:"saved_at"`
}

// Store tracks one Entry per source path and flushes the whole table to
// a single JSON file on disk.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	filename string
	logger   *logrus.Logger
	dirty    bool
}

// NewStore returns a Store backed by <directory>/positions.json,
// creating the directory if necessary.
func NewStore(directory string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if directory == "" {
		directory = "/app/data/positions"
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		entries:  make(map[string]Entry),
		filename: filepath.Join(directory, "positions.json"),
		logger:   logger,
	}, nil
}

// Load reads the persisted table from disk. A missing file is not an
// error: every path starts without a resume state.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var onDisk map[string]Entry
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = onDisk
	s.logger.WithField("count", len(onDisk)).Info("positions: loaded resume state")
	return nil
}

// Resume returns the saved state for path, or nil if none is on record.
func (s *Store) Resume(path string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[path]
	if !ok {
		return nil
	}
	return entry.State
}

// Save records path's current framer state, marking the table dirty for
// the next Flush.
func (s *Store) Save(path string, state []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path] = Entry{State: append([]byte(nil), state...), SavedAt: time.Now()}
	s.dirty = true
}

// Forget drops path's entry, e.g. once its source is permanently removed
// from the path graph.
func (s *Store) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[path]; ok {
		delete(s.entries, path)
		s.dirty = true
	}
}

// Flush writes the table to disk via a temp-file-then-rename, skipping
// the write entirely if nothing changed since the last Flush.
func (s *Store) Flush() error {
	s.mu.RLock()
	if !s.dirty {
		s.mu.RUnlock()
		return nil
	}
	snapshot := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.filename); err != nil {
		os.Remove(tmp)
		return err
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// RunFlushLoop flushes on every tick until stop is closed, logging but
// not propagating flush errors (a failed flush just means the next
// periodic attempt retries against unchanged dirty state).
func (s *Store) RunFlushLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			s.Flush()
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.WithError(err).Warn("positions: flush failed")
			}
		}
	}
}

// EncodeForLog renders a state blob as base64, useful for diagnostic
// logging without dumping arbitrary binary framer state into a log line.
func EncodeForLog(state []byte) string {
	return base64.StdEncoding.EncodeToString(state)
}

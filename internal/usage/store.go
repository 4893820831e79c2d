// Package usage persists per-application launch counters and timestamps that
// feed the ranker's personalized boosts.
package usage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/xdg"
)

// FileName carries the store format version.
const FileName = "usage.v1"

const format = "desktop-indexer/usage"

// Record holds the launch history of one desktop-id.
type Record struct {
	Count        uint64 `json:"count"`
	LastLaunchNS int64  `json:"last_launch_ns"`
}

type usageFile struct {
	Format  string            `json:"format"`
	Records map[string]Record `json:"records"`
}

// Store is the process-wide usage store. Reads are in-memory after the first
// load; every update is flushed to disk atomically. A file lock serializes
// writers across processes (daemon and local-fallback CLI runs).
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
	fl      *flock.Flock
}

// DefaultPath returns $XDG_DATA_HOME/desktop-indexer/usage.v1.
func DefaultPath() string {
	return filepath.Join(xdg.DataDir(), FileName)
}

// Load reads the usage store at path. A missing or malformed file yields an
// empty store.
func Load(path string) *Store {
	s := &Store{
		path:    path,
		records: make(map[string]Record),
		fl:      flock.New(path + ".lock"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var uf usageFile
	if err := json.Unmarshal(data, &uf); err != nil || uf.Format != format {
		slog.Debug("discarding unreadable usage store", slog.String("path", path))
		return s
	}
	if uf.Records != nil {
		s.records = uf.Records
	}
	return s
}

// Get returns the record for a desktop-id; the zero Record when absent.
func (s *Store) Get(desktopID string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[desktopID]
}

// Snapshot returns a copy of all records, taken under the lock.
func (s *Store) Snapshot() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out
}

// RecordLaunch increments the counter and stamps the launch time for a
// desktop-id, then flushes to disk. The read-modify-write happens under the
// store lock; concurrent same-id launches sum their counts and the last
// writer wins on the timestamp.
func (s *Store) RecordLaunch(desktopID string, nowNS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[desktopID]
	rec.Count++
	rec.LastLaunchNS = nowNS
	s.records[desktopID] = rec

	return s.save()
}

// save writes the store via temp file + rename under a cross-process file
// lock. Caller holds s.mu.
func (s *Store) save() error {
	uf := usageFile{Format: format, Records: s.records}
	data, err := json.Marshal(&uf)
	if err != nil {
		return ierr.Wrap(ierr.KindIO, "encode usage store", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ierr.Wrap(ierr.KindIO, "create data directory", err)
	}

	if err := s.fl.Lock(); err == nil {
		defer func() { _ = s.fl.Unlock() }()
	}

	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return ierr.Wrap(ierr.KindIO, "create usage temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return ierr.Wrap(ierr.KindIO, "write usage store", err)
	}
	if err := tmp.Close(); err != nil {
		return ierr.Wrap(ierr.KindIO, "close usage temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return ierr.Wrap(ierr.KindIO, "rename usage store", err)
	}
	return nil
}

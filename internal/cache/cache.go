// Package cache implements the persistent parse cache: a single file mapping
// (path, size, mtime_ns) to the parsed desktop entry, so unchanged files are
// never re-parsed across builds.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/xdg"
)

// FileName carries the format version; bumping it orphans old caches, which
// Load then discards.
const FileName = "parse-cache.v1"

const format = "desktop-indexer/parse-cache"

// Record is one cached parse, keyed by path and validated by the stat tuple.
type Record struct {
	Path    string         `json:"path"`
	Size    int64          `json:"size"`
	MTimeNS int64          `json:"mtime_ns"`
	Entry   *desktop.Entry `json:"entry"`
}

type cacheFile struct {
	Format  string   `json:"format"`
	Records []Record `json:"records"`
}

// Cache is an in-memory view of the cache file for one build. It is not
// safe for concurrent use; concurrent builds each load their own copy and
// the save is atomic, so the last writer wins without corruption.
type Cache struct {
	path    string
	byPath  map[string]Record
	touched map[string]bool
}

// DefaultPath returns $XDG_CACHE_HOME/desktop-indexer/parse-cache.v1.
func DefaultPath() string {
	return filepath.Join(xdg.CacheDir(), FileName)
}

// Load reads the cache file at path. A missing, malformed, or
// format-mismatched file yields an empty cache; load never fails.
func Load(path string) *Cache {
	c := &Cache{
		path:    path,
		byPath:  make(map[string]Record),
		touched: make(map[string]bool),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil || cf.Format != format {
		slog.Debug("discarding unreadable parse cache", slog.String("path", path))
		return c
	}

	for _, rec := range cf.Records {
		if rec.Entry == nil {
			continue
		}
		c.byPath[rec.Path] = rec
	}
	return c
}

// Get returns the cached entry for path when the stat tuple matches exactly;
// any mismatch is a miss. Hits are marked as observed for save-time GC.
func (c *Cache) Get(path string, size, mtimeNS int64) (*desktop.Entry, bool) {
	rec, ok := c.byPath[path]
	if !ok || rec.Size != size || rec.MTimeNS != mtimeNS {
		return nil, false
	}
	c.touched[path] = true
	return rec.Entry, true
}

// Put inserts a freshly parsed entry after a miss.
func (c *Cache) Put(path string, size, mtimeNS int64, entry *desktop.Entry) {
	c.byPath[path] = Record{Path: path, Size: size, MTimeNS: mtimeNS, Entry: entry}
	c.touched[path] = true
}

// Len reports the number of cached paths.
func (c *Cache) Len() int {
	return len(c.byPath)
}

// Save writes the cache atomically via a sibling temp file and rename.
// Records whose paths were not observed (via Get hit or Put) since Load are
// evicted, garbage-collecting entries for files the scanner no longer sees.
func (c *Cache) Save() error {
	cf := cacheFile{Format: format}
	for path, rec := range c.byPath {
		if !c.touched[path] {
			continue
		}
		cf.Records = append(cf.Records, rec)
	}

	data, err := json.Marshal(&cf)
	if err != nil {
		return ierr.Wrap(ierr.KindIO, "encode parse cache", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ierr.Wrap(ierr.KindIO, "create cache directory", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return ierr.Wrap(ierr.KindIO, "create cache temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return ierr.Wrap(ierr.KindIO, "write parse cache", err)
	}
	if err := tmp.Close(); err != nil {
		return ierr.Wrap(ierr.KindIO, "close cache temp file", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return ierr.Wrap(ierr.KindIO, fmt.Sprintf("rename %s", c.path), err)
	}
	return nil
}

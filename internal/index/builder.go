package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/xdgtools/desktop-indexer/internal/cache"
	"github.com/xdgtools/desktop-indexer/internal/desktop"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/launch"
	"github.com/xdgtools/desktop-indexer/internal/scanner"
)

// Haystack is the precomputed lowercase search material for one entry.
type Haystack struct {
	Name        string
	GenericName string
	ID          string
	Keywords    string
	Categories  string
	Comment     string
}

// BuildStats counts what happened during a build; parse failures are
// observable only here.
type BuildStats struct {
	RootsScanned int
	FilesFound   int
	CacheHits    int
	Parsed       int
	ParseFailed  int
	FilteredOut  int
}

// Index is an immutable snapshot of parsed desktop entries for one key.
// Entries and Haystacks are parallel slices. Published indexes are shared by
// concurrent readers without locking.
type Index struct {
	Key       Key
	Entries   []*desktop.Entry
	Haystacks []Haystack
	BuiltAt   time.Time
	Stats     BuildStats
}

// Build scans the key's roots, parses through the persistent parse cache,
// applies the Hidden and TryExec filters, precomputes search haystacks, and
// persists the refreshed cache. Repeated builds over an unchanged filesystem
// yield identical entry sequences.
func Build(ctx context.Context, key Key, cachePath string) (*Index, error) {
	if len(key.Roots) == 0 {
		return nil, ierr.New(ierr.KindBuildFailed, "no scan roots configured")
	}

	tStart := time.Now()
	files, scanStats := scanner.Scan(ctx, key.Roots)
	dScan := time.Since(tStart)

	if scanStats.RootsScanned == 0 && scanStats.RootsUnreadable > 0 {
		return nil, ierr.Newf(ierr.KindBuildFailed, "every scan root unreadable (%d roots)", len(key.Roots))
	}

	tLoad := time.Now()
	pc := cache.Load(cachePath)
	dLoad := time.Since(tLoad)

	idx := &Index{Key: key, BuiltAt: time.Now()}
	idx.Stats.RootsScanned = scanStats.RootsScanned
	idx.Stats.FilesFound = scanStats.FilesFound

	locales := desktop.SystemLocales()
	seen := make(map[string]bool, len(files))

	tWork := time.Now()
	for _, f := range files {
		if ctx.Err() != nil {
			return nil, ierr.Wrap(ierr.KindBuildFailed, "build cancelled", ctx.Err())
		}
		// First occurrence wins: earlier roots shadow later ones.
		if seen[f.DesktopID] {
			continue
		}
		seen[f.DesktopID] = true

		entry, ok := pc.Get(f.Path, f.Size, f.MTimeNS)
		if ok {
			idx.Stats.CacheHits++
		} else {
			parsed, err := desktop.ParseFile(f.DesktopID, f.Path, locales)
			if err != nil {
				idx.Stats.ParseFailed++
				slog.Debug("dropping unparsable desktop file",
					slog.String("path", f.Path),
					slog.String("error", err.Error()))
				continue
			}
			idx.Stats.Parsed++
			entry = parsed
			pc.Put(f.Path, f.Size, f.MTimeNS, entry)
		}

		if entry.Hidden {
			idx.Stats.FilteredOut++
			continue
		}
		if key.RespectTryExec && entry.TryExec != "" && !launch.ExecutableAvailable(entry.TryExec) {
			idx.Stats.FilteredOut++
			continue
		}

		idx.Entries = append(idx.Entries, entry)
		idx.Haystacks = append(idx.Haystacks, haystackFor(entry))
	}
	dWork := time.Since(tWork)

	tSave := time.Now()
	if err := pc.Save(); err != nil {
		// Cache persistence is best-effort; the build result stands.
		slog.Warn("parse cache save failed", slog.String("error", err.Error()))
	}
	dSave := time.Since(tSave)

	if timingEnabled() {
		fmt.Fprintf(os.Stderr,
			"desktop-indexer timing: scan=%v load_cache=%v work=%v save_cache=%v files=%d entries=%d cache_hits=%d parsed=%d parse_failed=%d\n",
			dScan, dLoad, dWork, dSave,
			scanStats.FilesFound, len(idx.Entries),
			idx.Stats.CacheHits, idx.Stats.Parsed, idx.Stats.ParseFailed)
	}

	return idx, nil
}

func haystackFor(e *desktop.Entry) Haystack {
	return Haystack{
		Name:        strings.ToLower(e.Name),
		GenericName: strings.ToLower(e.GenericName),
		ID:          strings.ToLower(e.ID),
		Keywords:    strings.ToLower(strings.Join(e.Keywords, " ")),
		Categories:  strings.ToLower(strings.Join(e.Categories, " ")),
		Comment:     strings.ToLower(e.Comment),
	}
}

func timingEnabled() bool {
	switch os.Getenv("DESKTOP_INDEXER_TIMING") {
	case "1", "true", "yes":
		return true
	}
	return false
}

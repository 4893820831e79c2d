// Package scanner discovers .desktop files under an ordered list of
// application root directories.
package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
)

// FileInfo describes one discovered .desktop file.
type FileInfo struct {
	DesktopID string
	Path      string
	Size      int64
	MTimeNS   int64
}

// Stats summarizes a scan.
type Stats struct {
	// RootsScanned counts roots that existed and were readable.
	RootsScanned int
	// RootsUnreadable counts roots that exist but could not be read.
	RootsUnreadable int
	// FilesFound counts discovered .desktop files across all roots.
	FilesFound int
}

// inode identifies a directory across symlinks for loop detection.
type inode struct {
	dev uint64
	ino uint64
}

// Scan enumerates .desktop files under the given roots, in root order.
// Within a directory, entries are visited in byte-wise sorted name order so
// the stream is deterministic for a fixed filesystem snapshot. Missing or
// unreadable directories are skipped silently. Hidden dot-directories are
// not descended into; symlinked directories are followed with an inode set
// guarding against loops.
//
// Collisions on DesktopID are the consumer's concern: the stream preserves
// root precedence order so "first occurrence wins" implements it.
func Scan(ctx context.Context, roots []string) ([]FileInfo, Stats) {
	var files []FileInfo
	var stats Stats

	for _, root := range roots {
		if ctx.Err() != nil {
			break
		}
		info, err := os.Stat(root)
		if err != nil {
			if !os.IsNotExist(err) {
				stats.RootsUnreadable++
			}
			continue
		}
		if !info.IsDir() {
			continue
		}
		dirHandle, err := os.Open(root)
		if err != nil {
			stats.RootsUnreadable++
			continue
		}
		_ = dirHandle.Close()
		stats.RootsScanned++

		visited := make(map[inode]bool)
		markVisited(visited, info)
		walkDir(ctx, root, root, visited, &files)
	}

	stats.FilesFound = len(files)
	return files, stats
}

func walkDir(ctx context.Context, root, dir string, visited map[inode]bool, files *[]FileInfo) {
	if ctx.Err() != nil {
		return
	}

	// os.ReadDir sorts entries by name, which gives the byte-wise order the
	// index determinism depends on.
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Debug("skipping unreadable directory",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return
	}

	for _, de := range entries {
		name := de.Name()
		path := filepath.Join(dir, name)

		isDir := de.IsDir()
		var info os.FileInfo
		if de.Type()&os.ModeSymlink != 0 {
			// Resolve symlinks so linked directories are walked and linked
			// files are stat'ed by target.
			st, err := os.Stat(path)
			if err != nil {
				continue
			}
			info = st
			isDir = st.IsDir()
		}

		if isDir {
			if strings.HasPrefix(name, ".") {
				continue
			}
			if info == nil {
				st, err := os.Stat(path)
				if err != nil {
					continue
				}
				info = st
			}
			if markVisited(visited, info) {
				walkDir(ctx, root, path, visited, files)
			}
			continue
		}

		if !strings.EqualFold(filepath.Ext(name), ".desktop") {
			continue
		}
		if info == nil {
			st, err := de.Info()
			if err != nil {
				continue
			}
			info = st
		}
		*files = append(*files, FileInfo{
			DesktopID: desktop.DesktopID(root, path),
			Path:      path,
			Size:      info.Size(),
			MTimeNS:   info.ModTime().UnixNano(),
		})
	}
}

// markVisited records a directory inode, reporting false when it was already
// seen (a symlink loop or a bind-mount revisit).
func markVisited(visited map[inode]bool, info os.FileInfo) bool {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return true
	}
	key := inode{dev: uint64(st.Dev), ino: st.Ino}
	if visited[key] {
		return false
	}
	visited[key] = true
	return true
}

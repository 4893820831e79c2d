// Package xdg resolves the XDG base directories and derived paths used by
// desktop-indexer: scan roots, the parse cache, the usage store, the daemon
// socket and PID file.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const appDir = "desktop-indexer"

// Roots returns the ordered list of application directories to scan:
// $XDG_DATA_HOME/applications, then <dir>/applications for each entry in
// $XDG_DATA_DIRS, then the caller-supplied extra paths. Extra paths are added
// as given plus an "applications" child when they are not already one.
// Duplicates are removed preserving precedence order.
func Roots(extra []string) []string {
	var roots []string

	roots = append(roots, filepath.Join(DataHome(), "applications"))

	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}
	for _, part := range strings.Split(dataDirs, ":") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		roots = append(roots, filepath.Join(part, "applications"))
	}

	for _, p := range extra {
		roots = append(roots, p)
		if filepath.Base(p) != "applications" {
			roots = append(roots, filepath.Join(p, "applications"))
		}
	}

	seen := make(map[string]bool, len(roots))
	out := roots[:0]
	for _, r := range roots {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// DataHome returns $XDG_DATA_HOME, defaulting to ~/.local/share.
func DataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(home(), ".local", "share")
}

// CacheDir returns the desktop-indexer cache directory under $XDG_CACHE_HOME
// (default ~/.cache).
func CacheDir() string {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		base = filepath.Join(home(), ".cache")
	}
	return filepath.Join(base, appDir)
}

// DataDir returns the desktop-indexer data directory under $XDG_DATA_HOME.
func DataDir() string {
	return filepath.Join(DataHome(), appDir)
}

// ConfigDir returns the desktop-indexer config directory under
// $XDG_CONFIG_HOME (default ~/.config).
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(home(), ".config")
	}
	return filepath.Join(base, appDir)
}

// StateDir returns the desktop-indexer state directory under $XDG_STATE_HOME
// (default ~/.local/state). Log files live here.
func StateDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(home(), ".local", "state")
	}
	return filepath.Join(base, appDir)
}

// SocketPath returns the daemon socket path: $XDG_RUNTIME_DIR when set,
// otherwise a per-user file under /tmp.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "desktop-indexer.sock")
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "user"
	}
	return filepath.Join("/tmp", fmt.Sprintf("desktop-indexer-%s.sock", user))
}

// PIDPath returns the daemon PID file path next to the socket.
func PIDPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "desktop-indexer.pid")
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "user"
	}
	return filepath.Join("/tmp", fmt.Sprintf("desktop-indexer-%s.pid", user))
}

func home() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return h
}

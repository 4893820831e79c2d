// Package desktop parses freedesktop .desktop application descriptors into
// normalized entries suitable for indexing and launching.
package desktop

import (
	"path/filepath"
	"strings"
)

// Action is one [Desktop Action <id>] group referenced from the entry's
// Actions key.
type Action struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Exec string `json:"exec"`
	Icon string `json:"icon"`
}

// Entry is a normalized .desktop file. Immutable after parse.
//
// The JSON tags serve the parse cache; the IPC wire shape is a projection
// built in the ipc package.
type Entry struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Name        string   `json:"name"`
	GenericName string   `json:"generic_name"`
	Comment     string   `json:"comment"`
	Categories  []string `json:"categories"`
	Keywords    []string `json:"keywords"`
	MimeTypes   []string `json:"mime_types"`
	Exec        string   `json:"exec"`
	TryExec     string   `json:"try_exec"`
	Icon        string   `json:"icon"`
	WorkingDir  string   `json:"working_dir"`
	NoDisplay   bool     `json:"no_display"`
	Hidden      bool     `json:"hidden"`
	Terminal    bool     `json:"terminal"`
	Actions     []Action `json:"actions"`

	// Stat tuple of the source file, used for cache validation.
	SourceMTimeNS int64 `json:"source_mtime_ns"`
	SourceSize    int64 `json:"source_size"`
}

// FindAction returns the action with the given id.
func (e *Entry) FindAction(id string) (Action, bool) {
	for _, a := range e.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// DesktopID derives the launcher-facing identifier from a path relative to
// its root: path separators become '-' and the .desktop suffix is stripped.
func DesktopID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, ".desktop")
	return strings.ReplaceAll(rel, string(filepath.Separator), "-")
}

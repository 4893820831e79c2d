// Package index builds immutable desktop-entry indexes and keeps them warm
// in a keyed registry shared by all daemon connections.
package index

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Key identifies a cacheable index: the canonicalized ordered root list plus
// the TryExec filtering mode. Order is significant.
type Key struct {
	Roots          []string
	RespectTryExec bool
}

// NewKey canonicalizes roots (absolute, symlink-resolved, order preserved)
// into an index key. Roots that cannot be resolved keep their absolute form;
// a nonexistent root is legal and simply scans empty.
func NewKey(roots []string, respectTryExec bool) Key {
	canon := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			abs = filepath.Clean(r)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		canon = append(canon, abs)
	}
	return Key{Roots: canon, RespectTryExec: respectTryExec}
}

// String renders a stable map-key form. Roots never contain \x00, so the
// separator cannot collide.
func (k Key) String() string {
	var b strings.Builder
	for _, r := range k.Roots {
		b.WriteString(r)
		b.WriteByte(0)
	}
	b.WriteString(strconv.FormatBool(k.RespectTryExec))
	return b.String()
}

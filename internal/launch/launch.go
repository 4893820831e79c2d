// Package launch spawns desktop applications from their Exec lines. The core
// consumes only the Executor interface; the default implementation prefers
// gtk-launch, handles Terminal=true entries through a known terminal
// emulator, and strips freedesktop field codes from Exec arguments.
package launch

import (
	"log/slog"
	"os/exec"
	"strings"
	"syscall"

	"github.com/google/shlex"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
)

// Executor is the process-spawning capability the core delegates to.
// action is empty for the default action. A nil error means the process was
// started; only then is the launch recorded in the usage store.
type Executor interface {
	Launch(entry *desktop.Entry, action string) error
}

// ExecExecutor launches entries by spawning detached processes.
type ExecExecutor struct {
	// DisableGTKLaunch skips the gtk-launch fast path (used in tests).
	DisableGTKLaunch bool
}

// New returns the default Executor.
func New() *ExecExecutor {
	return &ExecExecutor{}
}

// terminal emulators tried, in order, for Terminal=true entries.
var terminals = []struct {
	bin  string
	args func(argv []string) []string
}{
	{"foot", func(argv []string) []string { return append([]string{"-e"}, argv...) }},
	{"kitty", func(argv []string) []string { return argv }},
	{"alacritty", func(argv []string) []string { return append([]string{"-e"}, argv...) }},
	{"wezterm", func(argv []string) []string { return append([]string{"start", "--"}, argv...) }},
}

// Launch starts the entry's default action or the named desktop action.
func (x *ExecExecutor) Launch(entry *desktop.Entry, action string) error {
	execLine := entry.Exec
	if action != "" {
		act, ok := entry.FindAction(action)
		if !ok {
			return ierr.NotFound("unknown action %q for id=%s", action, entry.ID)
		}
		execLine = act.Exec
	}

	// gtk-launch integrates with the session (startup notification, activation
	// environment) but only knows the default action.
	if action == "" && !x.DisableGTKLaunch && ExecutableAvailable("gtk-launch") {
		if err := exec.Command("gtk-launch", entry.ID).Run(); err == nil {
			return nil
		}
		slog.Debug("gtk-launch failed, falling back to Exec", slog.String("id", entry.ID))
	}

	if execLine == "" {
		return ierr.Newf(ierr.KindNotFound, "no Exec= for id=%s", entry.ID)
	}

	argv, err := ExecToArgv(execLine)
	if err != nil || len(argv) == 0 {
		return ierr.Newf(ierr.KindParse, "Exec line parsed empty for id=%s (Exec=%s)", entry.ID, execLine)
	}

	if entry.Terminal {
		wrapped, ok := wrapInTerminal(argv)
		if !ok {
			return ierr.Newf(ierr.KindNotFound,
				"no known terminal found for Terminal=true app; install one of: foot, kitty, alacritty, wezterm")
		}
		argv = wrapped
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if entry.WorkingDir != "" {
		cmd.Dir = entry.WorkingDir
	}
	// Detach so the app outlives the daemon or CLI process.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return ierr.Wrap(ierr.KindIO, "spawn "+argv[0], err)
	}
	// Reap in the background; launched apps are not our children to wait on.
	go func() { _ = cmd.Wait() }()
	return nil
}

func wrapInTerminal(argv []string) ([]string, bool) {
	for _, t := range terminals {
		if ExecutableAvailable(t.bin) {
			return append([]string{t.bin}, t.args(argv)...), true
		}
	}
	return nil, false
}

// ExecToArgv tokenizes an Exec= line, dropping freedesktop field codes
// (launches carry no file or URL arguments).
func ExecToArgv(execLine string) ([]string, error) {
	tokens, err := shlex.Split(execLine)
	if err != nil {
		return nil, err
	}

	var argv []string
	for _, t := range tokens {
		if isFieldCode(t) {
			continue
		}
		if strings.ContainsRune(t, '%') {
			t = stripFieldCodes(t)
		}
		if t == "" {
			continue
		}
		argv = append(argv, t)
	}
	return argv, nil
}

func isFieldCode(t string) bool {
	switch t {
	case "%f", "%F", "%u", "%U", "%d", "%D", "%n", "%N", "%i", "%c", "%k", "%v", "%m":
		return true
	}
	return false
}

// stripFieldCodes removes embedded %X sequences, keeping %% as a literal %.
func stripFieldCodes(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+1 < len(s) {
			if s[i+1] == '%' {
				out.WriteByte('%')
			}
			i++
			continue
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

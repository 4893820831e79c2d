// Package output provides consistent CLI output formatting.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI sequences used when the destination is a terminal.
const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiRed   = "\033[31m"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates an output Writer; color is enabled only when out is a TTY.
func New(out io.Writer) *Writer {
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Writer{out: out, useColor: useColor}
}

// Line prints a plain line.
func (w *Writer) Line(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Linef prints a formatted line.
func (w *Writer) Linef(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format+"\n", args...)
}

// Entry prints one search/list result as "<id>\t<name>", with the id bolded
// on terminals.
func (w *Writer) Entry(id, name string) {
	if w.useColor {
		_, _ = fmt.Fprintf(w.out, "%s%s%s\t%s\n", ansiBold, id, ansiReset, name)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s\t%s\n", id, name)
}

// Dim prints a secondary detail line.
func (w *Writer) Dim(msg string) {
	if w.useColor {
		_, _ = fmt.Fprintf(w.out, "%s%s%s\n", ansiDim, msg, ansiReset)
		return
	}
	_, _ = fmt.Fprintln(w.out, msg)
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	if w.useColor {
		_, _ = fmt.Fprintf(w.out, "%serror:%s %s\n", ansiRed, ansiReset, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "error: %s\n", msg)
}

// Errorf prints a formatted error line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

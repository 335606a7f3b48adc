// Package status renders the daemon's one-line "last event" status
// line: cursor-save/restore and carriage-return/erase control sequences
// when stderr is a TTY and not in debug mode, otherwise a plain log
// line.
//
// TTY detection uses golang.org/x/term.IsTerminal with a go-isatty
// fallback for platforms/fds where x/term's ConsoleMode probing is
// unavailable.
package status

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/wozt/goofydeck-sub000/internal/dlog"
)

// saveCursor/restoreCursor/clearLine are the ANSI sequences used for the
// single-line status renderer.
const (
	saveCursor    = "\x1b7"
	restoreCursor = "\x1b8"
	clearLine     = "\x1b[K"
)

// Line renders a single-line status indicator to an output stream,
// falling back to plain logging when the stream isn't an interactive
// terminal or debug mode is on.
type Line struct {
	w       io.Writer
	tty     bool
	debug   bool
	logger  *dlog.Logger
	painted bool
}

// IsTTY reports whether w is a terminal, preferring x/term and falling
// back to go-isatty for file descriptors x/term's ConsoleMode probe
// doesn't cover.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		return true
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// New builds a Line writing to w. debug disables the cursor-control
// rendering even on a TTY, so verbose/debug runs get plain scrollback.
func New(w io.Writer, debug bool, logger *dlog.Logger) *Line {
	return &Line{w: w, tty: IsTTY(w), debug: debug, logger: logger}
}

// Update renders msg as the current status. On a non-debug TTY it
// overwrites the previous line in place; otherwise it's a plain log
// line via the shared Logger (so it interleaves sanely with warnings).
func (l *Line) Update(msg string) {
	if l.tty && !l.debug {
		if l.painted {
			fmt.Fprint(l.w, restoreCursor, clearLine)
		} else {
			fmt.Fprint(l.w, saveCursor)
		}
		fmt.Fprint(l.w, msg)
		l.painted = true
		return
	}
	l.logger.Printf("%s", msg)
}

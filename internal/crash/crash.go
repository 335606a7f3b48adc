// Package crash installs the daemon's fatal-signal handling: SEGV/ABRT/
// BUS/ILL/FPE produce a backtrace on stderr and exit 128+signal; SIGPIPE
// is ignored (a broken device/HA socket is an expected, recoverable
// condition handled at the I/O layer, not a crash).
//
// Raw signal numbers are read from golang.org/x/sys/unix rather than
// assumed. Go's runtime intercepts synchronous faults (SIGSEGV/SIGBUS/
// SIGILL/SIGFPE) itself before user signal handlers ever see them when
// they originate from Go code, so this handler's practical reach is
// signals raised explicitly (e.g. a test harness calling syscall.Kill)
// or delivered via cgo/a corrupted non-Go stack.
package crash

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"golang.org/x/sys/unix"
)

// fatalSignals are the signals that produce a backtrace and exit
// 128+sig rather than a graceful shutdown.
var fatalSignals = []os.Signal{
	syscall.Signal(unix.SIGSEGV),
	syscall.Signal(unix.SIGABRT),
	syscall.Signal(unix.SIGBUS),
	syscall.Signal(unix.SIGILL),
	syscall.Signal(unix.SIGFPE),
}

// Handler owns the fatal-signal and SIGPIPE-ignore registrations.
type Handler struct {
	out  io.Writer
	ch   chan os.Signal
	done chan struct{}
}

// Install registers the fatal-signal handler and starts ignoring
// SIGPIPE. Call Stop to unregister during a clean shutdown.
func Install(out io.Writer) *Handler {
	signal.Ignore(syscall.SIGPIPE)

	h := &Handler{
		out:  out,
		ch:   make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(h.ch, fatalSignals...)
	go h.run()
	return h
}

// Stop unregisters the handler.
func (h *Handler) Stop() {
	signal.Stop(h.ch)
	close(h.done)
}

func (h *Handler) run() {
	for {
		select {
		case <-h.done:
			return
		case sig := <-h.ch:
			h.handle(sig)
		}
	}
}

func (h *Handler) handle(sig os.Signal) {
	signum := signalNumber(sig)
	fmt.Fprintf(h.out, "fatal: signal %v (%d)\n", sig, signum)
	h.out.Write(debug.Stack())
	os.Exit(128 + signum)
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}

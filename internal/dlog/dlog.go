// Package dlog wraps the standard library's log.Logger with the small
// conveniences the daemon's event loop needs: a debug gate and a
// dedup-once warning map, so a flapping I/O error doesn't spam stderr
// every 100ms tick.
//
// NTM never imports a structured logging library (no zap/zerolog/
// logrus anywhere in the pack's teacher repos); it logs through stdlib
// log directly in internal/resilience/monitor.go, internal/config/
// watch.go, and internal/auth/restart.go. This package follows suit.
package dlog

import (
	"log"
	"os"
	"sync"
)

// Logger is a thin stdlib log.Logger wrapper with a debug gate and a
// warn-once dedup set.
type Logger struct {
	*log.Logger
	debug bool

	mu   sync.Mutex
	once map[string]bool
}

// New creates a Logger writing to stderr with the standard daemon
// prefix/flags.
func New(debug bool) *Logger {
	return &Logger{
		Logger: log.New(os.Stderr, "", log.LstdFlags),
		debug:  debug,
		once:   make(map[string]bool),
	}
}

// Debugf logs only when the logger was constructed with debug=true.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.Printf("DEBUG "+format, args...)
}

// WarnOnce logs a warning the first time key is seen and suppresses
// every subsequent call with the same key, so a repeatedly-failing
// recoverable operation doesn't flood the log.
func (l *Logger) WarnOnce(key, format string, args ...interface{}) {
	l.mu.Lock()
	seen := l.once[key]
	l.once[key] = true
	l.mu.Unlock()
	if seen {
		return
	}
	l.Printf("WARN "+format, args...)
}

// ClearOnce forgets key, so the next WarnOnce(key, ...) call logs again
// — used when a condition (e.g. device connectivity) recovers and later
// fails a second time.
func (l *Logger) ClearOnce(key string) {
	l.mu.Lock()
	delete(l.once, key)
	l.mu.Unlock()
}

// Package watcher wraps fsnotify for the one thing goofydeck needs it
// for: --watch-config's diagnostic report of config directory changes.
// It debounces bursts of events (editors often write several times per
// save) into a single batched callback.
package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned when operations are called on a closed Watcher.
var ErrClosed = errors.New("watcher: watcher is closed")

// EventType represents the type of file system event.
type EventType uint32

const (
	// Create is triggered when a file or directory is created.
	Create EventType = 1 << iota
	// Write is triggered when a file is modified.
	Write
	// Remove is triggered when a file or directory is removed.
	Remove
	// Rename is triggered when a file or directory is renamed.
	Rename
	// Chmod is triggered when file permissions change.
	Chmod
	// All events.
	All = Create | Write | Remove | Rename | Chmod
)

// Event represents a file system event.
type Event struct {
	// Path is the absolute path to the file or directory.
	Path string
	// Type is the type of event.
	Type EventType
	// IsDir is true if the event is for a directory.
	IsDir bool
}

// eventTypeFromFsnotify converts fsnotify.Op to EventType.
func eventTypeFromFsnotify(op fsnotify.Op) EventType {
	var t EventType
	if op.Has(fsnotify.Create) {
		t |= Create
	}
	if op.Has(fsnotify.Write) {
		t |= Write
	}
	if op.Has(fsnotify.Remove) {
		t |= Remove
	}
	if op.Has(fsnotify.Rename) {
		t |= Rename
	}
	if op.Has(fsnotify.Chmod) {
		t |= Chmod
	}
	return t
}

// Handler is called when a file system event occurs. Multiple events may
// be coalesced into a single call due to debouncing.
type Handler func(events []Event)

// ErrorHandler is called when a watch error occurs.
type ErrorHandler func(err error)

// Watcher watches directories for changes and reports them, debounced,
// to a Handler. goofydeck never reacts to the events itself (config is
// not hot-reloaded) — see cli.runWatchConfig, the only caller.
type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	debouncer    *Debouncer
	handler      Handler
	errorHandler ErrorHandler
	eventFilter  EventType

	mu            sync.Mutex
	watchedPaths  map[string]bool
	pendingEvents []Event
	closed        bool
}

// New creates a new Watcher. By default all event types are watched; use
// WithEventFilter to narrow that down.
func New(handler Handler, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher:    fsWatcher,
		debouncer:    NewDebouncer(DefaultDebounceDuration),
		handler:      handler,
		eventFilter:  All,
		watchedPaths: make(map[string]bool),
	}

	for _, opt := range opts {
		opt(w)
	}

	go w.run()
	return w, nil
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounceDuration sets the debounce duration for coalescing events.
func WithDebounceDuration(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debouncer = NewDebouncer(d)
		}
	}
}

// WithDebouncer sets a custom debouncer.
func WithDebouncer(d *Debouncer) Option {
	return func(w *Watcher) {
		if d != nil {
			w.debouncer = d
		}
	}
}

// WithEventFilter sets which event types to watch.
func WithEventFilter(filter EventType) Option {
	return func(w *Watcher) {
		w.eventFilter = filter
	}
}

// WithErrorHandler sets the error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(w *Watcher) {
		w.errorHandler = handler
	}
}

// Add adds a directory to the watcher. Non-recursive: only direct
// children of path are observed, which is all --watch-config needs for
// a flat config directory.
func (w *Watcher) Add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if w.watchedPaths[absPath] {
		return nil
	}

	if _, err := os.Stat(absPath); err != nil {
		return err
	}

	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}
	w.watchedPaths[absPath] = true
	return nil
}

// Remove removes a path from the watcher.
func (w *Watcher) Remove(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if !w.watchedPaths[absPath] {
		return nil
	}

	if err := w.fsWatcher.Remove(absPath); err != nil {
		return err
	}
	delete(w.watchedPaths, absPath)
	return nil
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.debouncer.Cancel()
	return w.fsWatcher.Close()
}

// WatchedPaths returns a slice of all currently watched paths.
func (w *Watcher) WatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.watchedPaths))
	for p := range w.watchedPaths {
		paths = append(paths, p)
	}
	return paths
}

// run processes events from fsnotify until the underlying watcher closes.
func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.errorHandler != nil {
				w.errorHandler(err)
			}
		}
	}
}

func (w *Watcher) handleEvent(fsEvent fsnotify.Event) {
	eventType := eventTypeFromFsnotify(fsEvent.Op)
	if eventType&w.eventFilter == 0 {
		return
	}

	isDir := false
	if info, err := os.Stat(fsEvent.Name); err == nil {
		isDir = info.IsDir()
	}

	event := Event{Path: fsEvent.Name, Type: eventType, IsDir: isDir}

	if eventType&(Remove|Rename) != 0 {
		w.mu.Lock()
		delete(w.watchedPaths, fsEvent.Name)
		w.mu.Unlock()
	}

	w.mu.Lock()
	w.pendingEvents = append(w.pendingEvents, event)
	w.mu.Unlock()

	w.debouncer.Trigger(func() {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		toDeliver := w.pendingEvents
		w.pendingEvents = nil
		w.mu.Unlock()

		if len(toDeliver) > 0 && w.handler != nil {
			w.handler(toDeliver)
		}
	})
}

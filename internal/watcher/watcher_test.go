package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestNewWatcher(t *testing.T) {
	w, err := New(func(events []Event) {})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer w.Close()

	if w.fsWatcher == nil {
		t.Error("fsWatcher should not be nil")
	}
	if w.debouncer == nil {
		t.Error("debouncer should not be nil")
	}
	if w.eventFilter != All {
		t.Errorf("eventFilter = %v, want %v", w.eventFilter, All)
	}
}

func TestWatcherWithOptions(t *testing.T) {
	debouncer := NewDebouncer(500 * time.Millisecond)
	errorHandler := func(err error) {}

	w, err := New(
		func(events []Event) {},
		WithDebouncer(debouncer),
		WithEventFilter(Create|Write),
		WithErrorHandler(errorHandler),
	)
	if err != nil {
		t.Fatalf("New() with options failed: %v", err)
	}
	defer w.Close()

	if w.debouncer != debouncer {
		t.Error("debouncer not set correctly")
	}
	if w.eventFilter != Create|Write {
		t.Errorf("eventFilter = %v, want %v", w.eventFilter, Create|Write)
	}
	if w.errorHandler == nil {
		t.Error("errorHandler should not be nil")
	}
}

func TestWatcherAddRemove(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New(func(events []Event) {})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer w.Close()

	if err := w.Add(tmpDir); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	paths := w.WatchedPaths()
	if len(paths) != 1 {
		t.Errorf("WatchedPaths() = %v, want 1 path", paths)
	}

	if err := w.Add(tmpDir); err != nil {
		t.Fatalf("Add() again failed: %v", err)
	}
	paths = w.WatchedPaths()
	if len(paths) != 1 {
		t.Errorf("WatchedPaths() after duplicate add = %v, want 1 path", paths)
	}

	if err := w.Remove(tmpDir); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	paths = w.WatchedPaths()
	if len(paths) != 0 {
		t.Errorf("WatchedPaths() after remove = %v, want 0 paths", paths)
	}
}

func TestWatcherEvents(t *testing.T) {
	tmpDir := t.TempDir()

	var mu sync.Mutex
	var receivedEvents []Event
	eventReceived := make(chan struct{}, 10)

	w, err := New(
		func(events []Event) {
			mu.Lock()
			receivedEvents = append(receivedEvents, events...)
			mu.Unlock()
			select {
			case eventReceived <- struct{}{}:
			default:
			}
		},
		WithDebouncer(NewDebouncer(50*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer w.Close()

	if err := w.Add(tmpDir); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case <-eventReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	mu.Lock()
	defer mu.Unlock()

	if len(receivedEvents) == 0 {
		t.Error("expected at least one event")
		return
	}

	found := false
	for _, e := range receivedEvents {
		if filepath.Base(e.Path) == "test.txt" && e.Type&Create != 0 {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("expected Create event for test.txt, got %+v", receivedEvents)
	}
}

func TestWatcherEventFilter(t *testing.T) {
	tmpDir := t.TempDir()

	var mu sync.Mutex
	var receivedEvents []Event
	eventReceived := make(chan struct{}, 10)

	w, err := New(
		func(events []Event) {
			mu.Lock()
			receivedEvents = append(receivedEvents, events...)
			mu.Unlock()
			select {
			case eventReceived <- struct{}{}:
			default:
			}
		},
		WithEventFilter(Write),
		WithDebouncer(NewDebouncer(50*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer w.Close()

	if err := w.Add(tmpDir); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(testFile, []byte("world"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case <-eventReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	mu.Lock()
	defer mu.Unlock()

	for _, e := range receivedEvents {
		if e.Type&Write == 0 {
			t.Errorf("expected only Write events, got %+v", e)
		}
	}
}

func TestWatcherClose(t *testing.T) {
	w, err := New(func(events []Event) {})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() again failed: %v", err)
	}

	tmpDir := t.TempDir()
	if err := w.Add(tmpDir); err != ErrClosed {
		t.Errorf("Add() after close = %v, want %v", err, ErrClosed)
	}
	if err := w.Remove(tmpDir); err != ErrClosed {
		t.Errorf("Remove() after close = %v, want %v", err, ErrClosed)
	}
}

func TestEventType(t *testing.T) {
	tests := []struct {
		name       string
		eventType  EventType
		wantCreate bool
		wantWrite  bool
		wantRemove bool
	}{
		{"Create", Create, true, false, false},
		{"Write", Write, false, true, false},
		{"Remove", Remove, false, false, true},
		{"Create|Write", Create | Write, true, true, false},
		{"All", All, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType&Create != 0; got != tt.wantCreate {
				t.Errorf("Create = %v, want %v", got, tt.wantCreate)
			}
			if got := tt.eventType&Write != 0; got != tt.wantWrite {
				t.Errorf("Write = %v, want %v", got, tt.wantWrite)
			}
			if got := tt.eventType&Remove != 0; got != tt.wantRemove {
				t.Errorf("Remove = %v, want %v", got, tt.wantRemove)
			}
		})
	}
}

func TestWatcherNonExistentPath(t *testing.T) {
	w, err := New(func(events []Event) {})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer w.Close()

	err = w.Add("/nonexistent/path/that/does/not/exist")
	if err == nil {
		t.Error("Add() for non-existent path should fail")
	}
}

func TestEventTypeFromFsnotify(t *testing.T) {
	tests := []struct {
		op       fsnotify.Op
		expected EventType
	}{
		{fsnotify.Create, Create},
		{fsnotify.Write, Write},
		{fsnotify.Remove, Remove},
		{fsnotify.Rename, Rename},
		{fsnotify.Chmod, Chmod},
		{fsnotify.Create | fsnotify.Write, Create | Write},
	}

	for _, tt := range tests {
		got := eventTypeFromFsnotify(tt.op)
		if got != tt.expected {
			t.Errorf("eventTypeFromFsnotify(%v) = %v, want %v", tt.op, got, tt.expected)
		}
	}
}

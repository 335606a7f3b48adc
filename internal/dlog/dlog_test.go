package dlog

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func newBufLogger(debug bool) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := &Logger{Logger: log.New(&buf, "", 0), debug: debug, once: make(map[string]bool)}
	return l, &buf
}

func TestDebugfGatedByFlag(t *testing.T) {
	l, buf := newBufLogger(false)
	l.Debugf("hello %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output when debug disabled, got %q", buf.String())
	}

	l2, buf2 := newBufLogger(true)
	l2.Debugf("hello %d", 1)
	if !strings.Contains(buf2.String(), "hello 1") {
		t.Fatalf("expected debug output, got %q", buf2.String())
	}
}

func TestWarnOnceDedups(t *testing.T) {
	l, buf := newBufLogger(false)
	l.WarnOnce("device-down", "device not ready")
	l.WarnOnce("device-down", "device not ready")
	count := strings.Count(buf.String(), "device not ready")
	if count != 1 {
		t.Fatalf("expected exactly one warning, got %d", count)
	}
}

func TestClearOnceAllowsReWarn(t *testing.T) {
	l, buf := newBufLogger(false)
	l.WarnOnce("device-down", "down")
	l.ClearOnce("device-down")
	l.WarnOnce("device-down", "down")
	if strings.Count(buf.String(), "down") != 2 {
		t.Fatalf("expected two warnings after clear, got %q", buf.String())
	}
}

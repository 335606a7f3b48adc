package device

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

// newTestServer starts a Unix-domain listener that replies canned lines to
// each connection in order, returning a Dialer wired to it.
func newTestServer(t *testing.T, replies ...string) (Dialer, func()) {
	t.Helper()
	ln, err := net.Listen("unix", t.TempDir()+"/sock")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	idx := 0
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn, reply string) {
				defer c.Close()
				r := bufio.NewReader(c)
				if _, err := r.ReadString('\n'); err != nil {
					return
				}
				c.Write([]byte(reply + "\n"))
			}(conn, replies[idx%len(replies)])
			idx++
		}
	}()
	dial := func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", ln.Addr().String())
	}
	return dial, func() { ln.Close() }
}

func TestSetBrightnessOK(t *testing.T) {
	dial, closeFn := newTestServer(t, "ok")
	defer closeFn()

	c := NewClientWithDialer(dial, 10*time.Millisecond)
	if err := c.SetBrightness(context.Background(), 50); err != nil {
		t.Fatalf("SetBrightness: %v", err)
	}
	if !c.Ready() {
		t.Error("expected ready after ok reply")
	}
}

func TestNotReadyOnErrNoDevice(t *testing.T) {
	dial, closeFn := newTestServer(t, "err no_device")
	defer closeFn()

	c := NewClientWithDialer(dial, 10*time.Millisecond)
	err := c.SetBrightness(context.Background(), 50)
	if err == nil {
		t.Fatal("expected error")
	}
	if c.Ready() {
		t.Error("expected not-ready after err no_device")
	}
}

func TestDebounceEnforcesMinimumGap(t *testing.T) {
	dial, closeFn := newTestServer(t, "ok")
	defer closeFn()

	debounce := 80 * time.Millisecond
	c := NewClientWithDialer(dial, debounce)
	ctx := context.Background()

	start := time.Now()
	if err := c.SetBrightness(ctx, 10); err != nil {
		t.Fatalf("first send: %v", err)
	}
	firstEnd := time.Now()
	if err := c.SetBrightness(ctx, 20); err != nil {
		t.Fatalf("second send: %v", err)
	}
	secondEnd := time.Now()

	gap := secondEnd.Sub(firstEnd)
	if gap < debounce-5*time.Millisecond {
		t.Errorf("expected gap >= ~%v between completions, got %v (total elapsed %v)", debounce, gap, secondEnd.Sub(start))
	}
}

func TestSanitizeLabel(t *testing.T) {
	cases := map[string]string{
		"hello world": "hello_world",
		"tab\ttab":    "tab_tab",
		"clean":       "clean",
		"héllo":       "héllo",
	}
	for in, want := range cases {
		if got := SanitizeLabel(in); got != want {
			t.Errorf("SanitizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseEventLine(t *testing.T) {
	evt, ok, err := ParseEventLine("button 3 TAP")
	if err != nil || !ok {
		t.Fatalf("expected ok button event, got ok=%v err=%v", ok, err)
	}
	if evt.Button != 3 || evt.Type != "TAP" {
		t.Errorf("parsed %+v", evt)
	}

	if !IsConnected("evt connected") {
		t.Error("expected evt connected to be recognized")
	}
	if !IsDisconnected("evt disconnected") {
		t.Error("expected evt disconnected to be recognized")
	}

	_, ok, _ = ParseEventLine("evt connected")
	if ok {
		t.Error("lifecycle line should not parse as a button event")
	}
}

func TestSetButtonsExplicitBuildsCommand(t *testing.T) {
	ln, err := net.Listen("unix", t.TempDir()+"/sock")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		received <- strings.TrimSpace(line)
		conn.Write([]byte("ok\n"))
	}()

	dial := func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", ln.Addr().String())
	}
	c := NewClientWithDialer(dial, time.Millisecond)
	err = c.SetButtonsExplicit(context.Background(), map[int]ButtonSpec{
		1: {Path: "/a.png", Label: "Hi there"},
		2: {Path: "/b.png"},
	})
	if err != nil {
		t.Fatalf("SetButtonsExplicit: %v", err)
	}

	select {
	case line := <-received:
		if !strings.Contains(line, "--button-1=/a.png") || !strings.Contains(line, "--label-1=Hi_there") {
			t.Errorf("unexpected command line: %q", line)
		}
		if !strings.Contains(line, "--button-2=/b.png") {
			t.Errorf("missing button 2 in command: %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
	}
}

// Package control implements the local control socket: start/stop of
// action dispatch, synthetic button injection, and last-page
// persistence/reload.
//
// The listen-accept-handle-one-line-per-connection shape mirrors the
// device and HA client packages' socket idiom in this module.
package control

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/wozt/goofydeck-sub000/internal/dlog"
)

// Handler performs the side effects a control command requests. It is
// implemented by the daemon package.
type Handler interface {
	SetDispatchEnabled(enabled bool)
	SimulateButton(button int, event string) error
	LoadLastPage() error
}

// Surface owns the control listener.
type Surface struct {
	listener net.Listener
	handler  Handler
	logger   *dlog.Logger
}

// Listen creates (or replaces) a unix-domain control socket at path.
func Listen(path string, handler Handler, logger *dlog.Logger) (*Surface, error) {
	_ = os.Remove(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("control: state dir: %w", err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control: listen %s: %w", path, err)
	}
	return &Surface{listener: l, handler: handler, logger: logger}, nil
}

// Close stops accepting new connections.
func (s *Surface) Close() error { return s.listener.Close() }

// AcceptOnce performs one accept + handle cycle. A net.Listener does not
// expose a true non-blocking Accept, so the caller is expected to run
// this inside its own listening goroutine and communicate in-line
// through handler calls (see internal/daemon).
func (s *Surface) AcceptOnce() error {
	conn, err := s.listener.Accept()
	if err != nil {
		return err
	}
	s.handleConn(conn)
	return nil
}

// logf logs a diagnostic message if the surface was given a logger; a
// nil logger is tolerated so tests can construct a Surface without one.
func (s *Surface) logf(format string, args ...interface{}) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func (s *Surface) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	line := strings.TrimSpace(scanner.Text())
	reply := s.dispatch(line)
	fmt.Fprintln(conn, reply)
}

var simulateArgRe = regexp.MustCompile(`^([A-Za-z]+)(\d{1,2})$`)

var validSimulateEvents = map[string]bool{
	"TAP":      true,
	"HOLD":     true,
	"LONGHOLD": true,
	"RELEASED": true,
}

func (s *Surface) dispatch(line string) string {
	switch {
	case line == "stop-control":
		s.handler.SetDispatchEnabled(false)
		return "ok"
	case line == "start-control":
		s.handler.SetDispatchEnabled(true)
		return "ok"
	case line == "load-last-page":
		if err := s.handler.LoadLastPage(); err != nil {
			return "err " + err.Error()
		}
		return "ok"
	case strings.HasPrefix(line, "simulate-button"):
		arg := strings.TrimSpace(strings.TrimPrefix(line, "simulate-button"))
		m := simulateArgRe.FindStringSubmatch(arg)
		if m == nil || !validSimulateEvents[m[1]] {
			s.logf("simulate-button: malformed event name %q", arg)
			return "unknown"
		}
		btn, _ := strconv.Atoi(m[2])
		if btn < 1 || btn > 14 {
			s.logf("simulate-button: button %d out of range", btn)
			return "unknown"
		}
		if err := s.handler.SimulateButton(btn, m[1]); err != nil {
			return "err " + err.Error()
		}
		return "ok"
	default:
		return "unknown"
	}
}

const (
	lastPageFile   = "last_page"
	lastOffsetFile = "last_offset"
)

// SaveLastPage persists the currently visible page and offset under
// stateDir, newline-terminated and decimal respectively.
func SaveLastPage(stateDir, page string, offset int) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("control: state dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, lastPageFile), []byte(page+"\n"), 0o644); err != nil {
		return fmt.Errorf("control: write last_page: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, lastOffsetFile), []byte(strconv.Itoa(offset)), 0o644); err != nil {
		return fmt.Errorf("control: write last_offset: %w", err)
	}
	return nil
}

// LoadLastPage reads back the persisted page/offset. Missing or
// unparsable files are treated as absent: the daemon falls back to its
// own defaults rather than treating this as fatal.
func LoadLastPage(stateDir string) (page string, offset int, ok bool) {
	pageBytes, err := os.ReadFile(filepath.Join(stateDir, lastPageFile))
	if err != nil {
		return "", 0, false
	}
	page = strings.TrimSpace(string(pageBytes))
	if page == "" {
		return "", 0, false
	}
	offsetBytes, err := os.ReadFile(filepath.Join(stateDir, lastOffsetFile))
	if err != nil {
		return page, 0, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(offsetBytes)))
	if err != nil {
		return page, 0, true
	}
	return page, n, true
}

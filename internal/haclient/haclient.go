// Package haclient speaks the line-oriented protocol to the local
// home-automation side-car: subscribe/unsubscribe to entity state changes,
// one-shot state reads, and fire-and-forget service calls.
package haclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Dialer opens a connection to the HA side-car. Overridable in tests.
type Dialer func(ctx context.Context) (net.Conn, error)

// State is the minimal projection of an entity's state the daemon cares
// about: the state string and its display unit, if any. Extracted from the
// side-car's JSON payload by looking at exactly the "state" and
// "attributes.unit_of_measurement" keys — the daemon has no use for the
// rest of the entity's attributes, so a plain encoding/json decode into an
// anonymous struct holding only those two fields is the tokenizer.
type State struct {
	Value string
	Unit  string
}

// ParseState decodes a side-car state JSON payload into a State.
func ParseState(raw []byte) (State, error) {
	var doc struct {
		State      string `json:"state"`
		Attributes struct {
			UnitOfMeasurement string `json:"unit_of_measurement"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return State{}, fmt.Errorf("parse HA state payload: %w", err)
	}
	return State{Value: doc.State, Unit: doc.Attributes.UnitOfMeasurement}, nil
}

// Client manages subscriptions and calls against the HA side-car over a
// single persistent connection.
type Client struct {
	dial Dialer

	mu     sync.Mutex
	conn   net.Conn
	writer *bufio.Writer
	reader *bufio.Scanner

	states map[string]State
	subs   map[string]int // entity_id -> sub_id
}

// NewClient creates a client dialing a Unix socket at path.
func NewClient(path string) *Client {
	return NewClientWithDialer(func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	})
}

// NewClientWithDialer creates a client using a custom Dialer, for tests.
func NewClientWithDialer(dial Dialer) *Client {
	return &Client{
		dial:   dial,
		states: make(map[string]State),
		subs:   make(map[string]int),
	}
}

// Connect establishes the persistent connection, if not already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial HA socket: %w", err)
	}
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.reader = bufio.NewScanner(conn)
	return nil
}

// Connected reports whether the persistent connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears down the connection and forgets all subscriptions — callers
// must resubscribe after reconnecting.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.subs = make(map[string]int)
}

func (c *Client) writeLine(line string) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if _, err := c.writer.WriteString(line + "\n"); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Client) readLine() (string, error) {
	if !c.reader.Scan() {
		if err := c.reader.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("HA socket closed")
	}
	return c.reader.Text(), nil
}

// Subscribe issues "sub-state <entity_id>" and records the returned
// subscription id.
func (c *Client) Subscribe(entityID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeLine("sub-state " + entityID); err != nil {
		return 0, err
	}
	reply, err := c.readLine()
	if err != nil {
		return 0, err
	}
	id, err := parseSubID(reply)
	if err != nil {
		return 0, err
	}
	c.subs[entityID] = id
	return id, nil
}

func parseSubID(reply string) (int, error) {
	const prefix = "ok sub_id="
	if !strings.HasPrefix(reply, prefix) {
		return 0, fmt.Errorf("unexpected subscribe reply: %s", reply)
	}
	return strconv.Atoi(strings.TrimPrefix(reply, prefix))
}

// Unsubscribe issues "unsub <id>".
func (c *Client) Unsubscribe(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeLine(fmt.Sprintf("unsub %d", id)); err != nil {
		return err
	}
	_, err := c.readLine()
	return err
}

// UnsubscribeAll unsubscribes from every currently tracked entity, used on
// page leave.
func (c *Client) UnsubscribeAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]int)
	c.mu.Unlock()

	for _, id := range subs {
		_ = c.Unsubscribe(id)
	}
}

// Get issues "get <entity_id>" and primes the state cache.
func (c *Client) Get(entityID string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeLine("get " + entityID); err != nil {
		return State{}, err
	}
	reply, err := c.readLine()
	if err != nil {
		return State{}, err
	}
	const prefix = "ok "
	if !strings.HasPrefix(reply, prefix) {
		return State{}, fmt.Errorf("unexpected get reply: %s", reply)
	}
	state, err := ParseState([]byte(strings.TrimPrefix(reply, prefix)))
	if err != nil {
		return State{}, err
	}
	c.states[entityID] = state
	return state, nil
}

// Call issues a fire-and-forget service call.
func (c *Client) Call(domain, service string, data map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal call payload: %w", err)
	}
	return c.writeLine(fmt.Sprintf("call %s %s %s", domain, service, payload))
}

// State returns the last known state for entityID and whether it is
// present.
func (c *Client) State(entityID string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[entityID]
	return s, ok
}

// ApplyStateEvent updates the state map from a received "evt state
// <entity_id> <json>" line's parsed fields. Returns whether the value
// changed from what was previously known.
func (c *Client) ApplyStateEvent(entityID string, raw []byte) (State, bool, error) {
	state, err := ParseState(raw)
	if err != nil {
		return State{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old, existed := c.states[entityID]
	c.states[entityID] = state
	changed := !existed || old != state
	return state, changed, nil
}

// ReadEventLine blocks for the next line off the persistent connection —
// callers use this to pull "evt state ..." /
// "evt connected" / "evt disconnected" / "err ..." lines.
func (c *Client) ReadEventLine() (string, error) {
	return c.readLine()
}

// ParsedEvent is one decoded push line from the side-car.
type ParsedEvent struct {
	Kind     string // "state", "connected", "disconnected", "err"
	EntityID string
	Raw      []byte
	Message  string
}

// ParseEventLine decodes one "evt ..." or "err ..." line.
func ParseEventLine(line string) (ParsedEvent, error) {
	switch {
	case line == "evt connected":
		return ParsedEvent{Kind: "connected"}, nil
	case line == "evt disconnected":
		return ParsedEvent{Kind: "disconnected"}, nil
	case strings.HasPrefix(line, "evt state "):
		rest := strings.TrimPrefix(line, "evt state ")
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 {
			return ParsedEvent{}, fmt.Errorf("malformed state event: %s", line)
		}
		return ParsedEvent{Kind: "state", EntityID: parts[0], Raw: []byte(parts[1])}, nil
	case strings.HasPrefix(line, "err "):
		return ParsedEvent{Kind: "err", Message: strings.TrimPrefix(line, "err ")}, nil
	default:
		return ParsedEvent{}, fmt.Errorf("unrecognized HA event line: %s", line)
	}
}

// ValueDisplayText renders a value-display entity's state+unit as the text
// an item should show when no states: mapping overrides it.
func ValueDisplayText(s State) string {
	if s.Unit == "" {
		return s.Value
	}
	return s.Value + s.Unit
}

package cmdengine

import (
	"sync"
	"time"
)

// Key identifies the (page, item) pair a CmdEntry belongs to. The engine
// holds at most one CmdEntry pointer per Key, and that pointer's address
// never moves once created.
type Key struct {
	Page  string
	Index int
}

// PollSpec is the active poll configuration copied into an entry by
// $cmd.poll_start.
type PollSpec struct {
	Cmd     string
	EveryMs int
	IsText  bool // true for $cmd.exec_text, false for $cmd.exec
	Trim    bool
	MaxLen  int
}

// StateSpec is the active state_cmd configuration.
type StateSpec struct {
	Cmd     string
	EveryMs int
}

// CmdEntry holds one item's background-command state. It carries a mutex
// and must never be copied or relocated — the engine stores it behind a
// pointer in a map keyed by Key (see Engine.entries).
type CmdEntry struct {
	mu sync.Mutex

	key Key

	poll      PollSpec
	pollOn    bool
	stateSpec StateSpec
	stateOn   bool

	lastText string
	lastState string
	lastSentText string
	lastSentState string

	pollGen  uint64
	stateGen uint64

	nextPoll  time.Time
	nextState time.Time

	pollRunning  bool
	stateRunning bool
}

// Snapshot is a point-in-time copy of an entry's externally visible
// fields, safe to read without holding the entry's mutex afterward.
type Snapshot struct {
	Key           Key
	Text          string
	State         string
	SentText      string
	SentState     string
	PollActive    bool
	StateActive   bool
}

func (e *CmdEntry) snapshot() Snapshot {
	return Snapshot{
		Key:         e.key,
		Text:        e.lastText,
		State:       e.lastState,
		SentText:    e.lastSentText,
		SentState:   e.lastSentState,
		PollActive:  e.pollOn,
		StateActive: e.stateOn,
	}
}

// MarkSent records what was most recently pushed to the device for this
// entry, so the partial updater can detect "nothing actually changed" by
// comparing against these fields one at a time.
func (e *CmdEntry) MarkSent(text, state string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSentText = text
	e.lastSentState = state
}

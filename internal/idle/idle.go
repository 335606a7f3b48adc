// Package idle implements the NORMAL/DIM/SLEEP brightness state machine:
// purely timer-driven transitions evaluated every scheduler tick, with a
// wake-without-action policy on the triggering key press.
package idle

import "time"

// State is one of the three brightness levels the machine can be in.
type State string

const (
	Normal State = "normal"
	Dim    State = "dim"
	Sleep  State = "sleep"
)

// Machine tracks idle time since the last button event and derives the
// brightness state and level that should currently be applied.
type Machine struct {
	baseBrightness     int
	dimBrightness      int
	dimTimeout         time.Duration
	sleepTimeout       time.Duration
	lastActivity       time.Time
	state              State
	lastBrightnessTry  time.Time
	brightnessApplied  int // -1 means "not yet applied / unknown"
}

// New creates a machine with the given timeouts; a zero timeout
// disables that tier.
func New(baseBrightness, dimBrightness int, dimTimeout, sleepTimeout time.Duration) *Machine {
	return &Machine{
		baseBrightness:    baseBrightness,
		dimBrightness:     dimBrightness,
		dimTimeout:        dimTimeout,
		sleepTimeout:      sleepTimeout,
		lastActivity:      time.Now(),
		state:             Normal,
		brightnessApplied: -1,
	}
}

// State reports the machine's current tier.
func (m *Machine) State() State { return m.state }

// Brightness returns the level that corresponds to a state.
func (m *Machine) Brightness(s State) int {
	switch s {
	case Sleep:
		return 0
	case Dim:
		return m.dimBrightness
	default:
		return m.baseBrightness
	}
}

// Tick re-evaluates the state against idle time and returns the state
// that should now apply. The caller is responsible for actually sending
// the brightness command and for calling RecordApplied once it
// succeeds.
func (m *Machine) Tick(now time.Time) State {
	idle := now.Sub(m.lastActivity)
	switch {
	case m.sleepTimeout > 0 && idle >= m.sleepTimeout:
		m.state = Sleep
	case m.dimTimeout > 0 && idle >= m.dimTimeout:
		m.state = Dim
	default:
		m.state = Normal
	}
	return m.state
}

// NeedsBrightnessRetry reports whether the last attempt to push the
// brightness level failed and at least 1s has passed.
func (m *Machine) NeedsBrightnessRetry(now time.Time, lastAttemptFailed bool) bool {
	if !lastAttemptFailed {
		return false
	}
	return now.Sub(m.lastBrightnessTry) >= time.Second
}

// RecordBrightnessAttempt notes that a send was just attempted (used to
// gate the 1s retry backoff regardless of success).
func (m *Machine) RecordBrightnessAttempt(now time.Time) {
	m.lastBrightnessTry = now
}

// RecordApplied notes that level was successfully applied to the device.
func (m *Machine) RecordApplied(level int) {
	m.brightnessApplied = level
}

// AppliedBrightness returns the last successfully applied level, or -1
// if none has been applied yet.
func (m *Machine) AppliedBrightness() int { return m.brightnessApplied }

// WakeEvent is what the caller should do in response to a button event
// arriving while the machine is not in NORMAL state.
type WakeEvent struct {
	// WasAsleepOrDim is true if the machine was in DIM or SLEEP before
	// this call.
	WasAsleepOrDim bool
	// SwallowAction is true when the event itself must not be dispatched
	// (true only when waking from SLEEP).
	SwallowAction bool
}

// OnButtonEvent records activity and reports whether the caller must
// restore NORMAL brightness and swallow the triggering action before
// dispatching it: leaving SLEEP/DIM by a key press restores NORMAL
// brightness before any action dispatch, and a wake from SLEEP swallows
// the triggering event entirely.
func (m *Machine) OnButtonEvent(now time.Time) WakeEvent {
	prev := m.state
	m.lastActivity = now
	m.state = Normal
	if prev == Normal {
		return WakeEvent{}
	}
	return WakeEvent{WasAsleepOrDim: true, SwallowAction: prev == Sleep}
}

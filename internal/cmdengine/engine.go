// Package cmdengine runs the background command scheduler: periodic
// "poll" and "state_cmd" shell commands bound to items, plus one-shot
// exec/exec_text/exec_stop/text_clear verbs dispatched by the action
// dispatcher.
//
// Entries live behind a map of mutex-protected pointers guarded by an
// engine-level mutex, with a dedicated scheduler goroutine ticking
// over them — each entry's own mutex lets a running command update its
// snapshot without blocking the scheduler's due-work scan.
package cmdengine

import (
	"context"
	"sync"
	"time"
)

// SchedulerTick is the cadence at which the engine checks entries for due
// work.
const SchedulerTick = 200 * time.Millisecond

const errText = "ERR"
const errState = "err"

// Engine owns every item's CmdEntry and the goroutine that schedules their
// poll/state_cmd work.
type Engine struct {
	cmdTimeout time.Duration

	mu      sync.Mutex // protects entries/order only — never held during I/O
	entries map[Key]*CmdEntry
	order   []Key // grow-only, for deterministic snapshot iteration

	notify chan struct{} // one-slot "a result changed" signal, like a notify pipe

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an engine whose shell commands are bounded by
// cmdTimeout.
func NewEngine(cmdTimeout time.Duration) *Engine {
	if cmdTimeout <= 0 {
		cmdTimeout = 3 * time.Second
	}
	return &Engine{
		cmdTimeout: cmdTimeout,
		entries:    make(map[Key]*CmdEntry),
		notify:     make(chan struct{}, 1),
	}
}

// NotifyChan is readable by the event loop's select to learn that some
// entry's captured text/state changed.
func (e *Engine) NotifyChan() <-chan struct{} { return e.notify }

func (e *Engine) signal() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// EnsureEntry returns the stable *CmdEntry for key, creating it under the
// engine mutex if this is the first reference.
func (e *Engine) EnsureEntry(key Key) *CmdEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.entries[key]; ok {
		return entry
	}
	entry := &CmdEntry{key: key}
	e.entries[key] = entry
	e.order = append(e.order, key)
	return entry
}

// Snapshot copies every entry's externally visible state. The engine
// mutex is only held to copy the key list; each entry's own mutex guards
// its fields.
func (e *Engine) Snapshot() []Snapshot {
	e.mu.Lock()
	keys := make([]Key, len(e.order))
	copy(keys, e.order)
	entries := make([]*CmdEntry, len(keys))
	for i, k := range keys {
		entries[i] = e.entries[k]
	}
	e.mu.Unlock()

	out := make([]Snapshot, len(entries))
	for i, entry := range entries {
		entry.mu.Lock()
		out[i] = entry.snapshot()
		entry.mu.Unlock()
	}
	return out
}

// Start begins the scheduler loop. Cancel ctx or call Stop to end it.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(SchedulerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	now := time.Now()
	for _, entry := range e.snapshotPointers() {
		e.maybeDispatchPoll(ctx, entry, now)
		e.maybeDispatchState(ctx, entry, now)
	}
}

func (e *Engine) snapshotPointers() []*CmdEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*CmdEntry, 0, len(e.order))
	for _, k := range e.order {
		out = append(out, e.entries[k])
	}
	return out
}

func (e *Engine) maybeDispatchPoll(ctx context.Context, entry *CmdEntry, now time.Time) {
	entry.mu.Lock()
	due := entry.pollOn && !entry.pollRunning && !now.Before(entry.nextPoll)
	if !due {
		entry.mu.Unlock()
		return
	}
	entry.pollRunning = true
	gen := entry.pollGen
	spec := entry.poll
	entry.mu.Unlock()

	go e.runPoll(ctx, entry, gen, spec)
}

func (e *Engine) runPoll(ctx context.Context, entry *CmdEntry, gen uint64, spec PollSpec) {
	res := runShell(ctx, spec.Cmd, e.cmdTimeout, spec.IsText)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.pollRunning = false
	if gen != entry.pollGen {
		return // stale: poll_stop/poll_start/exec_stop happened mid-flight
	}
	if spec.IsText {
		if res.err != nil {
			entry.lastText = errText
		} else {
			entry.lastText = postProcess(res.stdout, spec.Trim, spec.MaxLen)
		}
	}
	if spec.EveryMs > 0 {
		entry.nextPoll = time.Now().Add(time.Duration(spec.EveryMs) * time.Millisecond)
	}
	e.signal()
}

func (e *Engine) maybeDispatchState(ctx context.Context, entry *CmdEntry, now time.Time) {
	entry.mu.Lock()
	due := entry.stateOn && !entry.stateRunning && !now.Before(entry.nextState)
	if !due {
		entry.mu.Unlock()
		return
	}
	entry.stateRunning = true
	gen := entry.stateGen
	spec := entry.stateSpec
	entry.mu.Unlock()

	go e.runState(ctx, entry, gen, spec)
}

func (e *Engine) runState(ctx context.Context, entry *CmdEntry, gen uint64, spec StateSpec) {
	res := runShell(ctx, spec.Cmd, e.cmdTimeout, true)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.stateRunning = false
	if gen != entry.stateGen {
		return
	}
	if res.err != nil {
		entry.lastState = errState
	} else {
		entry.lastState = postProcess(res.stdout, true, 0)
	}
	if spec.EveryMs > 0 {
		entry.nextState = time.Now().Add(time.Duration(spec.EveryMs) * time.Millisecond)
	}
	e.signal()
}

// PollStart implements $cmd.poll_start: copy the configured poll spec into
// the active slot and run it immediately.
func (e *Engine) PollStart(key Key, spec PollSpec) {
	entry := e.EnsureEntry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.poll = spec
	entry.pollOn = true
	entry.pollGen++
	entry.nextPoll = time.Time{} // zero deadline: due immediately
}

// PollStop implements $cmd.poll_stop: deactivate, bump the generation so
// any in-flight worker's result is discarded, and clear last_text (but not
// last_sent_text) so the caller detects the reversion to the base icon.
func (e *Engine) PollStop(key Key) {
	entry := e.EnsureEntry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.pollOn = false
	entry.pollGen++
	entry.lastText = ""
	e.signal()
}

// ExecStop implements $cmd.exec_stop: stop everything on this entry and
// clear its state.
func (e *Engine) ExecStop(key Key) {
	entry := e.EnsureEntry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.pollOn = false
	entry.stateOn = false
	entry.pollGen++
	entry.stateGen++
	entry.lastText = ""
	entry.lastState = ""
	e.signal()
}

// TextClear implements $cmd.text_clear: clear last_text and trigger a
// repaint.
func (e *Engine) TextClear(key Key) {
	entry := e.EnsureEntry(key)
	entry.mu.Lock()
	entry.lastText = ""
	entry.mu.Unlock()
	e.signal()
}

// Exec implements $cmd.exec: a detached fire-and-forget shell command, not
// tied to any item's entry.
func (e *Engine) Exec(ctx context.Context, cmdline string) {
	go runShell(ctx, cmdline, e.cmdTimeout, false)
}

// ExecText implements $cmd.exec_text: a one-shot capture into the entry's
// last_text slot, with no periodic rescheduling.
func (e *Engine) ExecText(ctx context.Context, key Key, cmdline string, trim bool, maxLen int) {
	entry := e.EnsureEntry(key)
	entry.mu.Lock()
	gen := entry.pollGen
	entry.mu.Unlock()

	go func() {
		res := runShell(ctx, cmdline, e.cmdTimeout, true)
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if gen != entry.pollGen {
			return
		}
		if res.err != nil {
			entry.lastText = errText
		} else {
			entry.lastText = postProcess(res.stdout, trim, maxLen)
		}
		e.signal()
	}()
}

// ArmStateSampling enables state_cmd sampling for key, called on page
// enter for every item on the page that has one configured.
func (e *Engine) ArmStateSampling(key Key, spec StateSpec) {
	entry := e.EnsureEntry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.stateSpec = spec
	entry.stateOn = spec.EveryMs > 0
	entry.stateGen++
	entry.nextState = time.Time{}
}

// DisarmStateSampling disables state_cmd sampling for key, called when
// navigating off the page that owns it.
func (e *Engine) DisarmStateSampling(key Key) {
	entry := e.EnsureEntry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.stateOn = false
	entry.stateGen++
	entry.nextState = time.Time{}
}

// MarkSent looks up key's entry (if any) and records what was last pushed
// to the device, for partial-update change detection.
func (e *Engine) MarkSent(key Key, text, state string) {
	e.mu.Lock()
	entry, ok := e.entries[key]
	e.mu.Unlock()
	if ok {
		entry.MarkSent(text, state)
	}
}

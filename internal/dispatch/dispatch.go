// Package dispatch interprets an item's configured action steps for a
// button event and routes each step to the component that owns it:
// navigation, the command engine, or an HA service call.
//
// The scheduling shape — a small router struct holding callback fields
// for the actions it can't perform itself, mapping a verb string to a
// handler rather than a type switch tree — keeps each action kind's
// wiring independent of the others.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wozt/goofydeck-sub000/internal/cmdengine"
	"github.com/wozt/goofydeck-sub000/internal/ddconfig"
	"github.com/wozt/goofydeck-sub000/internal/dlog"
)

// Navigator performs the side effects of a page transition: updating
// cur_page/offset, running leave/enter hooks, triggering a full
// re-render, and persisting the new page. It is implemented by the
// daemon package, which owns those resources.
type Navigator interface {
	GoTo(target string)
}

// HACaller places a fire-and-forget Home Assistant service call.
type HACaller interface {
	Call(domain, service string, data map[string]interface{}) error
}

// Dispatcher routes (page, item, event) to navigation, command-engine,
// or HA-call steps.
type Dispatcher struct {
	nav      Navigator
	ha       HACaller
	cmd      *cmdengine.Engine
	history  *History
	cmdCtx   context.Context
	logger   *dlog.Logger

	tapMu       sync.Mutex
	tapDebounce time.Duration
	lastTapEnd  time.Time
}

// New builds a Dispatcher. tapDebounce should match the device client's
// send debounce, since TAP dispatch is debounced against it.
func New(ctx context.Context, nav Navigator, ha HACaller, cmd *cmdengine.Engine, tapDebounce time.Duration) *Dispatcher {
	return &Dispatcher{
		nav:         nav,
		ha:          ha,
		cmd:         cmd,
		cmdCtx:      ctx,
		history:     NewHistory(DefaultHistoryCap),
		tapDebounce: tapDebounce,
	}
}

// History exposes the navigation history stack, e.g. for a "$page.back"
// system button to pop it.
func (d *Dispatcher) History() *History { return d.history }

// SetLogger attaches a logger used to trace the exact payload of every
// outgoing HA call at debug level. Optional: a Dispatcher with no logger
// attached dispatches silently.
func (d *Dispatcher) SetLogger(logger *dlog.Logger) { d.logger = logger }

// knownScriptServices are HA script-domain services that are NOT a
// script entity's shorthand name.
var knownScriptServices = map[string]bool{
	"turn_on": true,
	"turn_off": true,
	"reload":  true,
}

// Dispatch runs every step of item's action for event, in order,
// against (page, index) as the entry key for any $cmd.* step.
func (d *Dispatcher) Dispatch(page string, index int, item ddconfig.Item, event string) error {
	spec := item.ActionFor(event)
	if spec.Empty() {
		return nil
	}

	if event == "TAP" && !d.allowTap(time.Now()) {
		return nil
	}

	key := cmdengine.Key{Page: page, Index: index}
	for _, step := range spec.Steps {
		data, cmdText := d.effectiveStepFields(item, spec, step)

		switch {
		case step.Action == "$page.go_to":
			target := strings.TrimSpace(data.AsString())
			if target == "" {
				target = strings.TrimSpace(dataToTarget(data))
			}
			if target == "" {
				return fmt.Errorf("dispatch: $page.go_to with no target")
			}
			d.history.Push(page)
			d.nav.GoTo(target)
			return nil // navigation terminates the sequence
		case strings.HasPrefix(step.Action, "$cmd."):
			d.dispatchCmd(key, step.Action, item, data, cmdText)
		case strings.HasPrefix(step.Action, "$"):
			return fmt.Errorf("dispatch: unknown system verb %q", step.Action)
		default:
			if err := d.dispatchHA(item, step.Action, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// effectiveStepFields resolves a step's data/cmd_text, falling back to
// the item's flat legacy fields when the action was configured as a bare
// verb string.
func (d *Dispatcher) effectiveStepFields(item ddconfig.Item, spec ddconfig.ActionSpec, step ddconfig.ActionStep) (ddconfig.ActionData, ddconfig.CmdTextOpts) {
	data := step.Data
	cmdText := ddconfig.DefaultCmdTextOpts()
	if step.CmdText != nil {
		cmdText = *step.CmdText
	}
	if spec.Bare {
		data = item.Data
		if item.CmdText != nil {
			cmdText = *item.CmdText
		}
	}
	return data, cmdText
}

// dataToTarget supports a $page.go_to step whose data is a bare string
// rather than having already been unwrapped by AsString.
func dataToTarget(data ddconfig.ActionData) string {
	if s, ok := data.Raw.(string); ok {
		return s
	}
	return ""
}

func (d *Dispatcher) dispatchCmd(key cmdengine.Key, verb string, item ddconfig.Item, data ddconfig.ActionData, cmdText ddconfig.CmdTextOpts) {
	switch verb {
	case "$cmd.exec":
		d.cmd.Exec(d.cmdCtx, data.AsString())
	case "$cmd.exec_text":
		d.cmd.ExecText(d.cmdCtx, key, data.AsString(), cmdText.Trim.Bool(), cmdText.MaxLen)
	case "$cmd.exec_stop":
		d.cmd.ExecStop(key)
	case "$cmd.poll_start":
		if item.Poll == nil {
			return
		}
		d.cmd.PollStart(key, cmdengine.PollSpec{
			Cmd:     item.Poll.Data.Cmd,
			EveryMs: item.Poll.EveryMs,
			IsText:  item.Poll.Action != "$cmd.exec",
			Trim:    item.Poll.Data.Trim.Bool(),
			MaxLen:  item.Poll.Data.MaxLen,
		})
	case "$cmd.poll_stop":
		d.cmd.PollStop(key)
	case "$cmd.text_clear":
		d.cmd.TextClear(key)
	}
}

func (d *Dispatcher) dispatchHA(item ddconfig.Item, action string, data ddconfig.ActionData) error {
	domain, service, ok := splitDomainService(action)
	if !ok {
		return fmt.Errorf("dispatch: malformed HA action %q", action)
	}

	payload := map[string]interface{}{}
	if data.IsMap() {
		for k, v := range data.AsMap() {
			payload[k] = v
		}
	}

	if domain == "script" && !knownScriptServices[service] {
		// Shorthand: "script.<entity>" names the script itself, not a
		// domain.service pair.
		payload = map[string]interface{}{"entity_id": "script." + service}
		service = "turn_on"
	} else if _, hasEntity := payload["entity_id"]; !hasEntity {
		if item.EntityID != "" {
			payload["entity_id"] = item.EntityID
		}
	}

	if d.logger != nil {
		if js, err := marshalPayload(payload); err == nil {
			d.logger.Debugf("dispatch: HA call %s.%s %s", domain, service, js)
		}
	}

	return d.ha.Call(domain, service, payload)
}

func splitDomainService(action string) (domain, service string, ok bool) {
	i := strings.IndexByte(action, '.')
	if i <= 0 || i == len(action)-1 {
		return "", "", false
	}
	return action[:i], action[i+1:], true
}

// allowTap enforces the TAP debounce rule: successive TAPs within
// tapDebounce of the previously accepted TAP are ignored.
func (d *Dispatcher) allowTap(now time.Time) bool {
	if d.tapDebounce <= 0 {
		return true
	}
	d.tapMu.Lock()
	defer d.tapMu.Unlock()
	if !d.lastTapEnd.IsZero() && now.Sub(d.lastTapEnd) < d.tapDebounce {
		return false
	}
	d.lastTapEnd = now
	return true
}

// marshalPayload renders an HA call's payload the way it would appear
// on the wire, for dispatchHA's debug trace.
func marshalPayload(payload map[string]interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

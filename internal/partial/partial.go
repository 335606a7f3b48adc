// Package partial implements the partial updater: on an HA state change
// or a command-engine notify, recompute the affected slot's tile and
// push a single set-partial-explicit, tracking last-sent text/state to
// avoid redundant pushes.
package partial

import (
	"context"
	"fmt"
	"sync"

	"github.com/wozt/goofydeck-sub000/internal/cmdengine"
	"github.com/wozt/goofydeck-sub000/internal/ddconfig"
	"github.com/wozt/goofydeck-sub000/internal/haclient"
)

// Renderer produces (or reuses from cache) the on-disk tile path for a
// slot's current state/text combination. The daemon's implementation
// (daemon.EnsureTile) does not compose wallpaper into the tile.
type Renderer interface {
	EnsureTile(key cmdengine.Key, item ddconfig.Item, stateKey, text string) (tilePath string, err error)
}

// DeviceSender is the subset of *device.Client the updater needs.
type DeviceSender interface {
	SetPartialExplicit(ctx context.Context, button int, path, label string) error
}

// VisibleSlot binds a configured item to the device button number it
// currently occupies on the visible sheet.
type VisibleSlot struct {
	Key    cmdengine.Key
	Button int
	Item   ddconfig.Item
}

// Updater tracks last-sent (state, text) per slot and issues partial
// pushes only when one of them actually changed.
type Updater struct {
	device   DeviceSender
	renderer Renderer

	mu        sync.Mutex
	lastState map[cmdengine.Key]string
	lastText  map[cmdengine.Key]string
}

// New builds an Updater.
func New(device DeviceSender, renderer Renderer) *Updater {
	return &Updater{
		device:    device,
		renderer:  renderer,
		lastState: make(map[cmdengine.Key]string),
		lastText:  make(map[cmdengine.Key]string),
	}
}

// ResolveDisplay applies the value-display-domain filter: a states:
// variant takes priority; absent that, only sensor/number/input_number
// domains show raw state as text.
func ResolveDisplay(item ddconfig.Item, state haclient.State) (stateKey, text string) {
	if variant, ok := item.States[state.Value]; ok {
		text = variant.Text
		return state.Value, text
	}
	if ddconfig.ValueDisplayDomains[ddconfig.EntityDomain(item.EntityID)] {
		return "", haclient.ValueDisplayText(state)
	}
	return "", ""
}

// OnStateChange updates every visible slot bound to entityID, per the
// testable property "exactly one set-partial-explicit is issued for the
// affected slot" (scoped per-slot: two slots bound to the same entity
// each get their own partial).
func (u *Updater) OnStateChange(ctx context.Context, slots []VisibleSlot, entityID string, state haclient.State) error {
	for _, slot := range slots {
		if slot.Item.EntityID != entityID {
			continue
		}
		stateKey, text := ResolveDisplay(slot.Item, state)
		if err := u.Update(ctx, slot, stateKey, text); err != nil {
			return err
		}
	}
	return nil
}

// OnCommandChange updates slot from a command-engine snapshot (poll
// text or state_cmd-derived state).
func (u *Updater) OnCommandChange(ctx context.Context, slot VisibleSlot, snap cmdengine.Snapshot) error {
	return u.Update(ctx, slot, snap.State, snap.Text)
}

// Update pushes up to two partials: one for a state-key change (using
// the previous text), then one for a text change (using the new
// state's text) — state always goes out before text.
func (u *Updater) Update(ctx context.Context, slot VisibleSlot, stateKey, text string) error {
	u.mu.Lock()
	prevState, haveState := u.lastState[slot.Key]
	prevText, haveText := u.lastText[slot.Key]
	u.mu.Unlock()

	if !haveState && !haveText {
		// First update this slot has ever seen: nothing to compare
		// against, so send exactly one combined partial.
		if err := u.push(ctx, slot, stateKey, text); err != nil {
			return err
		}
		u.mu.Lock()
		u.lastState[slot.Key] = stateKey
		u.lastText[slot.Key] = text
		u.mu.Unlock()
		return nil
	}

	stateChanged := stateKey != prevState
	textChanged := text != prevText
	if !stateChanged && !textChanged {
		return nil
	}

	if stateChanged {
		if err := u.push(ctx, slot, stateKey, prevText); err != nil {
			return err
		}
		u.mu.Lock()
		u.lastState[slot.Key] = stateKey
		u.mu.Unlock()
	}
	if textChanged {
		if err := u.push(ctx, slot, stateKey, text); err != nil {
			return err
		}
		u.mu.Lock()
		u.lastText[slot.Key] = text
		u.mu.Unlock()
	}
	return nil
}

func (u *Updater) push(ctx context.Context, slot VisibleSlot, stateKey, text string) error {
	tile, err := u.renderer.EnsureTile(slot.Key, slot.Item, stateKey, text)
	if err != nil {
		return fmt.Errorf("partial: render tile for %s button %d: %w", slot.Key.Page, slot.Button, err)
	}
	return u.device.SetPartialExplicit(ctx, slot.Button, tile, text)
}

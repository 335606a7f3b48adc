package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/wozt/goofydeck-sub000/internal/cmdengine"
	"github.com/wozt/goofydeck-sub000/internal/ddconfig"
)

type fakeNav struct {
	targets []string
}

func (f *fakeNav) GoTo(target string) { f.targets = append(f.targets, target) }

type fakeHA struct {
	domain, service string
	data            map[string]interface{}
	calls           int
}

func (f *fakeHA) Call(domain, service string, data map[string]interface{}) error {
	f.domain, f.service, f.data = domain, service, data
	f.calls++
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeNav, *fakeHA, *cmdengine.Engine) {
	t.Helper()
	nav := &fakeNav{}
	ha := &fakeHA{}
	eng := cmdengine.NewEngine(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	eng.Start(ctx)
	t.Cleanup(eng.Stop)
	d := New(ctx, nav, ha, eng, 0)
	return d, nav, ha, eng
}

func TestDispatchNavigationPushesHistoryAndStopsSequence(t *testing.T) {
	d, nav, ha, _ := newTestDispatcher(t)
	item := ddconfig.Item{
		TapAction: ddconfig.ActionSpec{Steps: []ddconfig.ActionStep{
			{Action: "$page.go_to", Data: ddconfig.ActionData{Raw: "lights"}},
			{Action: "light.turn_on"},
		}},
	}
	if err := d.Dispatch("$root", 0, item, "TAP"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(nav.targets) != 1 || nav.targets[0] != "lights" {
		t.Fatalf("expected navigation to lights, got %v", nav.targets)
	}
	if ha.calls != 0 {
		t.Errorf("expected step after go_to to be dropped, got %d HA calls", ha.calls)
	}
	if d.History().Len() != 1 {
		t.Errorf("expected one history entry, got %d", d.History().Len())
	}
}

func TestDispatchBareActionUsesLegacyFlatFields(t *testing.T) {
	d, _, _, eng := newTestDispatcher(t)
	item := ddconfig.Item{
		TapAction: ddconfig.ActionSpec{Bare: true, Steps: []ddconfig.ActionStep{{Action: "$cmd.exec_text"}}},
		Data:      ddconfig.ActionData{Raw: "echo hi"},
		CmdText:   &ddconfig.CmdTextOpts{Trim: true, MaxLen: 10},
	}
	if err := d.Dispatch("$root", 0, item, "TAP"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		snap := eng.Snapshot()
		if len(snap) == 1 && snap[0].Text == "hi" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected exec_text to capture \"hi\" via legacy data field")
}

func TestDispatchHACallSplicesEntityID(t *testing.T) {
	d, _, ha, _ := newTestDispatcher(t)
	item := ddconfig.Item{
		EntityID:  "light.kitchen",
		TapAction: ddconfig.ActionSpec{Steps: []ddconfig.ActionStep{{Action: "light.turn_on"}}},
	}
	if err := d.Dispatch("$root", 0, item, "TAP"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ha.domain != "light" || ha.service != "turn_on" {
		t.Fatalf("unexpected HA call %s.%s", ha.domain, ha.service)
	}
	if ha.data["entity_id"] != "light.kitchen" {
		t.Errorf("expected entity_id spliced in, got %v", ha.data)
	}
}

func TestDispatchScriptShorthand(t *testing.T) {
	d, _, ha, _ := newTestDispatcher(t)
	item := ddconfig.Item{
		TapAction: ddconfig.ActionSpec{Steps: []ddconfig.ActionStep{{Action: "script.my_scene"}}},
	}
	if err := d.Dispatch("$root", 0, item, "TAP"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ha.domain != "script" || ha.service != "turn_on" {
		t.Fatalf("expected script.turn_on, got %s.%s", ha.domain, ha.service)
	}
	if ha.data["entity_id"] != "script.my_scene" {
		t.Errorf("expected entity_id script.my_scene, got %v", ha.data)
	}
}

func TestDispatchExplicitDataOverridesEntityID(t *testing.T) {
	d, _, ha, _ := newTestDispatcher(t)
	item := ddconfig.Item{
		EntityID: "light.kitchen",
		TapAction: ddconfig.ActionSpec{Steps: []ddconfig.ActionStep{
			{Action: "light.turn_on", Data: ddconfig.ActionData{Raw: map[string]interface{}{"entity_id": "light.den", "brightness": float64(128)}}},
		}},
	}
	if err := d.Dispatch("$root", 0, item, "TAP"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ha.data["entity_id"] != "light.den" {
		t.Errorf("expected explicit entity_id preserved, got %v", ha.data)
	}
	if ha.data["brightness"] != float64(128) {
		t.Errorf("expected brightness passed through, got %v", ha.data)
	}
}

func TestDispatchTapDebounce(t *testing.T) {
	nav := &fakeNav{}
	ha := &fakeHA{}
	eng := cmdengine.NewEngine(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()
	d := New(ctx, nav, ha, eng, 200*time.Millisecond)

	item := ddconfig.Item{
		EntityID:  "light.kitchen",
		TapAction: ddconfig.ActionSpec{Steps: []ddconfig.ActionStep{{Action: "light.turn_on"}}},
	}
	if err := d.Dispatch("$root", 0, item, "TAP"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := d.Dispatch("$root", 0, item, "TAP"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ha.calls != 1 {
		t.Errorf("expected second rapid TAP to be debounced away, got %d calls", ha.calls)
	}
}

func TestDispatchHoldIsNotDebounced(t *testing.T) {
	nav := &fakeNav{}
	ha := &fakeHA{}
	eng := cmdengine.NewEngine(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()
	d := New(ctx, nav, ha, eng, 200*time.Millisecond)

	item := ddconfig.Item{
		EntityID:  "light.kitchen",
		HoldAction: ddconfig.ActionSpec{Steps: []ddconfig.ActionStep{{Action: "light.turn_on"}}},
	}
	if err := d.Dispatch("$root", 0, item, "HOLD"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := d.Dispatch("$root", 0, item, "HOLD"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ha.calls != 2 {
		t.Errorf("expected HOLD events to bypass TAP debounce, got %d calls", ha.calls)
	}
}

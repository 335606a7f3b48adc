// Package daemon assembles every component into a single-threaded
// cooperative event loop and owns the Daemon aggregate value: the
// command engine pointer and every policy knob the daemon needs live as
// fields here, constructed once after config load and run until the
// context is canceled.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wozt/goofydeck-sub000/internal/cmdengine"
	"github.com/wozt/goofydeck-sub000/internal/control"
	"github.com/wozt/goofydeck-sub000/internal/ddconfig"
	"github.com/wozt/goofydeck-sub000/internal/device"
	"github.com/wozt/goofydeck-sub000/internal/dispatch"
	"github.com/wozt/goofydeck-sub000/internal/dlog"
	"github.com/wozt/goofydeck-sub000/internal/haclient"
	"github.com/wozt/goofydeck-sub000/internal/idle"
	"github.com/wozt/goofydeck-sub000/internal/iconpipe"
	"github.com/wozt/goofydeck-sub000/internal/layout"
	"github.com/wozt/goofydeck-sub000/internal/partial"
	"github.com/wozt/goofydeck-sub000/internal/rendercache"
	"github.com/wozt/goofydeck-sub000/internal/status"
)

// TickInterval is the event loop's cooperative poll timeout.
const TickInterval = 100 * time.Millisecond

// PostTransitionIgnore is the default window after a navigation during
// which queued button events are swallowed. It intentionally shares its
// default value with device.DefaultDebounce but is tracked as an
// independent knob.
const PostTransitionIgnore = 300 * time.Millisecond

// Paths bundles every filesystem/socket location the daemon needs.
type Paths struct {
	CacheRoot    string
	StateDir     string
	ErrorIcon    string
	SysPregenDir string
}

// Daemon is the single aggregate value the original source's module
// globals collapse into.
type Daemon struct {
	cfg    *ddconfig.Config
	paths  Paths
	logger *dlog.Logger
	status *status.Line

	device     *device.Client
	ha         *haclient.Client
	cmd        *cmdengine.Engine
	dispatcher *dispatch.Dispatcher
	brightness *idle.Machine
	control    *control.Surface
	store      *rendercache.Store
	pipeline   *iconpipe.Pipeline
	updater    *partial.Updater

	deviceDial device.Dialer

	mu                sync.Mutex
	curPage           string
	offset            int
	dispatchEnabled   bool
	lastSig           string
	ignoreEventsUntil time.Time
	lastBrightnessErr bool
}

// New assembles a Daemon from its already-constructed dependencies.
// deviceDial opens the device service's event-subscription connection,
// which is distinct from dev's one-request-per-command connection.
func New(cfg *ddconfig.Config, paths Paths, logger *dlog.Logger, statusLine *status.Line,
	dev *device.Client, deviceDial device.Dialer, ha *haclient.Client, cmd *cmdengine.Engine, store *rendercache.Store) *Daemon {

	d := &Daemon{
		cfg:             cfg,
		paths:           paths,
		logger:          logger,
		status:          statusLine,
		device:          dev,
		deviceDial:      deviceDial,
		ha:              ha,
		cmd:             cmd,
		store:           store,
		dispatchEnabled: true,
		brightness: idle.New(cfg.BaseBrightness, cfg.SleepDimBrightness,
			time.Duration(cfg.SleepDimTimeoutSec)*time.Second,
			time.Duration(cfg.SleepTimeoutSec)*time.Second),
	}
	d.updater = partial.New(dev, d)
	d.dispatcher = dispatch.New(context.Background(), d, d, cmd, dev.DebounceDuration())
	d.dispatcher.SetLogger(logger)
	return d
}

// AttachControl wires in the control surface once it has been listened
// on (it needs d as its Handler, so construction is two-phase), and
// starts its accept loop in the background — each connection is
// handled synchronously and briefly, so serializing accepts behind a
// single goroutine needs no further coordination with Run's loop.
func (d *Daemon) AttachControl(c *control.Surface) {
	d.control = c
	go func() {
		for {
			if err := c.AcceptOnce(); err != nil {
				return
			}
		}
	}()
}

// GoTo implements dispatch.Navigator.
func (d *Daemon) GoTo(target string) {
	d.mu.Lock()
	leaving := d.curPage
	d.curPage = resolveTarget(target, d.curPage)
	entering := d.curPage
	d.offset = 0
	d.ignoreEventsUntil = time.Now().Add(PostTransitionIgnore)
	d.mu.Unlock()

	d.armPageScopedCommands(leaving, entering)
	d.resubscribeHA(entering)
	if err := d.renderFull(context.Background(), true); err != nil {
		d.logger.WarnOnce("render-"+entering, "full render of %s failed: %v", entering, err)
	}
	_ = control.SaveLastPage(d.paths.StateDir, entering, 0)
}

// resolveTarget supports the legacy "/"-prefixed navigation target by
// stripping the leading slash before treating it as a page name.
func resolveTarget(target, current string) string {
	if target == "" {
		return current
	}
	if target[0] == '/' {
		return target[1:]
	}
	return target
}

// Call implements dispatch.HACaller.
func (d *Daemon) Call(domain, service string, data map[string]interface{}) error {
	if d.ha == nil {
		return fmt.Errorf("daemon: no HA client configured")
	}
	if !d.ha.Connected() {
		if err := d.ha.Connect(context.Background()); err != nil {
			return err
		}
	}
	return d.ha.Call(domain, service, data)
}

// SetDispatchEnabled implements control.Handler.
func (d *Daemon) SetDispatchEnabled(enabled bool) {
	d.mu.Lock()
	d.dispatchEnabled = enabled
	d.mu.Unlock()
}

// SimulateButton implements control.Handler.
func (d *Daemon) SimulateButton(button int, event string) error {
	return d.handleButtonEvent(context.Background(), button, event)
}

// LoadLastPage implements control.Handler.
func (d *Daemon) LoadLastPage() error {
	page, offset, ok := control.LoadLastPage(d.paths.StateDir)
	if !ok {
		page, offset = ddconfig.RootPageName, 0
	}
	d.mu.Lock()
	d.curPage = page
	d.offset = offset
	d.mu.Unlock()

	d.armPageScopedCommands("", page)
	d.resubscribeHA(page)
	return d.renderFull(context.Background(), true)
}

// armPageScopedCommands disarms state_cmd sampling for the page being
// left and re-arms it for the page being entered.
func (d *Daemon) armPageScopedCommands(leaving, enteringPage string) {
	if page, ok := d.cfg.Pages[leaving]; ok {
		for i, it := range page.Items {
			if it.StateCmd != nil {
				d.cmd.DisarmStateSampling(cmdengine.Key{Page: leaving, Index: i})
			}
		}
	}
	if page, ok := d.cfg.Pages[enteringPage]; ok {
		for i, it := range page.Items {
			if it.StateCmd != nil {
				d.cmd.ArmStateSampling(cmdengine.Key{Page: enteringPage, Index: i},
					cmdengine.StateSpec{Cmd: it.StateCmd.Cmd, EveryMs: it.StateCmd.EveryMs})
			}
		}
	}
}

// resubscribeHA replaces HA subscriptions with the new page's bound
// entities: subscriptions are scoped to the currently visible page and
// fully replaced on every page transition.
func (d *Daemon) resubscribeHA(page string) {
	if d.ha == nil {
		return
	}
	pageCfg, ok := d.cfg.Pages[page]
	hasHA := false
	if ok {
		for _, it := range pageCfg.Items {
			if it.EntityID != "" {
				hasHA = true
				break
			}
		}
	}
	if !hasHA {
		d.ha.UnsubscribeAll()
		return
	}
	if !d.ha.Connected() {
		if err := d.ha.Connect(context.Background()); err != nil {
			d.logger.WarnOnce("ha-connect", "HA connect failed: %v", err)
			return
		}
	}
	d.ha.UnsubscribeAll()
	for _, it := range pageCfg.Items {
		if it.EntityID == "" {
			continue
		}
		if _, err := d.ha.Subscribe(it.EntityID); err != nil {
			d.logger.WarnOnce("ha-sub-"+it.EntityID, "HA subscribe %s failed: %v", it.EntityID, err)
			continue
		}
		_, _ = d.ha.Get(it.EntityID)
	}
}

// visibleSlots returns the (config item, device button number) pairs
// for the current page/offset sheet, reserving back/prev/next per the
// configured positions.
func (d *Daemon) visibleSlots() ([]partial.VisibleSlot, layout.Sheet, bool) {
	d.mu.Lock()
	page, offset := d.curPage, d.offset
	d.mu.Unlock()

	pageCfg, ok := d.cfg.Pages[page]
	if !ok {
		return nil, layout.Sheet{}, false
	}
	showBack := page != ddconfig.RootPageName
	sheets := layout.Compute(len(pageCfg.Items), showBack)
	sheet := layout.Select(sheets, offset)

	reserved := map[int]bool{}
	if showBack {
		reserved[d.cfg.PosBack] = true
	}
	if sheet.ShowPrev {
		reserved[d.cfg.PosPrev] = true
	}
	if sheet.ShowNext {
		reserved[d.cfg.PosNext] = true
	}

	var slots []partial.VisibleSlot
	btn := 1
	idx := sheet.Start
	for len(slots) < sheet.Cap && idx < len(pageCfg.Items) {
		for reserved[btn] {
			btn++
		}
		if btn > layout.TotalPositions {
			break
		}
		slots = append(slots, partial.VisibleSlot{
			Key:    cmdengine.Key{Page: page, Index: idx},
			Button: btn,
			Item:   pageCfg.Items[idx],
		})
		btn++
		idx++
	}
	return slots, sheet, true
}

// systemButtonAction identifies which reserved navigation button, if
// any, a press landed on.
type systemButtonAction int

const (
	systemButtonNone systemButtonAction = iota
	systemButtonBack
	systemButtonPrev
	systemButtonNext
)

// classifySystemButton reports which navigation action, if any, button
// triggers for the given page/sheet. A reserved position only acts as
// that system button when the sheet actually shows it (e.g. pos_back
// on the root page, or pos_next on a page's last sheet, is just an
// ordinary content slot).
func classifySystemButton(cfg *ddconfig.Config, page string, sheet layout.Sheet, button int) systemButtonAction {
	switch button {
	case cfg.PosBack:
		if page != ddconfig.RootPageName {
			return systemButtonBack
		}
	case cfg.PosPrev:
		if sheet.ShowPrev {
			return systemButtonPrev
		}
	case cfg.PosNext:
		if sheet.ShowNext {
			return systemButtonNext
		}
	}
	return systemButtonNone
}

// handleButtonEvent applies the idle/brightness machine's wake policy,
// then dispatches the event if it wasn't swallowed and dispatch is
// enabled, and honors the post-transition ignore window.
func (d *Daemon) handleButtonEvent(ctx context.Context, button int, event string) error {
	now := time.Now()
	d.mu.Lock()
	ignoring := now.Before(d.ignoreEventsUntil)
	d.mu.Unlock()

	wake := d.brightness.OnButtonEvent(now)
	if wake.WasAsleepOrDim {
		d.applyBrightness(ctx, d.brightness.Brightness(idle.Normal))
	}
	if wake.SwallowAction || ignoring {
		return nil
	}

	d.mu.Lock()
	enabled := d.dispatchEnabled
	page := d.curPage
	d.mu.Unlock()
	if !enabled {
		return nil
	}

	slots, sheet, ok := d.visibleSlots()
	if !ok {
		return nil
	}

	switch classifySystemButton(d.cfg, page, sheet, button) {
	case systemButtonBack:
		if prev, ok := d.dispatcher.History().Pop(); ok {
			d.status.Update(fmt.Sprintf("%s button %d back -> %s", page, button, prev))
			d.GoTo(prev)
		}
		return nil
	case systemButtonPrev:
		d.status.Update(fmt.Sprintf("%s button %d prev", page, button))
		return d.paginate(ctx, sheet.PrevStart)
	case systemButtonNext:
		d.status.Update(fmt.Sprintf("%s button %d next", page, button))
		return d.paginate(ctx, sheet.NextStart)
	}

	for _, slot := range slots {
		if slot.Button == button {
			d.status.Update(fmt.Sprintf("%s button %d %s", page, button, event))
			return d.dispatcher.Dispatch(page, slot.Key.Index, slot.Item, event)
		}
	}
	return nil
}

// paginate moves within the current page's sheets (prev/next system
// buttons): unlike GoTo it leaves cur_page, HA subscriptions, and armed
// commands untouched, since the item set hasn't changed.
func (d *Daemon) paginate(ctx context.Context, offset int) error {
	d.mu.Lock()
	d.offset = offset
	page := d.curPage
	d.mu.Unlock()

	if err := d.renderFull(ctx, true); err != nil {
		d.logger.WarnOnce("render-"+page, "full render of %s failed: %v", page, err)
		return err
	}
	_ = control.SaveLastPage(d.paths.StateDir, page, offset)
	return nil
}

func (d *Daemon) applyBrightness(ctx context.Context, level int) {
	d.brightness.RecordBrightnessAttempt(time.Now())
	err := d.device.SetBrightness(ctx, level)
	d.mu.Lock()
	d.lastBrightnessErr = err != nil
	d.mu.Unlock()
	if err != nil {
		d.logger.WarnOnce("brightness", "set-brightness %d failed: %v", level, err)
		return
	}
	d.brightness.RecordApplied(level)
	d.logger.ClearOnce("brightness")
}

// IdleTick evaluates the brightness state machine and applies a change
// if one is due, retrying a previously failed push no sooner than 1s
// later.
func (d *Daemon) IdleTick(ctx context.Context) {
	now := time.Now()
	prev := d.brightness.State()
	state := d.brightness.Tick(now)
	if state != prev {
		d.applyBrightness(ctx, d.brightness.Brightness(state))
		return
	}
	d.mu.Lock()
	failed := d.lastBrightnessErr
	d.mu.Unlock()
	if d.brightness.NeedsBrightnessRetry(now, failed) {
		d.applyBrightness(ctx, d.brightness.Brightness(state))
	}
}

// Run drives the cooperative event loop until ctx is canceled: a 100ms
// idle/command-engine tick multiplexed with the two
// blocking-read event sources (device buttons, HA state pushes), each
// fed through its own goroutine so no single slow socket stalls the
// others.
func (d *Daemon) Run(ctx context.Context) error {
	deviceEvents := make(chan deviceLine)
	haEvents := make(chan haLine)
	if d.deviceDial != nil {
		go d.runDeviceEvents(ctx, deviceEvents)
	}
	go d.runHAEvents(ctx, haEvents)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.IdleTick(ctx)
			d.drainCommandEngine(ctx)
		case dl := <-deviceEvents:
			d.handleDeviceLine(ctx, dl)
		case hl := <-haEvents:
			d.handleHALine(ctx, hl)
		}
	}
}

func (d *Daemon) drainCommandEngine(ctx context.Context) {
	select {
	case <-d.cmd.NotifyChan():
	default:
		return
	}
	slots, _, ok := d.visibleSlots()
	if !ok {
		return
	}
	for _, slot := range slots {
		for _, snap := range d.cmd.Snapshot() {
			if snap.Key == slot.Key {
				if err := d.updater.OnCommandChange(ctx, slot, snap); err != nil {
					d.logger.WarnOnce("partial-cmd", "partial update failed: %v", err)
				}
				d.cmd.MarkSent(slot.Key, snap.Text, snap.State)
			}
		}
	}
}

// OnHAStateEvent is invoked by the event loop when an "evt state <E>
// ..." line arrives.
func (d *Daemon) OnHAStateEvent(ctx context.Context, entityID string, raw []byte) error {
	state, changed, err := d.ha.ApplyStateEvent(entityID, raw)
	if err != nil || !changed {
		return err
	}
	slots, _, ok := d.visibleSlots()
	if !ok {
		return nil
	}
	return d.updater.OnStateChange(ctx, slots, entityID, state)
}

func (d *Daemon) renderFull(ctx context.Context, force bool) error {
	slots, sheet, ok := d.visibleSlots()
	if !ok {
		return fmt.Errorf("daemon: unknown page")
	}

	sig := renderSignature(slots, sheet)
	d.mu.Lock()
	unchanged := !force && sig == d.lastSig
	d.mu.Unlock()
	if unchanged {
		return nil
	}

	buttons := make(map[int]device.ButtonSpec, len(slots)+3)
	for _, slot := range slots {
		tile, err := d.EnsureTile(slot.Key, slot.Item, "", "")
		if err != nil {
			tile = d.paths.ErrorIcon
		}
		buttons[slot.Button] = device.ButtonSpec{Path: tile, Label: slot.Item.Name}
	}
	if err := d.device.SetButtonsExplicit(ctx, buttons); err != nil {
		return err
	}
	d.mu.Lock()
	d.lastSig = sig
	d.mu.Unlock()
	return nil
}

func renderSignature(slots []partial.VisibleSlot, sheet layout.Sheet) string {
	sig := fmt.Sprintf("start=%d cap=%d", sheet.Start, sheet.Cap)
	for _, s := range slots {
		sig += fmt.Sprintf("|%d:%s", s.Button, s.Item.Name)
	}
	return sig
}

// OnDeviceConnected handles "evt connected": reapply label style and
// force a full resend, covering the disconnect/reconnect scenario.
func (d *Daemon) OnDeviceConnected(ctx context.Context, labelStylePath string) {
	if labelStylePath != "" {
		_ = d.device.SetLabelStyle(ctx, labelStylePath)
	}
	d.mu.Lock()
	d.lastSig = ""
	d.mu.Unlock()
	_ = d.renderFull(ctx, true)
}

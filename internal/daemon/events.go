package daemon

import (
	"context"
	"time"

	"github.com/wozt/goofydeck-sub000/internal/device"
	"github.com/wozt/goofydeck-sub000/internal/haclient"
)

// deviceLine and haLine carry raw lines from the two blocking-read
// goroutines below into the single-threaded select loop in Run, so
// every mutation of daemon state still happens on one goroutine.
type deviceLine struct {
	line string
	err  error
}

type haLine struct {
	line string
	err  error
}

// runDeviceEvents reconnects the event subscription on failure and
// forwards every line it reads onto out, until ctx is canceled.
func (d *Daemon) runDeviceEvents(ctx context.Context, out chan<- deviceLine) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		sub, err := device.Subscribe(ctx, d.deviceDial)
		if err != nil {
			select {
			case out <- deviceLine{err: err}:
			case <-ctx.Done():
				return
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		for {
			line, err := sub.ReadLine()
			if err != nil {
				sub.Close()
				select {
				case out <- deviceLine{err: err}:
				case <-ctx.Done():
					return
				}
				break
			}
			select {
			case out <- deviceLine{line: line}:
			case <-ctx.Done():
				sub.Close()
				return
			}
		}
	}
}

// runHAEvents mirrors runDeviceEvents for the Home Assistant side-car
// connection; it reconnects and re-subscribes every currently visible
// page's entities on recovery.
func (d *Daemon) runHAEvents(ctx context.Context, out chan<- haLine) {
	if d.ha == nil {
		<-ctx.Done()
		return
	}
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !d.ha.Connected() {
			if err := d.ha.Connect(ctx); err != nil {
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				continue
			}
			d.mu.Lock()
			page := d.curPage
			d.mu.Unlock()
			d.resubscribeHA(page)
		}
		line, err := d.ha.ReadEventLine()
		if err != nil {
			d.ha.Close()
			select {
			case out <- haLine{err: err}:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case out <- haLine{line: line}:
		case <-ctx.Done():
			return
		}
	}
}

// handleDeviceLine applies one line from the device event subscription:
// lifecycle transitions trigger a reconnect resync, button events
// dispatch through handleButtonEvent.
func (d *Daemon) handleDeviceLine(ctx context.Context, dl deviceLine) {
	if dl.err != nil {
		d.logger.WarnOnce("device-sub", "device event subscription error: %v", dl.err)
		return
	}
	switch {
	case device.IsConnected(dl.line):
		d.logger.ClearOnce("device-sub")
		d.OnDeviceConnected(ctx, d.paths.SysPregenDir)
	case device.IsDisconnected(dl.line):
		d.logger.WarnOnce("device-disconnected", "device service reported disconnected")
	default:
		evt, ok, err := device.ParseEventLine(dl.line)
		if err != nil {
			d.logger.WarnOnce("device-parse", "malformed device event %q: %v", dl.line, err)
			return
		}
		if ok {
			if err := d.handleButtonEvent(ctx, evt.Button, evt.Type); err != nil {
				d.logger.WarnOnce("dispatch", "dispatch failed: %v", err)
			}
		}
	}
}

// handleHALine applies one line from the Home Assistant event
// connection.
func (d *Daemon) handleHALine(ctx context.Context, hl haLine) {
	if hl.err != nil {
		d.logger.WarnOnce("ha-sub", "HA event connection error: %v", hl.err)
		return
	}
	evt, err := haclient.ParseEventLine(hl.line)
	if err != nil {
		d.logger.WarnOnce("ha-parse", "malformed HA event %q: %v", hl.line, err)
		return
	}
	switch evt.Kind {
	case "state":
		if err := d.OnHAStateEvent(ctx, evt.EntityID, evt.Raw); err != nil {
			d.logger.WarnOnce("ha-state", "HA state update failed: %v", err)
		}
	case "err":
		d.logger.WarnOnce("ha-err", "HA side-car error: %s", evt.Message)
	}
}

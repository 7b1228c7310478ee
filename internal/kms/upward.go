package kms

import (
	"github.com/outpostlabs/kmscore/internal/gfxapi"
)

// This file is the present engine and solver's upward interface: the
// operations a compositor calls to drive connector state and submit
// frames. Every one of them posts onto the EventLoop so it only ever runs
// interleaved with uevents, flip-complete events and lease broker
// requests — never concurrently with them.

// SubmitFrame posts a composited frame to connectorID's present engine.
// Safe to call from any goroutine.
func (l *EventLoop) SubmitFrame(devID uint64, connectorID uint32, ops []gfxapi.Op, clear *gfxapi.Color) {
	l.Post(func() {
		dev, c, ok := l.lookupConnector(devID, connectorID)
		if !ok {
			return
		}
		if err := submitFrame(dev, c, ops, clear); err != nil {
			l.logger.Error("submit frame", "device", devID, "connector", connectorID, "error", err)
		}
	})
}

// SubmitCursor posts a hardware cursor position/visibility update to
// connectorID's present engine. Safe to call from any goroutine.
func (l *EventLoop) SubmitCursor(devID uint64, connectorID uint32, x, y int32, enabled bool) {
	l.Post(func() {
		dev, c, ok := l.lookupConnector(devID, connectorID)
		if !ok {
			return
		}
		if err := submitCursor(dev, c, x, y, enabled); err != nil {
			l.logger.Error("submit cursor", "device", devID, "connector", connectorID, "error", err)
		}
	})
}

// SetEnabled is the upward interface's set_enabled operation: disabling a
// connector pulls it out of the solver's and present engine's
// consideration, as if it had been unplugged, without touching the
// kernel's own connector status.
func (l *EventLoop) SetEnabled(devID uint64, connectorID uint32, enabled bool) {
	l.Post(func() {
		dev, c, ok := l.lookupConnector(devID, connectorID)
		if !ok || c.Enabled == enabled {
			return
		}
		c.Enabled = enabled
		if err := reconfigure(dev); err != nil {
			l.logger.Error("reconfigure after set enabled", "device", devID, "connector", connectorID, "error", err)
		}
	})
}

// SetMode is the upward interface's set_mode operation: it stages a new
// selected mode and forces a reconfigure, so the solver either reuses the
// current crtc if it already matches or performs a full modeset.
func (l *EventLoop) SetMode(devID uint64, connectorID uint32, mode Mode) {
	l.Post(func() {
		dev, c, ok := l.lookupConnector(devID, connectorID)
		if !ok {
			return
		}
		c.SelectedMode = &mode
		if err := reconfigure(dev); err != nil {
			l.logger.Error("reconfigure after set mode", "device", devID, "connector", connectorID, "error", err)
		}
	})
}

// SetNonDesktopOverride is the upward interface's
// set_non_desktop_override operation: it lets the compositor treat a
// connector as non-desktop (and therefore leasable) or force it back to
// desktop, contrary to what the kernel's own non-desktop property
// reports, without waiting for a hot-plug cycle. Passing nil clears the
// override and restores the kernel's value. A connected connector moves
// between StateConnectedDesktop and StateConnectedNonDesktop at once; a
// connector in any other state keeps its state.
func (l *EventLoop) SetNonDesktopOverride(devID uint64, connectorID uint32, override *bool) {
	l.Post(func() {
		dev, c, ok := l.lookupConnector(devID, connectorID)
		if !ok {
			return
		}
		c.NonDesktopOverride = override
		effective := c.kernelNonDesktop
		if override != nil {
			effective = *override
		}
		c.NonDesktop = effective
		switch {
		case c.State == StateConnectedDesktop && effective:
			c.State = StateConnectedNonDesktop
		case c.State == StateConnectedNonDesktop && !effective:
			c.State = StateConnectedDesktop
		}
		if err := reconfigure(dev); err != nil {
			l.logger.Error("reconfigure after set non-desktop override", "device", devID, "connector", connectorID, "error", err)
		}
	})
}

// DrmFeedback is the upward interface's drm_feedback query: it returns the
// PresentFeedback handleFlipComplete most recently produced for
// connectorID, for a compositor that polls rather than registering a sink
// via Device.OnPresentFeedback.
func (l *EventLoop) DrmFeedback(devID uint64, connectorID uint32) (PresentFeedback, bool) {
	type result struct {
		fb PresentFeedback
		ok bool
	}
	done := make(chan result, 1)
	l.Post(func() {
		_, c, ok := l.lookupConnector(devID, connectorID)
		if !ok || c.lastFeedback == nil {
			done <- result{}
			return
		}
		done <- result{fb: *c.lastFeedback, ok: true}
	})
	res := <-done
	return res.fb, res.ok
}

func (l *EventLoop) lookupConnector(devID uint64, connectorID uint32) (*Device, *Connector, bool) {
	dev, ok := l.sup.Device(devID)
	if !ok {
		return nil, nil, false
	}
	c, ok := dev.connectors[connectorID]
	if !ok {
		return nil, nil, false
	}
	return dev, c, true
}

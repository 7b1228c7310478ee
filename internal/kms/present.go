package kms

import (
	"github.com/outpostlabs/kmscore/internal/gfxapi"
	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// submitFrame hands the present engine this frame's render-pass op list
// for a connector, marks it damaged, and immediately tries to present it.
// Only the EventLoop goroutine may call this directly; every other caller
// goes through EventLoop.SubmitFrame, which posts the call onto the loop.
func submitFrame(dev *Device, c *Connector, ops []gfxapi.Op, clear *gfxapi.Color) error {
	c.frameOps = ops
	c.frameClear = clear
	c.damaged = true
	return attemptPresent(dev, c)
}

// submitCursor updates the hardware cursor position/visibility and
// immediately tries to present it. Only the EventLoop goroutine may call
// this directly; see EventLoop.SubmitCursor.
func submitCursor(dev *Device, c *Connector, x, y int32, enabled bool) error {
	c.cursorX, c.cursorY = x, y
	c.cursorEnabled = enabled
	c.cursorChanged = true
	return attemptPresent(dev, c)
}

// attemptPresent resolves whether dev currently qualifies for the
// direct-scanout fast path and runs the present flow. Direct scanout only
// ever applies when dev is presenting a buffer its own render context
// produced (IsRenderDevice) and the compositor hasn't disabled it
// (SetDirectScanoutEnabled) — a bridged device always composites, since a
// plane can't be pointed at a dmabuf a different card rendered. Every
// caller that wants a connector presented — submitFrame, submitCursor,
// handleFlipComplete's retry of pending damage once a flip completes —
// routes through here so that decision is made consistently.
func attemptPresent(dev *Device, c *Connector) error {
	tryDirectScanout := dev.isRenderDevice && dev.directScanoutEnabled
	return present(dev, c, tryDirectScanout)
}

// present is the per-connector present-engine tick (the nine-step flow:
// gate on damage/cursor-change and can-present, resolve the primary plane's
// framebuffer — either by direct scanout or by rendering into the next
// buffer in the ring — resolve the cursor plane, build one atomic commit
// covering both, and issue it non-blocking with a page-flip-event
// request). A successful commit clears canPresent until handleFlipComplete
// observes the matching DRM_EVENT_FLIP_COMPLETE and stages the submitted
// framebuffer id as pendingFBID, promoted to activeFBID once that happens.
func present(dev *Device, c *Connector, tryDirectScanout bool) error {
	if c.CrtcID == 0 {
		return nil
	}
	crtc := dev.crtcs[c.CrtcID]
	if crtc == nil || !crtc.Active {
		return nil
	}
	if (!c.damaged && !c.cursorChanged) || !c.canPresent {
		return nil
	}

	primary := dev.planes[c.PrimaryPlaneID]
	if primary == nil {
		return nil
	}

	cs := newChangeSet()
	var directScanoutInFlight bool
	var primaryFBID uint32

	if c.damaged {
		if tryDirectScanout && c.directScanoutCache == nil {
			c.directScanoutCache = map[uint64]directScanoutCacheEntry{}
		}
		var ds *directScanoutResult
		if tryDirectScanout {
			ds = probeDirectScanout(dev, primary, c.frameOps, c.frameClear, c.cursorEnabled, c.directScanoutCache)
		}
		if ds != nil {
			primaryFBID = ds.FbID
			cs.set(primary.ID, primary.fbIDPropID, uint64(ds.FbID))
			cs.set(primary.ID, primary.srcXPropID, 0)
			cs.set(primary.ID, primary.srcYPropID, 0)
			cs.set(primary.ID, primary.srcWPropID, uint64(ds.Position.SrcWidth)<<16)
			cs.set(primary.ID, primary.srcHPropID, uint64(ds.Position.SrcHeight)<<16)
			cs.set(primary.ID, primary.crtcXPropID, uint64(uint32(ds.Position.CrtcX)))
			cs.set(primary.ID, primary.crtcYPropID, uint64(uint32(ds.Position.CrtcY)))
			cs.set(primary.ID, primary.crtcWPropID, uint64(ds.Position.CrtcWidth))
			cs.set(primary.ID, primary.crtcHPropID, uint64(ds.Position.CrtcHeight))
			directScanoutInFlight = true
		} else {
			buf, err := dev.scanout.acquirePrimary(dev, primary, int(primary.ModeW), int(primary.ModeH))
			if err != nil {
				return err
			}
			if err := renderIntoBuffer(dev, c, buf); err != nil {
				return err
			}
			primaryFBID = buf.fbID
			cs.set(primary.ID, primary.fbIDPropID, uint64(buf.fbID))
			cs.set(primary.ID, primary.srcXPropID, 0)
			cs.set(primary.ID, primary.srcYPropID, 0)
			cs.set(primary.ID, primary.srcWPropID, uint64(primary.ModeW)<<16)
			cs.set(primary.ID, primary.srcHPropID, uint64(primary.ModeH)<<16)
			cs.set(primary.ID, primary.crtcXPropID, 0)
			cs.set(primary.ID, primary.crtcYPropID, 0)
			cs.set(primary.ID, primary.crtcWPropID, uint64(primary.ModeW))
			cs.set(primary.ID, primary.crtcHPropID, uint64(primary.ModeH))
		}
	}

	cursor := dev.planes[c.CursorPlaneID]
	if c.cursorChanged && cursor != nil {
		if c.cursorEnabled {
			buf, err := dev.scanout.acquireCursor(dev, cursor, 64, 64)
			if err != nil {
				return err
			}
			cs.set(cursor.ID, cursor.fbIDPropID, uint64(buf.fbID))
			cs.set(cursor.ID, cursor.crtcIDPropID, uint64(crtc.ID))
			cs.set(cursor.ID, cursor.crtcXPropID, uint64(uint32(c.cursorX)))
			cs.set(cursor.ID, cursor.crtcYPropID, uint64(uint32(c.cursorY)))
			cs.set(cursor.ID, cursor.crtcWPropID, uint64(buf.width))
			cs.set(cursor.ID, cursor.crtcHPropID, uint64(buf.height))
			cs.set(cursor.ID, cursor.srcXPropID, 0)
			cs.set(cursor.ID, cursor.srcYPropID, 0)
			cs.set(cursor.ID, cursor.srcWPropID, uint64(buf.width)<<16)
			cs.set(cursor.ID, cursor.srcHPropID, uint64(buf.height)<<16)
		} else {
			cs.set(cursor.ID, cursor.fbIDPropID, 0)
			cs.set(cursor.ID, cursor.crtcIDPropID, 0)
		}
	}

	// A cursor change on a connector without a cursor plane leaves nothing
	// to commit; no flip event would follow, so the gate stays open.
	if cs.empty() {
		c.cursorChanged = false
		return nil
	}

	err := cs.commitTo(dev, kmsabi.ModeAtomicNonblock|kmsabi.ModeAtomicPageFlipEvent)
	if err != nil {
		if isEACCES(err) {
			dev.logger.Debug("commit failed, likely lost drm master")
			return nil
		}
		if directScanoutInFlight {
			// Retry once without direct scanout: the buffer may no longer
			// be importable on this plane (e.g. the exporting device tore
			// it down mid-commit).
			return present(dev, c, false)
		}
		return &CommitError{Cause: err, DirectScanout: directScanoutInFlight}
	}

	if c.damaged && !directScanoutInFlight {
		c.nextBuffer++
	}
	if c.damaged {
		c.pendingFBID = primaryFBID
	}
	if c.cursorChanged && c.cursorEnabled {
		c.cursorFrontBuf++
	}
	c.canPresent = false
	c.damaged = false
	c.cursorChanged = false
	c.pendingFlip = true
	return nil
}

// renderIntoBuffer asks the device's attached render context to composite
// the connector's current frame op list into buf. With no render context
// attached it returns nil without rendering; the bridge renderer is not
// used here. The real GPU work happens behind the
// gfxapi.Context/Framebuffer interfaces; this wires the plumbing those
// interfaces exist for.
func renderIntoBuffer(dev *Device, c *Connector, buf *scanoutBuffer) error {
	if dev.renderContext == nil {
		return nil
	}
	fb, err := dev.renderContext.ImportFramebuffer(buf.dmabufFD, int(buf.width), int(buf.height), buf.format, kmsabi.FormatModifierInvalid)
	if err != nil {
		return &ImportError{Kind: "fb", Cause: err}
	}
	pass := fb.CreateRenderPass(c.frameOps, c.frameClear)
	if _, err := fb.Render(pass); err != nil {
		return &CopyToOutputError{Cause: err}
	}
	return nil
}

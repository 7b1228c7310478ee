package kms

import (
	"testing"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

func TestHandleFlipCompleteReopensCanPresentGateAndPromotesFramebuffer(t *testing.T) {
	dev := newTestDevice()
	c := &Connector{ID: 1, CrtcID: 10, canPresent: false, pendingFlip: true, pendingFBID: 77}
	dev.connectors[1] = c

	handleFlipComplete(dev, kmsabi.FlipEvent{CrtcID: 10, Sequence: 5})

	if !c.canPresent {
		t.Error("handleFlipComplete must reopen the can-present gate")
	}
	if c.pendingFlip {
		t.Error("handleFlipComplete must clear pendingFlip")
	}
	if c.activeFBID != 77 {
		t.Errorf("activeFBID = %d, want 77 (promoted from pendingFBID)", c.activeFBID)
	}
	if c.lastFeedback == nil || c.lastFeedback.Sequence != 5 {
		t.Error("handleFlipComplete must record the feedback for DrmFeedback to return")
	}
}

func TestHandleFlipCompleteIgnoresUnknownCrtc(t *testing.T) {
	dev := newTestDevice()
	c := &Connector{ID: 1, CrtcID: 10, canPresent: false}
	dev.connectors[1] = c

	handleFlipComplete(dev, kmsabi.FlipEvent{CrtcID: 99})

	if c.canPresent {
		t.Error("a flip event for a crtc no connector is attached to must not touch any connector")
	}
}

func TestHandleFlipCompleteRetriesPresentWhenDamagePending(t *testing.T) {
	dev := newTestDevice()
	// CrtcID is set (so handleFlipComplete matches it) but absent from
	// dev.crtcs, so the retried present() returns early without reaching
	// the commit ioctl.
	c := &Connector{ID: 1, CrtcID: 10, pendingFlip: true, damaged: true}
	dev.connectors[1] = c

	handleFlipComplete(dev, kmsabi.FlipEvent{CrtcID: 10})

	if !c.canPresent {
		t.Error("handleFlipComplete must still reopen the can-present gate before retrying")
	}
	if !c.damaged {
		t.Error("present() returning early (no crtc resource) must leave damaged set for the next attempt")
	}
}

func TestHandleFlipCompleteDispatchesFeedbackSink(t *testing.T) {
	dev := newTestDevice()
	c := &Connector{ID: 1, CrtcID: 10}
	dev.connectors[1] = c

	var got *PresentFeedback
	dev.onPresentFeedback = func(fb PresentFeedback) { got = &fb }

	handleFlipComplete(dev, kmsabi.FlipEvent{CrtcID: 10, Sequence: 3})

	if got == nil {
		t.Fatal("handleFlipComplete must invoke the present-feedback sink")
	}
	if got.ConnectorID != 1 || got.Kind != FeedbackPresented {
		t.Errorf("feedback = %+v, want connector 1 / FeedbackPresented", got)
	}
}

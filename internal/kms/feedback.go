package kms

import (
	"time"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// PresentFeedbackKind distinguishes a successful flip completion from a
// discarded one. handleFlipComplete reports only FeedbackPresented; no code
// in this package produces FeedbackDiscarded.
type PresentFeedbackKind int

const (
	FeedbackPresented PresentFeedbackKind = iota
	FeedbackDiscarded
)

// PresentFeedback is the per-connector notification fired once a previously
// submitted atomic commit's page flip lands, for a compositor to relay back
// to the client as a wp_presentation_feedback (or equivalent) event.
type PresentFeedback struct {
	ConnectorID uint32
	Kind        PresentFeedbackKind
	When        time.Time
	Sequence    uint32
}

// handleFlipComplete resolves a decoded DRM_EVENT_FLIP_COMPLETE record back
// to the connector whose crtc just flipped, promotes the framebuffer that
// commit submitted to active, reopens the can-present serial gate, retries
// a present immediately if damage or a cursor change arrived while the
// flip was in flight, and dispatches a PresentFeedback through the
// device's feedback sink. Runs on the EventLoop goroutine (see
// EventLoop.WatchFlipEvents), so it can call attemptPresent directly.
func handleFlipComplete(dev *Device, fe kmsabi.FlipEvent) {
	var target *Connector
	for _, c := range dev.connectors {
		if c.CrtcID == fe.CrtcID {
			target = c
			break
		}
	}
	if target == nil {
		return
	}

	target.pendingFlip = false
	target.canPresent = true
	target.activeFBID = target.pendingFBID

	fb := PresentFeedback{
		ConnectorID: target.ID,
		Kind:        FeedbackPresented,
		When:        time.Unix(int64(fe.TvSec), int64(fe.TvUsec)*1000),
		Sequence:    fe.Sequence,
	}
	target.lastFeedback = &fb

	if target.damaged || target.cursorChanged {
		if err := attemptPresent(dev, target); err != nil {
			dev.logger.Error("present after flip complete", "connector", target.ID, "error", err)
		}
	}

	if sink := dev.onPresentFeedback; sink != nil {
		sink(fb)
	}
}

package kms

import (
	"context"
	"testing"
	"time"
)

func newTestLoop(t *testing.T) (*EventLoop, *Device) {
	dev := newTestDevice()
	dev.ID = 1
	dev.connectors[1] = &Connector{ID: 1, State: StateConnectedDesktop, Enabled: true}
	sup := &Supervisor{logger: noopLogger(), devices: map[uint64]*Device{1: dev}}
	loop := NewEventLoop(sup, noopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)
	return loop, dev
}

func TestSetEnabledSkipsReconfigureWhenUnchanged(t *testing.T) {
	loop, dev := newTestLoop(t)

	loop.SetEnabled(1, 1, true) // already true, must be a no-op

	done := make(chan struct{})
	loop.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not drain posted jobs")
	}

	if !dev.connectors[1].Enabled {
		t.Error("connector must remain enabled")
	}
}

func TestSetEnabledFalseDisablesConnector(t *testing.T) {
	loop, dev := newTestLoop(t)

	loop.SetEnabled(1, 1, false)

	done := make(chan struct{})
	loop.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not drain posted jobs")
	}

	if dev.connectors[1].Enabled {
		t.Error("SetEnabled(false) must disable the connector")
	}
}

func TestDrmFeedbackNotFoundWhenNoFlipHasLanded(t *testing.T) {
	loop, _ := newTestLoop(t)

	_, ok := loop.DrmFeedback(1, 1)
	if ok {
		t.Error("DrmFeedback must report not-found before any flip has completed")
	}
}

func TestDrmFeedbackReturnsLastFlip(t *testing.T) {
	loop, dev := newTestLoop(t)

	want := PresentFeedback{ConnectorID: 1, Kind: FeedbackPresented, Sequence: 42}
	loop.Post(func() { dev.connectors[1].lastFeedback = &want })

	done := make(chan struct{})
	loop.Post(func() { close(done) })
	<-done

	got, ok := loop.DrmFeedback(1, 1)
	if !ok {
		t.Fatal("DrmFeedback must report found once a feedback has been recorded")
	}
	if got.Sequence != 42 {
		t.Errorf("DrmFeedback() sequence = %d, want 42", got.Sequence)
	}
}

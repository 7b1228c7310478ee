package kms

import (
	"testing"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

func TestKernelStatusToDesired(t *testing.T) {
	cases := []struct {
		name       string
		status     uint32
		nonDesktop bool
		want       ConnectorState
	}{
		{"connected desktop", kmsabi.ConnectionConnected, false, StateConnectedDesktop},
		{"connected non-desktop", kmsabi.ConnectionConnected, true, StateConnectedNonDesktop},
		{"disconnected", kmsabi.ConnectionDisconnected, false, StateDisconnected},
		{"disconnected ignores non-desktop", kmsabi.ConnectionDisconnected, true, StateDisconnected},
		{"unknown status", kmsabi.ConnectionUnknown, false, StateUnavailable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := kernelStatusToDesired(c.status, c.nonDesktop); got != c.want {
				t.Errorf("kernelStatusToDesired(%d, %v) = %v, want %v", c.status, c.nonDesktop, got, c.want)
			}
		})
	}
}

func TestValidTransitionsRemovedIsTerminal(t *testing.T) {
	// Once Removed, every further transition must be rejected: Removed is
	// a terminal state reached only when the connector object itself is
	// gone from the kernel's resource list.
	if len(validTransitions[StateRemoved]) != 0 {
		t.Fatalf("Removed must have no outgoing transitions, got %v", validTransitions[StateRemoved])
	}
}

func TestValidTransitionsCoverAllStates(t *testing.T) {
	states := []ConnectorState{StateDisconnected, StateConnectedDesktop, StateConnectedNonDesktop, StateUnavailable, StateRemoved}
	for _, s := range states {
		if _, ok := validTransitions[s]; !ok {
			t.Errorf("state %v has no entry in validTransitions", s)
		}
	}
}

func TestValidTransitionsRejectConnectedToConnected(t *testing.T) {
	if validTransitions[StateConnectedDesktop][StateConnectedNonDesktop] {
		t.Fatal("desktop -> non-desktop should not be a direct transition; must go through Disconnected first")
	}
}

func TestValidTransitionsAllowDisconnectedToEitherConnected(t *testing.T) {
	if !validTransitions[StateDisconnected][StateConnectedDesktop] {
		t.Error("Disconnected -> ConnectedDesktop must be allowed")
	}
	if !validTransitions[StateDisconnected][StateConnectedNonDesktop] {
		t.Error("Disconnected -> ConnectedNonDesktop must be allowed")
	}
}

func TestConnectorStateString(t *testing.T) {
	cases := map[ConnectorState]string{
		StateDisconnected:       "Disconnected",
		StateConnectedDesktop:   "Connected(desktop)",
		StateConnectedNonDesktop: "Connected(non-desktop)",
		StateUnavailable:        "Unavailable",
		StateRemoved:            "Removed",
		ConnectorState(99):      "Unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("ConnectorState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

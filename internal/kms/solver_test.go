package kms

import (
	"errors"
	"testing"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

func TestShouldIgnore(t *testing.T) {
	cases := []struct {
		name string
		c    *Connector
		want bool
	}{
		{"disconnected", &Connector{State: StateDisconnected}, true},
		{"connected desktop unleased", &Connector{State: StateConnectedDesktop, Enabled: true}, false},
		{"connected desktop leased", &Connector{State: StateConnectedDesktop, LeaseID: 7}, true},
		{"connected non-desktop", &Connector{State: StateConnectedNonDesktop}, true},
		{"connected desktop disabled", &Connector{State: StateConnectedDesktop, Enabled: false}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := shouldIgnore(c.c); got != c.want {
				t.Errorf("shouldIgnore(%+v) = %v, want %v", c.c, got, c.want)
			}
		})
	}
}

func newTestDevice() *Device {
	return &Device{
		logger:     noopLogger(),
		crtcs:      map[uint32]*Crtc{},
		planes:     map[uint32]*Plane{},
		encoders:   map[uint32]*Encoder{},
		connectors: map[uint32]*Connector{},
	}
}

func TestLeasedPreserveSetOnlyIncludesLeasedConnectors(t *testing.T) {
	dev := newTestDevice()
	dev.connectors[1] = &Connector{ID: 1, LeaseID: 0}
	dev.connectors[2] = &Connector{ID: 2, LeaseID: 5}
	dev.connectors[3] = &Connector{ID: 3, LeaseID: 9}

	p := leasedPreserveSet(dev)

	if p.connectors[1] {
		t.Error("unleased connector 1 should not be preserved")
	}
	if !p.connectors[2] || !p.connectors[3] {
		t.Error("leased connectors 2 and 3 should both be preserved")
	}
	if len(p.crtcs) != 0 || len(p.planes) != 0 {
		t.Error("leasedPreserveSet should not populate crtcs/planes, only connectors")
	}
}

func TestValidatePreserveDropsConnectorGoneFromResourceList(t *testing.T) {
	dev := newTestDevice()
	preserve := newPreserveSet()
	preserve.connectors[42] = true // connector 42 was leased but isn't in dev.connectors anymore

	got := validatePreserve(dev, preserve)

	if got.connectors[42] {
		t.Error("a preserved connector no longer present in dev.connectors must be dropped")
	}
}

func TestValidatePreserveDropsConnectorWithInactiveCrtc(t *testing.T) {
	dev := newTestDevice()
	dev.connectors[1] = &Connector{ID: 1, CrtcID: 10}
	dev.crtcs[10] = &Crtc{ID: 10, Active: false}
	preserve := newPreserveSet()
	preserve.connectors[1] = true

	got := validatePreserve(dev, preserve)

	if got.connectors[1] {
		t.Error("a connector whose crtc is inactive must not be preserved")
	}
}

func TestValidatePreserveDropsConnectorWhenPrimaryPlaneMoved(t *testing.T) {
	dev := newTestDevice()
	dev.connectors[1] = &Connector{ID: 1, CrtcID: 10, PrimaryPlaneID: 20}
	dev.crtcs[10] = &Crtc{ID: 10, Active: true}
	dev.planes[20] = &Plane{ID: 20, CrtcID: 99} // assigned to a different crtc now
	preserve := newPreserveSet()
	preserve.connectors[1] = true

	got := validatePreserve(dev, preserve)

	if got.connectors[1] {
		t.Error("a connector whose primary plane moved to another crtc must not be preserved")
	}
}

func TestValidatePreserveKeepsHealthyConnectorAndExpandsSet(t *testing.T) {
	dev := newTestDevice()
	dev.connectors[1] = &Connector{ID: 1, CrtcID: 10, PrimaryPlaneID: 20, CursorPlaneID: 30}
	dev.crtcs[10] = &Crtc{ID: 10, Active: true}
	dev.planes[20] = &Plane{ID: 20, CrtcID: 10}
	dev.planes[30] = &Plane{ID: 30, CrtcID: 10}
	preserve := newPreserveSet()
	preserve.connectors[1] = true

	got := validatePreserve(dev, preserve)

	if !got.connectors[1] {
		t.Fatal("a healthy connector must remain preserved")
	}
	if !got.crtcs[10] {
		t.Error("validatePreserve must expand the set to include the connector's crtc")
	}
	if !got.planes[20] || !got.planes[30] {
		t.Error("validatePreserve must expand the set to include the connector's primary and cursor planes")
	}
}

func TestCanUseCurrentDrmModeFalseWhenConnectorUnassigned(t *testing.T) {
	dev := newTestDevice()
	dev.connectors[1] = &Connector{ID: 1, State: StateConnectedDesktop, Enabled: true}

	if canUseCurrentDrmMode(dev, newPreserveSet()) {
		t.Error("a connected connector with no crtc assigned cannot reuse the current configuration")
	}
}

func TestAssignConnectorPlanesMissingDevFormatError(t *testing.T) {
	dev := newTestDevice()
	dev.crtcs[10] = &Crtc{ID: 10, PossiblePlaneIDs: []uint32{20}}
	dev.planes[20] = &Plane{ID: 20, Type: PlanePrimary, Formats: map[uint32]*PlaneFormat{
		fourccARGB8888: {Format: fourccARGB8888},
	}}
	c := &Connector{ID: 1, CrtcID: 10, SelectedMode: &Mode{Hdisplay: 1920, Vdisplay: 1080}}

	err := assignConnectorPlanes(dev, c, newChangeSet())

	var want *MissingDevFormatError
	if !errors.As(err, &want) {
		t.Fatalf("assignConnectorPlanes() = %v, want *MissingDevFormatError", err)
	}
}

func TestAssignConnectorPlanesMissingDevModifierError(t *testing.T) {
	dev := newTestDevice()
	dev.crtcs[10] = &Crtc{ID: 10, PossiblePlaneIDs: []uint32{20}}
	dev.planes[20] = &Plane{ID: 20, Type: PlanePrimary, Formats: map[uint32]*PlaneFormat{
		fourccXRGB8888: {Format: fourccXRGB8888, Modifiers: []uint64{0xdeadbeef}},
	}}
	c := &Connector{ID: 1, CrtcID: 10, SelectedMode: &Mode{Hdisplay: 1920, Vdisplay: 1080}}

	err := assignConnectorPlanes(dev, c, newChangeSet())

	var want *MissingDevModifierError
	if !errors.As(err, &want) {
		t.Fatalf("assignConnectorPlanes() = %v, want *MissingDevModifierError", err)
	}
}

func TestPlaneSupportsModifierLegacyNoModifierTableAssumesLinear(t *testing.T) {
	pf := &PlaneFormat{Format: fourccXRGB8888}
	if !planeSupportsModifier(pf, modifierLinear) {
		t.Error("a plane with no IN_FORMATS table must be assumed linear-capable")
	}
}

func TestPlaneSupportsModifierHonorsFormatModifierInvalid(t *testing.T) {
	pf := &PlaneFormat{Format: fourccXRGB8888, Modifiers: []uint64{kmsabi.FormatModifierInvalid}}
	if !planeSupportsModifier(pf, modifierLinear) {
		t.Error("DRM_FORMAT_MOD_INVALID in the modifier list must be treated as linear-compatible")
	}
}

func TestCanUseCurrentDrmModeFalseWhenIgnoredConnectorStillHoldsCrtc(t *testing.T) {
	dev := newTestDevice()
	dev.connectors[1] = &Connector{ID: 1, State: StateDisconnected, CrtcID: 10}

	if canUseCurrentDrmMode(dev, newPreserveSet()) {
		t.Error("a disconnected connector still holding a crtc must force a full reconfiguration")
	}
}

package kms

import "testing"

func TestPresentNoopWhenConnectorHasNoCrtc(t *testing.T) {
	dev := newTestDevice()
	c := &Connector{ID: 1, damaged: true, canPresent: true}

	if err := present(dev, c, false); err != nil {
		t.Fatalf("present() = %v, want nil", err)
	}
}

func TestPresentNoopWhenCrtcInactive(t *testing.T) {
	dev := newTestDevice()
	dev.crtcs[10] = &Crtc{ID: 10, Active: false}
	c := &Connector{ID: 1, CrtcID: 10, damaged: true, canPresent: true}

	if err := present(dev, c, false); err != nil {
		t.Fatalf("present() = %v, want nil", err)
	}
}

func TestPresentNoopWhenNotDamagedOrCursorChanged(t *testing.T) {
	dev := newTestDevice()
	dev.crtcs[10] = &Crtc{ID: 10, Active: true}
	c := &Connector{ID: 1, CrtcID: 10, canPresent: true}

	if err := present(dev, c, false); err != nil {
		t.Fatalf("present() = %v, want nil", err)
	}
}

func TestPresentNoopWhenCannotPresent(t *testing.T) {
	dev := newTestDevice()
	dev.crtcs[10] = &Crtc{ID: 10, Active: true}
	c := &Connector{ID: 1, CrtcID: 10, damaged: true, canPresent: false}

	if err := present(dev, c, false); err != nil {
		t.Fatalf("present() = %v, want nil", err)
	}
}

func TestPresentNoopWhenPrimaryPlaneMissing(t *testing.T) {
	dev := newTestDevice()
	dev.crtcs[10] = &Crtc{ID: 10, Active: true}
	c := &Connector{ID: 1, CrtcID: 10, PrimaryPlaneID: 20, damaged: true, canPresent: true}

	if err := present(dev, c, false); err != nil {
		t.Fatalf("present() = %v, want nil", err)
	}
}

func TestAttemptPresentNoopWithoutDamageUnderEitherDirectScanoutGate(t *testing.T) {
	dev := newTestDevice()
	dev.crtcs[10] = &Crtc{ID: 10, Active: true}
	c := &Connector{ID: 1, CrtcID: 10, canPresent: true}

	dev.isRenderDevice = true
	dev.directScanoutEnabled = false
	if err := attemptPresent(dev, c); err != nil {
		t.Fatalf("attemptPresent() = %v, want nil (noop, no damage)", err)
	}

	dev.isRenderDevice = false
	dev.directScanoutEnabled = true
	if err := attemptPresent(dev, c); err != nil {
		t.Fatalf("attemptPresent() = %v, want nil (noop, no damage)", err)
	}
}

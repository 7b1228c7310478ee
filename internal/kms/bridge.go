package kms

import "github.com/outpostlabs/kmscore/internal/kmsabi"

// bridgeRenderer copies rendered frames from the render device's GPU
// context into buffers scanned out on a different device, for the
// multi-GPU case where the render device and the scanout device disagree
// (a discrete GPU rendering for a display attached to the integrated GPU,
// or vice versa). Built lazily the first time a device's render context is
// set to something other than the device's own.
type bridgeRenderer struct {
	dev *Device
}

func newBridgeRenderer(dev *Device) *bridgeRenderer {
	return &bridgeRenderer{dev: dev}
}

// importAcrossDevices exports a dmabuf fd from the render device and
// imports the same underlying buffer into this (scanout) device's fd
// table, so the scanout device's AddFB2 call can reference it by a handle
// local to that device. The kernel tracks the underlying GEM object by the
// dmabuf; PRIME_FD_TO_HANDLE returns a second device-local handle rather
// than copying memory.
func (b *bridgeRenderer) importAcrossDevices(renderDmabufFD int) (uint32, error) {
	handle, err := kmsabi.PrimeFDToHandle(b.dev.file, renderDmabufFD)
	if err != nil {
		return 0, &ImportError{Kind: "fb", Cause: err}
	}
	return handle, nil
}

// same reports whether the render device and this device are the same
// physical card — some discrete-GPU drivers (see SameDeviceForBridgeOnly)
// require this before they'll allow a bridge buffer at all.
func (b *bridgeRenderer) same(renderDevID uint64) bool {
	return b.dev.ID == renderDevID
}

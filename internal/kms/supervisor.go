package kms

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/outpostlabs/kmscore/internal/gfxapi"
)

// Supervisor owns every open Device, dispatches hot-plug and GPU-reset
// events to them, and fans device-level and connector-level events out to
// whatever upward consumer (the compositor) is listening.
type Supervisor struct {
	mu      sync.Mutex
	logger  *slog.Logger
	devices map[uint64]*Device // devID -> Device

	onDeviceEvent    func(devID uint64, ev DeviceEvent)
	onConnectorEvent func(devID uint64, ev HotplugEvent)
}

// NewSupervisor constructs an empty supervisor; devices are added with
// AddDevice or AddDeviceFD. A uevent never adds a device: it only
// reprobes devices already added.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	return &Supervisor{logger: logger, devices: make(map[uint64]*Device)}
}

// OnDeviceEvent/OnConnectorEvent register the supervisor's upward event
// sinks. Both are optional; a nil sink silently drops events of that kind.
func (s *Supervisor) OnDeviceEvent(f func(devID uint64, ev DeviceEvent)) { s.onDeviceEvent = f }
func (s *Supervisor) OnConnectorEvent(f func(devID uint64, ev HotplugEvent)) {
	s.onConnectorEvent = f
}

// AddDevice opens path, performs the initial resource enumeration, and
// registers it with the supervisor, firing EventNewDrmDevice.
func (s *Supervisor) AddDevice(path string) (*Device, error) {
	dev, err := OpenDevice(path, s.logger)
	if err != nil {
		return nil, fmt.Errorf("add device %s: %w", path, err)
	}
	s.wireConnectorEvents(dev)
	s.mu.Lock()
	s.devices[dev.ID] = dev
	s.mu.Unlock()
	if s.onDeviceEvent != nil {
		s.onDeviceEvent(dev.ID, DeviceEvent{Kind: EventNewDrmDevice})
	}
	return dev, nil
}

// AddDeviceFD registers an already-open card fd (handed over by logind's
// TakeDevice) as a new device, firing EventNewDrmDevice on success.
func (s *Supervisor) AddDeviceFD(fd int, path string) (*Device, error) {
	dev, err := OpenDeviceFD(fd, path, s.logger)
	if err != nil {
		return nil, fmt.Errorf("add device fd %s: %w", path, err)
	}
	s.wireConnectorEvents(dev)
	s.mu.Lock()
	s.devices[dev.ID] = dev
	s.mu.Unlock()
	if s.onDeviceEvent != nil {
		s.onDeviceEvent(dev.ID, DeviceEvent{Kind: EventNewDrmDevice})
	}
	return dev, nil
}

// wireConnectorEvents hooks dev's own onConnectorEvent sink (fired by the
// lease broker on lease grant and revoke, the administrative, non-kernel-
// decoded connector transitions) into the supervisor's fan-out, so callers
// only ever register with OnConnectorEvent once, at the Supervisor.
func (s *Supervisor) wireConnectorEvents(dev *Device) {
	dev.OnConnectorEvent(func(ev HotplugEvent) {
		if s.onConnectorEvent != nil {
			s.onConnectorEvent(dev.ID, ev)
		}
	})
}

// RemoveDevice tears a device down (card unplugged, e.g. an external GPU
// over Thunderbolt) and fires EventDeviceRemoved.
func (s *Supervisor) RemoveDevice(devID uint64) {
	s.mu.Lock()
	dev, ok := s.devices[devID]
	delete(s.devices, devID)
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = dev.Close()
	if s.onDeviceEvent != nil {
		s.onDeviceEvent(devID, DeviceEvent{Kind: EventDeviceRemoved})
	}
}

// Reprobe re-enumerates one device's connectors after a hot-plug uevent,
// diffs the connector set, publishes the resulting events, and runs the
// solver to adopt the new topology.
func (s *Supervisor) Reprobe(devID uint64) error {
	s.mu.Lock()
	dev, ok := s.devices[devID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("reprobe: unknown device %d", devID)
	}

	dev.mu.Lock()
	before := dev.connectors
	dev.mu.Unlock()

	if err := dev.reenumerate(); err != nil {
		return err
	}

	dev.mu.Lock()
	after := dev.connectors
	dev.mu.Unlock()

	for _, ev := range diffConnectors(before, after) {
		if s.onConnectorEvent != nil {
			s.onConnectorEvent(devID, ev)
		}
	}
	return reconfigure(dev)
}

// PauseAll drops master on every device, for a logind PauseDevice signal
// ahead of a VT switch.
func (s *Supervisor) PauseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dev := range s.devices {
		if err := dev.Pause(); err != nil {
			s.logger.Error("pause device", "device", dev.DevNode, "error", err)
		}
	}
}

// ResumeAll re-acquires master on every device and runs reconfigure on
// each, for a logind ResumeDevice signal after a VT switch back.
// reconfigure keeps the current configuration when it still holds and
// performs a full modeset otherwise.
func (s *Supervisor) ResumeAll() {
	s.mu.Lock()
	devices := make([]*Device, 0, len(s.devices))
	for _, dev := range s.devices {
		devices = append(devices, dev)
	}
	s.mu.Unlock()
	for _, dev := range devices {
		if err := dev.Resume(); err != nil {
			s.logger.Error("resume device", "device", dev.DevNode, "error", err)
			continue
		}
		if err := reconfigure(dev); err != nil {
			s.logger.Error("reconfigure after resume", "device", dev.DevNode, "error", err)
		}
	}
}

// PollResets checks every device's render context for a reported GPU
// reset. A reset is unrecoverable for this process: the output core has no
// way to know which in-flight GPU work (and therefore which on-screen
// frame) survived the reset, so it logs the condition and terminates
// rather than risk compositing from a render context in an undefined
// state. The process supervisor (systemd, a container runtime) is
// expected to restart it.
func (s *Supervisor) PollResets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dev := range s.devices {
		if dev.renderContext != nil && dev.renderContext.Reset() {
			s.logger.Error("gpu reset detected, terminating", "device", dev.DevNode)
			os.Exit(1)
		}
	}
}

// SetRenderContext attaches the GPU context ctx to devID's device, marking
// it as the device's own render node or a bridged remote one, and re-runs
// the solver for that device.
func (s *Supervisor) SetRenderContext(devID uint64, ctx gfxapi.Context, isRenderDevice bool) {
	s.mu.Lock()
	dev, ok := s.devices[devID]
	s.mu.Unlock()
	if !ok {
		return
	}
	dev.SetRenderContext(ctx, isRenderDevice)
	if err := reconfigure(dev); err != nil {
		s.logger.Error("reconfigure after render context change", "device", dev.DevNode, "error", err)
	}
}

// MakeRenderDevice is the upward interface's make_render_device operation:
// it attaches ctx to devID as that device's own render node, making devID
// eligible (subject to SetDirectScanoutEnabled) for the direct-scanout
// fast path on its own planes.
func (s *Supervisor) MakeRenderDevice(devID uint64, ctx gfxapi.Context) {
	s.SetRenderContext(devID, ctx, true)
}

// SetGfxApi is the upward interface's set_gfx_api operation for a bridged
// device: it attaches ctx — a render context that belongs to a different
// card — so devID's bridge renderer can copy frames in for scanout. devID
// never attempts direct scanout for a bridged context.
func (s *Supervisor) SetGfxApi(devID uint64, ctx gfxapi.Context) {
	s.SetRenderContext(devID, ctx, false)
}

// SetDirectScanoutEnabled is the upward interface's
// set_direct_scanout_enabled operation: it toggles the direct-scanout fast
// path for devID, which only ever takes effect when devID is also its own
// render device (see Device.IsRenderDevice).
func (s *Supervisor) SetDirectScanoutEnabled(devID uint64, enabled bool) error {
	s.mu.Lock()
	dev, ok := s.devices[devID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("set direct scanout enabled: unknown device %d", devID)
	}
	dev.SetDirectScanoutEnabled(enabled)
	return nil
}

// Reconfigure re-runs the solver for one device — used after a client sets
// a connector's desired mode, or after a lease revocation frees objects
// back up for the compositor's own use.
func (s *Supervisor) Reconfigure(devID uint64) error {
	s.mu.Lock()
	dev, ok := s.devices[devID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("reconfigure: unknown device %d", devID)
	}
	return reconfigure(dev)
}

// Device looks up a previously added device by id.
func (s *Supervisor) Device(devID uint64) (*Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[devID]
	return dev, ok
}

// Devices returns a snapshot of all currently open devices.
func (s *Supervisor) Devices() []*Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}

package kms

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/outpostlabs/kmscore/internal/gfxapi"
	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// Quirks captures per-driver workarounds a device needs. Populated once at
// open time from the driver name GetVersion reports.
type Quirks struct {
	// NoModifiers makes the solver accept a primary plane without checking
	// its IN_FORMATS modifier list for linear, for drivers whose modifier
	// tables are present but unreliable. IN_FORMATS is still parsed into
	// Plane.Formats.
	NoModifiers bool
	// SameDeviceForBridgeOnly is set for amdgpu. No code in this module
	// reads it, so bridge setup is the same with or without it.
	SameDeviceForBridgeOnly bool
}

// Device is one open DRM card: the kernel file handle, its static resource
// inventory, the render context the GPU backend attaches to it, and the
// mutable bookkeeping the solver/present engine/lease broker update as the
// device runs.
type Device struct {
	mu sync.Mutex

	ID       uint64 // stat(2) st_rdev of the device node
	DevNode  string
	file     *os.File
	logger   *slog.Logger
	quirks   Quirks
	isMaster bool
	paused   bool

	renderContext        gfxapi.Context
	isRenderDevice       bool
	directScanoutEnabled bool

	crtcs       map[uint32]*Crtc
	planes      map[uint32]*Plane
	encoders    map[uint32]*Encoder
	connectors  map[uint32]*Connector
	crtcOrder   []uint32 // index order matches Crtc.Index
	uevent      *kmsabi.UeventSocket

	leases            map[uint32]*Lease // lessee object id -> Lease
	pendingRevocation map[uint32]*Lease

	scanout *scanoutPool
	bridge  *bridgeRenderer

	onPresentFeedback func(PresentFeedback)
	onConnectorEvent  func(HotplugEvent)
}

// OnPresentFeedback registers the sink that receives a PresentFeedback for
// every flip-complete event this device reports.
func (d *Device) OnPresentFeedback(f func(PresentFeedback)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPresentFeedback = f
}

// OnConnectorEvent registers the sink this device posts a HotplugEvent to
// whenever something other than a kernel-decoded hot-plug drives one of its
// connectors through a state transition; in this module that is a lease
// grant or revoke (lease.go). The supervisor wires this
// to its own onConnectorEvent fan-out in AddDevice/AddDeviceFD so callers
// only ever register with the Supervisor, not with individual devices.
func (d *Device) OnConnectorEvent(f func(HotplugEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onConnectorEvent = f
}

// IsRenderDevice reports whether the render context attached via
// SetRenderContext is this device's own render node, as opposed to a
// bridged remote one. Direct scanout is only attempted when this is true:
// a plane can only be pointed straight at a client buffer the locally
// attached GPU produced, never at one rendered on a different card.
func (d *Device) IsRenderDevice() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isRenderDevice
}

// SetDirectScanoutEnabled toggles the direct-scanout fast path on or off
// for this device, independent of IsRenderDevice; a compositor can disable
// it entirely (e.g. to force composition for screen capture) even on a
// device that otherwise qualifies.
func (d *Device) SetDirectScanoutEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.directScanoutEnabled = enabled
}

// OpenDevice opens a DRM card, acquires master, sets the atomic-modesetting
// and universal-planes client caps, and performs the initial full resource
// enumeration.
func OpenDevice(path string, logger *slog.Logger) (*Device, error) {
	f, err := kmsabi.OpenCard(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return openDevice(f, path, logger)
}

// OpenDeviceFD wraps an already-open card fd (typically handed over by
// systemd-logind's TakeDevice, so the process never needs CAP_SYS_ADMIN or
// group membership on the device node itself) instead of opening path.
func OpenDeviceFD(fd int, path string, logger *slog.Logger) (*Device, error) {
	f := os.NewFile(uintptr(fd), path)
	if f == nil {
		return nil, fmt.Errorf("invalid fd for %s", path)
	}
	return openDevice(f, path, logger)
}

func openDevice(f *os.File, path string, logger *slog.Logger) (*Device, error) {
	if err := kmsabi.SetClientCap(f, kmsabi.ClientCapUniversalPlanes, 1); err != nil {
		f.Close()
		return nil, &AtomicModesettingError{Cause: err}
	}
	if err := kmsabi.SetClientCap(f, kmsabi.ClientCapAtomic, 1); err != nil {
		f.Close()
		return nil, &AtomicModesettingError{Cause: err}
	}
	if err := kmsabi.SetMaster(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("set master on %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	devID := statRdev(st)

	driverName, _ := kmsabi.GetVersion(f)

	d := &Device{
		ID: devID, DevNode: path, file: f,
		logger:            logger.With("device", path),
		isMaster:          true,
		leases:            make(map[uint32]*Lease),
		pendingRevocation: make(map[uint32]*Lease),
		quirks:            quirksForDriver(driverName),
	}
	if err := d.reenumerate(); err != nil {
		f.Close()
		return nil, err
	}
	d.scanout = newScanoutPool(d)
	d.logger.Info("drm device opened", "driver", driverName, "crtcs", len(d.crtcs), "planes", len(d.planes), "connectors", len(d.connectors))
	return d, nil
}

// reenumerate rebuilds the full static resource inventory: CRTCs, planes,
// encoders and connectors, plus per-connector property bags. Called at open
// time and after a hot-plug uevent signals the topology may have changed.
func (d *Device) reenumerate() error {
	crtcIDs, connectorIDs, encoderIDs, err := kmsabi.GetResources(d.file)
	if err != nil {
		return &EnumerationError{Kind: "resources", Cause: err}
	}
	planes, err := enumeratePlanes(d.file)
	if err != nil {
		return err
	}
	crtcs, err := enumerateCrtcs(d.file, crtcIDs, planes)
	if err != nil {
		return err
	}
	encoders, err := enumerateEncoders(d.file, encoderIDs)
	if err != nil {
		return err
	}

	connectors := make(map[uint32]*Connector, len(connectorIDs))
	for _, id := range connectorIDs {
		existing := d.connectors[id]
		c, err := newOrRefreshConnector(d.file, id, existing)
		if err != nil {
			return err
		}
		connectors[id] = c
	}

	d.mu.Lock()
	d.crtcs, d.planes, d.encoders, d.connectors = crtcs, planes, encoders, connectors
	d.crtcOrder = crtcIDs
	d.mu.Unlock()
	return nil
}

func quirksForDriver(name string) Quirks {
	switch name {
	case "vc4", "v3d":
		return Quirks{NoModifiers: true}
	case "amdgpu":
		return Quirks{SameDeviceForBridgeOnly: true}
	default:
		return Quirks{}
	}
}

// SetRenderContext attaches the GPU backend's rendering context to this
// device, marking whether it is also the device's own render node (vs. a
// bridged remote render device).
func (d *Device) SetRenderContext(ctx gfxapi.Context, isRenderDevice bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderContext = ctx
	d.isRenderDevice = isRenderDevice
	if !isRenderDevice {
		d.bridge = newBridgeRenderer(d)
	} else {
		d.bridge = nil
	}
}

// Pause drops DRM master and marks the device paused, for a logind
// PauseDevice signal.
func (d *Device) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused {
		return nil
	}
	if err := kmsabi.DropMaster(d.file); err != nil {
		return fmt.Errorf("drop master on %s: %w", d.DevNode, err)
	}
	d.isMaster = false
	d.paused = true
	d.logger.Info("device paused")
	return nil
}

// Resume re-acquires master and refreshes every property bag (the kernel
// may have reset values while another session held master). It does not
// mark any connector for a new commit; Supervisor.ResumeAll runs
// reconfigure after it.
func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		return nil
	}
	if err := kmsabi.SetMaster(d.file); err != nil {
		return fmt.Errorf("set master on %s: %w", d.DevNode, err)
	}
	d.isMaster = true
	d.paused = false
	for _, c := range d.crtcs {
		if c.props != nil {
			_ = c.props.refresh(d.file)
		}
	}
	for _, p := range d.planes {
		if p.props != nil {
			_ = p.props.refresh(d.file)
		}
	}
	for _, c := range d.connectors {
		if c.props != nil {
			_ = c.props.refresh(d.file)
		}
	}
	d.logger.Info("device resumed")
	return nil
}

// Close closes the uevent socket, if one is open, and the card file. It
// does not call DropMaster, close lease fds or revoke leases already
// handed to a client; the kernel revokes them itself when the master fd
// closes.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uevent != nil {
		d.uevent.Close()
	}
	return d.file.Close()
}

func (d *Device) IsMaster() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isMaster
}

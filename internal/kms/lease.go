package kms

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// ErrConnectorAlreadyLeased is returned by CreateLease when the requested
// connector is already granted to another client.
var ErrConnectorAlreadyLeased = errors.New("connector already leased")

// ErrConnectorNotConnected is returned by CreateLease when the device has
// no such connector or the connector isn't in StateConnectedNonDesktop
// (disconnected, unavailable, removed, or driving the compositor's own
// desktop). A missing free crtc is reported as NoCrtcForConnectorError.
var ErrConnectorNotConnected = errors.New("connector not connected")

// Lease is one outstanding grant of a connector, its crtc and its planes to
// a client, identified by the kernel's lessee object id.
type Lease struct {
	ID          uint32 // lessee id, doubles as the fd's DRM_IOCTL_MODE_GETLEASE argument
	HandleID    uuid.UUID // stable correlation id for lease log lines, survives lessee id reuse
	FD          int
	ConnectorID uint32
	CrtcID      uint32
	PlaneIDs    []uint32
}

// CreateLease grants exclusive use of connectorID (and a compatible crtc
// and its primary/cursor planes) to a client, returning a lease fd the
// caller hands off over its own transport (see leaseproto.go). The leased
// objects are excluded from the next reconfigure() pass by the solver's
// preserve-set / shouldIgnore checks on Connector.LeaseID.
func CreateLease(dev *Device, connectorID uint32) (*Lease, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	c, ok := dev.connectors[connectorID]
	if !ok {
		return nil, fmt.Errorf("connector %d: %w", connectorID, ErrConnectorNotConnected)
	}
	if c.LeaseID != 0 {
		return nil, fmt.Errorf("connector %d: %w", connectorID, ErrConnectorAlreadyLeased)
	}
	// Only a non-desktop connector (one the kernel or an administrative
	// SetNonDesktopOverride has flagged as not meant to drive the
	// compositor's own desktop, e.g. a VR headset panel) is eligible for
	// leasing: leasing out a connector the compositor is actively using
	// for its own desktop would silently steal the user's screen.
	if c.State != StateConnectedNonDesktop {
		return nil, fmt.Errorf("connector %d: %w", connectorID, ErrConnectorNotConnected)
	}

	crtc, err := findLeaseCrtc(dev, c)
	if err != nil {
		return nil, err
	}

	objects := []uint32{c.ID, crtc.ID}
	var planeIDs []uint32
	for _, pid := range crtc.PossiblePlaneIDs {
		p := dev.planes[pid]
		if p == nil || p.Assigned || p.LeaseID != 0 {
			continue
		}
		if p.Type == PlanePrimary || p.Type == PlaneCursor {
			objects = append(objects, p.ID)
			planeIDs = append(planeIDs, p.ID)
		}
	}

	fd, lesseeID, err := kmsabi.CreateLease(dev.file, objects)
	if err != nil {
		return nil, fmt.Errorf("create lease: %w", err)
	}

	lease := &Lease{ID: lesseeID, HandleID: uuid.New(), FD: fd, ConnectorID: c.ID, CrtcID: crtc.ID, PlaneIDs: planeIDs}
	dev.leases[lesseeID] = lease

	c.LeaseID = lesseeID
	crtc.LeaseID = lesseeID
	for _, pid := range planeIDs {
		dev.planes[pid].LeaseID = lesseeID
	}

	// Leasing is an administrative transition, not a kernel-decoded
	// hot-plug one, so it sets State directly rather than consulting
	// validTransitions: the connector is unavailable to the compositor's
	// own solver for as long as the lease stands.
	c.State = StateUnavailable
	if dev.onConnectorEvent != nil {
		dev.onConnectorEvent(HotplugEvent{ConnectorID: c.ID, Event: ConnectorEvent{Kind: EventUnavailable}})
	}

	dev.logger.Info("lease created", "lessee", lesseeID, "handle", lease.HandleID, "connector", c.ID, "crtc", crtc.ID)
	return lease, nil
}

// findLeaseCrtc picks a crtc reachable from connectorID's encoders that
// isn't already leased or driving the compositor's own desktop output.
func findLeaseCrtc(dev *Device, c *Connector) (*Crtc, error) {
	if c.CrtcID != 0 {
		if crtc, ok := dev.crtcs[c.CrtcID]; ok && crtc.LeaseID == 0 {
			return crtc, nil
		}
	}
	for _, eid := range c.EncoderIDs {
		enc, ok := dev.encoders[eid]
		if !ok {
			continue
		}
		for _, crtc := range dev.crtcs {
			if enc.PossibleCrtcs&(1<<crtc.Index) == 0 {
				continue
			}
			if crtc.ConnectorID != 0 || crtc.LeaseID != 0 {
				continue
			}
			return crtc, nil
		}
	}
	return nil, &NoCrtcForConnectorError{ConnectorID: c.ID}
}

// RevokeLease requests revocation of an outstanding lease. If the kernel
// reports the lease is still in use (EBUSY, a client mid-flip on leased
// objects) the lease is parked in dev.pendingRevocation and retried on the
// next call to RetryPendingRevocations, mirroring the original backend's
// leases_to_break retry loop.
func RevokeLease(dev *Device, lesseeID uint32) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	lease, ok := dev.leases[lesseeID]
	if !ok {
		return nil
	}
	if tryRevoke(dev, lease) {
		finishRevoke(dev, lease)
		return nil
	}
	dev.pendingRevocation[lesseeID] = lease
	return nil
}

func tryRevoke(dev *Device, lease *Lease) bool {
	if err := kmsabi.RevokeLease(dev.file, lease.ID); err != nil {
		dev.logger.Debug("revoke lease: retrying later", "lessee", lease.ID, "error", err)
		return false
	}
	return true
}

func finishRevoke(dev *Device, lease *Lease) {
	delete(dev.leases, lease.ID)
	delete(dev.pendingRevocation, lease.ID)
	if c, ok := dev.connectors[lease.ConnectorID]; ok {
		c.LeaseID = 0
		// The connector was only ever leasable while
		// StateConnectedNonDesktop, so that is the state revocation
		// restores it to; a real disconnect in the meantime will have
		// already been reported as its own hot-plug event and this just
		// gets immediately corrected on the next reenumerate.
		if c.State == StateUnavailable {
			c.State = StateConnectedNonDesktop
			if dev.onConnectorEvent != nil {
				dev.onConnectorEvent(HotplugEvent{ConnectorID: c.ID, Event: ConnectorEvent{Kind: EventAvailable}})
			}
		}
	}
	if crtc, ok := dev.crtcs[lease.CrtcID]; ok {
		crtc.LeaseID = 0
	}
	for _, pid := range lease.PlaneIDs {
		if p, ok := dev.planes[pid]; ok {
			p.LeaseID = 0
		}
	}
	dev.logger.Info("lease revoked", "lessee", lease.ID, "handle", lease.HandleID)
}

// RetryPendingRevocations re-attempts every lease revocation that was
// deferred because the kernel reported the lease still in use. Called once
// per device-supervisor tick.
func RetryPendingRevocations(dev *Device) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	for id, lease := range dev.pendingRevocation {
		if tryRevoke(dev, lease) {
			finishRevoke(dev, lease)
		}
		_ = id
	}
}

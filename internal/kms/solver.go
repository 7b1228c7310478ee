package kms

import (
	"log/slog"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// preserveSet names the connectors (and, transitively, their assigned crtc
// and planes) a reconfiguration round should leave completely untouched,
// because a lease already grants them to a client.
type preserveSet struct {
	connectors map[uint32]bool
	crtcs      map[uint32]bool
	planes     map[uint32]bool
}

func newPreserveSet() preserveSet {
	return preserveSet{connectors: map[uint32]bool{}, crtcs: map[uint32]bool{}, planes: map[uint32]bool{}}
}

func shouldIgnore(c *Connector) bool {
	return c.State != StateConnectedDesktop || c.LeaseID != 0 || !c.Enabled
}

// reconfigure is the solver's top-level entry point: it runs the no-op
// feasibility check first, and only falls back to a full modeset-and-
// reassign pass when the current hardware configuration can't satisfy the
// connectors' current desired state.
func reconfigure(dev *Device) error {
	preserve := validatePreserve(dev, leasedPreserveSet(dev))

	if canUseCurrentDrmMode(dev, preserve) {
		return nil
	}

	dev.logger.Warn("cannot reuse current configuration, performing full modeset")
	cs := newChangeSet()
	resetConnectorsAndCrtcs(dev, cs, preserve)
	for _, c := range dev.connectors {
		if preserve.connectors[c.ID] {
			continue
		}
		if shouldIgnore(c) {
			continue
		}
		if err := assignConnectorCrtc(dev, c, cs); err != nil {
			dev.logger.Error("assign crtc", "connector", c.ID, "error", err)
		}
	}
	resetPlanes(dev, cs, preserve)
	for _, c := range dev.connectors {
		if preserve.connectors[c.ID] {
			continue
		}
		if c.CrtcID == 0 {
			continue
		}
		if err := assignConnectorPlanes(dev, c, cs); err != nil {
			dev.logger.Error("assign planes", "connector", c.ID, "error", err)
		}
	}
	if err := cs.commitTo(dev, kmsabi.ModeAtomicAllowModeset); err != nil {
		return &ModesetError{Cause: err}
	}
	return nil
}

// leasedPreserveSet seeds a preserve set from every connector currently
// leased to a client; lease broker state is authoritative over solver
// decisions for those connectors.
func leasedPreserveSet(dev *Device) preserveSet {
	p := newPreserveSet()
	for _, c := range dev.connectors {
		if c.LeaseID != 0 {
			p.connectors[c.ID] = true
		}
	}
	return p
}

// validatePreserve drops any preserved connector whose actual hardware
// state has drifted from what the connector object records (attached to a
// different crtc, mode changed underneath it, crtc inactive, planes moved),
// then expands the preserve set to include the crtc and planes of every
// connector that survives.
func validatePreserve(dev *Device, preserve preserveSet) preserveSet {
	for id := range preserve.connectors {
		c, ok := dev.connectors[id]
		if !ok {
			dev.logger.Warn("cannot preserve connector which no longer exists", "connector", id)
			delete(preserve.connectors, id)
			continue
		}
		if c.CrtcID == 0 {
			continue
		}
		crtc, ok := dev.crtcs[c.CrtcID]
		if !ok {
			delete(preserve.connectors, id)
			continue
		}
		if !crtc.Active {
			dev.logger.Warn("cannot preserve connector whose crtc is inactive", "connector", id)
			delete(preserve.connectors, id)
			continue
		}
		if c.SelectedMode != nil && crtc.ModeBlobID != 0 {
			current, err := getModeBlob(dev.file, crtc.ModeBlobID)
			if err != nil || !modesEqual(*c.SelectedMode, current) {
				dev.logger.Warn("cannot preserve connector whose crtc has a different mode", "connector", id)
				delete(preserve.connectors, id)
				continue
			}
		}
		if c.PrimaryPlaneID != 0 {
			if pp, ok := dev.planes[c.PrimaryPlaneID]; !ok || pp.CrtcID != crtc.ID {
				dev.logger.Warn("cannot preserve connector whose primary plane moved", "connector", id)
				delete(preserve.connectors, id)
				continue
			}
		}
		if c.CursorPlaneID != 0 {
			if cp, ok := dev.planes[c.CursorPlaneID]; ok && cp.CrtcID != 0 && cp.CrtcID != crtc.ID {
				dev.logger.Warn("cannot preserve connector whose cursor plane moved", "connector", id)
				delete(preserve.connectors, id)
				continue
			}
		}
	}
	for id := range preserve.connectors {
		c := dev.connectors[id]
		if c.PrimaryPlaneID != 0 {
			preserve.planes[c.PrimaryPlaneID] = true
		}
		if c.CursorPlaneID != 0 {
			preserve.planes[c.CursorPlaneID] = true
		}
		if c.CrtcID != 0 {
			preserve.crtcs[c.CrtcID] = true
		}
	}
	return preserve
}

// canUseCurrentDrmMode is the no-op feasibility test: it checks whether
// every non-ignored connector already has a working crtc/mode/primary-plane
// assignment, and if so deactivates any crtc left unused by a
// deactivate-only commit (no ALLOW_MODESET needed unless a crtc actually
// needs deactivating).
func canUseCurrentDrmMode(dev *Device, preserve preserveSet) bool {
	usedCrtcs := map[uint32]bool{}
	usedPlanes := map[uint32]bool{}

	for _, c := range dev.connectors {
		if shouldIgnore(c) {
			if c.CrtcID != 0 {
				return false
			}
			continue
		}
		if c.CrtcID == 0 {
			return false
		}
		usedCrtcs[c.CrtcID] = true
		crtc, ok := dev.crtcs[c.CrtcID]
		if !ok || !crtc.Active {
			return false
		}
		if c.SelectedMode == nil || crtc.ModeBlobID == 0 {
			return false
		}
		current, err := getModeBlob(dev.file, crtc.ModeBlobID)
		if err != nil || !modesEqual(*c.SelectedMode, current) {
			return false
		}
		if c.PrimaryPlaneID == 0 || usedPlanes[c.PrimaryPlaneID] {
			return false
		}
		usedPlanes[c.PrimaryPlaneID] = true
	}

	cs := newChangeSet()
	var flags uint32
	for _, crtc := range dev.crtcs {
		if !usedCrtcs[crtc.ID] && crtc.Active {
			flags = kmsabi.ModeAtomicAllowModeset
			cs.set(crtc.ID, crtc.activePropID, 0)
		}
	}
	if err := cs.commitTo(dev, flags); err != nil {
		dev.logger.Debug("could not deactivate unused crtcs", "error", err)
		return false
	}
	for _, crtc := range dev.crtcs {
		if !usedCrtcs[crtc.ID] {
			crtc.Active = false
		}
	}
	return true
}

// resetConnectorsAndCrtcs clears the in-memory and in-flight-commit state
// of every non-preserved connector and crtc, ahead of a full reassignment.
func resetConnectorsAndCrtcs(dev *Device, cs *changeSet, preserve preserveSet) {
	for _, c := range dev.connectors {
		if preserve.connectors[c.ID] {
			continue
		}
		c.CrtcID, c.PrimaryPlaneID, c.CursorPlaneID = 0, 0, 0
		if c.crtcIDPropID != 0 {
			cs.set(c.ID, c.crtcIDPropID, 0)
		}
	}
	for _, crtc := range dev.crtcs {
		if preserve.crtcs[crtc.ID] {
			continue
		}
		crtc.ConnectorID, crtc.Active, crtc.ModeBlobID = 0, false, 0
		if crtc.activePropID != 0 {
			cs.set(crtc.ID, crtc.activePropID, 0)
		}
		if crtc.modeIDPropID != 0 {
			cs.set(crtc.ID, crtc.modeIDPropID, 0)
		}
		if crtc.outFencePtrPropID != 0 {
			cs.set(crtc.ID, crtc.outFencePtrPropID, 0)
		}
	}
}

// resetPlanes clears every non-preserved plane's crtc/fb assignment.
func resetPlanes(dev *Device, cs *changeSet, preserve preserveSet) {
	for _, p := range dev.planes {
		if preserve.planes[p.ID] {
			continue
		}
		p.CrtcID, p.Assigned = 0, false
		if p.crtcIDPropID != 0 {
			cs.set(p.ID, p.crtcIDPropID, 0)
		}
		if p.fbIDPropID != 0 {
			cs.set(p.ID, p.fbIDPropID, 0)
		}
		if p.inFenceFDPropID != 0 {
			cs.set(p.ID, p.inFenceFDPropID, ^uint64(0)) // -1 as u32 sign-extended, kernel treats as "no fence"
		}
	}
}

// assignConnectorCrtc picks the first unused, unleased crtc (in crtcOrder,
// the kernel's resource order) reachable from this connector's encoder
// possible_crtcs masks, uploads the connector's
// selected mode as a blob, and stages the association.
func assignConnectorCrtc(dev *Device, c *Connector, cs *changeSet) error {
	var crtc *Crtc
	for _, eid := range c.EncoderIDs {
		enc, ok := dev.encoders[eid]
		if !ok {
			continue
		}
		for _, cid := range dev.crtcOrder {
			candidate, ok := dev.crtcs[cid]
			if !ok {
				continue
			}
			if enc.PossibleCrtcs&(1<<candidate.Index) == 0 {
				continue
			}
			if candidate.ConnectorID != 0 || candidate.LeaseID != 0 {
				continue
			}
			crtc = candidate
			break
		}
		if crtc != nil {
			break
		}
	}
	if crtc == nil {
		return &NoCrtcForConnectorError{ConnectorID: c.ID}
	}
	if c.SelectedMode == nil {
		return &NoModeForConnectorError{ConnectorID: c.ID}
	}
	blobID, err := createModeBlob(dev.file, *c.SelectedMode)
	if err != nil {
		return &ModesetError{Cause: err}
	}
	cs.set(c.ID, c.crtcIDPropID, uint64(crtc.ID))
	cs.set(crtc.ID, crtc.activePropID, 1)
	cs.set(crtc.ID, crtc.modeIDPropID, uint64(blobID))

	c.CrtcID = crtc.ID
	crtc.ConnectorID = c.ID
	crtc.Active = true
	crtc.ModeBlobID = blobID
	return nil
}

const (
	fourccXRGB8888 = 0x34325258 // 'XR24'
	fourccARGB8888 = 0x34325241 // 'AR24'

	// modifierLinear is DRM_FORMAT_MOD_LINEAR: the only modifier a
	// CREATE_DUMB-backed scanout buffer (see allocateScanoutBuffer) can
	// ever present as.
	modifierLinear = 0
)

// planeSupportsModifier reports whether pf (one plane's per-format
// supported-modifier list) can scan out modifier. A plane with no
// IN_FORMATS entries at all (an older driver that never advertises
// modifiers) is assumed AddFB2-without-modifier-flag compatible, which
// only ever works for linear; DRM_FORMAT_MOD_INVALID in the list means the
// same thing for a driver that does advertise IN_FORMATS.
func planeSupportsModifier(pf *PlaneFormat, modifier uint64) bool {
	if len(pf.Modifiers) == 0 {
		return modifier == modifierLinear
	}
	for _, m := range pf.Modifiers {
		if m == modifier || m == kmsabi.FormatModifierInvalid {
			return true
		}
	}
	return false
}

// assignConnectorPlanes picks a free primary plane supporting XRGB8888 in a
// modifier the scanout pool's dumb buffers can satisfy and, if available, a
// free cursor plane supporting ARGB8888, acquires a primary scanout buffer
// from the pool and stages the primary plane<->crtc association. The
// cursor plane is only recorded on the connector here; its buffer and
// properties are set by the present engine on a cursor update. A
// connector with a crtc but no
// qualifying primary plane is a hard solver failure, distinguished by
// cause: no candidate plane advertises the format at all
// (MissingDevFormatError), a candidate advertises the format but not a
// modifier the dumb-buffer allocator can produce (MissingDevModifierError),
// or every candidate plane is simply already in use
// (NoPrimaryPlaneForConnectorError). A missing cursor plane only disables
// the hardware cursor fast path.
func assignConnectorPlanes(dev *Device, c *Connector, cs *changeSet) error {
	crtc := dev.crtcs[c.CrtcID]
	if crtc == nil || c.SelectedMode == nil {
		return nil
	}

	var primary *Plane
	var formatSeen, modifierMismatch bool
	for _, pid := range crtc.PossiblePlaneIDs {
		p := dev.planes[pid]
		if p == nil || p.Type != PlanePrimary || p.Assigned || p.LeaseID != 0 {
			continue
		}
		pf, ok := p.Formats[fourccXRGB8888]
		if !ok {
			continue
		}
		formatSeen = true
		if !dev.quirks.NoModifiers && !planeSupportsModifier(pf, modifierLinear) {
			modifierMismatch = true
			continue
		}
		primary = p
		break
	}
	if primary == nil {
		switch {
		case modifierMismatch:
			return &MissingDevModifierError{Format: fourccXRGB8888, Modifier: modifierLinear}
		case !formatSeen:
			return &MissingDevFormatError{Format: fourccXRGB8888}
		default:
			return &NoPrimaryPlaneForConnectorError{ConnectorID: c.ID}
		}
	}

	buf, err := dev.scanout.acquirePrimary(dev, primary, int(c.SelectedMode.Hdisplay), int(c.SelectedMode.Vdisplay))
	if err != nil {
		return err
	}
	cs.set(primary.ID, primary.crtcIDPropID, uint64(crtc.ID))
	cs.set(primary.ID, primary.fbIDPropID, uint64(buf.fbID))
	cs.set(primary.ID, primary.srcXPropID, 0)
	cs.set(primary.ID, primary.srcYPropID, 0)
	cs.set(primary.ID, primary.srcWPropID, uint64(c.SelectedMode.Hdisplay)<<16)
	cs.set(primary.ID, primary.srcHPropID, uint64(c.SelectedMode.Vdisplay)<<16)
	cs.set(primary.ID, primary.crtcWPropID, uint64(c.SelectedMode.Hdisplay))
	cs.set(primary.ID, primary.crtcHPropID, uint64(c.SelectedMode.Vdisplay))
	primary.Assigned, primary.CrtcID = true, crtc.ID
	c.PrimaryPlaneID = primary.ID

	var cursor *Plane
	for _, pid := range crtc.PossiblePlaneIDs {
		p := dev.planes[pid]
		if p == nil || p.Type != PlaneCursor || p.Assigned || p.LeaseID != 0 {
			continue
		}
		if _, ok := p.Formats[fourccARGB8888]; !ok {
			continue
		}
		cursor = p
		break
	}
	if cursor == nil {
		dev.logger.Debug("no cursor plane available", "connector", c.ID)
		return nil
	}
	cursor.Assigned, cursor.CrtcID = true, crtc.ID
	c.CursorPlaneID = cursor.ID
	return nil
}

// noopLogger is used by tests that exercise the solver without a real
// slog handler attached.
func noopLogger() *slog.Logger { return slog.New(slog.NewTextHandler(discard{}, nil)) }

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

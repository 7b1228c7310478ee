package kms

import (
	"os"

	"github.com/outpostlabs/kmscore/internal/edid"
	"github.com/outpostlabs/kmscore/internal/gfxapi"
	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// ConnectorState is the front-end state machine a Connector walks through
// as hot-plug events and lease activity change it.
type ConnectorState int

const (
	StateDisconnected ConnectorState = iota
	StateConnectedDesktop
	StateConnectedNonDesktop
	StateUnavailable
	StateRemoved
)

func (s ConnectorState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnectedDesktop:
		return "Connected(desktop)"
	case StateConnectedNonDesktop:
		return "Connected(non-desktop)"
	case StateUnavailable:
		return "Unavailable"
	case StateRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

// validTransitions enumerates the front-end state machine's allowed edges.
// Anything not listed here is dropped rather than applied (the connector
// keeps its previous state), so a driver quirk producing an unexpected
// status sequence cannot corrupt connector state.
var validTransitions = map[ConnectorState]map[ConnectorState]bool{
	StateDisconnected:       {StateConnectedDesktop: true, StateConnectedNonDesktop: true, StateUnavailable: true, StateRemoved: true},
	StateConnectedDesktop:   {StateDisconnected: true, StateUnavailable: true, StateRemoved: true},
	StateConnectedNonDesktop: {StateDisconnected: true, StateUnavailable: true, StateRemoved: true},
	StateUnavailable:        {StateDisconnected: true, StateRemoved: true},
	StateRemoved:            {},
}

// Connector is one output connection point: a kernel connector object plus
// the front-end state machine and the present engine's per-connector
// bookkeeping.
type Connector struct {
	ID        uint32
	Type      uint32
	TypeIndex uint32
	Subpixel  uint32
	MmWidth   uint32
	MmHeight  uint32

	Modes      []Mode
	EncoderIDs []uint32
	Monitor    edid.Info

	props        *propertyBag
	crtcIDPropID uint32

	State      ConnectorState
	NonDesktop bool

	// Enabled is the compositor's upward-interface kill switch
	// (SetEnabled): the solver and present engine skip a disabled
	// connector exactly as they would a disconnected one.
	// newOrRefreshConnector sets it true on first discovery and carries it
	// forward afterwards, so a connector never touched by SetEnabled
	// behaves as before that operation existed.
	Enabled bool

	// kernelNonDesktop is what the kernel's non-desktop connector property
	// last reported; NonDesktopOverride, when non-nil, replaces it when
	// computing the connector's effective NonDesktop state.
	kernelNonDesktop   bool
	NonDesktopOverride *bool

	// Assignment, populated by the solver.
	CrtcID         uint32
	PrimaryPlaneID uint32
	CursorPlaneID  uint32
	SelectedMode   *Mode

	// LeaseID is nonzero while this connector (and its assigned CRTC and
	// planes) are leased out to a client; the device supervisor skips
	// leased connectors in its own present loop.
	LeaseID uint32

	// present-engine bookkeeping (populated by present.go).
	damaged          bool
	cursorChanged    bool
	canPresent       bool
	cursorEnabled    bool
	cursorSwapBuffer bool
	nextBuffer       int
	cursorFrontBuf   int
	cursorX, cursorY int32
	pendingFlip      bool

	// activeFBID is the primary plane framebuffer id of the last commit
	// this connector saw flip-complete; pendingFBID is staged into an
	// in-flight commit by present() and promoted to activeFBID by
	// handleFlipComplete once that commit lands.
	activeFBID  uint32
	pendingFBID uint32

	// lastFeedback is the PresentFeedback produced by this connector's
	// most recent flip completion, returned by DrmFeedback without
	// requiring a registered sink.
	lastFeedback *PresentFeedback

	// frameOps is the render-pass op list the compositor supplied for the
	// current frame; the present engine consumes it on the next present()
	// call and clears it once committed.
	frameOps   []gfxapi.Op
	frameClear *gfxapi.Color

	// directScanoutCache remembers, per dmabuf id, whether the last probe
	// on that buffer qualified for direct scanout, so an unchanged client
	// buffer doesn't re-walk the op list every frame.
	directScanoutCache map[uint64]directScanoutCacheEntry
}

func kernelStatusToDesired(status uint32, nonDesktop bool) ConnectorState {
	switch status {
	case kmsabi.ConnectionConnected:
		if nonDesktop {
			return StateConnectedNonDesktop
		}
		return StateConnectedDesktop
	case kmsabi.ConnectionDisconnected:
		return StateDisconnected
	default:
		return StateUnavailable
	}
}

// newOrRefreshConnector builds a Connector from a fresh kernel read,
// preserving assignment/lease bookkeeping from the previous instance (if
// any) across a re-enumeration, and applying the state-machine transition
// rule so an invalid jump (e.g. Removed -> Connected) is dropped rather
// than applied.
func newOrRefreshConnector(f *os.File, id uint32, prev *Connector) (*Connector, error) {
	raw, err := enumerateConnectorRaw(f, id)
	if err != nil {
		return nil, err
	}

	kernelNonDesktop := false
	if pid, v, err := raw.props.getBool("non-desktop"); err == nil {
		raw.nonDesktopProp = pid
		kernelNonDesktop = v
	}

	c := &Connector{
		ID: id, Type: raw.Type, TypeIndex: raw.TypeIndex,
		Subpixel: raw.Subpixel, MmWidth: raw.MmWidth, MmHeight: raw.MmHeight,
		Modes: raw.Modes, EncoderIDs: raw.EncoderIDs,
		props: raw.props, crtcIDPropID: raw.crtcIDPropID,
		kernelNonDesktop:   kernelNonDesktop,
		Enabled:            true,
		directScanoutCache: map[uint64]directScanoutCacheEntry{},
	}

	if raw.edidBlobPropID != 0 {
		if _, _, data, err := raw.props.getBlob(f, "EDID"); err == nil && len(data) > 0 {
			if info, err := edid.Parse(data); err == nil {
				c.Monitor = info
			}
		}
	}

	if prev != nil {
		c.NonDesktopOverride = prev.NonDesktopOverride
		c.Enabled = prev.Enabled
	}
	effectiveNonDesktop := kernelNonDesktop
	if c.NonDesktopOverride != nil {
		effectiveNonDesktop = *c.NonDesktopOverride
	}
	c.NonDesktop = effectiveNonDesktop

	desired := kernelStatusToDesired(raw.Status, effectiveNonDesktop)

	if prev == nil {
		c.State = desired
		c.canPresent = true
		return c, nil
	}

	c.CrtcID = prev.CrtcID
	c.PrimaryPlaneID = prev.PrimaryPlaneID
	c.CursorPlaneID = prev.CursorPlaneID
	c.SelectedMode = prev.SelectedMode
	c.LeaseID = prev.LeaseID
	c.directScanoutCache = prev.directScanoutCache
	c.activeFBID = prev.activeFBID
	c.pendingFBID = prev.pendingFBID
	c.lastFeedback = prev.lastFeedback
	c.canPresent = prev.canPresent
	c.damaged = prev.damaged
	c.cursorChanged = prev.cursorChanged
	c.cursorEnabled = prev.cursorEnabled
	c.cursorX, c.cursorY = prev.cursorX, prev.cursorY
	c.nextBuffer = prev.nextBuffer
	c.cursorFrontBuf = prev.cursorFrontBuf
	c.pendingFlip = prev.pendingFlip
	c.frameOps = prev.frameOps
	c.frameClear = prev.frameClear

	if prev.State == desired {
		c.State = prev.State
		return c, nil
	}
	if validTransitions[prev.State][desired] {
		c.State = desired
		return c, nil
	}
	// Not a legal transition (e.g. the kernel briefly reports
	// Disconnected during a hot-unplug race after Removed already fired):
	// keep the previous state and let the next uevent settle it.
	c.State = prev.State
	return c, nil
}

package kms

import (
	"errors"
	"os"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// PlaneType mirrors the kernel's plane "type" enum.
type PlaneType int

const (
	PlaneOverlay PlaneType = iota
	PlanePrimary
	PlaneCursor
)

// PlaneFormat is one entry of a plane's per-format supported-modifier list.
type PlaneFormat struct {
	Format    uint32
	Modifiers []uint64
}

// Crtc is a display controller.
type Crtc struct {
	ID    uint32
	Index uint32 // bit position in plane/encoder possible-crtcs masks
	props *propertyBag

	activePropID      uint32
	modeIDPropID      uint32
	outFencePtrPropID uint32

	ConnectorID uint32 // 0 if none
	Active      bool
	ModeBlobID  uint32
	LeaseID     uint32

	// PossiblePlaneIDs is the set of planes whose possible_crtcs mask
	// includes Index: the set of planes whose compatibility mask
	// includes this CRTC's index.
	PossiblePlaneIDs []uint32
}

// Plane is a composition layer feeding a CRTC.
//
// PossibleCrtcs is widened to uint64 even though the kernel struct field is
// 32 bits today — code must not assume a
// 32-bit mask fits every CRTC index the kernel could ever report.
type Plane struct {
	ID            uint32
	Type          PlaneType
	PossibleCrtcs uint64
	Formats       map[uint32]*PlaneFormat
	props         *propertyBag

	crtcIDPropID    uint32
	crtcXPropID     uint32
	crtcYPropID     uint32
	crtcWPropID     uint32
	crtcHPropID     uint32
	srcXPropID      uint32
	srcYPropID      uint32
	srcWPropID      uint32
	srcHPropID      uint32
	fbIDPropID      uint32
	inFenceFDPropID uint32

	Assigned bool
	CrtcID   uint32
	LeaseID  uint32
	ModeW    uint32
	ModeH    uint32
}

// Encoder is a kernel-internal CRTC<->connector compatibility bridge
// bridge.
type Encoder struct {
	ID            uint32
	PossibleCrtcs uint64
}

// rawConnector is everything enumerateConnectorRaw reads straight from the
// kernel, before newOrRefreshConnector wraps it with the front-end state
// machine (connector.go).
type rawConnector struct {
	ID              uint32
	Type            uint32
	TypeIndex       uint32
	Status          uint32
	Modes           []Mode
	EncoderIDs      []uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	props           *propertyBag
	crtcIDPropID    uint32
	edidBlobPropID  uint32
	nonDesktopProp  uint32
	edidBlobID      uint32
}

func enumeratePlanes(f *os.File) (map[uint32]*Plane, error) {
	ids, err := kmsabi.GetPlaneResources(f)
	if err != nil {
		return nil, &EnumerationError{Kind: "plane", Cause: err}
	}
	out := make(map[uint32]*Plane, len(ids))
	for _, id := range ids {
		raw, formats, err := kmsabi.GetPlane(f, id)
		if err != nil {
			return nil, &EnumerationError{Kind: "plane", Cause: err}
		}
		bag, err := collect(f, id, kmsabi.ObjectPlane)
		if err != nil {
			return nil, &EnumerationError{Kind: "plane", Cause: err}
		}
		p := &Plane{
			ID:            id,
			PossibleCrtcs: uint64(raw.PossibleCrtcs),
			Formats:       make(map[uint32]*PlaneFormat, len(formats)),
			props:         bag,
		}
		for _, fcc := range formats {
			p.Formats[fcc] = &PlaneFormat{Format: fcc}
		}
		if err := fillPlaneModifiers(f, bag, p); err != nil {
			return nil, &EnumerationError{Kind: "plane", Cause: err}
		}
		_, typeName, err := bag.getEnum("type", map[string]uint64{
			"Overlay": kmsabi.PlaneTypeOverlay,
			"Primary": kmsabi.PlaneTypePrimary,
			"Cursor":  kmsabi.PlaneTypeCursor,
		})
		if err != nil {
			var invalid *InvalidEnumValueError
			val := uint64(0)
			if errors.As(err, &invalid) {
				val = invalid.Value
			}
			return nil, &EnumerationError{Kind: "plane", Cause: &UnknownPlaneTypeError{Value: val}}
		}
		switch typeName {
		case "Primary":
			p.Type = PlanePrimary
		case "Cursor":
			p.Type = PlaneCursor
		default:
			p.Type = PlaneOverlay
		}
		if id, err := bag.id("CRTC_ID"); err == nil {
			p.crtcIDPropID = id
		}
		if id, err := bag.id("CRTC_X"); err == nil {
			p.crtcXPropID = id
		}
		if id, err := bag.id("CRTC_Y"); err == nil {
			p.crtcYPropID = id
		}
		if id, err := bag.id("CRTC_W"); err == nil {
			p.crtcWPropID = id
		}
		if id, err := bag.id("CRTC_H"); err == nil {
			p.crtcHPropID = id
		}
		if id, err := bag.id("SRC_X"); err == nil {
			p.srcXPropID = id
		}
		if id, err := bag.id("SRC_Y"); err == nil {
			p.srcYPropID = id
		}
		if id, err := bag.id("SRC_W"); err == nil {
			p.srcWPropID = id
		}
		if id, err := bag.id("SRC_H"); err == nil {
			p.srcHPropID = id
		}
		if id, err := bag.id("FB_ID"); err == nil {
			p.fbIDPropID = id
		}
		if id, err := bag.id("IN_FENCE_FD"); err == nil {
			p.inFenceFDPropID = id
		}
		out[id] = p
	}
	return out, nil
}

// fillPlaneModifiers decodes the IN_FORMATS blob property, which lists
// (format, modifier) pairs beyond the plain format list GetPlane returns.
// Drivers without IN_FORMATS leave every format's modifier list empty,
// which the solver's planeSupportsModifier treats as "linear only".
func fillPlaneModifiers(f *os.File, bag *propertyBag, p *Plane) error {
	_, blobID, data, err := bag.getBlob(f, "IN_FORMATS")
	if err != nil {
		// Not every driver exposes IN_FORMATS; that's not an enumeration
		// failure, just a plane with no modifier info beyond implicit.
		return nil
	}
	if blobID == 0 || len(data) < 8 {
		return nil
	}
	decodeFormatModifierBlob(data, p)
	return nil
}

// decodeFormatModifierBlob parses struct drm_format_modifier_blob: a
// header (version, flags, count_formats, formats_offset, count_modifiers,
// modifiers_offset) followed by a uint32 fourcc array and an array of
// {formats: u64 bitmask, offset: u32, pad: u32, modifier: u64} entries.
func decodeFormatModifierBlob(data []byte, p *Plane) {
	if len(data) < 24 {
		return
	}
	le32 := func(o int) uint32 { return u32(data[o : o+4]) }
	le64 := func(o int) uint64 { return u64(data[o : o+8]) }

	countFormats := le32(8)
	formatsOffset := le32(12)
	countModifiers := le32(16)
	modifiersOffset := le32(20)

	formats := make([]uint32, 0, countFormats)
	for i := uint32(0); i < countFormats; i++ {
		off := int(formatsOffset) + int(i)*4
		if off+4 > len(data) {
			break
		}
		formats = append(formats, le32(off))
	}

	const modEntrySize = 24
	for i := uint32(0); i < countModifiers; i++ {
		off := int(modifiersOffset) + int(i)*modEntrySize
		if off+modEntrySize > len(data) {
			break
		}
		formatsMask := le64(off)
		modifier := le64(off + 16)
		for bit := 0; bit < 64; bit++ {
			if formatsMask&(1<<uint(bit)) == 0 {
				continue
			}
			idx := int(le32(off+8)) + bit // offset field + bit index, per uapi docs
			if idx < 0 || idx >= len(formats) {
				continue
			}
			fcc := formats[idx]
			pf, ok := p.Formats[fcc]
			if !ok {
				pf = &PlaneFormat{Format: fcc}
				p.Formats[fcc] = pf
			}
			pf.Modifiers = append(pf.Modifiers, modifier)
		}
	}
}

func u32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func u64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func enumerateCrtcs(f *os.File, crtcIDs []uint32, planes map[uint32]*Plane) (map[uint32]*Crtc, error) {
	out := make(map[uint32]*Crtc, len(crtcIDs))
	for idx, id := range crtcIDs {
		bag, err := collect(f, id, kmsabi.ObjectCrtc)
		if err != nil {
			return nil, &EnumerationError{Kind: "crtc", Cause: err}
		}
		c := &Crtc{ID: id, Index: uint32(idx), props: bag}
		if pid, err := bag.id("ACTIVE"); err == nil {
			c.activePropID = pid
		}
		if pid, err := bag.id("MODE_ID"); err == nil {
			c.modeIDPropID = pid
		}
		if pid, err := bag.id("OUT_FENCE_PTR"); err == nil {
			c.outFencePtrPropID = pid
		}
		if _, active, err := bag.getBool("ACTIVE"); err == nil {
			c.Active = active
		}
		out[id] = c
	}
	for _, p := range planes {
		for _, c := range out {
			if p.PossibleCrtcs&(1<<c.Index) != 0 {
				c.PossiblePlaneIDs = append(c.PossiblePlaneIDs, p.ID)
			}
		}
	}
	return out, nil
}

func enumerateEncoders(f *os.File, encoderIDs []uint32) (map[uint32]*Encoder, error) {
	out := make(map[uint32]*Encoder, len(encoderIDs))
	for _, id := range encoderIDs {
		e, err := kmsabi.GetEncoder(f, id)
		if err != nil {
			return nil, &EnumerationError{Kind: "encoder", Cause: err}
		}
		out[id] = &Encoder{ID: id, PossibleCrtcs: uint64(e.PossibleCrtcs)}
	}
	return out, nil
}

func enumerateConnectorRaw(f *os.File, id uint32) (rawConnector, error) {
	c, modes, encoderIDs, err := kmsabi.GetConnector(f, id)
	if err != nil {
		return rawConnector{}, &EnumerationError{Kind: "connector", Cause: err}
	}
	bag, err := collect(f, id, kmsabi.ObjectConnector)
	if err != nil {
		return rawConnector{}, &EnumerationError{Kind: "connector", Cause: err}
	}
	rc := rawConnector{
		ID: id, Type: c.ConnectorType, TypeIndex: c.ConnectorTypeID, Status: c.Connection,
		MmWidth: c.MmWidth, MmHeight: c.MmHeight, Subpixel: c.Subpixel,
		EncoderIDs: encoderIDs, props: bag,
	}
	for _, m := range modes {
		rc.Modes = append(rc.Modes, modeFromABI(m))
	}
	if pid, err := bag.id("CRTC_ID"); err == nil {
		rc.crtcIDPropID = pid
	}
	if pid, _, _, err := bag.getBlob(f, "EDID"); err == nil {
		rc.edidBlobPropID = pid
	}
	return rc, nil
}

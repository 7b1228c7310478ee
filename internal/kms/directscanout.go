package kms

import (
	"github.com/outpostlabs/kmscore/internal/gfxapi"
	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// directScanoutPosition is where a directly-scanned-out client buffer
// lands on the plane, in plane-pixel (not normalized) coordinates.
type directScanoutPosition struct {
	SrcWidth, SrcHeight   uint32
	CrtcX, CrtcY          int32
	CrtcWidth, CrtcHeight uint32
}

type directScanoutResult struct {
	FbID     uint32
	Position directScanoutPosition
	Acquire  gfxapi.AcquireSync
}

type directScanoutCacheEntry struct {
	fbID uint32
	ok   bool
}

// probeDirectScanout walks a render pass's op list and decides whether it
// can be presented by pointing the plane straight at the client's dmabuf,
// bypassing composition entirely. This only ever applies to the top-most
// op: anything below it must be provably invisible (either the top op is
// opaque and covers the whole output, or every op under it is a
// screen-covering black fill / the pass clears to black), and the buffer
// itself must be scannable as-is (no alpha blend, no viewport crop, no
// rotation mismatch, no out-of-bounds placement, and — if a hardware
// cursor plane is also active — no scaling, since the plane can't combine
// a scaled primary with an unscaled cursor in the same coordinate space).
func probeDirectScanout(dev *Device, plane *Plane, ops []gfxapi.Op, clear *gfxapi.Color, cursorEnabled bool, cache map[uint64]directScanoutCacheEntry) *directScanoutResult {
	var ct *gfxapi.Op
	i := len(ops) - 1
	for ; i >= 0; i-- {
		switch ops[i].Kind {
		case gfxapi.OpSync:
			continue
		case gfxapi.OpFillRect:
			return nil // top-most visible op must be a texture
		case gfxapi.OpCopyTexture:
			ct = &ops[i]
		}
		break
	}
	if ct == nil {
		return nil
	}
	if ct.Alpha != nil {
		return nil
	}

	topIsOpaqueAndCovering := !ct.Tex.Format().HasAlpha && ct.Target.IsCovering()
	if !topIsOpaqueAndCovering {
		accepted := false
		for j := i - 1; j >= 0; j-- {
			op := ops[j]
			switch op.Kind {
			case gfxapi.OpSync:
				continue
			case gfxapi.OpFillRect:
				if op.Color != gfxapi.SolidBlack {
					return nil
				}
				if op.FillRect.IsCovering() {
					accepted = true
				}
			case gfxapi.OpCopyTexture:
				return nil
			}
			if accepted {
				break
			}
		}
		if !accepted {
			if clear != nil && *clear != gfxapi.SolidBlack {
				return nil
			}
		}
	}

	if ct.Acquire.Kind == gfxapi.AcquireSyncNone {
		return nil
	}
	if ct.BufferTransform != ct.OutputTransform {
		return nil
	}
	if !ct.Source.IsCovering() {
		return nil
	}
	if ct.Target.X1 < -1 || ct.Target.Y1 < -1 || ct.Target.X2 > 1 || ct.Target.Y2 > 1 {
		return nil
	}

	texWi, texHi := ct.Tex.Size()
	texW, texH := uint32(texWi), uint32(texHi)
	planeW, planeH := float32(plane.ModeW), float32(plane.ModeH)
	x1, x2, y1, y2 := ct.OutputTransform.MaybeSwapRect(ct.Target.X1, ct.Target.X2, ct.Target.Y1, ct.Target.Y2)
	crtcX1 := (x1 + 1) * planeW / 2
	crtcX2 := (x2 + 1) * planeW / 2
	crtcY1 := (y1 + 1) * planeH / 2
	crtcY2 := (y2 + 1) * planeH / 2
	crtcW, crtcH := crtcX2-crtcX1, crtcY2-crtcY1
	if crtcW < 0 || crtcH < 0 {
		return nil
	}
	if cursorEnabled && (float32(texW) != crtcW || float32(texH) != crtcH) {
		return nil
	}

	dmabufID, fd, modifier, ok := ct.Tex.Dmabuf()
	if !ok {
		return nil
	}

	if entry, ok := cache[uint64(dmabufID)]; ok {
		if !entry.ok {
			return nil
		}
		return &directScanoutResult{
			FbID: entry.fbID,
			Position: directScanoutPosition{
				SrcWidth: texW, SrcHeight: texH,
				CrtcX: int32(crtcX1), CrtcY: int32(crtcY1),
				CrtcWidth: uint32(crtcW), CrtcHeight: uint32(crtcH),
			},
			Acquire: ct.Acquire,
		}
	}

	format := ct.Tex.Format()
	pf, ok := plane.Formats[format.DRM]
	if !ok && format.Opaque != nil {
		pf, ok = plane.Formats[format.Opaque.DRM]
	}
	if !ok {
		cache[uint64(dmabufID)] = directScanoutCacheEntry{ok: false}
		return nil
	}
	hasModifier := false
	for _, m := range pf.Modifiers {
		if m == modifier {
			hasModifier = true
			break
		}
	}
	if !hasModifier {
		cache[uint64(dmabufID)] = directScanoutCacheEntry{ok: false}
		return nil
	}

	handle, err := kmsabi.PrimeFDToHandle(dev.file, fd)
	if err != nil {
		dev.logger.Debug("direct scanout: import dmabuf", "error", err)
		cache[uint64(dmabufID)] = directScanoutCacheEntry{ok: false}
		return nil
	}
	var handles, pitches, offsets [4]uint32
	var modifiers [4]uint64
	handles[0] = handle
	modifiers[0] = modifier
	fbID, err := kmsabi.AddFB2(dev.file, texW, texH, pf.Format, handles, pitches, offsets, modifiers, modifier != kmsabi.FormatModifierInvalid)
	if err != nil {
		dev.logger.Debug("direct scanout: add fb", "error", err)
		cache[uint64(dmabufID)] = directScanoutCacheEntry{ok: false}
		return nil
	}
	cache[uint64(dmabufID)] = directScanoutCacheEntry{fbID: fbID, ok: true}
	return &directScanoutResult{
		FbID: fbID,
		Position: directScanoutPosition{
			SrcWidth: texW, SrcHeight: texH,
			CrtcX: int32(crtcX1), CrtcY: int32(crtcY1),
			CrtcWidth: uint32(crtcW), CrtcHeight: uint32(crtcH),
		},
		Acquire: ct.Acquire,
	}
}

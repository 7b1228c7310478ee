package kms

import (
	"testing"

	"github.com/outpostlabs/kmscore/internal/gfxapi"
	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

type fakeTexture struct {
	w, h      int
	format    gfxapi.Format
	dmabufID  gfxapi.DmabufID
	fd        int
	modifier  uint64
	isDmabuf  bool
}

func (t *fakeTexture) Size() (int, int)     { return t.w, t.h }
func (t *fakeTexture) Format() gfxapi.Format { return t.format }
func (t *fakeTexture) Dmabuf() (gfxapi.DmabufID, int, uint64, bool) {
	return t.dmabufID, t.fd, t.modifier, t.isDmabuf
}

var xrgb8888 = gfxapi.Format{DRM: fourccXRGB8888, HasAlpha: false}

func fullscreenCopyOp(tex gfxapi.Texture) gfxapi.Op {
	return gfxapi.Op{
		Kind:   gfxapi.OpCopyTexture,
		Tex:    tex,
		Source: gfxapi.Rect{X1: -1, Y1: -1, X2: 1, Y2: 1},
		Target: gfxapi.Rect{X1: -1, Y1: -1, X2: 1, Y2: 1},
		Acquire: gfxapi.AcquireSync{Kind: gfxapi.AcquireSyncImplicit},
	}
}

func planeWithFormat(w, h uint32, format uint32, modifier uint64) *Plane {
	return &Plane{
		ID: 1, Type: PlanePrimary, ModeW: w, ModeH: h,
		Formats: map[uint32]*PlaneFormat{
			format: {Format: format, Modifiers: []uint64{modifier}},
		},
	}
}

func TestProbeDirectScanoutRejectsFillRectOnTop(t *testing.T) {
	tex := &fakeTexture{w: 1920, h: 1080, format: xrgb8888, isDmabuf: true}
	ops := []gfxapi.Op{
		fullscreenCopyOp(tex),
		{Kind: gfxapi.OpFillRect, FillRect: gfxapi.Rect{X1: -1, Y1: -1, X2: 1, Y2: 1}, Color: gfxapi.SolidBlack},
	}
	plane := planeWithFormat(1920, 1080, fourccXRGB8888, kmsabi.FormatModifierInvalid)
	if res := probeDirectScanout(nil, plane, ops, nil, false, map[uint64]directScanoutCacheEntry{}); res != nil {
		t.Fatalf("expected rejection when a FillRect sits on top of the texture, got %+v", res)
	}
}

func TestProbeDirectScanoutRejectsAlphaBlend(t *testing.T) {
	tex := &fakeTexture{w: 1920, h: 1080, format: xrgb8888, isDmabuf: true}
	alpha := float32(0.5)
	op := fullscreenCopyOp(tex)
	op.Alpha = &alpha
	plane := planeWithFormat(1920, 1080, fourccXRGB8888, kmsabi.FormatModifierInvalid)
	if res := probeDirectScanout(nil, plane, []gfxapi.Op{op}, nil, false, map[uint64]directScanoutCacheEntry{}); res != nil {
		t.Fatalf("expected rejection for an alpha-blended top op, got %+v", res)
	}
}

func TestProbeDirectScanoutRejectsTransformMismatch(t *testing.T) {
	tex := &fakeTexture{w: 1920, h: 1080, format: xrgb8888, isDmabuf: true}
	op := fullscreenCopyOp(tex)
	op.OutputTransform = gfxapi.TransformRotate90
	op.BufferTransform = gfxapi.TransformNormal
	plane := planeWithFormat(1920, 1080, fourccXRGB8888, kmsabi.FormatModifierInvalid)
	if res := probeDirectScanout(nil, plane, []gfxapi.Op{op}, nil, false, map[uint64]directScanoutCacheEntry{}); res != nil {
		t.Fatalf("expected rejection on buffer/output transform mismatch, got %+v", res)
	}
}

func TestProbeDirectScanoutRejectsNonCoveringSource(t *testing.T) {
	tex := &fakeTexture{w: 1920, h: 1080, format: xrgb8888, isDmabuf: true}
	op := fullscreenCopyOp(tex)
	op.Source = gfxapi.Rect{X1: -1, Y1: -1, X2: 0.5, Y2: 1} // cropped viewport
	plane := planeWithFormat(1920, 1080, fourccXRGB8888, kmsabi.FormatModifierInvalid)
	if res := probeDirectScanout(nil, plane, []gfxapi.Op{op}, nil, false, map[uint64]directScanoutCacheEntry{}); res != nil {
		t.Fatalf("expected rejection for a non-covering source viewport, got %+v", res)
	}
}

func TestProbeDirectScanoutRejectsCursorScaleMismatch(t *testing.T) {
	tex := &fakeTexture{w: 1920, h: 1080, format: xrgb8888, isDmabuf: true}
	op := fullscreenCopyOp(tex)
	plane := planeWithFormat(1280, 720, fourccXRGB8888, kmsabi.FormatModifierInvalid) // smaller than tex -> implicit scale
	if res := probeDirectScanout(nil, plane, []gfxapi.Op{op}, nil, true, map[uint64]directScanoutCacheEntry{}); res != nil {
		t.Fatalf("expected rejection when a hardware cursor is active and the plane scales the buffer, got %+v", res)
	}
}

func TestProbeDirectScanoutCacheHitSkipsIoctls(t *testing.T) {
	tex := &fakeTexture{w: 1920, h: 1080, format: xrgb8888, isDmabuf: true, dmabufID: 42}
	op := fullscreenCopyOp(tex)
	plane := planeWithFormat(1920, 1080, fourccXRGB8888, kmsabi.FormatModifierInvalid)
	cache := map[uint64]directScanoutCacheEntry{42: {fbID: 7, ok: true}}

	// dev is nil: if the cache hit path tried to dereference dev.file this
	// would panic, proving the cache bypasses the PrimeFDToHandle/AddFB2 path.
	res := probeDirectScanout(nil, plane, []gfxapi.Op{op}, nil, false, cache)
	if res == nil || res.FbID != 7 {
		t.Fatalf("expected cached fb id 7, got %+v", res)
	}
}

func TestProbeDirectScanoutCachedRejectionShortCircuits(t *testing.T) {
	tex := &fakeTexture{w: 1920, h: 1080, format: xrgb8888, isDmabuf: true, dmabufID: 99}
	op := fullscreenCopyOp(tex)
	plane := planeWithFormat(1920, 1080, fourccXRGB8888, kmsabi.FormatModifierInvalid)
	cache := map[uint64]directScanoutCacheEntry{99: {ok: false}}

	if res := probeDirectScanout(nil, plane, []gfxapi.Op{op}, nil, false, cache); res != nil {
		t.Fatalf("expected cached rejection to short-circuit, got %+v", res)
	}
}

func TestProbeDirectScanoutRejectsShmBuffer(t *testing.T) {
	tex := &fakeTexture{w: 1920, h: 1080, format: xrgb8888, isDmabuf: false}
	op := fullscreenCopyOp(tex)
	plane := planeWithFormat(1920, 1080, fourccXRGB8888, kmsabi.FormatModifierInvalid)
	if res := probeDirectScanout(nil, plane, []gfxapi.Op{op}, nil, false, map[uint64]directScanoutCacheEntry{}); res != nil {
		t.Fatalf("expected rejection for a shared-memory-backed buffer, got %+v", res)
	}
}

package kms

import (
	"github.com/outpostlabs/kmscore/internal/gfxapi"
	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// scanoutBuffer is one kernel-backed framebuffer: a dumb buffer (no
// GBM/cgo binding exists for this stack, so buffers are allocated with the
// kernel's own CREATE_DUMB ioctl, same as the raw-ioctl path the reference
// DRM manager uses) plus the AddFB2 framebuffer handle built on top of it.
type scanoutBuffer struct {
	handle uint32
	fbID   uint32
	width  uint32
	height uint32
	pitch  uint32
	format uint32

	// dmabufFD is the PRIME export of this buffer, used to import it into
	// a render context for drawing and, for bridge buffers, into a second
	// device for copy-to-scanout.
	dmabufFD int
	tex      gfxapi.Texture
}

// planeBufferRing is a small fixed-depth pool of buffers dedicated to one
// plane: 2 deep for primary planes (double buffering), 3 deep for cursor
// planes (matching the original backend's buffer counts for each role).
type planeBufferRing struct {
	buffers []*scanoutBuffer
	next    int
}

func (r *planeBufferRing) acquire() *scanoutBuffer {
	b := r.buffers[r.next]
	r.next = (r.next + 1) % len(r.buffers)
	return b
}

// scanoutPool owns every plane's buffer ring for one device.
type scanoutPool struct {
	primary map[uint32]*planeBufferRing
	cursor  map[uint32]*planeBufferRing
}

func newScanoutPool(dev *Device) *scanoutPool {
	return &scanoutPool{primary: map[uint32]*planeBufferRing{}, cursor: map[uint32]*planeBufferRing{}}
}

const (
	primaryRingDepth = 2
	cursorRingDepth  = 3
)

func (s *scanoutPool) acquirePrimary(dev *Device, p *Plane, w, h int) (*scanoutBuffer, error) {
	ring, ok := s.primary[p.ID]
	if !ok || ring.buffers[0].width != uint32(w) || ring.buffers[0].height != uint32(h) {
		var err error
		ring, err = buildRing(dev, p, fourccXRGB8888, w, h, primaryRingDepth)
		if err != nil {
			return nil, err
		}
		s.primary[p.ID] = ring
	}
	return ring.acquire(), nil
}

func (s *scanoutPool) acquireCursor(dev *Device, p *Plane, w, h int) (*scanoutBuffer, error) {
	ring, ok := s.cursor[p.ID]
	if !ok || ring.buffers[0].width != uint32(w) || ring.buffers[0].height != uint32(h) {
		var err error
		ring, err = buildRing(dev, p, fourccARGB8888, w, h, cursorRingDepth)
		if err != nil {
			return nil, err
		}
		s.cursor[p.ID] = ring
	}
	return ring.acquire(), nil
}

func buildRing(dev *Device, p *Plane, format uint32, w, h, depth int) (*planeBufferRing, error) {
	ring := &planeBufferRing{buffers: make([]*scanoutBuffer, 0, depth)}
	for i := 0; i < depth; i++ {
		buf, err := allocateScanoutBuffer(dev, format, w, h)
		if err != nil {
			return nil, err
		}
		ring.buffers = append(ring.buffers, buf)
	}
	return ring, nil
}

// allocateScanoutBuffer creates a 32bpp dumb buffer and wraps it in an
// AddFB2 framebuffer. Dumb buffers are always linear, so a plane whose
// IN_FORMATS table lists only non-default modifiers for this format cannot
// scan it out directly; that mismatch surfaces as MissingDevModifierError
// at the solver layer rather than here (dumb allocation itself cannot
// fail for format reasons, only for mode/memory ones).
func allocateScanoutBuffer(dev *Device, format uint32, w, h int) (*scanoutBuffer, error) {
	created, err := kmsabi.CreateDumb(dev.file, uint32(w), uint32(h), 32)
	if err != nil {
		return nil, &ScanoutBufferError{Cause: err}
	}
	var handles, pitches, offsets [4]uint32
	handles[0], pitches[0] = created.Handle, created.Pitch
	var modifiers [4]uint64
	fbID, err := kmsabi.AddFB2(dev.file, uint32(w), uint32(h), format, handles, pitches, offsets, modifiers, false)
	if err != nil {
		kmsabi.DestroyDumb(dev.file, created.Handle)
		return nil, &FramebufferError{Cause: err}
	}
	fd, err := kmsabi.PrimeHandleToFD(dev.file, created.Handle)
	if err != nil {
		fd = -1
	}
	return &scanoutBuffer{
		handle: created.Handle, fbID: fbID,
		width: uint32(w), height: uint32(h), pitch: created.Pitch, format: format,
		dmabufFD: fd,
	}, nil
}

func releaseScanoutBuffer(dev *Device, b *scanoutBuffer) {
	if b.fbID != 0 {
		_ = kmsabi.RmFB(dev.file, b.fbID)
	}
	if b.handle != 0 {
		_ = kmsabi.DestroyDumb(dev.file, b.handle)
	}
}

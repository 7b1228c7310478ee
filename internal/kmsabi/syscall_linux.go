//go:build linux

package kmsabi

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// OpenCard opens a DRM device node read-write. It does not acquire master;
// callers decide whether they need it (a lease fd, for instance, must not
// call SetMaster).
func OpenCard(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// SetMaster issues DRM_IOCTL_SET_MASTER.
func SetMaster(f *os.File) error {
	if err := ioctl(f.Fd(), IoctlSetMaster, nil); err != nil {
		return fmt.Errorf("DRM_IOCTL_SET_MASTER: %w", err)
	}
	return nil
}

// DropMaster issues DRM_IOCTL_DROP_MASTER.
func DropMaster(f *os.File) error {
	if err := ioctl(f.Fd(), IoctlDropMaster, nil); err != nil {
		return fmt.Errorf("DRM_IOCTL_DROP_MASTER: %w", err)
	}
	return nil
}

// SetClientCap issues DRM_IOCTL_SET_CLIENT_CAP.
func SetClientCap(f *os.File, capability, value uint64) error {
	req := SetClientCap{Capability: capability, Value: value}
	if err := ioctl(f.Fd(), IoctlSetClientCap, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("DRM_IOCTL_SET_CLIENT_CAP(%d): %w", capability, err)
	}
	return nil
}

// GetVersion returns the kernel driver's name, e.g. "amdgpu", "i915",
// "nvidia-drm", "virtio_gpu".
func GetVersion(f *os.File) (name string, err error) {
	var v Version
	if err := ioctl(f.Fd(), IoctlVersion, unsafe.Pointer(&v)); err != nil {
		return "", fmt.Errorf("DRM_IOCTL_VERSION (count): %w", err)
	}
	if v.NameLen == 0 {
		return "", nil
	}
	buf := make([]byte, v.NameLen)
	v.NamePtr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	if err := ioctl(f.Fd(), IoctlVersion, unsafe.Pointer(&v)); err != nil {
		return "", fmt.Errorf("DRM_IOCTL_VERSION (name): %w", err)
	}
	return string(buf), nil
}

// GetResources retrieves CRTC, connector, and encoder ids (two-call
// count-then-fill pattern; every variable-length DRM ioctl uses it).
func GetResources(f *os.File) (crtcIDs, connectorIDs, encoderIDs []uint32, err error) {
	var res ModeCardRes
	if err := ioctl(f.Fd(), IoctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, nil, nil, fmt.Errorf("MODE_GETRESOURCES (count): %w", err)
	}
	if res.CountCrtcs == 0 || res.CountConnectors == 0 {
		return nil, nil, nil, fmt.Errorf("no CRTCs or connectors (crtcs=%d connectors=%d)", res.CountCrtcs, res.CountConnectors)
	}

	crtcIDs = make([]uint32, res.CountCrtcs)
	connectorIDs = make([]uint32, res.CountConnectors)
	encoderIDs = make([]uint32, res.CountEncoders)
	fbIDs := make([]uint32, res.CountFbs)

	res2 := ModeCardRes{
		CrtcIDPtr:       ptr(crtcIDs),
		ConnectorIDPtr:  ptr(connectorIDs),
		CountCrtcs:      res.CountCrtcs,
		CountConnectors: res.CountConnectors,
		CountFbs:        res.CountFbs,
		CountEncoders:   res.CountEncoders,
	}
	if res.CountEncoders > 0 {
		res2.EncoderIDPtr = ptr(encoderIDs)
	}
	if res.CountFbs > 0 {
		res2.FbIDPtr = ptr(fbIDs)
	}
	if err := ioctl(f.Fd(), IoctlModeGetResources, unsafe.Pointer(&res2)); err != nil {
		return nil, nil, nil, fmt.Errorf("MODE_GETRESOURCES (fill): %w", err)
	}
	return crtcIDs, connectorIDs, encoderIDs, nil
}

// GetConnector retrieves a connector's static attributes, mode list, and
// candidate encoders.
func GetConnector(f *os.File, connectorID uint32) (ModeGetConnector, []ModeInfo, []uint32, error) {
	c := ModeGetConnector{ConnectorID: connectorID}
	if err := ioctl(f.Fd(), IoctlModeGetConnector, unsafe.Pointer(&c)); err != nil {
		return ModeGetConnector{}, nil, nil, fmt.Errorf("MODE_GETCONNECTOR(%d) count: %w", connectorID, err)
	}
	modes := make([]ModeInfo, c.CountModes)
	encoders := make([]uint32, c.CountEncoders)
	c2 := ModeGetConnector{
		ConnectorID:   connectorID,
		CountModes:    c.CountModes,
		CountEncoders: c.CountEncoders,
	}
	if len(modes) > 0 {
		c2.ModesPtr = ptr(modes)
	}
	if len(encoders) > 0 {
		c2.EncodersPtr = ptr(encoders)
	}
	if err := ioctl(f.Fd(), IoctlModeGetConnector, unsafe.Pointer(&c2)); err != nil {
		return ModeGetConnector{}, nil, nil, fmt.Errorf("MODE_GETCONNECTOR(%d) fill: %w", connectorID, err)
	}
	return c2, modes, encoders, nil
}

// GetEncoder retrieves an encoder's possible-CRTCs mask.
func GetEncoder(f *os.File, encoderID uint32) (ModeGetEncoder, error) {
	e := ModeGetEncoder{EncoderID: encoderID}
	if err := ioctl(f.Fd(), IoctlModeGetEncoder, unsafe.Pointer(&e)); err != nil {
		return ModeGetEncoder{}, fmt.Errorf("MODE_GETENCODER(%d): %w", encoderID, err)
	}
	return e, nil
}

// GetPlaneResources lists every plane id on the device (requires universal
// planes client cap to include primary/cursor planes, not just overlays).
func GetPlaneResources(f *os.File) ([]uint32, error) {
	var res ModeGetPlaneRes
	if err := ioctl(f.Fd(), IoctlModeGetPlaneResources, unsafe.Pointer(&res)); err != nil {
		return nil, fmt.Errorf("MODE_GETPLANERESOURCES (count): %w", err)
	}
	ids := make([]uint32, res.CountPlanes)
	if len(ids) == 0 {
		return nil, nil
	}
	res2 := ModeGetPlaneRes{PlaneIDPtr: ptr(ids), CountPlanes: res.CountPlanes}
	if err := ioctl(f.Fd(), IoctlModeGetPlaneResources, unsafe.Pointer(&res2)); err != nil {
		return nil, fmt.Errorf("MODE_GETPLANERESOURCES (fill): %w", err)
	}
	return ids, nil
}

// GetPlane retrieves a plane's possible-CRTCs mask and supported pixel
// formats (without modifiers; modifiers come from the IN_FORMATS blob
// property, fetched separately via GetPropBlob).
func GetPlane(f *os.File, planeID uint32) (ModeGetPlane, []uint32, error) {
	p := ModeGetPlane{PlaneID: planeID}
	if err := ioctl(f.Fd(), IoctlModeGetPlane, unsafe.Pointer(&p)); err != nil {
		return ModeGetPlane{}, nil, fmt.Errorf("MODE_GETPLANE(%d) count: %w", planeID, err)
	}
	formats := make([]uint32, p.CountFormatTypes)
	if len(formats) > 0 {
		p2 := p
		p2.FormatTypePtr = ptr(formats)
		if err := ioctl(f.Fd(), IoctlModeGetPlane, unsafe.Pointer(&p2)); err != nil {
			return ModeGetPlane{}, nil, fmt.Errorf("MODE_GETPLANE(%d) fill: %w", planeID, err)
		}
		p = p2
	}
	return p, formats, nil
}

// ObjGetProperties retrieves the (propID, value) pairs attached to any DRM
// mode object (connector, CRTC, plane). This is the kernel-side backing
// for the property bag's collect() operation.
func ObjGetProperties(f *os.File, objID, objType uint32) (propIDs []uint32, values []uint64, err error) {
	req := ModeObjGetProperties{ObjID: objID, ObjType: objType}
	if err := ioctl(f.Fd(), IoctlModeObjGetProperties, unsafe.Pointer(&req)); err != nil {
		return nil, nil, fmt.Errorf("OBJ_GETPROPERTIES(%d) count: %w", objID, err)
	}
	propIDs = make([]uint32, req.CountProps)
	values = make([]uint64, req.CountProps)
	if req.CountProps == 0 {
		return propIDs, values, nil
	}
	req2 := ModeObjGetProperties{
		ObjID: objID, ObjType: objType,
		CountProps:    req.CountProps,
		PropsPtr:      ptr(propIDs),
		PropValuesPtr: ptr(values),
	}
	if err := ioctl(f.Fd(), IoctlModeObjGetProperties, unsafe.Pointer(&req2)); err != nil {
		return nil, nil, fmt.Errorf("OBJ_GETPROPERTIES(%d) fill: %w", objID, err)
	}
	return propIDs, values, nil
}

// PropertyDefinition is a property's name, flags, and — for enum
// properties — its name<->value variant table.
type PropertyDefinition struct {
	ID    uint32
	Name  string
	Flags uint32
	Enums map[string]uint64
}

// GetProperty retrieves a property's definition (name, flags, enum table).
func GetProperty(f *os.File, propID uint32) (PropertyDefinition, error) {
	var p ModeGetProperty
	p.PropID = propID
	if err := ioctl(f.Fd(), IoctlModeGetProperty, unsafe.Pointer(&p)); err != nil {
		return PropertyDefinition{}, fmt.Errorf("MODE_GETPROPERTY(%d) count: %w", propID, err)
	}
	def := PropertyDefinition{ID: propID, Name: cString(p.Name[:]), Flags: p.Flags}
	if p.Flags&PropertyEnum != 0 && p.CountEnumBlobs > 0 {
		enums := make([]ModePropertyEnum, p.CountEnumBlobs)
		p2 := p
		p2.EnumBlobPtr = ptr(enums)
		if err := ioctl(f.Fd(), IoctlModeGetProperty, unsafe.Pointer(&p2)); err != nil {
			return PropertyDefinition{}, fmt.Errorf("MODE_GETPROPERTY(%d) enums: %w", propID, err)
		}
		def.Enums = make(map[string]uint64, len(enums))
		for _, e := range enums {
			def.Enums[cString(e.Name[:])] = e.Value
		}
	}
	return def, nil
}

// GetPropBlob retrieves a blob property's raw bytes (mode blobs, IN_FORMATS
// modifier tables, EDID).
func GetPropBlob(f *os.File, blobID uint32) ([]byte, error) {
	if blobID == 0 {
		return nil, nil
	}
	b := ModeGetBlob{BlobID: blobID}
	if err := ioctl(f.Fd(), IoctlModeGetPropBlob, unsafe.Pointer(&b)); err != nil {
		return nil, fmt.Errorf("MODE_GETPROPBLOB(%d) count: %w", blobID, err)
	}
	if b.Length == 0 {
		return nil, nil
	}
	data := make([]byte, b.Length)
	b2 := ModeGetBlob{BlobID: blobID, Length: b.Length, Data: ptr(data)}
	if err := ioctl(f.Fd(), IoctlModeGetPropBlob, unsafe.Pointer(&b2)); err != nil {
		return nil, fmt.Errorf("MODE_GETPROPBLOB(%d) fill: %w", blobID, err)
	}
	return data, nil
}

// CreatePropBlob uploads a blob (most commonly a drm_mode_modeinfo) and
// returns its kernel blob id.
func CreatePropBlob(f *os.File, data []byte) (uint32, error) {
	req := ModeCreateBlob{Data: ptr(data), Length: uint32(len(data))}
	if err := ioctl(f.Fd(), IoctlModeCreatePropBlob, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("MODE_CREATEPROPBLOB: %w", err)
	}
	return req.BlobID, nil
}

// DestroyPropBlob releases a blob previously created with CreatePropBlob.
func DestroyPropBlob(f *os.File, blobID uint32) error {
	req := ModeDestroyBlob{BlobID: blobID}
	if err := ioctl(f.Fd(), IoctlModeDestroyPropBlob, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("MODE_DESTROYPROPBLOB(%d): %w", blobID, err)
	}
	return nil
}

// AtomicCommit issues DRM_IOCTL_MODE_ATOMIC with parallel objs/count/props/
// values arrays built by the caller (internal/kms's changeset builder).
func AtomicCommit(f *os.File, flags uint32, objs []uint32, propCounts []uint32, propIDs []uint32, propValues []uint64, userData uint64) error {
	req := ModeAtomic{
		Flags:     flags,
		CountObjs: uint32(len(objs)),
		UserData:  userData,
	}
	if len(objs) > 0 {
		req.ObjsPtr = ptr(objs)
		req.CountPropsPtr = ptr(propCounts)
	}
	if len(propIDs) > 0 {
		req.PropsPtr = ptr(propIDs)
		req.PropValuesPtr = ptr(propValues)
	}
	if err := ioctl(f.Fd(), IoctlModeAtomic, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("MODE_ATOMIC: %w", err)
	}
	return nil
}

// CreateDumb allocates a kernel "dumb" (CPU-mappable, linear) buffer used as
// the scanout-pool backing store in the absence of a cgo GBM binding (see
// DESIGN.md — no GBM wrapper exists anywhere in the retrieval pack).
func CreateDumb(f *os.File, width, height, bpp uint32) (ModeCreateDumb, error) {
	req := ModeCreateDumb{Width: width, Height: height, Bpp: bpp}
	if err := ioctl(f.Fd(), IoctlModeCreateDumb, unsafe.Pointer(&req)); err != nil {
		return ModeCreateDumb{}, fmt.Errorf("MODE_CREATE_DUMB: %w", err)
	}
	return req, nil
}

// DestroyDumb releases a dumb buffer handle.
func DestroyDumb(f *os.File, handle uint32) error {
	req := ModeDestroyDumb{Handle: handle}
	if err := ioctl(f.Fd(), IoctlModeDestroyDumb, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("MODE_DESTROY_DUMB(%d): %w", handle, err)
	}
	return nil
}

// AddFB2 wraps a dumb-buffer handle (or an imported prime handle) as a
// scanout-capable framebuffer with an explicit format and modifier.
func AddFB2(f *os.File, width, height, pixelFormat uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64, withModifier bool) (uint32, error) {
	req := ModeFbCmd2{
		Width: width, Height: height, PixelFormat: pixelFormat,
		Handles: handles, Pitches: pitches, Offsets: offsets,
	}
	if withModifier {
		const fbModifierFlag = 1 << 1 // DRM_MODE_FB_MODIFIERS
		req.Flags = fbModifierFlag
		req.Modifier = modifiers
	}
	if err := ioctl(f.Fd(), IoctlModeAddFb2, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("MODE_ADDFB2: %w", err)
	}
	return req.FbID, nil
}

// RmFB destroys a framebuffer id previously created with AddFB2.
func RmFB(f *os.File, fbID uint32) error {
	id := fbID
	if err := ioctl(f.Fd(), IoctlModeRmFb, unsafe.Pointer(&id)); err != nil {
		return fmt.Errorf("MODE_RMFB(%d): %w", fbID, err)
	}
	return nil
}

// PrimeHandleToFD exports a GEM handle as a dmabuf fd (CLOEXEC, read-write).
func PrimeHandleToFD(f *os.File, handle uint32) (int, error) {
	const primeFDFlags = unix.O_CLOEXEC | unix.O_RDWR
	req := PrimeHandle{Handle: handle, Flags: primeFDFlags}
	if err := ioctl(f.Fd(), IoctlPrimeHandleToFD, unsafe.Pointer(&req)); err != nil {
		return -1, fmt.Errorf("PRIME_HANDLE_TO_FD(%d): %w", handle, err)
	}
	return int(req.FD), nil
}

// PrimeFDToHandle imports a dmabuf fd as a GEM handle local to f.
func PrimeFDToHandle(f *os.File, dmaBufFD int) (uint32, error) {
	req := PrimeHandle{FD: int32(dmaBufFD)}
	if err := ioctl(f.Fd(), IoctlPrimeFDToHandle, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("PRIME_FD_TO_HANDLE: %w", err)
	}
	return req.Handle, nil
}

// CreateLease creates a kernel DRM lease over the given object ids. Returns
// the lease fd and the kernel-assigned lessee id.
func CreateLease(f *os.File, objectIDs []uint32) (leaseFD int, lesseeID uint32, err error) {
	if len(objectIDs) == 0 {
		return -1, 0, fmt.Errorf("no object IDs provided")
	}
	req := CreateLease{ObjectIDs: ptr(objectIDs), ObjectCount: uint32(len(objectIDs))}
	if err := ioctl(f.Fd(), IoctlModeCreateLease, unsafe.Pointer(&req)); err != nil {
		return -1, 0, fmt.Errorf("MODE_CREATE_LEASE: %w", err)
	}
	return int(req.FD), req.LesseeID, nil
}

// RevokeLease revokes a lease by lessee id.
func RevokeLease(f *os.File, lesseeID uint32) error {
	req := RevokeLease{LesseeID: lesseeID}
	if err := ioctl(f.Fd(), IoctlModeRevokeLease, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("MODE_REVOKE_LEASE(%d): %w", lesseeID, err)
	}
	return nil
}

func ptr[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

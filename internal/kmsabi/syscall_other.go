//go:build !linux

package kmsabi

import (
	"fmt"
	"os"
)

// Stubs for non-Linux platforms. The DRM/KMS ioctl surface only exists on
// Linux; this package still needs to compile elsewhere so the rest of the
// module (solver math, property-bag parsing, EDID parsing) can be unit
// tested on any host.

var errUnsupported = fmt.Errorf("kmsabi: DRM ioctls are only supported on linux")

func OpenCard(path string) (*os.File, error)                { return nil, errUnsupported }
func SetMaster(f *os.File) error                             { return errUnsupported }
func DropMaster(f *os.File) error                             { return errUnsupported }
func SetClientCap(f *os.File, capability, value uint64) error { return errUnsupported }
func GetVersion(f *os.File) (string, error)                   { return "", errUnsupported }

func GetResources(f *os.File) (crtcIDs, connectorIDs, encoderIDs []uint32, err error) {
	return nil, nil, nil, errUnsupported
}

func GetConnector(f *os.File, connectorID uint32) (ModeGetConnector, []ModeInfo, []uint32, error) {
	return ModeGetConnector{}, nil, nil, errUnsupported
}

func GetEncoder(f *os.File, encoderID uint32) (ModeGetEncoder, error) {
	return ModeGetEncoder{}, errUnsupported
}

func GetPlaneResources(f *os.File) ([]uint32, error) { return nil, errUnsupported }

func GetPlane(f *os.File, planeID uint32) (ModeGetPlane, []uint32, error) {
	return ModeGetPlane{}, nil, errUnsupported
}

func ObjGetProperties(f *os.File, objID, objType uint32) ([]uint32, []uint64, error) {
	return nil, nil, errUnsupported
}

func GetProperty(f *os.File, propID uint32) (PropertyDefinition, error) {
	return PropertyDefinition{}, errUnsupported
}

func GetPropBlob(f *os.File, blobID uint32) ([]byte, error) { return nil, errUnsupported }
func CreatePropBlob(f *os.File, data []byte) (uint32, error) { return 0, errUnsupported }
func DestroyPropBlob(f *os.File, blobID uint32) error         { return errUnsupported }

func AtomicCommit(f *os.File, flags uint32, objs []uint32, propCounts []uint32, propIDs []uint32, propValues []uint64, userData uint64) error {
	return errUnsupported
}

func CreateDumb(f *os.File, width, height, bpp uint32) (ModeCreateDumb, error) {
	return ModeCreateDumb{}, errUnsupported
}
func DestroyDumb(f *os.File, handle uint32) error { return errUnsupported }

func AddFB2(f *os.File, width, height, pixelFormat uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64, withModifier bool) (uint32, error) {
	return 0, errUnsupported
}
func RmFB(f *os.File, fbID uint32) error { return errUnsupported }

func PrimeHandleToFD(f *os.File, handle uint32) (int, error) { return -1, errUnsupported }
func PrimeFDToHandle(f *os.File, dmaBufFD int) (uint32, error) { return 0, errUnsupported }

func CreateLease(f *os.File, objectIDs []uint32) (int, uint32, error) {
	return -1, 0, errUnsupported
}
func RevokeLease(f *os.File, lesseeID uint32) error { return errUnsupported }

package kms

import (
	"encoding/binary"
	"os"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// Mode is a display timing, decoded from a kernel drm_mode_modeinfo.
type Mode struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Name       string
}

func modeFromABI(m kmsabi.ModeInfo) Mode {
	name := string(m.Name[:])
	for i, c := range m.Name {
		if c == 0 {
			name = string(m.Name[:i])
			break
		}
	}
	return Mode{
		Clock: m.Clock, Hdisplay: m.Hdisplay, HsyncStart: m.HsyncStart, HsyncEnd: m.HsyncEnd,
		Htotal: m.Htotal, Hskew: m.Hskew, Vdisplay: m.Vdisplay, VsyncStart: m.VsyncStart,
		VsyncEnd: m.VsyncEnd, Vtotal: m.Vtotal, Vscan: m.Vscan, Vrefresh: m.Vrefresh,
		Flags: m.Flags, Name: name,
	}
}

func (m Mode) toABI() kmsabi.ModeInfo {
	var out kmsabi.ModeInfo
	out.Clock, out.Hdisplay, out.HsyncStart, out.HsyncEnd = m.Clock, m.Hdisplay, m.HsyncStart, m.HsyncEnd
	out.Htotal, out.Hskew, out.Vdisplay, out.VsyncStart = m.Htotal, m.Hskew, m.Vdisplay, m.VsyncStart
	out.VsyncEnd, out.Vtotal, out.Vscan, out.Vrefresh = m.VsyncEnd, m.Vtotal, m.Vscan, m.Vrefresh
	out.Flags = m.Flags
	copy(out.Name[:], m.Name)
	return out
}

// modesEqual compares every timing field
// ("compared field-by-field: clock, h/v totals, porches, skew, flags").
// Name and Vrefresh (a derived, informational field) are deliberately
// excluded — two modes with identical timings but different kernel-
// generated labels are still the same mode.
func modesEqual(a, b Mode) bool {
	return a.Clock == b.Clock &&
		a.Hdisplay == b.Hdisplay && a.HsyncStart == b.HsyncStart && a.HsyncEnd == b.HsyncEnd && a.Htotal == b.Htotal && a.Hskew == b.Hskew &&
		a.Vdisplay == b.Vdisplay && a.VsyncStart == b.VsyncStart && a.VsyncEnd == b.VsyncEnd && a.Vtotal == b.Vtotal && a.Vscan == b.Vscan &&
		a.Flags == b.Flags
}

// createModeBlob uploads m as a DRM mode blob and returns its kernel id.
func createModeBlob(f *os.File, m Mode) (uint32, error) {
	abi := m.toABI()
	buf := make([]byte, 68)
	binary.LittleEndian.PutUint32(buf[0:4], abi.Clock)
	binary.LittleEndian.PutUint16(buf[4:6], abi.Hdisplay)
	binary.LittleEndian.PutUint16(buf[6:8], abi.HsyncStart)
	binary.LittleEndian.PutUint16(buf[8:10], abi.HsyncEnd)
	binary.LittleEndian.PutUint16(buf[10:12], abi.Htotal)
	binary.LittleEndian.PutUint16(buf[12:14], abi.Hskew)
	binary.LittleEndian.PutUint16(buf[14:16], abi.Vdisplay)
	binary.LittleEndian.PutUint16(buf[16:18], abi.VsyncStart)
	binary.LittleEndian.PutUint16(buf[18:20], abi.VsyncEnd)
	binary.LittleEndian.PutUint16(buf[20:22], abi.Vtotal)
	binary.LittleEndian.PutUint16(buf[22:24], abi.Vscan)
	binary.LittleEndian.PutUint32(buf[24:28], abi.Vrefresh)
	binary.LittleEndian.PutUint32(buf[28:32], abi.Flags)
	binary.LittleEndian.PutUint32(buf[32:36], 0) // type, kernel-assigned
	copy(buf[36:68], abi.Name[:])
	return kmsabi.CreatePropBlob(f, buf)
}

// getModeBlob downloads and decodes a previously-created mode blob, used
// by the solver's preserve-set validation to compare the kernel's current
// mode against the connector's desired mode.
func getModeBlob(f *os.File, blobID uint32) (Mode, error) {
	data, err := kmsabi.GetPropBlob(f, blobID)
	if err != nil {
		return Mode{}, err
	}
	if len(data) < 68 {
		return Mode{}, &MissingPropertyError{Name: "mode_id blob too short"}
	}
	var abi kmsabi.ModeInfo
	abi.Clock = binary.LittleEndian.Uint32(data[0:4])
	abi.Hdisplay = binary.LittleEndian.Uint16(data[4:6])
	abi.HsyncStart = binary.LittleEndian.Uint16(data[6:8])
	abi.HsyncEnd = binary.LittleEndian.Uint16(data[8:10])
	abi.Htotal = binary.LittleEndian.Uint16(data[10:12])
	abi.Hskew = binary.LittleEndian.Uint16(data[12:14])
	abi.Vdisplay = binary.LittleEndian.Uint16(data[14:16])
	abi.VsyncStart = binary.LittleEndian.Uint16(data[16:18])
	abi.VsyncEnd = binary.LittleEndian.Uint16(data[18:20])
	abi.Vtotal = binary.LittleEndian.Uint16(data[20:22])
	abi.Vscan = binary.LittleEndian.Uint16(data[22:24])
	abi.Vrefresh = binary.LittleEndian.Uint32(data[24:28])
	abi.Flags = binary.LittleEndian.Uint32(data[28:32])
	copy(abi.Name[:], data[36:68])
	return modeFromABI(abi), nil
}

// Package edid parses the monitor self-description blob the kernel exposes
// as a connector's EDID blob property. Parse failures are
// non-fatal by design — on an error the connector keeps a zero-value Info
// and connector enumeration never fails over a malformed EDID.
package edid

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Info is the subset of EDID fields the compositor core cares about:
// enough to tell monitors apart for a connector's monitor identity and
// nothing else — resolution/timing data comes from the connector's mode
// list (DRM_IOCTL_MODE_GETCONNECTOR), not EDID.
type Info struct {
	Manufacturer string
	Product      string
	Serial       string
}

const (
	baseBlockLen    = 128
	descriptorStart = 54
	descriptorLen   = 18
	descriptorCount = 4

	descTagDisplayName = 0xFC
	descTagSerialStr   = 0xFF
)

// Parse extracts manufacturer/product/serial from a raw EDID base block.
// It never returns an error for a structurally valid-but-sparse EDID;
// fields it cannot find are left blank. It does return an error for a
// blob too short to be an EDID base block at all, so the caller can log
// once instead of silently returning an all-blank Info for garbage input.
func Parse(raw []byte) (Info, error) {
	if len(raw) < baseBlockLen {
		return Info{}, fmt.Errorf("edid: blob too short (%d bytes, want >= %d)", len(raw), baseBlockLen)
	}

	var info Info
	info.Manufacturer = parseManufacturer(raw)
	info.Serial = fmt.Sprintf("%d", binary.LittleEndian.Uint32(raw[12:16]))

	for i := 0; i < descriptorCount; i++ {
		off := descriptorStart + i*descriptorLen
		d := raw[off : off+descriptorLen]
		// A detailed timing descriptor has a nonzero pixel clock in the
		// first two bytes; descriptor-type tags only apply when it's zero.
		if d[0] != 0 || d[1] != 0 {
			continue
		}
		tag := d[3]
		text := descriptorText(d)
		switch tag {
		case descTagDisplayName:
			info.Product = text
		case descTagSerialStr:
			if text != "" {
				info.Serial = text
			}
		}
	}

	return info, nil
}

// descriptorText decodes the free-text payload of a display-descriptor
// (bytes 5..18), which is ASCII padded with 0x0A then 0x20.
func descriptorText(d []byte) string {
	payload := d[5:descriptorLen]
	if nl := indexByte(payload, 0x0A); nl >= 0 {
		payload = payload[:nl]
	}
	return strings.TrimRight(string(payload), " ")
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// parseManufacturer decodes the 3-letter PNP manufacturer id packed into
// bytes 8-9, big-endian, 5 bits per letter biased by 'A'-1.
func parseManufacturer(raw []byte) string {
	v := binary.BigEndian.Uint16(raw[8:10])
	letters := [3]byte{
		byte((v>>10)&0x1f) + 'A' - 1,
		byte((v>>5)&0x1f) + 'A' - 1,
		byte(v&0x1f) + 'A' - 1,
	}
	for _, c := range letters {
		if c < 'A' || c > 'Z' {
			return ""
		}
	}
	return string(letters[:])
}

//go:build linux

package kmsabi

import (
	"encoding/binary"
	"fmt"
	"os"
)

// FlipEvent is a decoded DRM_EVENT_FLIP_COMPLETE record.
type FlipEvent struct {
	CrtcID   uint32
	TvSec    uint32
	TvUsec   uint32
	Sequence uint32
	UserData uint64
}

// ReadEvents performs one blocking read on the device fd and decodes every
// DRM_EVENT_FLIP_COMPLETE record found in it (a single read can contain
// several coalesced events, one per CRTC that flipped this vblank).
// Non-flip events (plain vblank, CRTC sequence) are skipped; this core
// never requests them.
func ReadEvents(f *os.File) ([]FlipEvent, error) {
	buf := make([]byte, 4096)
	n, err := f.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read drm events: %w", err)
	}
	buf = buf[:n]

	var out []FlipEvent
	off := 0
	for off+8 <= len(buf) {
		evType := binary.LittleEndian.Uint32(buf[off:])
		evLen := binary.LittleEndian.Uint32(buf[off+4:])
		if evLen < 8 || off+int(evLen) > len(buf) {
			break
		}
		body := buf[off : off+int(evLen)]
		if evType == EventFlipCompleteType && len(body) >= 32 {
			out = append(out, FlipEvent{
				UserData: binary.LittleEndian.Uint64(body[8:16]),
				TvSec:    binary.LittleEndian.Uint32(body[16:20]),
				TvUsec:   binary.LittleEndian.Uint32(body[20:24]),
				Sequence: binary.LittleEndian.Uint32(body[24:28]),
				CrtcID:   binary.LittleEndian.Uint32(body[28:32]),
			})
		}
		off += int(evLen)
	}
	return out, nil
}

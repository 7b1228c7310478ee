//go:build !linux

package kmsabi

import "os"

type FlipEvent struct {
	CrtcID   uint32
	TvSec    uint32
	TvUsec   uint32
	Sequence uint32
	UserData uint64
}

func ReadEvents(f *os.File) ([]FlipEvent, error) { return nil, errUnsupported }

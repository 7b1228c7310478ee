//go:build linux

package kms

import (
	"os"
	"syscall"
)

func statRdev(fi os.FileInfo) uint64 {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return uint64(st.Rdev)
}

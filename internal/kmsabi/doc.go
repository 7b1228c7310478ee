// Package kmsabi is the raw Linux DRM/KMS kernel ABI: ioctl numbers, wire
// structs, and thin syscall wrappers. Nothing here understands compositor
// policy; internal/kms builds on top of it.
//
// The ioctl encoding follows the standard Linux _IO/_IOR/_IOW/_IOWR
// derivation, reproduced inline:
//
//	_IO(type, nr)          = (type << 8) | nr
//	_IOR(type, nr, size)   = 0x80000000 | (size << 16) | (type << 8) | nr
//	_IOW(type, nr, size)   = 0x40000000 | (size << 16) | (type << 8) | nr
//	_IOWR(type, nr, size)  = 0xC0000000 | (size << 16) | (type << 8) | nr
package kmsabi

//go:build linux

package kmsabi

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// UeventSocket is a NETLINK_KOBJECT_UEVENT socket subscribed to the kernel's
// udev multicast group. No Go library in the retrieval pack wraps kobject
// uevents (vishvananda/netlink targets rtnetlink, not the uevent group), so
// this talks to the kernel directly with golang.org/x/sys/unix, the same
// level the DRM ioctls operate at.
type UeventSocket struct {
	fd int
}

// OpenUeventSocket binds a netlink socket to the kernel uevent multicast
// group (group 1 — "kernel", as opposed to the userspace udev group).
func OpenUeventSocket() (*UeventSocket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_NETLINK, NETLINK_KOBJECT_UEVENT): %w", err)
	}
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1, Pid: 0}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind uevent netlink socket: %w", err)
	}
	return &UeventSocket{fd: fd}, nil
}

func (s *UeventSocket) Fd() int { return s.fd }

func (s *UeventSocket) Close() error { return unix.Close(s.fd) }

// Uevent is a parsed kernel uevent ("add"/"remove"/"change" + key=value
// pairs such as SUBSYSTEM=drm, DEVTYPE=drm_minor).
type Uevent struct {
	Action string
	Vars   map[string]string
}

// Read blocks for the next datagram and parses it. Kernel uevents are
// NUL-separated ASCII records starting with "ACTION@DEVPATH" followed by
// KEY=VALUE pairs.
func (s *UeventSocket) Read() (Uevent, error) {
	buf := make([]byte, 8192)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return Uevent{}, err
	}
	return parseUevent(buf[:n]), nil
}

func parseUevent(raw []byte) Uevent {
	parts := bytes.Split(raw, []byte{0})
	ev := Uevent{Vars: map[string]string{}}
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		s := string(p)
		if i == 0 {
			if at := strings.IndexByte(s, '@'); at >= 0 {
				ev.Action = s[:at]
			} else {
				ev.Action = s
			}
			continue
		}
		if eq := strings.IndexByte(s, '='); eq >= 0 {
			ev.Vars[s[:eq]] = s[eq+1:]
		}
	}
	return ev
}

// IsDRMCardEvent reports whether a uevent comes from the DRM subsystem
// (SUBSYSTEM=drm). DEVTYPE and MINOR are not checked, so render-node
// events match as well.
func IsDRMCardEvent(ev Uevent) bool {
	return ev.Vars["SUBSYSTEM"] == "drm"
}

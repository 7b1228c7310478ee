// Package session talks to systemd-logind over D-Bus to acquire a seat
// session, take control of device nodes the kernel would otherwise require
// root for, and follow VT-switch pause/resume signals.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	loginBus           = "org.freedesktop.login1"
	loginManagerPath   = dbus.ObjectPath("/org/freedesktop/login1")
	loginManagerIface  = "org.freedesktop.login1.Manager"
	loginSessionIface  = "org.freedesktop.login1.Session"
	drmMajor           = 226
)

// EventKind distinguishes the two signals logind sends a session holder.
type EventKind int

const (
	EventPauseDevice EventKind = iota
	EventResumeDevice
)

// Event is a decoded PauseDevice/ResumeDevice signal.
type Event struct {
	Kind  EventKind
	Major uint32
	Minor uint32
	// PauseType is "pause", "force", or "gone" (PauseDevice only). ResumeDevice
	// also carries a fresh fd; decodeSignal does not keep it, so the caller
	// goes on using the fd it already holds.
	PauseType string
}

// Session is a held systemd-logind session, its D-Bus connection, and the
// channel its PauseDevice/ResumeDevice signals are delivered on.
type Session struct {
	conn    *dbus.Conn
	path    dbus.ObjectPath
	logger  *slog.Logger
	signals chan *dbus.Signal
	events  chan Event
}

// Open connects to the system bus, resolves the caller's own session via
// GetSessionByPID, and calls TakeControl on it. Retries the bus connection
// for up to 30s since logind may not be up yet this early in boot.
func Open(ctx context.Context, logger *slog.Logger) (*Session, error) {
	var conn *dbus.Conn
	var err error
	for attempt := 0; attempt < 30; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		conn, err = dbus.ConnectSystemBus()
		if err == nil {
			break
		}
		logger.Debug("system bus not ready", "attempt", attempt+1, "error", err)
		time.Sleep(time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	manager := conn.Object(loginBus, loginManagerPath)
	var sessionPath dbus.ObjectPath
	if err := manager.CallWithContext(ctx, loginManagerIface+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&sessionPath); err != nil {
		conn.Close()
		return nil, fmt.Errorf("GetSessionByPID: %w", err)
	}

	sessionObj := conn.Object(loginBus, sessionPath)
	if err := sessionObj.CallWithContext(ctx, loginSessionIface+".TakeControl", 0, false).Err; err != nil {
		conn.Close()
		return nil, fmt.Errorf("TakeControl: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(sessionPath),
		dbus.WithMatchInterface(loginSessionIface),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to session signals: %w", err)
	}

	s := &Session{
		conn:    conn,
		path:    sessionPath,
		logger:  logger,
		signals: make(chan *dbus.Signal, 16),
		events:  make(chan Event, 16),
	}
	conn.Signal(s.signals)
	go s.translateSignals(ctx)

	logger.Info("logind session acquired", "path", sessionPath)
	return s, nil
}

// Close releases control of the session and closes the bus connection.
func (s *Session) Close() error {
	obj := s.conn.Object(loginBus, s.path)
	_ = obj.Call(loginSessionIface+".ReleaseControl", 0).Err
	return s.conn.Close()
}

// TakeDevice asks logind for a paused-if-inactive fd to the device with the
// given major/minor (the DRM card node's rdev split in two). The returned
// fd is already a dup the caller owns.
func (s *Session) TakeDevice(ctx context.Context, major, minor uint32) (fd int, inactive bool, err error) {
	obj := s.conn.Object(loginBus, s.path)
	var unixFD dbus.UnixFD
	call := obj.CallWithContext(ctx, loginSessionIface+".TakeDevice", 0, major, minor)
	if call.Err != nil {
		return -1, false, fmt.Errorf("TakeDevice(%d,%d): %w", major, minor, call.Err)
	}
	if err := call.Store(&unixFD, &inactive); err != nil {
		return -1, false, fmt.Errorf("decode TakeDevice reply: %w", err)
	}
	return int(unixFD), inactive, nil
}

// ReleaseDevice tells logind this process is done with the device.
func (s *Session) ReleaseDevice(ctx context.Context, major, minor uint32) error {
	obj := s.conn.Object(loginBus, s.path)
	return obj.CallWithContext(ctx, loginSessionIface+".ReleaseDevice", 0, major, minor).Err
}

// Activate requests the seat switch to this session's VT.
func (s *Session) Activate(ctx context.Context) error {
	obj := s.conn.Object(loginBus, s.path)
	return obj.CallWithContext(ctx, loginSessionIface+".Activate", 0).Err
}

// Events returns the channel Pause/ResumeDevice notifications arrive on.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) translateSignals(ctx context.Context) {
	defer close(s.events)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			ev, ok := decodeSignal(sig)
			if !ok {
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func decodeSignal(sig *dbus.Signal) (Event, bool) {
	switch sig.Name {
	case loginSessionIface + ".PauseDevice":
		if len(sig.Body) != 3 {
			return Event{}, false
		}
		major, _ := sig.Body[0].(uint32)
		minor, _ := sig.Body[1].(uint32)
		ptype, _ := sig.Body[2].(string)
		return Event{Kind: EventPauseDevice, Major: major, Minor: minor, PauseType: ptype}, true
	case loginSessionIface + ".ResumeDevice":
		if len(sig.Body) != 3 {
			return Event{}, false
		}
		major, _ := sig.Body[0].(uint32)
		minor, _ := sig.Body[1].(uint32)
		return Event{Kind: EventResumeDevice, Major: major, Minor: minor}, true
	default:
		return Event{}, false
	}
}

// SplitRdev breaks a stat(2) st_rdev value into the major/minor pair logind
// expects, using the same encoding as glibc's major()/minor() macros.
func SplitRdev(rdev uint64) (major, minor uint32) {
	major = uint32((rdev >> 8) & 0xfff) | uint32((rdev>>32)&0xfffff000)
	minor = uint32(rdev&0xff) | uint32((rdev>>12)&0xffffff00)
	return major, minor
}

// IsDRMDevice reports whether major is the kernel's DRM character-device
// major number (used to distinguish PauseDevice/ResumeDevice events worth
// acting on from unrelated device classes logind also manages, e.g. input).
func IsDRMDevice(major uint32) bool { return major == drmMajor }

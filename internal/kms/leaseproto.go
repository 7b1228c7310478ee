package kms

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Wire protocol on the lease broker's Unix socket:
//
// Client -> Server:
//   Request: { cmd uint8, devID uint64, connectorID uint32 }
//     cmd=1: request lease (grant connector+crtc+planes, send lease fd)
//     cmd=2: release lease (lesseeID carried in connectorID field)
//
// Server -> Client:
//   Response: { status uint8, lesseeID uint32, crtcID uint32, errMsg [128]byte }
//     status=0: success, lease fd follows via SCM_RIGHTS
//     status=1: error, errMsg holds a human-readable cause
//
// A granted lease's client connection doubles as a liveness signal: the
// server blocks reading on it after responding, and revokes the lease the
// moment the read returns (client process exited, crashed, or closed it
// deliberately).

const (
	leaseCmdRequest = 1
	leaseCmdRelease = 2
)

type leaseRequestMsg struct {
	Cmd         uint8
	_           [7]byte // pad to 8-byte align DevID
	DevID       uint64
	ConnectorID uint32
}

type leaseResponseMsg struct {
	Status   uint8
	_        [3]byte
	LesseeID uint32
	CrtcID   uint32
	ErrMsg   [128]byte
}

const leaseResponseSize = 1 + 3 + 4 + 4 + 128

// LeaseServer listens on a Unix socket and brokers CreateLease/RevokeLease
// requests on behalf of remote clients (a nested compositor, a VM display
// bridge), serializing every lease operation onto the EventLoop so it never
// races the solver or present engine.
type LeaseServer struct {
	sup        *Supervisor
	loop       *EventLoop
	socketPath string
	logger     *slog.Logger
}

// NewLeaseServer builds a lease broker bound to socketPath, not yet listening.
func NewLeaseServer(sup *Supervisor, loop *EventLoop, socketPath string, logger *slog.Logger) *LeaseServer {
	return &LeaseServer{sup: sup, loop: loop, socketPath: socketPath, logger: logger}
}

// Run listens and serves lease requests until ctx is canceled.
func (s *LeaseServer) Run(ctx context.Context) error {
	if dir := filepath.Dir(s.socketPath); dir != "." && dir != "/" {
		_ = os.MkdirAll(dir, 0o755)
	}
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				s.logger.Error("accept error", "error", err)
				continue
			}
		}
		go s.handleClient(conn)
	}
}

func (s *LeaseServer) handleClient(conn net.Conn) {
	defer conn.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		s.logger.Error("lease connection is not a unix socket")
		return
	}

	var req leaseRequestMsg
	if err := binary.Read(conn, binary.LittleEndian, &req); err != nil {
		s.logger.Error("read lease request", "error", err)
		return
	}

	switch req.Cmd {
	case leaseCmdRequest:
		lesseeID := s.handleRequest(unixConn, req.DevID, req.ConnectorID)
		if lesseeID == 0 {
			return
		}
		buf := make([]byte, 1)
		conn.Read(buf) // liveness: blocks until the client disconnects
		s.logger.Info("lease client disconnected, revoking", "lessee", lesseeID)
		s.loop.Post(func() {
			if dev, ok := s.sup.Device(req.DevID); ok {
				if err := RevokeLease(dev, lesseeID); err != nil {
					s.logger.Error("revoke lease on disconnect", "error", err)
				}
				if err := s.sup.Reconfigure(req.DevID); err != nil {
					s.logger.Error("reconfigure after revoke", "error", err)
				}
			}
		})
	case leaseCmdRelease:
		lesseeID := req.ConnectorID
		s.loop.Post(func() {
			if dev, ok := s.sup.Device(req.DevID); ok {
				if err := RevokeLease(dev, lesseeID); err != nil {
					s.logger.Error("revoke lease", "error", err)
				}
			}
		})
	default:
		s.logger.Error("unknown lease command", "cmd", req.Cmd)
		s.sendError(conn, fmt.Sprintf("unknown command %d", req.Cmd))
	}
}

// handleRequest posts CreateLease onto the event loop, waits for its result,
// and sends the lease fd back via SCM_RIGHTS. Returns 0 on any failure
// (an error response has already been sent to the client in that case).
func (s *LeaseServer) handleRequest(conn *net.UnixConn, devID uint64, connectorID uint32) uint32 {
	type result struct {
		lease *Lease
		err   error
	}
	done := make(chan result, 1)
	s.loop.Post(func() {
		dev, ok := s.sup.Device(devID)
		if !ok {
			done <- result{err: fmt.Errorf("unknown device %d", devID)}
			return
		}
		lease, err := CreateLease(dev, connectorID)
		done <- result{lease: lease, err: err}
	})
	res := <-done
	if res.err != nil {
		s.sendError(conn, res.err.Error())
		return 0
	}
	lease := res.lease

	var respBuf [leaseResponseSize]byte
	respBuf[0] = 0
	binary.LittleEndian.PutUint32(respBuf[4:8], lease.ID)
	binary.LittleEndian.PutUint32(respBuf[8:12], lease.CrtcID)

	rights := unix.UnixRights(lease.FD)
	if _, _, err := conn.WriteMsgUnix(respBuf[:], rights, nil); err != nil {
		s.logger.Error("send lease fd", "error", err)
		unix.Close(lease.FD)
		s.loop.Post(func() {
			if dev, ok := s.sup.Device(devID); ok {
				_ = RevokeLease(dev, lease.ID)
			}
		})
		return 0
	}
	unix.Close(lease.FD) // client now owns its own copy
	s.loop.Post(func() {
		if err := s.sup.Reconfigure(devID); err != nil {
			s.logger.Error("reconfigure after lease grant", "error", err)
		}
	})
	return lease.ID
}

func (s *LeaseServer) sendError(conn net.Conn, msg string) {
	var buf [leaseResponseSize]byte
	buf[0] = 1
	copy(buf[12:], msg)
	conn.Write(buf[:])
}

// LeaseClient dials a LeaseServer's socket to request or release leases; it
// is the counterpart operator tooling (leasectl) uses instead of talking
// the wire protocol by hand.
type LeaseClient struct {
	SocketPath string
}

// GrantedLease is what RequestLease returns on success: the lease fd (the
// caller owns it and must close it) plus a Conn that must be kept open as
// the liveness signal for as long as the lease should remain granted.
type GrantedLease struct {
	LesseeID uint32
	CrtcID   uint32
	FD       int
	Conn     net.Conn
}

// Close releases the lease by closing the liveness connection; the server
// detects the disconnect and revokes the lease automatically.
func (g *GrantedLease) Close() error {
	if g.Conn == nil {
		return nil
	}
	err := g.Conn.Close()
	g.Conn = nil
	return err
}

// RequestLease asks the server to grant connectorID on devID, blocking for
// the response and the lease fd sent back via SCM_RIGHTS.
func (c *LeaseClient) RequestLease(devID uint64, connectorID uint32) (*GrantedLease, error) {
	conn, err := net.Dial("unix", c.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.SocketPath, err)
	}
	unixConn := conn.(*net.UnixConn)

	req := leaseRequestMsg{Cmd: leaseCmdRequest, DevID: devID, ConnectorID: connectorID}
	if err := binary.Write(unixConn, binary.LittleEndian, req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write request: %w", err)
	}

	respBuf := make([]byte, leaseResponseSize)
	oob := make([]byte, unix.CmsgLen(4))
	n, oobn, _, _, err := unixConn.ReadMsgUnix(respBuf, oob)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read response: %w", err)
	}
	if n < leaseResponseSize {
		conn.Close()
		return nil, fmt.Errorf("short response: %d bytes", n)
	}
	if respBuf[0] != 0 {
		msg := string(respBuf[12:])
		if i := indexByte0(respBuf[12:]); i >= 0 {
			msg = string(respBuf[12 : 12+i])
		}
		conn.Close()
		return nil, fmt.Errorf("lease request failed: %s", msg)
	}

	lesseeID := binary.LittleEndian.Uint32(respBuf[4:8])
	crtcID := binary.LittleEndian.Uint32(respBuf[8:12])

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	fd := -1
	for _, scm := range scms {
		fds, err := unix.ParseUnixRights(&scm)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			fd = fds[0]
			for _, extra := range fds[1:] {
				unix.Close(extra)
			}
			break
		}
	}
	if fd < 0 {
		conn.Close()
		return nil, fmt.Errorf("no lease fd received via SCM_RIGHTS")
	}

	return &GrantedLease{LesseeID: lesseeID, CrtcID: crtcID, FD: fd, Conn: conn}, nil
}

// ReleaseLease asks the server to revoke an outstanding lease by its lessee
// id, without holding a liveness connection open.
func (c *LeaseClient) ReleaseLease(devID uint64, lesseeID uint32) error {
	conn, err := net.Dial("unix", c.SocketPath)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.SocketPath, err)
	}
	defer conn.Close()

	req := leaseRequestMsg{Cmd: leaseCmdRelease, DevID: devID, ConnectorID: lesseeID}
	if err := binary.Write(conn, binary.LittleEndian, req); err != nil {
		return fmt.Errorf("write release request: %w", err)
	}
	return nil
}

func indexByte0(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

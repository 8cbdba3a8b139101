// Package udp adapts the teacher's UDP transport implementation to the
// narrower raw-bytes Socket contract of backend/transport: no packet
// envelope, no in/out history buffers (the engine doesn't need replay
// introspection) — just addressed send/recv of framed bytes.
package udp

import (
	"net"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"crdtweave/backend/transport"
)

const bufSize = 65000

// New returns a UDP-backed transport.Transport.
func New() transport.Transport {
	return &UDP{}
}

// UDP implements transport.Transport over net.UDPConn.
type UDP struct{}

// CreateSocket implements transport.Transport.
func (u *UDP) CreateSocket(address string) (transport.ClosableSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, xerrors.Errorf("udp.CreateSocket: resolve: %v", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, xerrors.Errorf("udp.CreateSocket: listen: %v", err)
	}
	return &Socket{conn: conn, addr: conn.LocalAddr().String()}, nil
}

// Socket implements transport.ClosableSocket over a bound UDP connection.
type Socket struct {
	conn *net.UDPConn
	addr string
	mu   sync.Mutex
}

// Close implements transport.ClosableSocket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Send implements transport.Socket.
func (s *Socket) Send(dest string, b []byte, timeout time.Duration) error {
	udpAddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return xerrors.Errorf("udp.Socket.Send: resolve: %v", err)
	}

	if timeout > 0 {
		s.mu.Lock()
		err = s.conn.SetWriteDeadline(time.Now().Add(timeout))
		s.mu.Unlock()
		if err != nil {
			return xerrors.Errorf("udp.Socket.Send: set deadline: %v", err)
		}
	}

	if _, err := s.conn.WriteToUDP(b, udpAddr); err != nil {
		return xerrors.Errorf("udp.Socket.Send: write: %v", err)
	}
	return nil
}

// Recv implements transport.Socket. It returns transport.TimeoutError when
// no message arrives before the deadline.
func (s *Socket) Recv(timeout time.Duration) ([]byte, string, error) {
	buf := make([]byte, bufSize)

	if timeout > 0 {
		s.mu.Lock()
		err := s.conn.SetReadDeadline(time.Now().Add(timeout))
		s.mu.Unlock()
		if err != nil {
			return nil, "", xerrors.Errorf("udp.Socket.Recv: set deadline: %v", err)
		}
	}

	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, "", transport.TimeoutError(timeout)
		}
		return nil, "", xerrors.Errorf("udp.Socket.Recv: read: %v", err)
	}

	out := make([]byte, n)
	copy(out, buf[:n])

	var from string
	if addr != nil {
		from = addr.String()
	}
	return out, from, nil
}

// GetAddress implements transport.Socket.
func (s *Socket) GetAddress() string { return s.addr }

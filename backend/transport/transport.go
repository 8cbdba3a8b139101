// Package transport defines the narrow socket abstraction the sync layer
// sends and receives raw framed bytes over (§4.4). Unlike the teacher's
// original transport, which carried a typed Packet/Header envelope for a
// registry of many message kinds, this engine has exactly one self-
// describing wire format per channel (columnar change bytes, or sync
// message bytes) — so the socket contract is reduced to addressed byte
// slices.
package transport

import (
	"fmt"
	"time"
)

// TimeoutError is returned by Socket.Recv when no message arrives before
// the deadline, mirroring the teacher's transport.TimeoutError.
type TimeoutError time.Duration

func (e TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", time.Duration(e))
}

// Socket is one addressable endpoint capable of sending and receiving
// framed byte messages to/from other peer addresses.
type Socket interface {
	// Send delivers b to dest, blocking at most timeout (0 = no deadline).
	Send(dest string, b []byte, timeout time.Duration) error
	// Recv blocks until a message arrives or timeout elapses, returning the
	// payload and the sender's address.
	Recv(timeout time.Duration) ([]byte, string, error)
	GetAddress() string
}

// ClosableSocket is a Socket that owns an underlying connection.
type ClosableSocket interface {
	Socket
	Close() error
}

// Transport constructs sockets bound to a local address.
type Transport interface {
	CreateSocket(address string) (ClosableSocket, error)
}

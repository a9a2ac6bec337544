// Package transport provides the replica's only I/O: a UDP socket bound
// to an ephemeral local port, with every outbound datagram addressed to
// a fixed simulator endpoint. It is the one component the event loop
// calls into for network access (§6's external interface), and it owns
// the socket exclusively -- nothing else in the process touches it.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// MaxDatagramSize bounds a single read; larger simulator frames would be
// a protocol violation.
const MaxDatagramSize = 65535

// Conn is the network seam the event loop depends on, so tests can swap
// in an in-memory simulator (internal/testutil/simcluster) instead of a
// real socket.
type Conn interface {
	// Send fires a payload at the simulator. Fire-and-forget: there is
	// no acknowledgement and no retry at this layer.
	Send(payload []byte) error
	// Recv waits up to timeout for one inbound datagram. ok is false on
	// a timeout with no error; err is non-nil only for a genuine socket
	// failure.
	Recv(timeout time.Duration) (payload []byte, ok bool, err error)
	Close() error
}

// UDPConn is a Conn backed by a real net.UDPConn, connected to the
// simulator's address so Send/Recv don't need to re-resolve it.
type UDPConn struct {
	conn *net.UDPConn
}

// Dial binds an ephemeral local UDP port and connects it to the
// simulator listening on simPort on localhost. The connect call fixes
// the remote address for every future Write, matching the spec's "every
// outbound datagram is sent to a fixed simulator port".
func Dial(simPort int) (*UDPConn, error) {
	simAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("127.0.0.1:%d", simPort))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, simAddr)
	if err != nil {
		return nil, err
	}
	return &UDPConn{conn: conn}, nil
}

// LocalAddr reports the ephemeral port the OS assigned this replica.
func (c *UDPConn) LocalAddr() string {
	return c.conn.LocalAddr().String()
}

// Send writes payload to the simulator. Errors here are not retried;
// reliability is the replication protocol's job, not the transport's.
func (c *UDPConn) Send(payload []byte) error {
	if len(payload) > MaxDatagramSize {
		return fmt.Errorf("transport: payload of %d bytes exceeds max datagram size", len(payload))
	}
	_, err := c.conn.Write(payload)
	return err
}

// Recv waits up to timeout for one inbound datagram, bounding the event
// loop's worst-case reaction latency to timeouts even with no traffic.
func (c *UDPConn) Recv(timeout time.Duration) ([]byte, bool, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, false, err
	}
	buf := make([]byte, MaxDatagramSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, false, nil
		}
		return nil, false, err
	}
	return buf[:n], true, nil
}

// Close releases the socket.
func (c *UDPConn) Close() error {
	return c.conn.Close()
}

package raft

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danhawkins/raftkv/internal/wire"
)

// fakeConn is an in-memory transport.Conn for unit tests: Send appends
// to a slice the test can inspect, Recv drains a queue the test feeds.
type fakeConn struct {
	mu     sync.Mutex
	sent   []wire.Envelope
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 64), closed: make(chan struct{})}
}

func (f *fakeConn) Send(payload []byte) error {
	env, err := wire.Decode(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Recv(timeout time.Duration) ([]byte, bool, error) {
	select {
	case p := <-f.inbox:
		return p, true, nil
	case <-f.closed:
		return nil, false, errors.New("fakeConn: closed")
	case <-time.After(timeout):
		return nil, false, nil
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) deliver(env wire.Envelope) {
	data, err := wire.Encode(env)
	if err != nil {
		panic(err)
	}
	f.inbox <- data
}

func (f *fakeConn) sentEnvelopes() []wire.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeConn) lastSent() (wire.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return wire.Envelope{}, false
	}
	return f.sent[len(f.sent)-1], true
}

// fakeClock is a manually-advanced clock.Clock for deterministic
// election-timeout and heartbeat-interval tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// newTestReplica builds a Replica with a fake conn/clock and a seeded
// deterministic RNG, for unit tests that drive its handlers directly
// rather than through Run's event loop.
func newTestReplica(self string, peers []string) (*Replica, *fakeConn, *fakeClock) {
	conn := newFakeConn()
	clk := newFakeClock()
	r := New(Options{
		Self:  self,
		Peers: peers,
		Conn:  conn,
		Log:   zap.NewNop().Sugar(),
		Clock: clk,
		Rand:  rand.New(rand.NewSource(1)),
	})
	return r, conn, clk
}

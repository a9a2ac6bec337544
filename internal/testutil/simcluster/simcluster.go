// Package simcluster is an in-process stand-in for the external UDP
// simulator described by the protocol contract: it fans datagrams out
// to every registered replica's inbox by destination id, including the
// broadcast id, without touching a real socket. It exists so the raft
// package's end-to-end scenarios can run as fast, in-process Go tests
// instead of real-network integration tests, the same way the
// teacher's kvraft tests drive many Raft instances against an in-memory
// Persister and direct function calls rather than a live cluster
// (ReshiAdavan/Sentinel kvraft/config_test.go pattern).
package simcluster

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danhawkins/raftkv/internal/raft"
	"github.com/danhawkins/raftkv/internal/wire"
)

// NewMID mints a fresh client message id for a synthetic request, the
// way a real client would generate one per call rather than reusing a
// literal across test cases.
func NewMID() string {
	return uuid.NewString()
}

// NewClientID mints a fresh synthetic client id, distinct from every
// replica id and from every other client in the same test.
func NewClientID() string {
	return "C-" + uuid.NewString()
}

// Network routes encoded envelopes between registered conns by
// destination id, with wire.BroadcastID fanning a message out to every
// conn but the sender.
type Network struct {
	mu    sync.Mutex
	conns map[string]*simConn
}

// NewNetwork returns an empty routing table.
func NewNetwork() *Network {
	return &Network{conns: make(map[string]*simConn)}
}

func (n *Network) register(id string) *simConn {
	c := &simConn{id: id, net: n, inbox: make(chan []byte, 256), closed: make(chan struct{})}
	n.mu.Lock()
	n.conns[id] = c
	n.mu.Unlock()
	return c
}

func (n *Network) route(src string, env wire.Envelope, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.conns[src]; !ok {
		// A severed sender reaches no one.
		return
	}
	if env.Dst == wire.BroadcastID {
		for id, c := range n.conns {
			if id == src {
				continue
			}
			c.deliver(payload)
		}
		return
	}
	if c, ok := n.conns[env.Dst]; ok {
		c.deliver(payload)
	}
}

// Deliver injects a raw client message addressed to dst, for tests that
// play the role of a client talking to the cluster.
func (n *Network) Deliver(dst string, env wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	n.mu.Lock()
	c, ok := n.conns[dst]
	n.mu.Unlock()
	if !ok {
		return errors.New("simcluster: unknown destination " + dst)
	}
	c.deliver(data)
	return nil
}

// Sever removes a replica from routing, simulating a network partition
// or crash: its outbound sends still succeed locally but reach no one,
// and nothing more is delivered to its inbox.
func (n *Network) Sever(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.conns, id)
}

// Rejoin re-registers a previously severed replica's existing conn so
// it can send and receive again.
func (n *Network) Rejoin(id string, c *simConn) {
	n.mu.Lock()
	n.conns[id] = c
	n.mu.Unlock()
}

type simConn struct {
	id     string
	net    *Network
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *simConn) Send(payload []byte) error {
	env, err := wire.Decode(payload)
	if err != nil {
		return err
	}
	c.net.route(c.id, env, payload)
	return nil
}

func (c *simConn) Recv(timeout time.Duration) ([]byte, bool, error) {
	select {
	case p := <-c.inbox:
		return p, true, nil
	case <-c.closed:
		return nil, false, errors.New("simcluster: conn closed")
	case <-time.After(timeout):
		return nil, false, nil
	}
}

func (c *simConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *simConn) deliver(payload []byte) {
	select {
	case c.inbox <- payload:
	default:
		// Inbox full: drop, the same way a real UDP socket would under
		// sustained overload. Replication is not lossless by design.
	}
}

// Cluster is a fixed-membership set of replicas wired together over a
// Network, with no real sockets involved. Replicas run on the real clock
// with time-seeded election timeouts.
type Cluster struct {
	Net      *Network
	Replicas map[string]*raft.Replica

	conns map[string]*simConn
	wg    sync.WaitGroup
}

// New builds a Cluster of len(ids) replicas, each peered with every
// other id.
func New(ids []string) *Cluster {
	net := NewNetwork()
	c := &Cluster{Net: net, Replicas: make(map[string]*raft.Replica, len(ids)), conns: make(map[string]*simConn, len(ids))}
	for _, id := range ids {
		conn := net.register(id)
		c.conns[id] = conn
		peers := make([]string, 0, len(ids)-1)
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		c.Replicas[id] = raft.New(raft.Options{
			Self:  id,
			Peers: peers,
			Conn:  conn,
			Log:   zap.NewNop().Sugar(),
		})
	}
	return c
}

// Run starts every replica's event loop in its own goroutine.
func (c *Cluster) Run() {
	for _, r := range c.Replicas {
		c.wg.Add(1)
		go func(r *raft.Replica) {
			defer c.wg.Done()
			r.Run()
		}(r)
	}
}

// Stop signals every replica to exit and waits for all event loops to
// return.
func (c *Cluster) Stop() {
	for _, r := range c.Replicas {
		r.Stop()
	}
	c.wg.Wait()
}

// Leader polls the cluster until exactly one replica reports itself as
// leader (or timeout elapses), and returns it.
func (c *Cluster) Leader(timeout time.Duration) (*raft.Replica, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var found *raft.Replica
		count := 0
		for _, r := range c.Replicas {
			if r.Role() == raft.Leader {
				found = r
				count++
			}
		}
		if count == 1 {
			return found, true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil, false
}

// Sever removes a replica from the network without stopping its event
// loop, simulating a partition.
func (c *Cluster) Sever(id string) {
	c.Net.Sever(id)
}

// Rejoin restores a previously severed replica's connectivity.
func (c *Cluster) Rejoin(id string) {
	c.Net.Rejoin(id, c.conns[id])
}

// Put sends a put request from a synthetic client id directly to dst
// and returns the reply envelope, or ok=false on timeout.
func (c *Cluster) Put(dst, clientID, mid, key, value string, timeout time.Duration) (wire.Envelope, bool) {
	return c.request(dst, clientID, wire.Put(clientID, dst, mid, key, value), timeout)
}

// Get sends a get request from a synthetic client id directly to dst
// and returns the reply envelope, or ok=false on timeout.
func (c *Cluster) Get(dst, clientID, mid, key string, timeout time.Duration) (wire.Envelope, bool) {
	return c.request(dst, clientID, wire.Get(clientID, dst, mid, key), timeout)
}

func (c *Cluster) request(dst, clientID string, env wire.Envelope, timeout time.Duration) (wire.Envelope, bool) {
	client := c.Net.register(clientID)
	defer func() {
		c.Net.mu.Lock()
		delete(c.Net.conns, clientID)
		c.Net.mu.Unlock()
	}()

	data, err := wire.Encode(env)
	if err != nil {
		return wire.Envelope{}, false
	}
	c.Net.route(clientID, env, data)

	payload, ok, err := client.Recv(timeout)
	if err != nil || !ok {
		return wire.Envelope{}, false
	}
	reply, err := wire.Decode(payload)
	if err != nil {
		return wire.Envelope{}, false
	}
	return reply, true
}

// Package cluster parses the replica's fixed startup configuration:
// the simulator port, this replica's id, and its peers' ids. This is
// the entire external configuration surface (§6's CLI contract) --
// there is no config file and nothing is read from the environment.
package cluster

import (
	"fmt"
	"strconv"

	"github.com/danhawkins/raftkv/internal/wire"
)

// Config is the parsed form of `<program> <port> <id> <peer_id>...`.
type Config struct {
	// SimPort is the simulator's listening port; every outbound
	// datagram this replica sends goes there.
	SimPort int
	// Self is this replica's id.
	Self string
	// Peers lists every other replica id in the cluster, in the order
	// given on the command line.
	Peers []string
}

// Size returns the total cluster size (self plus peers), used to
// compute majority quorum.
func (c Config) Size() int {
	return 1 + len(c.Peers)
}

// Quorum returns the number of replicas (including self) required for
// a majority.
func (c Config) Quorum() int {
	return c.Size()/2 + 1
}

// ParseArgs parses the positional CLI arguments (os.Args[1:]) into a
// Config. It rejects a peer id equal to the broadcast sentinel or to
// Self, both of which would make quorum counting and routing ambiguous.
func ParseArgs(args []string) (Config, error) {
	if len(args) < 3 {
		return Config{}, fmt.Errorf("cluster: usage: <port> <id> <peer_id>...")
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return Config{}, fmt.Errorf("cluster: invalid port %q: %w", args[0], err)
	}
	self := args[1]
	if self == wire.BroadcastID {
		return Config{}, fmt.Errorf("cluster: replica id %q collides with the broadcast sentinel", self)
	}
	peers := append([]string(nil), args[2:]...)
	seen := map[string]bool{self: true}
	for _, p := range peers {
		if p == wire.BroadcastID {
			return Config{}, fmt.Errorf("cluster: peer id %q collides with the broadcast sentinel", p)
		}
		if seen[p] {
			return Config{}, fmt.Errorf("cluster: duplicate replica id %q", p)
		}
		seen[p] = true
	}
	return Config{SimPort: port, Self: self, Peers: peers}, nil
}

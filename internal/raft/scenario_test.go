package raft_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhawkins/raftkv/internal/raft"
	"github.com/danhawkins/raftkv/internal/testutil/linearizability"
	"github.com/danhawkins/raftkv/internal/testutil/simcluster"
	"github.com/danhawkins/raftkv/internal/wire"
)

func fiveNodeIDs() []string {
	return []string{"S1", "S2", "S3", "S4", "S5"}
}

// anyReplica returns an arbitrary cluster member's id, for starting a
// request before a leader is known.
func anyReplica(c *simcluster.Cluster) string {
	for id := range c.Replicas {
		return id
	}
	return ""
}

func TestScenarioBasicWriteThenRead(t *testing.T) {
	c := simcluster.New(fiveNodeIDs())
	c.Run()
	defer c.Stop()

	leader, ok := c.Leader(3 * time.Second)
	require.True(t, ok, "a leader must emerge")

	client := simcluster.NewClientID()
	reply, ok := c.Put(leader.ID(), client, simcluster.NewMID(), "x", "1", 2*time.Second)
	require.True(t, ok)
	require.Equal(t, wire.TypeOK, reply.Type)

	reply, ok = c.Get(leader.ID(), client, simcluster.NewMID(), "x", 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, wire.TypeOK, reply.Type)
	assert.Equal(t, "1", reply.Value)
}

func TestScenarioGetOnMissingKeyReturnsEmptyOK(t *testing.T) {
	c := simcluster.New(fiveNodeIDs())
	c.Run()
	defer c.Stop()

	leader, ok := c.Leader(3 * time.Second)
	require.True(t, ok)

	reply, ok := c.Get(leader.ID(), "C1", "m1", "absent", 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, wire.TypeOK, reply.Type)
	assert.Equal(t, "", reply.Value)
}

func TestScenarioRedirectBeforeLeaderKnown(t *testing.T) {
	c := simcluster.New(fiveNodeIDs())
	c.Run()
	defer c.Stop()

	// Immediately after startup, before the first election resolves,
	// a non-leader redirects toward "FFFF" (or toward the leader once
	// one is elected), and a leader answers directly -- so assert the
	// non-leader-case shape holds whenever a redirect is actually
	// observed, without racing the election clock.
	target := anyReplica(c)
	reply, ok := c.Put(target, "C1", "m1", "x", "1", 3*time.Second)
	require.True(t, ok, "the request must be answered, either directly or with a redirect")
	assert.Contains(t, []string{wire.TypeOK, wire.TypeRedirect}, reply.Type)
	if reply.Type == wire.TypeRedirect {
		assert.Contains(t, append(fiveNodeIDs(), wire.BroadcastID), reply.Leader, "a redirect names a replica or the broadcast sentinel")
	}
}

func TestScenarioLogCatchUpAfterPartition(t *testing.T) {
	c := simcluster.New(fiveNodeIDs())
	c.Run()
	defer c.Stop()

	leader, ok := c.Leader(3 * time.Second)
	require.True(t, ok)

	var lagging string
	for id := range c.Replicas {
		if id != leader.ID() {
			lagging = id
			break
		}
	}
	c.Sever(lagging)

	const n = 20
	for i := 0; i < n; i++ {
		reply, ok := c.Put(leader.ID(), "C1", fmt.Sprintf("m%d", i), fmt.Sprintf("k%d", i), fmt.Sprintf("%d", i), 2*time.Second)
		require.True(t, ok)
		require.Equal(t, wire.TypeOK, reply.Type)
	}

	c.Rejoin(lagging)

	require.Eventually(t, func() bool {
		return len(c.Replicas[lagging].State()) == n
	}, 3*time.Second, 20*time.Millisecond, "rejoined replica must catch up via AppendEntries")

	leaderState := leader.State()
	laggingState := c.Replicas[lagging].State()
	assert.Equal(t, leaderState, laggingState)
}

func TestScenarioLeaderIsolationReelectsWithHigherTerm(t *testing.T) {
	c := simcluster.New(fiveNodeIDs())
	c.Run()
	defer c.Stop()

	leader, ok := c.Leader(3 * time.Second)
	require.True(t, ok)
	oldTerm := leader.CurrentTerm()

	c.Sever(leader.ID())

	require.Eventually(t, func() bool {
		count := 0
		for id, r := range c.Replicas {
			if id == leader.ID() {
				continue
			}
			if r.Role() == raft.Leader && r.CurrentTerm() > oldTerm {
				count++
			}
		}
		return count == 1
	}, 3*time.Second, 20*time.Millisecond, "exactly one survivor must become leader in a higher term")
}

func TestScenarioRepeatedAppendEntriesDeliveryIsIdempotent(t *testing.T) {
	c := simcluster.New(fiveNodeIDs())
	c.Run()
	defer c.Stop()

	leader, ok := c.Leader(3 * time.Second)
	require.True(t, ok)

	reply, ok := c.Put(leader.ID(), "C1", "m1", "x", "1", 2*time.Second)
	require.True(t, ok)
	require.Equal(t, wire.TypeOK, reply.Type)

	require.Eventually(t, func() bool {
		for _, r := range c.Replicas {
			if r.State()["x"] != "1" {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)

	before := make(map[string]map[string]string, len(c.Replicas))
	for id, r := range c.Replicas {
		before[id] = r.State()
	}

	// Let a few more heartbeat/AE rounds pass; replaying the already
	// up-to-date prefix must not perturb applied state.
	time.Sleep(500 * time.Millisecond)

	for id, r := range c.Replicas {
		assert.Equal(t, before[id], r.State())
	}
}

// TestScenarioConcurrentClientsProduceALinearizableHistory drives
// several clients issuing overlapping get/put requests against one key
// and checks the recorded call/return history against the replicated
// map model, covering P4/P5/R1's external observability guarantees
// end to end rather than by inspecting internal replica state.
func TestScenarioConcurrentClientsProduceALinearizableHistory(t *testing.T) {
	c := simcluster.New(fiveNodeIDs())
	c.Run()
	defer c.Stop()

	leader, ok := c.Leader(3 * time.Second)
	require.True(t, ok)

	var (
		mu      sync.Mutex
		history []linearizability.Operation
		clock   int64
	)
	record := func(input linearizability.KvInput, fn func() linearizability.KvOutput) {
		call := atomic.AddInt64(&clock, 1)
		out := fn()
		ret := atomic.AddInt64(&clock, 1)
		mu.Lock()
		history = append(history, linearizability.Operation{Call: call, Input: input, Output: out, Return: ret})
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value := fmt.Sprintf("v%d", i)
			clientID := fmt.Sprintf("C%d", i)
			record(linearizability.KvInput{Op: linearizability.OpPut, Key: "x", Value: value}, func() linearizability.KvOutput {
				c.Put(leader.ID(), clientID, "m-put", "x", value, 2*time.Second)
				return linearizability.KvOutput{}
			})
			record(linearizability.KvInput{Op: linearizability.OpGet, Key: "x"}, func() linearizability.KvOutput {
				reply, _ := c.Get(leader.ID(), clientID, "m-get", "x", 2*time.Second)
				return linearizability.KvOutput{Value: reply.Value}
			})
		}(i)
	}
	wg.Wait()

	assert.True(t, linearizability.CheckOperations(linearizability.KvModel(), history))
}

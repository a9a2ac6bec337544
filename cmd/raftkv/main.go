// Command raftkv runs a single Raft replica of the replicated
// key/value store described by the wire protocol in internal/wire. It
// runs until the process receives SIGTERM and then exits with status 0;
// if the replica's event loop stops on its own (its transport closed),
// it exits with status 1.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/danhawkins/raftkv/internal/cluster"
	"github.com/danhawkins/raftkv/internal/raft"
	"github.com/danhawkins/raftkv/internal/transport"
)

func main() {
	cfg, err := cluster.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: raftkv <simulator-port> <id> <peer-id>...")
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Self)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	conn, err := transport.Dial(cfg.SimPort)
	if err != nil {
		sugar.Fatalw("failed to bind UDP transport", "err", err)
	}
	sugar.Infow("replica starting", "self", cfg.Self, "peers", cfg.Peers, "simPort", cfg.SimPort, "localAddr", conn.LocalAddr())

	replica := raft.New(raft.Options{
		Self:  cfg.Self,
		Peers: cfg.Peers,
		Conn:  conn,
		Log:   sugar,
		Rand:  rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(seedFrom(cfg.Self)))),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		replica.Run()
		close(done)
	}()

	select {
	case <-sigCh:
		sugar.Infow("received SIGTERM, shutting down")
		replica.Stop()
		<-done
		os.Exit(0)
	case <-done:
		// The transport closed on its own (e.g. a test harness tore it
		// down); there is nothing left to serve.
		os.Exit(1)
	}
}

func newLogger(self string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.InitialFields = map[string]interface{}{"replica": self}
	return cfg.Build()
}

// seedFrom derives a small per-replica seed contribution from the
// replica id so that replicas started in the same process tick (and
// thus with colliding time.Now().UnixNano() values in fast test setups)
// still draw independent election timeouts.
func seedFrom(id string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return h
}

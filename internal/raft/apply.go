package raft

import (
	"github.com/pkg/errors"

	"github.com/danhawkins/raftkv/internal/wire"
)

// applyCommitted implements §4.5: advance last_applied toward
// commit_index, mutating the state map and, on the leader,
// acknowledging the client that originated each applied put.
//
// An index out of the log's bounds here is a programming bug, not a
// protocol condition -- invariant I1 guarantees 0 <= last_applied <=
// commit_index <= len(log) at every tick, so this should never fire.
// Per §7 it must be surfaced rather than silently skipped or allowed
// to crash the replica, so it is logged with a stack trace attached by
// pkg/errors and the loop continues.
func (r *Replica) applyCommitted() {
	for r.commitIndex > r.lastApplied {
		next := r.lastApplied + 1
		if next > r.lastLogIndex() {
			r.log.Errorw("apply-path index out of range",
				"err", errors.Errorf("commitIndex=%d lastApplied=%d but log has %d entries", r.commitIndex, r.lastApplied, len(r.entries)))
			return
		}
		entry := r.entries[next]
		r.sm.Put(entry.Key, entry.Value)

		if r.role == Leader {
			r.send(wire.OK(r.id, entry.ClientSrc, r.leaderHint, entry.MID, ""))
		}

		r.lastApplied = next
	}
}

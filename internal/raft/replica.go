package raft

import (
	"github.com/danhawkins/raftkv/internal/clock"
	"github.com/danhawkins/raftkv/internal/wire"
)

// Run is the event loop (§4.1). It never returns on its own; callers
// stop it by closing the transport Conn, which makes the next Recv
// return an error and Run exit. This is the only goroutine that ever
// mutates a Replica's core fields; the one exception is the
// statusMu-guarded snapshot Run republishes each iteration (see
// publishStatus in types.go), which inspect.go's accessors read from
// other goroutines.
func (r *Replica) Run() {
	r.announce()
	for !r.stopped.Load() {
		r.applyCommitted()

		payload, ok, err := r.conn.Recv(clock.PollTimeout)
		if err != nil {
			r.log.Infow("transport closed, stopping event loop", "err", err)
			r.publishStatus()
			return
		}
		if ok {
			env, decodeErr := wire.Decode(payload)
			if decodeErr != nil {
				r.log.Debugw("dropping malformed datagram", "err", decodeErr)
			} else {
				r.dispatch(env)
			}
		}

		switch r.role {
		case Leader:
			r.replicationTick()
			r.advanceCommitIndex()
		default:
			r.checkElectionTimeout()
		}

		r.publishStatus()
	}
}

// Stop marks the loop for exit on its next iteration and releases the
// transport. Safe to call from outside the event loop goroutine only
// after Run has returned, or concurrently with it solely to unblock
// Recv -- Close is the one Conn method safe to call from another
// goroutine.
func (r *Replica) Stop() {
	r.stopped.Store(true)
	_ = r.conn.Close()
}

// announce broadcasts the startup hello required by §3's lifecycle.
func (r *Replica) announce() {
	r.send(wire.Hello(r.id, r.leaderHint))
}

// dispatch routes a decoded message to the current role's handler.
func (r *Replica) dispatch(env wire.Envelope) {
	switch r.role {
	case Follower:
		r.handleAsFollower(env)
	case Candidate:
		r.handleAsCandidate(env)
	case Leader:
		r.handleAsLeader(env)
	}
}

// becomeFollower transitions to the follower role under term, per
// §4.6's transition table. It does not emit the §4.3.5 demotion fail
// messages -- callers demoting an active leader must call demote
// instead.
//
// votedFor is only cleared when term is strictly greater than the
// current term. A candidate stepping down to a same-term leader's
// AppendEntries (§4.4.3, "term >= current_term") already cast its own
// self-vote this term; clearing it here would let a later, stray
// RequestVote for that same term win a second vote, violating the
// one-vote-per-term invariant (I3). Canonical Raft and the teacher's
// own handler (ReshiAdavan/Sentinel raft/raft.go) only reset votedFor
// on the strictly-greater-term branch.
func (r *Replica) becomeFollower(term Term) {
	if term > r.currentTerm {
		r.votedFor = ""
	}
	r.role = Follower
	r.currentTerm = term
	r.resetElectionDeadline()
}

// demote performs the leader->follower transition of §4.3.5: every
// entry past last_applied belongs to a write that may never commit
// under the new term, so its client is told the write failed before
// the role actually changes.
func (r *Replica) demote(term Term) {
	for i := r.lastApplied + 1; i <= r.lastLogIndex(); i++ {
		entry := r.entries[i]
		r.send(wire.Fail(r.id, entry.ClientSrc, wire.BroadcastID, entry.MID))
	}
	r.becomeFollower(term)
}

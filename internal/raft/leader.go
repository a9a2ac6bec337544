package raft

import (
	"time"

	"github.com/danhawkins/raftkv/internal/clock"
	"github.com/danhawkins/raftkv/internal/wire"
)

// becomeLeader implements §4.4.4's promotion: establish per-peer
// replication bookkeeping and immediately assert leadership with an
// empty AppendEntries round, rather than waiting for the next tick.
func (r *Replica) becomeLeader() {
	r.role = Leader
	r.leaderHint = r.id
	r.votedFor = ""

	r.nextIndex = make(map[string]int, len(r.peers))
	r.matchIndex = make(map[string]int, len(r.peers))
	r.lastSentAt = make(map[string]time.Time, len(r.peers))
	for _, p := range r.peers {
		// len(r.entries) is the canonical next_index (lastLogIndex()+1);
		// see §9's note preferring it over the teacher's len(log).
		r.nextIndex[p] = len(r.entries)
		r.matchIndex[p] = 0
	}

	r.replicationTick()
}

// handleAsLeader implements §4.3's leader role handler.
func (r *Replica) handleAsLeader(env wire.Envelope) {
	switch env.Type {
	case wire.TypeGet:
		r.send(wire.OK(r.id, env.Src, r.leaderHint, env.MID, r.sm.Get(env.Key)))
	case wire.TypePut:
		r.entries = append(r.entries, Entry{
			Key: env.Key, Value: env.Value, Term: r.currentTerm,
			MID: env.MID, ClientSrc: env.Src,
		})
	case wire.TypeAEReply:
		r.onAppendEntriesReply(env)
	case wire.TypeRVReply:
		// A stray reply for an election this replica already won; only
		// a higher term is actionable.
		if Term(env.Term) > r.currentTerm {
			r.demote(Term(env.Term))
		}
	case wire.TypeAE:
		if Term(env.Term) > r.currentTerm {
			r.demote(Term(env.Term))
			r.resetElectionDeadline()
			r.onAppendEntries(env)
		}
	case wire.TypeRV:
		if Term(env.Term) > r.currentTerm {
			r.demote(Term(env.Term))
			r.resetElectionDeadline()
			r.onRequestVote(env)
		} else {
			r.onRequestVote(env)
		}
	}
}

// replicationTick implements §4.3.2: for every peer whose 100ms send
// interval has elapsed, ship either a log-catch-up AppendEntries or an
// empty heartbeat.
func (r *Replica) replicationTick() {
	now := r.clk.Now()
	for _, p := range r.peers {
		if last, ok := r.lastSentAt[p]; ok && now.Sub(last) < clock.HeartbeatInterval {
			continue
		}
		r.lastSentAt[p] = now

		next := r.nextIndex[p]
		if r.lastLogIndex() >= next {
			prevLogIndex := next - 1
			entries := make([]wire.Entry, 0, r.lastLogIndex()-next+1)
			for i := next; i <= r.lastLogIndex(); i++ {
				e := r.entries[i]
				entries = append(entries, wire.Entry{Key: e.Key, Value: e.Value, Term: int(e.Term), MID: e.MID, ClientSrc: e.ClientSrc})
			}
			r.send(wire.AppendEntries(r.id, p, r.leaderHint, int(r.currentTerm), prevLogIndex, r.termAt(prevLogIndex), r.commitIndex, entries))
		} else {
			r.send(wire.AppendEntries(r.id, p, r.leaderHint, int(r.currentTerm), -1, -1, r.commitIndex, nil))
		}
	}
}

// onAppendEntriesReply implements §4.3.3.
func (r *Replica) onAppendEntriesReply(env wire.Envelope) {
	if !env.Success && Term(env.Term) > r.currentTerm {
		r.demote(Term(env.Term))
		return
	}
	if !env.Success {
		if r.nextIndex[env.Src] > 1 {
			r.nextIndex[env.Src]--
		}
		return
	}
	r.nextIndex[env.Src] = env.LogIndex + 1
	r.matchIndex[env.Src] = env.LogIndex
}

// advanceCommitIndex implements §4.3.4, with the canonical Raft safety
// rule from §9 enforced: only an entry from the leader's current term
// can be committed by counting replicas directly, matching the
// teacher's own commit loop (ReshiAdavan/Sentinel raft/raft.go,
// sendAppendEntries) which already walks N downward while
// log[N].Term == currentTerm.
func (r *Replica) advanceCommitIndex() {
	for n := r.lastLogIndex(); n > r.commitIndex && r.entries[n].Term == r.currentTerm; n-- {
		count := 1 // self
		for _, p := range r.peers {
			if r.matchIndex[p] >= n {
				count++
			}
		}
		if count >= r.quorum() {
			r.commitIndex = n
			return
		}
	}
}

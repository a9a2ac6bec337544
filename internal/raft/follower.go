package raft

import "github.com/danhawkins/raftkv/internal/wire"

// handleAsFollower implements §4.2: a follower only reacts to
// AppendEntries, RequestVote, and client get/put; everything else is
// ignored.
func (r *Replica) handleAsFollower(env wire.Envelope) {
	switch env.Type {
	case wire.TypeAE:
		if Term(env.Term) > r.currentTerm {
			r.becomeFollower(Term(env.Term))
		}
		r.resetElectionDeadline()
		r.onAppendEntries(env)
	case wire.TypeRV:
		if Term(env.Term) > r.currentTerm {
			r.becomeFollower(Term(env.Term))
		}
		r.resetElectionDeadline()
		r.onRequestVote(env)
	case wire.TypeGet, wire.TypePut:
		r.send(wire.Redirect(r.id, env.Src, r.leaderHint, env.MID))
	}
}

// onAppendEntries is the AE-acceptance procedure shared by the
// follower and candidate roles (§4.3.6).
func (r *Replica) onAppendEntries(env wire.Envelope) {
	if env.Term < int(r.currentTerm) {
		r.send(wire.AppendEntriesReply(r.id, env.Src, r.leaderHint, int(r.currentTerm), false, 0))
		return
	}

	if env.PrevLogIndex >= 1 && (r.lastLogIndex() < env.PrevLogIndex || r.termAt(env.PrevLogIndex) != env.PrevLogTerm) {
		r.send(wire.AppendEntriesReply(r.id, env.Src, r.leaderHint, int(r.currentTerm), false, 0))
		return
	}

	// prevLogIndex < 0 is the heartbeat sentinel meaning "no entries to
	// send this tick" (§4.3.2); it carries no information about the log
	// prefix, so the log is left untouched rather than truncated to a
	// nonsensical position.
	if env.PrevLogIndex >= 0 {
		r.entries = r.entries[:env.PrevLogIndex+1]
		for _, e := range env.Entries {
			r.entries = append(r.entries, Entry{Key: e.Key, Value: e.Value, Term: Term(e.Term), MID: e.MID, ClientSrc: e.ClientSrc})
		}
	}

	if env.LeaderCommit > r.commitIndex {
		r.commitIndex = min(env.LeaderCommit, r.lastLogIndex())
	}

	r.leaderHint = env.Src
	r.send(wire.AppendEntriesReply(r.id, env.Src, r.leaderHint, int(r.currentTerm), true, r.lastLogIndex()))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

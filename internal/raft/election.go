package raft

import "github.com/danhawkins/raftkv/internal/wire"

// checkElectionTimeout runs once per tick for any non-leader role
// (§4.1 step 5). It is the only way a follower or candidate starts or
// restarts an election.
func (r *Replica) checkElectionTimeout() {
	if r.clk.Now().Before(r.electionDeadline) {
		return
	}
	r.startElection()
}

// startElection implements §4.4.1: become a candidate, bump the term,
// vote for self, and broadcast RequestVote to the cluster.
func (r *Replica) startElection() {
	r.role = Candidate
	r.currentTerm++
	r.votedFor = r.id
	r.votesReceived = 1
	r.resetElectionDeadline()

	r.send(wire.RequestVote(r.id, wire.BroadcastID, r.leaderHint, int(r.currentTerm), r.lastLogIndex(), int(r.lastLogTerm())))
}

// isCandidateLogUpToDate implements §4.4.2's "at least as up to date"
// comparison. An empty local log is trivially considered not more
// up-to-date, matching the spec's explicit carve-out.
func (r *Replica) isCandidateLogUpToDate(candidateLastLogTerm Term, candidateLastLogIndex int) bool {
	if r.lastLogIndex() == 0 {
		return true
	}
	ourTerm := r.lastLogTerm()
	if candidateLastLogTerm != ourTerm {
		return candidateLastLogTerm > ourTerm
	}
	return candidateLastLogIndex >= r.lastLogIndex()
}

// onRequestVote implements the vote decision of §4.4.2. It always
// replies with the (possibly just-adopted) current term and the grant
// decision, regardless of role.
func (r *Replica) onRequestVote(env wire.Envelope) {
	if Term(env.Term) < r.currentTerm {
		r.send(wire.RequestVoteReply(r.id, env.Src, r.leaderHint, int(r.currentTerm), false))
		return
	}

	grant := (r.votedFor == "" || r.votedFor == env.Src) &&
		r.isCandidateLogUpToDate(Term(env.PrevLogTerm), env.PrevLogIndex)

	if grant {
		r.votedFor = env.Src
	}
	r.send(wire.RequestVoteReply(r.id, env.Src, r.leaderHint, int(r.currentTerm), grant))
}

// handleAsCandidate implements §4.4.3.
func (r *Replica) handleAsCandidate(env wire.Envelope) {
	switch env.Type {
	case wire.TypeRVReply:
		if Term(env.Term) > r.currentTerm {
			r.becomeFollower(Term(env.Term))
			return
		}
		if env.Success && Term(env.Term) == r.currentTerm {
			r.votesReceived++
			if r.votesReceived >= r.quorum() {
				r.becomeLeader()
			}
		}
	case wire.TypeAE:
		if Term(env.Term) >= r.currentTerm {
			r.becomeFollower(Term(env.Term))
			r.resetElectionDeadline()
			r.onAppendEntries(env)
		}
	case wire.TypeRV:
		if Term(env.Term) > r.currentTerm {
			r.becomeFollower(Term(env.Term))
			r.resetElectionDeadline()
		}
		r.onRequestVote(env)
	case wire.TypeGet, wire.TypePut:
		r.send(wire.Redirect(r.id, env.Src, r.leaderHint, env.MID))
	}
}

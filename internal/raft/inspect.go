package raft

// The methods below expose read-only snapshots of replica state for
// callers outside the event loop -- test harnesses and the simulator's
// status reporting -- mirroring the narrow GetState accessor the
// teacher exposes from its lock-protected Raft (ReshiAdavan/Sentinel
// raft/raft.go, GetState). Run publishes a fresh snapshot under
// statusMu at the end of every loop iteration (see publishStatus in
// types.go); every accessor here takes statusMu.RLock rather than
// reading the live fields the event loop goroutine mutates, so these
// are safe to call concurrently with Run.

// ID returns the replica's own id. id is fixed at construction and
// never written again, so it needs no lock.
func (r *Replica) ID() string { return r.id }

// Role reports the replica's current role as of the last published
// snapshot.
func (r *Replica) Role() Role {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status.role
}

// CurrentTerm reports the replica's current term as of the last
// published snapshot.
func (r *Replica) CurrentTerm() Term {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status.term
}

// LeaderHint reports the replica's best current guess at the leader's
// id as of the last published snapshot.
func (r *Replica) LeaderHint() string {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status.leaderHint
}

// CommitIndex reports the highest log index known to be committed as
// of the last published snapshot.
func (r *Replica) CommitIndex() int {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status.commitIndex
}

// State returns a snapshot of the applied key/value state. The
// returned map is a fresh copy, independent of both the live state
// machine and the cached snapshot the event loop published -- callers
// are free to hold or mutate it.
func (r *Replica) State() map[string]string {
	r.statusMu.RLock()
	src := r.status.state
	r.statusMu.RUnlock()

	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

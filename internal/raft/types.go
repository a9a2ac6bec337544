// Package raft implements the consensus core: a single-threaded,
// event-driven replica that cycles through follower, candidate, and
// leader roles to keep a replicated string->string map consistent
// across a fixed-membership cluster.
//
// The design generalizes the teacher's lock-protected, goroutine-driven
// Raft (ReshiAdavan/Sentinel raft/raft.go) into the strictly
// single-threaded shape this protocol calls for: one goroutine driving
// all state transitions in replica.go, with a single statusMu-guarded
// snapshot (see inspect.go) as the only state a second goroutine is
// ever allowed to read.
package raft

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/danhawkins/raftkv/internal/clock"
	"github.com/danhawkins/raftkv/internal/statemachine"
	"github.com/danhawkins/raftkv/internal/transport"
	"github.com/danhawkins/raftkv/internal/wire"
)

// Term is a monotonically non-decreasing leadership epoch.
type Term int

// Role is the replica's current tagged variant. Role-specific state
// (votesReceived; nextIndex/matchIndex) lives directly on Replica but
// is meaningful only while role holds the matching value -- the spec's
// own §9 note that role is "naturally a sum type" is honored in the
// methods that touch that state, which only ever run while the role
// guard holds.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// Entry is one replicated log entry. Index 0 of a Replica's log is
// always the zero-valued sentinel entry standing in for "no previous
// entry"; Entry itself never appears in the log at that position with
// meaningful fields.
type Entry struct {
	Key       string
	Value     string
	Term      Term
	MID       string
	ClientSrc string
}

// status is the subset of Replica state that inspect.go exposes to
// callers outside the event loop goroutine (test harnesses, the
// simulator's status reporting). The event loop publishes a fresh copy
// under statusMu at the end of every iteration of Run; readers take
// statusMu.RLock rather than touching the live fields directly, the
// same division of labor as the teacher's lock-protected GetState
// (ReshiAdavan/Sentinel raft/raft.go).
type status struct {
	role        Role
	term        Term
	leaderHint  string
	commitIndex int
	state       map[string]string
}

// Replica is one node's full Raft state. Nothing outside the event
// loop goroutine running Run mutates the fields below statusMu after
// New returns it; the statusMu-guarded status snapshot is the only
// part of a Replica meant to be read from another goroutine.
type Replica struct {
	id    string
	peers []string
	log   *zap.SugaredLogger
	conn  transport.Conn
	clk   clock.Clock
	rng   *rand.Rand
	sm    *statemachine.Map

	statusMu sync.RWMutex
	status   status

	// Persistent (conceptually; not required to survive restart here).
	currentTerm Term
	votedFor    string // "" means none
	entries     []Entry

	// Volatile on all replicas.
	commitIndex      int
	lastApplied      int
	role             Role
	leaderHint       string
	electionDeadline time.Time

	// Volatile on leader only.
	nextIndex  map[string]int
	matchIndex map[string]int
	lastSentAt map[string]time.Time

	// Volatile on candidate only.
	votesReceived int

	stopped atomic.Bool
}

// Options configures a new Replica. Conn and logger are required;
// Clock and Rand default to production implementations when nil.
type Options struct {
	Self  string
	Peers []string
	Conn  transport.Conn
	Log   *zap.SugaredLogger
	Clock clock.Clock
	Rand  *rand.Rand
}

// New constructs a Replica starting as a follower in term 0 with an
// empty log, per §3's lifecycle.
func New(opts Options) *Replica {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	r := &Replica{
		id:         opts.Self,
		peers:      append([]string(nil), opts.Peers...),
		log:        opts.Log,
		conn:       opts.Conn,
		clk:        clk,
		rng:        rng,
		sm:         statemachine.New(),
		role:       Follower,
		leaderHint: wire.BroadcastID,
		entries:    []Entry{{}}, // index 0 sentinel
	}
	r.resetElectionDeadline()
	r.publishStatus()
	return r
}

// publishStatus copies the fields inspect.go exposes into the
// statusMu-guarded snapshot. Called only from the event loop goroutine,
// at the end of every Run iteration and once from New before Run
// starts, so a reader never observes a mid-transition mix of fields.
func (r *Replica) publishStatus() {
	state := r.sm.Snapshot()
	r.statusMu.Lock()
	r.status = status{
		role:        r.role,
		term:        r.currentTerm,
		leaderHint:  r.leaderHint,
		commitIndex: r.commitIndex,
		state:       state,
	}
	r.statusMu.Unlock()
}

// clusterSize is the total replica count, self included.
func (r *Replica) clusterSize() int {
	return 1 + len(r.peers)
}

// quorum is the number of replicas (self included) needed for a
// majority, matching §4.3.4's "strict majority of {self} ∪ peers" and
// the teacher's own `> len(rf.peers)/2` majority check.
func (r *Replica) quorum() int {
	return r.clusterSize()/2 + 1
}

// lastLogIndex returns the 1-indexed position of the last entry, 0 if
// the log holds only the sentinel.
func (r *Replica) lastLogIndex() int {
	return len(r.entries) - 1
}

// lastLogTerm returns the term of the last entry, 0 for an empty log
// (the sentinel's term).
func (r *Replica) lastLogTerm() Term {
	return r.entries[r.lastLogIndex()].Term
}

// termAt returns the term of the entry at the given 1-indexed position,
// or -1 for the "no previous entry" sentinel position (index < 1), per
// §4.3.2's documented sentinel convention.
func (r *Replica) termAt(index int) int {
	if index < 1 {
		return -1
	}
	return int(r.entries[index].Term)
}

// resetElectionDeadline redraws a fresh randomized timeout and pushes
// the deadline out from now, per §4.4.1 and the robustness note in §9
// that the timeout should be resampled on every role change to
// follower, not just at startup.
func (r *Replica) resetElectionDeadline() {
	timeout := clock.ElectionTimeout(r.rng)
	r.electionDeadline = r.clk.Now().Add(timeout)
}

// send encodes and fires env at the transport. Send failures are
// logged and otherwise ignored -- fire-and-forget, per §5.
func (r *Replica) send(env wire.Envelope) {
	env.Src = r.id
	if env.Leader == "" {
		env.Leader = r.leaderHint
	}
	data, err := wire.Encode(env)
	if err != nil {
		r.log.Warnw("dropping outbound message that failed to encode", "type", env.Type, "err", err)
		return
	}
	if err := r.conn.Send(data); err != nil {
		r.log.Debugw("send failed", "type", env.Type, "dst", env.Dst, "err", err)
	}
}

// Package wire defines the JSON message envelope exchanged between
// replicas and clients over the UDP transport, and the handful of
// constructors used to build one for each message kind in the protocol.
package wire

// BroadcastID is the reserved destination meaning "all peers"; the
// simulator fans a message addressed to it out to the rest of the
// cluster.
const BroadcastID = "FFFF"

// Message kinds, matching the wire table in the protocol contract.
const (
	TypeHello    = "hello"
	TypeGet      = "get"
	TypePut      = "put"
	TypeOK       = "ok"
	TypeFail     = "fail"
	TypeRedirect = "redirect"
	TypeAE       = "aerpc"
	TypeAEReply  = "aerpcR"
	TypeRV       = "rvrpc"
	TypeRVReply  = "rvrpcR"
)

// Entry is the wire representation of one replicated log entry. It
// marshals as the 5-tuple [key, value, term, MID, client_src] rather
// than a JSON object, per the envelope contract.
type Entry struct {
	Key       string
	Value     string
	Term      int
	MID       string
	ClientSrc string
}

// Envelope is the single message shape used for every message kind.
// Fields not meaningful for a given Type are left at their zero value;
// callers read only the fields their Type defines.
type Envelope struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Leader string `json:"leader"`
	Type   string `json:"type"`

	// get / put / ok / fail / redirect
	MID   string `json:"MID,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`

	// aerpc / rvrpc / aerpcR / rvrpcR
	Term         int     `json:"term"`
	PrevLogIndex int     `json:"pLI"`
	PrevLogTerm  int     `json:"pLT"`
	Entries      []Entry `json:"entries,omitempty"`
	LeaderCommit int     `json:"lC"`
	Success      bool    `json:"r"`
	LogIndex     int     `json:"LI"`
}

// Hello builds a startup announcement broadcast to the rest of the cluster.
func Hello(src, leaderHint string) Envelope {
	return Envelope{Src: src, Dst: BroadcastID, Leader: leaderHint, Type: TypeHello}
}

// OK builds a successful client reply. Value is ignored by the client for puts.
func OK(src, dst, leaderHint, mid, value string) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: leaderHint, Type: TypeOK, MID: mid, Value: value}
}

// Fail builds a client reply indicating the in-flight write was lost, e.g.
// because its replica was demoted before the entry committed.
func Fail(src, dst, leaderHint, mid string) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: leaderHint, Type: TypeFail, MID: mid}
}

// Redirect points a client at the replica's current best guess of the leader.
func Redirect(src, dst, leaderHint, mid string) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: leaderHint, Type: TypeRedirect, MID: mid}
}

// AppendEntries builds a leader->peer replication/heartbeat message.
func AppendEntries(src, dst, leaderHint string, term, prevLogIndex, prevLogTerm, leaderCommit int, entries []Entry) Envelope {
	return Envelope{
		Src: src, Dst: dst, Leader: leaderHint, Type: TypeAE,
		Term: term, PrevLogIndex: prevLogIndex, PrevLogTerm: prevLogTerm,
		LeaderCommit: leaderCommit, Entries: entries,
	}
}

// AppendEntriesReply builds a peer->leader AE acknowledgement.
func AppendEntriesReply(src, dst, leaderHint string, term int, success bool, logIndex int) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: leaderHint, Type: TypeAEReply, Term: term, Success: success, LogIndex: logIndex}
}

// RequestVote builds a candidate->peer vote request.
func RequestVote(src, dst, leaderHint string, term, lastLogIndex, lastLogTerm int) Envelope {
	return Envelope{
		Src: src, Dst: dst, Leader: leaderHint, Type: TypeRV,
		Term: term, PrevLogIndex: lastLogIndex, PrevLogTerm: lastLogTerm,
	}
}

// RequestVoteReply builds a peer->candidate vote decision.
func RequestVoteReply(src, dst, leaderHint string, term int, granted bool) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: leaderHint, Type: TypeRVReply, Term: term, Success: granted}
}

// Get builds a client read request.
func Get(src, dst, mid, key string) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: BroadcastID, Type: TypeGet, MID: mid, Key: key}
}

// Put builds a client write request.
func Put(src, dst, mid, key, value string) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: BroadcastID, Type: TypePut, MID: mid, Key: key, Value: value}
}

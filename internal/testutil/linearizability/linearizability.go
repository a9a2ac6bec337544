// Package linearizability checks whether a recorded history of
// concurrent client calls against a system is consistent with some
// sequential execution of that system's model -- the Wing & Gong /
// Lowe-Herlihy algorithm, applied here to get/put histories collected
// against a replicated map (see models.go).
package linearizability

import (
	"sort"
	"sync/atomic"
	"time"
)

type tag bool

const (
	tagCall   tag = false
	tagReturn tag = true
)

// timelineEvent is one call or return, ordered by wall-clock time.
type timelineEvent struct {
	kind  tag
	value interface{}
	id    uint
	at    int64
}

// operationsToTimeline flattens paired (call, return) Operations into a
// single time-ordered stream of call/return events.
func operationsToTimeline(history []Operation) []timelineEvent {
	events := make([]timelineEvent, 0, 2*len(history))
	for id, op := range history {
		events = append(events,
			timelineEvent{tagCall, op.Input, uint(id), op.Call},
			timelineEvent{tagReturn, op.Output, uint(id), op.Return},
		)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].at < events[j].at })
	return events
}

// reindex collapses a history's Event.Id space down to a dense
// 0..n-1 range, since the checker only needs ids to be unique, not
// whatever the caller originally used.
func reindex(history []Event) []Event {
	out := make([]Event, 0, len(history))
	seen := make(map[uint]uint)
	next := uint(0)
	for _, e := range history {
		id, ok := seen[e.Id]
		if !ok {
			id = next
			seen[e.Id] = id
			next++
		}
		out = append(out, Event{e.Kind, e.Value, id})
	}
	return out
}

// eventsToTimeline converts an already-ordered Event stream (no
// wall-clock times available) into timelineEvents.
func eventsToTimeline(events []Event) []timelineEvent {
	out := make([]timelineEvent, 0, len(events))
	for _, e := range events {
		k := tagCall
		if e.Kind == ReturnEvent {
			k = tagReturn
		}
		out = append(out, timelineEvent{k, e.Value, e.Id, -1})
	}
	return out
}

// link is a node in the doubly-linked working copy of the timeline
// that isLinearizable mutates in place as it tries and backtracks
// candidate linearizations. A call link's match points at its return;
// a return link's match is nil.
type link struct {
	value interface{}
	match *link
	id    uint
	next  *link
	prev  *link
}

// linkBefore splices n into the list just before mark, returning n so
// callers can track the new head.
func linkBefore(n, mark *link) *link {
	if mark != nil {
		before := mark.prev
		mark.prev = n
		n.next = mark
		if before != nil {
			n.prev = before
			before.next = n
		}
	}
	return n
}

func linkLen(head *link) uint {
	var n uint
	for head != nil {
		head = head.next
		n++
	}
	return n
}

// buildLinks turns a flat timeline into the linked structure
// isLinearizable walks, pairing each return back to its call.
func buildLinks(events []timelineEvent) *link {
	var head *link
	pending := make(map[uint]*link)
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.kind == tagCall {
			n := &link{value: e.value, id: e.id, match: pending[e.id]}
			head = linkBefore(n, head)
		} else {
			n := &link{value: e.value, id: e.id}
			pending[e.id] = n
			head = linkBefore(n, head)
		}
	}
	return head
}

// visited records one state reached after linearizing a particular
// subset of calls, so isLinearizable doesn't re-explore a state it has
// already proven reachable.
type visited struct {
	linearized wordSet
	state      interface{}
}

func seen(model Model, cache map[uint64][]visited, v visited) bool {
	for _, c := range cache[v.linearized.hash()] {
		if v.linearized.equal(c.linearized) && model.Equal(v.state, c.state) {
			return true
		}
	}
	return false
}

// frame is a saved choice point on isLinearizable's backtracking stack:
// the call it linearized and the model state just before that call.
type frame struct {
	call  *link
	state interface{}
}

// unlink removes a call and its matching return from the working list,
// as if that call had run to completion already.
func unlink(call *link) {
	call.prev.next = call.next
	call.next.prev = call.prev
	ret := call.match
	ret.prev.next = ret.next
	if ret.next != nil {
		ret.next.prev = ret.prev
	}
}

// relink undoes unlink, restoring call and its return to the list.
func relink(call *link) {
	ret := call.match
	ret.prev.next = ret
	if ret.next != nil {
		ret.next.prev = ret
	}
	call.prev.next = call
	call.next.prev = call
}

// isLinearizable searches for some order of fully-overlapping calls in
// subhistory that the model accepts step by step. It backtracks on a
// dead end and gives up early once *kill is set by a sibling partition
// that has already failed.
func isLinearizable(model Model, subhistory *link, kill *int32) bool {
	n := linkLen(subhistory) / 2
	linearized := newWordSet(n)
	cache := make(map[uint64][]visited)
	var stack []frame

	state := model.Init()
	sentinel := linkBefore(&link{id: ^uint(0)}, subhistory)
	cur := subhistory
	for sentinel.next != nil {
		if atomic.LoadInt32(kill) != 0 {
			return false
		}
		if cur.match != nil {
			ok, next := model.Step(state, cur.value, cur.match.value)
			if !ok {
				cur = cur.next
				continue
			}
			candidate := visited{linearized.clone().set(cur.id), next}
			if seen(model, cache, candidate) {
				cur = cur.next
				continue
			}
			hash := candidate.linearized.hash()
			cache[hash] = append(cache[hash], candidate)
			stack = append(stack, frame{cur, state})
			state = next
			linearized.set(cur.id)
			unlink(cur)
			cur = sentinel.next
		} else {
			if len(stack) == 0 {
				return false
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cur = top.call
			state = top.state
			linearized.clear(cur.id)
			relink(cur)
			cur = cur.next
		}
	}
	return true
}

func withDefaults(model Model) Model {
	if model.Partition == nil {
		model.Partition = NoPartition
	}
	if model.PartitionEvent == nil {
		model.PartitionEvent = NoPartitionEvent
	}
	if model.Equal == nil {
		model.Equal = ShallowEqual
	}
	return model
}

// checkPartitions runs isLinearizable over every partition concurrently
// and reports whether all of them passed. It stops early on the first
// failure, setting kill so the still-running ones give up, and on
// timeout, where it returns the result so far without setting kill.
// timeout == 0 means wait indefinitely.
func checkPartitions(model Model, partitions []*link, timeout time.Duration) bool {
	results := make(chan bool)
	kill := int32(0)
	for _, p := range partitions {
		p := p
		go func() { results <- isLinearizable(model, p, &kill) }()
	}
	var deadline <-chan time.Time
	if timeout > 0 {
		deadline = time.After(timeout)
	}
	ok := true
	for done := 0; done < len(partitions); {
		select {
		case result := <-results:
			ok = ok && result
			done++
			if !ok {
				atomic.StoreInt32(&kill, 1)
				return false
			}
		case <-deadline:
			// Timing out does not prove linearizability; it only means
			// we stopped looking.
			return ok
		}
	}
	return ok
}

// CheckOperations reports whether history is linearizable against model.
func CheckOperations(model Model, history []Operation) bool {
	return CheckOperationsTimeout(model, history, 0)
}

// CheckOperationsTimeout is CheckOperations bounded by timeout.
func CheckOperationsTimeout(model Model, history []Operation, timeout time.Duration) bool {
	model = withDefaults(model)
	var links []*link
	for _, part := range model.Partition(history) {
		links = append(links, buildLinks(operationsToTimeline(part)))
	}
	return checkPartitions(model, links, timeout)
}

// CheckEvents reports whether a call/return event stream is
// linearizable against model.
func CheckEvents(model Model, history []Event) bool {
	return CheckEventsTimeout(model, history, 0)
}

// CheckEventsTimeout is CheckEvents bounded by timeout.
func CheckEventsTimeout(model Model, history []Event, timeout time.Duration) bool {
	model = withDefaults(model)
	var links []*link
	for _, part := range model.PartitionEvent(history) {
		links = append(links, buildLinks(eventsToTimeline(reindex(part))))
	}
	return checkPartitions(model, links, timeout)
}

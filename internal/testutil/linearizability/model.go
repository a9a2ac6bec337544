package linearizability

// Operation is one client call against the replicated map, recorded
// with its wall-clock call/return bracket so the checker can consider
// any interleaving consistent with real time.
type Operation struct {
	Input  interface{}
	Call   int64
	Output interface{}
	Return int64
}

// EventKind distinguishes a call from a return in an Event stream.
type EventKind bool

const (
	CallEvent   EventKind = false
	ReturnEvent EventKind = true
)

// Event is the call/return-stream alternative to Operation, for a
// caller that only has a flat log of call/return markers rather than
// pre-paired operations.
type Event struct {
	Kind  EventKind
	Value interface{}
	Id    uint
}

// Model is what CheckOperations/CheckEvents checks a history against:
// a sequential specification of the system under test, expressed as a
// state, a step function, and (optionally) a way to split the history
// into independently-checkable partitions.
type Model struct {
	// Partition/PartitionEvent split a history into parts that can be
	// checked independently -- e.g. by key, since operations on
	// different keys never constrain each other. Nil means "one
	// partition holding everything."
	Partition      func(history []Operation) [][]Operation
	PartitionEvent func(history []Event) [][]Event

	// Init returns the model's initial state.
	Init func() interface{}

	// Step reports whether applying input to state could have produced
	// output, and if so the resulting state. Must not mutate state.
	Step func(state interface{}, input interface{}, output interface{}) (bool, interface{})

	// Equal compares two model states. Defaults to ShallowEqual.
	Equal func(state1, state2 interface{}) bool
}

// NoPartition puts the whole history in a single partition.
func NoPartition(history []Operation) [][]Operation {
	return [][]Operation{history}
}

// NoPartitionEvent is NoPartition for an event stream.
func NoPartitionEvent(history []Event) [][]Event {
	return [][]Event{history}
}

// ShallowEqual compares states with ==, the right choice whenever a
// model's state is a comparable value (a string, in the replicated
// map's case).
func ShallowEqual(state1, state2 interface{}) bool {
	return state1 == state2
}

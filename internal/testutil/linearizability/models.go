package linearizability

// KvInput represents the input to a single client operation against the
// replicated map: either a read (Op == OpGet) or a write (Op == OpPut).
type KvInput struct {
	Op    uint8  // OpGet or OpPut
	Key   string // key in the replicated map
	Value string // value to write; unused for OpGet
}

// Operation kinds recorded in a KvInput. The map has no append or delete,
// matching the data model's get/put-only surface.
const (
	OpGet uint8 = iota
	OpPut
)

// KvOutput represents the observed result of a single client operation.
type KvOutput struct {
	Value string // value returned by a get; empty for a put
}

// KvModel returns a Model for the replicated string->string map. Operations
// are partitioned by key, so each partition's state is just that key's
// value (the empty string standing in for "absent", matching the data
// model's convention that a missing key reads as "").
func KvModel() Model {
	return Model{
		Partition: func(history []Operation) [][]Operation {
			m := make(map[string][]Operation)
			for _, v := range history {
				key := v.Input.(KvInput).Key
				m[key] = append(m[key], v)
			}
			var ret [][]Operation
			for _, v := range m {
				ret = append(ret, v)
			}
			return ret
		},
		Init: func() interface{} {
			return ""
		},
		Step: func(state, input, output interface{}) (bool, interface{}) {
			inp := input.(KvInput)
			out := output.(KvOutput)
			st := state.(string)
			switch inp.Op {
			case OpGet:
				return out.Value == st, state
			case OpPut:
				return true, inp.Value
			}
			return false, state
		},
		Equal: ShallowEqual,
	}
}

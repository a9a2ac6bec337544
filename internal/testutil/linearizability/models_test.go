package linearizability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func op(call int64, input KvInput, output KvOutput, ret int64) Operation {
	return Operation{Call: call, Input: input, Return: ret, Output: output}
}

func TestKvModelAcceptsLinearizableHistory(t *testing.T) {
	history := []Operation{
		op(0, KvInput{Op: OpPut, Key: "x", Value: "1"}, KvOutput{}, 1),
		op(2, KvInput{Op: OpGet, Key: "x"}, KvOutput{Value: "1"}, 3),
	}

	assert.True(t, CheckOperations(KvModel(), history))
}

func TestKvModelRejectsValueThatWasNeverWritten(t *testing.T) {
	history := []Operation{
		op(0, KvInput{Op: OpPut, Key: "x", Value: "1"}, KvOutput{}, 1),
		op(2, KvInput{Op: OpGet, Key: "x"}, KvOutput{Value: "2"}, 3),
	}

	assert.False(t, CheckOperations(KvModel(), history))
}

func TestKvModelAcceptsConcurrentPutReadingEitherOrder(t *testing.T) {
	// Two overlapping puts to the same key followed by a get that can
	// validly observe either writer's value, since their call/return
	// windows overlap.
	history := []Operation{
		op(0, KvInput{Op: OpPut, Key: "x", Value: "1"}, KvOutput{}, 4),
		op(1, KvInput{Op: OpPut, Key: "x", Value: "2"}, KvOutput{}, 3),
		op(5, KvInput{Op: OpGet, Key: "x"}, KvOutput{Value: "2"}, 6),
	}

	assert.True(t, CheckOperations(KvModel(), history))

	history[2] = op(5, KvInput{Op: OpGet, Key: "x"}, KvOutput{Value: "1"}, 6)
	assert.True(t, CheckOperations(KvModel(), history))
}

func TestKvModelTreatsMissingKeyAsEmptyString(t *testing.T) {
	history := []Operation{
		op(0, KvInput{Op: OpGet, Key: "absent"}, KvOutput{Value: ""}, 1),
	}

	assert.True(t, CheckOperations(KvModel(), history))
}

func TestKvModelPartitionsByKey(t *testing.T) {
	model := KvModel()
	history := []Operation{
		op(0, KvInput{Op: OpPut, Key: "x", Value: "1"}, KvOutput{}, 1),
		op(0, KvInput{Op: OpPut, Key: "y", Value: "9"}, KvOutput{}, 1),
	}

	parts := model.Partition(history)
	assert.Len(t, parts, 2, "operations on independent keys partition separately")
}

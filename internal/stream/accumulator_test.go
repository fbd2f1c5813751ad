package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestAccumulatorSparseGrowth(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Apply(ToolCallDelta{Index: 2, ID: str("call_c"), Name: str("lookup")}))

	calls := acc.ToolCalls()
	require.Len(t, calls, 3)
	empty := ToolCall{Type: "function"}
	assert.Equal(t, empty, calls[0])
	assert.Equal(t, empty, calls[1])
	assert.Equal(t, "call_c", calls[2].ID)
	assert.Equal(t, "lookup", calls[2].Function.Name)
}

func TestAccumulatorConcatenatesInArrivalOrder(t *testing.T) {
	acc := NewAccumulator()
	deltas := []ToolCallDelta{
		{Index: 0, ID: str("call_"), Name: str("sea")},
		{Index: 1, ID: str("call_b"), Name: str("now"), Arguments: str(`{"n":`)},
		{Index: 0, ID: str("a"), Name: str("rch"), Arguments: str(`{"q":`)},
		{Index: 1, Arguments: str(`2}`)},
		{Index: 0, Arguments: str(`"go"}`)},
	}
	for _, d := range deltas {
		require.NoError(t, acc.Apply(d))
	}

	assert.Equal(t, []ToolCall{
		{ID: "call_a", Type: "function", Function: FunctionCall{Name: "search", Arguments: `{"q":"go"}`}},
		{ID: "call_b", Type: "function", Function: FunctionCall{Name: "now", Arguments: `{"n":2}`}},
	}, acc.ToolCalls())
}

func TestAccumulatorSkipsAbsentFields(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Apply(ToolCallDelta{Index: 0, ID: str("id"), Name: str("f"), Arguments: str("{}")}))
	require.NoError(t, acc.Apply(ToolCallDelta{Index: 0}))
	require.NoError(t, acc.Apply(ToolCallDelta{Index: 0, Name: str("")}))

	assert.Equal(t, ToolCall{ID: "id", Type: "function", Function: FunctionCall{Name: "f", Arguments: "{}"}}, acc.ToolCalls()[0])
}

func TestAccumulatorRejectsInvalidIndex(t *testing.T) {
	acc := NewAccumulator()

	err := acc.Apply(ToolCallDelta{Index: -1, ID: str("x")})
	assert.ErrorIs(t, err, ErrInvalidIndex)

	err = acc.Apply(ToolCallDelta{Index: MaxToolCalls, ID: str("x")})
	assert.ErrorIs(t, err, ErrInvalidIndex)

	assert.Zero(t, acc.Len())
}

func TestAccumulatorReturnsCopy(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Apply(ToolCallDelta{Index: 0, Name: str("a")}))

	calls := acc.ToolCalls()
	calls[0].Function.Name = "mutated"

	assert.Equal(t, "a", acc.ToolCalls()[0].Function.Name)
}

func TestAccumulatorEmpty(t *testing.T) {
	acc := NewAccumulator()
	assert.Empty(t, acc.ToolCalls())
	assert.NotNil(t, acc.ToolCalls())
}

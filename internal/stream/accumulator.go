package stream

import (
	"errors"
	"fmt"
)

// MaxToolCalls bounds the index a delta may address.
const MaxToolCalls = 1024

var ErrInvalidIndex = errors.New("invalid tool call index")

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Accumulator folds tool call deltas into complete tool calls. It belongs to
// a single exchange and is not safe for concurrent use.
type Accumulator struct {
	calls []ToolCall
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply appends the present fragments of d onto the call at d.Index, growing
// the list with empty placeholders when the index is new.
func (a *Accumulator) Apply(d ToolCallDelta) error {
	if d.Index < 0 || d.Index >= MaxToolCalls {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, d.Index)
	}
	for len(a.calls) <= d.Index {
		a.calls = append(a.calls, ToolCall{Type: "function"})
	}

	tc := &a.calls[d.Index]
	if d.ID != nil {
		tc.ID += *d.ID
	}
	if d.Name != nil {
		tc.Function.Name += *d.Name
	}
	if d.Arguments != nil {
		tc.Function.Arguments += *d.Arguments
	}
	return nil
}

func (a *Accumulator) Len() int { return len(a.calls) }

// ToolCalls returns a copy of the accumulated calls in index order.
func (a *Accumulator) ToolCalls() []ToolCall {
	out := make([]ToolCall, len(a.calls))
	copy(out, a.calls)
	return out
}

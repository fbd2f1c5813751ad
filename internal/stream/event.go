package stream

type EventKind int

const (
	EventContent EventKind = iota + 1
	EventToolCall
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventContent:
		return "content"
	case EventToolCall:
		return "tool_call"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is one decoded unit from the stream. Text is set for EventContent,
// ToolCall for EventToolCall.
type Event struct {
	Kind     EventKind
	Text     string
	ToolCall ToolCallDelta
}

// ToolCallDelta is a partial update to the tool call at Index. A nil field
// was absent on the wire and must not be applied.
type ToolCallDelta struct {
	Index     int
	ID        *string
	Name      *string
	Arguments *string
}

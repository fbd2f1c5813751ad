package chat

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/namikmesic/llama-sidekick/internal/stream"
)

// RenderToolCalls writes the completed tool calls as indented JSON. Nothing
// is written when there are none.
func RenderToolCalls(w io.Writer, calls []stream.ToolCall) error {
	if len(calls) == 0 {
		return nil
	}
	if _, err := fmt.Fprint(w, "\n\nTool calls:\n"); err != nil {
		return err
	}
	for _, tc := range calls {
		b, err := json.MarshalIndent(tc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal tool call %s: %w", tc.ID, err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", b); err != nil {
			return err
		}
	}
	return nil
}

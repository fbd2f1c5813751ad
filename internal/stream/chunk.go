package stream

// Chunk is one chat-completion chunk carried by a data: frame.
type Chunk struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage"`
}

type Choice struct {
	Index        int     `json:"index"`
	Delta        *Delta  `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta fields are pointers so that an absent field can be told apart from
// an empty one.
type Delta struct {
	Role      *string        `json:"role"`
	Content   *string        `json:"content"`
	ToolCalls []WireToolCall `json:"tool_calls"`
}

type WireToolCall struct {
	Index    int               `json:"index"`
	ID       *string           `json:"id"`
	Type     *string           `json:"type"`
	Function *WireFunctionCall `json:"function"`
}

type WireFunctionCall struct {
	Name      *string `json:"name"`
	Arguments *string `json:"arguments"`
}

// Usage is reported by OpenAI-compatible servers on the final chunk.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// delta returns the first choice's delta, or nil when the chunk carries none.
func (c *Chunk) delta() *Delta {
	if len(c.Choices) == 0 {
		return nil
	}
	return c.Choices[0].Delta
}

func (w WireToolCall) toDelta() ToolCallDelta {
	d := ToolCallDelta{Index: w.Index, ID: w.ID}
	if w.Function != nil {
		d.Name = w.Function.Name
		d.Arguments = w.Function.Arguments
	}
	return d
}

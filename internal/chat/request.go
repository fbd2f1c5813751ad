package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrToolsNotFound = errors.New("tool definitions not found")
	ErrToolsInvalid  = errors.New("tool definitions are not a JSON array")
)

type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant" | "tool"
	Content string `json:"content"`
}

type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Request is an OpenAI-compatible chat completion request body.
type Request struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	Tools         json.RawMessage `json:"tools,omitempty"`
	ToolChoice    string          `json:"tool_choice,omitempty"` // "auto" | "none" | "required"
	Stream        bool            `json:"stream"`
	StreamOptions *StreamOptions  `json:"stream_options,omitempty"`
}

// NewRequest builds a streaming single-turn request. tool_choice is only sent
// alongside tools, since servers reject it on its own.
func NewRequest(model, prompt string, tools json.RawMessage) *Request {
	req := &Request{
		Model:         model,
		Messages:      []Message{{Role: "user", Content: prompt}},
		Stream:        true,
		StreamOptions: &StreamOptions{IncludeUsage: true},
	}
	if hasTools(tools) {
		req.Tools = tools
		req.ToolChoice = "auto"
	}
	return req
}

func hasTools(raw json.RawMessage) bool {
	var tools []json.RawMessage
	return json.Unmarshal(raw, &tools) == nil && len(tools) > 0
}

// LoadTools reads the tool definition document, a JSON array of tool objects.
// An empty array yields no tools.
func LoadTools(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrToolsNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var tools []json.RawMessage
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrToolsInvalid, path, err)
	}
	if tools == nil {
		return nil, fmt.Errorf("%w: %s: not an array", ErrToolsInvalid, path)
	}
	if len(tools) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"iter"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	DataPrefix = "data: "
	DoneToken  = "[DONE]"

	maxLoggedBytes = 256
)

// Frame describes one data: frame as it was decoded.
type Frame struct {
	Index int    // ordinal of the data: frame within the stream, starting at 1
	Kind  string // content, tool_call, usage, empty, malformed, done
	Bytes int    // byte length of the line including its newline
}

// Decoder turns the lines of a streaming chat-completion body into Events.
// It reads lazily, one line at a time, and never buffers the whole body.
// Lines have no length limit.
type Decoder struct {
	reader  *bufio.Reader
	pending []Event
	done    bool

	frames       int
	malformed    int
	finishReason string
	usage        *Usage

	// OnFrame, when set, is called once per data: frame.
	OnFrame func(Frame)
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next event. After the [DONE] sentinel has been returned,
// or the body ends, Next returns io.EOF without reading further.
func (d *Decoder) Next() (Event, error) {
	for len(d.pending) == 0 {
		if d.done {
			return Event{}, io.EOF
		}
		line, err := d.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			d.done = true
			return Event{}, err
		}
		if line != "" {
			d.decodeLine(line)
		}
		if err == io.EOF {
			d.done = true
		}
	}

	ev := d.pending[0]
	d.pending = d.pending[1:]
	return ev, nil
}

// Events exposes the decoder as a single-pass sequence. Iteration stops after
// the first non-nil error; io.EOF is not yielded.
func (d *Decoder) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

func (d *Decoder) decodeLine(line string) {
	size := len(line)
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" || !strings.HasPrefix(line, DataPrefix) {
		return
	}

	payload := line[len(DataPrefix):]
	d.frames++

	if payload == DoneToken {
		d.done = true
		d.frame(Frame{Index: d.frames, Kind: "done", Bytes: size})
		d.pending = append(d.pending, Event{Kind: EventDone})
		return
	}

	var chunk Chunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		d.malformed++
		log.Warn().
			Err(err).
			Int("frame", d.frames).
			Str("payload", truncate(payload, maxLoggedBytes)).
			Msg("skipping malformed stream frame")
		d.frame(Frame{Index: d.frames, Kind: "malformed", Bytes: size})
		return
	}

	if chunk.Usage != nil {
		d.usage = chunk.Usage
	}
	if len(chunk.Choices) > 0 && chunk.Choices[0].FinishReason != nil {
		d.finishReason = *chunk.Choices[0].FinishReason
	}

	kind := "empty"
	if delta := chunk.delta(); delta != nil {
		if delta.Content != nil && *delta.Content != "" {
			kind = "content"
			d.pending = append(d.pending, Event{Kind: EventContent, Text: *delta.Content})
		}
		for _, tc := range delta.ToolCalls {
			kind = "tool_call"
			d.pending = append(d.pending, Event{Kind: EventToolCall, ToolCall: tc.toDelta()})
		}
	}
	if kind == "empty" && chunk.Usage != nil {
		kind = "usage"
	}
	d.frame(Frame{Index: d.frames, Kind: kind, Bytes: size})
}

func (d *Decoder) frame(f Frame) {
	if d.OnFrame != nil {
		d.OnFrame(f)
	}
}

// Frames reports how many data: frames have been decoded so far.
func (d *Decoder) Frames() int { return d.frames }

// Malformed reports how many data: frames were skipped as invalid JSON.
func (d *Decoder) Malformed() int { return d.malformed }

// FinishReason is the last finish_reason seen on the first choice.
func (d *Decoder) FinishReason() string { return d.finishReason }

// Usage is the last token usage block seen, or nil.
func (d *Decoder) Usage() *Usage { return d.usage }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

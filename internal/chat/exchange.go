package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/namikmesic/llama-sidekick/internal/stream"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateAwaitingResponse State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Opener is the transport an Exchange streams from.
type Opener interface {
	Open(ctx context.Context, req *Request) (io.ReadCloser, error)
}

// Observer is told about an exchange's lifecycle. Body may wrap the response
// body; it must return a reader that yields the same bytes.
type Observer interface {
	Started(id uuid.UUID, req *Request)
	Body(id uuid.UUID, body io.ReadCloser) io.ReadCloser
	Finished(id uuid.UUID, res *Result, err error)
}

// Result is only produced for an exchange that completed.
type Result struct {
	ID           uuid.UUID
	Text         string
	ToolCalls    []stream.ToolCall
	FinishReason string
	Usage        *stream.Usage
	Frames       int
	Malformed    int
	Duration     time.Duration
}

type flusher interface {
	Flush() error
}

// Exchange runs one request/response round trip. Content is written to the
// sink as it arrives; tool calls are only returned once the stream completes.
type Exchange struct {
	opener   Opener
	sink     io.Writer
	observer Observer
	state    State
}

// NewExchange creates an exchange. observer may be nil.
func NewExchange(opener Opener, sink io.Writer, observer Observer) *Exchange {
	return &Exchange{opener: opener, sink: sink, observer: observer}
}

func (e *Exchange) State() State {
	return e.state
}

// Run sends req and consumes the stream until [DONE], EOF, or an error.
// On error no result is returned, even if tool call fragments had arrived.
func (e *Exchange) Run(ctx context.Context, req *Request) (*Result, error) {
	id := uuid.New()
	start := time.Now()
	e.state = StateAwaitingResponse
	if e.observer != nil {
		e.observer.Started(id, req)
	}

	body, err := e.opener.Open(ctx, req)
	if err != nil {
		return e.fail(id, err)
	}
	if e.observer != nil {
		body = e.observer.Body(id, body)
	}
	defer body.Close()
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	e.state = StateStreaming
	dec := stream.NewDecoder(body)
	acc := stream.NewAccumulator()
	var text strings.Builder

	for ev, err := range dec.Events() {
		if err != nil {
			return e.fail(id, e.cause(ctx, fmt.Errorf("read stream: %w", err)))
		}
		switch ev.Kind {
		case stream.EventContent:
			text.WriteString(ev.Text)
			if err := e.write(ev.Text); err != nil {
				return e.fail(id, fmt.Errorf("write output: %w", err))
			}
		case stream.EventToolCall:
			if err := acc.Apply(ev.ToolCall); err != nil {
				log.Warn().
					Err(err).
					Str("exchange_id", id.String()).
					Msg("skipping tool call delta")
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return e.fail(id, err)
	}

	e.state = StateCompleted
	res := &Result{
		ID:           id,
		Text:         text.String(),
		ToolCalls:    acc.ToolCalls(),
		FinishReason: dec.FinishReason(),
		Usage:        dec.Usage(),
		Frames:       dec.Frames(),
		Malformed:    dec.Malformed(),
		Duration:     time.Since(start),
	}
	if e.observer != nil {
		e.observer.Finished(id, res, nil)
	}

	log.Debug().
		Str("exchange_id", id.String()).
		Int("frames", res.Frames).
		Int("malformed", res.Malformed).
		Int("tool_calls", len(res.ToolCalls)).
		Dur("duration", res.Duration).
		Msg("exchange completed")
	return res, nil
}

func (e *Exchange) write(s string) error {
	if _, err := io.WriteString(e.sink, s); err != nil {
		return err
	}
	if f, ok := e.sink.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// cause prefers the context error when a read failed because the body was
// closed on cancellation.
func (e *Exchange) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func (e *Exchange) fail(id uuid.UUID, err error) (*Result, error) {
	e.state = StateFailed
	if e.observer != nil {
		e.observer.Finished(id, nil, err)
	}
	return nil, err
}

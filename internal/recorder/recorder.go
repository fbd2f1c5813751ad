package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/namikmesic/llama-sidekick/internal/chat"
	"github.com/namikmesic/llama-sidekick/internal/jetstream"
	"github.com/namikmesic/llama-sidekick/internal/storage"
	"github.com/namikmesic/llama-sidekick/internal/stream"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Enqueuer accepts write jobs; *storage.BatchWriter in production.
type Enqueuer interface {
	Enqueue(job storage.WriteJob)
}

// Recorder stores exchange telemetry. As a chat.Observer it records the
// exchange lifecycle and taps the response body onto JetStream; its consumer
// re-decodes the tapped bytes off the client's hot path.
type Recorder struct {
	writer   Enqueuer
	js       nats.JetStreamContext
	endpoint string

	mu       sync.Mutex
	started  map[uuid.UUID]time.Time
	inflight map[string]chan struct{}
	pipes    map[string]*exchangePipe
	stopping bool

	publishers sync.WaitGroup
	processors sync.WaitGroup
}

type exchangePipe struct {
	pw   *io.PipeWriter
	done chan struct{}
}

var _ chat.Observer = (*Recorder)(nil)

func New(writer Enqueuer, js nats.JetStreamContext, endpoint string) *Recorder {
	return &Recorder{
		writer:   writer,
		js:       js,
		endpoint: endpoint,
		started:  make(map[uuid.UUID]time.Time),
		inflight: make(map[string]chan struct{}),
		pipes:    make(map[string]*exchangePipe),
	}
}

func (r *Recorder) Started(id uuid.UUID, req *chat.Request) {
	now := time.Now()
	r.mu.Lock()
	r.started[id] = now
	r.mu.Unlock()

	r.writer.Enqueue(storage.InsertExchangeJob(&storage.ExchangeRecord{
		ID:           id,
		StartedAt:    now,
		Endpoint:     r.endpoint,
		Model:        req.Model,
		MessageCount: len(req.Messages),
		ToolCount:    countTools(req.Tools),
	}))
}

// Body tees the response body and publishes the copy chunk by chunk.
func (r *Recorder) Body(id uuid.UUID, body io.ReadCloser) io.ReadCloser {
	client, tap := stream.TeeBody(body)

	r.mu.Lock()
	r.inflight[id.String()] = make(chan struct{})
	r.mu.Unlock()

	r.publishers.Add(1)
	go func() {
		defer r.publishers.Done()
		r.publish(id.String(), tap)
	}()
	return client
}

func (r *Recorder) Finished(id uuid.UUID, res *chat.Result, err error) {
	r.mu.Lock()
	start, ok := r.started[id]
	delete(r.started, id)
	r.mu.Unlock()

	outcome := &storage.ExchangeOutcome{ID: id, State: chat.StateCompleted.String()}
	if ok {
		outcome.Duration = time.Since(start)
	}
	if res != nil {
		outcome.StatusCode = 200
		outcome.Duration = res.Duration
		outcome.ToolCalls = len(res.ToolCalls)
	}
	if err != nil {
		outcome.State = chat.StateFailed.String()
		outcome.ErrorMessage = err.Error()
		var statusErr *chat.StatusError
		if errors.As(err, &statusErr) {
			outcome.StatusCode = statusErr.StatusCode
		}
	}
	r.writer.Enqueue(storage.FinishExchangeJob(outcome))
}

// publish drains tap until EOF. It keeps reading after publish failures so
// the client side of the tee never blocks.
func (r *Recorder) publish(id string, tap io.Reader) {
	subject := jetstream.ChunkSubject(id)
	buf := make([]byte, 32*1024)
	failed := false

	for {
		n, err := tap.Read(buf)
		if n > 0 && !failed {
			if _, pubErr := r.js.Publish(subject, buf[:n]); pubErr != nil {
				log.Warn().Err(pubErr).Str("exchange_id", id).Msg("failed to publish stream chunk")
				failed = true
			}
		}
		if err != nil {
			break
		}
	}

	if failed {
		r.settle(id)
		return
	}
	if _, err := r.js.Publish(jetstream.DoneSubject(id), nil); err != nil {
		log.Warn().Err(err).Str("exchange_id", id).Msg("failed to publish stream end")
		r.settle(id)
	}
}

// StartConsumer processes tapped streams until ctx is done. It returns once
// every stream it started processing has finished enqueueing.
func (r *Recorder) StartConsumer(ctx context.Context, js nats.JetStreamContext) error {
	sub, err := js.Subscribe(jetstream.AllSubjects(), r.handle)
	if err != nil {
		return err
	}

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		log.Debug().Err(err).Msg("unsubscribe recorder consumer")
	}

	r.mu.Lock()
	r.stopping = true
	for id, p := range r.pipes {
		p.pw.CloseWithError(ctx.Err())
		delete(r.pipes, id)
	}
	r.mu.Unlock()

	r.processors.Wait()
	return nil
}

func (r *Recorder) handle(msg *nats.Msg) {
	id, done, ok := jetstream.ParseSubject(msg.Subject)
	if !ok {
		return
	}
	exchangeID, err := uuid.Parse(id)
	if err != nil {
		log.Warn().Str("subject", msg.Subject).Msg("ignoring message with invalid exchange id")
		return
	}

	r.mu.Lock()
	p := r.pipes[id]
	if done {
		delete(r.pipes, id)
	}
	r.mu.Unlock()

	if done {
		if p != nil {
			p.pw.Close()
			<-p.done
		}
		r.settle(id)
		return
	}

	if p == nil {
		pr, pw := io.Pipe()
		p = &exchangePipe{pw: pw, done: make(chan struct{})}
		r.mu.Lock()
		if r.stopping {
			r.mu.Unlock()
			return
		}
		r.pipes[id] = p
		r.processors.Add(1)
		r.mu.Unlock()
		go func() {
			defer r.processors.Done()
			defer close(p.done)
			r.ProcessStream(exchangeID, pr)
		}()
	}
	if _, err := p.pw.Write(msg.Data); err != nil {
		log.Warn().Err(err).Str("exchange_id", id).Msg("failed to forward stream chunk")
	}
}

// ProcessStream decodes a tapped response body and enqueues its summary and
// per-frame statistics. The reader is always drained.
func (r *Recorder) ProcessStream(id uuid.UUID, reader io.Reader) {
	dec := stream.NewDecoder(reader)
	acc := stream.NewAccumulator()

	var frames []storage.FrameStat
	dec.OnFrame = func(f stream.Frame) {
		frames = append(frames, storage.FrameStat{Index: f.Index, Kind: f.Kind, Bytes: f.Bytes})
	}

	var summary storage.StreamSummary
	for ev, err := range dec.Events() {
		if err != nil {
			log.Debug().Err(err).Str("exchange_id", id.String()).Msg("tapped stream ended early")
			break
		}
		switch ev.Kind {
		case stream.EventContent:
			summary.ContentChars += utf8.RuneCountInString(ev.Text)
		case stream.EventToolCall:
			_ = acc.Apply(ev.ToolCall)
		}
	}
	_, _ = io.Copy(io.Discard, reader)

	summary.Frames = dec.Frames()
	summary.MalformedFrames = dec.Malformed()
	summary.ToolCalls = acc.Len()
	summary.FinishReason = dec.FinishReason()
	if u := dec.Usage(); u != nil {
		summary.PromptTokens = u.PromptTokens
		summary.CompletionTokens = u.CompletionTokens
	}

	r.writer.Enqueue(storage.UpdateExchangeStreamJob(id, summary))
	if len(frames) > 0 {
		r.writer.Enqueue(storage.InsertFrameStatsJob(id, frames))
	}

	log.Debug().
		Str("exchange_id", id.String()).
		Int("frames", summary.Frames).
		Int("tool_calls", summary.ToolCalls).
		Int("prompt_tokens", summary.PromptTokens).
		Int("completion_tokens", summary.CompletionTokens).
		Msg("stream processing complete")
}

// Drain waits until every tapped exchange has been published and processed,
// or ctx expires.
func (r *Recorder) Drain(ctx context.Context) error {
	published := make(chan struct{})
	go func() {
		r.publishers.Wait()
		close(published)
	}()
	select {
	case <-published:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	pending := make([]chan struct{}, 0, len(r.inflight))
	for _, ch := range r.inflight {
		pending = append(pending, ch)
	}
	r.mu.Unlock()

	for _, ch := range pending {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Recorder) settle(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.inflight[id]; ok {
		close(ch)
		delete(r.inflight, id)
	}
}

func countTools(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var tools []json.RawMessage
	if err := json.Unmarshal(raw, &tools); err != nil {
		return 0
	}
	return len(tools)
}

package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/namikmesic/llama-sidekick/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bodyOpener struct {
	body string
	err  error
}

func (o bodyOpener) Open(context.Context, *Request) (io.ReadCloser, error) {
	if o.err != nil {
		return nil, o.err
	}
	return io.NopCloser(strings.NewReader(o.body)), nil
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []uuid.UUID
	tapped   int
	results  []*Result
	failures []error
}

func (o *recordingObserver) Started(id uuid.UUID, _ *Request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, id)
}

func (o *recordingObserver) Body(_ uuid.UUID, body io.ReadCloser) io.ReadCloser {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tapped++
	return body
}

func (o *recordingObserver) Finished(_ uuid.UUID, res *Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failures = append(o.failures, err)
		return
	}
	o.results = append(o.results, res)
}

const weatherStream = `data: {"choices":[{"delta":{"role":"assistant"}}]}

data: {"choices":[{"delta":{"content":"Hi"}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_","arguments":"{\"x\":"}}]}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"name":"weather","arguments":"1}"}}]}}]}

data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}

data: [DONE]

`

func TestExchangeRun(t *testing.T) {
	var out bytes.Buffer
	obs := &recordingObserver{}
	ex := NewExchange(bodyOpener{body: weatherStream}, &out, obs)

	res, err := ex.Run(context.Background(), NewRequest("m", "p", nil))
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, ex.State())
	assert.Equal(t, "Hi", out.String())
	assert.Equal(t, "Hi", res.Text)
	assert.Equal(t, []stream.ToolCall{{
		ID:       "call_1",
		Type:     "function",
		Function: stream.FunctionCall{Name: "get_weather", Arguments: `{"x":1}`},
	}}, res.ToolCalls)
	assert.Equal(t, "tool_calls", res.FinishReason)
	assert.Equal(t, 6, res.Frames)

	require.Len(t, obs.started, 1)
	assert.Equal(t, obs.started[0], res.ID)
	assert.Equal(t, 1, obs.tapped)
	assert.Equal(t, []*Result{res}, obs.results)
}

func TestExchangeRunContentOnly(t *testing.T) {
	var out bytes.Buffer
	ex := NewExchange(bodyOpener{body: "data: {\"choices\":[{\"delta\":{\"content\":\"one \"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n" +
		"data: [DONE]\n\n"}, &out, nil)

	res, err := ex.Run(context.Background(), NewRequest("m", "p", nil))
	require.NoError(t, err)

	assert.Equal(t, "one two", out.String())
	assert.Empty(t, res.ToolCalls)
}

func TestExchangeSkipsInvalidIndex(t *testing.T) {
	var out bytes.Buffer
	ex := NewExchange(bodyOpener{body: "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":-3,\"id\":\"bad\"}]}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"good\"}]}}]}\n"}, &out, nil)

	res, err := ex.Run(context.Background(), NewRequest("m", "p", nil))
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "good", res.ToolCalls[0].ID)
}

func TestExchangeOpenFailure(t *testing.T) {
	obs := &recordingObserver{}
	boom := &StatusError{StatusCode: http.StatusBadGateway, Body: "upstream down"}
	ex := NewExchange(bodyOpener{err: boom}, io.Discard, obs)

	res, err := ex.Run(context.Background(), NewRequest("m", "p", nil))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, ex.State())
	assert.Zero(t, obs.tapped)
	require.Len(t, obs.failures, 1)
}

type brokenBody struct {
	io.Reader
}

func (brokenBody) Close() error { return nil }

type brokenOpener struct{}

func (brokenOpener) Open(context.Context, *Request) (io.ReadCloser, error) {
	return brokenBody{io.MultiReader(
		strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"par\",\"tool_calls\":[{\"index\":0,\"id\":\"c\"}]}}]}\n"),
		iotestErrReader{},
	)}, nil
}

var errReset = errors.New("connection reset by peer")

type iotestErrReader struct{}

func (iotestErrReader) Read([]byte) (int, error) { return 0, errReset }

func TestExchangeMidStreamFailureKeepsDisplayedText(t *testing.T) {
	var out bytes.Buffer
	ex := NewExchange(brokenOpener{}, &out, nil)

	res, err := ex.Run(context.Background(), NewRequest("m", "p", nil))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, errReset)
	assert.Equal(t, "par", out.String())
	assert.Equal(t, StateFailed, ex.State())
}

type signalWriter struct {
	once  sync.Once
	wrote chan struct{}
	buf   bytes.Buffer
}

func (w *signalWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.once.Do(func() { close(w.wrote) })
	return n, err
}

func TestExchangeCancellationDiscardsPartialToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"thinking\",\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"function\":{\"arguments\":\"{\\\"q\\\":\"}}]}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, "k")
	require.NoError(t, err)

	sink := &signalWriter{wrote: make(chan struct{})}
	obs := &recordingObserver{}
	ex := NewExchange(client, sink, obs)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sink.wrote
		cancel()
	}()

	res, err := ex.Run(ctx, NewRequest("m", "p", nil))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, ex.State())
	assert.Equal(t, "thinking", sink.buf.String())
	assert.Empty(t, obs.results)
}

func TestRenderToolCalls(t *testing.T) {
	var out bytes.Buffer
	err := RenderToolCalls(&out, []stream.ToolCall{{
		ID:       "call_1",
		Type:     "function",
		Function: stream.FunctionCall{Name: "get_weather", Arguments: `{"x":1}`},
	}})
	require.NoError(t, err)

	want := "\n\nTool calls:\n" +
		"{\n" +
		"  \"id\": \"call_1\",\n" +
		"  \"type\": \"function\",\n" +
		"  \"function\": {\n" +
		"    \"name\": \"get_weather\",\n" +
		"    \"arguments\": \"{\\\"x\\\":1}\"\n" +
		"  }\n" +
		"}\n"
	assert.Equal(t, want, out.String())
}

func TestRenderToolCallsEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, RenderToolCalls(&out, nil))
	assert.Empty(t, out.String())
}

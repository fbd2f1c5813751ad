package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeeBodyCopiesToBackground(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: one\n\ndata: two\n\n"))
	client, background := TeeBody(body)

	got := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(background)
		got <- string(b)
	}()

	b, err := io.ReadAll(client)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	assert.Equal(t, "data: one\n\ndata: two\n\n", string(b))
	assert.Equal(t, string(b), <-got)
}

func TestTeeBodyCloseEndsBackground(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: [DONE]\ndata: ignored\n"))
	client, background := TeeBody(body)

	got := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(background)
		got <- string(b)
	}()

	d := NewDecoder(client)
	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, EventDone, ev.Kind)
	require.NoError(t, client.Close())

	assert.Contains(t, <-got, "data: [DONE]")
}

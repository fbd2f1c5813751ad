package stream

import (
	"io"
)

// TeeReadCloser hands every byte the caller reads to a background pipe as
// well. Closing it, or hitting a read error, ends the pipe so the background
// reader sees EOF even when the caller stops early (for example at [DONE]).
type TeeReadCloser struct {
	reader io.Reader
	body   io.ReadCloser
	pw     *io.PipeWriter
}

// TeeBody splits body into the reader the caller consumes and the reader a
// background consumer drains. The background reader must be drained
// continuously or the caller's reads will block.
func TeeBody(body io.ReadCloser) (*TeeReadCloser, *io.PipeReader) {
	pr, pw := io.Pipe()
	return &TeeReadCloser{
		reader: io.TeeReader(body, pw),
		body:   body,
		pw:     pw,
	}, pr
}

func (t *TeeReadCloser) Read(p []byte) (int, error) {
	n, err := t.reader.Read(p)
	if err != nil {
		t.pw.CloseWithError(err)
	}
	return n, err
}

func (t *TeeReadCloser) Close() error {
	t.pw.Close()
	return t.body.Close()
}

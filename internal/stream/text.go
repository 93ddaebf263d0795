package stream

import (
	"io"
)

// TextOnly returns a reader yielding the concatenated text deltas of the
// frame stream r as plain UTF-8. Every other frame kind is discarded.
func TextOnly(r io.Reader) io.Reader {
	return &textReader{dec: NewDecoder(r)}
}

type textReader struct {
	dec *Decoder
	buf []byte
	err error
}

func (t *textReader) Read(p []byte) (int, error) {
	for len(t.buf) == 0 {
		if t.err != nil {
			return 0, t.err
		}
		frame, err := t.dec.Next()
		if err != nil {
			t.err = err
			continue
		}
		if frame.Kind == KindText {
			t.buf = append(t.buf[:0], frame.Text...)
		}
	}

	n := copy(p, t.buf)
	t.buf = t.buf[n:]
	return n, nil
}

package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/iksnae/chatstream/internal/metrics"
)

// flusher matches http.Flusher without importing net/http
type flusher interface {
	Flush()
}

// Encoder writes frames, one line per frame. Each frame reaches the
// underlying writer in a single Write, followed by a Flush when supported.
type Encoder struct {
	mu  sync.Mutex
	w   io.Writer
	buf bytes.Buffer
	enc *json.Encoder
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	e.enc = json.NewEncoder(&e.buf)
	e.enc.SetEscapeHTML(false)
	return e
}

// Encode writes one frame
func (e *Encoder) Encode(f Frame) error {
	var payload any
	switch f.Kind {
	case KindText, KindError:
		payload = f.Text
	case KindData:
		if len(f.Data) == 0 {
			payload = json.RawMessage("null")
		} else {
			payload = f.Data
		}
	case KindFinish:
		payload = f.Finish
	default:
		return fmt.Errorf("cannot encode %v frame", f.Kind)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf.Reset()
	e.buf.WriteByte(f.Kind.prefix())
	e.buf.WriteByte(':')
	// json.Encoder terminates the value with '\n'
	if err := e.enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode %v frame: %w", f.Kind, err)
	}

	if _, err := e.w.Write(e.buf.Bytes()); err != nil {
		return err
	}
	if fl, ok := e.w.(flusher); ok {
		fl.Flush()
	}

	metrics.FramesEncoded.WithLabelValues(f.Kind.String()).Inc()
	return nil
}

// Text writes a text delta
func (e *Encoder) Text(s string) error {
	return e.Encode(TextDelta(s))
}

// Data writes a data frame holding v
func (e *Encoder) Data(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal data frame: %w", err)
	}
	return e.Encode(DataFrame(raw))
}

// Error writes an error frame
func (e *Encoder) Error(message string) error {
	return e.Encode(ErrorFrame(message))
}

// Finish writes a finish frame
func (e *Encoder) Finish(info FinishInfo) error {
	return e.Encode(FinishFrame(info))
}

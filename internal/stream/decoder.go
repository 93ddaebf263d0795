package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/metrics"
)

// Decoder pulls frames from a reader one line at a time.
// A Decoder belongs to a single stream.
type Decoder struct {
	r   *bufio.Reader
	err error
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next well-formed frame. It reads only until one complete
// line is buffered. Malformed lines are skipped. A last line without a
// trailing newline is decoded when the reader reports io.EOF. After the last
// frame Next returns io.EOF; any other error comes from the reader.
func (d *Decoder) Next() (Frame, error) {
	for {
		if d.err != nil {
			return Frame{}, d.err
		}

		line, err := d.r.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// a cut-off line is not worth decoding
				d.err = err
				return Frame{}, err
			}
			d.err = io.EOF
		}

		if frame, ok := decodeCounted(line); ok {
			return frame, nil
		}
	}
}

// Frames iterates over the remaining frames. Iteration stops at io.EOF;
// any other error is yielded once as the final element.
func (d *Decoder) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			frame, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Frame{}, err)
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// ChunkDecoder is the push form of Decoder for callers that receive chunks
// themselves. Chunks may split lines anywhere.
type ChunkDecoder struct {
	partial []byte
	queue   []Frame
}

// Write buffers a chunk and decodes every line it completes
func (c *ChunkDecoder) Write(chunk []byte) (int, error) {
	c.partial = append(c.partial, chunk...)
	for {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			break
		}
		if frame, ok := decodeCounted(c.partial[:i]); ok {
			c.queue = append(c.queue, frame)
		}
		c.partial = c.partial[i+1:]
	}
	// release the consumed prefix
	if len(c.partial) == 0 {
		c.partial = nil
	}
	return len(chunk), nil
}

// Drain returns the frames decoded so far and forgets them
func (c *ChunkDecoder) Drain() []Frame {
	frames := c.queue
	c.queue = nil
	return frames
}

// Close decodes a trailing unterminated line and returns the remaining frames
func (c *ChunkDecoder) Close() []Frame {
	if len(c.partial) > 0 {
		if frame, ok := decodeCounted(c.partial); ok {
			c.queue = append(c.queue, frame)
		}
		c.partial = nil
	}
	return c.Drain()
}

// decodeCounted decodes a raw line, counting good frames and anomalies.
// Blank lines are ignored silently.
func decodeCounted(line []byte) (Frame, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return Frame{}, false
	}

	frame, err := DecodeLine(line)
	if err != nil {
		anomaly := &internal.ParseAnomaly{Source: "frame", Input: string(line), Err: err}
		internal.LogWarn("%v", anomaly)
		metrics.ParseAnomalies.WithLabelValues("frame").Inc()
		return Frame{}, false
	}

	metrics.FramesDecoded.WithLabelValues(frame.Kind.String()).Inc()
	return frame, true
}

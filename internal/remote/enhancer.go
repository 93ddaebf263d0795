package remote

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/iksnae/chatstream/internal"
)

type enhanceRequest struct {
	Message string `json:"message"`
}

// Enhance asks the relay to rewrite draft into a better prompt. onChunk, if
// set, receives the text as it arrives, split on rune boundaries. The
// returned string is the whole rewrite.
func (c *Client) Enhance(ctx context.Context, draft string, onChunk func(string)) (string, error) {
	if strings.TrimSpace(draft) == "" {
		return "", &internal.ValidationError{Field: "message", Err: internal.ErrEmptyInput}
	}

	body, err := c.post(ctx, enhancerPath, enhanceRequest{Message: draft})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var (
		out     strings.Builder
		pending []byte
		buf     = make([]byte, 4096)
	)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completeRunes(pending)
			if cut > 0 {
				chunk := string(pending[:cut])
				out.WriteString(chunk)
				if onChunk != nil {
					onChunk(chunk)
				}
				pending = append(pending[:0], pending[cut:]...)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return out.String(), ctx.Err()
			}
			return out.String(), &internal.TransportError{URL: c.baseURL + enhancerPath, Err: err}
		}
	}

	if len(pending) > 0 {
		chunk := string(pending)
		out.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return out.String(), nil
}

// completeRunes returns the length of the longest prefix of b that does not
// end inside a multi-byte rune
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// Package stream implements the line-delimited frame protocol spoken on the
// chat and enhancer endpoints.
//
// Every line is a one-character type prefix, a colon and a JSON value:
//
//	0:"text delta"
//	2:[{"any":"json"}]
//	3:"error message"
//	d:{"finishReason":"stop","usage":{"promptTokens":1,"completionTokens":2}}
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a frame type
type Kind int

const (
	KindText Kind = iota
	KindData
	KindError
	KindFinish
)

// Wire prefixes
const (
	prefixText   = '0'
	prefixData   = '2'
	prefixError  = '3'
	prefixFinish = 'd'
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindData:
		return "data"
	case KindError:
		return "error"
	case KindFinish:
		return "finish"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) prefix() byte {
	switch k {
	case KindText:
		return prefixText
	case KindData:
		return prefixData
	case KindError:
		return prefixError
	default:
		return prefixFinish
	}
}

// Usage is the token accounting carried by a finish frame
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// FinishInfo is the payload of a finish frame
type FinishInfo struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}

// Frame is one decoded unit of the stream. Kind selects which field is set:
// Text for text deltas and errors, Data for data frames, Finish for finish frames.
type Frame struct {
	Kind   Kind
	Text   string
	Data   json.RawMessage
	Finish FinishInfo
}

// TextDelta returns a text frame
func TextDelta(s string) Frame {
	return Frame{Kind: KindText, Text: s}
}

// DataFrame returns a data frame carrying raw JSON
func DataFrame(raw json.RawMessage) Frame {
	return Frame{Kind: KindData, Data: raw}
}

// ErrorFrame returns an error frame
func ErrorFrame(message string) Frame {
	return Frame{Kind: KindError, Text: message}
}

// FinishFrame returns a finish frame
func FinishFrame(info FinishInfo) Frame {
	return Frame{Kind: KindFinish, Finish: info}
}

var (
	errNoPrefix      = errors.New("missing type prefix")
	errUnknownPrefix = errors.New("unknown type prefix")
)

// DecodeLine decodes a single line without its terminator
func DecodeLine(line []byte) (Frame, error) {
	if len(line) < 2 || line[1] != ':' {
		return Frame{}, errNoPrefix
	}
	payload := line[2:]

	switch line[0] {
	case prefixText:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Frame{}, fmt.Errorf("text payload: %w", err)
		}
		return TextDelta(s), nil
	case prefixData:
		if !json.Valid(payload) {
			return Frame{}, errors.New("data payload is not valid JSON")
		}
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		return DataFrame(raw), nil
	case prefixError:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Frame{}, fmt.Errorf("error payload: %w", err)
		}
		return ErrorFrame(s), nil
	case prefixFinish:
		var info FinishInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			return Frame{}, fmt.Errorf("finish payload: %w", err)
		}
		return FinishFrame(info), nil
	default:
		return Frame{}, fmt.Errorf("%w %q", errUnknownPrefix, line[0])
	}
}

package session

import (
	"encoding/json"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/parser"
	"github.com/iksnae/chatstream/internal/stream"
)

// State is the lifecycle state of a controller turn
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a turn is in flight
func (s State) Busy() bool {
	return s == StateSending || s == StateStreaming
}

// EventKind selects which fields of an Event are set
type EventKind int

const (
	// EventState carries State (and Err for StateFailed)
	EventState EventKind = iota
	// EventMessage carries a message that was appended or overwritten.
	// Segments is set for assistant messages.
	EventMessage
	// EventData carries the raw payload of a data frame
	EventData
	// EventFinish carries the finish frame of the turn
	EventFinish
	// EventAddress carries the new address of the session
	EventAddress
	// EventLoaded is sent after Load replaced the transcript
	EventLoaded
)

// Event is delivered to subscribers in the order things happen
type Event struct {
	Kind     EventKind
	State    State
	Err      error
	Index    int
	Message  internal.ChatMessage
	Segments []parser.Segment
	Data     json.RawMessage
	Finish   stream.FinishInfo
	Address  string
}

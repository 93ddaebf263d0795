package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no chat matches an id or urlId
	ErrNotFound = errors.New("chat not found")
	// ErrStorageUnavailable is returned when the backing store failed to initialize
	ErrStorageUnavailable = errors.New("chat persistence is unavailable")
	// ErrWriteFailed is returned when the storage medium rejects a write
	ErrWriteFailed = errors.New("chat write failed")
	// ErrEmptyInput is returned when a turn or enhancement is submitted without text
	ErrEmptyInput = errors.New("message is empty")
	// ErrDescriptionLength is returned for descriptions outside 2..60 characters
	ErrDescriptionLength = errors.New("title must be between 2 and 60 characters")
)

// StorageError represents errors accessing the chat store
type StorageError struct {
	Path string
	Op   string // "open", "get", "put", "allocate"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidationError represents input rejected before it reaches the network or the store
type ValidationError struct {
	Field string // "message", "description"
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s]: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransportError represents a failed request or a stream that ended in an error frame
type TransportError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error [%d] %s: %v", e.StatusCode, e.URL, e.Err)
	case e.URL != "":
		return fmt.Sprintf("transport error %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseAnomaly represents input that was skipped by a decoder or parser.
// Anomalies are logged, never returned to abort a stream.
type ParseAnomaly struct {
	Source string // "frame", "artifact", "message"
	Input  string
	Err    error
}

func (e *ParseAnomaly) Error() string {
	input := e.Input
	if len(input) > 80 {
		input = input[:77] + "..."
	}
	return fmt.Sprintf("parse anomaly [%s] %q: %v", e.Source, input, e.Err)
}

func (e *ParseAnomaly) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

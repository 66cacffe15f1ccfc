package ingest

import "errors"

var (
	// ErrClosed is returned when submitting to a stopped loop.
	ErrClosed = errors.New("ingest: closed")
	// ErrQueueFull is returned when a user already has too many events waiting.
	ErrQueueFull = errors.New("ingest: per-user queue full")
	// ErrRunning is returned by Run when the loop is already running.
	ErrRunning = errors.New("ingest: already running")
)

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "ingest: handler panic"
}

// Code implements the error-code convention used in event logs.
func (e *PanicError) Code() string { return "panic" }

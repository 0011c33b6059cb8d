package transport

import "errors"

// Domain-specific errors for the scheduler link.
var (
	// ErrConnectionFailed is returned when the scheduler cannot be reached.
	ErrConnectionFailed = errors.New("transport: connection failed")

	// ErrNotConnected is returned when a message is sent while disconnected.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrQueueFull is returned when the outbound queue is saturated.
	ErrQueueFull = errors.New("transport: send queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport: link closed")
)

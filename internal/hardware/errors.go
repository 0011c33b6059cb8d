package hardware

import "errors"

// Domain-specific errors for hardware drivers.
var (
	// ErrNotConnected is returned when a command is sent while disconnected.
	ErrNotConnected = errors.New("hardware: not connected")

	// ErrConnectionFailed is returned when the controller cannot be reached.
	ErrConnectionFailed = errors.New("hardware: connection failed")

	// ErrQueueFull is returned when the outbound command queue is full.
	ErrQueueFull = errors.New("hardware: command queue full")

	// ErrNoStatus is returned by ReadStatus before the first status arrives.
	ErrNoStatus = errors.New("hardware: no status received")

	// ErrInvalidFrame is returned for a malformed frame.
	ErrInvalidFrame = errors.New("hardware: invalid frame")

	// ErrProtocolDesync is returned when framing is lost and the connection
	// must be reset.
	ErrProtocolDesync = errors.New("hardware: protocol desync")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hardware: driver closed")
)

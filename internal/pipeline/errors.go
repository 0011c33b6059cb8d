package pipeline

import "errors"

// Domain errors for operator actions. Pipeline outcomes use protocol.Status.
var (
	// ErrClosureRunning is returned when an action conflicts with the forced closure.
	ErrClosureRunning = errors.New("pipeline: forced closure in progress")

	// ErrNotUnsafe is returned when clearing a latch that is not set.
	ErrNotUnsafe = errors.New("pipeline: unsafe latch not set")

	// ErrUnsafe is returned when an action is refused while latched unsafe.
	ErrUnsafe = errors.New("pipeline: observatory latched unsafe")

	// ErrUnknownAction is returned for an unrecognised operator action.
	ErrUnknownAction = errors.New("pipeline: unknown operator action")
)

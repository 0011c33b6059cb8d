package telemetry

import "errors"

var (
	// ErrUnknownTopic is returned for a message outside the operator topic tree.
	ErrUnknownTopic = errors.New("telemetry: not an operator topic")

	// ErrBadPayload is returned when an operator payload is not valid JSON.
	ErrBadPayload = errors.New("telemetry: invalid operator payload")

	// ErrReactorClosed is returned when the reactor has stopped accepting work.
	ErrReactorClosed = errors.New("telemetry: reactor stopped")
)

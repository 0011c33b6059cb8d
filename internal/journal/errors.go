package journal

import "errors"

var (
	// ErrInvalidRun is returned for a run without an ID.
	ErrInvalidRun = errors.New("journal: run id is required")

	// ErrInvalidDuration is returned by Prune for a non-positive age.
	ErrInvalidDuration = errors.New("journal: retention must be positive")
)

package protocol

import "fmt"

// Status is an observation status: the outcome of one pipeline stage, and of
// a pipeline as a whole.
type Status uint8

// Observation status values. The numeric values are part of the wire format.
const (
	// StatusDeferred means the controller kept the message and will complete
	// it later. It never appears in a reply.
	StatusDeferred Status = 0

	// StatusGood means the stage reached its goal.
	StatusGood Status = 1

	// StatusCancel means the work was interrupted by a higher-priority action
	// (for example a weather closure).
	StatusCancel Status = 2

	// StatusComplete means the requested work was already finished.
	StatusComplete Status = 3

	// StatusErrRetry is a transient failure; the caller may re-issue at once.
	StatusErrRetry Status = 4

	// StatusErrWait is a precondition that is not yet satisfied; the caller
	// should re-issue later.
	StatusErrWait Status = 5

	// StatusErrNext means this target cannot be observed; pick another.
	StatusErrNext Status = 6

	// StatusErrCrit means hardware is at risk; the observatory is closed.
	StatusErrCrit Status = 7
)

// Severity returns the rank of s on the escalation ladder.
// StatusDeferred and unknown values rank below Good.
func (s Status) Severity() int {
	switch s {
	case StatusGood:
		return 0
	case StatusCancel, StatusComplete:
		return 1
	case StatusErrRetry:
		return 2
	case StatusErrWait:
		return 3
	case StatusErrNext:
		return 4
	case StatusErrCrit:
		return 5
	default:
		return -1
	}
}

// IsError reports whether s is one of the Err* statuses.
func (s Status) IsError() bool {
	return s.Severity() >= StatusErrRetry.Severity()
}

// Worst returns whichever of a and b is more severe. Ties keep a, so the
// first of Cancel/Complete seen is preserved.
func Worst(a, b Status) Status {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// String returns the conventional name of the status.
func (s Status) String() string {
	switch s {
	case StatusDeferred:
		return "deferred"
	case StatusGood:
		return "good"
	case StatusCancel:
		return "cancel"
	case StatusComplete:
		return "complete"
	case StatusErrRetry:
		return "err_retry"
	case StatusErrWait:
		return "err_wait"
	case StatusErrNext:
		return "err_next"
	case StatusErrCrit:
		return "err_crit"
	default:
		return "unknown"
	}
}

// ParseStatus parses a name returned by String.
func ParseStatus(name string) (Status, error) {
	for s := StatusDeferred; s <= StatusErrCrit; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

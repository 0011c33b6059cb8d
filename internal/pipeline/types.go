package pipeline

import (
	"time"

	"github.com/nerrad567/dti-core/internal/device"
	"github.com/nerrad567/dti-core/internal/protocol"
)

// StageResult is the outcome of one stage of a sequential pipeline.
type StageResult struct {
	Device device.ID       `json:"device"`
	Status protocol.Status `json:"status"`
}

// Run is the record of one finished pipeline.
type Run struct {
	ID         string          `json:"id"`
	Kind       protocol.Kind   `json:"kind"`
	Forced     bool            `json:"forced"`
	Target     string          `json:"target,omitempty"`
	Status     protocol.Status `json:"status"`
	Stage      uint8           `json:"stage"`
	Stages     []StageResult   `json:"stages,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Reason     string          `json:"reason,omitempty"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Severity of a diagnostic event.
type Severity string

// Diagnostic severities.
const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Diagnostic is an operator-facing event such as an ErrCrit.
type Diagnostic struct {
	Time     time.Time       `json:"time"`
	Severity Severity        `json:"severity"`
	Device   string          `json:"device,omitempty"`
	Status   protocol.Status `json:"status"`
	Reason   string          `json:"reason"`
	RunID    string          `json:"run_id,omitempty"`
}

// Responder carries replies and pushes to the scheduler. Send must not block.
type Responder interface {
	Send(msg *protocol.Message) error
}

// Hooks observe the orchestrator. They are called on the reactor goroutine
// and must not block; implementations hand I/O to their own goroutines.
type Hooks interface {
	// RunFinished is called once per pipeline that ends.
	RunFinished(r Run)

	// Diagnostic is called for every escalation worth an operator's attention.
	Diagnostic(d Diagnostic)

	// UnsafeChanged is called when the latch is set or cleared.
	UnsafeChanged(unsafe bool, reason string)

	// DevicesUpdated is called after a hardware status change with fresh
	// snapshots of every device on that subsystem.
	DevicesUpdated(snaps []device.Snapshot)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopHooks struct{}

func (noopHooks) RunFinished(Run)                  {}
func (noopHooks) Diagnostic(Diagnostic)            {}
func (noopHooks) UnsafeChanged(bool, string)       {}
func (noopHooks) DevicesUpdated([]device.Snapshot) {}

type noopResponder struct{}

func (noopResponder) Send(*protocol.Message) error { return nil }

package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/dti-core/internal/device"
	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/dti-core/internal/pipeline"
)

const (
	defaultQueueSize = 256

	// drainTimeout bounds how long Run keeps writing queued events after
	// its context is cancelled.
	drainTimeout = 5 * time.Second

	// defaultRetryInterval is how often an unsaved latch change is retried.
	defaultRetryInterval = time.Second
)

// Journal is the persistent record of runs, diagnostics and the latch.
type Journal interface {
	RecordRun(ctx context.Context, r pipeline.Run) error
	RecordDiagnostic(ctx context.Context, d pipeline.Diagnostic) error
	SetUnsafe(ctx context.Context, unsafe bool, reason string) error
}

// Publisher publishes JSON payloads to the status bus.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Metrics writes time-series points.
type Metrics interface {
	WriteDeviceState(deviceID, state string, flags uint32, values map[string]float64, at time.Time)
	WriteRun(kind, status string, forced bool, stage int, duration time.Duration, at time.Time)
	WriteDiagnostic(severity, deviceID, status string, at time.Time)
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

// DeviceState is the retained payload of dti/device/{id}/state.
type DeviceState struct {
	Device  string             `json:"device"`
	State   string             `json:"state"`
	Goal    string             `json:"goal"`
	Current string             `json:"current"`
	Flags   hardware.Flags     `json:"flags"`
	Pending bool               `json:"pending"`
	Values  map[string]float64 `json:"values,omitempty"`
	Time    time.Time          `json:"time"`
}

// UnsafeState is the retained payload of dti/system/unsafe.
type UnsafeState struct {
	Unsafe bool      `json:"unsafe"`
	Reason string    `json:"reason,omitempty"`
	Time   time.Time `json:"time"`
}

// Stats reports recorder counters.
type Stats struct {
	Handled uint64
	Dropped uint64
	Errors  uint64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithJournal sets the SQLite journal.
func WithJournal(j Journal) Option {
	return func(r *Recorder) { r.journal = j }
}

// WithPublisher sets the MQTT publisher.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.pub = p }
}

// WithMetrics sets the InfluxDB writer.
func WithMetrics(m Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithQueueSize sets how many events may wait for the worker.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithRetryInterval sets how often an unsaved latch change is retried.
func WithRetryInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.retryInterval = d
		}
	}
}

// WithClock sets the time source used to stamp device state.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// Recorder fans orchestrator events out to the journal, MQTT and InfluxDB.
// Any sink may be absent.
//
// Events go through a bounded queue and are dropped when it is full. Unsafe
// latch changes are the exception: they are kept in order until the journal
// has accepted them, retrying every retry interval.
//
// Thread Safety:
//   - The pipeline.Hooks methods never block and may be called from any goroutine.
//   - Run must be called exactly once.
type Recorder struct {
	journal Journal
	pub     Publisher
	metrics Metrics
	logger  Logger
	now     func() time.Time

	queueSize int
	events    chan func(ctx context.Context)

	retryInterval time.Duration
	latchMu       sync.Mutex
	latches       []latchWrite
	latchReady    chan struct{}

	handled atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64
}

// latchWrite is a latch change waiting to be journalled.
type latchWrite struct {
	state     UnsafeState
	published bool
}

var _ pipeline.Hooks = (*Recorder)(nil)

// New creates a Recorder. Nothing is written until Run starts.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		logger:        noopLogger{},
		now:           time.Now,
		queueSize:     defaultQueueSize,
		retryInterval: defaultRetryInterval,
		latchReady:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.events = make(chan func(ctx context.Context), r.queueSize)
	return r
}

// Run writes queued events until ctx is cancelled, then drains what is
// left for up to five seconds.
//
// Returns:
//   - error: Always nil; write failures are logged and counted
func (r *Recorder) Run(ctx context.Context) error {
	retry := time.NewTicker(r.retryInterval)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case <-r.latchReady:
			r.flushLatches(ctx)
		case <-retry.C:
			r.flushLatches(ctx)
		case ev := <-r.events:
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	r.flushLatches(ctx)
	for {
		select {
		case ev := <-r.events:
			r.handle(ctx, ev)
		default:
			if n := r.pendingLatches(); n > 0 {
				r.logger.Error("unsafe latch changes not journalled at shutdown", "pending", n)
			}
			return
		}
	}
}

// flushLatches journals pending latch changes oldest first. It stops at the
// first failure; the change stays queued for the next attempt.
func (r *Recorder) flushLatches(ctx context.Context) {
	for {
		r.latchMu.Lock()
		if len(r.latches) == 0 {
			r.latchMu.Unlock()
			return
		}
		w := r.latches[0]
		r.latches[0].published = true
		r.latchMu.Unlock()

		saved := r.journal == nil
		r.handle(ctx, func(ctx context.Context) {
			if r.journal != nil {
				err := r.journal.SetUnsafe(ctx, w.state.Unsafe, w.state.Reason)
				r.check("journal unsafe latch", err)
				saved = err == nil
			}
			if !w.published && r.pub != nil {
				r.check("publish unsafe latch", r.pub.PublishJSON(mqtt.Topics{}.Unsafe(), w.state, true))
			}
		})
		if !saved {
			r.logger.Warn("unsafe latch not journalled, will retry",
				"unsafe", w.state.Unsafe, "retry_in", r.retryInterval.String())
			return
		}

		r.latchMu.Lock()
		r.latches = r.latches[1:]
		r.latchMu.Unlock()
	}
}

func (r *Recorder) pendingLatches() int {
	r.latchMu.Lock()
	defer r.latchMu.Unlock()
	return len(r.latches)
}

func (r *Recorder) handle(ctx context.Context, ev func(ctx context.Context)) {
	defer func() {
		if p := recover(); p != nil {
			r.errors.Add(1)
			r.logger.Error("telemetry event panic recovered", "panic", p)
		}
	}()
	ev(ctx)
	r.handled.Add(1)
}

// enqueue hands ev to the worker without blocking.
func (r *Recorder) enqueue(what string, ev func(ctx context.Context)) {
	select {
	case r.events <- ev:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.logger.Warn("telemetry queue full, dropping events", "event", what, "dropped", r.dropped.Load())
		}
	}
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Handled: r.handled.Load(),
		Dropped: r.dropped.Load(),
		Errors:  r.errors.Load(),
	}
}

// RunFinished journals the run, publishes it and writes a point.
func (r *Recorder) RunFinished(run pipeline.Run) {
	r.enqueue("run", func(ctx context.Context) {
		if r.journal != nil {
			r.check("journal run", r.journal.RecordRun(ctx, run))
		}
		if r.pub != nil {
			r.check("publish run", r.pub.PublishJSON(mqtt.Topics{}.PipelineRun(run.Kind.String()), run, false))
		}
		if r.metrics != nil {
			r.metrics.WriteRun(run.Kind.String(), run.Status.String(), run.Forced, int(run.Stage),
				run.Duration(), run.FinishedAt)
		}
	})
}

// Diagnostic logs the event and sends it to every sink.
func (r *Recorder) Diagnostic(d pipeline.Diagnostic) {
	args := []any{
		"severity", string(d.Severity),
		"device", d.Device,
		"status", d.Status.String(),
		"reason", d.Reason,
		"run_id", d.RunID,
	}
	if d.Severity == pipeline.SeverityCritical {
		r.logger.Error("diagnostic", args...)
	} else {
		r.logger.Warn("diagnostic", args...)
	}

	r.enqueue("diagnostic", func(ctx context.Context) {
		if r.journal != nil {
			r.check("journal diagnostic", r.journal.RecordDiagnostic(ctx, d))
		}
		if r.pub != nil {
			r.check("publish alert", r.pub.PublishJSON(mqtt.Topics{}.Alerts(), d, false))
		}
		if r.metrics != nil {
			r.metrics.WriteDiagnostic(string(d.Severity), d.Device, d.Status.String(), d.Time)
		}
	})
}

// UnsafeChanged persists the latch and publishes it retained. Latch changes
// are never dropped.
func (r *Recorder) UnsafeChanged(unsafe bool, reason string) {
	state := UnsafeState{Unsafe: unsafe, Reason: reason, Time: r.now()}

	r.latchMu.Lock()
	r.latches = append(r.latches, latchWrite{state: state})
	r.latchMu.Unlock()

	select {
	case r.latchReady <- struct{}{}:
	default:
	}
}

// DevicesUpdated publishes each snapshot retained and writes a point per device.
func (r *Recorder) DevicesUpdated(snaps []device.Snapshot) {
	if r.pub == nil && r.metrics == nil {
		return
	}
	at := r.now()
	states := make([]DeviceState, len(snaps))
	for i, s := range snaps {
		states[i] = DeviceState{
			Device:  s.Device.String(),
			State:   s.State.String(),
			Goal:    s.Goal,
			Current: s.Current,
			Flags:   s.Flags,
			Pending: s.Pending,
			Values:  s.Values,
			Time:    at,
		}
	}

	r.enqueue("devices", func(context.Context) {
		for _, st := range states {
			if r.pub != nil {
				r.check("publish device state", r.pub.PublishJSON(mqtt.Topics{}.DeviceState(st.Device), st, true))
			}
			if r.metrics != nil {
				r.metrics.WriteDeviceState(st.Device, st.State, uint32(st.Flags), st.Values, st.Time)
			}
		}
	})
}

func (r *Recorder) check(what string, err error) {
	if err != nil {
		r.errors.Add(1)
		r.logger.Debug("telemetry write failed", "what", what, "error", err)
	}
}

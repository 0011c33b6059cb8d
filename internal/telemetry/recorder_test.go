package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/dti-core/internal/device"
	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/pipeline"
	"github.com/nerrad567/dti-core/internal/protocol"
)

type published struct {
	topic    string
	v        any
	retained bool
}

type mockPublisher struct {
	mu    sync.Mutex
	msgs  []published
	err   error
	panic bool
}

func (p *mockPublisher) PublishJSON(topic string, v any, retained bool) error {
	if p.panic {
		panic("broker gone")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, v, retained})
	return p.err
}

type mockJournal struct {
	mu     sync.Mutex
	runs   []pipeline.Run
	diags  []pipeline.Diagnostic
	unsafe []bool
	err    error

	// failUnsafe makes the next n latch writes fail.
	failUnsafe int
}

func (j *mockJournal) RecordRun(_ context.Context, r pipeline.Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, r)
	return j.err
}

func (j *mockJournal) RecordDiagnostic(_ context.Context, d pipeline.Diagnostic) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.diags = append(j.diags, d)
	return j.err
}

func (j *mockJournal) SetUnsafe(_ context.Context, unsafe bool, _ string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.unsafe = append(j.unsafe, unsafe)
	if j.failUnsafe > 0 {
		j.failUnsafe--
		return errors.New("database is locked")
	}
	return j.err
}

func (j *mockJournal) latchWrites() []bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]bool(nil), j.unsafe...)
}

type mockMetrics struct {
	mu      sync.Mutex
	devices []string
	runs    []string
	diags   []string
}

func (m *mockMetrics) WriteDeviceState(deviceID, state string, _ uint32, _ map[string]float64, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append(m.devices, deviceID+"/"+state)
}

func (m *mockMetrics) WriteRun(kind, status string, _ bool, _ int, _ time.Duration, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, kind+"/"+status)
}

func (m *mockMetrics) WriteDiagnostic(severity, _ string, status string, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diags = append(m.diags, severity+"/"+status)
}

type mockLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *mockLogger) Debug(string, ...any) {}
func (l *mockLogger) Info(string, ...any)  {}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

// runToCompletion starts the worker, lets fn enqueue events, then cancels
// and waits for the drain so every queued event has been handled.
func runToCompletion(t *testing.T, r *Recorder, fn func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx) //nolint:errcheck // always nil
		close(done)
	}()

	fn()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

var testTime = time.Date(2026, 10, 19, 22, 0, 0, 0, time.UTC)

func TestRecorderRunFinished(t *testing.T) {
	j, p, m := &mockJournal{}, &mockPublisher{}, &mockMetrics{}
	r := New(WithJournal(j), WithPublisher(p), WithMetrics(m))

	run := pipeline.Run{
		ID:         "run-1",
		Kind:       protocol.KindTargetSet,
		Status:     protocol.StatusGood,
		Stage:      8,
		StartedAt:  testTime,
		FinishedAt: testTime.Add(time.Minute),
	}
	runToCompletion(t, r, func() { r.RunFinished(run) })

	if len(j.runs) != 1 || j.runs[0].ID != "run-1" {
		t.Errorf("journal runs = %+v", j.runs)
	}
	if len(p.msgs) != 1 || p.msgs[0].topic != "dti/pipeline/target_set" || p.msgs[0].retained {
		t.Errorf("published = %+v", p.msgs)
	}
	if len(m.runs) != 1 || m.runs[0] != "target_set/good" {
		t.Errorf("metrics runs = %v", m.runs)
	}
	if st := r.Stats(); st.Handled != 1 || st.Errors != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestRecorderDiagnostic(t *testing.T) {
	tests := []struct {
		name      string
		severity  pipeline.Severity
		wantError int
		wantWarn  int
	}{
		{"critical logs at error", pipeline.SeverityCritical, 1, 0},
		{"warning logs at warn", pipeline.SeverityWarning, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, p, m, l := &mockJournal{}, &mockPublisher{}, &mockMetrics{}, &mockLogger{}
			r := New(WithJournal(j), WithPublisher(p), WithMetrics(m), WithLogger(l))

			d := pipeline.Diagnostic{
				Time:     testTime,
				Severity: tt.severity,
				Device:   device.DomeShutterID.String(),
				Status:   protocol.StatusErrCrit,
				Reason:   "fail-timeout reaching open",
			}
			runToCompletion(t, r, func() { r.Diagnostic(d) })

			if len(l.errors) != tt.wantError || len(l.warns) != tt.wantWarn {
				t.Errorf("errors/warns = %d/%d, want %d/%d", len(l.errors), len(l.warns), tt.wantError, tt.wantWarn)
			}
			if len(j.diags) != 1 {
				t.Errorf("journal diagnostics = %d, want 1", len(j.diags))
			}
			if len(p.msgs) != 1 || p.msgs[0].topic != "dti/alerts" {
				t.Errorf("published = %+v", p.msgs)
			}
			if len(m.diags) != 1 || m.diags[0] != string(tt.severity)+"/err_crit" {
				t.Errorf("metrics diagnostics = %v", m.diags)
			}
		})
	}
}

func TestRecorderUnsafeChanged(t *testing.T) {
	j, p := &mockJournal{}, &mockPublisher{}
	r := New(WithJournal(j), WithPublisher(p), WithClock(func() time.Time { return testTime }))

	runToCompletion(t, r, func() {
		r.UnsafeChanged(true, "dropout fault")
		r.UnsafeChanged(false, "")
	})

	if len(j.unsafe) != 2 || !j.unsafe[0] || j.unsafe[1] {
		t.Errorf("journal latch writes = %v, want [true false]", j.unsafe)
	}
	if len(p.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(p.msgs))
	}
	first, ok := p.msgs[0].v.(UnsafeState)
	if !ok || !first.Unsafe || first.Reason != "dropout fault" || !first.Time.Equal(testTime) {
		t.Errorf("first latch payload = %+v", p.msgs[0].v)
	}
	if p.msgs[0].topic != "dti/system/unsafe" || !p.msgs[0].retained {
		t.Errorf("latch topic/retained = %s/%v", p.msgs[0].topic, p.msgs[0].retained)
	}
}

func TestRecorderDevicesUpdated(t *testing.T) {
	p, m := &mockPublisher{}, &mockMetrics{}
	r := New(WithPublisher(p), WithMetrics(m), WithClock(func() time.Time { return testTime }))

	snaps := []device.Snapshot{
		{Device: device.DomeRotationID, State: device.StateMoving, Goal: "180.0", Current: "90.0",
			Flags: hardware.Flags(0x1), Values: map[string]float64{"azimuth": 90}},
		{Device: device.DomeShutterID, State: device.StateAtGoal, Goal: "open", Current: "open"},
	}
	runToCompletion(t, r, func() { r.DevicesUpdated(snaps) })

	if len(p.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(p.msgs))
	}
	if p.msgs[0].topic != "dti/device/dome_rotation/state" || !p.msgs[0].retained {
		t.Errorf("first state topic/retained = %s/%v", p.msgs[0].topic, p.msgs[0].retained)
	}
	st, ok := p.msgs[0].v.(DeviceState)
	if !ok || st.State != "moving" || st.Values["azimuth"] != 90 || !st.Time.Equal(testTime) {
		t.Errorf("first state payload = %+v", p.msgs[0].v)
	}
	if len(m.devices) != 2 || m.devices[1] != "dome_shutter/at_goal" {
		t.Errorf("metrics devices = %v", m.devices)
	}
}

func TestRecorderWithoutSinks(t *testing.T) {
	r := New()
	runToCompletion(t, r, func() {
		r.RunFinished(pipeline.Run{ID: "x"})
		r.Diagnostic(pipeline.Diagnostic{Severity: pipeline.SeverityWarning})
		r.UnsafeChanged(true, "x")
		r.DevicesUpdated([]device.Snapshot{{Device: device.FocusEHTID}})
	})

	// Device updates are skipped outright when nothing would consume them.
	if st := r.Stats(); st.Handled != 3 {
		t.Errorf("Handled = %d, want 3", st.Handled)
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	l := &mockLogger{}
	r := New(WithQueueSize(1), WithLogger(l), WithJournal(&mockJournal{}))

	for range 3 {
		r.RunFinished(pipeline.Run{ID: "x"})
	}

	if st := r.Stats(); st.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", st.Dropped)
	}
	if len(l.warns) != 1 {
		t.Errorf("logged %d warnings, want 1 for the first drop", len(l.warns))
	}
}

func TestRecorderCountsFailures(t *testing.T) {
	j := &mockJournal{err: errors.New("disk full")}
	p := &mockPublisher{panic: true}
	r := New(WithJournal(j), WithPublisher(p))

	runToCompletion(t, r, func() {
		r.Diagnostic(pipeline.Diagnostic{Severity: pipeline.SeverityWarning})
		r.RunFinished(pipeline.Run{ID: "y"})
	})

	// Each event fails its journal write, then the publisher panics.
	st := r.Stats()
	if st.Errors != 4 {
		t.Errorf("Errors = %d, want 4", st.Errors)
	}
	if st.Handled != 0 {
		t.Errorf("Handled = %d, want 0", st.Handled)
	}
	if len(j.runs) != 1 || len(j.diags) != 1 {
		t.Error("journal writes were not attempted before the panic")
	}
}

func TestRecorderLatchSurvivesFullQueue(t *testing.T) {
	j, m := &mockJournal{}, &mockMetrics{}
	r := New(WithJournal(j), WithMetrics(m), WithQueueSize(2))

	snaps := []device.Snapshot{{Device: device.DomeShutterID, State: device.StateMoving}}
	for range 5 {
		r.DevicesUpdated(snaps)
	}
	r.UnsafeChanged(true, "dropout fault")

	if st := r.Stats(); st.Dropped != 3 {
		t.Fatalf("Dropped = %d, want 3 device updates", st.Dropped)
	}

	runToCompletion(t, r, func() {})

	if got := j.latchWrites(); len(got) != 1 || !got[0] {
		t.Errorf("journal latch writes = %v, want [true]", got)
	}
	if len(m.devices) != 2 {
		t.Errorf("metrics devices = %d, want the 2 queued updates", len(m.devices))
	}
}

func TestRecorderLatchOrderUnderFullQueue(t *testing.T) {
	j := &mockJournal{}
	r := New(WithJournal(j), WithQueueSize(1))

	r.RunFinished(pipeline.Run{ID: "a"})
	r.UnsafeChanged(true, "dropout fault")
	r.RunFinished(pipeline.Run{ID: "b"})
	r.UnsafeChanged(false, "")

	runToCompletion(t, r, func() {})

	if got := j.latchWrites(); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("journal latch writes = %v, want [true false]", got)
	}
	if st := r.Stats(); st.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1 run", st.Dropped)
	}
}

func TestRecorderRetriesUnsavedLatch(t *testing.T) {
	j := &mockJournal{failUnsafe: 2}
	p := &mockPublisher{}
	r := New(WithJournal(j), WithPublisher(p), WithRetryInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx) //nolint:errcheck // always nil
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	r.UnsafeChanged(true, "dropout fault")

	deadline := time.Now().Add(5 * time.Second)
	for len(j.latchWrites()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("latch writes = %v, want a third attempt", j.latchWrites())
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Give a fourth write the chance to show up if the latch were still pending.
	time.Sleep(50 * time.Millisecond)

	if got := j.latchWrites(); len(got) != 3 {
		t.Errorf("latch writes = %v, want exactly 3 attempts", got)
	}
	if st := r.Stats(); st.Errors != 2 {
		t.Errorf("Errors = %d, want 2", st.Errors)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) != 1 {
		t.Errorf("published %d latch messages, want 1", len(p.msgs))
	}
}

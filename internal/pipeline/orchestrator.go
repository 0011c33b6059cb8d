package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/dti-core/internal/device"
	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
	"github.com/nerrad567/dti-core/internal/reactor"
)

// run is one pipeline in flight.
type run struct {
	id     string
	msg    *protocol.Message
	kind   protocol.Kind
	seq    []device.ID
	forced bool

	// waiting is set while the device at seq[msg.Stage] holds the message.
	waiting bool

	stages  []StageResult
	started time.Time
}

// Orchestrator drives messages through the device controllers.
//
// Thread Safety: none. Every method must be called on the reactor goroutine.
type Orchestrator struct {
	sched  reactor.Scheduler
	set    *device.Set
	out    Responder
	hooks  Hooks
	logger Logger

	// active holds the pipeline in flight for each kind. The forced closure
	// is tracked separately.
	active  map[protocol.Kind]*run
	closure *run

	unsafe bool
	reason string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for the orchestrator and every controller.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithResponder sets where replies and status pushes go.
func WithResponder(r Responder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.out = r
		}
	}
}

// WithHooks sets the observer for runs, diagnostics and telemetry.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.hooks = h
		}
	}
}

// WithUnsafe starts the orchestrator latched unsafe, for a latch persisted
// by a previous process.
func WithUnsafe(reason string) Option {
	return func(o *Orchestrator) {
		o.unsafe = true
		o.reason = reason
	}
}

// New builds the nine controllers on the two drivers and an orchestrator
// that receives their completions.
//
// Parameters:
//   - sched: The reactor every controller and the orchestrator run on
//   - dome: Driver for the dome controller
//   - telescope: Driver for the telescope controller
//   - cfg: Device timing, limits, site and capability tables
//   - opts: Logger, responder, hooks and initial latch
//
// Returns:
//   - *Orchestrator: Ready to accept messages
//   - error: If the device set cannot be built
func New(sched reactor.Scheduler, dome, telescope hardware.Driver, cfg device.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		sched:  sched,
		out:    noopResponder{},
		hooks:  noopHooks{},
		logger: noopLogger{},
		active: make(map[protocol.Kind]*run),
	}
	for _, opt := range opts {
		opt(o)
	}

	set, err := device.NewSet(device.Env{Scheduler: sched, Sink: o, Logger: o.logger}, dome, telescope, cfg)
	if err != nil {
		return nil, fmt.Errorf("building devices: %w", err)
	}
	o.set = set
	return o, nil
}

// Devices returns the controller set.
func (o *Orchestrator) Devices() *device.Set { return o.set }

// Unsafe reports whether the latch is set, and why.
func (o *Orchestrator) Unsafe() (bool, string) { return o.unsafe, o.reason }

// ClosureActive reports whether the forced closure is running.
func (o *Orchestrator) ClosureActive() bool { return o.closure != nil }

// InFlight reports whether a pipeline of kind k is running.
func (o *Orchestrator) InFlight(k protocol.Kind) bool {
	_, ok := o.active[k]
	return ok
}

// Submit starts a pipeline for msg.
//
// A message re-issued after ErrRetry or ErrWait resumes at its Stage.
// Replies go through the Responder; the returned status is the same one,
// or StatusDeferred while the pipeline is still running.
func (o *Orchestrator) Submit(msg *protocol.Message) protocol.Status {
	kind := msg.Kind()
	if !kind.Valid() {
		o.logger.Warn("message without payload dropped")
		return protocol.StatusErrNext
	}

	if o.InFlight(kind) {
		o.logger.Info("pipeline already in flight, rejecting", "kind", kind.String())
		return o.reject(msg, protocol.StatusErrWait)
	}

	seq := Sequence(kind)
	if seq == nil {
		return o.fanOut(msg)
	}

	if o.unsafe && observing(kind) {
		o.logger.Warn("observatory unsafe, refusing pipeline", "kind", kind.String(), "reason", o.reason)
		return o.reject(msg, protocol.StatusErrCrit)
	}
	if o.closure != nil {
		o.logger.Info("forced closure running, refusing pipeline", "kind", kind.String())
		return o.reject(msg, protocol.StatusErrWait)
	}

	if int(msg.Stage) >= len(seq) {
		msg.Stage = 0
	}
	if msg.Stage > 0 {
		o.logger.Debug("resuming pipeline", "kind", kind.String(), "stage", msg.Stage)
	}
	return o.step(o.begin(msg, seq, false))
}

// Complete implements device.Sink. Completions arrive on a later step of
// the reactor turn, never from inside ProcessMessage.
func (o *Orchestrator) Complete(c device.Completion) {
	if c.Msg == nil {
		if c.Status == protocol.StatusErrCrit {
			o.escalate(c.Device.String(), c.Reason, "")
		}
		return
	}

	r := o.lookup(c.Msg)
	if r == nil {
		o.logger.Debug("completion for released message ignored",
			"device", c.Device.String(), "status", c.Status.String())
		if c.Status == protocol.StatusErrCrit {
			o.escalate(c.Device.String(), c.Reason, "")
		}
		return
	}

	if r.seq == nil {
		o.fanIn(r, c)
		return
	}

	if !r.waiting || r.seq[r.msg.Stage] != c.Device {
		o.logger.Warn("unexpected completion",
			"device", c.Device.String(), "kind", r.kind.String(), "stage", r.msg.Stage)
		if c.Status == protocol.StatusErrCrit {
			o.escalate(c.Device.String(), c.Reason, r.id)
		}
		return
	}

	r.waiting = false
	if o.stageDone(r, c.Device, c.Status, c.Reason) {
		o.step(r)
	}
}

// HardwareUpdate routes a status record to the controllers on sub.
func (o *Orchestrator) HardwareUpdate(sub hardware.Subsystem, st hardware.Status) {
	o.set.Update(sub, st)

	snaps := make([]device.Snapshot, 0, len(device.All))
	for _, c := range o.set.All() {
		if c.Subsystem() == sub {
			snaps = append(snaps, c.Snapshot())
		}
	}
	o.hooks.DevicesUpdated(snaps)
}

// ClearUnsafe releases the unsafe latch and pushes a fresh status report.
//
// Returns:
//   - error: ErrClosureRunning while the forced closure runs, ErrNotUnsafe
//     if nothing is latched
func (o *Orchestrator) ClearUnsafe() error {
	if o.closure != nil {
		return ErrClosureRunning
	}
	if !o.unsafe {
		return ErrNotUnsafe
	}

	o.logger.Info("unsafe latch cleared", "was", o.reason)
	o.unsafe = false
	o.reason = ""
	o.hooks.UnsafeChanged(false, "")
	o.pushStatus()
	return nil
}

// Report builds a StatusReport from the current device snapshots.
func (o *Orchestrator) Report() *protocol.StatusReport {
	rep := &protocol.StatusReport{Unsafe: o.unsafe}
	for _, s := range o.set.Snapshots() {
		rep.Devices[s.Device] = s.Report()
	}
	return rep
}

func (o *Orchestrator) begin(msg *protocol.Message, seq []device.ID, forced bool) *run {
	msg.Status = protocol.StatusGood
	msg.Pending = 0

	r := &run{
		id:      uuid.NewString(),
		msg:     msg,
		kind:    msg.Kind(),
		seq:     seq,
		forced:  forced,
		started: o.sched.Now(),
	}
	if forced {
		o.closure = r
	} else {
		o.active[r.kind] = r
	}
	return r
}

func (o *Orchestrator) lookup(msg *protocol.Message) *run {
	if o.closure != nil && o.closure.msg == msg {
		return o.closure
	}
	for _, r := range o.active {
		if r.msg == msg {
			return r
		}
	}
	return nil
}

// step dispatches to the device at the current stage until one defers or
// the pipeline ends.
func (o *Orchestrator) step(r *run) protocol.Status {
	for int(r.msg.Stage) < len(r.seq) {
		id := r.seq[r.msg.Stage]
		o.logger.Debug("stage dispatched", "kind", r.kind.String(), "stage", r.msg.Stage, "device", id.String())

		st := o.set.Get(id).ProcessMessage(r.msg)
		if st == protocol.StatusDeferred {
			r.waiting = true
			return st
		}
		if !o.stageDone(r, id, st, "") {
			return st
		}
	}

	o.finish(r, r.msg.Status, "")
	return r.msg.Status
}

// stageDone applies one stage outcome. It returns true when the pipeline
// should move on to the next stage.
func (o *Orchestrator) stageDone(r *run, id device.ID, st protocol.Status, reason string) bool {
	r.stages = append(r.stages, StageResult{Device: id, Status: st})

	if r.forced {
		if st != protocol.StatusGood {
			o.logger.Warn("forced closure stage failed, continuing",
				"device", id.String(), "status", st.String(), "reason", reason)
			sev := SeverityWarning
			if st == protocol.StatusErrCrit {
				sev = SeverityCritical
			}
			o.diagnose(sev, id.String(), st, orDefault(reason, "forced closure stage failed"), r.id)
		}
		r.msg.Status = protocol.Worst(r.msg.Status, st)
		r.msg.Stage++
		return true
	}

	switch st {
	case protocol.StatusGood:
		r.msg.Stage++
		return true
	case protocol.StatusErrCrit:
		o.finish(r, st, reason)
		o.escalate(id.String(), reason, r.id)
	default:
		// ErrRetry and ErrWait keep Stage so a re-issue resumes here.
		o.finish(r, st, reason)
	}
	return false
}

// fanOut delivers msg to every controller at once.
func (o *Orchestrator) fanOut(msg *protocol.Message) protocol.Status {
	r := o.begin(msg, nil, false)

	var crit []string
	for _, c := range o.set.All() {
		switch st := c.ProcessMessage(msg); st {
		case protocol.StatusDeferred:
			msg.Pending++
		case protocol.StatusErrCrit:
			crit = append(crit, c.ID().String())
			msg.Status = protocol.Worst(msg.Status, st)
		default:
			msg.Status = protocol.Worst(msg.Status, st)
		}
	}

	if len(crit) > 0 {
		o.escalate(crit[0], fmt.Sprintf("%s refused %s", crit[0], r.kind), r.id)
		o.abort(r)
		return protocol.StatusErrCrit
	}
	if msg.Pending > 0 {
		return protocol.StatusDeferred
	}

	o.finish(r, msg.Status, "")
	return msg.Status
}

func (o *Orchestrator) fanIn(r *run, c device.Completion) {
	r.msg.Pending--
	r.msg.Status = protocol.Worst(r.msg.Status, c.Status)

	if c.Status == protocol.StatusErrCrit {
		o.escalate(c.Device.String(), c.Reason, r.id)
		o.abort(r)
		return
	}
	if r.msg.Pending <= 0 {
		o.finish(r, r.msg.Status, "")
	}
}

// finish releases the pipeline slot, records the run and replies.
func (o *Orchestrator) finish(r *run, st protocol.Status, reason string) {
	r.waiting = false
	r.msg.Status = st
	if r.forced {
		o.closure = nil
	} else {
		delete(o.active, r.kind)
	}

	if rep, ok := r.msg.Payload.(*protocol.StatusReport); ok {
		*rep = *o.Report()
	}

	rec := Run{
		ID:         r.id,
		Kind:       r.kind,
		Forced:     r.forced,
		Status:     st,
		Stage:      r.msg.Stage,
		Stages:     r.stages,
		StartedAt:  r.started,
		FinishedAt: o.sched.Now(),
		Reason:     reason,
	}
	if t, ok := r.msg.Target(); ok {
		rec.Target = t.Name
	}
	o.hooks.RunFinished(rec)

	o.logger.Info("pipeline finished",
		"run_id", r.id,
		"kind", r.kind.String(),
		"status", st.String(),
		"stage", r.msg.Stage,
		"duration", rec.Duration().String(),
	)

	switch {
	case r.forced:
		o.logger.Warn("forced closure complete", "status", st.String())
		o.pushStatus()
	case r.seq != nil || replies(r.kind):
		o.send(r.msg)
	}
}

// abort ends r with ErrCrit if escalation left it running, which happens
// when the forced closure was already under way.
func (o *Orchestrator) abort(r *run) {
	if o.active[r.kind] == r {
		o.finish(r, protocol.StatusErrCrit, "aborted during forced closure")
	}
}

// escalate handles ErrCrit: latch unsafe, abort everything in flight and
// start the forced closure unless it is already running.
func (o *Orchestrator) escalate(dev, reason, runID string) {
	reason = orDefault(reason, "critical status from "+dev)
	o.diagnose(SeverityCritical, dev, protocol.StatusErrCrit, reason, runID)
	o.latch(reason)

	if o.closure != nil {
		o.logger.Warn("critical status during forced closure, not restarting", "device", dev, "reason", reason)
		return
	}

	for _, k := range protocol.Kinds {
		if r, ok := o.active[k]; ok {
			o.finish(r, protocol.StatusErrCrit, "aborted: "+reason)
		}
	}
	o.set.AbandonAll()

	o.logger.Error("forced closure started", "device", dev, "reason", reason, "severity", string(SeverityCritical))
	msg := protocol.New(&protocol.Quit{Auto: true, Forced: true, Reason: reason})
	o.step(o.begin(msg, forcedClosureSequence, true))
}

func (o *Orchestrator) latch(reason string) {
	if o.unsafe {
		return
	}
	o.unsafe = true
	o.reason = reason
	o.hooks.UnsafeChanged(true, reason)
}

func (o *Orchestrator) diagnose(sev Severity, dev string, st protocol.Status, reason, runID string) {
	o.hooks.Diagnostic(Diagnostic{
		Time:     o.sched.Now(),
		Severity: sev,
		Device:   dev,
		Status:   st,
		Reason:   reason,
		RunID:    runID,
	})
}

// reject answers msg without starting a pipeline.
func (o *Orchestrator) reject(msg *protocol.Message, st protocol.Status) protocol.Status {
	msg.Status = st
	o.send(msg)
	return st
}

func (o *Orchestrator) pushStatus() {
	msg := protocol.New(o.Report())
	msg.Status = protocol.StatusGood
	o.send(msg)
}

func (o *Orchestrator) send(msg *protocol.Message) {
	if err := o.out.Send(msg); err != nil {
		o.logger.Warn("reply not sent", "kind", msg.Kind().String(), "status", msg.Status.String(), "error", err)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

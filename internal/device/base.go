package device

import (
	"time"

	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
	"github.com/nerrad567/dti-core/internal/reactor"
)

// base carries what every controller shares: the pending message, the
// fail-timeout and the coarse state.
type base struct {
	id          ID
	drv         hardware.Driver
	env         Env
	failTimeout time.Duration

	// critical devices escalate an elapsed fail-timeout to ErrCrit.
	critical bool

	state   State
	flags   hardware.Flags
	goal    string
	timer   *reactor.Timer
	pending *protocol.Message
}

func newBase(id ID, env Env, drv hardware.Driver, failTimeout time.Duration, critical bool) base {
	return base{
		id:          id,
		drv:         drv,
		env:         env,
		failTimeout: failTimeout,
		critical:    critical,
	}
}

// ID implements Controller.
func (b *base) ID() ID { return b.id }

// Subsystem implements Controller.
func (b *base) Subsystem() hardware.Subsystem { return b.drv.Subsystem() }

// State returns the coarse controller state.
func (b *base) State() State { return b.state }

// Busy reports whether a message is pending.
func (b *base) Busy() bool { return b.pending != nil }

// Abandon implements Controller.
func (b *base) Abandon() {
	b.pending = nil
	b.disarm()
}

// FailTimerActive reports whether the fail-timeout is armed.
func (b *base) FailTimerActive() bool { return b.timer.Active() }

// hold keeps msg pending. Callers have already issued the command and armed
// the fail-timeout through setGoal.
func (b *base) hold(msg *protocol.Message) protocol.Status {
	b.pending = msg
	return protocol.StatusDeferred
}

// command sends a hardware command, logging failures.
func (b *base) command(code hardware.Code, params ...int32) bool {
	if err := b.drv.SendCommand(code, params...); err != nil {
		b.logError("hardware command failed", err, "command", code.String())
		return false
	}
	b.logDebug("hardware command sent", "command", code.String(), "params", params)
	return true
}

// start issues code for a new goal and arms the fail-timeout.
func (b *base) start(goal string, code hardware.Code, params ...int32) bool {
	if !b.command(code, params...) {
		return false
	}
	b.goal = goal
	b.state = StateMoving
	b.arm(b.failTimeout, b.failTimedOut)
	return true
}

// arm replaces the fail-timeout.
func (b *base) arm(d time.Duration, fn func()) {
	b.disarm()
	var t *reactor.Timer
	t = b.env.Scheduler.AfterFunc(d, func() {
		if b.timer == t {
			b.timer = nil
		}
		fn()
	})
	b.timer = t
}

// disarm stops the fail-timeout. Safe to call when nothing is armed.
func (b *base) disarm() {
	b.timer.Stop()
	b.timer = nil
}

// reached marks the goal as reached and completes any pending message with Good.
func (b *base) reached() {
	b.state = StateAtGoal
	b.finish(protocol.StatusGood, "")
}

func (b *base) failTimedOut() {
	st := protocol.StatusErrRetry
	if b.critical {
		st = protocol.StatusErrCrit
	}
	b.state = StateError
	b.logWarn("fail-timeout elapsed", "goal", b.goal, "status", st.String())
	b.finish(st, "fail-timeout reaching "+b.goal)
}

// fault signals ErrCrit for a hardware condition, pending message or not.
func (b *base) fault(reason string) {
	b.state = StateError
	b.logError("hardware fault", nil, "reason", reason)
	b.finish(protocol.StatusErrCrit, reason)
}

// finish clears the pending message and fail-timeout, then delivers the
// completion on the next step of the current reactor turn. Without a pending
// message only ErrCrit is delivered.
func (b *base) finish(st protocol.Status, reason string) {
	msg := b.pending
	b.pending = nil
	b.disarm()

	if msg == nil && st != protocol.StatusErrCrit {
		return
	}

	c := Completion{Device: b.id, Msg: msg, Status: st, Reason: reason}
	b.env.Scheduler.Defer(func() { b.env.Sink.Complete(c) })
}

// completeLater delivers a final status for msg on the next step without
// touching the pending slot. Used for read-only deferrals.
func (b *base) completeLater(msg *protocol.Message, fn func() protocol.Status) {
	b.env.Scheduler.Defer(func() {
		b.env.Sink.Complete(Completion{Device: b.id, Msg: msg, Status: fn()})
	})
}

func (b *base) snapshot(current string, values map[string]float64) Snapshot {
	return Snapshot{
		Device:  b.id,
		State:   b.state,
		Goal:    b.goal,
		Current: current,
		Flags:   b.flags,
		Pending: b.pending != nil,
		Values:  values,
	}
}

func (b *base) logDebug(msg string, keysAndValues ...any) {
	if b.env.Logger != nil {
		b.env.Logger.Debug(msg, append([]any{"device", b.id.String()}, keysAndValues...)...)
	}
}

func (b *base) logInfo(msg string, keysAndValues ...any) {
	if b.env.Logger != nil {
		b.env.Logger.Info(msg, append([]any{"device", b.id.String()}, keysAndValues...)...)
	}
}

func (b *base) logWarn(msg string, keysAndValues ...any) {
	if b.env.Logger != nil {
		b.env.Logger.Warn(msg, append([]any{"device", b.id.String()}, keysAndValues...)...)
	}
}

func (b *base) logError(msg string, err error, keysAndValues ...any) {
	if b.env.Logger == nil {
		return
	}
	kv := append([]any{"device", b.id.String()}, keysAndValues...)
	if err != nil {
		kv = append(kv, "error", err)
	}
	b.env.Logger.Error(msg, kv...)
}

package device

import (
	"fmt"

	"github.com/nerrad567/dti-core/internal/protocol"
)

// Interlock couples the dome shutter and the dropout.
//
// It enforces two rules: the dropout may only open once the shutter is
// open, and the shutter may only start closing once the dropout is closed.
// It also runs the environment auto-close: dropout first, then shutter,
// cancelling whatever either device was doing.
//
// The references are non-owning and set once by Wire.
type Interlock struct {
	shutter *DomeShutter
	dropout *Dropout
	logger  Logger

	adverse  bool
	closing  bool
	reason   string
	violated bool
}

// NewInterlock creates an unwired interlock.
func NewInterlock(logger Logger) *Interlock {
	return &Interlock{logger: logger}
}

// Wire connects the interlock to both devices. It may only be called once.
func (il *Interlock) Wire(shutter *DomeShutter, dropout *Dropout) error {
	if il.shutter != nil || il.dropout != nil {
		return ErrAlreadyWired
	}
	il.shutter = shutter
	il.dropout = dropout
	shutter.interlock = il
	dropout.interlock = il
	shutter.onSettle = il.transition
	dropout.onSettle = il.transition
	return nil
}

// CanOpenShutter reports whether the shutter may start opening.
func (il *Interlock) CanOpenShutter() bool {
	return !il.adverse && !il.closing
}

// CanCloseShutter reports whether the shutter may start closing. A dropout
// with an unacknowledged command does not count as closed.
func (il *Interlock) CanCloseShutter() bool {
	return il.dropout.settled(PositionClosed)
}

// CanOpenDropout reports whether the dropout may start opening.
func (il *Interlock) CanOpenDropout() bool {
	return il.shutter.settled(PositionOpen) && !il.adverse && !il.closing
}

// Adverse reports whether the last environment report required closure.
func (il *Interlock) Adverse() bool { return il.adverse }

// Closing reports whether an auto-close is in progress.
func (il *Interlock) Closing() bool { return il.closing }

// Check verifies dropout open implies shutter open.
func (il *Interlock) Check() error {
	if il.dropout.IsOpen() && !il.shutter.IsOpen() {
		return fmt.Errorf("%w: dropout open while shutter %s", ErrInterlock, il.shutter.Position())
	}
	return nil
}

// SetEnvironment records the environment and starts an auto-close when it
// turns adverse.
func (il *Interlock) SetEnvironment(env *protocol.Environment) {
	il.adverse = env.Adverse()
	if !il.adverse {
		return
	}

	reason := "weather"
	if env.Daylight {
		reason = "daylight"
	}
	il.CloseAll(reason)
}

// CloseAll closes the dropout and then the shutter. Messages pending on
// either device complete with Cancel. Does nothing if both are already
// closed or a close is already running.
func (il *Interlock) CloseAll(reason string) {
	if il.closing {
		return
	}
	if il.dropout.settled(PositionClosed) && il.shutter.settled(PositionClosed) {
		return
	}

	il.closing = true
	il.reason = reason
	il.logInfo("auto-close started", "reason", reason)

	if il.dropout.Busy() {
		il.dropout.finish(protocol.StatusCancel, "auto-close: "+reason)
	}
	if il.shutter.Busy() {
		il.shutter.finish(protocol.StatusCancel, "auto-close: "+reason)
	}

	il.advance()
}

// advance issues the next auto-close step.
func (il *Interlock) advance() {
	if !il.closing {
		return
	}

	if !il.dropout.settled(PositionClosed) {
		if il.dropout.Target() != PositionClosed || !il.dropout.FailTimerActive() {
			if err := il.dropout.SetGoal(PositionClosed); err != nil {
				il.logError("auto-close dropout failed", err)
			}
		}
		return
	}

	if !il.shutter.settled(PositionClosed) {
		if il.shutter.Target() != PositionClosed || !il.shutter.FailTimerActive() {
			if err := il.shutter.SetGoal(PositionClosed); err != nil {
				il.logError("auto-close shutter failed", err)
			}
		}
		return
	}

	il.closing = false
	il.logInfo("auto-close complete", "reason", il.reason)
}

// transition runs after every status change of either device.
func (il *Interlock) transition() {
	if il.shutter == nil || il.dropout == nil {
		return
	}

	if err := il.Check(); err != nil {
		if !il.violated {
			il.violated = true
			il.dropout.fault(err.Error())
		}
	} else {
		il.violated = false
	}

	il.advance()
}

func (il *Interlock) logInfo(msg string, keysAndValues ...any) {
	if il.logger != nil {
		il.logger.Info(msg, keysAndValues...)
	}
}

func (il *Interlock) logError(msg string, err error) {
	if il.logger != nil {
		il.logger.Error(msg, "error", err)
	}
}

package device

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
	"github.com/nerrad567/dti-core/internal/reactor"
)

// FocusEHT controls the focuser and the photometer's EHT supply.
//
// A DataPmt request is reached when the focus matches, the focuser is idle,
// and the EHT is High and has finished its stabilisation delay. While the
// delay runs, further DataPmt requests get ErrWait.
//
// A focus stall starts a separate timer; if the stall persists the focus is
// driven back to 0 and the pending request completes with ErrRetry.
type FocusEHT struct {
	base

	volts        uint16
	stabilize    time.Duration
	stallTimeout time.Duration

	focus        int32
	focusGoal    int32
	hasFocusGoal bool

	ehtHigh    bool
	ehtWanted  bool
	stable     bool
	stabilizer *reactor.Timer
	stallTimer *reactor.Timer
}

// NewFocusEHT creates the focus/EHT controller on the telescope driver.
func NewFocusEHT(env Env, drv hardware.Driver, timing Timing, volts uint16) *FocusEHT {
	return &FocusEHT{
		base:         newBase(FocusEHTID, env, drv, timing.FocusTimeout, false),
		volts:        volts,
		stabilize:    timing.EHTStabilize,
		stallTimeout: timing.FocusStallTimeout,
	}
}

// Focus returns the last reported focus position.
func (f *FocusEHT) Focus() int32 { return f.focus }

// EHTHigh reports whether the supply last reported High.
func (f *FocusEHT) EHTHigh() bool { return f.ehtHigh }

// Stable reports whether the EHT is High and past its stabilisation delay.
func (f *FocusEHT) Stable() bool { return f.ehtHigh && f.stable }

// Stabilizing reports whether the stabilisation delay is running.
func (f *FocusEHT) Stabilizing() bool { return f.stabilizer.Active() }

// SetGoal drives the focuser to pos.
func (f *FocusEHT) SetGoal(pos int32) error {
	if !f.start("focus "+strconv.Itoa(int(pos)), hardware.CmdFocusGoto, pos) {
		return fmt.Errorf("%w: focus goto", ErrCommand)
	}
	f.focusGoal = pos
	f.hasFocusGoal = true
	return nil
}

// SetEHT switches the supply. Switching on arms the fail-timeout until the
// supply reports High.
func (f *FocusEHT) SetEHT(high bool) error {
	var level int32
	goal := "eht off"
	if high {
		level = 1
		goal = "eht high"
	}
	if high && !f.ehtHigh {
		if !f.start(goal, hardware.CmdEHTSet, level) {
			return fmt.Errorf("%w: eht", ErrCommand)
		}
	} else if !f.command(hardware.CmdEHTSet, level) {
		return fmt.Errorf("%w: eht", ErrCommand)
	}
	f.ehtWanted = high
	return nil
}

// ProcessMessage implements Controller.
func (f *FocusEHT) ProcessMessage(msg *protocol.Message) protocol.Status {
	switch p := msg.Payload.(type) {
	case *protocol.DataPmt:
		return f.prepare(msg, p.Focus)

	case *protocol.PmtCapabilities:
		p.EHTVolts = f.volts
		return protocol.StatusGood

	case *protocol.Environment:
		if p.Daylight && (f.ehtHigh || f.ehtWanted) {
			f.logWarn("daylight reported, switching EHT off")
			if f.Busy() {
				f.finish(protocol.StatusCancel, "daylight")
			}
			if err := f.SetEHT(false); err != nil {
				f.logError("eht off failed", err)
			}
		}
		return protocol.StatusGood

	default:
		return protocol.StatusGood
	}
}

func (f *FocusEHT) prepare(msg *protocol.Message, focus int32) protocol.Status {
	if f.Busy() || f.Stabilizing() {
		return protocol.StatusErrWait
	}

	needFocus := focus != f.focus || f.flags.Any(hardware.FocusMoving)
	needEHT := !f.ehtHigh

	if !needFocus && !needEHT && f.stable {
		f.goal = "ready"
		f.state = StateAtGoal
		return protocol.StatusGood
	}

	if needEHT {
		if err := f.SetEHT(true); err != nil {
			return protocol.StatusErrRetry
		}
	}
	if needFocus {
		if err := f.SetGoal(focus); err != nil {
			return protocol.StatusErrRetry
		}
	} else {
		f.hasFocusGoal = false
	}
	return f.hold(msg)
}

// OnHardwareUpdate implements Controller.
func (f *FocusEHT) OnHardwareUpdate(st hardware.Status) {
	prev := f.flags
	f.flags = st.Flags & (hardware.FocusMoving | hardware.FocusStall | hardware.EHTHigh)
	f.focus = st.Focus

	high := f.flags.Has(hardware.EHTHigh)
	switch {
	case high && !f.ehtHigh:
		f.stable = false
		f.stabilizer.Stop()
		f.stabilizer = f.env.Scheduler.AfterFunc(f.stabilize, f.onStable)
		f.logInfo("EHT high, stabilising", "delay", f.stabilize.String())
	case !high && f.ehtHigh:
		f.stable = false
		f.stabilizer.Stop()
		f.stabilizer = nil
	}
	f.ehtHigh = high

	stalled := f.flags.Has(hardware.FocusStall)
	switch {
	case stalled && !prev.Has(hardware.FocusStall):
		f.logWarn("focus stall reported", "position", f.focus)
		f.stallTimer.Stop()
		f.stallTimer = f.env.Scheduler.AfterFunc(f.stallTimeout, f.onStall)
	case !stalled:
		f.stallTimer.Stop()
		f.stallTimer = nil
	}

	f.check()
}

func (f *FocusEHT) onStable() {
	f.stabilizer = nil
	f.stable = true
	f.logInfo("EHT stable")
	f.check()
}

func (f *FocusEHT) onStall() {
	f.stallTimer = nil
	f.logWarn("focus stall persisted, driving focus to 0", "position", f.focus)
	f.state = StateError
	f.finish(protocol.StatusErrRetry, "focus stall")
	if err := f.SetGoal(0); err != nil {
		f.logError("focus reset failed", err)
	}
}

// check completes the pending request once every part of it is satisfied.
func (f *FocusEHT) check() {
	focusDone := !f.hasFocusGoal || (f.focus == f.focusGoal && !f.flags.Any(hardware.FocusMoving))
	ehtDone := !f.ehtWanted || f.ehtHigh

	switch {
	case f.flags.Any(hardware.FocusMoving):
		f.state = StateMoving
	case focusDone && ehtDone && (!f.ehtWanted || f.stable):
		if f.Busy() || f.state == StateMoving {
			f.reached()
		}
	case focusDone && ehtDone:
		// Only the stabilisation delay is left; it has its own timer.
		f.disarm()
		f.state = StateMoving
	}
}

// Snapshot implements Controller.
func (f *FocusEHT) Snapshot() Snapshot {
	eht := "off"
	switch {
	case f.Stable():
		eht = "high"
	case f.ehtHigh:
		eht = "stabilising"
	}
	return f.snapshot(fmt.Sprintf("focus %d, eht %s", f.focus, eht), map[string]float64{
		"focus": float64(f.focus),
		"eht":   boolValue(f.ehtHigh),
	})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

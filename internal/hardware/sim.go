package hardware

import (
	"sync"
	"time"
)

// Ensure Sim implements Driver.
var _ Driver = (*Sim)(nil)

// Sim is an in-process controller model.
//
// Every command is recorded. When motion is enabled, a command schedules
// two steps: one at once that sets the matching moving bits, and one after
// the motion delay that applies its final effect. Each step fires the
// status callback, never from inside SendCommand itself. With motion disabled the
// status only changes through Update, which lets tests script the hardware.
//
// Thread Safety: all methods are safe for concurrent use. Callbacks run
// outside the lock on the caller's goroutine or the motion scheduler's.
type Sim struct {
	subsystem Subsystem

	mu       sync.Mutex
	status   Status
	sent     []Command
	onStatus func(Status)

	after func(time.Duration, func())
	delay time.Duration
}

// NewSim creates a simulated controller reporting initial.
func NewSim(subsystem Subsystem, initial Status) *Sim {
	return &Sim{subsystem: subsystem, status: initial}
}

// EnableMotion makes commands take effect after delay. after schedules a
// callback; pass a reactor timer or time.AfterFunc adapted to the signature.
func (s *Sim) EnableMotion(after func(time.Duration, func()), delay time.Duration) {
	s.mu.Lock()
	s.after = after
	s.delay = delay
	s.mu.Unlock()
}

// Subsystem implements Driver.
func (s *Sim) Subsystem() Subsystem {
	return s.subsystem
}

// ReadStatus implements Driver.
func (s *Sim) ReadStatus() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// SetOnStatus implements Driver.
func (s *Sim) SetOnStatus(callback func(Status)) {
	s.mu.Lock()
	s.onStatus = callback
	s.mu.Unlock()
}

// SendCommand implements Driver.
func (s *Sim) SendCommand(code Code, params ...int32) error {
	cmd := Command{Code: code, Params: append([]int32(nil), params...)}

	s.mu.Lock()
	s.sent = append(s.sent, cmd)
	after, delay := s.after, s.delay
	s.mu.Unlock()

	if after == nil {
		return nil
	}

	after(0, func() {
		s.Update(func(st *Status) { st.Flags |= movingBits(code) })
	})
	after(delay, func() {
		s.Update(func(st *Status) { applyCommand(st, cmd) })
	})
	return nil
}

// Update mutates the status and fires the callback if anything changed.
func (s *Sim) Update(mutate func(*Status)) {
	s.mu.Lock()
	before := s.status
	mutate(&s.status)
	s.status.Received = time.Now()
	st := s.status
	callback := s.onStatus
	s.mu.Unlock()

	if callback != nil && !before.Equal(st) {
		callback(st)
	}
}

// Sent returns a copy of every command received so far.
func (s *Sim) Sent() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.sent...)
}

// LastSent returns the most recent command, if any.
func (s *Sim) LastSent() (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return Command{}, false
	}
	return s.sent[len(s.sent)-1], true
}

// ClearSent forgets recorded commands.
func (s *Sim) ClearSent() {
	s.mu.Lock()
	s.sent = nil
	s.mu.Unlock()
}

func movingBits(code Code) Flags {
	switch code {
	case CmdShutterOpen, CmdShutterClose:
		return ShutterMoving
	case CmdDropoutOpen, CmdDropoutClose:
		return DropoutMoving
	case CmdDomeGoto, CmdDomePark:
		return DomeMoving
	case CmdMirrorView, CmdMirrorMeasure:
		return MirrorMoving
	case CmdFilterSelect, CmdFilterInit:
		return FilterMoving
	case CmdApertureSelect, CmdApertureInit:
		return ApertureMoving
	case CmdFocusGoto:
		return FocusMoving
	case CmdTelGoto, CmdTelPark, CmdTelSlew:
		return TelSlewing
	default:
		return 0
	}
}

func param(cmd Command, i int) int32 {
	if i < len(cmd.Params) {
		return cmd.Params[i]
	}
	return 0
}

// applyCommand sets the final state a real controller would report.
func applyCommand(st *Status, cmd Command) {
	st.Flags &^= movingBits(cmd.Code)

	switch cmd.Code {
	case CmdShutterOpen:
		st.Flags = st.Flags&^ShutterClosed | ShutterOpen
	case CmdShutterClose:
		st.Flags = st.Flags&^ShutterOpen | ShutterClosed
	case CmdDropoutOpen:
		st.Flags = st.Flags&^DropoutClosed | DropoutOpen
	case CmdDropoutClose:
		st.Flags = st.Flags&^DropoutOpen | DropoutClosed
	case CmdDomeGoto:
		st.Azimuth = float64(param(cmd, 0)) / CentiDegrees
		st.Flags &^= DomeParked
	case CmdDomePark:
		st.Azimuth = float64(param(cmd, 0)) / CentiDegrees
		st.Flags |= DomeParked
	case CmdMirrorView:
		st.Flags = st.Flags&^MirrorMeasure | MirrorView
	case CmdMirrorMeasure:
		st.Flags = st.Flags&^MirrorView | MirrorMeasure
	case CmdFilterSelect:
		st.Filter = uint8(param(cmd, 0)) //nolint:gosec // slot numbers are small
		st.Flags |= FilterCentered
	case CmdFilterInit:
		st.Filter = 0
		st.Flags |= FilterCentered
	case CmdApertureSelect:
		st.Aperture = uint8(param(cmd, 0)) //nolint:gosec // slot numbers are small
		st.Flags |= ApertureCentered
	case CmdApertureInit:
		st.Aperture = 0
		st.Flags |= ApertureCentered
	case CmdInstShutterOpen:
		st.Flags = st.Flags&^InstShutterClosed | InstShutterOpen
	case CmdInstShutterClose:
		st.Flags = st.Flags&^InstShutterOpen | InstShutterClosed
	case CmdFocusGoto:
		st.Focus = param(cmd, 0)
		st.Flags &^= FocusStall
	case CmdEHTSet:
		if param(cmd, 0) != 0 {
			st.Flags |= EHTHigh
		} else {
			st.Flags &^= EHTHigh
		}
	case CmdTelGoto:
		st.HourAngle = float64(param(cmd, 0)) / MicroUnits
		st.Dec = float64(param(cmd, 1)) / MicroUnits
		st.Flags &^= TelParked
	case CmdTelPark:
		st.HourAngle = float64(param(cmd, 0)) / MicroUnits
		st.Dec = float64(param(cmd, 1)) / MicroUnits
		st.Flags = st.Flags&^TelTracking | TelParked
	case CmdTelTrack:
		if param(cmd, 0) != 0 {
			st.Flags |= TelTracking
		} else {
			st.Flags &^= TelTracking
		}
	case CmdTelStop:
		st.Flags &^= TelSlewing
	case CmdDomeStop:
		st.Flags &^= DomeMoving
	case CmdEStopAck:
		st.Flags &^= TelEStop
	}
}

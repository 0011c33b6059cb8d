package device

import (
	"fmt"
	"time"

	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
)

// DomeShutter controls the main dome shutter. An unresolved shutter
// failure leaves the dome exposed, so its fail-timeout escalates to ErrCrit.
type DomeShutter struct {
	door
	interlock *Interlock
}

// NewDomeShutter creates the shutter controller on the dome driver.
func NewDomeShutter(env Env, drv hardware.Driver, failTimeout time.Duration) *DomeShutter {
	return &DomeShutter{door: door{
		base:      newBase(DomeShutterID, env, drv, failTimeout, true),
		openBit:   hardware.ShutterOpen,
		closedBit: hardware.ShutterClosed,
		movingBit: hardware.ShutterMoving,
		openCmd:   hardware.CmdShutterOpen,
		closeCmd:  hardware.CmdShutterClose,
	}}
}

// SetGoal opens or closes the shutter, subject to the interlock.
func (s *DomeShutter) SetGoal(p Position) error {
	switch p {
	case PositionOpen:
		if !s.interlock.CanOpenShutter() {
			return fmt.Errorf("%w: environment adverse or closing", ErrInterlock)
		}
	case PositionClosed:
		if !s.interlock.CanCloseShutter() {
			return fmt.Errorf("%w: dropout not closed", ErrInterlock)
		}
	default:
		return fmt.Errorf("%w: %s", ErrOutOfRange, p)
	}
	return s.drive(p)
}

// ProcessMessage implements Controller.
func (s *DomeShutter) ProcessMessage(msg *protocol.Message) protocol.Status {
	switch p := msg.Payload.(type) {
	case *protocol.TargetSet:
		if !p.Auto {
			return protocol.StatusGood
		}
		return s.request(msg, PositionOpen)
	case *protocol.Quit:
		if !p.Auto && !p.Forced {
			return protocol.StatusGood
		}
		return s.request(msg, PositionClosed)
	case *protocol.Environment:
		s.interlock.SetEnvironment(p)
		return protocol.StatusGood
	default:
		return protocol.StatusGood
	}
}

func (s *DomeShutter) request(msg *protocol.Message, p Position) protocol.Status {
	if s.Busy() {
		return protocol.StatusErrWait
	}
	if p == PositionOpen && !s.interlock.CanOpenShutter() {
		return protocol.StatusErrWait
	}
	if s.atGoal(p) {
		return protocol.StatusGood
	}
	if p == PositionClosed && !s.interlock.CanCloseShutter() {
		return protocol.StatusErrRetry
	}

	if err := s.SetGoal(p); err != nil {
		return protocol.StatusErrRetry
	}
	return s.hold(msg)
}

// OnHardwareUpdate implements Controller.
func (s *DomeShutter) OnHardwareUpdate(st hardware.Status) {
	s.observe(st)
	s.interlock.transition()
}

// Snapshot implements Controller.
func (s *DomeShutter) Snapshot() Snapshot { return s.doorSnapshot() }

// Dropout controls the light-trap panel below the shutter. Its fail-timeout
// escalates to ErrCrit like the shutter's.
type Dropout struct {
	door
	interlock *Interlock
}

// NewDropout creates the dropout controller on the dome driver.
func NewDropout(env Env, drv hardware.Driver, failTimeout time.Duration) *Dropout {
	return &Dropout{door: door{
		base:      newBase(DropoutID, env, drv, failTimeout, true),
		openBit:   hardware.DropoutOpen,
		closedBit: hardware.DropoutClosed,
		movingBit: hardware.DropoutMoving,
		openCmd:   hardware.CmdDropoutOpen,
		closeCmd:  hardware.CmdDropoutClose,
	}}
}

// SetGoal opens or closes the dropout, subject to the interlock.
func (d *Dropout) SetGoal(p Position) error {
	switch p {
	case PositionOpen:
		if !d.interlock.CanOpenDropout() {
			return fmt.Errorf("%w: shutter not open", ErrInterlock)
		}
	case PositionClosed:
	default:
		return fmt.Errorf("%w: %s", ErrOutOfRange, p)
	}
	return d.drive(p)
}

// ProcessMessage implements Controller.
func (d *Dropout) ProcessMessage(msg *protocol.Message) protocol.Status {
	switch p := msg.Payload.(type) {
	case *protocol.TargetSet:
		if !p.Auto {
			return protocol.StatusGood
		}
		return d.request(msg, PositionOpen)
	case *protocol.Quit:
		if !p.Auto && !p.Forced {
			return protocol.StatusGood
		}
		return d.request(msg, PositionClosed)
	default:
		return protocol.StatusGood
	}
}

func (d *Dropout) request(msg *protocol.Message, p Position) protocol.Status {
	if d.Busy() {
		return protocol.StatusErrWait
	}
	if d.atGoal(p) {
		return protocol.StatusGood
	}
	if p == PositionOpen && !d.interlock.CanOpenDropout() {
		return protocol.StatusErrRetry
	}
	if err := d.SetGoal(p); err != nil {
		return protocol.StatusErrRetry
	}
	return d.hold(msg)
}

// OnHardwareUpdate implements Controller.
func (d *Dropout) OnHardwareUpdate(st hardware.Status) {
	d.observe(st)
	d.interlock.transition()
}

// Snapshot implements Controller.
func (d *Dropout) Snapshot() Snapshot { return d.doorSnapshot() }

// InstrumentShutter controls the photometer shutter. After a close the
// detector needs a power-up delay before the shutter may open again.
type InstrumentShutter struct {
	door
	powerUp  time.Duration
	closedAt time.Time
}

// NewInstrumentShutter creates the instrument shutter on the telescope driver.
func NewInstrumentShutter(env Env, drv hardware.Driver, failTimeout, powerUp time.Duration) *InstrumentShutter {
	return &InstrumentShutter{
		door: door{
			base:      newBase(InstrumentShutterID, env, drv, failTimeout, false),
			openBit:   hardware.InstShutterOpen,
			closedBit: hardware.InstShutterClosed,
			movingBit: 0,
			openCmd:   hardware.CmdInstShutterOpen,
			closeCmd:  hardware.CmdInstShutterClose,
		},
		powerUp: powerUp,
	}
}

// SetGoal opens or closes the shutter. Opening is refused inside the
// power-up delay.
func (s *InstrumentShutter) SetGoal(p Position) error {
	switch p {
	case PositionOpen:
		if s.inPowerUp() {
			return fmt.Errorf("%w: %s remaining", ErrPowerUp, s.powerUpRemaining())
		}
	case PositionClosed:
	default:
		return fmt.Errorf("%w: %s", ErrOutOfRange, p)
	}
	return s.drive(p)
}

// ProcessMessage implements Controller.
func (s *InstrumentShutter) ProcessMessage(msg *protocol.Message) protocol.Status {
	switch msg.Payload.(type) {
	case *protocol.DataPmt:
		return s.request(msg, PositionOpen)
	case *protocol.DataCcd, *protocol.Quit:
		return s.request(msg, PositionClosed)
	default:
		return protocol.StatusGood
	}
}

func (s *InstrumentShutter) request(msg *protocol.Message, p Position) protocol.Status {
	if s.Busy() {
		return protocol.StatusErrWait
	}
	if s.atGoal(p) {
		return protocol.StatusGood
	}
	if p == PositionOpen && s.inPowerUp() {
		return protocol.StatusErrRetry
	}
	if err := s.SetGoal(p); err != nil {
		return protocol.StatusErrRetry
	}
	return s.hold(msg)
}

// OnHardwareUpdate implements Controller.
func (s *InstrumentShutter) OnHardwareUpdate(st hardware.Status) {
	wasClosed := s.IsClosed()
	s.observe(st)
	if s.IsClosed() && !wasClosed {
		s.closedAt = s.env.Scheduler.Now()
	}
}

func (s *InstrumentShutter) inPowerUp() bool {
	return s.powerUpRemaining() > 0
}

func (s *InstrumentShutter) powerUpRemaining() time.Duration {
	if s.closedAt.IsZero() {
		return 0
	}
	return s.powerUp - s.env.Scheduler.Now().Sub(s.closedAt)
}

// Snapshot implements Controller.
func (s *InstrumentShutter) Snapshot() Snapshot { return s.doorSnapshot() }

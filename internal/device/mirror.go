package device

import (
	"fmt"
	"time"

	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
)

// MirrorPosition is the acquisition mirror goal.
type MirrorPosition uint8

// Mirror positions.
const (
	MirrorUnknown MirrorPosition = iota
	MirrorView
	MirrorMeasure
)

// String returns the position name.
func (p MirrorPosition) String() string {
	switch p {
	case MirrorView:
		return "view"
	case MirrorMeasure:
		return "measure"
	default:
		return "unknown"
	}
}

// AcquisitionMirror sends light to the acquisition camera (View) or to the
// photometer (Measure). Hardware asserting both positions at once is a
// fault.
//
// The camera sits behind the mirror, so the mirror also answers
// CcdCapabilities.
type AcquisitionMirror struct {
	base
	pos    MirrorPosition
	target MirrorPosition
	ccd    CCD
}

// NewAcquisitionMirror creates the mirror controller on the telescope driver.
func NewAcquisitionMirror(env Env, drv hardware.Driver, failTimeout time.Duration, ccd CCD) *AcquisitionMirror {
	return &AcquisitionMirror{base: newBase(AcquisitionMirrorID, env, drv, failTimeout, false), ccd: ccd}
}

// Position returns the last reported position.
func (m *AcquisitionMirror) Position() MirrorPosition { return m.pos }

// SetGoal moves the mirror.
func (m *AcquisitionMirror) SetGoal(p MirrorPosition) error {
	var code hardware.Code
	switch p {
	case MirrorView:
		code = hardware.CmdMirrorView
	case MirrorMeasure:
		code = hardware.CmdMirrorMeasure
	default:
		return fmt.Errorf("%w: mirror %s", ErrOutOfRange, p)
	}
	if !m.start(p.String(), code) {
		return fmt.Errorf("%w: %s", ErrCommand, code)
	}
	m.target = p
	return nil
}

// ProcessMessage implements Controller.
func (m *AcquisitionMirror) ProcessMessage(msg *protocol.Message) protocol.Status {
	switch p := msg.Payload.(type) {
	case *protocol.TargetSet, *protocol.Quit, *protocol.DataCcd:
		return m.request(msg, MirrorView)
	case *protocol.DataPmt:
		return m.request(msg, MirrorMeasure)
	case *protocol.CcdCapabilities:
		p.Width, p.Height, p.PixelScale = m.ccd.Width, m.ccd.Height, m.ccd.PixelScale
		return protocol.StatusGood
	default:
		return protocol.StatusGood
	}
}

func (m *AcquisitionMirror) request(msg *protocol.Message, p MirrorPosition) protocol.Status {
	if m.Busy() {
		return protocol.StatusErrWait
	}
	if m.pos == p && !m.moving() {
		m.target = p
		m.goal = p.String()
		m.state = StateAtGoal
		return protocol.StatusGood
	}
	if err := m.SetGoal(p); err != nil {
		return protocol.StatusErrRetry
	}
	return m.hold(msg)
}

func (m *AcquisitionMirror) moving() bool { return m.flags.Any(hardware.MirrorMoving) }

// OnHardwareUpdate implements Controller.
func (m *AcquisitionMirror) OnHardwareUpdate(st hardware.Status) {
	both := hardware.MirrorView | hardware.MirrorMeasure
	prev := m.flags
	m.flags = st.Flags & (both | hardware.MirrorMoving)

	if m.flags.Has(both) {
		m.pos = MirrorUnknown
		if !prev.Has(both) {
			m.fault("acquisition mirror reports view and measure together")
		}
		return
	}

	switch {
	case m.moving():
		m.pos = MirrorUnknown
	case m.flags.Has(hardware.MirrorView):
		m.pos = MirrorView
	case m.flags.Has(hardware.MirrorMeasure):
		m.pos = MirrorMeasure
	default:
		m.pos = MirrorUnknown
	}

	switch {
	case m.moving():
		m.state = StateMoving
	case m.target != MirrorUnknown && m.pos == m.target:
		m.reached()
	case m.state == StateError:
	default:
		m.state = StateIdle
	}
}

// Snapshot implements Controller.
func (m *AcquisitionMirror) Snapshot() Snapshot {
	return m.snapshot(m.pos.String(), nil)
}

package device

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
)

// Wheel is a discrete-slot wheel: the filter wheel or the aperture wheel.
// A slot is reached only when the reported slot matches, the centered bit
// is set and the moving bit is clear.
type Wheel struct {
	base

	names       []string
	movingBit   hardware.Flags
	centeredBit hardware.Flags
	selectCmd   hardware.Code
	initCmd     hardware.Code
	register    func(hardware.Status) uint8

	// selectSlot extracts this wheel's slot from a data message.
	selectSlot func(msg *protocol.Message) (uint8, bool)

	// describe fills this wheel's names into a capabilities payload.
	describe func(p *protocol.PmtCapabilities, names []string)

	slot   uint8
	target int
}

// NewFilterWheel creates the filter wheel on the telescope driver.
func NewFilterWheel(env Env, drv hardware.Driver, failTimeout time.Duration, names []string) *Wheel {
	return &Wheel{
		base:        newBase(FilterWheelID, env, drv, failTimeout, false),
		names:       append([]string(nil), names...),
		movingBit:   hardware.FilterMoving,
		centeredBit: hardware.FilterCentered,
		selectCmd:   hardware.CmdFilterSelect,
		initCmd:     hardware.CmdFilterInit,
		register:    func(st hardware.Status) uint8 { return st.Filter },
		selectSlot: func(msg *protocol.Message) (uint8, bool) {
			switch p := msg.Payload.(type) {
			case *protocol.DataPmt:
				return p.Filter, true
			case *protocol.DataCcd:
				return p.Filter, true
			default:
				return 0, false
			}
		},
		describe: func(p *protocol.PmtCapabilities, names []string) { p.Filters = names },
		target:   -1,
	}
}

// NewApertureWheel creates the aperture wheel on the telescope driver.
func NewApertureWheel(env Env, drv hardware.Driver, failTimeout time.Duration, names []string) *Wheel {
	return &Wheel{
		base:        newBase(ApertureWheelID, env, drv, failTimeout, false),
		names:       append([]string(nil), names...),
		movingBit:   hardware.ApertureMoving,
		centeredBit: hardware.ApertureCentered,
		selectCmd:   hardware.CmdApertureSelect,
		initCmd:     hardware.CmdApertureInit,
		register:    func(st hardware.Status) uint8 { return st.Aperture },
		selectSlot: func(msg *protocol.Message) (uint8, bool) {
			if p, ok := msg.Payload.(*protocol.DataPmt); ok {
				return p.Aperture, true
			}
			return 0, false
		},
		describe: func(p *protocol.PmtCapabilities, names []string) { p.Apertures = names },
		target:   -1,
	}
}

// Slot returns the last reported slot.
func (w *Wheel) Slot() uint8 { return w.slot }

// SetGoal moves the wheel to slot.
func (w *Wheel) SetGoal(slot uint8) error {
	if int(slot) >= len(w.names) {
		return fmt.Errorf("%w: %s slot %d of %d", ErrOutOfRange, w.id, slot, len(w.names))
	}
	if !w.start(w.names[slot], w.selectCmd, int32(slot)) {
		return fmt.Errorf("%w: %s", ErrCommand, w.selectCmd)
	}
	w.target = int(slot)
	return nil
}

// Init re-references the wheel and leaves it at slot 0.
func (w *Wheel) Init() error {
	if !w.start("init", w.initCmd) {
		return fmt.Errorf("%w: %s", ErrCommand, w.initCmd)
	}
	w.target = 0
	return nil
}

// ProcessMessage implements Controller.
func (w *Wheel) ProcessMessage(msg *protocol.Message) protocol.Status {
	switch p := msg.Payload.(type) {
	case *protocol.Quit:
		return w.request(msg, 0, true)
	case *protocol.PmtCapabilities:
		w.describe(p, append([]string(nil), w.names...))
		return protocol.StatusGood
	}

	if slot, ok := w.selectSlot(msg); ok {
		return w.request(msg, slot, false)
	}
	return protocol.StatusGood
}

func (w *Wheel) request(msg *protocol.Message, slot uint8, init bool) protocol.Status {
	if w.Busy() {
		return protocol.StatusErrWait
	}
	if int(slot) >= len(w.names) {
		return protocol.StatusErrNext
	}
	if w.atSlot(slot) {
		w.target = int(slot)
		w.goal = w.names[slot]
		w.state = StateAtGoal
		return protocol.StatusGood
	}

	var err error
	if init {
		err = w.Init()
	} else {
		err = w.SetGoal(slot)
	}
	if err != nil {
		return protocol.StatusErrRetry
	}
	return w.hold(msg)
}

func (w *Wheel) atSlot(slot uint8) bool {
	return w.slot == slot && w.flags.Has(w.centeredBit) && !w.flags.Any(w.movingBit)
}

// OnHardwareUpdate implements Controller.
func (w *Wheel) OnHardwareUpdate(st hardware.Status) {
	w.flags = st.Flags & (w.movingBit | w.centeredBit)
	w.slot = w.register(st)

	switch {
	case w.target >= 0 && w.atSlot(uint8(w.target)): //nolint:gosec // target < len(names) <= MaxSlots
		w.reached()
	case w.flags.Any(w.movingBit):
		w.state = StateMoving
	case w.state == StateError:
	default:
		w.state = StateIdle
	}
}

// Snapshot implements Controller.
func (w *Wheel) Snapshot() Snapshot {
	current := strconv.Itoa(int(w.slot))
	if int(w.slot) < len(w.names) {
		current = w.names[w.slot]
	}
	return w.snapshot(current, map[string]float64{"slot": float64(w.slot)})
}

package device

import (
	"fmt"

	"github.com/nerrad567/dti-core/internal/hardware"
)

// Position is the goal space of two-position devices.
type Position uint8

// Two-position goals.
const (
	PositionUnknown Position = iota
	PositionOpen
	PositionClosed
)

// String returns the position name.
func (p Position) String() string {
	switch p {
	case PositionOpen:
		return "open"
	case PositionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// door is an open/closed device reported by an open bit, a closed bit and a
// moving bit. The dome shutter, the dropout and the instrument shutter are
// doors.
type door struct {
	base

	openBit   hardware.Flags
	closedBit hardware.Flags
	movingBit hardware.Flags
	openCmd   hardware.Code
	closeCmd  hardware.Code

	pos    Position
	target Position

	// commanded is set when a command goes out and cleared by the first
	// record that shows the door moving or its bits changed. Until then pos
	// may predate the command.
	commanded bool
	cmdFlags  hardware.Flags

	// onSettle runs when a fail-timeout finds the door already at target.
	onSettle func()
}

// IsOpen reports whether the hardware last reported open and not moving.
func (d *door) IsOpen() bool { return d.pos == PositionOpen }

// IsClosed reports whether the hardware last reported closed and not moving.
func (d *door) IsClosed() bool { return d.pos == PositionClosed }

// Position returns the last reported position.
func (d *door) Position() Position { return d.pos }

// Target returns the current goal.
func (d *door) Target() Position { return d.target }

func (d *door) moving() bool { return d.flags.Any(d.movingBit) }

// settled reports whether the door is at p with no command heading elsewhere.
// A command the hardware has not yet acknowledged may still move the door,
// so pos alone is not enough.
func (d *door) settled(p Position) bool {
	if d.commanded || d.moving() {
		return false
	}
	return d.pos == p && (d.target == p || d.target == PositionUnknown)
}

// Commanded reports whether a command is waiting for the hardware to act on it.
func (d *door) Commanded() bool { return d.commanded }

// observe recomputes pos and state from a status record.
func (d *door) observe(st hardware.Status) {
	mask := d.openBit | d.closedBit | d.movingBit
	prev := d.flags
	d.flags = st.Flags & mask

	if d.commanded && (d.moving() || d.flags != d.cmdFlags) {
		d.commanded = false
	}

	if d.flags.Has(d.openBit | d.closedBit) {
		d.pos = PositionUnknown
		if !prev.Has(d.openBit | d.closedBit) {
			d.fault(fmt.Sprintf("%s reports open and closed together", d.id))
		}
		return
	}

	switch {
	case d.moving():
		d.pos = PositionUnknown
	case d.flags.Has(d.openBit):
		d.pos = PositionOpen
	case d.flags.Has(d.closedBit):
		d.pos = PositionClosed
	default:
		d.pos = PositionUnknown
	}

	switch {
	case d.moving():
		d.state = StateMoving
	case d.target != PositionUnknown && d.pos == d.target:
		d.reached()
	case d.state == StateError:
		// Sticky until a new goal is set.
	default:
		d.state = StateIdle
	}
}

// atGoal reports whether p is already reached; it also adopts p as the goal
// so that the snapshot reads consistently.
func (d *door) atGoal(p Position) bool {
	if d.pos != p || d.moving() || d.commanded {
		return false
	}
	d.target = p
	d.goal = p.String()
	d.state = StateAtGoal
	return true
}

// drive commands p and arms the fail-timeout.
func (d *door) drive(p Position) error {
	code := d.openCmd
	if p == PositionClosed {
		code = d.closeCmd
	}
	if !d.start(p.String(), code) {
		return fmt.Errorf("%w: %s %s", ErrCommand, d.id, code)
	}
	d.target = p
	d.commanded = true
	d.cmdFlags = d.flags
	d.arm(d.failTimeout, d.timedOut)
	return nil
}

// timedOut handles an elapsed fail-timeout. From here on the last report is
// trusted. A command for the position the door already reports produces no
// record, so it is taken as reached.
func (d *door) timedOut() {
	wasCommanded := d.commanded
	d.commanded = false
	if wasCommanded && !d.moving() && d.pos == d.target {
		d.reached()
		if d.onSettle != nil {
			d.onSettle()
		}
		return
	}
	d.failTimedOut()
}

func (d *door) doorSnapshot() Snapshot {
	return d.snapshot(d.pos.String(), nil)
}

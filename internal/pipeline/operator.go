package pipeline

import (
	"fmt"

	"github.com/nerrad567/dti-core/internal/hardware"
)

// Action is an operator action name, as used in the operator topic.
type Action string

// Operator actions.
const (
	ActionClear        Action = "clear"
	ActionAutoTrackOn  Action = "autotrack_on"
	ActionAutoTrackOff Action = "autotrack_off"
	ActionTrackingOn   Action = "tracking_on"
	ActionTrackingOff  Action = "tracking_off"
	ActionSlew         Action = "slew"
	ActionSlewStop     Action = "slew_stop"
	ActionEStopAck     Action = "estop_ack"
)

// OperatorCommand is one operator request.
type OperatorCommand struct {
	Action    Action `json:"action"`
	Direction string `json:"direction,omitempty"`
}

// Operate performs an operator action.
//
// Stopping a slew and acknowledging an emergency stop are always allowed.
// Anything that moves the telescope or dome is refused while the forced
// closure runs; tracking and dome auto-track are also refused while the
// observatory is latched unsafe.
//
// Returns:
//   - error: nil on success, or ErrUnknownAction, ErrClosureRunning,
//     ErrUnsafe, or an error from the device
func (o *Orchestrator) Operate(cmd OperatorCommand) error {
	o.logger.Info("operator action", "action", string(cmd.Action), "direction", cmd.Direction)

	tel := o.set.Telescope
	switch cmd.Action {
	case ActionClear:
		return o.ClearUnsafe()
	case ActionSlewStop:
		return tel.StopSlew()
	case ActionEStopAck:
		return tel.AcknowledgeEStop()
	case ActionAutoTrackOff:
		o.set.Rotation.SetAutoTrack(false)
		return nil
	case ActionAutoTrackOn, ActionTrackingOn, ActionTrackingOff, ActionSlew:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}

	if o.closure != nil {
		return ErrClosureRunning
	}

	switch cmd.Action {
	case ActionTrackingOff:
		return tel.SetTracking(false)
	case ActionSlew:
		dir, err := hardware.ParseDirection(cmd.Direction)
		if err != nil {
			return err
		}
		return tel.Slew(dir)
	}

	if o.unsafe {
		return ErrUnsafe
	}
	if cmd.Action == ActionTrackingOn {
		return tel.SetTracking(true)
	}
	o.set.Rotation.SetAutoTrack(true)
	return nil
}

package device

import (
	"fmt"

	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
	"github.com/nerrad567/dti-core/internal/reactor"
)

// ID identifies a device. The ordinal indexes protocol.StatusReport.Devices.
type ID uint8

// Device identifiers.
const (
	DomeShutterID ID = iota
	DropoutID
	DomeRotationID
	AcquisitionMirrorID
	FilterWheelID
	ApertureWheelID
	InstrumentShutterID
	FocusEHTID
	TelescopeDriveID
)

// All lists every device in ordinal order.
var All = []ID{
	DomeShutterID, DropoutID, DomeRotationID, AcquisitionMirrorID, FilterWheelID,
	ApertureWheelID, InstrumentShutterID, FocusEHTID, TelescopeDriveID,
}

var idNames = [...]string{
	"dome_shutter", "dropout", "dome_rotation", "acquisition_mirror", "filter_wheel",
	"aperture_wheel", "instrument_shutter", "focus_eht", "telescope_drive",
}

// String returns the snake_case device name.
func (id ID) String() string {
	if int(id) < len(idNames) {
		return idNames[id]
	}
	return fmt.Sprintf("device(%d)", uint8(id))
}

// ParseID parses a device name.
func ParseID(s string) (ID, error) {
	for i, name := range idNames {
		if name == s {
			return ID(i), nil //nolint:gosec // bounded by idNames
		}
	}
	return 0, fmt.Errorf("unknown device %q", s)
}

// MarshalText encodes the ID by name.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes a device name.
func (id *ID) UnmarshalText(text []byte) error {
	v, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// State is the coarse controller state.
type State uint8

// Controller states.
const (
	StateIdle State = iota
	StateMoving
	StateAtGoal
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMoving:
		return "moving"
	case StateAtGoal:
		return "at_goal"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Controller is the capability every device implements.
type Controller interface {
	ID() ID
	Subsystem() hardware.Subsystem
	ProcessMessage(msg *protocol.Message) protocol.Status
	OnHardwareUpdate(st hardware.Status)
	Abandon()
	Snapshot() Snapshot
}

// Completion is a deferred result handed back to the orchestrator.
//
// Msg is nil for an ErrCrit raised outside any pipeline stage, such as a
// contradictory status record or an auto-close timeout.
type Completion struct {
	Device ID
	Msg    *protocol.Message
	Status protocol.Status
	Reason string
}

// Sink receives completions.
type Sink interface {
	Complete(c Completion)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Completion)

// Complete implements Sink.
func (f SinkFunc) Complete(c Completion) { f(c) }

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Env is what every controller needs from its surroundings.
type Env struct {
	Scheduler reactor.Scheduler
	Sink      Sink
	Logger    Logger
}

// Snapshot is a read-only view of a controller for status reports,
// telemetry and retained MQTT state.
type Snapshot struct {
	Device  ID                 `json:"-"`
	State   State              `json:"-"`
	Goal    string             `json:"goal"`
	Current string             `json:"current"`
	Flags   hardware.Flags     `json:"flags"`
	Pending bool               `json:"pending"`
	Values  map[string]float64 `json:"values,omitempty"`
}

// Report converts the snapshot to its StatusReport entry.
func (s Snapshot) Report() protocol.DeviceReport {
	return protocol.DeviceReport{State: uint8(s.State), Flags: uint32(s.Flags)}
}

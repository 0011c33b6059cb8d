package hardware

import (
	"fmt"
	"math"
)

// Code is a controller command code.
type Code uint16

// Dome controller commands.
const (
	CmdShutterOpen Code = 0x0101 + iota
	CmdShutterClose
	CmdDropoutOpen
	CmdDropoutClose
	CmdDomeGoto // params: azimuth in centidegrees
	CmdDomePark // params: park azimuth in centidegrees
	CmdDomeStop
)

// Telescope controller commands.
const (
	CmdMirrorView Code = 0x0201 + iota
	CmdMirrorMeasure
	CmdFilterSelect // params: slot
	CmdFilterInit
	CmdApertureSelect // params: slot
	CmdApertureInit
	CmdInstShutterOpen
	CmdInstShutterClose
	CmdFocusGoto // params: position
	CmdEHTSet    // params: 0 off, 1 high
	CmdTelGoto   // params: hour angle in microhours, declination in microdegrees
	CmdTelPark   // params: as CmdTelGoto
	CmdTelTrack  // params: 0 off, 1 on
	CmdTelSlew   // params: Direction
	CmdTelStop
	CmdEStopAck
)

var codeNames = map[Code]string{
	CmdShutterOpen:      "shutter_open",
	CmdShutterClose:     "shutter_close",
	CmdDropoutOpen:      "dropout_open",
	CmdDropoutClose:     "dropout_close",
	CmdDomeGoto:         "dome_goto",
	CmdDomePark:         "dome_park",
	CmdDomeStop:         "dome_stop",
	CmdMirrorView:       "mirror_view",
	CmdMirrorMeasure:    "mirror_measure",
	CmdFilterSelect:     "filter_select",
	CmdFilterInit:       "filter_init",
	CmdApertureSelect:   "aperture_select",
	CmdApertureInit:     "aperture_init",
	CmdInstShutterOpen:  "inst_shutter_open",
	CmdInstShutterClose: "inst_shutter_close",
	CmdFocusGoto:        "focus_goto",
	CmdEHTSet:           "eht_set",
	CmdTelGoto:          "tel_goto",
	CmdTelPark:          "tel_park",
	CmdTelTrack:         "tel_track",
	CmdTelSlew:          "tel_slew",
	CmdTelStop:          "tel_stop",
	CmdEStopAck:         "estop_ack",
}

// String returns the command name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cmd(0x%04X)", uint16(c))
}

// Subsystem returns the controller that accepts c.
func (c Code) Subsystem() Subsystem {
	if c>>8 == 0x01 {
		return SubsystemDome
	}
	return SubsystemTelescope
}

// Command is one queued command.
type Command struct {
	Code   Code
	Params []int32
}

// String formats the command for logs.
func (c Command) String() string {
	if len(c.Params) == 0 {
		return c.Code.String()
	}
	return fmt.Sprintf("%s%v", c.Code, c.Params)
}

// Direction is a cardinal slew direction.
type Direction int32

// Slew directions.
const (
	North Direction = iota + 1
	South
	East
	West
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	default:
		return fmt.Sprintf("direction(%d)", int32(d))
	}
}

// ParseDirection parses a direction name.
func ParseDirection(s string) (Direction, error) {
	for _, d := range []Direction{North, South, East, West} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown slew direction %q", s)
}

// Fixed-point scales used in command parameters.
const (
	CentiDegrees = 100
	MicroUnits   = 1_000_000
)

// Scaled converts v to a fixed-point parameter.
func Scaled(v float64, scale float64) int32 {
	return int32(math.Round(v * scale)) //nolint:gosec // coordinates are bounded
}

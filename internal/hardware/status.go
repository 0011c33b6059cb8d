package hardware

import (
	"fmt"
	"strings"
	"time"
)

// Subsystem identifies one physical controller.
type Subsystem uint8

// Physical controllers.
const (
	SubsystemDome Subsystem = iota + 1
	SubsystemTelescope
)

// String returns the subsystem name.
func (s Subsystem) String() string {
	switch s {
	case SubsystemDome:
		return "dome"
	case SubsystemTelescope:
		return "telescope"
	default:
		return fmt.Sprintf("subsystem(%d)", uint8(s))
	}
}

// Flags is the status bitmask reported by a controller.
type Flags uint32

// Status bits. Dome bits are only set by the dome controller and the rest
// only by the telescope controller.
const (
	ShutterOpen Flags = 1 << iota
	ShutterClosed
	ShutterMoving
	DropoutOpen
	DropoutClosed
	DropoutMoving
	DomeMoving
	DomeParked
	MirrorView
	MirrorMeasure
	MirrorMoving
	FilterMoving
	FilterCentered
	ApertureMoving
	ApertureCentered
	InstShutterOpen
	InstShutterClosed
	FocusMoving
	FocusStall
	EHTHigh
	TelSlewing
	TelTracking
	TelEStop
	TelParked
	TelHardLimit
)

var flagNames = []string{
	"shutter_open", "shutter_closed", "shutter_moving",
	"dropout_open", "dropout_closed", "dropout_moving",
	"dome_moving", "dome_parked",
	"mirror_view", "mirror_measure", "mirror_moving",
	"filter_moving", "filter_centered",
	"aperture_moving", "aperture_centered",
	"inst_shutter_open", "inst_shutter_closed",
	"focus_moving", "focus_stall", "eht_high",
	"tel_slewing", "tel_tracking", "tel_estop", "tel_parked", "tel_hard_limit",
}

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// Any reports whether at least one bit in mask is set.
func (f Flags) Any(mask Flags) bool {
	return f&mask != 0
}

// String lists the set bits, joined by "|".
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Status is one controller's status record: the flag bitmask plus the
// position registers. Fields not owned by the reporting controller are zero.
type Status struct {
	Flags Flags

	// Dome controller registers.
	Azimuth float64 // dome azimuth, degrees

	// Telescope controller registers.
	Filter    uint8
	Aperture  uint8
	Focus     int32
	HourAngle float64 // hours
	Dec       float64 // degrees

	// Received is when the record arrived. Not part of the comparison.
	Received time.Time
}

// Equal compares the reported content of two records.
func (s Status) Equal(o Status) bool {
	return s.Flags == o.Flags &&
		s.Azimuth == o.Azimuth &&
		s.Filter == o.Filter &&
		s.Aperture == o.Aperture &&
		s.Focus == o.Focus &&
		s.HourAngle == o.HourAngle &&
		s.Dec == o.Dec
}

// Driver is the capability every physical controller exposes.
type Driver interface {
	// Subsystem identifies the controller.
	Subsystem() Subsystem

	// ReadStatus returns the last status record received.
	ReadStatus() (Status, error)

	// SendCommand queues a command. It never blocks on I/O.
	SendCommand(code Code, params ...int32) error

	// SetOnStatus registers a callback fired when the status changes.
	// The callback runs on a driver goroutine.
	SetOnStatus(callback func(Status))
}

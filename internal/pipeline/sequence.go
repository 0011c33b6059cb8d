package pipeline

import (
	"github.com/nerrad567/dti-core/internal/device"
	"github.com/nerrad567/dti-core/internal/protocol"
)

// Device orders for sequential pipelines.
//
// Quit closes in the reverse of the TargetSet opening order, with the
// instrument devices in front. The forced closure has the same devices in
// the same order but is kept as its own list: the two are changed for
// different reasons and must be checked separately.
var (
	targetSetSequence = []device.ID{
		device.DomeShutterID,
		device.DropoutID,
		device.AcquisitionMirrorID,
		device.DomeRotationID,
		device.TelescopeDriveID,
	}

	quitSequence = []device.ID{
		device.InstrumentShutterID,
		device.AcquisitionMirrorID,
		device.FilterWheelID,
		device.ApertureWheelID,
		device.DropoutID,
		device.DomeShutterID,
		device.TelescopeDriveID,
		device.DomeRotationID,
	}

	forcedClosureSequence = []device.ID{
		device.InstrumentShutterID,
		device.AcquisitionMirrorID,
		device.FilterWheelID,
		device.ApertureWheelID,
		device.DropoutID,
		device.DomeShutterID,
		device.TelescopeDriveID,
		device.DomeRotationID,
	}

	dataPmtSequence = []device.ID{
		device.FocusEHTID,
		device.FilterWheelID,
		device.ApertureWheelID,
		device.AcquisitionMirrorID,
		device.InstrumentShutterID,
	}

	dataCcdSequence = []device.ID{
		device.InstrumentShutterID,
		device.AcquisitionMirrorID,
		device.FilterWheelID,
	}
)

// Sequence returns the device order for a sequential kind, or nil for a
// fan-out kind.
func Sequence(k protocol.Kind) []device.ID {
	switch k {
	case protocol.KindTargetSet:
		return targetSetSequence
	case protocol.KindQuit:
		return quitSequence
	case protocol.KindDataPmt:
		return dataPmtSequence
	case protocol.KindDataCcd:
		return dataCcdSequence
	default:
		return nil
	}
}

// replies reports whether a fan-out kind answers the scheduler. Time and
// Environment are broadcasts and are consumed silently.
func replies(k protocol.Kind) bool {
	return k != protocol.KindTime && k != protocol.KindEnvironment
}

// observing reports whether a kind is refused while latched unsafe.
func observing(k protocol.Kind) bool {
	switch k {
	case protocol.KindTargetSet, protocol.KindDataPmt, protocol.KindDataCcd:
		return true
	default:
		return false
	}
}

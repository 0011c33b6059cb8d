package device

import "errors"

// Errors returned by the typed SetGoal methods.
var (
	// ErrInterlock is returned when the shutter/dropout interlock forbids the goal.
	ErrInterlock = errors.New("device: interlock forbids goal")

	// ErrCommand is returned when the hardware command could not be queued.
	ErrCommand = errors.New("device: hardware command failed")

	// ErrOutOfRange is returned for a slot, position or coordinate outside limits.
	ErrOutOfRange = errors.New("device: goal out of range")

	// ErrEmergencyStop is returned while the telescope emergency stop is latched.
	ErrEmergencyStop = errors.New("device: emergency stop active")

	// ErrPowerUp is returned when the instrument shutter is inside its power-up delay.
	ErrPowerUp = errors.New("device: instrument power-up delay")

	// ErrAlreadyWired is returned by a second Interlock.Wire.
	ErrAlreadyWired = errors.New("device: interlock already wired")
)

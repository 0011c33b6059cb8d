package device

import (
	"fmt"

	"github.com/nerrad567/dti-core/internal/hardware"
)

// Set owns the nine controllers and their interlock.
type Set struct {
	Shutter     *DomeShutter
	Dropout     *Dropout
	Rotation    *DomeRotation
	Mirror      *AcquisitionMirror
	Filter      *Wheel
	Aperture    *Wheel
	InstShutter *InstrumentShutter
	FocusEHT    *FocusEHT
	Telescope   *TelescopeDrive
	Interlock   *Interlock

	all []Controller
}

// NewSet builds every controller, wires the interlock and seeds each
// controller from its driver's last known status.
//
// Parameters:
//   - env: Scheduler, completion sink and logger
//   - dome: Driver for the dome controller
//   - telescope: Driver for the telescope controller
//   - cfg: Timing, limits, site and capability tables
//
// Returns:
//   - *Set: Wired controllers in ID order
//   - error: If the interlock cannot be wired
func NewSet(env Env, dome, telescope hardware.Driver, cfg Config) (*Set, error) {
	t := cfg.Timing
	s := &Set{
		Shutter:     NewDomeShutter(env, dome, t.ShutterTimeout),
		Dropout:     NewDropout(env, dome, t.DropoutTimeout),
		Rotation:    NewDomeRotation(env, dome, t.RotationTimeout, cfg.Limits, cfg.Site, cfg.AutoTrack),
		Mirror:      NewAcquisitionMirror(env, telescope, t.MirrorTimeout, cfg.CCD),
		Filter:      NewFilterWheel(env, telescope, t.WheelTimeout, cfg.Filters),
		Aperture:    NewApertureWheel(env, telescope, t.WheelTimeout, cfg.Apertures),
		InstShutter: NewInstrumentShutter(env, telescope, t.InstShutterTimeout, t.InstPowerUp),
		FocusEHT:    NewFocusEHT(env, telescope, t, cfg.EHTVolts),
		Telescope:   NewTelescopeDrive(env, telescope, t.TelescopeTimeout, cfg.Limits, cfg.Site),
		Interlock:   NewInterlock(env.Logger),
	}
	if err := s.Interlock.Wire(s.Shutter, s.Dropout); err != nil {
		return nil, fmt.Errorf("wiring interlock: %w", err)
	}

	s.all = []Controller{
		s.Shutter, s.Dropout, s.Rotation, s.Mirror, s.Filter,
		s.Aperture, s.InstShutter, s.FocusEHT, s.Telescope,
	}

	for _, drv := range []hardware.Driver{dome, telescope} {
		st, err := drv.ReadStatus()
		if err != nil {
			continue
		}
		s.Update(drv.Subsystem(), st)
	}
	return s, nil
}

// All returns the controllers in ID order.
func (s *Set) All() []Controller {
	return s.all
}

// Get returns the controller for id.
func (s *Set) Get(id ID) Controller {
	return s.all[id]
}

// Update routes a status record to every controller on that subsystem.
//
// The shutter and dropout share the dome record, so both observe it before
// the interlock looks at either; otherwise one door would be checked against
// the other's previous state.
func (s *Set) Update(sub hardware.Subsystem, st hardware.Status) {
	doors := false
	for _, c := range s.all {
		if c.Subsystem() != sub {
			continue
		}
		switch d := c.(type) {
		case *DomeShutter:
			d.observe(st)
			doors = true
		case *Dropout:
			d.observe(st)
			doors = true
		default:
			c.OnHardwareUpdate(st)
		}
	}
	if doors {
		s.Interlock.transition()
	}
}

// AbandonAll drops every pending message and fail-timeout.
func (s *Set) AbandonAll() {
	for _, c := range s.all {
		c.Abandon()
	}
}

// Snapshots returns a snapshot of every controller in ID order.
func (s *Set) Snapshots() []Snapshot {
	out := make([]Snapshot, len(s.all))
	for i, c := range s.all {
		out[i] = c.Snapshot()
	}
	return out
}

package device

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/dti-core/internal/astro"
	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
)

// DomeRotation keeps the dome slot in front of the telescope. The goal is
// continuous: it is reached once the reported azimuth is inside a tolerance
// band around the goal. It only moves for pipelines while auto-track is on.
type DomeRotation struct {
	base

	tolerance float64
	parkAz    float64
	latitude  float64
	clock     sidereal
	autoTrack bool

	azimuth float64
	goalAz  float64
	hasGoal bool
	parking bool

	// tracked is the target followed on Time broadcasts.
	tracked *protocol.Target
}

// NewDomeRotation creates the rotation controller on the dome driver.
func NewDomeRotation(env Env, drv hardware.Driver, failTimeout time.Duration, limits Limits, site Site, autoTrack bool) *DomeRotation {
	return &DomeRotation{
		base:      newBase(DomeRotationID, env, drv, failTimeout, false),
		tolerance: limits.DomeTolerance,
		parkAz:    limits.DomeParkAzimuth,
		latitude:  site.Latitude,
		clock:     sidereal{longitude: site.Longitude},
		autoTrack: autoTrack,
	}
}

// SetAutoTrack turns dome tracking on or off. Turning it on realigns at once.
func (r *DomeRotation) SetAutoTrack(on bool) {
	r.autoTrack = on
	r.logInfo("auto-track changed", "enabled", on)
	if on {
		r.realign()
	}
}

// AutoTrack reports whether the dome follows the telescope.
func (r *DomeRotation) AutoTrack() bool { return r.autoTrack }

// Azimuth returns the last reported dome azimuth.
func (r *DomeRotation) Azimuth() float64 { return r.azimuth }

// SetGoal rotates the dome to az degrees.
func (r *DomeRotation) SetGoal(az float64) error {
	az = astro.NormalizeDegrees(az)
	if !r.start(fmt.Sprintf("%.1f", az), hardware.CmdDomeGoto, hardware.Scaled(az, hardware.CentiDegrees)) {
		return fmt.Errorf("%w: dome goto", ErrCommand)
	}
	r.goalAz = az
	r.hasGoal = true
	r.parking = false
	return nil
}

// Park rotates the dome to its park azimuth.
func (r *DomeRotation) Park() error {
	if !r.start("park", hardware.CmdDomePark, hardware.Scaled(r.parkAz, hardware.CentiDegrees)) {
		return fmt.Errorf("%w: dome park", ErrCommand)
	}
	r.goalAz = r.parkAz
	r.hasGoal = true
	r.parking = true
	return nil
}

// ProcessMessage implements Controller.
func (r *DomeRotation) ProcessMessage(msg *protocol.Message) protocol.Status {
	switch p := msg.Payload.(type) {
	case *protocol.TargetSet:
		if !p.Auto {
			return protocol.StatusGood
		}
		r.tracked = &p.Target
		if !r.autoTrack {
			return protocol.StatusGood
		}
		if r.Busy() {
			return protocol.StatusErrWait
		}
		az := r.targetAzimuth()
		if r.within(az) && !r.moving() {
			r.goalAz, r.hasGoal, r.parking = az, true, false
			r.state = StateAtGoal
			return protocol.StatusGood
		}
		if err := r.SetGoal(az); err != nil {
			return protocol.StatusErrRetry
		}
		return r.hold(msg)

	case *protocol.Quit:
		if !p.Auto && !p.Forced {
			return protocol.StatusGood
		}
		r.tracked = nil
		if r.Busy() {
			return protocol.StatusErrWait
		}
		if r.parked() {
			return protocol.StatusGood
		}
		if err := r.Park(); err != nil {
			return protocol.StatusErrRetry
		}
		return r.hold(msg)

	case *protocol.Time:
		r.clock.observe(p, r.env.Scheduler.Now())
		r.realign()
		return protocol.StatusGood

	case *protocol.Coordinates:
		r.completeLater(msg, func() protocol.Status {
			st, err := r.drv.ReadStatus()
			if err != nil {
				return protocol.StatusErrRetry
			}
			p.DomeAzimuth = st.Azimuth
			return protocol.StatusGood
		})
		return protocol.StatusDeferred

	case *protocol.Capabilities:
		p.DomeTolerance = r.tolerance
		return protocol.StatusGood

	default:
		return protocol.StatusGood
	}
}

// realign follows the tracked target between pipelines.
func (r *DomeRotation) realign() {
	if !r.autoTrack || r.tracked == nil || r.Busy() || r.moving() {
		return
	}
	az := r.targetAzimuth()
	if r.within(az) {
		return
	}
	if err := r.SetGoal(az); err != nil {
		r.logError("realign failed", err)
	}
}

func (r *DomeRotation) targetAzimuth() float64 {
	ra, dec := apparent(r.tracked)
	ha := astro.HourAngle(r.clock.now(r.env.Scheduler.Now()), ra)
	_, az := astro.Horizon(ha, dec, r.latitude)
	return az
}

func (r *DomeRotation) within(az float64) bool {
	return math.Abs(astro.AngleDiff(r.azimuth, az)) <= r.tolerance
}

func (r *DomeRotation) moving() bool { return r.flags.Any(hardware.DomeMoving) }

func (r *DomeRotation) parked() bool {
	return r.flags.Has(hardware.DomeParked) && !r.moving()
}

// OnHardwareUpdate implements Controller.
func (r *DomeRotation) OnHardwareUpdate(st hardware.Status) {
	r.flags = st.Flags & (hardware.DomeMoving | hardware.DomeParked)
	r.azimuth = st.Azimuth

	switch {
	case r.moving():
		r.state = StateMoving
	case r.hasGoal && r.within(r.goalAz) && (!r.parking || r.parked()):
		r.reached()
	case r.state == StateError:
	default:
		r.state = StateIdle
	}
}

// Snapshot implements Controller.
func (r *DomeRotation) Snapshot() Snapshot {
	current := fmt.Sprintf("%.1f", r.azimuth)
	if r.parked() {
		current = "parked"
	}
	return r.snapshot(current, map[string]float64{"azimuth": r.azimuth})
}

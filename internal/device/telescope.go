package device

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/dti-core/internal/astro"
	"github.com/nerrad567/dti-core/internal/hardware"
	"github.com/nerrad567/dti-core/internal/protocol"
)

// TelescopeDrive points the telescope.
//
// Gotos outside the soft limits are refused with ErrNext. A latched
// emergency stop refuses every operation with ErrWait until acknowledged.
// A hard-limit report is a fault. Tracking is switched independently of
// gotos.
type TelescopeDrive struct {
	base

	limits   Limits
	site     Site
	latitude float64
	clock    sidereal

	ha  float64
	dec float64

	goalHA  float64
	goalDec float64
	hasGoal bool
	parking bool
}

// NewTelescopeDrive creates the drive controller on the telescope driver.
func NewTelescopeDrive(env Env, drv hardware.Driver, failTimeout time.Duration, limits Limits, site Site) *TelescopeDrive {
	return &TelescopeDrive{
		base:     newBase(TelescopeDriveID, env, drv, failTimeout, false),
		limits:   limits,
		site:     site,
		latitude: site.Latitude,
		clock:    sidereal{longitude: site.Longitude},
	}
}

// Position returns the last reported hour angle (hours) and declination (degrees).
func (t *TelescopeDrive) Position() (ha, dec float64) { return t.ha, t.dec }

// EmergencyStop reports whether the emergency stop is latched.
func (t *TelescopeDrive) EmergencyStop() bool { return t.flags.Has(hardware.TelEStop) }

// Tracking reports whether the drive last reported tracking.
func (t *TelescopeDrive) Tracking() bool { return t.flags.Has(hardware.TelTracking) }

// CheckLimits validates a pointing against the soft limits.
func (t *TelescopeDrive) CheckLimits(ha, dec float64) error {
	l := t.limits
	if ha < l.HAMin || ha > l.HAMax {
		return fmt.Errorf("%w: hour angle %.3fh outside [%.2f, %.2f]", ErrOutOfRange, ha, l.HAMin, l.HAMax)
	}
	if dec < l.DecMin || dec > l.DecMax {
		return fmt.Errorf("%w: declination %.3f outside [%.2f, %.2f]", ErrOutOfRange, dec, l.DecMin, l.DecMax)
	}
	if alt, _ := astro.Horizon(ha, dec, t.latitude); alt < l.AltitudeMin {
		return fmt.Errorf("%w: altitude %.2f below %.2f", ErrOutOfRange, alt, l.AltitudeMin)
	}
	return nil
}

// SetGoal slews to hour angle ha (hours) and declination dec (degrees).
func (t *TelescopeDrive) SetGoal(ha, dec float64) error {
	if t.EmergencyStop() {
		return ErrEmergencyStop
	}
	if err := t.CheckLimits(ha, dec); err != nil {
		return err
	}
	goal := fmt.Sprintf("ha %.4f dec %.4f", ha, dec)
	if !t.start(goal, hardware.CmdTelGoto, hardware.Scaled(ha, hardware.MicroUnits), hardware.Scaled(dec, hardware.MicroUnits)) {
		return fmt.Errorf("%w: telescope goto", ErrCommand)
	}
	t.goalHA, t.goalDec = ha, dec
	t.hasGoal = true
	t.parking = false
	return nil
}

// Park stops tracking and slews to the park position.
func (t *TelescopeDrive) Park() error {
	if t.EmergencyStop() {
		return ErrEmergencyStop
	}
	if t.Tracking() && !t.command(hardware.CmdTelTrack, 0) {
		return fmt.Errorf("%w: tracking off", ErrCommand)
	}
	ha, dec := t.limits.ParkHourAngle, t.limits.ParkDec
	if !t.start("park", hardware.CmdTelPark, hardware.Scaled(ha, hardware.MicroUnits), hardware.Scaled(dec, hardware.MicroUnits)) {
		return fmt.Errorf("%w: telescope park", ErrCommand)
	}
	t.goalHA, t.goalDec = ha, dec
	t.hasGoal = true
	t.parking = true
	return nil
}

// SetTracking switches sidereal tracking.
func (t *TelescopeDrive) SetTracking(on bool) error {
	if t.EmergencyStop() {
		return ErrEmergencyStop
	}
	var level int32
	if on {
		level = 1
	}
	if !t.command(hardware.CmdTelTrack, level) {
		return fmt.Errorf("%w: tracking", ErrCommand)
	}
	return nil
}

// Slew starts a manual cardinal slew. Refused while a goto is pending.
func (t *TelescopeDrive) Slew(dir hardware.Direction) error {
	if t.EmergencyStop() {
		return ErrEmergencyStop
	}
	if t.Busy() {
		return fmt.Errorf("%w: goto in progress", ErrInterlock)
	}
	if dir < hardware.North || dir > hardware.West {
		return fmt.Errorf("%w: %s", ErrOutOfRange, dir)
	}
	if !t.command(hardware.CmdTelSlew, int32(dir)) {
		return fmt.Errorf("%w: slew", ErrCommand)
	}
	t.hasGoal = false
	return nil
}

// StopSlew stops a manual slew.
func (t *TelescopeDrive) StopSlew() error {
	if !t.command(hardware.CmdTelStop) {
		return fmt.Errorf("%w: stop", ErrCommand)
	}
	return nil
}

// AcknowledgeEStop asks the drive to release a latched emergency stop.
func (t *TelescopeDrive) AcknowledgeEStop() error {
	if !t.command(hardware.CmdEStopAck) {
		return fmt.Errorf("%w: estop ack", ErrCommand)
	}
	return nil
}

// ProcessMessage implements Controller.
func (t *TelescopeDrive) ProcessMessage(msg *protocol.Message) protocol.Status {
	switch p := msg.Payload.(type) {
	case *protocol.TargetSet:
		return t.gotoTarget(msg, &p.Target)

	case *protocol.Quit:
		if t.EmergencyStop() || t.Busy() {
			return protocol.StatusErrWait
		}
		if t.parked() {
			return protocol.StatusGood
		}
		if err := t.Park(); err != nil {
			return protocol.StatusErrRetry
		}
		return t.hold(msg)

	case *protocol.Time:
		t.clock.observe(p, t.env.Scheduler.Now())
		return protocol.StatusGood

	case *protocol.Coordinates:
		t.completeLater(msg, func() protocol.Status {
			st, err := t.drv.ReadStatus()
			if err != nil {
				return protocol.StatusErrRetry
			}
			p.HourAngle = st.HourAngle
			p.Declination = st.Dec
			p.Altitude, p.Azimuth = astro.Horizon(st.HourAngle, st.Dec, t.latitude)
			p.Tracking = st.Flags.Has(hardware.TelTracking)
			return protocol.StatusGood
		})
		return protocol.StatusDeferred

	case *protocol.Capabilities:
		p.SiteName = t.site.Name
		p.Latitude, p.Longitude, p.Altitude = t.site.Latitude, t.site.Longitude, t.site.Altitude
		return protocol.StatusGood

	case *protocol.TargetCapabilities:
		p.HAMin, p.HAMax = t.limits.HAMin, t.limits.HAMax
		p.DecMin, p.DecMax = t.limits.DecMin, t.limits.DecMax
		p.AltitudeMin = t.limits.AltitudeMin
		return protocol.StatusGood

	default:
		return protocol.StatusGood
	}
}

func (t *TelescopeDrive) gotoTarget(msg *protocol.Message, target *protocol.Target) protocol.Status {
	if t.EmergencyStop() || t.Busy() {
		return protocol.StatusErrWait
	}

	ra, dec := apparent(target)
	ha := astro.HourAngle(t.clock.now(t.env.Scheduler.Now()), ra)
	if err := t.CheckLimits(ha, dec); err != nil {
		t.logInfo("target refused", "target", target.Name, "reason", err.Error())
		return protocol.StatusErrNext
	}

	if t.near(ha, dec) && !t.slewing() {
		t.goalHA, t.goalDec, t.hasGoal, t.parking = ha, dec, true, false
		t.state = StateAtGoal
		return protocol.StatusGood
	}
	if err := t.SetGoal(ha, dec); err != nil {
		return protocol.StatusErrRetry
	}
	return t.hold(msg)
}

func (t *TelescopeDrive) near(ha, dec float64) bool {
	tol := t.limits.PointingTolerance
	return math.Abs(ha-t.ha)*15 <= tol && math.Abs(dec-t.dec) <= tol
}

func (t *TelescopeDrive) slewing() bool { return t.flags.Has(hardware.TelSlewing) }

func (t *TelescopeDrive) parked() bool {
	return t.flags.Has(hardware.TelParked) && !t.slewing()
}

// OnHardwareUpdate implements Controller.
func (t *TelescopeDrive) OnHardwareUpdate(st hardware.Status) {
	mask := hardware.TelSlewing | hardware.TelTracking | hardware.TelEStop | hardware.TelParked | hardware.TelHardLimit
	prev := t.flags
	t.flags = st.Flags & mask
	t.ha, t.dec = st.HourAngle, st.Dec

	if t.flags.Has(hardware.TelHardLimit) {
		if !prev.Has(hardware.TelHardLimit) {
			t.fault(fmt.Sprintf("hard limit at ha %.3f dec %.3f", t.ha, t.dec))
		}
		return
	}

	if t.flags.Has(hardware.TelEStop) {
		if !prev.Has(hardware.TelEStop) {
			t.logWarn("emergency stop latched")
			t.state = StateError
			t.hasGoal = false
			t.finish(protocol.StatusErrWait, "emergency stop")
		}
		return
	}

	switch {
	case t.slewing():
		t.state = StateMoving
	case t.hasGoal && t.parking && t.parked():
		t.reached()
	case t.hasGoal && !t.parking && t.near(t.goalHA, t.goalDec):
		t.reached()
	case t.state == StateError:
		if prev.Has(hardware.TelEStop) {
			t.state = StateIdle
		}
	default:
		t.state = StateIdle
	}
}

// Snapshot implements Controller.
func (t *TelescopeDrive) Snapshot() Snapshot {
	current := fmt.Sprintf("ha %.4f dec %.4f", t.ha, t.dec)
	switch {
	case t.EmergencyStop():
		current = "estop"
	case t.parked():
		current = "parked"
	}
	return t.snapshot(current, map[string]float64{
		"hour_angle":  t.ha,
		"declination": t.dec,
		"tracking":    boolValue(t.Tracking()),
	})
}

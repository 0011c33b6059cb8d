// Package astro holds the small amount of positional astronomy the
// controllers need: sidereal time, hour angle and horizon coordinates.
//
// Precession, nutation and refraction are deliberately absent; targets
// arrive already reduced to the epoch of date.
package astro

import (
	"math"
	"time"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	// j2000 is the Julian date of 2000-01-01 12:00 TT.
	j2000 = 2451545.0
)

// JulianDate returns the Julian date of t.
func JulianDate(t time.Time) float64 {
	return float64(t.UTC().UnixNano())/float64(24*time.Hour) + 2440587.5
}

// GMST returns Greenwich mean sidereal time in hours, [0, 24).
func GMST(t time.Time) float64 {
	d := JulianDate(t) - j2000
	return NormalizeHours(18.697374558 + 24.06570982441908*d)
}

// LST returns local mean sidereal time in hours for an east-positive
// longitude in degrees.
func LST(t time.Time, longitude float64) float64 {
	return NormalizeHours(GMST(t) + longitude/15)
}

// HourAngle returns lst - ra in hours, normalised to [-12, 12).
func HourAngle(lst, ra float64) float64 {
	ha := NormalizeHours(lst - ra)
	if ha >= 12 {
		ha -= 24
	}
	return ha
}

// Horizon converts hour angle (hours) and declination (degrees) at the given
// latitude (degrees) to altitude and azimuth in degrees. Azimuth is measured
// from north through east, [0, 360).
func Horizon(ha, dec, latitude float64) (altitude, azimuth float64) {
	h := ha * 15 * deg2rad
	d := dec * deg2rad
	phi := latitude * deg2rad

	sinAlt := math.Sin(d)*math.Sin(phi) + math.Cos(d)*math.Cos(phi)*math.Cos(h)
	sinAlt = math.Max(-1, math.Min(1, sinAlt))
	alt := math.Asin(sinAlt)

	y := -math.Cos(d) * math.Sin(h)
	x := math.Sin(d)*math.Cos(phi) - math.Cos(d)*math.Sin(phi)*math.Cos(h)
	az := math.Atan2(y, x)

	return alt * rad2deg, NormalizeDegrees(az * rad2deg)
}

// NormalizeHours maps h into [0, 24).
func NormalizeHours(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}

// NormalizeDegrees maps v into [0, 360).
func NormalizeDegrees(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	if v >= 360 {
		return 0
	}
	return v
}

// AngleDiff returns the signed shortest rotation from a to b in degrees,
// in (-180, 180].
func AngleDiff(a, b float64) float64 {
	d := NormalizeDegrees(b - a)
	if d > 180 {
		d -= 360
	}
	return d
}

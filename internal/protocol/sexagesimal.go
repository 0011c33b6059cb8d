package protocol

import (
	"fmt"
	"math"
)

// RightAscension is a sexagesimal right ascension.
type RightAscension struct {
	Hours   uint8
	Minutes uint8
	Seconds float64
}

// DecimalHours returns the right ascension in decimal hours.
func (r RightAscension) DecimalHours() float64 {
	return float64(r.Hours) + float64(r.Minutes)/60 + r.Seconds/3600
}

// String formats the right ascension as hh:mm:ss.ss.
func (r RightAscension) String() string {
	return fmt.Sprintf("%02d:%02d:%05.2f", r.Hours, r.Minutes, r.Seconds)
}

// RAFromHours converts decimal hours, normalised to [0, 24), to sexagesimal.
func RAFromHours(h float64) RightAscension {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	hours, rem := math.Modf(h)
	minutes, rem := math.Modf(rem * 60)
	return RightAscension{
		Hours:   uint8(hours),
		Minutes: uint8(minutes),
		Seconds: rem * 60,
	}
}

// Declination is a sexagesimal declination. Negative carries the sign so
// that -00:30:00 is representable.
type Declination struct {
	Negative bool
	Degrees  uint8
	Minutes  uint8
	Seconds  float64
}

// DecimalDegrees returns the declination in signed decimal degrees.
func (d Declination) DecimalDegrees() float64 {
	v := float64(d.Degrees) + float64(d.Minutes)/60 + d.Seconds/3600
	if d.Negative {
		return -v
	}
	return v
}

// String formats the declination as ±dd:mm:ss.s.
func (d Declination) String() string {
	sign := '+'
	if d.Negative {
		sign = '-'
	}
	return fmt.Sprintf("%c%02d:%02d:%04.1f", sign, d.Degrees, d.Minutes, d.Seconds)
}

// DecFromDegrees converts signed decimal degrees to sexagesimal.
func DecFromDegrees(v float64) Declination {
	d := Declination{Negative: v < 0}
	v = math.Abs(v)
	deg, rem := math.Modf(v)
	minutes, rem := math.Modf(rem * 60)
	d.Degrees = uint8(deg)
	d.Minutes = uint8(minutes)
	d.Seconds = rem * 60
	return d
}

package device

import "time"

// Timing holds per-device fail-timeouts and the instrument delays.
type Timing struct {
	ShutterTimeout     time.Duration
	DropoutTimeout     time.Duration
	RotationTimeout    time.Duration
	MirrorTimeout      time.Duration
	WheelTimeout       time.Duration
	InstShutterTimeout time.Duration
	FocusTimeout       time.Duration
	TelescopeTimeout   time.Duration
	EHTStabilize       time.Duration
	InstPowerUp        time.Duration
	FocusStallTimeout  time.Duration
}

// Limits holds the telescope soft limits and the park positions.
type Limits struct {
	HAMin       float64 // hours
	HAMax       float64 // hours
	DecMin      float64 // degrees
	DecMax      float64 // degrees
	AltitudeMin float64 // degrees

	// PointingTolerance is how close, in degrees, a goto must land.
	PointingTolerance float64

	// DomeTolerance is the half-width, in degrees, of the dome AtGoal band.
	DomeTolerance float64

	DomeParkAzimuth float64 // degrees
	ParkHourAngle   float64 // hours
	ParkDec         float64 // degrees
}

// Site is the observatory location.
type Site struct {
	Name      string
	Latitude  float64 // degrees, north positive
	Longitude float64 // degrees, east positive
	Altitude  float64 // metres
}

// CCD is the acquisition camera geometry reported by CcdCapabilities.
type CCD struct {
	Width      uint16
	Height     uint16
	PixelScale float64 // arcseconds per pixel
}

// Config is everything NewSet needs beyond the drivers.
type Config struct {
	Timing    Timing
	Limits    Limits
	Site      Site
	Filters   []string
	Apertures []string
	EHTVolts  uint16
	CCD       CCD

	// AutoTrack starts dome rotation following the telescope.
	AutoTrack bool
}

// DefaultConfig returns conservative values for a small dome.
func DefaultConfig() Config {
	return Config{
		Timing: Timing{
			ShutterTimeout:     90 * time.Second,
			DropoutTimeout:     60 * time.Second,
			RotationTimeout:    3 * time.Minute,
			MirrorTimeout:      15 * time.Second,
			WheelTimeout:       30 * time.Second,
			InstShutterTimeout: 5 * time.Second,
			FocusTimeout:       60 * time.Second,
			TelescopeTimeout:   3 * time.Minute,
			EHTStabilize:       2 * time.Minute,
			InstPowerUp:        10 * time.Second,
			FocusStallTimeout:  5 * time.Second,
		},
		Limits: Limits{
			HAMin:             -6,
			HAMax:             6,
			DecMin:            -30,
			DecMax:            85,
			AltitudeMin:       15,
			PointingTolerance: 0.05,
			DomeTolerance:     3,
			DomeParkAzimuth:   0,
			ParkHourAngle:     0,
			ParkDec:           85,
		},
		Filters:   []string{"clear"},
		Apertures: []string{"open"},
		EHTVolts:  1200,
		CCD:       CCD{Width: 512, Height: 512, PixelScale: 0.5},
		AutoTrack: true,
	}
}

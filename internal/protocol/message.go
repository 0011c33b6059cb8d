package protocol

import (
	"fmt"
	"time"
)

// Kind is the type tag of a message.
type Kind uint8

// Message kinds. The numeric values are part of the wire format.
const (
	KindQuit               Kind = 1
	KindCapabilities       Kind = 2
	KindStatus             Kind = 3
	KindCoordinates        Kind = 4
	KindTime               Kind = 5
	KindEnvironment        Kind = 6
	KindTargetCapabilities Kind = 7
	KindTargetSet          Kind = 8
	KindPmtCapabilities    Kind = 9
	KindDataPmt            Kind = 10
	KindCcdCapabilities    Kind = 11
	KindDataCcd            Kind = 12
)

// Kinds lists every message kind in tag order.
var Kinds = []Kind{
	KindQuit, KindCapabilities, KindStatus, KindCoordinates, KindTime, KindEnvironment,
	KindTargetCapabilities, KindTargetSet, KindPmtCapabilities, KindDataPmt,
	KindCcdCapabilities, KindDataCcd,
}

var kindNames = map[Kind]string{
	KindQuit:               "quit",
	KindCapabilities:       "capabilities",
	KindStatus:             "status",
	KindCoordinates:        "coordinates",
	KindTime:               "time",
	KindEnvironment:        "environment",
	KindTargetCapabilities: "target_capabilities",
	KindTargetSet:          "target_set",
	KindPmtCapabilities:    "pmt_capabilities",
	KindDataPmt:            "data_pmt",
	KindCcdCapabilities:    "ccd_capabilities",
	KindDataCcd:            "data_ccd",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses a name returned by String.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Valid reports whether k is one of the twelve known kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Fixed field widths shared by the codec and payload validation.
const (
	// NameSize is the width of target and site name fields.
	NameSize = 32

	// SlotNameSize is the width of a filter or aperture name.
	SlotNameSize = 8

	// MaxSlots is the number of filter or aperture names a capabilities
	// record can carry.
	MaxSlots = 8

	// DeviceCount is the number of device entries in a StatusReport.
	DeviceCount = 9
)

// Payload is implemented by every concrete message payload.
type Payload interface {
	Kind() Kind
}

// Message is one protocol message plus the orchestration metadata that
// travels with it.
//
// A Message is owned by the orchestrator. While a stage is active the
// controller for that stage holds a reference and must hand it back through
// completion; it never frees or forwards it itself.
type Message struct {
	// Status is the pipeline-level status: the most severe stage result so far.
	Status Status

	// Stage is the position within the pipeline's device sequence.
	Stage uint8

	// Pending counts fan-out deliveries still awaiting completion.
	// Local only; not encoded.
	Pending int

	// Payload is the kind-specific content.
	Payload Payload
}

// New wraps a payload in a fresh message at stage zero.
func New(p Payload) *Message {
	return &Message{Payload: p}
}

// Kind returns the message kind, derived from the payload.
func (m *Message) Kind() Kind {
	if m == nil || m.Payload == nil {
		return 0
	}
	return m.Payload.Kind()
}

// Target returns the target block of TargetSet, DataPmt and DataCcd messages.
func (m *Message) Target() (*Target, bool) {
	switch p := m.Payload.(type) {
	case *TargetSet:
		return &p.Target, true
	case *DataPmt:
		return &p.Target, true
	case *DataCcd:
		return &p.Target, true
	default:
		return nil, false
	}
}

// Quit asks the observatory to close down.
type Quit struct {
	// Auto closes the dome devices too; manual quit leaves them to the operator.
	Auto bool

	// Forced marks the locally generated emergency closure.
	Forced bool

	// Reason is a short operator-facing explanation.
	Reason string
}

// Kind implements Payload.
func (*Quit) Kind() Kind { return KindQuit }

// Capabilities describes the site.
type Capabilities struct {
	SiteName      string
	Latitude      float64 // degrees, north positive
	Longitude     float64 // degrees, east positive
	Altitude      float64 // metres
	DomeTolerance float64 // degrees
}

// Kind implements Payload.
func (*Capabilities) Kind() Kind { return KindCapabilities }

// DeviceReport is one device's entry in a StatusReport.
type DeviceReport struct {
	State uint8
	Flags uint32
}

// StatusReport summarises every device. Entries are indexed by device ordinal.
type StatusReport struct {
	Unsafe  bool
	Devices [DeviceCount]DeviceReport
}

// Kind implements Payload.
func (*StatusReport) Kind() Kind { return KindStatus }

// Coordinates reports where the telescope and dome are pointing.
type Coordinates struct {
	HourAngle   float64 // hours
	Declination float64 // degrees
	Altitude    float64 // degrees
	Azimuth     float64 // degrees
	DomeAzimuth float64 // degrees
	Tracking    bool
}

// Kind implements Payload.
func (*Coordinates) Kind() Kind { return KindCoordinates }

// Time is the scheduler's clock broadcast.
type Time struct {
	UTC time.Time
	LST float64 // local sidereal time, hours
}

// Kind implements Payload.
func (*Time) Kind() Kind { return KindTime }

// Environment is the weather and daylight broadcast.
type Environment struct {
	WeatherBad  bool
	Daylight    bool
	SunAltitude float64 // degrees
	WindSpeed   float64 // m/s
	Humidity    float64 // percent
}

// Kind implements Payload.
func (*Environment) Kind() Kind { return KindEnvironment }

// Adverse reports whether the dome must close.
func (e *Environment) Adverse() bool {
	return e.WeatherBad || e.Daylight
}

// TargetCapabilities reports the telescope soft limits.
type TargetCapabilities struct {
	HAMin       float64 // hours
	HAMax       float64 // hours
	DecMin      float64 // degrees
	DecMax      float64 // degrees
	AltitudeMin float64 // degrees
}

// Kind implements Payload.
func (*TargetCapabilities) Kind() Kind { return KindTargetCapabilities }

// Target is the block shared by TargetSet, DataPmt and DataCcd.
type Target struct {
	Auto     bool
	ID       uint32
	Name     string
	RA       RightAscension
	Dec      Declination
	AdjRA    float64 // arcseconds
	AdjDec   float64 // arcseconds
	Centered bool
	Focus    int32
}

// TargetSet points the observatory at a target.
type TargetSet struct {
	Target
}

// Kind implements Payload.
func (*TargetSet) Kind() Kind { return KindTargetSet }

// PmtCapabilities lists the photometer configuration.
type PmtCapabilities struct {
	Filters   []string
	Apertures []string
	EHTVolts  uint16
}

// Kind implements Payload.
func (*PmtCapabilities) Kind() Kind { return KindPmtCapabilities }

// DataPmt prepares the photometer for a data run on the current target.
type DataPmt struct {
	Target
	SamplePeriod time.Duration
	Prebin       uint16
	Repetitions  uint32
	Filter       uint8
	Aperture     uint8
}

// Kind implements Payload.
func (*DataPmt) Kind() Kind { return KindDataPmt }

// CcdCapabilities describes the acquisition camera.
type CcdCapabilities struct {
	Width      uint16
	Height     uint16
	PixelScale float64 // arcseconds per pixel
}

// Kind implements Payload.
func (*CcdCapabilities) Kind() Kind { return KindCcdCapabilities }

// DataCcd prepares the acquisition path for a CCD exposure.
type DataCcd struct {
	Target
	Exposure time.Duration
	Filter   uint8
}

// Kind implements Payload.
func (*DataCcd) Kind() Kind { return KindDataCcd }

// newPayload returns an empty payload for k.
func newPayload(k Kind) (Payload, error) {
	switch k {
	case KindQuit:
		return &Quit{}, nil
	case KindCapabilities:
		return &Capabilities{}, nil
	case KindStatus:
		return &StatusReport{}, nil
	case KindCoordinates:
		return &Coordinates{}, nil
	case KindTime:
		return &Time{}, nil
	case KindEnvironment:
		return &Environment{}, nil
	case KindTargetCapabilities:
		return &TargetCapabilities{}, nil
	case KindTargetSet:
		return &TargetSet{}, nil
	case KindPmtCapabilities:
		return &PmtCapabilities{}, nil
	case KindDataPmt:
		return &DataPmt{}, nil
	case KindCcdCapabilities:
		return &CcdCapabilities{}, nil
	case KindDataCcd:
		return &DataCcd{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
}

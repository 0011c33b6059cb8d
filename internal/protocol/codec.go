package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Record layout constants.
const (
	// RecordSize is the size of every record on the wire.
	RecordSize = 256

	// Magic identifies a record ("DT").
	Magic uint16 = 0x4454

	// headerSize is the fixed header in front of the payload.
	headerSize = 8

	// maxPayloadSize is the room left for the payload.
	maxPayloadSize = RecordSize - headerSize
)

// Encode serialises m into a RecordSize-byte record.
//
// Returns:
//   - []byte: Exactly RecordSize bytes
//   - error: ErrUnknownKind for a nil or foreign payload, ErrPayloadTooLarge
//     if the payload does not fit
func Encode(m *Message) ([]byte, error) {
	kind := m.Kind()
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}

	w := &recordWriter{buf: make([]byte, 0, maxPayloadSize)}
	encodePayload(w, m.Payload)
	if len(w.buf) > maxPayloadSize {
		return nil, fmt.Errorf("%w: %s needs %d bytes", ErrPayloadTooLarge, kind, len(w.buf))
	}

	rec := make([]byte, RecordSize)
	binary.BigEndian.PutUint16(rec[0:2], Magic)
	rec[2] = byte(kind)
	rec[3] = byte(m.Status)
	rec[4] = m.Stage
	binary.BigEndian.PutUint16(rec[6:8], uint16(len(w.buf))) //nolint:gosec // bounded by maxPayloadSize
	copy(rec[headerSize:], w.buf)
	return rec, nil
}

// Decode parses a record produced by Encode.
//
// Returns:
//   - *Message: Decoded message with Pending zero
//   - error: ErrShortRecord, ErrBadMagic or ErrUnknownKind
func Decode(rec []byte) (*Message, error) {
	if len(rec) < RecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(rec))
	}
	if binary.BigEndian.Uint16(rec[0:2]) != Magic {
		return nil, ErrBadMagic
	}

	payload, err := newPayload(Kind(rec[2]))
	if err != nil {
		return nil, err
	}

	r := &recordReader{buf: rec[headerSize:RecordSize]}
	decodePayload(r, payload)

	return &Message{
		Status:  Status(rec[3]),
		Stage:   rec[4],
		Payload: payload,
	}, nil
}

func encodePayload(w *recordWriter, p Payload) {
	switch v := p.(type) {
	case *Quit:
		w.bool(v.Auto)
		w.bool(v.Forced)
		w.str(v.Reason, NameSize)
	case *Capabilities:
		w.str(v.SiteName, NameSize)
		w.f64(v.Latitude)
		w.f64(v.Longitude)
		w.f64(v.Altitude)
		w.f64(v.DomeTolerance)
	case *StatusReport:
		w.bool(v.Unsafe)
		for _, d := range v.Devices {
			w.u8(d.State)
			w.u32(d.Flags)
		}
	case *Coordinates:
		w.f64(v.HourAngle)
		w.f64(v.Declination)
		w.f64(v.Altitude)
		w.f64(v.Azimuth)
		w.f64(v.DomeAzimuth)
		w.bool(v.Tracking)
	case *Time:
		w.i64(v.UTC.UnixMilli())
		w.f64(v.LST)
	case *Environment:
		w.bool(v.WeatherBad)
		w.bool(v.Daylight)
		w.f64(v.SunAltitude)
		w.f64(v.WindSpeed)
		w.f64(v.Humidity)
	case *TargetCapabilities:
		w.f64(v.HAMin)
		w.f64(v.HAMax)
		w.f64(v.DecMin)
		w.f64(v.DecMax)
		w.f64(v.AltitudeMin)
	case *TargetSet:
		w.target(&v.Target)
	case *PmtCapabilities:
		w.slots(v.Filters)
		w.slots(v.Apertures)
		w.u16(v.EHTVolts)
	case *DataPmt:
		w.target(&v.Target)
		w.u32(uint32(v.SamplePeriod.Milliseconds())) //nolint:gosec // sample periods are small
		w.u16(v.Prebin)
		w.u32(v.Repetitions)
		w.u8(v.Filter)
		w.u8(v.Aperture)
	case *CcdCapabilities:
		w.u16(v.Width)
		w.u16(v.Height)
		w.f64(v.PixelScale)
	case *DataCcd:
		w.target(&v.Target)
		w.u32(uint32(v.Exposure.Milliseconds())) //nolint:gosec // exposures are small
		w.u8(v.Filter)
	}
}

func decodePayload(r *recordReader, p Payload) {
	switch v := p.(type) {
	case *Quit:
		v.Auto = r.bool()
		v.Forced = r.bool()
		v.Reason = r.str(NameSize)
	case *Capabilities:
		v.SiteName = r.str(NameSize)
		v.Latitude = r.f64()
		v.Longitude = r.f64()
		v.Altitude = r.f64()
		v.DomeTolerance = r.f64()
	case *StatusReport:
		v.Unsafe = r.bool()
		for i := range v.Devices {
			v.Devices[i].State = r.u8()
			v.Devices[i].Flags = r.u32()
		}
	case *Coordinates:
		v.HourAngle = r.f64()
		v.Declination = r.f64()
		v.Altitude = r.f64()
		v.Azimuth = r.f64()
		v.DomeAzimuth = r.f64()
		v.Tracking = r.bool()
	case *Time:
		v.UTC = time.UnixMilli(r.i64()).UTC()
		v.LST = r.f64()
	case *Environment:
		v.WeatherBad = r.bool()
		v.Daylight = r.bool()
		v.SunAltitude = r.f64()
		v.WindSpeed = r.f64()
		v.Humidity = r.f64()
	case *TargetCapabilities:
		v.HAMin = r.f64()
		v.HAMax = r.f64()
		v.DecMin = r.f64()
		v.DecMax = r.f64()
		v.AltitudeMin = r.f64()
	case *TargetSet:
		r.target(&v.Target)
	case *PmtCapabilities:
		v.Filters = r.slots()
		v.Apertures = r.slots()
		v.EHTVolts = r.u16()
	case *DataPmt:
		r.target(&v.Target)
		v.SamplePeriod = time.Duration(r.u32()) * time.Millisecond
		v.Prebin = r.u16()
		v.Repetitions = r.u32()
		v.Filter = r.u8()
		v.Aperture = r.u8()
	case *CcdCapabilities:
		v.Width = r.u16()
		v.Height = r.u16()
		v.PixelScale = r.f64()
	case *DataCcd:
		r.target(&v.Target)
		v.Exposure = time.Duration(r.u32()) * time.Millisecond
		v.Filter = r.u8()
	}
}

// recordWriter appends big-endian fields to a payload buffer.
type recordWriter struct {
	buf []byte
}

func (w *recordWriter) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *recordWriter) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *recordWriter) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *recordWriter) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *recordWriter) i32(v int32)  { w.u32(uint32(v)) } //nolint:gosec // two's complement on purpose
func (w *recordWriter) i64(v int64)  { w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v)) } //nolint:gosec // two's complement on purpose
func (w *recordWriter) f64(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// str writes s truncated or NUL padded to exactly n bytes.
func (w *recordWriter) str(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	w.buf = append(w.buf, field...)
}

func (w *recordWriter) slots(names []string) {
	count := min(len(names), MaxSlots)
	w.u8(uint8(count)) //nolint:gosec // bounded by MaxSlots
	for i := range MaxSlots {
		name := ""
		if i < count {
			name = names[i]
		}
		w.str(name, SlotNameSize)
	}
}

func (w *recordWriter) target(t *Target) {
	w.bool(t.Auto)
	w.u32(t.ID)
	w.str(t.Name, NameSize)
	w.u8(t.RA.Hours)
	w.u8(t.RA.Minutes)
	w.f64(t.RA.Seconds)
	w.bool(t.Dec.Negative)
	w.u8(t.Dec.Degrees)
	w.u8(t.Dec.Minutes)
	w.f64(t.Dec.Seconds)
	w.f64(t.AdjRA)
	w.f64(t.AdjDec)
	w.bool(t.Centered)
	w.i32(t.Focus)
}

// recordReader consumes big-endian fields from a payload buffer. The buffer
// is always maxPayloadSize long, so fields past the end read as zero.
type recordReader struct {
	buf []byte
	off int
}

func (r *recordReader) take(n int) []byte {
	if r.off+n > len(r.buf) {
		r.off = len(r.buf)
		return make([]byte, n)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *recordReader) u8() uint8    { return r.take(1)[0] }
func (r *recordReader) bool() bool   { return r.u8() != 0 }
func (r *recordReader) u16() uint16  { return binary.BigEndian.Uint16(r.take(2)) }
func (r *recordReader) u32() uint32  { return binary.BigEndian.Uint32(r.take(4)) }
func (r *recordReader) i32() int32   { return int32(r.u32()) } //nolint:gosec // two's complement on purpose
func (r *recordReader) i64() int64   { return int64(binary.BigEndian.Uint64(r.take(8))) } //nolint:gosec // two's complement on purpose
func (r *recordReader) f64() float64 { return math.Float64frombits(binary.BigEndian.Uint64(r.take(8))) }

func (r *recordReader) str(n int) string {
	return strings.TrimRight(string(r.take(n)), "\x00")
}

func (r *recordReader) slots() []string {
	count := int(r.u8())
	var names []string
	for i := range MaxSlots {
		name := r.str(SlotNameSize)
		if i < count {
			names = append(names, name)
		}
	}
	return names
}

func (r *recordReader) target(t *Target) {
	t.Auto = r.bool()
	t.ID = r.u32()
	t.Name = r.str(NameSize)
	t.RA.Hours = r.u8()
	t.RA.Minutes = r.u8()
	t.RA.Seconds = r.f64()
	t.Dec.Negative = r.bool()
	t.Dec.Degrees = r.u8()
	t.Dec.Minutes = r.u8()
	t.Dec.Seconds = r.f64()
	t.AdjRA = r.f64()
	t.AdjDec = r.f64()
	t.Centered = r.bool()
	t.Focus = r.i32()
}

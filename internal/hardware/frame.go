package hardware

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame types.
//
// Every frame is size(2) + type(2) + body, big-endian. The size field counts
// type and body but not itself.
const (
	FrameStatusRequest uint16 = 0x0001
	FrameStatus        uint16 = 0x0002
	FrameCommand       uint16 = 0x0003
)

const (
	// frameHeaderSize is size(2) + type(2).
	frameHeaderSize = 4

	// maxFrameSize bounds any frame on the wire.
	maxFrameSize = 128

	// statusBodySize is flags(4) + azimuth(8) + filter(1) + aperture(1) +
	// focus(4) + hour angle(8) + declination(8).
	statusBodySize = 34

	// maxParams bounds the parameters of one command.
	maxParams = 8
)

// EncodeFrame builds a frame of the given type.
func EncodeFrame(frameType uint16, body []byte) []byte {
	out := make([]byte, frameHeaderSize+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(2+len(body))) //nolint:gosec // bodies are small
	binary.BigEndian.PutUint16(out[2:4], frameType)
	copy(out[frameHeaderSize:], body)
	return out
}

// ParseFrame splits a complete frame into type and body.
func ParseFrame(data []byte) (uint16, []byte, error) {
	if len(data) < frameHeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(data))
	}
	size := int(binary.BigEndian.Uint16(data[0:2]))
	if size < 2 || 2+size != len(data) {
		return 0, nil, fmt.Errorf("%w: size field %d for %d bytes", ErrInvalidFrame, size, len(data))
	}
	return binary.BigEndian.Uint16(data[2:4]), data[frameHeaderSize:], nil
}

// EncodeStatus serialises a status record body.
func EncodeStatus(s Status) []byte {
	b := make([]byte, 0, statusBodySize)
	b = binary.BigEndian.AppendUint32(b, uint32(s.Flags))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(s.Azimuth))
	b = append(b, s.Filter, s.Aperture)
	b = binary.BigEndian.AppendUint32(b, uint32(s.Focus)) //nolint:gosec // two's complement on purpose
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(s.HourAngle))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(s.Dec))
	return b
}

// DecodeStatus parses a status record body.
func DecodeStatus(body []byte) (Status, error) {
	if len(body) != statusBodySize {
		return Status{}, fmt.Errorf("%w: status body %d bytes", ErrInvalidFrame, len(body))
	}
	return Status{
		Flags:     Flags(binary.BigEndian.Uint32(body[0:4])),
		Azimuth:   math.Float64frombits(binary.BigEndian.Uint64(body[4:12])),
		Filter:    body[12],
		Aperture:  body[13],
		Focus:     int32(binary.BigEndian.Uint32(body[14:18])), //nolint:gosec // two's complement on purpose
		HourAngle: math.Float64frombits(binary.BigEndian.Uint64(body[18:26])),
		Dec:       math.Float64frombits(binary.BigEndian.Uint64(body[26:34])),
	}, nil
}

// EncodeCommand serialises a command body: code(2) + count(1) + params(4 each).
func EncodeCommand(c Command) ([]byte, error) {
	if len(c.Params) > maxParams {
		return nil, fmt.Errorf("%w: %d params", ErrInvalidFrame, len(c.Params))
	}
	b := make([]byte, 0, 3+4*len(c.Params))
	b = binary.BigEndian.AppendUint16(b, uint16(c.Code))
	b = append(b, byte(len(c.Params)))
	for _, p := range c.Params {
		b = binary.BigEndian.AppendUint32(b, uint32(p)) //nolint:gosec // two's complement on purpose
	}
	return b, nil
}

// DecodeCommand parses a command body.
func DecodeCommand(body []byte) (Command, error) {
	if len(body) < 3 {
		return Command{}, fmt.Errorf("%w: command body %d bytes", ErrInvalidFrame, len(body))
	}
	n := int(body[2])
	if n > maxParams || len(body) != 3+4*n {
		return Command{}, fmt.Errorf("%w: %d params in %d bytes", ErrInvalidFrame, n, len(body))
	}
	c := Command{Code: Code(binary.BigEndian.Uint16(body[0:2]))}
	for i := range n {
		off := 3 + 4*i
		c.Params = append(c.Params, int32(binary.BigEndian.Uint32(body[off:off+4]))) //nolint:gosec // two's complement on purpose
	}
	return c, nil
}

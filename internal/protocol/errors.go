package protocol

import "errors"

// Codec errors. Use errors.Is() to check for these in calling code.
var (
	// ErrShortRecord is returned when a record is smaller than RecordSize.
	ErrShortRecord = errors.New("protocol: record too short")

	// ErrBadMagic is returned when a record does not start with the magic value.
	ErrBadMagic = errors.New("protocol: bad record magic")

	// ErrUnknownKind is returned when a record carries an unknown kind tag.
	ErrUnknownKind = errors.New("protocol: unknown message kind")

	// ErrPayloadTooLarge is returned when a payload does not fit in a record.
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds record size")
)

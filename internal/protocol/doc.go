// Package protocol defines the message vocabulary shared by every process in
// the observatory suite.
//
// It contains three things:
//
//   - The closed set of twelve message kinds and their payloads
//   - The observation-status severity ladder used for escalation
//   - The fixed-size tagged record codec used on the scheduler link
//
// # Messages
//
// A Message is a tagged value: its Payload is one of the concrete payload
// types (Quit, Capabilities, StatusReport, ...) and the kind is derived from
// the payload. Status and Stage travel in the record header so the scheduler
// can resume a paused pipeline by re-sending the message unchanged.
//
// # Observation status
//
// Every stage of every pipeline resolves to a Status. The ladder is totally
// ordered for escalation purposes:
//
//	Good < Cancel = Complete < ErrRetry < ErrWait < ErrNext < ErrCrit
//
// StatusDeferred (zero) is not on the ladder; a controller returns it when it
// keeps the message and will signal completion later.
//
// # Wire format
//
// Each message is exactly RecordSize bytes:
//
//	Byte 0-1: Magic (0x4454, "DT")
//	Byte 2:   Kind
//	Byte 3:   Status
//	Byte 4:   Stage
//	Byte 5:   Reserved (zero)
//	Byte 6-7: Payload length (big-endian)
//	Byte 8+:  Payload, zero padded to RecordSize
//
// All multi-byte integers are big-endian, floats are IEEE-754 binary64 and
// strings are fixed-width, NUL padded.
package protocol

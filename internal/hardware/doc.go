// Package hardware is the driver capability the device controllers consume.
//
// The observatory has two physical controllers:
//   - the dome controller (shutter, dropout and rotation)
//   - the telescope controller (drive, acquisition mirror, filter and
//     aperture wheels, instrument shutter, focuser and EHT supply)
//
// Each is reached through a Driver: ReadStatus returns the last known status
// record, SendCommand queues a command without blocking, and SetOnStatus
// registers a callback fired whenever the status record changes.
//
// Two implementations are provided. Client talks to a controller over TCP
// using a small size/type/body framing. Sim is an in-process model used for
// bench runs and tests.
package hardware

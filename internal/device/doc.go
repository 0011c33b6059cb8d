// Package device holds the nine observatory device controllers and the
// interlock that couples the dome shutter to the dropout.
//
// # Contract
//
// Every controller implements Controller:
//
//   - ProcessMessage inspects a pipeline message. It returns
//     protocol.StatusDeferred when it kept the message and started work
//     (completion follows later through the Sink), or a final status when
//     the message does not concern it or a precondition fails up front.
//   - OnHardwareUpdate recomputes the current state from a status record.
//     Reaching the goal with a message pending completes it with Good. A
//     self-contradictory record (two exclusive position bits) completes with
//     ErrCrit whether or not anything is pending.
//   - Abandon drops the pending message and disarms timers without
//     completing. The orchestrator uses it when a pipeline is aborted.
//
// Each device also has a typed SetGoal. A SetGoal issues the hardware
// command and arms the device's fail-timeout; if the timeout elapses before
// the goal is reached, the pending message completes with ErrRetry, or
// ErrCrit for devices whose unresolved failure endangers hardware.
//
// # Threading
//
// Controllers are not safe for concurrent use. They run on the reactor
// goroutine, and completions are delivered through reactor.Scheduler.Defer
// so the orchestrator is never re-entered from inside a controller call.
//
// # Interlock
//
// The dropout may only be open while the dome shutter is open, and the
// shutter may only start closing once the dropout is closed. Interlock
// holds non-owning references to both controllers, set once by Wire, and
// re-checks that relation after every transition of either.
package device

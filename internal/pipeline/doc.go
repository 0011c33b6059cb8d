// Package pipeline routes scheduler messages through the device controllers.
//
// Quit, TargetSet, DataPmt and DataCcd are sequential pipelines: each has a
// fixed device order and the message visits one device at a time, advancing
// its Stage as each device reaches its goal. Every other kind fans out to all
// nine devices at once; Message.Pending counts the devices that deferred and
// the message is released when it reaches zero.
//
// Escalation follows the observation status ladder:
//
//	Good              advance to the next stage
//	Cancel, Complete  end the pipeline with that status
//	ErrRetry, ErrWait reply with Stage unchanged; the scheduler re-issues
//	ErrNext           abort; the scheduler picks another target
//	ErrCrit           abort, run the forced closure, latch unsafe
//
// # Forced Closure
//
// ErrCrit from any stage, or from a device outside any stage, aborts every
// pipeline in flight, drops the devices' pending work and runs the closure
// sequence with a locally created Quit (Forced=true). The closure never
// aborts: a failing stage is logged and the sequence moves on. The unsafe
// latch stays set until an operator clears it; while it is set TargetSet,
// DataPmt and DataCcd are refused with ErrCrit.
//
// # Thread Safety
//
// None. The Orchestrator and every controller run on the reactor goroutine.
// Other goroutines reach it through reactor.Loop.Post.
package pipeline

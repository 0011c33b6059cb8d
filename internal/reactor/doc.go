// Package reactor provides the single-threaded cooperative event loop that
// every device controller and the pipeline orchestrator run on.
//
// Work reaches the loop in three ways:
//   - Post queues a function from any goroutine (hardware drivers, the
//     scheduler link, MQTT handlers).
//   - Defer queues a function from the loop goroutine itself; it runs after
//     the current callback returns, in the same turn.
//   - AfterFunc and Every arm one-shot and periodic timers.
//
// Timers are owned by the loop. Timer.Stop checks and clears the armed flag
// within the calling turn, so stopping a timer that already fired, or was
// already stopped, is a no-op.
//
// Nothing scheduled on the loop may block. The only suspension point is the
// loop's own wait for the next event or timer deadline.
//
// Tests drive the loop deterministically with ManualClock and RunPending.
package reactor

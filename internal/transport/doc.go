// Package transport is the link between the DTI and the scheduler.
//
// The scheduler listens on a TCP port and the DTI dials it. Both directions
// carry the same fixed-size protocol records (protocol.RecordSize bytes, no
// further framing), so a reader only ever needs io.ReadFull.
//
// One connection carries everything:
//   - inbound commands and broadcasts from the scheduler
//   - replies to finished pipelines
//   - unsolicited status pushes (for example after a forced closure)
//
// Link reconnects with backoff when the connection drops. Sends never block:
// records are queued for a writer goroutine and ErrQueueFull is returned
// when the queue is saturated.
package transport

// Package telemetry connects the orchestrator to the outside world's
// status bus.
//
// Recorder implements pipeline.Hooks. The orchestrator calls it on the
// reactor goroutine; Recorder queues each event and a single worker
// goroutine writes it to the SQLite journal, MQTT and InfluxDB. A full
// queue drops the event and counts it, so a slow broker never stalls the
// reactor. Unsafe latch changes are the exception: they wait in their own
// list and are retried until the journal accepts them.
//
// OperatorHandler goes the other way: it decodes dti/operator/{action}
// messages and posts them onto the reactor as pipeline operator commands.
package telemetry

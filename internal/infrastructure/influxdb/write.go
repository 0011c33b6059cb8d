package influxdb

import (
	"math"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeviceState = "device_state"
	MeasurementPipelineRun = "pipeline_runs"
	MeasurementDiagnostic  = "diagnostics"
)

// WriteDeviceState records one device snapshot.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "dome_rotation")
//   - state: The device's current state name (tag)
//   - flags: Raw hardware status flags
//   - values: Numeric readings such as azimuth, focus or hour angle
//   - at: Time of the hardware status read
//
// Example:
//
//	client.WriteDeviceState("dome_rotation", "tracking", 0x11,
//	    map[string]float64{"azimuth": 181.5}, time.Now())
func (c *Client) WriteDeviceState(deviceID, state string, flags uint32, values map[string]float64, at time.Time) {
	fields := make(map[string]interface{}, len(values)+1)
	fields["flags"] = int64(flags)
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		fields[k] = v
	}

	c.WritePointWithTime(MeasurementDeviceState,
		map[string]string{"device_id": deviceID, "state": state},
		fields, at)
}

// WriteRun records the outcome of one pipeline run.
//
// Parameters:
//   - kind: Message kind that started the run (tag)
//   - status: Final ObservationStatus name (tag)
//   - forced: Whether this was the forced closure
//   - stage: Stage the run ended on
//   - duration: Wall time from start to finish
//   - at: Finish time
func (c *Client) WriteRun(kind, status string, forced bool, stage int, duration time.Duration, at time.Time) {
	c.WritePointWithTime(MeasurementPipelineRun,
		map[string]string{"kind": kind, "status": status, "forced": strconv.FormatBool(forced)},
		map[string]interface{}{
			"stage":       int64(stage),
			"duration_ms": float64(duration) / float64(time.Millisecond),
		},
		at)
}

// WriteDiagnostic counts one warning or critical diagnostic.
func (c *Client) WriteDiagnostic(severity, deviceID, status string, at time.Time) {
	tags := map[string]string{"severity": severity, "status": status}
	if deviceID != "" {
		tags["device_id"] = deviceID
	}
	c.WritePointWithTime(MeasurementDiagnostic, tags, map[string]interface{}{"count": int64(1)}, at)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.isConnected() {
		return
	}

	if c.site != "" {
		tagged := make(map[string]string, len(tags)+1)
		for k, v := range tags {
			tagged[k] = v
		}
		tagged[siteTag] = c.site
		tags = tagged
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

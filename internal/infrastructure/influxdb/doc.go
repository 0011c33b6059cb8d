// Package influxdb provides InfluxDB connectivity for DTI telemetry.
//
// It wraps the official influxdb-client-go v2 library and writes three
// measurements:
//   - device_state: one point per device per hardware status change
//     (azimuth, focus position, hour angle, declination, raw flags)
//   - pipeline_runs: one point per finished pipeline, tagged by kind and status
//   - diagnostics: one point per warning or critical escalation
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRun("target_set", "good", false, 8, 95*time.Second, time.Now())
//
// # Error Handling
//
// Writes are non-blocking and batched; failures arrive through the
// SetOnError callback and make the next HealthCheck return ErrWritesFailing.
// Every point carries a "site" tag. Readings that are not finite numbers
// are left out because InfluxDB rejects a batch that contains one.
package influxdb

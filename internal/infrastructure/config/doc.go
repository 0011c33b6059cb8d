// Package config loads and validates the DTI service configuration.
//
// This package manages:
//   - Loading configuration from a YAML file
//   - Overriding selected values with DTI_* environment variables
//   - Validation that reports every problem in one error
//   - Conversion to the device controller configuration
//
// Durations are written the Go way ("90s", "2m"). Credentials (MQTT
// password, InfluxDB token) belong in the environment or a .env file, not
// in the YAML.
//
// Usage:
//
//	cfg, err := config.Load("configs/dti.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	devCfg := cfg.DeviceConfig(tables)
package config

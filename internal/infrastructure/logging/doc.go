// Package logging provides structured logging for the DTI service.
//
// This package wraps Go's standard log/slog package. Every entry carries
// service=dti and the build version.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file, both
//	  file:
//	    path: "/var/log/dti/dti.log"
//	    max_size: 50     # megabytes before rotation
//	    max_backups: 5
//	    max_age: 30      # days
//	    compress: true
//
// File output rotates through lumberjack.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	defer logger.Close()
//	logger.Info("pipeline finished", "kind", "target_set", "status", "good")
package logging

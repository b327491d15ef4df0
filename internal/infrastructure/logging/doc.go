// Package logging provides structured logging for the matrix bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the daemon and the console tool.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("polling matrix", "interval", cfg.Matrix.PollInterval)
//	logger.Error("refresh failed", "error", err)
//
// Debug level includes every command sent to the matrix and the cleaned
// reply lines. Never log MQTT passwords or InfluxDB tokens.
package logging

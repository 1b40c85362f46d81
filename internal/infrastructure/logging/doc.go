// Package logging provides structured logging for fanbridge.
//
// It wraps log/slog so that every component logs with the same handler,
// level filter and default fields (service, version).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("fan mode updated", "mode", "manual")
//	logger.Error("history write failed", "error", err)
//
// Never log broker passwords or the InfluxDB token.
package logging

// Package logging provides structured logging for plugd.
//
// It wraps log/slog so every component logs the same way:
// JSON for production, text for development, with the service name
// and build version attached to every entry.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("controller invoked", "action", "on", "duration_ms", 412)
//
// Controller stderr is logged verbatim at warn level. Keep credentials
// out of controller output; plugd cannot redact them.
package logging

// Package logging provides structured logging for the camera gateway.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version).
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting gateway", "port", cfg.API.Port)
//
// Account passwords, 2FA PINs, session secrets and upstream auth tokens are
// never logged.
package logging

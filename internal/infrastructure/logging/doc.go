// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans (LOG_DEV=true)
//
// Components receive a named *zap.Logger from Logger.Component so every line
// carries the subsystem that produced it (supervisor, pages, relay, ...).
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	relayLog := logger.Component("relay")
//	relayLog.Info("session opened", zap.String("path", path))
package logging

// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the agent loop, the tool invoker and the HTTP server use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - ZapAdapter wrapping go.uber.org/zap (service default)
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewZapLogger(logging.ZapConfig{Level: logging.LogLevelInfo, Format: "json"})
//	reqLogger := logging.With(logger, "request_id", id)
package logging

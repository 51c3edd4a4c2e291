// Package logging provides a minimal logging interface and adapters for AgentCal.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the calendar engine, tool surface and server use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZerologAdapter for processes already using zerolog
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	ac := agentcal.New(func(o *agentcal.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging

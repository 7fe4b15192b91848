// Package logging provides structured logging for bslink sessions.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation support for debugging and post-hoc analysis. It is
// designed to help troubleshoot reconnect behavior by providing structured,
// filterable logs that can be inspected long after a disconnect happened.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (session ID, state, attempt counter)
//   - Log rotation with configurable size limits
//   - Optional gzip compression for rotated logs
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger] type
// uses Go's slog internally which is designed for concurrent access. The
// [RotatingWriter] type uses a mutex to protect file operations during
// rotation. Child loggers created via With* methods share the underlying
// writer safely.
//
// # Basic Usage
//
// Create a logger for a session directory:
//
//	logger, err := logging.NewLogger("/path/to/session", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Debug("detailed info", "key", "value")
//	logger.Info("transport opened", "attempt", 2)
//	logger.Warn("disconnected", "status", 440)
//	logger.Error("credential save failed", "error", err.Error())
//
// # Context Propagation
//
// Create child loggers with persistent context attributes:
//
//	sessionLogger := logger.WithSession("primary")
//	attemptLogger := sessionLogger.WithAttempt(3)
//
//	// All logs from attemptLogger include session_id and attempt
//	attemptLogger.Info("reconnecting", "delay", "8s")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"reconnecting","session_id":"primary","attempt":3,"delay":"8s"}
//
// # Log Rotation
//
// Rotated files are named link.log.1, link.log.2, etc., where .1 is the
// most recent backup. When compression is enabled, rotated files become
// link.log.1.gz, etc.
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output:
//
//	func TestSomething(t *testing.T) {
//	    logger := logging.NopLogger()
//	    // Use logger in tests without creating files
//	}
package logging

// Package logging provides structured logging for phasebuild.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation. Build output meant for people (status lines, the
// timeline chart) is written to the terminal by the reporting plugins; this
// logger records what the engine and plugins decided, for post-hoc analysis.
//
// # Thread Safety
//
// [Logger] is safe for concurrent use. Child loggers created via With* methods
// share the underlying writer, so runners executing on different workers may
// log through the same parent.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(".phasebuild/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	opLogger := logger.WithCycle(2).WithPhase("build").WithOperation("lib (build)")
//	opLogger.Info("operation finished", "status", "success", "duration_ms", 1520)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"operation finished","cycle":2,"phase":"build","operation":"lib (build)","status":"success","duration_ms":1520}
package logging

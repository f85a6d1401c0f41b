// Package logging provides structured logging for agentline.
//
// Logs are JSON lines written by log/slog, one file per repository at
// .agentline/logs/agentline.log, rotated by size through [RotatingWriter].
// Operator-facing output (reports, tables) never goes through this package;
// the log is for post-hoc analysis of what an invocation did.
//
// # Context propagation
//
// Child loggers carry persistent attributes:
//
//	log := logger.WithRun(runID).WithAgent("tester").WithPhase("run_agent")
//	log.Info("agent exited", "exit_code", 0, "duration_ms", 1520)
//
// Child loggers share the parent's writer; only the root logger should be
// closed.
//
// # Levels
//
// DEBUG, INFO, WARN and ERROR. Unknown level strings map to INFO.
package logging

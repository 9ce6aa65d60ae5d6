// Package logging constructs the process logger and provides helpers for the
// job lifecycle log lines.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// New returns a slog.Logger with the provided level string (info, debug,
// warn, error). format may be "json" or "text".
func New(level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogJobStart logs the beginning of a reduction run.
func LogJobStart(logger *slog.Logger, runID, url string, jobID, numJobs, level int) {
	logger.Info("reduction started",
		"run_id", runID,
		"plate", url,
		"job_id", jobID,
		"num_jobs", numJobs,
		"level", level,
	)
}

// LogJobComplete logs successful completion of a reduction run.
func LogJobComplete(logger *slog.Logger, runID string, duration time.Duration, reduced, skipped int) {
	logger.Info("reduction completed",
		"run_id", runID,
		"duration", duration.String(),
		"tiles_reduced", reduced,
		"tiles_skipped", skipped,
	)
}

// LogJobError logs a failed reduction run.
func LogJobError(logger *slog.Logger, runID string, duration time.Duration, err error) {
	logger.Error("reduction failed",
		"run_id", runID,
		"duration", duration.String(),
		"error", err.Error(),
	)
}

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// New returns a slog.Logger with the provided level string (debug, info, warn, error).
// format may be "json" or "text". A nil w writes to stderr.
func New(level string, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
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

// LogCompileComplete logs a finished compilation
func LogCompileComplete(logger *slog.Logger, source, strategy string, points int, duration time.Duration) {
	logger.Info("compile finished",
		"source", source,
		"strategy", strategy,
		"points", points,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogCompileError logs a failed compilation
func LogCompileError(logger *slog.Logger, source string, duration time.Duration, err error) {
	logger.Error("compile failed",
		"source", source,
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
	)
}

package logging

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Init creates and sets the package-level default slog logger.
// The "json" format is intended for running under a collector; anything
// else gets a human-readable text handler. Both write to stderr so the
// daemon's stdout stays free for the stdout notification sink.
func Init(format string, level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") or a
// numeric slog level (e.g. "-4", "8") to slog.Level. Anything unrecognized
// defaults to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return slog.Level(n)
		}
		return slog.LevelInfo
	}
}

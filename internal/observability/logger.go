package observability

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process-wide JSON logger. An explicit level wins;
// otherwise dev runs at debug and everything else at info. Records emitted
// inside an active span carry trace_id/span_id.
func NewLogger(env, level string) *slog.Logger {
	lvl := slog.LevelInfo

	if env == "dev" {
		lvl = slog.LevelDebug
	}

	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})

	return slog.New(NewTraceHandler(handler))
}

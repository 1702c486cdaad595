// Package log configures the process-wide slog logger of the journey binaries.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// FormatEnv selects the handler: "json" for structured output, anything else for text.
const FormatEnv = "LOG_FORMAT"

// ParseLevel maps a level name to its slog level, falling back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// NewLogger builds a logger writing to w at level.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, options))
	}

	return slog.New(slog.NewTextHandler(w, options))
}

// Setup installs the default logger on stderr.
func Setup(logLevel string) {
	slog.SetDefault(NewLogger(os.Stderr, ParseLevel(logLevel), os.Getenv(FormatEnv)))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

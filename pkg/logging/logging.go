// Package logging configures structured logging with log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options control handler construction. The zero value logs INFO-level text
// to stderr.
type Options struct {
	Level  slog.Level
	JSON   bool
	Output io.Writer
}

// FromEnv builds Options from LOG_LEVEL (DEBUG/INFO/WARN/ERROR) and
// LOG_FORMAT (json enables the JSON handler).
func FromEnv() Options {
	opts := Options{
		Level:  parseLevel(os.Getenv("LOG_LEVEL")),
		Output: os.Stderr,
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		opts.JSON = true
	}
	return opts
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs a logger built from opts as the slog default and returns it.
func Setup(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

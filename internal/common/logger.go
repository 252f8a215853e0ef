// Package common holds small helpers shared by the runtime, the programs and the CLI.
package common

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggerMixin gives a component a replaceable logger. Embed it and expose a
// WithLogger method that calls SetLogger.
type LoggerMixin struct {
	Logger *slog.Logger
}

func NewLoggerMixin() LoggerMixin {
	return LoggerMixin{Logger: slog.Default()}
}

// SetLogger replaces the logger; nil keeps the current one.
func (l *LoggerMixin) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.Logger = logger
	}
}

func (l *LoggerMixin) GetLogger() *slog.Logger {
	if l.Logger == nil {
		l.Logger = slog.Default()
	}
	return l.Logger
}

// NewLogger builds the process logger on stderr. format is "json" or
// "text"; level is one of debug, info, warn, error.
func NewLogger(level, format string) *slog.Logger {
	return NewLoggerTo(os.Stderr, level, format)
}

func NewLoggerTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: ParseLevel(level) <= slog.LevelDebug,
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

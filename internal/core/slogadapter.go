package core

import (
	"log/slog"
	"os"
)

// SlogLogger adapts log/slog into the engine's Logger interface, the way
// anhnv24810310060-source-SWARM-INTELLIGENCE-NETWORK/libs/go/core/logging
// configures a service's structured logger: JSON vs text handler chosen
// by caller, level controlled independently of the engine.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger. A nil logger falls back to slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// NewJSONSlogLogger builds a Logger writing JSON lines to os.Stderr at
// level, for production deployments.
func NewJSONSlogLogger(level slog.Level) *SlogLogger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &SlogLogger{logger: slog.New(handler)}
}

// NewTextSlogLogger builds a Logger writing human-readable lines to
// os.Stderr at level, for local development.
func NewTextSlogLogger(level slog.Level) *SlogLogger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &SlogLogger{logger: slog.New(handler)}
}

// Log implements Logger.
func (l *SlogLogger) Log(level Level, message string) {
	switch level {
	case LevelWarn:
		l.logger.Warn(message)
	case LevelError:
		l.logger.Error(message)
	default:
		l.logger.Info(message)
	}
}

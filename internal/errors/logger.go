package errors

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog with application-specific methods
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a JSON logger writing to stdout
func NewLogger(level slog.Level) *Logger {
	return newLoggerTo(os.Stdout, level)
}

// NewNopLogger discards everything. Used by tests and library callers without a logger.
func NewNopLogger() *Logger {
	return newLoggerTo(io.Discard, slog.LevelError)
}

func newLoggerTo(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{logger: slog.New(handler)}
}

// With returns a logger that adds args to every record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// LogError logs an application error with its type, code and context
func (l *Logger) LogError(err error, message string, args ...any) {
	if appErr, ok := As(err); ok {
		logArgs := []any{
			"error_type", appErr.Type,
			"error_code", appErr.Code,
			"error_message", appErr.Message,
		}
		if appErr.Cause != nil {
			logArgs = append(logArgs, "cause", appErr.Cause.Error())
		}
		for key, value := range appErr.Context {
			logArgs = append(logArgs, key, value)
		}
		logArgs = append(logArgs, args...)
		l.logger.Error(message, logArgs...)
		return
	}

	logArgs := append([]any{"error", err.Error()}, args...)
	l.logger.Error(message, logArgs...)
}

func (l *Logger) Info(message string, args ...any) {
	l.logger.Info(message, args...)
}

func (l *Logger) Debug(message string, args ...any) {
	l.logger.Debug(message, args...)
}

func (l *Logger) Warn(message string, args ...any) {
	l.logger.Warn(message, args...)
}

// New creates a logger from a level name
func New(level string) (*Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	return NewLogger(slogLevel), nil
}

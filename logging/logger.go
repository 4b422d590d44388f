package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string onto a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger defines the minimal structured logging interface used throughout
// researchmesh. Arguments are slog-style alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// LoggerConfig configures construction of a ResearchLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	SessionID string
	Stage     string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// ResearchLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via With* methods.
type ResearchLogger struct {
	logger    *slog.Logger
	sessionID string
	stage     string
}

// NewLogger builds a ResearchLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *ResearchLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &ResearchLogger{logger: slog.New(handler), sessionID: cfg.SessionID, stage: cfg.Stage}
}

// WithSession returns a logger that attaches the session id to every entry.
func (l *ResearchLogger) WithSession(sessionID string) *ResearchLogger {
	nl := *l
	nl.sessionID = sessionID
	return &nl
}

// WithStage returns a logger that attaches the stage name to every entry.
func (l *ResearchLogger) WithStage(stage string) *ResearchLogger {
	nl := *l
	nl.stage = stage
	return &nl
}

func (l *ResearchLogger) attrs(extra []any) []any {
	args := make([]any, 0, len(extra)+4)
	if l.sessionID != "" {
		args = append(args, "session_id", l.sessionID)
	}
	if l.stage != "" {
		args = append(args, "stage", l.stage)
	}
	return append(args, extra...)
}

// Debug logs at debug level with the attached context.
func (l *ResearchLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, l.attrs(args)...)
}

// Info logs at info level with the attached context.
func (l *ResearchLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.attrs(args)...)
}

// Warn logs at warn level with the attached context.
func (l *ResearchLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, l.attrs(args)...)
}

// Error logs at error level with the attached context.
func (l *ResearchLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.attrs(args)...)
}

// LogSearchCall records execution details for one search query.
func (l *ResearchLogger) LogSearchCall(query string, results int, dur time.Duration, err error) {
	args := l.attrs([]any{"query", query, "result_count", results, "duration", dur})
	if err != nil {
		args = append(args, "error", err.Error())
		l.logger.LogAttrs(context.Background(), slog.LevelError, "Search call failed", toAttrs(args)...)
		return
	}
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, "Search call completed", toAttrs(args)...)
}

// LogCompletionCall records completion latency and success for a stage's
// model call.
func (l *ResearchLogger) LogCompletionCall(purpose string, dur time.Duration, err error) {
	args := l.attrs([]any{"purpose", purpose, "duration", dur})
	if err != nil {
		args = append(args, "error", err.Error())
		l.logger.LogAttrs(context.Background(), slog.LevelError, "Completion call failed", toAttrs(args)...)
		return
	}
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, "Completion call completed", toAttrs(args)...)
}

// LogStageExecution records one stage execution with its routing outcome.
func (l *ResearchLogger) LogStageExecution(stage string, iteration int, next string, dur time.Duration) {
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, "Stage execution completed",
		toAttrs(l.attrs([]any{"stage", stage, "iteration", iteration, "next_stage", next, "duration", dur}))...)
}

func toAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}

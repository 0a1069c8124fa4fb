package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// LoggerOption configures a Logger.
type LoggerOption func(opts *loggerOptions)

// WithLevel sets the logging level for the Logger.
func WithLevel(level slog.Level) LoggerOption {
	return func(opts *loggerOptions) {
		opts.level = level
	}
}

// WithWriter sets the destination of log records. Defaults to os.Stdout.
func WithWriter(w io.Writer) LoggerOption {
	return func(opts *loggerOptions) {
		opts.writer = w
	}
}

// WithDevelopment configures the Logger for development mode with human-readable
// output.
func WithDevelopment() LoggerOption {
	return func(opts *loggerOptions) {
		opts.handlerFunc = func(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
			return tint.NewHandler(w, &tint.Options{Level: opts.Level})
		}
	}
}

// WithNop configures a no-operation Logger that discards all log messages.
func WithNop() LoggerOption {
	return func(opts *loggerOptions) {
		opts.writer = io.Discard
		opts.handlerFunc = func(w io.Writer, hopts *slog.HandlerOptions) slog.Handler {
			return slog.NewJSONHandler(w, hopts)
		}
	}
}

type loggerOptions struct {
	level       slog.Level
	writer      io.Writer
	handlerFunc func(w io.Writer, opts *slog.HandlerOptions) slog.Handler
}

// Logger defines the interface for structured logging.
type Logger interface {
	Log(ctx context.Context, level slog.Level, msg string, args ...any)
	Enabled(ctx context.Context, level slog.Level) bool
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// NewLogger creates a new Logger instance with the specified options.
func NewLogger(opts ...LoggerOption) Logger {
	options := loggerOptions{
		level:  slog.LevelInfo,
		writer: os.Stdout,
		handlerFunc: func(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
			return slog.NewJSONHandler(w, opts)
		},
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &logger{
		Logger: slog.New(options.handlerFunc(options.writer, &slog.HandlerOptions{
			Level: options.level,
		})),
	}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return NewLogger(WithNop())
}

type logger struct {
	*slog.Logger
}

// With returns a new Logger with the specified arguments.
func (l *logger) With(args ...any) Logger {
	return &logger{l.Logger.With(args...)}
}

func ParseLevel(level string) (slog.Level, bool) {
	switch level {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return -1, false
}

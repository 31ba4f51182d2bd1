package logger

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// Options configures the process logger.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Format is "console" (default) or "json".
	Format string
	// File, when set, receives a JSON copy of every entry, rotated by size.
	File       string
	MaxAgeDays int
}

// New creates a new structured logger with default configuration
func New() zerolog.Logger {
	return NewWithWriter(consoleWriter(os.Stderr))
}

// NewWithWriter creates a new structured logger with a custom writer
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// Configure builds the process logger from opts. The returned closer flushes
// and closes the log file, if any.
func Configure(opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("logger: invalid level %q: %w", opts.Level, err)
		}
		level = l
	}

	var out io.Writer
	switch strings.ToLower(opts.Format) {
	case "", "console":
		out = consoleWriter(os.Stderr)
	case "json":
		out = os.Stderr
	default:
		return zerolog.Logger{}, nil, fmt.Errorf("logger: invalid format %q (want console or json)", opts.Format)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     opts.MaxAgeDays,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	return NewWithWriter(out).Level(level), closer, nil
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithFields returns logger with fields attached, in key order.
func WithFields(logger zerolog.Logger, fields map[string]any) zerolog.Logger {
	ctx := logger.With()
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		ctx = ctx.Interface(k, fields[k])
	}
	return ctx.Logger()
}

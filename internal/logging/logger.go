package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Option func(*options)

type options struct {
	writer io.Writer
	format string
}

func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithFormat selects "json" (default) or "text" output.
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

func New(level string, opts ...Option) (*slog.Logger, error) {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	handlerOptions := &slog.HandlerOptions{Level: parseLevel(level)}
	writer := cfg.writer
	if writer == nil {
		writer = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.format) {
	case "", "json":
		handler = slog.NewJSONHandler(writer, handlerOptions)
	case "text":
		handler = slog.NewTextHandler(writer, handlerOptions)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.format)
	}
	return slog.New(handler), nil
}

func MustNew(level string, opts ...Option) *slog.Logger {
	logger, err := New(level, opts...)
	if err != nil {
		panic(err)
	}
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discard logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

func parseLevel(level string) slog.Leveler {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func AttachError(err error, args ...any) []any {
	if err == nil {
		return args
	}
	return append(args, "error", err.Error())
}

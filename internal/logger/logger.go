// Package logger builds the process-wide slog logger.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/voxclone/internal/env"
)

// Options configures the logger.
type Options struct {
	Console    io.Writer
	LogFile    string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	LogToFile  bool
}

// Option mutates Options.
type Option func(*Options)

// WithLogToFile enables the rotating file sink.
func WithLogToFile(enabled bool) Option {
	return func(o *Options) { o.LogToFile = enabled }
}

// WithLogFile sets the rotating file path.
func WithLogFile(path string) Option {
	return func(o *Options) { o.LogFile = path }
}

// WithLevel sets the minimum level for every sink.
func WithLevel(level slog.Level) Option {
	return func(o *Options) { o.Level = level }
}

// WithConsole replaces stderr as the console sink.
func WithConsole(w io.Writer) Option {
	return func(o *Options) { o.Console = w }
}

// New returns a logger for the given environment. Development logs are colored
// through tint, production logs are JSON. The optional file sink is always JSON.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := Options{
		Console:    os.Stderr,
		LogFile:    "logs/voxclone.log",
		Level:      slog.LevelInfo,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 28,
	}
	if !environment.IsProduction() {
		o.Level = slog.LevelDebug
	}
	for _, opt := range opts {
		opt(&o)
	}

	var console slog.Handler
	if environment.IsProduction() {
		console = slog.NewJSONHandler(o.Console, &slog.HandlerOptions{Level: o.Level})
	} else {
		console = tint.NewHandler(o.Console, &tint.Options{
			Level:      o.Level,
			TimeFormat: time.TimeOnly,
		})
	}

	if !o.LogToFile {
		return slog.New(console).With("env", environment.String())
	}

	file := &lumberjack.Logger{
		Filename:   o.LogFile,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}

	return slog.New(fanout{
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.Level}),
	}).With("env", environment.String())
}

// fanout forwards every record to all handlers.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

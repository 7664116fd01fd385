// Package logger holds the process-wide zerolog logger and the component
// loggers derived from it.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger with a few bot-specific helpers.
type Logger struct {
	zerolog.Logger
}

// Options configures Setup.
type Options struct {
	Level string
	// File, when set, receives json lines in addition to stdout.
	File string
	// Format is "console" (default) or "json" for stdout.
	Format string
	// Stdout overrides os.Stdout, mainly for tests.
	Stdout io.Writer
}

// Setup builds a logger from o. An unknown level falls back to info.
func Setup(o Options) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(o.Level))
	if err != nil || o.Level == "" {
		lvl = zerolog.InfoLevel
	}

	out := o.Stdout
	if out == nil {
		out = os.Stdout
	}
	var console io.Writer
	switch o.Format {
	case "", "console":
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	case "json":
		console = out
	default:
		return nil, fmt.Errorf("unknown log format %q", o.Format)
	}

	writers := []io.Writer{console}
	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Logger()
	return &Logger{zl}, nil
}

var global *Logger

// Init replaces the process-wide logger. Component loggers created before
// Init keep writing nowhere.
func Init(o Options) error {
	l, err := Setup(o)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// Get returns the process-wide logger, a no-op one until Init runs.
func Get() *Logger {
	if global == nil {
		return &Logger{zerolog.Nop()}
	}
	return global
}

// Component returns a child of the process-wide logger tagged with name.
func Component(name string) *Logger {
	return Get().With(name)
}

// With returns a child logger tagged with the component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{l.Logger.With().Str("component", component).Logger()}
}

// Alert logs an error that needs a human, e.g. a charge without a grant.
func (l *Logger) Alert(err error, msg string) {
	l.Error().Err(err).Bool("alert", true).Msg(msg)
}

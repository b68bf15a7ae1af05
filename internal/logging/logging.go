// Package logging configures the process-wide structured zerolog logger,
// writing to a rotating file via lumberjack and, unless silenced,
// mirroring to the console for interactive runs. Components log through
// loggers derived from the one Configure returns.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls how Configure builds the global logger.
type Options struct {
	// Path is the rotating log file destination. Required.
	Path string
	// Level is a zerolog level string ("debug", "info", "warn", "error").
	// Empty defaults to "info".
	Level string
	// Console mirrors log output to stderr in human-readable form, for
	// interactive runs. Disable for unattended/cron invocations.
	Console bool
}

// Configure installs the global zerolog logger per opts and returns it.
// Callers derive per-component loggers from the return value with
// logger.With().Str("component", "downloads").Logger().
func Configure(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}

	var out io.Writer = rotator
	if opts.Console {
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		out = zerolog.MultiLevelWriter(rotator, console)
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level)
	zerolog.DefaultContextLogger = &logger
	return logger
}

// Component returns a child logger tagged with the given component name
// (e.g. "discovery", "downloads", "asr", "summarize", "pipeline").
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

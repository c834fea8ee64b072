// Package logging builds the zerolog loggers used by the server and the CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/rfcontrol/internal/config"
)

// ParseLevel maps a level name to a zerolog level. Unknown names map to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(name) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLevel changes the process-wide minimum level.
func SetLevel(name string) zerolog.Level {
	level := ParseLevel(name)
	zerolog.SetGlobalLevel(level)
	return level
}

// New creates a logger writing human-readable lines to stderr and, when
// cfg.File is set, JSON lines to a size-rotated file. The returned closer
// releases the file and is never nil.
func New(cfg config.LoggingConfig) (zerolog.Logger, io.Closer) {
	return newLogger(os.Stderr, cfg)
}

func newLogger(console io.Writer, cfg config.LoggingConfig) (zerolog.Logger, io.Closer) {
	level := SetLevel(cfg.Level)

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339},
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		writers = append(writers, file)
		closer = file
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.TraceLevel).
		With().Timestamp().Caller().Logger()

	logger.Info().Msgf("logging initialized at level %v", level)
	return logger, closer
}

// NewConsole creates a stderr-only logger for command line tools.
func NewConsole(level string) zerolog.Logger {
	logger, _ := newLogger(os.Stderr, config.LoggingConfig{Level: level})
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

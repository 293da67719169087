// Package logger configures zerolog for the stockledger binary.
package logger

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects output format and level.
type Config struct {
	Env   string // "development" writes console lines, anything else JSON
	Level string // any zerolog level name; empty or unknown means info
}

// Logger carries the process-wide zerolog logger.
type Logger struct {
	zl zerolog.Logger
}

// New builds a timestamped logger writing to out and installs it as the
// zerolog global.
func New(cfg Config, out io.Writer) *Logger {
	if cfg.Env == "development" {
		out = zerolog.ConsoleWriter{Out: out}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = zl
	return &Logger{zl: zl}
}

func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zl.With().Str("component", name).Logger()
}

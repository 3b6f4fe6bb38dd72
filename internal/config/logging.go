package config

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger builds the process logger. Level and format have already been
// validated.
func (l *LoggingConfig) Logger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if l.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	lvl, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Install replaces the global logger.
func (l *LoggingConfig) Install() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = l.Logger(nil)
}

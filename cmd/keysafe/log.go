package main

import (
	"io"

	"github.com/rs/zerolog"
)

func newLogger(cfg config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	var w io.Writer = out
	if cfg.Log.Pretty {
		w = zerolog.ConsoleWriter{Out: out}
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

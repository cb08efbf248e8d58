// Package logging configures the process-wide zerolog logger, switching
// between a human-readable console writer and structured JSON depending
// on whether stdout is a terminal.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Init configures zerolog's global logger and returns a component
// logger for the caller. levelName is parsed with zerolog.ParseLevel;
// an unrecognized value falls back to info.
func Init(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if term.IsTerminal(int(os.Stdout.Fd())) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger
}

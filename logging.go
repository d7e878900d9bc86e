package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const logTimeFormat = "20060102 15:04:05"

// newRunLogger builds the logger for one run. It is created once per run and
// travels in the run's context.
func newRunLogger(w io.Writer, level zerolog.Level, runID string) zerolog.Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: logTimeFormat, NoColor: !color}
	return zerolog.New(console).Level(level).With().Timestamp().Str("run", runID).Logger()
}

// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Options shape the logger.
type Options struct {
	Level string
	// Cluster is added to every entry when set.
	Cluster string
	// Console forces human-readable output; otherwise it is used when the
	// writer is a terminal.
	Console bool
}

// New creates a zerolog.Logger writing to w. An unparsable level falls back
// to info.
func New(w io.Writer, opts Options) zerolog.Logger {
	if opts.Console || IsTerminal(w) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if opts.Cluster != "" {
		ctx = ctx.Str("cluster", opts.Cluster)
	}
	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

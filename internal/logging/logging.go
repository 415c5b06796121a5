// Package logging builds the process logger.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a timestamped JSON logger writing to w at the given level.
// Unknown or empty levels mean info.
func New(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// NewConsole is New with human-readable output, for interactive use.
func NewConsole(level string, w io.Writer) zerolog.Logger {
	return New(level, zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"})
}

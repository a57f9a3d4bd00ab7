// Package logging builds the zerolog loggers used across the client.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger at level writing to w
func New(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// NewConsole returns a human-readable logger for interactive use
func NewConsole(level string, w io.Writer) (zerolog.Logger, error) {
	logger, err := New(level, zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	if err != nil {
		return logger, err
	}
	return logger, nil
}

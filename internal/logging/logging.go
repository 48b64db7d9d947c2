// Package logging builds the structured zerolog logger ringcast
// threads through transport, feed, and the pool metrics bridge.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger at the given level. pretty selects a
// human-readable console writer for local development; production
// runs use zerolog's default JSON encoding.
func New(level string, pretty bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	zerolog.SetGlobalLevel(lvl)

	var out = os.Stdout
	logger := zerolog.New(out).With().Timestamp().Str("service", "ringcast").Logger()
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", "ringcast").Logger()
	}

	return logger, nil
}

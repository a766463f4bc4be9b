// Package telemetry wires zerolog's global logger the way the teacher's
// cmd/cryptorun/main.go does: RFC3339 timestamps, optional pretty console
// output, and a parsed level from configuration.
package telemetry

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs the global zerolog logger at the given level. pretty
// selects the human-readable console writer (for local/dev runs);
// non-pretty emits structured JSON to stderr (for production).
func Init(level string, pretty bool) error {
	zerolog.TimeFieldFormat = time.RFC3339

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

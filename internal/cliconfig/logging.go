package cliconfig

import (
	"os"

	"github.com/rs/zerolog"

	logadapter "github.com/bft-labs/telship/internal/adapters/log"
)

// Logger returns the CLI logger: console output on stderr, debug level when
// verbose (developer mode) is set.
func Logger(verbose bool) zerolog.Logger {
	return logadapter.NewConsoleLogger(os.Stderr, verbose)
}

// Package gwlog sets up the process-wide zerolog logger, grounded on
// logger/logger.go's console-writer-in-development pattern.
package gwlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds the gateway's logger: a console writer in development, JSON
// to stdout otherwise, level taken from level.
func New(env, level string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if env == "development" {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(w).With().Timestamp().Logger()
}

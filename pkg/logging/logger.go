// Package logging provides structured logging for the quorum engine using zerolog.
//
// The default logger is configured from LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT,
// LOG_CALLER and NO_COLOR. Engine code never logs through it directly: it
// takes the logger carried by its context, which the batch, round, target
// and operation helpers enrich as work fans out.
//
//	ctx = logging.WithBatch(ctx, "nightly")
//	ctx = logging.WithTarget(ctx, "5001")
//	logging.FromContext(ctx).Debug().Int("distinct", 3).Msg("no winner yet")
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var defaultLogger = NewLoggerFromConfig(envConfig())

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
}

// Configure replaces the process-wide logger with one built from cfg.
func Configure(cfg *Config) {
	SetDefault(NewLoggerFromConfig(cfg))
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

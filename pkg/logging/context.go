package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey struct{}

// WithLogger stores logger in ctx. A nil logger stores the default one.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*zerolog.Logger); ok && logger != nil {
			return logger
		}
	}
	return Default()
}

// enrich derives a child of the context logger carrying extra fields.
func enrich(ctx context.Context, fields func(zerolog.Context) zerolog.Context) context.Context {
	logger := fields(FromContext(ctx).With()).Logger()
	return WithLogger(ctx, &logger)
}

// WithBatch tags every entry with the batch label.
func WithBatch(ctx context.Context, label string) context.Context {
	return enrich(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("batch", label) })
}

// WithRound tags every entry with the scheduler round.
func WithRound(ctx context.Context, round int) context.Context {
	return enrich(ctx, func(c zerolog.Context) zerolog.Context { return c.Int("round", round) })
}

// WithTarget tags every entry with the target id.
func WithTarget(ctx context.Context, targetID string) context.Context {
	return enrich(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("target_id", targetID) })
}

// WithOperation tags every entry with the job step being run.
func WithOperation(ctx context.Context, operation string) context.Context {
	return enrich(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("operation", operation) })
}

// Package retry re-runs flaky calls a bounded number of times.
package retry

import (
	"context"
	"time"

	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/logging"
)

// Fallback maps an error kind to a value returned in place of failing.
type Fallback[T any] struct {
	On    error
	Value T
}

// Policy configures Do.
type Policy[T any] struct {
	// Times is the number of guarded attempts.
	Times int
	// Sleep is the pause after each retryable failure.
	Sleep time.Duration
	// Retryable lists the error kinds worth another attempt, matched with
	// errors.Is. When empty, errors.IsTransient decides.
	Retryable []error
	// Fallbacks are consulted once the guarded attempts are exhausted.
	Fallbacks []Fallback[T]
	// Prefix is prepended to retry warnings, usually the target id.
	Prefix string
}

func (p Policy[T]) retryable(err error) bool {
	if len(p.Retryable) == 0 {
		return errors.IsTransient(err)
	}
	for _, target := range p.Retryable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (p Policy[T]) fallback(err error) (T, bool) {
	for _, fb := range p.Fallbacks {
		if errors.Is(err, fb.On) {
			return fb.Value, true
		}
	}
	var zero T
	return zero, false
}

// Do calls fn until it succeeds or fails with a non-retryable error, at most
// p.Times times. When every guarded attempt failed, the last error is
// matched against p.Fallbacks; without a match fn gets one final unguarded
// call whose result is returned as-is. A fn that keeps failing is therefore
// called p.Times+1 times.
//
// The sleep between attempts honours ctx.
func Do[T any](ctx context.Context, p Policy[T], fn func(context.Context) (T, error)) (T, error) {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= p.Times; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !p.retryable(err) {
			return v, err
		}
		lastErr = err

		event := logger.Warn().Err(err).Int("attempt", attempt).Int("times", p.Times)
		if p.Prefix != "" {
			event = event.Str("prefix", p.Prefix)
		}
		event.Msg("retrying")

		if err := Sleep(ctx, p.Sleep); err != nil {
			var zero T
			return zero, err
		}
	}

	if lastErr != nil {
		if v, ok := p.fallback(lastErr); ok {
			return v, nil
		}
	}
	return fn(ctx)
}

// Sleep pauses for d or until ctx ends, returning the context error in the
// latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

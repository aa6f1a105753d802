// Package scheduler drives a batch of jobs through bounded rounds.
//
// Each round dispatches every job that is neither done nor terminally
// failed, at most Concurrency at a time. A job error or panic is logged and
// counted as a failed attempt; it never aborts the batch. After MaxRounds
// rounds, the batch succeeds when no more than Tolerance jobs are
// unresolved and fails with an *errors.BatchError otherwise.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/job"
	"github.com/agentstation/quorum/pkg/logging"
	"github.com/agentstation/quorum/pkg/retry"
)

// Runner is one schedulable unit of work, usually a *job.Job.
type Runner interface {
	ID() string
	// Done reports whether the runner has nothing left to do.
	Done(ctx context.Context) (bool, error)
	// Failed reports whether the runner ended without a result.
	Failed() bool
	// Run performs one round.
	Run(ctx context.Context) (job.Status, error)
}

var _ Runner = (*job.Job)(nil)

// Options configures Run.
type Options struct {
	Concurrency int
	MaxRounds   int
	RoundSleep  time.Duration
	Tolerance   int
	Label       string
}

// DefaultOptions returns the options the engine ships with.
func DefaultOptions() Options {
	return Options{
		Concurrency: constants.DefaultConcurrency,
		MaxRounds:   constants.DefaultMaxRounds,
		RoundSleep:  constants.DefaultRoundSleep,
		Tolerance:   constants.DefaultTolerance,
		Label:       "batch",
	}
}

// RoundStats summarizes one round.
type RoundStats struct {
	Round      int `json:"round"`
	Dispatched int `json:"dispatched"`
	Committed  int `json:"committed"`
	Errors     int `json:"errors"`
}

// Outcome summarizes a batch.
type Outcome struct {
	Label     string        `json:"label"`
	Rounds    []RoundStats  `json:"rounds"`
	Done      []string      `json:"done"`
	Failed    []string      `json:"failed"`
	Tolerance int           `json:"tolerance"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Warning describes tolerated failures, or "" when there are none.
func (o *Outcome) Warning() string {
	if len(o.Failed) == 0 {
		return ""
	}
	return fmt.Sprintf("%d unresolved targets tolerated (tolerance %d)", len(o.Failed), o.Tolerance)
}

// Run drives jobs until they are all done or MaxRounds rounds have run.
// The returned Outcome is non-nil even when the batch fails, so callers can
// report on it; the error is then an *errors.BatchError, or the context
// error when ctx ends first.
func Run(ctx context.Context, jobs []Runner, opts Options) (*Outcome, error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRounds < 1 {
		opts.MaxRounds = 1
	}
	if opts.Label == "" {
		opts.Label = "batch"
	}

	ctx = logging.WithBatch(ctx, opts.Label)
	logger := logging.FromContext(ctx)
	start := time.Now()
	outcome := &Outcome{Label: opts.Label, Tolerance: opts.Tolerance}

	for round := 1; round <= opts.MaxRounds; round++ {
		pending := remaining(ctx, jobs)
		if len(pending) == 0 {
			break
		}

		logger.Info().
			Int("round", round).
			Int("jobs", len(pending)).
			Int("concurrency", opts.Concurrency).
			Msg("dispatching round")

		stats := dispatch(logging.WithRound(ctx, round), pending, opts.Concurrency)
		stats.Round = round
		outcome.Rounds = append(outcome.Rounds, stats)

		logger.Info().
			Int("round", round).
			Int("committed", stats.Committed).
			Int("errors", stats.Errors).
			Msgf("%d targets committed", stats.Committed)

		if ctx.Err() != nil {
			break
		}
		if round < opts.MaxRounds && stats.Committed < len(pending) && len(remaining(ctx, pending)) > 0 {
			if err := retry.Sleep(ctx, opts.RoundSleep); err != nil {
				break
			}
		}
	}

	for _, j := range jobs {
		if done, _ := j.Done(ctx); done {
			outcome.Done = append(outcome.Done, j.ID())
		} else {
			outcome.Failed = append(outcome.Failed, j.ID())
		}
	}
	slices.Sort(outcome.Done)
	slices.Sort(outcome.Failed)
	outcome.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	if len(outcome.Failed) > opts.Tolerance {
		err := errors.NewBatchError(opts.Label, opts.Tolerance, outcome.Failed)
		logger.Error().Err(err).Strs("targets", outcome.Failed).Msg("batch failed")
		return outcome, err
	}
	if len(outcome.Failed) > 0 {
		logger.Warn().Strs("targets", outcome.Failed).Msg(outcome.Warning())
	}
	logger.Info().
		Int("done", len(outcome.Done)).
		Dur("elapsed", outcome.Elapsed).
		Msg("batch finished")
	return outcome, nil
}

// remaining filters jobs to those neither done nor terminally failed.
func remaining(ctx context.Context, jobs []Runner) []Runner {
	out := make([]Runner, 0, len(jobs))
	for _, j := range jobs {
		if j.Failed() {
			continue
		}
		done, err := j.Done(ctx)
		if err != nil {
			logging.FromContext(logging.WithTarget(ctx, j.ID())).Warn().Err(err).Msg("could not check cache")
		}
		if !done {
			out = append(out, j)
		}
	}
	return out
}

// dispatch runs one round of jobs, at most limit at a time.
func dispatch(ctx context.Context, jobs []Runner, limit int) RoundStats {
	var (
		mu    sync.Mutex
		stats = RoundStats{Dispatched: len(jobs)}
	)
	record := func(status job.Status, failed bool) {
		mu.Lock()
		defer mu.Unlock()
		if failed {
			stats.Errors++
		}
		if status == job.StatusCommitted {
			stats.Committed++
		}
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			status, err := runOne(ctx, j)
			record(status, err != nil)
			return nil
		})
	}
	_ = g.Wait()
	return stats
}

// runOne runs j once, converting a panic into an error.
func runOne(ctx context.Context, j Runner) (status job.Status, err error) {
	logger := logging.FromContext(logging.WithTarget(ctx, j.ID()))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			logger.Error().Err(err).Msg("attempt failed")
		}
	}()

	status, err = j.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Str("status", status.String()).Msg("attempt failed")
	}
	return status, err
}

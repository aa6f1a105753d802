// Package job implements the per-target state machine of a batch.
//
// A Job fetches its target once per scheduler round, tallies the samples it
// observes, and commits a winner through the cache when the tally is
// confident. In its last round, or once its samples are too diverse to
// agree, it runs a final-chance step that always either commits or fails.
package job

import (
	"context"
	"time"

	"github.com/agentstation/quorum/pkg/cache"
	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/logging"
	"github.com/agentstation/quorum/pkg/retry"
	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/verify"
	"github.com/agentstation/quorum/pkg/vote"
)

// Status is where a job stands after a round.
type Status int

const (
	// StatusPending means no winner yet; the job runs again next round.
	StatusPending Status = iota
	// StatusCommitted means a record was written.
	StatusCommitted
	// StatusFailed means the final-chance step found no winner.
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCommitted:
		return "committed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fetcher retrieves the raw document of a target.
type Fetcher interface {
	Fetch(ctx context.Context, targetID string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, targetID string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, targetID string) ([]byte, error) {
	return f(ctx, targetID)
}

// Config holds the collaborators shared by every job of a batch.
type Config struct {
	Fetcher   Fetcher
	Parser    sample.Parser
	Verifier  *verify.Verifier
	Cache     *cache.Cache
	Policy    vote.Policy
	MaxRounds int
	// RetryTimes and RetrySleep guard each fetch against transient errors.
	RetryTimes int
	RetrySleep time.Duration
	// OnCommit is called once per committed record.
	OnCommit func(*sample.Record)
	// Now stamps committed records. Defaults to time.Now.
	Now func() time.Time
}

// Validate reports missing collaborators.
func (c *Config) Validate() error {
	switch {
	case c.Fetcher == nil:
		return errors.NewConfigError("job", "fetcher is required", nil)
	case c.Parser == nil:
		return errors.NewConfigError("job", "parser is required", nil)
	case c.Verifier == nil:
		return errors.NewConfigError("job", "verifier is required", nil)
	case c.Cache == nil:
		return errors.NewConfigError("job", "cache is required", nil)
	case c.MaxRounds < 1:
		return errors.NewValidationError("max_rounds", c.MaxRounds, "must be at least 1")
	}
	return c.Policy.Validate()
}

// Key is where the committed record of targetID is cached. IDs whose
// escaped form would exceed constants.MaxKeySegment are hashed.
func Key(targetID string) cache.Key {
	key := cache.JoinKey("records", cache.P("id", targetID))
	if len(key)-len("records/") > constants.MaxKeySegment {
		return cache.HashKey("records", targetID)
	}
	return key
}

// Job reconciles one target. It is run by one goroutine at a time.
type Job struct {
	id        string
	cfg       *Config
	tally     *vote.Tally
	probes    *verify.ProbeMemo
	countdown int
	status    Status
	record    *sample.Record
}

// New creates a pending job for targetID.
func New(targetID string, cfg *Config) *Job {
	rounds := cfg.MaxRounds
	if rounds < 1 {
		rounds = constants.DefaultMaxRounds
	}
	return &Job{
		id:        targetID,
		cfg:       cfg,
		tally:     vote.NewTally(cfg.Policy),
		probes:    verify.NewProbeMemo(),
		countdown: rounds - 1,
	}
}

// ID returns the target id.
func (j *Job) ID() string { return j.id }

// Status returns the current state.
func (j *Job) Status() Status { return j.status }

// Countdown returns the rounds left before the final-chance step.
func (j *Job) Countdown() int { return j.countdown }

// Tally exposes the job's votes for inspection.
func (j *Job) Tally() *vote.Tally { return j.tally }

// Record returns the committed record, or nil.
func (j *Job) Record() *sample.Record { return j.record }

// Done reports whether the target has a committed record, either from this
// run or a fresh cache entry from an earlier one. No fetch is performed.
func (j *Job) Done(ctx context.Context) (bool, error) {
	if j.status == StatusCommitted {
		return true, nil
	}
	fresh, err := j.cfg.Cache.Fresh(ctx, Key(j.id))
	if err != nil || !fresh {
		return false, err
	}
	rec, err := cache.Load[sample.Record](ctx, j.cfg.Cache, Key(j.id))
	if err != nil {
		return false, err
	}
	j.status = StatusCommitted
	j.record = rec
	return true, nil
}

// Failed reports whether the job ended without a winner.
func (j *Job) Failed() bool { return j.status == StatusFailed }

// Run performs one round. The countdown decreases by one on every call.
func (j *Job) Run(ctx context.Context) (Status, error) {
	ctx = logging.WithTarget(ctx, j.id)
	defer func() {
		if j.countdown > 0 {
			j.countdown--
		}
	}()

	if j.status != StatusPending {
		return j.status, nil
	}
	if j.countdown == 0 {
		return j.finalChance(ctx, true)
	}
	if _, ok := j.tally.Winner(false, false); ok {
		return j.finalChance(ctx, false)
	}
	return j.main(ctx)
}

func (j *Job) fetch(ctx context.Context) ([]byte, error) {
	return retry.Do(ctx, retry.Policy[[]byte]{
		Times:  j.cfg.RetryTimes,
		Sleep:  j.cfg.RetrySleep,
		Prefix: j.id,
	}, func(ctx context.Context) ([]byte, error) {
		return j.cfg.Fetcher.Fetch(ctx, j.id)
	})
}

// observe fetches, parses and tallies one sample. It returns the sample
// and whether it was verified; a nil sample means it was rejected.
func (j *Job) observe(ctx context.Context) (*sample.Sample, bool, error) {
	logger := logging.FromContext(ctx)

	raw, err := j.fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	s, err := j.cfg.Parser.Parse(j.id, raw)
	if err != nil {
		if errors.IsStructure(err) {
			logger.Warn().Err(err).Msg("sample rejected")
			return nil, false, nil
		}
		return nil, false, err
	}

	j.tally.Add(s)
	res := j.cfg.Verifier.Verify(ctx, s, j.id, j.probes)
	if !res.Verified {
		logger.Debug().Int("probes", len(res.Attempted)).Msg("sample not verified")
		return s, false, nil
	}
	if err := j.tally.AddVerified(s); err != nil {
		return s, false, err
	}
	return s, true, nil
}

// main is the cheap step: one more observation, commit only when confident.
func (j *Job) main(ctx context.Context) (Status, error) {
	if _, _, err := j.observe(ctx); err != nil {
		return StatusPending, err
	}
	d, ok := j.tally.Winner(true, false)
	if !ok {
		logging.FromContext(ctx).Debug().
			Int("distinct", j.tally.Len()).
			Int("countdown", j.countdown).
			Msg("no winner yet")
		return StatusPending, nil
	}
	return j.commit(ctx, d, nil)
}

// finalChance observes once more and commits the best sample it can.
func (j *Job) finalChance(ctx context.Context, exhausted bool) (Status, error) {
	ctx = logging.WithOperation(ctx, "final_chance")
	logger := logging.FromContext(ctx)

	if _, _, err := j.observe(ctx); err != nil {
		if j.tally.Len() == 0 {
			j.status = StatusFailed
			return StatusFailed, err
		}
		logger.Warn().Err(err).Msg("final fetch failed, deciding on earlier samples")
	}

	d, ok := j.tally.Winner(false, exhausted)
	if !ok {
		if exhausted {
			logger.Error().Int("distinct", j.tally.Len()).Msg("no winner")
			j.status = StatusFailed
			return StatusFailed, nil
		}
		return StatusPending, nil
	}

	var warnings []string
	if d.Full == 0 {
		res := j.cfg.Verifier.Verify(ctx, d.Sample, j.id, j.probes)
		if err := res.Err(j.id); err != nil {
			var verr *errors.VerificationError
			if errors.As(err, &verr) {
				logger.Warn().
					Err(err).
					Strs("probe_urls", verr.Attempted).
					Msg("committing unverified winner")
			}
			warnings = append(warnings, err.Error())
		}
	}
	return j.commit(ctx, d, warnings)
}

func (j *Job) commit(ctx context.Context, d vote.Decision, warnings []string) (Status, error) {
	now := j.cfg.Now
	if now == nil {
		now = time.Now
	}
	rec, err := cache.FetchOrLoad(ctx, j.cfg.Cache, Key(j.id), func(context.Context) (*sample.Record, error) {
		r := sample.NewRecord(d.Sample, d.Votes(), d.Full > 0, d.Reason, now())
		r.Warnings = warnings
		return r, nil
	})
	if err != nil {
		return StatusPending, err
	}

	j.status = StatusCommitted
	j.record = rec
	logging.FromContext(ctx).Info().
		Str("reason", d.Reason).
		Int("basic", d.Basic).
		Int("full", d.Full).
		Int("similar", d.Similar).
		Int("distinct", d.Distinct).
		Msg("committed")

	if j.cfg.OnCommit != nil {
		j.cfg.OnCommit(rec)
	}
	return StatusCommitted, nil
}

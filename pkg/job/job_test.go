package job_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/quorum/pkg/cache"
	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/job"
	"github.com/agentstation/quorum/pkg/logging"
	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/verify"
	"github.com/agentstation/quorum/pkg/vote"
)

// parseFake reads "name=A;lat=1;desc" documents. An empty document is a
// structural failure; "desc" attaches a 30x30 descriptor.
var parseFake = sample.ParserFunc(func(id string, raw []byte) (*sample.Sample, error) {
	if len(raw) == 0 {
		return nil, errors.NewStructureError(id, "body", "empty")
	}
	var fields []sample.Field
	var opts []sample.Option
	for _, part := range strings.Split(string(raw), ";") {
		if part == "desc" {
			opts = append(opts, sample.WithDescriptor(sample.Descriptor{MaxX: 30, MaxY: 30, Width: 30, Height: 30}))
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		fields = append(fields, sample.Field{Name: k, Value: v})
	}
	opts = append(opts, sample.WithVolatile("lat"))
	return sample.New(id, fields, opts...), nil
})

// scripted serves documents in order, repeating the last one.
type scripted struct {
	mu    sync.Mutex
	docs  []string
	errs  []error
	calls int
}

func (s *scripted) Fetch(context.Context, string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.docs) {
		i = len(s.docs) - 1
	}
	return []byte(s.docs[i]), nil
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var neverMatches = verify.ProberFunc(func(context.Context, string) (string, error) {
	return "no features", nil
})

func newConfig(fetcher job.Fetcher, c *cache.Cache, maxRounds int) *job.Config {
	return &job.Config{
		Fetcher:   fetcher,
		Parser:    parseFake,
		Verifier:  verify.New(neverMatches, verify.Query{BaseURL: "http://overlay.test/wms", FilterField: "code"}),
		Cache:     c,
		Policy:    vote.DefaultPolicy(),
		MaxRounds: maxRounds,
		Now:       func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) },
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", job.StatusPending.String())
	assert.Equal(t, "committed", job.StatusCommitted.String())
	assert.Equal(t, "failed", job.StatusFailed.String())
	assert.Equal(t, "unknown", job.Status(42).String())
}

func TestConfigValidate(t *testing.T) {
	c := cache.New(cache.NewMemoryStore(0))
	assert.NoError(t, newConfig(&scripted{docs: []string{"name=A"}}, c, 3).Validate())

	cfg := newConfig(nil, c, 3)
	var cerr *errors.ConfigError
	assert.ErrorAs(t, cfg.Validate(), &cerr)

	cfg = newConfig(&scripted{}, c, 0)
	assert.True(t, errors.IsValidationError(cfg.Validate()))
}

func TestMainStepCommitsWhenConfident(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(0)
	fetcher := &scripted{docs: []string{"name=A;lat=1"}}
	cfg := newConfig(fetcher, cache.New(store), 5)

	var commits []*sample.Record
	cfg.OnCommit = func(r *sample.Record) { commits = append(commits, r) }

	j := job.New("5001", cfg)
	status, err := j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, status, "one verified observation is not enough")

	status, err = j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCommitted, status)

	require.Len(t, commits, 1)
	rec := j.Record()
	require.NotNil(t, rec)
	assert.Equal(t, "5001", rec.ID)
	assert.Equal(t, vote.ReasonConfident, rec.Reason)
	assert.Equal(t, sample.Votes{Basic: 2, Full: 2, Distinct: 1}, rec.Votes)
	assert.True(t, rec.Verified)
	assert.Equal(t, 1, store.Len())

	status, err = j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCommitted, status)
	assert.Equal(t, 2, fetcher.Calls(), "committed jobs do not fetch")
	assert.Len(t, commits, 1)
}

func TestCommittedTargetIsSkippedOnRerun(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore(0), cache.WithMaxAge(time.Hour))

	first := job.New("5001", newConfig(&scripted{docs: []string{"name=A;lat=1"}}, c, 5))
	for i := 0; i < 2; i++ {
		_, err := first.Run(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, job.StatusCommitted, first.Status())

	fetcher := &scripted{docs: []string{"name=B"}}
	second := job.New("5001", newConfig(fetcher, c, 5))
	done, err := second.Done(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 0, fetcher.Calls())

	require.NotNil(t, second.Record())
	assert.True(t, second.Record().Sample().Equal(first.Record().Sample()))
	assert.Equal(t, first.Record().Sample().CanonicalKey(), second.Record().Sample().CanonicalKey())
}

func TestFinalChanceCommitsUnverifiedWinner(t *testing.T) {
	ctx := context.Background()
	tl := logging.NewTestLogger(t)
	ctx = logging.WithLogger(ctx, tl.Logger)

	fetcher := &scripted{docs: []string{"name=A;desc", "name=B;desc", "name=A;desc"}}
	j := job.New("5001", newConfig(fetcher, cache.New(cache.NewMemoryStore(0)), 3))

	statuses := make([]job.Status, 0, 3)
	for i := 0; i < 3; i++ {
		status, err := j.Run(ctx)
		require.NoError(t, err)
		statuses = append(statuses, status)
	}

	assert.Equal(t, []job.Status{job.StatusPending, job.StatusPending, job.StatusCommitted}, statuses)
	rec := j.Record()
	require.NotNil(t, rec)
	assert.Equal(t, vote.ReasonLastChance, rec.Reason)
	assert.False(t, rec.Verified)
	require.Len(t, rec.Warnings, 1)
	assert.Contains(t, rec.Warnings[0], "not verified after 4 probes")

	name, _ := rec.Sample().Get("name")
	assert.Equal(t, "A", name)

	tl.AssertContains(t, "committing unverified winner")
	tl.AssertContains(t, "probe_urls")
	tl.AssertContains(t, `"operation":"final_chance"`)
}

func TestFinalChanceFailsWithoutSamples(t *testing.T) {
	ctx := context.Background()
	fetcher := &scripted{
		docs: []string{"name=A"},
		errs: []error{errors.ErrTransient, errors.ErrTransient, errors.ErrTransient},
	}
	j := job.New("5001", newConfig(fetcher, cache.New(cache.NewMemoryStore(0)), 2))

	status, err := j.Run(ctx)
	assert.ErrorIs(t, err, errors.ErrTransient)
	assert.Equal(t, job.StatusPending, status)

	status, err = j.Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, job.StatusFailed, status)
	assert.True(t, j.Failed())

	calls := fetcher.Calls()
	status, err = j.Run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, job.StatusFailed, status)
	assert.Equal(t, calls, fetcher.Calls())
}

func TestFinalChanceSurvivesFetchFailure(t *testing.T) {
	ctx := context.Background()
	fetcher := &scripted{
		docs: []string{"name=A;desc"},
		errs: []error{nil, errors.ErrTransient},
	}
	j := job.New("5001", newConfig(fetcher, cache.New(cache.NewMemoryStore(0)), 2))

	status, err := j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, status)

	status, err = j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCommitted, status)
}

func TestStructuralRejection(t *testing.T) {
	ctx := context.Background()
	tl := logging.NewTestLogger(t)
	ctx = logging.WithLogger(ctx, tl.Logger)

	j := job.New("5001", newConfig(&scripted{docs: []string{""}}, cache.New(cache.NewMemoryStore(0)), 3))
	status, err := j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, status)
	assert.Equal(t, 0, j.Tally().Len())
	tl.AssertContains(t, "sample rejected")
	tl.AssertContains(t, `"target_id":"5001"`)
}

func TestDiversityTriggersFinalChance(t *testing.T) {
	ctx := context.Background()
	fetcher := &scripted{docs: []string{"name=A;desc", "name=B;desc", "name=C;desc"}}
	cfg := newConfig(fetcher, cache.New(cache.NewMemoryStore(0)), 10)
	cfg.Policy.DiversityCap = 1

	j := job.New("5001", cfg)
	for i := 0; i < 2; i++ {
		status, err := j.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, job.StatusPending, status)
	}

	status, err := j.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCommitted, status)
	assert.Equal(t, vote.ReasonExhaustion, j.Record().Reason)
	assert.Equal(t, 3, j.Record().Votes.Distinct)
	assert.Greater(t, j.Countdown(), 0)
}

func TestTerminationWithinMaxRounds(t *testing.T) {
	ctx := context.Background()
	patterns := map[string]*scripted{
		"always distinct": {docs: []string{"name=A;desc", "name=B;desc", "name=C;desc", "name=D;desc"}},
		"always rejected": {docs: []string{""}},
		"always failing":  {docs: []string{"x"}, errs: []error{errors.ErrTransient, errors.ErrTransient, errors.ErrTransient, errors.ErrTransient}},
		"stable":          {docs: []string{"name=A;desc"}},
	}

	for name, fetcher := range patterns {
		t.Run(name, func(t *testing.T) {
			const maxRounds = 4
			j := job.New("5001", newConfig(fetcher, cache.New(cache.NewMemoryStore(0)), maxRounds))

			var rounds atomic.Int32
			for i := 0; i < maxRounds; i++ {
				rounds.Add(1)
				status, _ := j.Run(ctx)
				if status != job.StatusPending {
					break
				}
			}
			assert.NotEqual(t, job.StatusPending, j.Status())
			assert.LessOrEqual(t, int(rounds.Load()), maxRounds)
			assert.Equal(t, 0, j.Countdown())
		})
	}
}

func TestKey(t *testing.T) {
	t.Run("readable for ordinary ids", func(t *testing.T) {
		assert.Equal(t, cache.Key("records/id=5001"), job.Key("5001"))
		assert.Equal(t, cache.Key("records/id=a%2Fb"), job.Key("a/b"))
	})

	t.Run("long ids are hashed", func(t *testing.T) {
		long := strings.Repeat("x", 500)
		key := job.Key(long)
		assert.Equal(t, cache.HashKey("records", long), key)
		assert.Equal(t, key, job.Key(long))
		assert.NotEqual(t, key, job.Key(long+"y"))
		assert.Less(t, len(key), 100)
	})
}

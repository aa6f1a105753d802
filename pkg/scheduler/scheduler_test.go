package scheduler_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/job"
	"github.com/agentstation/quorum/pkg/logging"
	"github.com/agentstation/quorum/pkg/scheduler"
)

// fakeJob commits after commitAfter runs. A negative commitAfter never
// commits; failAfter marks the job failed after that many runs.
type fakeJob struct {
	id          string
	commitAfter int
	failAfter   int
	err         error
	panics      bool
	gate        func()

	mu     sync.Mutex
	runs   int
	status job.Status
}

func (f *fakeJob) ID() string { return f.id }

func (f *fakeJob) Done(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status == job.StatusCommitted, nil
}

func (f *fakeJob) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status == job.StatusFailed
}

func (f *fakeJob) Run(context.Context) (job.Status, error) {
	if f.gate != nil {
		f.gate()
	}
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	switch {
	case f.commitAfter >= 0 && f.runs >= f.commitAfter:
		f.status = job.StatusCommitted
	case f.failAfter > 0 && f.runs >= f.failAfter:
		f.status = job.StatusFailed
	}
	return f.status, f.err
}

func (f *fakeJob) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func options(tolerance int) scheduler.Options {
	return scheduler.Options{Concurrency: 2, MaxRounds: 4, Tolerance: tolerance, Label: "test"}
}

func runners(jobs ...*fakeJob) []scheduler.Runner {
	out := make([]scheduler.Runner, len(jobs))
	for i, j := range jobs {
		out[i] = j
	}
	return out
}

func TestToleranceBoundary(t *testing.T) {
	tests := []struct {
		name      string
		failing   int
		tolerance int
		wantErr   bool
	}{
		{name: "one failure within tolerance", failing: 1, tolerance: 1},
		{name: "one failure without tolerance", failing: 1, tolerance: 0, wantErr: true},
		{name: "two failures over tolerance", failing: 2, tolerance: 1, wantErr: true},
		{name: "two failures at tolerance", failing: 2, tolerance: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := []*fakeJob{
				{id: "1", commitAfter: 1},
				{id: "2", commitAfter: 2},
			}
			for i := 0; i < tt.failing; i++ {
				jobs = append(jobs, &fakeJob{id: string(rune('a' + i)), commitAfter: -1, failAfter: 4})
			}

			outcome, err := scheduler.Run(context.Background(), runners(jobs...), options(tt.tolerance))
			require.NotNil(t, outcome)
			assert.Equal(t, []string{"1", "2"}, outcome.Done)
			assert.Len(t, outcome.Failed, tt.failing)

			if !tt.wantErr {
				assert.NoError(t, err)
				assert.NotEmpty(t, outcome.Warning())
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsBatchFailed(err))
			var berr *errors.BatchError
			require.ErrorAs(t, err, &berr)
			assert.Equal(t, tt.failing, berr.Failures)
			assert.Equal(t, outcome.Failed, berr.Targets)
		})
	}
}

// Five jobs at concurrency two where two jobs fail on every one of four
// rounds: the batch only passes when the tolerance covers both failures.
func TestFiveJobsTwoFailingEveryRound(t *testing.T) {
	tests := []struct {
		tolerance int
		wantErr   bool
	}{
		{tolerance: 0, wantErr: true},
		{tolerance: 1, wantErr: true},
		{tolerance: 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("tolerance %d", tt.tolerance), func(t *testing.T) {
			jobs := []*fakeJob{
				{id: "1", commitAfter: 1},
				{id: "2", commitAfter: 1},
				{id: "3", commitAfter: 2},
				{id: "x", commitAfter: -1, err: assert.AnError},
				{id: "y", commitAfter: -1, err: assert.AnError},
			}

			outcome, err := scheduler.Run(context.Background(), runners(jobs...), options(tt.tolerance))
			require.NotNil(t, outcome)
			assert.Len(t, outcome.Rounds, 4)
			assert.ElementsMatch(t, []string{"1", "2", "3"}, outcome.Done)
			assert.ElementsMatch(t, []string{"x", "y"}, outcome.Failed)
			assert.Equal(t, 4, jobs[3].Runs())
			assert.Equal(t, 4, jobs[4].Runs())

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var berr *errors.BatchError
			require.ErrorAs(t, err, &berr)
			assert.Equal(t, 2, berr.Failures)
			assert.Equal(t, tt.tolerance, berr.Tolerance)
		})
	}
}

func TestRunStopsWhenAllDone(t *testing.T) {
	a := &fakeJob{id: "a", commitAfter: 1}
	b := &fakeJob{id: "b", commitAfter: 2}

	outcome, err := scheduler.Run(context.Background(), runners(a, b), scheduler.Options{Concurrency: 1, MaxRounds: 10})
	require.NoError(t, err)
	assert.Len(t, outcome.Rounds, 2)
	assert.Equal(t, 1, a.Runs(), "done jobs are not dispatched again")
	assert.Equal(t, 2, b.Runs())
	assert.Empty(t, outcome.Warning())

	assert.Equal(t, 2, outcome.Rounds[0].Dispatched)
	assert.Equal(t, 1, outcome.Rounds[0].Committed)
	assert.Equal(t, 1, outcome.Rounds[1].Dispatched)
	assert.Equal(t, 1, outcome.Rounds[1].Committed)
}

func TestRunIsBoundedByMaxRounds(t *testing.T) {
	never := &fakeJob{id: "x", commitAfter: -1}
	outcome, err := scheduler.Run(context.Background(), runners(never), scheduler.Options{MaxRounds: 3})
	require.Error(t, err)
	assert.Equal(t, 3, never.Runs())
	assert.Len(t, outcome.Rounds, 3)
	assert.Equal(t, []string{"x"}, outcome.Failed)
}

func TestFailedJobsAreNotRedispatched(t *testing.T) {
	failing := &fakeJob{id: "x", commitAfter: -1, failAfter: 1}
	_, err := scheduler.Run(context.Background(), runners(failing), scheduler.Options{MaxRounds: 5, Tolerance: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, failing.Runs())
}

func TestErrorsAndPanicsDoNotAbortTheBatch(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	panicky := &fakeJob{id: "p", commitAfter: -1, panics: true}
	erring := &fakeJob{id: "e", commitAfter: 2, err: errors.ErrTransient}
	fine := &fakeJob{id: "f", commitAfter: 1}

	outcome, err := scheduler.Run(ctx, runners(panicky, erring, fine), scheduler.Options{Concurrency: 3, MaxRounds: 2, Tolerance: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "f"}, outcome.Done)
	assert.Equal(t, []string{"p"}, outcome.Failed)
	assert.Equal(t, 2, outcome.Rounds[0].Errors)

	tl.AssertContains(t, "job panicked: boom")
	tl.AssertContains(t, `"batch":"batch"`)
	tl.AssertContains(t, `"target_id":"e"`)
	tl.AssertContains(t, `"round":1`)
}

func TestConcurrencyLimit(t *testing.T) {
	var active, peak atomic.Int32
	gate := func() {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
	}

	var jobs []*fakeJob
	for i := 0; i < 8; i++ {
		jobs = append(jobs, &fakeJob{id: string(rune('a' + i)), commitAfter: 1, gate: gate})
	}
	_, err := scheduler.Run(context.Background(), runners(jobs...), scheduler.Options{Concurrency: 3, MaxRounds: 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, int(peak.Load()), 3)
	assert.Positive(t, int(peak.Load()))
}

func TestNoSleepAfterLastRound(t *testing.T) {
	never := &fakeJob{id: "x", commitAfter: -1}
	start := time.Now()
	_, err := scheduler.Run(context.Background(), runners(never), scheduler.Options{MaxRounds: 1, RoundSleep: time.Hour, Tolerance: 1})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestCancellationInterruptsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	never := &fakeJob{id: "x", commitAfter: -1, gate: cancel}

	outcome, err := scheduler.Run(ctx, runners(never), scheduler.Options{MaxRounds: 5, RoundSleep: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, outcome)
	assert.Equal(t, 1, never.Runs())
}

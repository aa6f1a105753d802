package quorum

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/job"
	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/verify"
)

const pageTemplate = `<!doctype html>
<html><body>
<div class="record">
  <input type="hidden" id="record-id" value="%[1]s">
  <input name="name" value="Record %[1]s">
  <input name="address" value="Street %[1]s">
  <div data-bbox="0,0,30,30" data-width="30" data-height="30"></div>
</div>
</body></html>`

// fixture serves detail pages for every id but "missing", and an overlay
// that confirms every id it is asked about.
type fixture struct {
	source  *httptest.Server
	overlay *httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{hits: map[string]int{}}

	f.source = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/detail/")
		f.mu.Lock()
		f.hits[id]++
		f.mu.Unlock()
		if id == "missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, pageTemplate, id)
	}))
	t.Cleanup(f.source.Close)

	f.overlay = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("CQL_FILTER")
		_, id, _ := strings.Cut(filter, "'")
		id = strings.TrimSuffix(id, "'")
		fmt.Fprintf(w, "Results for FeatureType 'parcels':\n--------------------------------------------\ncode = %s\n", id)
	}))
	t.Cleanup(f.overlay.Close)

	return f
}

func (f *fixture) Hits(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[id]
}

func (f *fixture) options(dir string, extra ...Option) []Option {
	opts := []Option{
		WithSourceURL(f.source.URL + "/detail/{id}"),
		WithOverlay(verify.Query{BaseURL: f.overlay.URL + "/wms", Layers: []string{"parcels"}, FilterField: "code"}),
		WithHTMLConfig(sample.HTMLConfig{Container: "div.record", Address: "address"}),
		WithCacheDir(dir),
		WithConcurrency(2),
		WithMaxRounds(3),
		WithRoundSleep(0),
		WithRetry(0, 0),
		WithTolerance(1),
		WithLabel("test"),
	}
	return append(opts, extra...)
}

func TestEngineRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dir := t.TempDir()

	engine, err := New(f.options(dir)...)
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	var mu sync.Mutex
	var committed []sample.Record
	engine.OnCommitted(func(r sample.Record) {
		mu.Lock()
		defer mu.Unlock()
		committed = append(committed, r)
	})

	ids := []string{"5002", "5001", "missing", "5001"}
	outcome, err := engine.Run(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"5001", "5002"}, outcome.Done)
	assert.Equal(t, []string{"missing"}, outcome.Failed)
	assert.NotEmpty(t, outcome.Warning())
	assert.Len(t, outcome.Rounds, 3)

	require.Len(t, committed, 2)
	for _, r := range committed {
		assert.True(t, r.Verified)
		assert.Equal(t, "confident", r.Reason)
	}
	assert.Equal(t, 2, f.Hits("5001"), "two verified observations commit")
	assert.Positive(t, engine.AddressMemo().Len())

	records, err := engine.Records(ctx, ids)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "5001", records[0].ID)
	name, _ := records[0].Sample().Get("name")
	assert.Equal(t, "Record 5001", name)

	_, err = engine.Record(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	t.Run("rerun skips committed targets", func(t *testing.T) {
		outcome, err := engine.Run(ctx, []string{"5001", "5002"})
		require.NoError(t, err)
		assert.Equal(t, []string{"5001", "5002"}, outcome.Done)
		assert.Empty(t, outcome.Rounds)
		assert.Equal(t, 2, f.Hits("5001"))
	})

	t.Run("overwrite fetches again", func(t *testing.T) {
		again, err := New(f.options(dir, WithOverwrite(true))...)
		require.NoError(t, err)
		_, err = again.Run(ctx, []string{"5001"})
		require.NoError(t, err)
		assert.Equal(t, 4, f.Hits("5001"))
	})
}

func TestEngineBatchFailure(t *testing.T) {
	f := newFixture(t)
	engine, err := New(f.options(t.TempDir(), WithTolerance(0))...)
	require.NoError(t, err)

	outcome, err := engine.Run(context.Background(), []string{"5001", "missing"})
	require.Error(t, err)
	assert.True(t, errors.IsBatchFailed(err))
	require.NotNil(t, outcome)
	assert.Equal(t, []string{"5001"}, outcome.Done)
	assert.Equal(t, 3, f.Hits("missing"), "one fetch per round")
}

func TestEngineWithFakes(t *testing.T) {
	var calls int
	fetcher := job.FetcherFunc(func(_ context.Context, id string) ([]byte, error) {
		calls++
		return []byte("name=" + id), nil
	})
	parser := sample.ParserFunc(func(id string, raw []byte) (*sample.Sample, error) {
		name, _ := strings.CutPrefix(string(raw), "name=")
		return sample.New(id, []sample.Field{{Name: "name", Value: name}}), nil
	})
	prober := verify.ProberFunc(func(context.Context, string) (string, error) {
		return "", errors.ErrTransient
	})

	engine, err := New(
		WithFetcher(fetcher),
		WithParser(parser),
		WithProber(prober),
		WithCacheDir(t.TempDir()),
		WithCacheFormat("yaml"),
		WithMaxRounds(5),
		WithRoundSleep(0),
		WithClock(func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	outcome, err := engine.Run(context.Background(), []string{"7"})
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, outcome.Done)
	// No descriptor: every observation is verified.
	assert.Equal(t, 2, calls)

	rec, err := engine.Record(context.Background(), "7")
	require.NoError(t, err)
	assert.True(t, rec.CommittedAt.Equal(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)))
}

func TestNewValidation(t *testing.T) {
	_, err := New(WithOverlay(verify.Query{BaseURL: "http://overlay.test"}))
	var cerr *errors.ConfigError
	assert.ErrorAs(t, err, &cerr, "a source is required")

	_, err = New(WithSourceURL("http://source.test/{id}"))
	assert.ErrorAs(t, err, &cerr, "an overlay is required")

	_, err = New(WithSourceURL("http://source.test/records"), WithOverlay(verify.Query{BaseURL: "http://overlay.test"}))
	assert.True(t, errors.IsValidationError(err))

	for name, opt := range map[string]Option{
		"concurrency": WithConcurrency(0),
		"max rounds":  WithMaxRounds(0),
		"tolerance":   WithTolerance(-1),
		"grid step":   WithGridStep(0),
		"max probes":  WithMaxProbes(0),
		"retry":       WithRetry(-1, 0),
		"format":      WithCacheFormat("xml"),
		"fetcher":     WithFetcher(nil),
	} {
		_, err := New(opt)
		assert.True(t, errors.IsValidationError(err), name)
	}
}

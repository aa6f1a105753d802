// Package quorum reconciles records that a flaky source serves
// inconsistently.
//
// Each requested target is fetched once per round. Distinct observations
// are tallied, corroborated against an independent overlay service, and
// the first sample with enough votes is committed to a durable cache. A
// batch ends after a bounded number of rounds and fails only when more
// targets than tolerated stayed unresolved.
//
// Example usage:
//
//	engine, err := quorum.New(
//	    quorum.WithSourceURL("https://records.example.org/detail/{id}"),
//	    quorum.WithOverlay(verify.Query{
//	        BaseURL:     "https://maps.example.org/wms",
//	        Layers:      []string{"parcels"},
//	        FilterField: "code",
//	    }),
//	    quorum.WithConcurrency(8),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	engine.OnCommitted(func(r sample.Record) {
//	    fmt.Println("committed", r.ID, r.Reason)
//	})
//
//	outcome, err := engine.Run(ctx, []string{"5001", "5002"})
package quorum

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agentstation/quorum/internal/targets"
	"github.com/agentstation/quorum/internal/transport"
	"github.com/agentstation/quorum/pkg/cache"
	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/job"
	"github.com/agentstation/quorum/pkg/logging"
	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/scheduler"
	"github.com/agentstation/quorum/pkg/verify"
)

// Engine runs batches against one source, one overlay and one cache. The
// address memo is shared by every batch of the engine.
type Engine struct {
	config   *config
	hooks    *hooks
	pool     *http.Client
	fetcher  job.Fetcher
	parser   sample.Parser
	verifier *verify.Verifier
	cache    *cache.Cache
}

// New creates an Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("applying options: %w", err)
		}
	}

	e := &Engine{config: cfg, hooks: newHooks(), pool: cfg.httpClient}
	if err := e.build(); err != nil {
		return nil, err
	}
	return e, nil
}

// build wires the collaborators the options left unset.
func (e *Engine) build() error {
	cfg := e.config

	if (cfg.fetcher == nil || cfg.prober == nil) && e.pool == nil {
		pool, err := transport.NewPool(transport.PoolConfig{
			Concurrency: cfg.schedule.Concurrency,
			Timeout:     cfg.httpTimeout,
		})
		if err != nil {
			return err
		}
		e.pool = pool
	}

	e.fetcher = cfg.fetcher
	if e.fetcher == nil {
		if cfg.sourceURL == "" {
			return errors.NewConfigError("source", "a source URL or fetcher is required", nil)
		}
		client := transport.New(e.pool, transport.ServiceSource, transport.WithHeaders(transport.DefaultHeaders()))
		f, err := transport.NewFetcher(client, cfg.sourceURL)
		if err != nil {
			return err
		}
		e.fetcher = f
	}

	prober := cfg.prober
	if prober == nil {
		if cfg.overlay.BaseURL == "" {
			return errors.NewConfigError("overlay", "an overlay URL or prober is required", nil)
		}
		prober = transport.New(e.pool, transport.ServiceOverlay)
	}

	e.parser = cfg.parser
	if e.parser == nil {
		p, err := sample.NewHTMLParser(sample.DefaultHTMLConfig())
		if err != nil {
			return err
		}
		e.parser = p
	}

	memo := cfg.memo
	if memo == nil {
		memo = verify.NewAddressMemo()
	}
	e.verifier = verify.New(prober, cfg.overlay,
		verify.WithGridStep(cfg.gridStep),
		verify.WithMaxProbes(cfg.maxProbes),
		verify.WithAddressMemo(memo),
	)

	store := cfg.store
	if store == nil {
		store = cache.NewFileStore(cfg.dir, cfg.codec.Ext())
	}
	e.cache = cache.New(store,
		cache.WithCodec(cfg.codec),
		cache.WithMaxAge(cfg.maxAge),
		cache.WithClock(cfg.now),
	)
	return nil
}

// OnCommitted registers a callback for committed records.
func (e *Engine) OnCommitted(fn CommittedHook) {
	e.hooks.OnCommitted(fn)
}

// Cache returns the record cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// AddressMemo returns the memo shared by the engine's batches.
func (e *Engine) AddressMemo() *verify.AddressMemo { return e.verifier.AddressMemo() }

// Run reconciles ids in one batch. Duplicate ids are merged. Targets with
// a fresh committed record are not fetched unless the engine overwrites.
//
// The outcome is returned even when the batch fails; the error is then an
// *errors.BatchError or the context error.
func (e *Engine) Run(ctx context.Context, ids []string) (*scheduler.Outcome, error) {
	ids = targets.Normalize(ids)
	logger := logging.FromContext(ctx)

	if e.config.overwrite {
		for _, id := range ids {
			if err := e.cache.Invalidate(ctx, job.Key(id)); err != nil {
				return nil, err
			}
		}
		logger.Info().Int("targets", len(ids)).Msg("discarded committed records")
	}

	jobCfg := &job.Config{
		Fetcher:    e.fetcher,
		Parser:     e.parser,
		Verifier:   e.verifier,
		Cache:      e.cache,
		Policy:     e.config.policy,
		MaxRounds:  e.config.schedule.MaxRounds,
		RetryTimes: e.config.retryTimes,
		RetrySleep: e.config.retrySleep,
		OnCommit:   e.hooks.committed,
		Now:        e.config.now,
	}
	if err := jobCfg.Validate(); err != nil {
		return nil, err
	}

	runners := make([]scheduler.Runner, len(ids))
	for i, id := range ids {
		runners[i] = job.New(id, jobCfg)
	}
	return scheduler.Run(ctx, runners, e.config.schedule)
}

// Record returns the committed record of id, stale or not.
func (e *Engine) Record(ctx context.Context, id string) (*sample.Record, error) {
	return cache.Load[sample.Record](ctx, e.cache, job.Key(id))
}

// Records returns the committed records of ids in id order, skipping
// targets without one.
func (e *Engine) Records(ctx context.Context, ids []string) ([]*sample.Record, error) {
	var out []*sample.Record
	for _, id := range targets.Normalize(ids) {
		r, err := e.Record(ctx, id)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Close releases idle pooled connections.
func (e *Engine) Close() error {
	if e.pool != nil {
		e.pool.CloseIdleConnections()
	}
	return nil
}

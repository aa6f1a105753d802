// Package cache provides the idempotent, staleness-aware result cache that
// guards every commit of the engine.
//
// A Cache pairs a Store (files on disk, or memory) with a Codec and a max
// age. FetchOrLoad either returns a fresh stored entry or calls a producer
// and persists its result, so a target that was committed once is never
// fetched again until its entry goes stale.
//
// Example usage:
//
//	c := cache.New(cache.NewFileStore("data/records", ".json"),
//	    cache.WithMaxAge(constants.CacheMaxAge))
//
//	rec, err := cache.FetchOrLoad(ctx, c, cache.JoinKey("records", cache.P("id", id)),
//	    func(ctx context.Context) (*sample.Record, error) {
//	        return produce(ctx)
//	    })
package cache

import (
	"context"
	"time"

	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/logging"
)

// Cache is safe for concurrent use when its Store is.
type Cache struct {
	store  Store
	codec  Codec
	maxAge time.Duration
	reload bool
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithCodec sets the payload codec. Defaults to JSON.
func WithCodec(codec Codec) Option {
	return func(c *Cache) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithMaxAge sets how long an entry stays fresh. Zero means entries never
// go stale.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		c.maxAge = d
	}
}

// WithReload forces every FetchOrLoad to call its producer.
func WithReload(reload bool) Option {
	return func(c *Cache) {
		c.reload = reload
	}
}

// WithClock overrides the time source used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		codec: JSON,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying store.
func (c *Cache) Store() Store {
	return c.store
}

// MaxAge returns the configured freshness window.
func (c *Cache) MaxAge() time.Duration {
	return c.maxAge
}

// Fresh reports whether key holds an entry that is not stale.
func (c *Cache) Fresh(ctx context.Context, key Key) (bool, error) {
	modTime, ok, err := c.store.Stat(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if c.maxAge <= 0 {
		return true, nil
	}
	return c.now().Sub(modTime) <= c.maxAge, nil
}

// Invalidate drops the entry under key so the next FetchOrLoad produces it
// again.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	return c.store.Delete(ctx, key)
}

// Load decodes the entry stored under key regardless of its age.
func Load[T any](ctx context.Context, c *Cache, key Key) (*T, error) {
	data, err := c.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := c.codec.Unmarshal(data, &v); err != nil {
		return nil, errors.WrapParse(c.codec.Name(), key.String(), err)
	}
	return &v, nil
}

// FetchOrLoad returns the fresh entry under key when there is one, without
// calling producer. Otherwise it calls producer and, when the producer
// yields a non-nil value, persists it before returning it. A nil value is
// returned as-is and nothing is written.
//
// Each call either reads one entry or writes at most one entry, never both.
// Store failures are returned unchanged and are not retried here.
func FetchOrLoad[T any](ctx context.Context, c *Cache, key Key, producer func(context.Context) (*T, error)) (*T, error) {
	logger := logging.FromContext(ctx)

	if !c.reload {
		fresh, err := c.Fresh(ctx, key)
		if err != nil {
			return nil, err
		}
		if fresh {
			logger.Trace().Str("key", key.String()).Msg("cache hit")
			return Load[T](ctx, c, key)
		}
	}

	v, err := producer(ctx)
	if err != nil || v == nil {
		return v, err
	}

	data, err := c.codec.Marshal(v)
	if err != nil {
		return nil, errors.WrapParse(c.codec.Name(), key.String(), err)
	}
	if err := c.store.Write(ctx, key, data); err != nil {
		return nil, err
	}
	logger.Debug().Str("key", key.String()).Msg("cache write")
	return v, nil
}

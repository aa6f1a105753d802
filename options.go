package quorum

import (
	"net/http"
	"time"

	"github.com/agentstation/quorum/pkg/cache"
	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/job"
	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/scheduler"
	"github.com/agentstation/quorum/pkg/verify"
	"github.com/agentstation/quorum/pkg/vote"
)

// Option is a function that configures an Engine.
type Option func(*config) error

// config holds the engine settings before collaborators are built.
type config struct {
	sourceURL string
	fetcher   job.Fetcher
	parser    sample.Parser

	overlay verify.Query
	prober  verify.Prober

	store  cache.Store
	codec  cache.Codec
	dir    string
	maxAge time.Duration

	policy     vote.Policy
	schedule   scheduler.Options
	gridStep   int
	maxProbes  int
	retryTimes int
	retrySleep time.Duration

	httpClient  *http.Client
	httpTimeout time.Duration

	overwrite bool
	memo      *verify.AddressMemo
	now       func() time.Time
}

func defaultConfig() *config {
	return &config{
		codec:       cache.JSON,
		dir:         constants.DefaultCacheDir,
		maxAge:      constants.CacheMaxAge,
		policy:      vote.DefaultPolicy(),
		schedule:    scheduler.DefaultOptions(),
		gridStep:    constants.DefaultGridStep,
		maxProbes:   constants.MaxProbes,
		retryTimes:  constants.MaxRetries,
		retrySleep:  constants.RetryBackoff,
		httpTimeout: constants.DefaultHTTPTimeout,
		now:         time.Now,
	}
}

// WithSourceURL sets the primary fetch URL template. It must contain {id}.
func WithSourceURL(template string) Option {
	return func(c *config) error {
		c.sourceURL = template
		return nil
	}
}

// WithFetcher replaces the HTTP primary fetch.
func WithFetcher(f job.Fetcher) Option {
	return func(c *config) error {
		if f == nil {
			return errors.NewValidationError("fetcher", nil, "must not be nil")
		}
		c.fetcher = f
		return nil
	}
}

// WithParser replaces the default HTML parser.
func WithParser(p sample.Parser) Option {
	return func(c *config) error {
		if p == nil {
			return errors.NewValidationError("parser", nil, "must not be nil")
		}
		c.parser = p
		return nil
	}
}

// WithHTMLConfig builds the default parser from cfg.
func WithHTMLConfig(cfg sample.HTMLConfig) Option {
	return func(c *config) error {
		p, err := sample.NewHTMLParser(cfg)
		if err != nil {
			return err
		}
		c.parser = p
		return nil
	}
}

// WithOverlay sets the verification overlay query.
func WithOverlay(q verify.Query) Option {
	return func(c *config) error {
		c.overlay = q
		return nil
	}
}

// WithProber replaces the HTTP overlay client.
func WithProber(p verify.Prober) Option {
	return func(c *config) error {
		if p == nil {
			return errors.NewValidationError("prober", nil, "must not be nil")
		}
		c.prober = p
		return nil
	}
}

// WithStore replaces the file store under the cache directory.
func WithStore(s cache.Store) Option {
	return func(c *config) error {
		c.store = s
		return nil
	}
}

// WithCacheDir sets the directory committed records are written to.
func WithCacheDir(dir string) Option {
	return func(c *config) error {
		c.dir = dir
		return nil
	}
}

// WithCacheFormat selects the record encoding, "json" or "yaml".
func WithCacheFormat(name string) Option {
	return func(c *config) error {
		codec, err := cache.CodecFor(name)
		if err != nil {
			return err
		}
		c.codec = codec
		return nil
	}
}

// WithCacheMaxAge sets how long a committed record short-circuits its
// target. Zero or less keeps records forever.
func WithCacheMaxAge(d time.Duration) Option {
	return func(c *config) error {
		c.maxAge = d
		return nil
	}
}

// WithPolicy replaces the vote thresholds.
func WithPolicy(p vote.Policy) Option {
	return func(c *config) error {
		if err := p.Validate(); err != nil {
			return err
		}
		c.policy = p
		return nil
	}
}

// WithConcurrency bounds the jobs in flight and the connections per host.
func WithConcurrency(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return errors.NewValidationError("concurrency", n, "must be at least 1")
		}
		c.schedule.Concurrency = n
		return nil
	}
}

// WithMaxRounds sets the round budget of a batch.
func WithMaxRounds(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return errors.NewValidationError("max_rounds", n, "must be at least 1")
		}
		c.schedule.MaxRounds = n
		return nil
	}
}

// WithRoundSleep sets the pause between rounds.
func WithRoundSleep(d time.Duration) Option {
	return func(c *config) error {
		c.schedule.RoundSleep = d
		return nil
	}
}

// WithTolerance sets how many unresolved targets a batch accepts.
func WithTolerance(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return errors.NewValidationError("tolerance", n, "must not be negative")
		}
		c.schedule.Tolerance = n
		return nil
	}
}

// WithLabel names batches in logs and errors.
func WithLabel(label string) Option {
	return func(c *config) error {
		c.schedule.Label = label
		return nil
	}
}

// WithGridStep sets the spacing between verification probes.
func WithGridStep(step int) Option {
	return func(c *config) error {
		if step < 1 {
			return errors.NewValidationError("grid_step", step, "must be at least 1")
		}
		c.gridStep = step
		return nil
	}
}

// WithMaxProbes bounds the overlay queries of one verification.
func WithMaxProbes(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return errors.NewValidationError("max_probes", n, "must be at least 1")
		}
		c.maxProbes = n
		return nil
	}
}

// WithRetry sets the guarded attempts of each fetch and the pause between
// them.
func WithRetry(times int, sleep time.Duration) Option {
	return func(c *config) error {
		if times < 0 {
			return errors.NewValidationError("retry.times", times, "must not be negative")
		}
		c.retryTimes = times
		c.retrySleep = sleep
		return nil
	}
}

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) error {
		c.httpClient = client
		return nil
	}
}

// WithHTTPTimeout bounds each request of the pooled client.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.httpTimeout = d
		return nil
	}
}

// WithOverwrite discards committed records of the requested targets before
// each batch.
func WithOverwrite(enabled bool) Option {
	return func(c *config) error {
		c.overwrite = enabled
		return nil
	}
}

// WithAddressMemo shares an address memo between engines.
func WithAddressMemo(memo *verify.AddressMemo) Option {
	return func(c *config) error {
		c.memo = memo
		return nil
	}
}

// WithClock stamps committed records with now.
func WithClock(now func() time.Time) Option {
	return func(c *config) error {
		c.now = now
		return nil
	}
}

// Package app provides the application context and dependency management
// for the quorum CLI. It centralizes configuration, logging and the engine
// lifecycle so commands only deal with their own flags.
package app

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/quorum"
	"github.com/agentstation/quorum/pkg/errors"
)

// App represents the quorum application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	out    io.Writer

	// Engine instance (lazy-initialized, singleton)
	mu         sync.RWMutex
	engine     *quorum.Engine
	engineOpts []quorum.Option
}

// New creates a new App instance with the given version information.
// Configuration is loaded from the environment, .env files and the default
// config file; options may replace it.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
		out:     os.Stdout,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Engine returns the engine built from the configuration, creating it
// lazily. It is safe for concurrent use and creates one instance.
func (a *App) Engine() (*quorum.Engine, error) {
	a.mu.RLock()
	if a.engine != nil {
		e := a.engine
		a.mu.RUnlock()
		return e, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if a.engine != nil {
		return a.engine, nil
	}

	e, err := quorum.New(a.engineOptions()...)
	if err != nil {
		return nil, err
	}
	a.engine = e
	return e, nil
}

// EngineWithOptions returns a new engine built from the configuration with
// extra options applied last. Commands use it for per-invocation overrides.
// The caller closes it.
func (a *App) EngineWithOptions(extra ...quorum.Option) (*quorum.Engine, error) {
	return quorum.New(append(a.engineOptions(), extra...)...)
}

// engineOptions maps the configuration onto engine options.
func (a *App) engineOptions() []quorum.Option {
	c := a.config
	opts := []quorum.Option{
		quorum.WithHTMLConfig(c.Source.HTMLConfig),
		quorum.WithOverlay(c.Overlay),
		quorum.WithCacheDir(c.Cache.Dir),
		quorum.WithCacheFormat(c.Cache.Format),
		quorum.WithCacheMaxAge(c.Cache.MaxAge),
		quorum.WithConcurrency(c.Engine.Concurrency),
		quorum.WithMaxRounds(c.Engine.MaxRounds),
		quorum.WithRoundSleep(c.Engine.RoundSleep),
		quorum.WithTolerance(c.Engine.Tolerance),
		quorum.WithGridStep(c.Engine.GridStep),
		quorum.WithMaxProbes(c.Engine.MaxProbes),
		quorum.WithRetry(c.Retry.Times, c.Retry.Sleep),
		quorum.WithPolicy(c.Policy),
		quorum.WithHTTPTimeout(c.HTTP.Timeout),
	}
	if c.Source.URL != "" {
		opts = append(opts, quorum.WithSourceURL(c.Source.URL))
	}
	return append(opts, a.engineOpts...)
}

// Shutdown releases the engine's pooled connections.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine == nil {
		return nil
	}
	if err := a.engine.Close(); err != nil {
		return errors.WrapIO("close", "engine", err)
	}
	a.engine = nil

	a.logger.Debug().Msg("engine closed")
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		logger := NewLogger(config)
		a.logger = &logger
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithOutput redirects command output, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}

// WithEngineOptions appends engine options after the configured ones.
func WithEngineOptions(opts ...quorum.Option) Option {
	return func(a *App) error {
		a.engineOpts = append(a.engineOpts, opts...)
		return nil
	}
}

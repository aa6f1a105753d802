package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/verify"
	"github.com/agentstation/quorum/pkg/vote"
)

// EnvPrefix prefixes every environment variable the CLI reads, so
// engine.max_rounds is QUORUM_ENGINE_MAX_ROUNDS.
const EnvPrefix = "QUORUM"

// SourceConfig locates and parses target documents.
type SourceConfig struct {
	// URL is the document URL template; {id} is replaced by the target id.
	URL               string `mapstructure:"url"`
	sample.HTMLConfig `mapstructure:",squash"`
}

// CacheConfig locates committed records.
type CacheConfig struct {
	Dir    string        `mapstructure:"dir"`
	MaxAge time.Duration `mapstructure:"max_age"`
	Format string        `mapstructure:"format"`
}

// EngineConfig bounds a batch.
type EngineConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	MaxRounds   int           `mapstructure:"max_rounds"`
	RoundSleep  time.Duration `mapstructure:"round_sleep"`
	Tolerance   int           `mapstructure:"tolerance"`
	GridStep    int           `mapstructure:"grid_step"`
	MaxProbes   int           `mapstructure:"max_probes"`
}

// RetryConfig guards each fetch.
type RetryConfig struct {
	Times int           `mapstructure:"times"`
	Sleep time.Duration `mapstructure:"sleep"`
}

// HTTPConfig tunes the shared connection pool.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig selects the diagnostic stream.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Config holds the application configuration loaded from flags, the
// environment, .env files and the config file.
type Config struct {
	// Global flags
	Verbose bool   `mapstructure:"verbose"`
	Quiet   bool   `mapstructure:"quiet"`
	NoColor bool   `mapstructure:"no_color"`
	Format  string `mapstructure:"format"`

	// ConfigFile is the file actually read, if any.
	ConfigFile string `mapstructure:"-"`

	Source  SourceConfig `mapstructure:"source"`
	Overlay verify.Query `mapstructure:"overlay"`
	Cache   CacheConfig  `mapstructure:"cache"`
	Engine  EngineConfig `mapstructure:"engine"`
	Retry   RetryConfig  `mapstructure:"retry"`
	Policy  vote.Policy  `mapstructure:"policy"`
	HTTP    HTTPConfig   `mapstructure:"http"`
	Log     LogConfig    `mapstructure:"log"`
}

// defaults are registered with viper so AutomaticEnv can see every key.
func defaults() map[string]any {
	html := sample.DefaultHTMLConfig()
	policy := vote.DefaultPolicy()
	return map[string]any{
		"verbose":  false,
		"quiet":    false,
		"no_color": os.Getenv("NO_COLOR") != "",
		"format":   "",

		"source.url":        "",
		"source.container":  html.Container,
		"source.identity":   html.Identity,
		"source.fields":     []string{},
		"source.volatile":   []string{},
		"source.address":    html.Address,
		"source.descriptor": html.Descriptor,

		"overlay.url":          "",
		"overlay.layers":       []string{},
		"overlay.filter_field": "id",
		"overlay.srs":          "",

		"cache.dir":     constants.DefaultCacheDir,
		"cache.max_age": constants.CacheMaxAge,
		"cache.format":  "json",

		"engine.concurrency": constants.DefaultConcurrency,
		"engine.max_rounds":  constants.DefaultMaxRounds,
		"engine.round_sleep": constants.DefaultRoundSleep,
		"engine.tolerance":   constants.DefaultTolerance,
		"engine.grid_step":   constants.DefaultGridStep,
		"engine.max_probes":  constants.MaxProbes,

		"retry.times": constants.MaxRetries,
		"retry.sleep": constants.RetryBackoff,

		"policy.min_full":      policy.MinFull,
		"policy.min_basic":     policy.MinBasic,
		"policy.min_similar":   policy.MinSimilar,
		"policy.diversity_cap": policy.DiversityCap,

		"http.timeout": constants.DefaultHTTPTimeout,

		"log.level":  "",
		"log.format": getEnvOrDefault("LOG_FORMAT", "auto"),
		"log.output": getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (applied later by the root command)
// 2. QUORUM_* environment variables
// 3. .env and .env.local files
// 4. Config file (configFile, or .quorum.yaml in the working or home directory)
// 5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "reading "+configFile, err)
		}
	} else {
		v.SetConfigName(".quorum")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		// A missing config file is fine.
		_ = v.ReadInConfig()
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.NewConfigError("config", "decoding settings", err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	if config.Log.Level == "" {
		config.Log.Level = os.Getenv("LOG_LEVEL")
	}
	return config, nil
}

// UpdateFromFlags applies parsed global flags. Flags always win over the
// config file and the environment.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files. Variables
// already set are not overridden.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

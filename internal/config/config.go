// Package config provides configuration management.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"storage-cost/internal/errors"
	"storage-cost/internal/logging"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "STORAGECOST"

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version" yaml:"version" mapstructure:"version"`

	// Pricing contains pricing resolver configuration
	Pricing PricingConfig `json:"pricing" yaml:"pricing" mapstructure:"pricing"`

	// Store contains persistence configuration
	Store StoreConfig `json:"store" yaml:"store" mapstructure:"store"`

	// Engine contains estimation configuration
	Engine EngineConfig `json:"engine" yaml:"engine" mapstructure:"engine"`

	// Forecast contains forecasting configuration
	Forecast ForecastConfig `json:"forecast" yaml:"forecast" mapstructure:"forecast"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// Endpoint is the retail prices API base URL
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Currency is the requested price currency
	Currency string `json:"currency" yaml:"currency" mapstructure:"currency"`

	// CacheTTL is how long a fetched price stays fresh
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// FallbackTTL is how long a fallback snapshot price stays fresh
	FallbackTTL time.Duration `json:"fallback_ttl" yaml:"fallback_ttl" mapstructure:"fallback_ttl"`

	// FetchTimeout bounds a single outbound price query
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" mapstructure:"fetch_timeout"`

	// MaxRetries is the number of retries after the first failed fetch
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// InitialBackoff is the first retry delay
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff" mapstructure:"initial_backoff"`

	// SnapshotPath overrides the embedded fallback snapshot (HCL)
	SnapshotPath string `json:"snapshot_path,omitempty" yaml:"snapshot_path,omitempty" mapstructure:"snapshot_path"`
}

// StoreConfig contains persistence settings
type StoreConfig struct {
	// Backend is one of memory, sqlite, postgres
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// SQLitePath is the database file for the sqlite backend
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty" mapstructure:"sqlite_path"`

	// PostgresDSN is the connection string for the postgres backend
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty" mapstructure:"postgres_dsn"`
}

// EngineConfig contains estimation settings
type EngineConfig struct {
	// PeriodHours is the default billing window
	PeriodHours int `json:"period_hours" yaml:"period_hours" mapstructure:"period_hours"`

	// Concurrency bounds parallel estimates in a batch
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
}

// ForecastConfig contains forecasting settings
type ForecastConfig struct {
	// MinSamples is the shortest series that can report a trend
	MinSamples int `json:"min_samples" yaml:"min_samples" mapstructure:"min_samples"`

	// MaxConfidence caps the reported confidence percent
	MaxConfidence float64 `json:"max_confidence" yaml:"max_confidence" mapstructure:"max_confidence"`

	// HorizonDays is the projection window
	HorizonDays int `json:"horizon_days" yaml:"horizon_days" mapstructure:"horizon_days"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version: "1.0",
		Pricing: PricingConfig{
			Endpoint:       "https://prices.azure.com/api/retail/prices",
			Currency:       "USD",
			CacheTTL:       7 * 24 * time.Hour,
			FallbackTTL:    6 * time.Hour,
			FetchTimeout:   10 * time.Second,
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
		},
		Store: StoreConfig{
			Backend:    "memory",
			SQLitePath: "storage-cost.db",
		},
		Engine: EngineConfig{
			PeriodHours: 720,
			Concurrency: 8,
		},
		Forecast: ForecastConfig{
			MinSamples:    7,
			MaxConfidence: 95,
			HorizonDays:   30,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads configuration from path (JSON or YAML) with STORAGECOST_*
// environment overrides. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(errors.TypeConfig, err, "reading config %s", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "decoding config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)

	v.SetDefault("pricing.endpoint", d.Pricing.Endpoint)
	v.SetDefault("pricing.currency", d.Pricing.Currency)
	v.SetDefault("pricing.cache_ttl", d.Pricing.CacheTTL)
	v.SetDefault("pricing.fallback_ttl", d.Pricing.FallbackTTL)
	v.SetDefault("pricing.fetch_timeout", d.Pricing.FetchTimeout)
	v.SetDefault("pricing.max_retries", d.Pricing.MaxRetries)
	v.SetDefault("pricing.initial_backoff", d.Pricing.InitialBackoff)
	v.SetDefault("pricing.snapshot_path", d.Pricing.SnapshotPath)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.postgres_dsn", d.Store.PostgresDSN)

	v.SetDefault("engine.period_hours", d.Engine.PeriodHours)
	v.SetDefault("engine.concurrency", d.Engine.Concurrency)

	v.SetDefault("forecast.min_samples", d.Forecast.MinSamples)
	v.SetDefault("forecast.max_confidence", d.Forecast.MaxConfidence)
	v.SetDefault("forecast.horizon_days", d.Forecast.HorizonDays)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.development", d.Logging.Development)
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Pricing.Endpoint == "":
		return errors.Config("pricing.endpoint must be set")
	case c.Pricing.CacheTTL <= 0:
		return errors.Config("pricing.cache_ttl must be positive")
	case c.Pricing.FallbackTTL <= 0:
		return errors.Config("pricing.fallback_ttl must be positive")
	case c.Pricing.FallbackTTL > c.Pricing.CacheTTL:
		return errors.Config("pricing.fallback_ttl must not exceed pricing.cache_ttl")
	case c.Pricing.FetchTimeout <= 0:
		return errors.Config("pricing.fetch_timeout must be positive")
	case c.Pricing.MaxRetries < 0:
		return errors.Config("pricing.max_retries must not be negative")
	case c.Engine.PeriodHours <= 0:
		return errors.Config("engine.period_hours must be positive")
	case c.Engine.Concurrency <= 0:
		return errors.Config("engine.concurrency must be positive")
	case c.Forecast.MinSamples < 1:
		return errors.Config("forecast.min_samples must be at least 1")
	case c.Forecast.MaxConfidence <= 0 || c.Forecast.MaxConfidence > 100:
		return errors.Config("forecast.max_confidence must be in (0, 100]")
	case c.Forecast.HorizonDays <= 0:
		return errors.Config("forecast.horizon_days must be positive")
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.Config("store.sqlite_path must be set for the sqlite backend")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.Config("store.postgres_dsn must be set for the postgres backend")
		}
	default:
		return errors.Newf(errors.TypeConfig, "unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}

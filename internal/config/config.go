// Package config defines the top-level configuration for the settlement
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETD_* environment
// variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Feed     FeedConfig     `toml:"feed"`
	Sync     SyncConfig     `toml:"sync"`
	Simulate SimulateConfig `toml:"simulate"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the settlement engine's identity parameters.
type EngineConfig struct {
	// Owner is the address allowed to authorize price updaters.
	Owner string `toml:"owner"`
	// Oracle is the address the daemon's own drivers submit prices as. It
	// must be authorized as an updater at startup.
	Oracle string `toml:"oracle"`
}

// FeedConfig holds the external market data feed parameters.
type FeedConfig struct {
	BaseURL    string `toml:"base_url"`
	FetchLimit int    `toml:"fetch_limit"`
}

// SyncConfig holds the feed-driven price sync driver parameters.
type SyncConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    duration `toml:"interval"`
	MinDeltaBp  int64    `toml:"min_delta_bp"`
	MaxFailures int      `toml:"max_failures"`
}

// SimulateConfig holds the random-walk price driver parameters.
type SimulateConfig struct {
	Enabled        bool     `toml:"enabled"`
	Interval       duration `toml:"interval"`
	FluctuationPct float64  `toml:"fluctuation_pct"`
	MaxStepBp      int64    `toml:"max_step_bp"`
	MinDeltaBp     int64    `toml:"min_delta_bp"`
	// Seed fixes the random walk for reproducible runs; 0 means seed from
	// the current time.
	Seed int64 `toml:"seed"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ledger.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the settlement
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{},
		Feed: FeedConfig{
			BaseURL:    "https://clob.polymarket.com",
			FetchLimit: 100,
		},
		Sync: SyncConfig{
			Interval:    duration{30 * time.Second},
			MinDeltaBp:  50,
			MaxFailures: 5,
		},
		Simulate: SimulateConfig{
			Interval:       duration{30 * time.Second},
			FluctuationPct: 5,
			MaxStepBp:      200,
			MinDeltaBp:     50,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketd-settlements",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			RateLimitWindow: duration{time.Second},
		},
		Mode:     "engine",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine":    true,
	"sync":      true,
	"fluctuate": true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, sync, fluctuate, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine identities.
	if c.Engine.Owner == "" {
		errs = append(errs, "engine: owner address must not be empty")
	} else if !common.IsHexAddress(c.Engine.Owner) {
		errs = append(errs, fmt.Sprintf("engine: owner %q is not a valid address", c.Engine.Owner))
	}
	runsDrivers := c.Mode == "sync" || c.Mode == "fluctuate" || c.Mode == "full"
	if runsDrivers && c.Engine.Oracle == "" {
		errs = append(errs, "engine: oracle address is required for mode "+c.Mode)
	}
	if c.Engine.Oracle != "" && !common.IsHexAddress(c.Engine.Oracle) {
		errs = append(errs, fmt.Sprintf("engine: oracle %q is not a valid address", c.Engine.Oracle))
	}

	// Feed — required when the sync driver runs.
	if (c.Mode == "sync" || c.Mode == "full") && c.Sync.Enabled {
		if c.Feed.BaseURL == "" {
			errs = append(errs, "feed: base_url must not be empty when sync is enabled")
		}
		if c.Feed.FetchLimit < 1 {
			errs = append(errs, "feed: fetch_limit must be >= 1")
		}
	}

	// Sync driver.
	if c.Sync.Enabled {
		if c.Sync.Interval.Duration <= 0 {
			errs = append(errs, "sync: interval must be positive")
		}
		if c.Sync.MaxFailures < 1 {
			errs = append(errs, "sync: max_failures must be >= 1")
		}
	}

	// Simulated driver.
	if c.Simulate.Enabled {
		if c.Simulate.Interval.Duration <= 0 {
			errs = append(errs, "simulate: interval must be positive")
		}
		if c.Simulate.FluctuationPct <= 0 || c.Simulate.FluctuationPct > 100 {
			errs = append(errs, fmt.Sprintf("simulate: fluctuation_pct must be in (0, 100], got %g", c.Simulate.FluctuationPct))
		}
		if c.Simulate.MaxStepBp < 1 {
			errs = append(errs, "simulate: max_step_bp must be >= 1")
		}
	}

	// Postgres.
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis.
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3.
	if c.S3.Enabled {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server.
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// OwnerAddress returns the parsed engine owner address. Validate must have
// passed.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Engine.Owner)
}

// OracleAddress returns the parsed oracle address, or the zero address when
// unset.
func (c *Config) OracleAddress() common.Address {
	if c.Engine.Oracle == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Engine.Oracle)
}

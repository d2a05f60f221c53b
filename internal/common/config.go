package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for famfolio
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Prices      PricesConfig  `toml:"prices"`
	FX          FXConfig      `toml:"fx"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  string `toml:"read_timeout"`
	WriteTimeout string `toml:"write_timeout"`
}

func (c *ServerConfig) GetReadTimeout() time.Duration {
	return parseDurationOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout bounds a request end to end. A price lookup that misses
// the cache can spend several provider timeouts, so the default is generous.
func (c *ServerConfig) GetWriteTimeout() time.Duration {
	return parseDurationOr(c.WriteTimeout, 5*time.Minute)
}

// StorageConfig selects and configures the persistence backend.
// Backend is one of "badger" (embedded, default), "sqlite" or "surrealdb".
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Path      string `toml:"path"`      // badger directory or sqlite file
	Address   string `toml:"address"`   // surrealdb websocket address
	Namespace string `toml:"namespace"` // surrealdb
	Database  string `toml:"database"`  // surrealdb
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	EODHD EODHDConfig `toml:"eodhd"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	RateLimit  int    `toml:"rate_limit"`
	Timeout    string `toml:"timeout"`
	MaxRetries int    `toml:"max_retries"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// PricesConfig tunes the price cache and fetch coordinator.
type PricesConfig struct {
	DailyRequestLimit int    `toml:"daily_request_limit"`
	HolidayThreshold  int    `toml:"holiday_threshold"`
	GapExpansionDays  int    `toml:"gap_expansion_days"`
	ShortGapDays      int    `toml:"short_gap_days"`
	MarketHoursBatch  int    `toml:"market_hours_batch"`
	OffHoursBatch     int    `toml:"off_hours_batch"`
	FreshMarketHours  string `toml:"fresh_market_hours"`
	FreshOffHours     string `toml:"fresh_off_hours"`
	RefreshInterval   string `toml:"refresh_interval"`
	AttemptRetention  string `toml:"attempt_retention"`
	Timezone          string `toml:"timezone"`
}

// GetFreshMarketHours returns the staleness TTL used while the market is open
func (c *PricesConfig) GetFreshMarketHours() time.Duration {
	return parseDurationOr(c.FreshMarketHours, FreshnessMarketHours)
}

// GetFreshOffHours returns the staleness TTL used while the market is closed
func (c *PricesConfig) GetFreshOffHours() time.Duration {
	return parseDurationOr(c.FreshOffHours, FreshnessOffHours)
}

// GetRefreshInterval returns the scheduler tick
func (c *PricesConfig) GetRefreshInterval() time.Duration {
	return parseDurationOr(c.RefreshInterval, 15*time.Minute)
}

// GetAttemptRetention returns how long holiday attempts are kept
func (c *PricesConfig) GetAttemptRetention() time.Duration {
	return parseDurationOr(c.AttemptRetention, 400*24*time.Hour)
}

// FXConfig describes the single currency pair used for combined totals.
type FXConfig struct {
	Base         string `toml:"base"`
	Quote        string `toml:"quote"`
	Symbol       string `toml:"symbol"`
	CacheTTL     string `toml:"cache_ttl"`
	LookbackDays int    `toml:"lookback_days"`
}

// GetCacheTTL returns the in-process FX rate cache lifetime
func (c *FXConfig) GetCacheTTL() time.Duration {
	return parseDurationOr(c.CacheTTL, 5*time.Minute)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Format   string   `toml:"format"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  "30s",
			WriteTimeout: "5m",
		},
		Storage: StorageConfig{
			Backend:   "badger",
			Path:      "data/famfolio",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "famfolio",
			Database:  "famfolio",
			Username:  "root",
			Password:  "root",
		},
		Clients: ClientsConfig{
			EODHD: EODHDConfig{
				BaseURL:    "https://eodhd.com/api",
				RateLimit:  10,
				Timeout:    "30s",
				MaxRetries: 3,
			},
		},
		Prices: PricesConfig{
			DailyRequestLimit: 200,
			HolidayThreshold:  5,
			GapExpansionDays:  35,
			ShortGapDays:      30,
			MarketHoursBatch:  20,
			OffHoursBatch:     50,
			FreshMarketHours:  "15m",
			FreshOffHours:     "1h",
			RefreshInterval:   "15m",
			AttemptRetention:  "9600h",
			Timezone:          "America/New_York",
		},
		FX: FXConfig{
			Base:         "USD",
			Quote:        "CAD",
			Symbol:       "USDCAD.FOREX",
			CacheTTL:     "5m",
			LookbackDays: 10,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Outputs:  []string{"console"},
			FilePath: "./logs/famfolio.log",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	applyEnvironmentDefaults(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FAMFOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FAMFOLIO_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FAMFOLIO_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FAMFOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("FAMFOLIO_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = strings.ToLower(backend)
	}
	if path := os.Getenv("FAMFOLIO_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}
	if addr := os.Getenv("FAMFOLIO_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}

	if v := os.Getenv("FAMFOLIO_DAILY_REQUEST_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			config.Prices.DailyRequestLimit = n
		}
	}

	for _, name := range []string{"EODHD_API_KEY", "FAMFOLIO_EODHD_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			config.Clients.EODHD.APIKey = v
			break
		}
	}
}

// applyEnvironmentDefaults raises the daily request budget in production
// unless it was explicitly configured away from the development default.
func applyEnvironmentDefaults(config *Config) {
	if config.IsProduction() && config.Prices.DailyRequestLimit == 200 {
		config.Prices.DailyRequestLimit = 500
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("FAMFOLIO_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_InvalidPortEnvIgnored(t *testing.T) {
	t.Setenv("FAMFOLIO_PORT", "not-a-number")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080 when env is invalid", cfg.Server.Port)
	}
}

func TestConfig_EODHDKeyEnvOverride(t *testing.T) {
	t.Setenv("EODHD_API_KEY", "from-env")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Clients.EODHD.APIKey != "from-env" {
		t.Errorf("EODHD.APIKey = %q, want %q", cfg.Clients.EODHD.APIKey, "from-env")
	}
}

func TestConfig_PriceDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	p := cfg.Prices

	if p.HolidayThreshold != 5 {
		t.Errorf("HolidayThreshold = %d, want 5", p.HolidayThreshold)
	}
	if p.MarketHoursBatch != 20 || p.OffHoursBatch != 50 {
		t.Errorf("batch sizes = %d/%d, want 20/50", p.MarketHoursBatch, p.OffHoursBatch)
	}
	if p.GetFreshMarketHours() != 15*time.Minute {
		t.Errorf("GetFreshMarketHours = %v, want 15m", p.GetFreshMarketHours())
	}
	if p.GetFreshOffHours() != time.Hour {
		t.Errorf("GetFreshOffHours = %v, want 1h", p.GetFreshOffHours())
	}
}

func TestConfig_DurationFallbacks(t *testing.T) {
	p := PricesConfig{FreshMarketHours: "bogus", RefreshInterval: "-1m"}
	if p.GetFreshMarketHours() != FreshnessMarketHours {
		t.Errorf("invalid duration should fall back, got %v", p.GetFreshMarketHours())
	}
	if p.GetRefreshInterval() != 15*time.Minute {
		t.Errorf("negative duration should fall back, got %v", p.GetRefreshInterval())
	}

	srv := ServerConfig{ReadTimeout: "nope"}
	if srv.GetReadTimeout() != 30*time.Second {
		t.Errorf("GetReadTimeout = %v, want 30s", srv.GetReadTimeout())
	}
	if srv.GetWriteTimeout() != 5*time.Minute {
		t.Errorf("GetWriteTimeout = %v, want 5m", srv.GetWriteTimeout())
	}

	e := EODHDConfig{Timeout: ""}
	if e.GetTimeout() != 30*time.Second {
		t.Errorf("GetTimeout = %v, want 30s", e.GetTimeout())
	}
}

func TestLoadConfig_FileOverridesAndMissingFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	local := filepath.Join(dir, "local.toml")

	if err := os.WriteFile(base, []byte(`
environment = "development"

[storage]
backend = "sqlite"
path = "data/test.db"

[prices]
daily_request_limit = 42
`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte(`
[server]
port = 9191
`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(base, filepath.Join(dir, "missing.toml"), local)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Prices.DailyRequestLimit != 42 {
		t.Errorf("DailyRequestLimit = %d, want 42", cfg.Prices.DailyRequestLimit)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Prices.HolidayThreshold != 5 {
		t.Errorf("unset keys keep defaults, HolidayThreshold = %d", cfg.Prices.HolidayThreshold)
	}
}

func TestLoadConfig_ProductionRaisesDailyLimit(t *testing.T) {
	t.Setenv("FAMFOLIO_ENV", "production")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Prices.DailyRequestLimit != 500 {
		t.Errorf("DailyRequestLimit = %d, want 500 in production", cfg.Prices.DailyRequestLimit)
	}
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server\nport = "), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error for malformed TOML")
	}
}

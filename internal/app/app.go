package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/famfolio/internal/clients/eodhd"
	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
	"github.com/bobmcallan/famfolio/internal/services/cash"
	"github.com/bobmcallan/famfolio/internal/services/fx"
	"github.com/bobmcallan/famfolio/internal/services/ledger"
	"github.com/bobmcallan/famfolio/internal/services/market"
	"github.com/bobmcallan/famfolio/internal/services/valuation"
	"github.com/bobmcallan/famfolio/internal/storage"
)

// App holds all initialized services, clients and storage.
// It is the shared core used by cmd/famfolio-server and cmd/famfolio.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Clock            *common.MarketClock
	Storage          interfaces.StorageManager
	PriceProvider    interfaces.PriceProvider
	PriceService     interfaces.PriceService
	LedgerService    interfaces.LedgerService
	CashService      interfaces.CashService
	FXService        interfaces.FXService
	ValuationService interfaces.ValuationService
	StartupTime      time.Time

	schedulerCancel   context.CancelFunc
	maintenanceCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: the given path, FAMFOLIO_CONFIG,
// famfolio.toml beside the binary, then config/famfolio.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("FAMFOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "famfolio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/famfolio.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and wires storage, the provider client and
// every service. configPath may be empty.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()
	binDir := getBinaryDir()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative paths against the binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var provider interfaces.PriceProvider
	if key := config.Clients.EODHD.APIKey; key != "" {
		provider = eodhd.NewClient(key,
			eodhd.WithBaseURL(config.Clients.EODHD.BaseURL),
			eodhd.WithLogger(logger),
			eodhd.WithRateLimit(config.Clients.EODHD.RateLimit),
			eodhd.WithTimeout(config.Clients.EODHD.GetTimeout()),
		)
	} else {
		logger.Warn().Msg("EODHD API key not configured - serving cached prices only")
		provider = offlineProvider{}
	}

	a := New(config, logger, storageManager, provider)
	a.StartupTime = startupStart

	logger.Info().Dur("startup", time.Since(startupStart)).Str("backend", storageManager.Backend()).Msg("App initialized")
	return a, nil
}

// New builds the service graph over an open store. All services share one
// market clock.
func New(config *common.Config, logger *common.Logger, store interfaces.StorageManager, provider interfaces.PriceProvider) *App {
	clock := common.NewMarketClock(config.Prices.Timezone)

	priceService := market.NewService(store, provider, config, logger)
	priceService.SetClock(clock)

	ledgerService := ledger.NewService(store, priceService, logger)
	cashService := cash.NewService(store, clock, logger)
	fxService := fx.NewService(store, priceService, config.FX, clock, logger)
	valuationService := valuation.NewService(ledgerService, priceService, cashService, fxService, logger)

	return &App{
		Config:           config,
		Logger:           logger,
		Clock:            clock,
		Storage:          store,
		PriceProvider:    provider,
		PriceService:     priceService,
		LedgerService:    ledgerService,
		CashService:      cashService,
		FXService:        fxService,
		ValuationService: valuationService,
		StartupTime:      time.Now(),
	}
}

// Close releases all resources held by the App.
// Shutdown order: cancel scheduler, cancel maintenance, close storage.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.maintenanceCancel != nil {
		a.maintenanceCancel()
		a.maintenanceCancel = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}

// StartPriceScheduler launches the background price refresh goroutine.
func (a *App) StartPriceScheduler() {
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	go startPriceScheduler(ctx, a.PriceService, a.Logger, a.Config.Prices.GetRefreshInterval())
}

// StartDailyMaintenance launches the hourly maintenance goroutine. Attempt
// pruning and the usage reset happen once per market day.
func (a *App) StartDailyMaintenance() {
	ctx, cancel := context.WithCancel(context.Background())
	a.maintenanceCancel = cancel
	go startDailyMaintenance(ctx, a.PriceService, a.CashService, a.Storage, a.Logger, time.Hour)
}

// ResolveDate parses an optional YYYY-MM-DD; empty means today's market date.
func (a *App) ResolveDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return a.Clock.Today(), nil
	}
	d, err := common.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

// offlineProvider stands in for the provider when no API key is configured.
// Every call is a permanent not_found, so lookups fall back to the cache.
type offlineProvider struct{}

func (offlineProvider) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyPrice, error) {
	return nil, common.NewProviderError(common.ProviderNotFound, symbol, 0, errors.New("price provider not configured"))
}

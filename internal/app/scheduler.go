package app

import (
	"context"
	"time"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
)

// startPriceScheduler refreshes stale symbols on a fixed interval. Each tick
// takes at most one batch, sized for market or off hours.
func startPriceScheduler(ctx context.Context, prices interfaces.PriceService, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Price scheduler: stopped")
			return
		case <-ticker.C:
			refreshPrices(ctx, prices, logger)
		}
	}
}

func refreshPrices(ctx context.Context, prices interfaces.PriceService, logger *common.Logger) {
	start := time.Now()

	stale, err := prices.StocksNeedingUpdate(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Price refresh: failed to list stale symbols")
		return
	}
	if len(stale) == 0 {
		return
	}

	batch := prices.RefreshBatchSize()
	if batch > len(stale) {
		batch = len(stale)
	}
	symbols := make([]string, 0, batch)
	for _, s := range stale[:batch] {
		symbols = append(symbols, s.Symbol)
	}

	result, err := prices.TriggerPriceUpdate(ctx, symbols)
	if err != nil {
		logger.Warn().Err(err).Msg("Price refresh: update failed")
		return
	}

	usage := prices.APIUsage()
	logger.Info().
		Int("stale", len(stale)).
		Int("batch", len(symbols)).
		Int("updated", len(result.Updated)).
		Int("failed", len(result.Failed)).
		Int("skipped", len(result.SkippedRateLimited)).
		Int("remaining_budget", usage.Remaining).
		Dur("elapsed", time.Since(start)).
		Msg("Price refresh: complete")
}

// startDailyMaintenance runs maintenance at startup and then every interval.
func startDailyMaintenance(ctx context.Context, prices interfaces.PriceService, cash interfaces.CashService, storage interfaces.StorageManager, logger *common.Logger, interval time.Duration) {
	runMaintenance(ctx, prices, cash, storage, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Maintenance: stopped")
			return
		case <-ticker.C:
			runMaintenance(ctx, prices, cash, storage, logger)
		}
	}
}

// runMaintenance prunes old holiday attempts, rolls the usage counter over
// and checks every account's cash snapshot against its transaction log.
func runMaintenance(ctx context.Context, prices interfaces.PriceService, cash interfaces.CashService, storage interfaces.StorageManager, logger *common.Logger) {
	if err := prices.Maintain(ctx); err != nil {
		logger.Warn().Err(err).Msg("Maintenance: price cache maintenance failed")
	}

	accounts, err := storage.TransactionStore().ListAccounts(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Maintenance: failed to list accounts")
		return
	}
	drifted := 0
	for _, id := range accounts {
		drift, err := cash.CheckDrift(ctx, id)
		if err != nil {
			logger.Warn().Str("account", id).Err(err).Msg("Maintenance: cash drift check failed")
			continue
		}
		if !drift.InSync {
			drifted++
		}
	}
	logger.Debug().Int("accounts", len(accounts)).Int("drifted", drifted).Msg("Maintenance: complete")
}

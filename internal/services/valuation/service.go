// Package valuation computes total assets: priced holdings plus cash
package valuation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// Compile-time interface check
var _ interfaces.ValuationService = (*Service)(nil)

// Service implements ValuationService. Every total-asset figure in the
// application goes through GetAssetSnapshot.
type Service struct {
	ledger interfaces.LedgerService
	prices interfaces.PriceService
	cash   interfaces.CashService
	fx     interfaces.FXService
	logger *common.Logger
}

// NewService creates a new valuation service
func NewService(
	ledger interfaces.LedgerService,
	prices interfaces.PriceService,
	cash interfaces.CashService,
	fx interfaces.FXService,
	logger *common.Logger,
) *Service {
	return &Service{
		ledger: ledger,
		prices: prices,
		cash:   cash,
		fx:     fx,
		logger: logger,
	}
}

// GetTotalAssets returns the per-currency and combined totals.
func (s *Service) GetTotalAssets(ctx context.Context, accountID string, asOf time.Time) (*models.TotalAssets, error) {
	snap, err := s.GetAssetSnapshot(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}
	return &snap.TotalAssets, nil
}

// GetAssetSnapshot values every open holding at its as-of price, adds cash,
// and converts USD to CAD at the as-of FX rate. A holding with no price is
// carried at cost and flagged. A missing FX rate leaves CombinedCAD nil.
func (s *Service) GetAssetSnapshot(ctx context.Context, accountID string, asOf time.Time) (*models.AssetSnapshot, error) {
	asOf = common.DateOnly(asOf)

	holdings, err := s.ledger.GetHoldings(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}

	snap := &models.AssetSnapshot{
		TotalAssets: models.TotalAssets{
			AccountID: accountID,
			AsOf:      asOf,
			CADTotal:  decimal.Zero,
			USDTotal:  decimal.Zero,
		},
		Holdings: make([]models.ValuedHolding, 0, len(holdings)),
	}

	symbols := make([]string, 0, len(holdings))
	for sym := range holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	totals := models.CashBalance{CAD: decimal.Zero, USD: decimal.Zero}
	for _, sym := range symbols {
		vh, err := s.value(ctx, holdings[sym], asOf)
		if err != nil {
			return nil, err
		}
		if vh.PriceStale || vh.Unpriced {
			snap.StalePrices = append(snap.StalePrices, sym)
		}
		if totals, err = totals.Add(vh.Currency, vh.MarketValue); err != nil {
			return nil, fmt.Errorf("holding %s: %w", sym, err)
		}
		snap.Holdings = append(snap.Holdings, vh)
	}

	cash, err := s.cash.GetCashBalance(ctx, accountID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to compute cash balance: %w", err)
	}
	snap.Cash = *cash

	snap.CADTotal = models.RoundToCurrency(totals.CAD.Add(cash.CAD), models.CurrencyCAD)
	snap.USDTotal = models.RoundToCurrency(totals.USD.Add(cash.USD), models.CurrencyUSD)

	rate, err := s.fx.RateAsOf(ctx, asOf)
	if err != nil {
		s.logger.For(ctx).Warn().Str("account", accountID).Str("as_of", common.FormatDate(asOf)).Err(err).Msg("Combined total unavailable")
		snap.FXError = err.Error()
	} else {
		combined := models.RoundToCurrency(snap.CADTotal.Add(snap.USDTotal.Mul(rate.Rate)), models.CurrencyCAD)
		snap.CombinedCAD = &combined
		snap.FXRate = rate
	}

	s.logger.For(ctx).Debug().
		Str("account", accountID).
		Str("as_of", common.FormatDate(asOf)).
		Int("holdings", len(snap.Holdings)).
		Int("stale", len(snap.StalePrices)).
		Msg("Asset snapshot computed")
	return snap, nil
}

func (s *Service) value(ctx context.Context, h *models.Holding, asOf time.Time) (models.ValuedHolding, error) {
	vh := models.ValuedHolding{Holding: *h}

	q, err := s.prices.GetPrice(ctx, h.Symbol, asOf)
	if err != nil {
		if errors.Is(err, common.ErrDataIntegrity) {
			return vh, err
		}
		s.logger.For(ctx).Warn().Str("symbol", h.Symbol).Err(err).Msg("Holding valued at cost")
		vh.Unpriced = true
		vh.MarketValue = h.CostBasis
		return vh, nil
	}

	vh.Price = q.Close
	vh.PriceDate = q.PriceDate
	vh.PriceStale = q.Stale
	vh.MarketValue = h.Quantity.Mul(q.Close)
	return vh, nil
}

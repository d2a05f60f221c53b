// Package cash reconstructs per-currency cash balances
package cash

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// Compile-time interface check
var _ interfaces.CashService = (*Service)(nil)

// Service implements CashService
type Service struct {
	storage interfaces.StorageManager
	clock   *common.MarketClock
	logger  *common.Logger
}

// NewService creates a new cash service. "Today" is the market calendar
// date of clock.
func NewService(storage interfaces.StorageManager, clock *common.MarketClock, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// GetCashBalance returns the balance per currency as of a date. Today (and
// later) reads the stored snapshot, where a missing snapshot is zero. Past
// dates replay the transaction log.
func (s *Service) GetCashBalance(ctx context.Context, accountID string, asOf time.Time) (*models.CashBalance, error) {
	asOf = common.DateOnly(asOf)
	if !asOf.Before(s.clock.Today()) {
		bal, err := s.snapshot(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return &bal, nil
	}

	bal, err := s.replay(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func (s *Service) snapshot(ctx context.Context, accountID string) (models.CashBalance, error) {
	bal := models.CashBalance{CAD: decimal.Zero, USD: decimal.Zero}
	for _, cur := range []string{models.CurrencyCAD, models.CurrencyUSD} {
		snap, err := s.storage.CashSnapshotStore().GetSnapshot(ctx, accountID, cur)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return bal, fmt.Errorf("failed to read cash snapshot: %w", err)
		}
		bal, _ = bal.Add(cur, snap.Balance)
	}
	return bal, nil
}

func (s *Service) replay(ctx context.Context, accountID string, asOf time.Time) (models.CashBalance, error) {
	txs, err := s.storage.TransactionStore().ListByAccount(ctx, accountID)
	if err != nil {
		return models.CashBalance{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	return Replay(txs, asOf)
}

// SetSnapshot stores today's balance for one currency.
func (s *Service) SetSnapshot(ctx context.Context, accountID, currency string, balance decimal.Decimal) error {
	currency = strings.ToUpper(currency)
	if !models.SupportedCurrency(currency) {
		return fmt.Errorf("unsupported currency %q", currency)
	}
	if err := s.storage.CashSnapshotStore().PutSnapshot(ctx, &models.CashSnapshot{
		AccountID: accountID,
		Currency:  currency,
		Balance:   models.RoundToCurrency(balance, currency),
		UpdatedAt: time.Now(),
	}); err != nil {
		return err
	}
	s.logger.For(ctx).Info().Str("account", accountID).Str("currency", currency).Str("balance", balance.String()).Msg("Cash snapshot set")
	return nil
}

// CheckDrift compares the stored snapshot against a full replay to today.
func (s *Service) CheckDrift(ctx context.Context, accountID string) (*models.CashDrift, error) {
	snap, err := s.snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	replayed, err := s.replay(ctx, accountID, s.clock.Today())
	if err != nil {
		return nil, err
	}

	drift := models.CashBalance{
		CAD: snap.CAD.Sub(replayed.CAD),
		USD: snap.USD.Sub(replayed.USD),
	}
	result := &models.CashDrift{
		AccountID: accountID,
		Snapshot:  snap,
		Replayed:  replayed,
		Drift:     drift,
		InSync:    drift.CAD.IsZero() && drift.USD.IsZero(),
	}
	if !result.InSync {
		s.logger.For(ctx).Warn().
			Str("account", accountID).
			Str("drift_cad", drift.CAD.String()).
			Str("drift_usd", drift.USD.String()).
			Msg("Cash snapshot drifts from transaction replay")
	}
	return result, nil
}

// Package ledger provides the FIFO position ledger
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// Compile-time interface check
var _ interfaces.LedgerService = (*Service)(nil)

// Service implements LedgerService
type Service struct {
	storage interfaces.StorageManager
	prices  interfaces.PriceService
	logger  *common.Logger
}

// NewService creates a new ledger service
func NewService(storage interfaces.StorageManager, prices interfaces.PriceService, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		prices:  prices,
		logger:  logger,
	}
}

// Normalize upper-cases codes, truncates the trade date and rounds cash
// amounts to the currency's minor unit.
func Normalize(tx *models.Transaction) {
	tx.Symbol = strings.ToUpper(strings.TrimSpace(tx.Symbol))
	tx.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
	tx.Type = models.TransactionType(strings.ToUpper(string(tx.Type)))
	tx.TradeDate = common.DateOnly(tx.TradeDate)
	if !tx.Type.IsTrade() {
		tx.Amount = models.RoundToCurrency(tx.Amount, tx.Currency)
	}
}

// RecordTransaction validates and appends a transaction. A trade that would
// leave the symbol's history oversold is rejected before it is stored.
func (s *Service) RecordTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	Normalize(tx)
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}

	if tx.Type.IsTrade() {
		existing, err := s.storage.TransactionStore().ListByAccount(ctx, tx.AccountID)
		if err != nil {
			return nil, fmt.Errorf("failed to load transactions: %w", err)
		}
		candidate := *tx
		candidate.Seq = math.MaxInt64
		var history []*models.Transaction
		for _, e := range existing {
			if e.Symbol == tx.Symbol {
				history = append(history, e)
			}
		}
		history = append(history, &candidate)
		if _, err := Replay(tx.AccountID, history, farFuture); err != nil {
			return nil, err
		}
	}

	stored, err := s.storage.TransactionStore().Append(ctx, tx)
	if err != nil {
		return nil, err
	}

	s.logger.For(ctx).Info().
		Str("account", stored.AccountID).
		Str("type", string(stored.Type)).
		Str("symbol", stored.Symbol).
		Str("date", common.FormatDate(stored.TradeDate)).
		Int64("seq", stored.Seq).
		Msg("Transaction recorded")
	return stored, nil
}

var farFuture = common.Date(9999, 12, 31)

// replay rebuilds the account's book, limited to one symbol when symbol is
// set so a fault in another symbol's history does not surface.
func (s *Service) replay(ctx context.Context, accountID, symbol string, asOf time.Time) (*Book, error) {
	txs, err := s.storage.TransactionStore().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if symbol != "" {
		filtered := txs[:0:0]
		for _, tx := range txs {
			if tx.Symbol == symbol {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}
	book, err := Replay(accountID, txs, asOf)
	if err != nil {
		s.logger.For(ctx).Error().Str("account", accountID).Str("symbol", symbol).Err(err).Msg("Ledger replay failed")
		return nil, err
	}
	return book, nil
}

// GetLots returns the open FIFO lots as of a date.
func (s *Service) GetLots(ctx context.Context, accountID string, asOf time.Time) ([]models.Lot, error) {
	book, err := s.replay(ctx, accountID, "", asOf)
	if err != nil {
		return nil, err
	}
	return book.Lots(), nil
}

// GetHoldings returns open positions as of a date.
func (s *Service) GetHoldings(ctx context.Context, accountID string, asOf time.Time) (map[string]*models.Holding, error) {
	book, err := s.replay(ctx, accountID, "", asOf)
	if err != nil {
		return nil, err
	}
	return book.Holdings(), nil
}

// GetGain returns realized and unrealized gain per currency. Unrealized gain
// prices open lots through the price service; a position that cannot be
// priced contributes nothing and marks the gain PriceStale.
func (s *Service) GetGain(ctx context.Context, accountID, symbol string, asOf time.Time) (map[string]*models.Gain, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	book, err := s.replay(ctx, accountID, symbol, asOf)
	if err != nil {
		return nil, err
	}

	gains := make(map[string]*models.Gain)
	gainFor := func(currency string) *models.Gain {
		g, ok := gains[currency]
		if !ok {
			g = &models.Gain{Symbol: symbol, Currency: currency, Realized: decimal.Zero, Unrealized: decimal.Zero}
			gains[currency] = g
		}
		return g
	}

	for sym, pos := range book.Positions {
		if symbol != "" && sym != symbol {
			continue
		}
		for cur, realized := range pos.Realized {
			g := gainFor(cur)
			g.Realized = g.Realized.Add(realized)
		}

		qty := pos.Quantity()
		if qty.IsZero() {
			continue
		}
		g := gainFor(pos.Currency)
		q, err := s.prices.GetPrice(ctx, sym, asOf)
		if err != nil {
			if errors.Is(err, common.ErrDataIntegrity) {
				return nil, err
			}
			s.logger.For(ctx).Warn().Str("symbol", sym).Err(err).Msg("No price for unrealized gain")
			g.PriceStale = true
			continue
		}
		g.Unrealized = g.Unrealized.Add(qty.Mul(q.Close).Sub(pos.CostBasis()))
		if q.Stale {
			g.PriceStale = true
		}
	}
	return gains, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// TransactionStore implements interfaces.TransactionStore. The AUTOINCREMENT
// rowid doubles as the insertion sequence.
type TransactionStore struct {
	db     *sql.DB
	logger *common.Logger
}

const txColumns = "seq, id, account_id, symbol, type, quantity, price, fee, currency, trade_date, amount, note, created_at"

func (s *TransactionStore) Append(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	stored := *tx
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.TradeDate = common.DateOnly(stored.TradeDate)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, symbol, type, quantity, price, fee, currency, trade_date, amount, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.AccountID, stored.Symbol, string(stored.Type),
		stored.Quantity.String(), stored.Price.String(), stored.Fee.String(),
		strings.ToUpper(stored.Currency), common.FormatDate(stored.TradeDate),
		stored.Amount.String(), stored.Note, formatTime(stored.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction sequence: %w", err)
	}
	stored.Seq = seq

	s.logger.Debug().Str("account", stored.AccountID).Str("type", string(stored.Type)).Int64("seq", seq).Msg("Transaction appended")
	return &stored, nil
}

func (s *TransactionStore) query(ctx context.Context, where string, args ...any) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+txColumns+" FROM transactions "+where+" ORDER BY trade_date, seq", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var (
			tx                              models.Transaction
			typ, qty, price, fee, date, amt string
			created                         string
		)
		if err := rows.Scan(&tx.Seq, &tx.ID, &tx.AccountID, &tx.Symbol, &typ, &qty, &price, &fee,
			&tx.Currency, &date, &amt, &tx.Note, &created); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Type = models.TransactionType(typ)
		tx.Quantity, _ = decimal.NewFromString(qty)
		tx.Price, _ = decimal.NewFromString(price)
		tx.Fee, _ = decimal.NewFromString(fee)
		tx.Amount, _ = decimal.NewFromString(amt)
		tx.TradeDate, _ = common.ParseDate(date)
		tx.CreatedAt = parseTime(created)
		out = append(out, &tx)
	}
	return out, rows.Err()
}

func (s *TransactionStore) ListByAccount(ctx context.Context, accountID string) ([]*models.Transaction, error) {
	return s.query(ctx, "WHERE account_id = ?", accountID)
}

func (s *TransactionStore) ListTrades(ctx context.Context) ([]*models.Transaction, error) {
	return s.query(ctx, "WHERE type IN (?, ?)", string(models.TxBuy), string(models.TxSell))
}

func (s *TransactionStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT account_id FROM transactions ORDER BY account_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CashSnapshotStore implements interfaces.CashSnapshotStore.
type CashSnapshotStore struct {
	db *sql.DB
}

func (s *CashSnapshotStore) GetSnapshot(ctx context.Context, accountID, currency string) (*models.CashSnapshot, error) {
	cur := strings.ToUpper(currency)
	var balance, updated string
	err := s.db.QueryRowContext(ctx,
		"SELECT balance, updated_at FROM cash_snapshots WHERE account_id = ? AND currency = ?",
		accountID, cur).Scan(&balance, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cash snapshot: %w", err)
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("bad cash balance %q: %w", balance, err)
	}
	return &models.CashSnapshot{AccountID: accountID, Currency: cur, Balance: b, UpdatedAt: parseTime(updated)}, nil
}

func (s *CashSnapshotStore) PutSnapshot(ctx context.Context, snap *models.CashSnapshot) error {
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO cash_snapshots (account_id, currency, balance, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (account_id, currency) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		snap.AccountID, strings.ToUpper(snap.Currency), snap.Balance.String(), formatTime(updated)); err != nil {
		return fmt.Errorf("failed to save cash snapshot: %w", err)
	}
	return nil
}

// FXRateStore implements interfaces.FXRateStore.
type FXRateStore struct {
	db *sql.DB
}

func (s *FXRateStore) PutRates(ctx context.Context, rates []*models.FXRate) error {
	if len(rates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin fx upsert: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fx_rates (pair, date, rate) VALUES (?, ?, ?)
			 ON CONFLICT (pair, date) DO UPDATE SET rate = excluded.rate`,
			r.Base+r.Quote, common.FormatDate(r.Date), r.Rate.String()); err != nil {
			return fmt.Errorf("failed to upsert fx rate: %w", err)
		}
	}
	return tx.Commit()
}

func (s *FXRateStore) RateOnOrBefore(ctx context.Context, base, quote string, date time.Time) (*models.FXRate, error) {
	var d, rate string
	err := s.db.QueryRowContext(ctx,
		"SELECT date, rate FROM fx_rates WHERE pair = ? AND date <= ? ORDER BY date DESC LIMIT 1",
		base+quote, common.FormatDate(date)).Scan(&d, &rate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fx rate: %w", err)
	}
	day, _ := common.ParseDate(d)
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("bad fx rate %q: %w", rate, err)
	}
	return &models.FXRate{Base: base, Quote: quote, Date: day, Rate: r}, nil
}

var (
	_ interfaces.TransactionStore  = (*TransactionStore)(nil)
	_ interfaces.CashSnapshotStore = (*CashSnapshotStore)(nil)
	_ interfaces.FXRateStore       = (*FXRateStore)(nil)
)

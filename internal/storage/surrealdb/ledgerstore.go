package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

const txSelectFields = "tx_id, account_id, seq, symbol, type, quantity, price, fee, currency, trade_date, amount, note, created_at"

type txDoc struct {
	TxID      string    `json:"tx_id"`
	AccountID string    `json:"account_id"`
	Seq       int64     `json:"seq"`
	Symbol    string    `json:"symbol"`
	Type      string    `json:"type"`
	Quantity  string    `json:"quantity"`
	Price     string    `json:"price"`
	Fee       string    `json:"fee"`
	Currency  string    `json:"currency"`
	TradeDate string    `json:"trade_date"`
	Amount    string    `json:"amount"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

func toTxDoc(tx *models.Transaction) txDoc {
	return txDoc{
		TxID:      tx.ID,
		AccountID: tx.AccountID,
		Seq:       tx.Seq,
		Symbol:    tx.Symbol,
		Type:      string(tx.Type),
		Quantity:  tx.Quantity.String(),
		Price:     tx.Price.String(),
		Fee:       tx.Fee.String(),
		Currency:  tx.Currency,
		TradeDate: common.FormatDate(tx.TradeDate),
		Amount:    tx.Amount.String(),
		Note:      tx.Note,
		CreatedAt: tx.CreatedAt,
	}
}

func (d txDoc) toModel() *models.Transaction {
	tx := &models.Transaction{
		ID:        d.TxID,
		AccountID: d.AccountID,
		Seq:       d.Seq,
		Symbol:    d.Symbol,
		Type:      models.TransactionType(d.Type),
		Currency:  d.Currency,
		Note:      d.Note,
		CreatedAt: d.CreatedAt,
	}
	tx.Quantity, _ = decimal.NewFromString(d.Quantity)
	tx.Price, _ = decimal.NewFromString(d.Price)
	tx.Fee, _ = decimal.NewFromString(d.Fee)
	tx.Amount, _ = decimal.NewFromString(d.Amount)
	tx.TradeDate, _ = common.ParseDate(d.TradeDate)
	return tx
}

// TransactionStore implements interfaces.TransactionStore. Sequence numbers
// are allocated in-process, seeded from the highest stored seq.
type TransactionStore struct {
	db     *surrealdb.DB
	logger *common.Logger

	mu      sync.Mutex
	lastSeq int64
}

func newTransactionStore(ctx context.Context, db *surrealdb.DB, logger *common.Logger) (*TransactionStore, error) {
	type seqRow struct {
		Seq int64 `json:"seq"`
	}
	rows, err := queryRows[seqRow](ctx, db, "SELECT seq FROM "+tableTransactions+" ORDER BY seq DESC LIMIT 1", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction sequence: %w", err)
	}
	s := &TransactionStore{db: db, logger: logger}
	if len(rows) > 0 {
		s.lastSeq = rows[0].Seq
	}
	return s, nil
}

func (s *TransactionStore) Append(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *tx
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.TradeDate = common.DateOnly(stored.TradeDate)
	stored.Currency = strings.ToUpper(stored.Currency)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.Seq = s.lastSeq + 1

	rid := surrealmodels.NewRecordID(tableTransactions, stored.ID)
	if err := upsert(ctx, s.db, rid, toTxDoc(&stored)); err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}
	s.lastSeq = stored.Seq

	s.logger.Debug().Str("account", stored.AccountID).Str("type", string(stored.Type)).Int64("seq", stored.Seq).Msg("Transaction appended")
	return &stored, nil
}

func (s *TransactionStore) query(ctx context.Context, where string, vars map[string]any) ([]*models.Transaction, error) {
	sql := "SELECT " + txSelectFields + " FROM " + tableTransactions + " " + where + " ORDER BY trade_date ASC, seq ASC"
	rows, err := queryRows[txDoc](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	out := make([]*models.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *TransactionStore) ListByAccount(ctx context.Context, accountID string) ([]*models.Transaction, error) {
	return s.query(ctx, "WHERE account_id = $account", map[string]any{"account": accountID})
}

func (s *TransactionStore) ListTrades(ctx context.Context) ([]*models.Transaction, error) {
	return s.query(ctx, "WHERE type IN $types", map[string]any{
		"types": []string{string(models.TxBuy), string(models.TxSell)},
	})
}

func (s *TransactionStore) ListAccounts(ctx context.Context) ([]string, error) {
	type accountRow struct {
		AccountID string `json:"account_id"`
	}
	rows, err := queryRows[accountRow](ctx, s.db,
		"SELECT account_id FROM "+tableTransactions+" GROUP BY account_id ORDER BY account_id ASC", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.AccountID)
	}
	return out, nil
}

type cashDoc struct {
	AccountID string    `json:"account_id"`
	Currency  string    `json:"currency"`
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CashSnapshotStore implements interfaces.CashSnapshotStore.
type CashSnapshotStore struct {
	db *surrealdb.DB
}

func cashRID(accountID, currency string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(tableCash, accountID+"|"+strings.ToUpper(currency))
}

func (s *CashSnapshotStore) GetSnapshot(ctx context.Context, accountID, currency string) (*models.CashSnapshot, error) {
	rows, err := queryRows[cashDoc](ctx, s.db, "SELECT account_id, currency, balance, updated_at FROM $rid",
		map[string]any{"rid": cashRID(accountID, currency)})
	if err != nil {
		return nil, fmt.Errorf("failed to get cash snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	b, err := decimal.NewFromString(rows[0].Balance)
	if err != nil {
		return nil, fmt.Errorf("bad cash balance %q: %w", rows[0].Balance, err)
	}
	return &models.CashSnapshot{
		AccountID: rows[0].AccountID,
		Currency:  rows[0].Currency,
		Balance:   b,
		UpdatedAt: rows[0].UpdatedAt,
	}, nil
}

func (s *CashSnapshotStore) PutSnapshot(ctx context.Context, snap *models.CashSnapshot) error {
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	doc := cashDoc{
		AccountID: snap.AccountID,
		Currency:  strings.ToUpper(snap.Currency),
		Balance:   snap.Balance.String(),
		UpdatedAt: updated,
	}
	if err := upsert(ctx, s.db, cashRID(snap.AccountID, snap.Currency), doc); err != nil {
		return fmt.Errorf("failed to save cash snapshot: %w", err)
	}
	return nil
}

type fxDoc struct {
	Pair string `json:"pair"`
	Date string `json:"date"`
	Rate string `json:"rate"`
}

// FXRateStore implements interfaces.FXRateStore.
type FXRateStore struct {
	db *surrealdb.DB
}

func (s *FXRateStore) PutRates(ctx context.Context, rates []*models.FXRate) error {
	for _, r := range rates {
		pair := r.Base + r.Quote
		doc := fxDoc{Pair: pair, Date: common.FormatDate(r.Date), Rate: r.Rate.String()}
		rid := surrealmodels.NewRecordID(tableFX, pair+"|"+doc.Date)
		if err := upsert(ctx, s.db, rid, doc); err != nil {
			return fmt.Errorf("failed to save fx rate %s %s: %w", pair, doc.Date, err)
		}
	}
	return nil
}

func (s *FXRateStore) RateOnOrBefore(ctx context.Context, base, quote string, date time.Time) (*models.FXRate, error) {
	sql := "SELECT pair, date, rate FROM " + tableFX + " WHERE pair = $pair AND date <= $date ORDER BY date DESC LIMIT 1"
	rows, err := queryRows[fxDoc](ctx, s.db, sql, map[string]any{
		"pair": base + quote,
		"date": common.FormatDate(date),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query fx rate: %w", err)
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	day, _ := common.ParseDate(rows[0].Date)
	r, err := decimal.NewFromString(rows[0].Rate)
	if err != nil {
		return nil, fmt.Errorf("bad fx rate %q: %w", rows[0].Rate, err)
	}
	return &models.FXRate{Base: base, Quote: quote, Date: day, Rate: r}, nil
}

var (
	_ interfaces.TransactionStore  = (*TransactionStore)(nil)
	_ interfaces.CashSnapshotStore = (*CashSnapshotStore)(nil)
	_ interfaces.FXRateStore       = (*FXRateStore)(nil)
)

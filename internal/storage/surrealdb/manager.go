// Package surrealdb implements the famfolio stores on a SurrealDB server.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
)

// Table names.
const (
	tablePrices       = "price_cache"
	tableAttempts     = "holiday_attempt"
	tableHolidays     = "market_holiday"
	tableTransactions = "ledger_tx"
	tableCash         = "cash_snapshot"
	tableFX           = "fx_rate"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	prices       *PriceStore
	holidays     *HolidayStore
	transactions *TransactionStore
	cash         *CashSnapshotStore
	fx           *FXRateStore
}

// NewManager connects, signs in and selects the configured namespace/database.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	m, err := newManager(ctx, db, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// newManager defines tables on an already selected database.
func newManager(ctx context.Context, db *surrealdb.DB, logger *common.Logger) (*Manager, error) {
	// SurrealDB v3 errors on querying tables that were never defined.
	tables := []string{tablePrices, tableAttempts, tableHolidays, tableTransactions, tableCash, tableFX}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	txStore, err := newTransactionStore(ctx, db, logger)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:           db,
		logger:       logger,
		prices:       &PriceStore{db: db, logger: logger},
		holidays:     &HolidayStore{db: db, logger: logger},
		transactions: txStore,
		cash:         &CashSnapshotStore{db: db},
		fx:           &FXRateStore{db: db},
	}, nil
}

func (m *Manager) PriceStore() interfaces.PriceStore {
	return m.prices
}

func (m *Manager) HolidayStore() interfaces.HolidayStore {
	return m.holidays
}

func (m *Manager) TransactionStore() interfaces.TransactionStore {
	return m.transactions
}

func (m *Manager) CashSnapshotStore() interfaces.CashSnapshotStore {
	return m.cash
}

func (m *Manager) FXRateStore() interfaces.FXRateStore {
	return m.fx
}

func (m *Manager) Backend() string {
	return "surrealdb"
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// upsert writes data to rid, retrying transient failures.
func upsert(ctx context.Context, db *surrealdb.DB, rid any, data any) error {
	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{"rid": rid, "data": data}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[any](ctx, db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to upsert after retries: %w", lastErr)
}

// queryRows runs sql and returns the first statement's rows.
func queryRows[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, sql, vars)
	if err != nil {
		return nil, err
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

type countResult struct {
	Cnt int `json:"cnt"`
}

func queryCount(ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) (int, error) {
	rows, err := queryRows[countResult](ctx, db, sql, vars)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Cnt, nil
}

var _ interfaces.StorageManager = (*Manager)(nil)

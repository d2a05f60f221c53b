// Package sqlite implements the famfolio stores on a single SQLite file
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_cache (
	symbol     TEXT NOT NULL,
	date       TEXT NOT NULL,
	close      TEXT NOT NULL,
	provenance TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS holiday_attempts (
	date        TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	market      TEXT NOT NULL,
	has_data    INTEGER NOT NULL DEFAULT 0,
	recorded_at TEXT NOT NULL,
	PRIMARY KEY (date, symbol)
);
CREATE INDEX IF NOT EXISTS idx_holiday_attempts_market ON holiday_attempts (market, date);

CREATE TABLE IF NOT EXISTS market_holidays (
	date       TEXT NOT NULL,
	market     TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	source     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (market, date)
);

CREATE TABLE IF NOT EXISTS transactions (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	account_id TEXT NOT NULL,
	symbol     TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL,
	quantity   TEXT NOT NULL,
	price      TEXT NOT NULL,
	fee        TEXT NOT NULL,
	currency   TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	amount     TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_id, trade_date, seq);

CREATE TABLE IF NOT EXISTS cash_snapshots (
	account_id TEXT NOT NULL,
	currency   TEXT NOT NULL,
	balance    TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (account_id, currency)
);

CREATE TABLE IF NOT EXISTS fx_rates (
	pair TEXT NOT NULL,
	date TEXT NOT NULL,
	rate TEXT NOT NULL,
	PRIMARY KEY (pair, date)
);
`

// Manager implements interfaces.StorageManager using SQLite.
type Manager struct {
	db     *sql.DB
	logger *common.Logger

	prices       *PriceStore
	holidays     *HolidayStore
	transactions *TransactionStore
	cash         *CashSnapshotStore
	fx           *FXRateStore
}

// NewManager opens the SQLite file at path and applies the schema.
func NewManager(logger *common.Logger, path string) (*Manager, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	m := &Manager{
		db:           db,
		logger:       logger,
		prices:       &PriceStore{db: db},
		holidays:     &HolidayStore{db: db},
		transactions: &TransactionStore{db: db, logger: logger},
		cash:         &CashSnapshotStore{db: db},
		fx:           &FXRateStore{db: db},
	}

	logger.Info().Str("path", path).Msg("SQLite storage manager initialized")
	return m, nil
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
	return "sqlite"
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

var _ interfaces.StorageManager = (*Manager)(nil)

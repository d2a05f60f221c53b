package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CashSnapshot is the stored "as of today" balance for an account and currency.
type CashSnapshot struct {
	AccountID string          `json:"account_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CashBalance is an account's cash per ledger currency. Balances may be negative.
type CashBalance struct {
	CAD decimal.Decimal `json:"CAD"`
	USD decimal.Decimal `json:"USD"`
}

// Get returns the balance for a currency code.
func (b CashBalance) Get(currency string) decimal.Decimal {
	switch strings.ToUpper(currency) {
	case CurrencyCAD:
		return b.CAD
	case CurrencyUSD:
		return b.USD
	}
	return decimal.Zero
}

// Add returns a copy with delta applied to the currency.
func (b CashBalance) Add(currency string, delta decimal.Decimal) (CashBalance, error) {
	switch strings.ToUpper(currency) {
	case CurrencyCAD:
		b.CAD = b.CAD.Add(delta)
	case CurrencyUSD:
		b.USD = b.USD.Add(delta)
	default:
		return b, fmt.Errorf("unsupported currency %q", currency)
	}
	return b, nil
}

// CashDrift compares the stored snapshot with a full replay.
type CashDrift struct {
	AccountID string      `json:"account_id"`
	Snapshot  CashBalance `json:"snapshot"`
	Replayed  CashBalance `json:"replayed"`
	Drift     CashBalance `json:"drift"`
	InSync    bool        `json:"in_sync"`
}

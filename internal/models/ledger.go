package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is an open FIFO cost-basis lot.
type Lot struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	OpenDate  time.Time       `json:"open_date"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Currency  string          `json:"currency"`
}

// Holding is the aggregate open position in one symbol.
type Holding struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	Currency  string          `json:"currency"`
}

// Gain holds realized and unrealized gain in the native currency.
// When unrealized gain is computed from a cached price older than the
// requested date, PriceStale is set.
type Gain struct {
	Symbol     string          `json:"symbol,omitempty"`
	Currency   string          `json:"currency"`
	Realized   decimal.Decimal `json:"realized"`
	Unrealized decimal.Decimal `json:"unrealized"`
	PriceStale bool            `json:"price_stale,omitempty"`
}

// ValuedHolding is a holding priced as of a date.
type ValuedHolding struct {
	Holding
	Price       decimal.Decimal `json:"price"`
	PriceDate   time.Time       `json:"price_date"`
	MarketValue decimal.Decimal `json:"market_value"`
	PriceStale  bool            `json:"price_stale"`
	Unpriced    bool            `json:"unpriced,omitempty"`
}

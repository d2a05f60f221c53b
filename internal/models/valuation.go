package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FXRate is the price of one unit of Base in Quote on a date.
type FXRate struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Date  time.Time       `json:"date"`
	Rate  decimal.Decimal `json:"rate"`
}

// TotalAssets is the unified valuation for an account. CombinedCAD is nil when
// no FX rate exists on or before AsOf; the per-currency totals remain valid.
type TotalAssets struct {
	AccountID   string           `json:"account_id"`
	AsOf        time.Time        `json:"as_of"`
	CADTotal    decimal.Decimal  `json:"cad_total"`
	USDTotal    decimal.Decimal  `json:"usd_total"`
	CombinedCAD *decimal.Decimal `json:"combined_cad"`
	FXRate      *FXRate          `json:"fx_rate,omitempty"`
	FXError     string           `json:"fx_error,omitempty"`
	StalePrices []string         `json:"stale_prices,omitempty"`
}

// AssetSnapshot is TotalAssets plus the breakdown that produced it.
type AssetSnapshot struct {
	TotalAssets
	Holdings []ValuedHolding `json:"holdings"`
	Cash     CashBalance     `json:"cash"`
}

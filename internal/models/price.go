package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provenance records how a cached price was obtained.
type Provenance string

const (
	ProvenanceFetched         Provenance = "FETCHED"
	ProvenanceInferredHoliday Provenance = "INFERRED_HOLIDAY"
)

// Market identifies the exchange calendar a symbol trades on.
type Market string

const (
	MarketUS Market = "US"
	MarketCA Market = "CA"
)

var canadianSuffixes = []string{".TO", ".TSX", ".TSXV", ".V", ".CN", "-T"}

// DetectMarket maps a symbol to its market. Canadian exchange suffixes or a
// CAD trading currency select CA; everything else is US.
func DetectMarket(symbol, currency string) Market {
	s := strings.ToUpper(symbol)
	for _, suffix := range canadianSuffixes {
		if strings.HasSuffix(s, suffix) {
			return MarketCA
		}
	}
	if strings.EqualFold(currency, CurrencyCAD) {
		return MarketCA
	}
	return MarketUS
}

// PriceEntry is one cached close for (symbol, date).
type PriceEntry struct {
	Symbol     string          `json:"symbol"`
	Date       time.Time       `json:"date"`
	Close      decimal.Decimal `json:"close"`
	Provenance Provenance      `json:"provenance"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DailyPrice is a single close returned by the provider.
type DailyPrice struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// Quote is the answer to a price lookup. Stale is set when the price comes
// from an earlier date than requested (carry-forward or budget fallback).
type Quote struct {
	Symbol     string          `json:"symbol"`
	Date       time.Time       `json:"date"`
	PriceDate  time.Time       `json:"price_date"`
	Close      decimal.Decimal `json:"close"`
	Provenance Provenance      `json:"provenance"`
	Stale      bool            `json:"stale"`
	Reason     string          `json:"reason,omitempty"`
}

// CacheStats summarizes the cached history for a symbol.
type CacheStats struct {
	Symbol      string    `json:"symbol"`
	Records     int       `json:"records"`
	Earliest    time.Time `json:"earliest"`
	Latest      time.Time `json:"latest"`
	LastUpdated time.Time `json:"last_updated"`
}

// TrackedSymbol is a symbol the coordinator keeps fresh, with the first date
// it was traded by any account. Prices before FirstTradeDate are never fetched.
type TrackedSymbol struct {
	Symbol         string    `json:"symbol"`
	Currency       string    `json:"currency"`
	Market         Market    `json:"market"`
	FirstTradeDate time.Time `json:"first_trade_date"`
}

package models

import "time"

// APIUsage reports the daily provider budget.
type APIUsage struct {
	UsedToday int       `json:"used_today"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Day       time.Time `json:"day"`
}

// PriceUpdateResult summarizes a refresh run. Fresh lists symbols whose
// cache was already within the freshness window, so no call was made.
type PriceUpdateResult struct {
	Updated            []string          `json:"updated"`
	Failed             map[string]string `json:"failed"`
	SkippedRateLimited []string          `json:"skipped_rate_limited"`
	Fresh              []string          `json:"fresh"`
}

// NewPriceUpdateResult returns an empty result with non-nil collections.
func NewPriceUpdateResult() *PriceUpdateResult {
	return &PriceUpdateResult{
		Updated:            []string{},
		Failed:             map[string]string{},
		SkippedRateLimited: []string{},
		Fresh:              []string{},
	}
}

// Staleness reasons reported by StocksNeedingUpdate.
const (
	StaleNoData   = "no_data"
	StaleOutdated = "outdated"
	StaleMissing  = "missing_dates"
)

// StaleSymbol is a symbol whose cached price needs refreshing.
type StaleSymbol struct {
	Symbol      string    `json:"symbol"`
	Reason      string    `json:"reason"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

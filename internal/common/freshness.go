package common

import "time"

// Freshness TTLs for cached prices
const (
	FreshnessMarketHours = 15 * time.Minute
	FreshnessOffHours    = 1 * time.Hour
)

func isFreshAt(updated time.Time, ttl time.Duration, now time.Time) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}

// MarketClock answers "is the market open" for the configured exchange timezone.
type MarketClock struct {
	loc *time.Location
	now func() time.Time
}

// NewMarketClock loads tz (e.g. "America/New_York"). When the zone database
// is unavailable it falls back to a fixed UTC-5 offset.
func NewMarketClock(tz string) *MarketClock {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &MarketClock{loc: loc, now: time.Now}
}

// WithNow replaces the time source; used by tests.
func (c *MarketClock) WithNow(now func() time.Time) *MarketClock {
	c.now = now
	return c
}

// Now returns the current time in the market timezone.
func (c *MarketClock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the current market calendar date as a UTC date.
func (c *MarketClock) Today() time.Time {
	n := c.Now()
	return Date(n.Year(), n.Month(), n.Day())
}

// IsMarketHours reports whether t falls Mon-Fri 09:30-16:00 in the market timezone.
func (c *MarketClock) IsMarketHours(t time.Time) bool {
	lt := t.In(c.loc)
	if IsWeekend(lt) {
		return false
	}
	mins := lt.Hour()*60 + lt.Minute()
	return mins >= 9*60+30 && mins < 16*60
}

// StalenessTTL picks the freshness window for the current moment.
func (c *MarketClock) StalenessTTL(marketTTL, offTTL time.Duration) time.Duration {
	if c.IsMarketHours(c.Now()) {
		return marketTTL
	}
	return offTTL
}

// IsFresh checks updated against the TTL using the clock's time source.
func (c *MarketClock) IsFresh(updated time.Time, ttl time.Duration) bool {
	return isFreshAt(updated, ttl, c.now())
}

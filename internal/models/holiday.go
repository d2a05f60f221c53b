package models

import "time"

// HolidayAttempt records that a symbol returned no data for a weekday that was
// bracketed by data on both sides. HasData flips to true if a later fetch
// returns a price for that date, which removes it from promotion counts.
type HolidayAttempt struct {
	Date       time.Time `json:"date"`
	Symbol     string    `json:"symbol"`
	Market     Market    `json:"market"`
	HasData    bool      `json:"has_data"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HolidaySource says where a MarketHoliday came from.
type HolidaySource string

const (
	HolidayInferred HolidaySource = "inferred"
	HolidayCalendar HolidaySource = "calendar"
)

// MarketHoliday marks a date with no trading on a market. Confidence is the
// number of distinct symbols whose attempts support it.
type MarketHoliday struct {
	Date       time.Time     `json:"date"`
	Market     Market        `json:"market"`
	Confidence int           `json:"confidence"`
	Source     HolidaySource `json:"source"`
	CreatedAt  time.Time     `json:"created_at"`
}

package market

import (
	"time"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
)

type calendarDay struct {
	date time.Time
	name string
}

// CalendarHoliday reports whether date is a scheduled exchange closure for
// market (NYSE for US, TSX for CA).
func CalendarHoliday(market models.Market, date time.Time) (string, bool) {
	date = common.DateOnly(date)
	var days []calendarDay
	if market == models.MarketCA {
		days = tsxHolidays(date.Year())
	} else {
		days = nyseHolidays(date.Year())
	}
	for _, d := range days {
		if d.date.Equal(date) {
			return d.name, true
		}
	}
	return "", false
}

func nyseHolidays(year int) []calendarDay {
	days := []calendarDay{
		{nthWeekday(year, time.January, time.Monday, 3), "Martin Luther King Jr. Day"},
		{nthWeekday(year, time.February, time.Monday, 3), "Presidents Day"},
		{easterSunday(year).AddDate(0, 0, -2), "Good Friday"},
		{lastWeekday(year, time.May, time.Monday), "Memorial Day"},
		{observedUS(common.Date(year, time.July, 4)), "Independence Day"},
		{nthWeekday(year, time.September, time.Monday, 1), "Labor Day"},
		{nthWeekday(year, time.November, time.Thursday, 4), "Thanksgiving Day"},
		{observedUS(common.Date(year, time.December, 25)), "Christmas Day"},
	}
	// A Saturday New Year is not observed on the prior Friday.
	if ny := common.Date(year, time.January, 1); ny.Weekday() != time.Saturday {
		days = append(days, calendarDay{observedUS(ny), "New Year's Day"})
	}
	if year >= 2022 {
		days = append(days, calendarDay{observedUS(common.Date(year, time.June, 19)), "Juneteenth"})
	}
	return days
}

func tsxHolidays(year int) []calendarDay {
	days := []calendarDay{
		{observedCA(common.Date(year, time.January, 1)), "New Year's Day"},
		{easterSunday(year).AddDate(0, 0, -2), "Good Friday"},
		{victoriaDay(year), "Victoria Day"},
		{observedCA(common.Date(year, time.July, 1)), "Canada Day"},
		{nthWeekday(year, time.August, time.Monday, 1), "Civic Holiday"},
		{nthWeekday(year, time.September, time.Monday, 1), "Labour Day"},
		{nthWeekday(year, time.October, time.Monday, 2), "Thanksgiving Day"},
	}
	if year >= 2008 {
		days = append(days, calendarDay{nthWeekday(year, time.February, time.Monday, 3), "Family Day"})
	}

	christmas := common.Date(year, time.December, 25)
	switch christmas.Weekday() {
	case time.Saturday, time.Sunday:
		mon := christmas.AddDate(0, 0, int(8-christmas.Weekday())%7)
		days = append(days,
			calendarDay{mon, "Christmas Day"},
			calendarDay{mon.AddDate(0, 0, 1), "Boxing Day"})
	case time.Friday:
		days = append(days,
			calendarDay{christmas, "Christmas Day"},
			calendarDay{christmas.AddDate(0, 0, 3), "Boxing Day"})
	default:
		days = append(days,
			calendarDay{christmas, "Christmas Day"},
			calendarDay{christmas.AddDate(0, 0, 1), "Boxing Day"})
	}
	return days
}

// observedUS moves Saturday holidays to Friday and Sunday holidays to Monday.
func observedUS(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

// observedCA moves weekend holidays to the following Monday.
func observedCA(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, 2)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	d := common.Date(year, month, 1)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := common.Date(year, month+1, 1).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// victoriaDay is the last Monday on or before May 24.
func victoriaDay(year int) time.Time {
	d := common.Date(year, time.May, 24)
	offset := (int(d.Weekday()) - int(time.Monday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// easterSunday uses the anonymous Gregorian computus.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return common.Date(year, time.Month(month), day)
}

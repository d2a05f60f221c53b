package market

import (
	"sync/atomic"
	"time"

	"github.com/bobmcallan/famfolio/internal/models"
)

// UsageCounter is the daily provider call budget. The day number and the
// call count share one word so rollover and increment happen in a single
// compare-and-swap.
type UsageCounter struct {
	limit int
	today func() time.Time
	state atomic.Uint64 // day<<32 | count
}

// NewUsageCounter returns a counter allowing limit calls per day, where the
// day is taken from today.
func NewUsageCounter(limit int, today func() time.Time) *UsageCounter {
	return &UsageCounter{limit: limit, today: today}
}

func dayNumber(t time.Time) uint32 {
	return uint32(t.Unix() / 86400)
}

func pack(day uint32, count uint32) uint64 {
	return uint64(day)<<32 | uint64(count)
}

func unpack(v uint64) (day uint32, count uint32) {
	return uint32(v >> 32), uint32(v)
}

// TryAcquire reserves one call. It returns false once the limit is reached.
func (u *UsageCounter) TryAcquire() bool {
	day := dayNumber(u.today())
	for {
		old := u.state.Load()
		oldDay, count := unpack(old)
		if oldDay != day {
			count = 0
		}
		if int(count) >= u.limit {
			return false
		}
		if u.state.CompareAndSwap(old, pack(day, count+1)) {
			return true
		}
	}
}

// Used returns the number of calls made today.
func (u *UsageCounter) Used() int {
	day, count := unpack(u.state.Load())
	if day != dayNumber(u.today()) {
		return 0
	}
	return int(count)
}

// Limit returns the daily ceiling.
func (u *UsageCounter) Limit() int {
	return u.limit
}

// Reset zeroes the count for the current day.
func (u *UsageCounter) Reset() {
	u.state.Store(pack(dayNumber(u.today()), 0))
}

// RolledOver reports whether the stored count belongs to an earlier day.
func (u *UsageCounter) RolledOver() bool {
	day, _ := unpack(u.state.Load())
	return day != dayNumber(u.today())
}

// Snapshot reports usage for the current day.
func (u *UsageCounter) Snapshot() models.APIUsage {
	used := u.Used()
	remaining := u.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return models.APIUsage{
		UsedToday: used,
		Limit:     u.limit,
		Remaining: remaining,
		Day:       u.today(),
	}
}

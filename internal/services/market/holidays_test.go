package market

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
)

var gapDay = common.Date(2024, 3, 13) // a Wednesday with no scheduled closure

func TestHolidayInference_FiveSymbolsPromote(t *testing.T) {
	provider := newSeriesProvider()
	provider.skip("*", gapDay)
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := svc.GetPrice(ctx, fmt.Sprintf("SYM%d", i), common.Date(2024, 3, 12))
		require.NoError(t, err)
	}

	h, err := store.HolidayStore().GetHoliday(ctx, models.MarketUS, gapDay)
	require.NoError(t, err)
	assert.Equal(t, 5, h.Confidence)
	assert.Equal(t, models.HolidayInferred, h.Source)

	// The holiday is now authoritative: no fetch, prior close carried forward.
	calls := provider.calls.Load()
	q, err := svc.GetPrice(ctx, "SYM1", gapDay)
	require.NoError(t, err)
	assert.Equal(t, calls, provider.calls.Load())
	assert.Equal(t, ReasonHoliday, q.Reason)
	assert.Equal(t, common.Date(2024, 3, 12), q.PriceDate)

	cached, err := store.PriceStore().GetPrice(ctx, "SYM1", gapDay)
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceInferredHoliday, cached.Provenance)
}

func TestHolidayInference_FourSymbolsDoNotPromote(t *testing.T) {
	provider := newSeriesProvider()
	provider.skip("*", gapDay)
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := svc.GetPrice(ctx, fmt.Sprintf("SYM%d", i), common.Date(2024, 3, 12))
		require.NoError(t, err)
	}

	_, err := store.HolidayStore().GetHoliday(ctx, models.MarketUS, gapDay)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	attempts, err := store.HolidayStore().ListAttempts(ctx, models.MarketUS, gapDay)
	require.NoError(t, err)
	assert.Len(t, attempts, 4)
}

func TestHolidayInference_MarketsCountSeparately(t *testing.T) {
	provider := newSeriesProvider()
	provider.skip("*", gapDay)
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	for _, sym := range []string{"A", "B", "C", "D.TO", "E.TO"} {
		_, err := svc.GetPrice(ctx, sym, common.Date(2024, 3, 12))
		require.NoError(t, err)
	}

	for _, market := range []models.Market{models.MarketUS, models.MarketCA} {
		_, err := store.HolidayStore().GetHoliday(ctx, market, gapDay)
		assert.True(t, errors.Is(err, common.ErrNotFound), string(market))
	}
}

func TestHolidayInference_RepeatedFetchDoesNotDoubleCount(t *testing.T) {
	provider := newSeriesProvider()
	provider.skip("*", gapDay)
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.fetchAndStore(ctx, svc.symbolInfo(ctx, "ONLY"), common.Date(2024, 3, 1), common.Date(2024, 3, 20))
		require.NoError(t, err)
	}

	attempts, err := store.HolidayStore().ListAttempts(ctx, models.MarketUS, gapDay)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)

	_, err = store.HolidayStore().GetHoliday(ctx, models.MarketUS, gapDay)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestHolidayInference_BoundaryHolesIgnored(t *testing.T) {
	provider := newSeriesProvider()
	start, end := common.Date(2024, 3, 4), common.Date(2024, 3, 15)
	provider.skip("EDGE", start, end)
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	_, err := svc.fetchAndStore(ctx, svc.symbolInfo(ctx, "EDGE"), start, end)
	require.NoError(t, err)

	attempts, err := store.HolidayStore().ListSymbolAttempts(ctx, "EDGE", start, end)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestHolidayInference_LaterDataCorrectsAttempt(t *testing.T) {
	provider := newSeriesProvider()
	provider.skip("*", gapDay)
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := svc.GetPrice(ctx, fmt.Sprintf("SYM%d", i), common.Date(2024, 3, 12))
		require.NoError(t, err)
	}

	// The provider now has a bar for SYM1 on the inferred holiday.
	provider.gaps = map[string]map[time.Time]bool{}
	_, err := svc.fetchAndStore(ctx, svc.symbolInfo(ctx, "SYM1"), common.Date(2024, 3, 1), common.Date(2024, 3, 20))
	require.NoError(t, err)

	attempts, err := store.HolidayStore().ListSymbolAttempts(ctx, "SYM1", gapDay, gapDay)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].HasData)

	// The real price replaces the inferred one but the holiday stands.
	entry, err := store.PriceStore().GetPrice(ctx, "SYM1", gapDay)
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceFetched, entry.Provenance)

	_, err = store.HolidayStore().GetHoliday(ctx, models.MarketUS, gapDay)
	assert.NoError(t, err)
}

func TestLookbackDays(t *testing.T) {
	tests := []struct {
		span int
		want int
	}{
		{4, 5},
		{14, 7},
		{19, 9},
		{20, 5},
		{40, 10},
		{70, 17},
		{365, 30},
	}
	for _, tt := range tests {
		if got := lookbackDays(tt.span); got != tt.want {
			t.Errorf("lookbackDays(%d) = %d, want %d", tt.span, got, tt.want)
		}
	}
}

func TestFindGaps(t *testing.T) {
	start, end := common.Date(2024, 3, 4), common.Date(2024, 3, 29)
	var have []time.Time
	for _, d := range common.Weekdays(start, end) {
		switch d {
		case common.Date(2024, 3, 4), gapDay, common.Date(2024, 3, 28), common.Date(2024, 3, 29):
			continue
		}
		have = append(have, d)
	}

	gaps := findGaps(have, start, end)

	// 4th is a leading hole; 28th and 29th trail the last bar.
	assert.Equal(t, []time.Time{gapDay}, gaps)
}

func TestFindGaps_FarNeighboursDoNotBracket(t *testing.T) {
	start, end := common.Date(2024, 1, 2), common.Date(2024, 3, 29)
	have := []time.Time{common.Date(2024, 1, 2), common.Date(2024, 3, 28)}

	assert.Empty(t, findGaps(have, start, end))
}

func TestFindGaps_CalendarClosureCounts(t *testing.T) {
	goodFriday := common.Date(2024, 3, 29)
	start, end := common.Date(2024, 3, 18), common.Date(2024, 4, 10)
	var have []time.Time
	for _, d := range common.Weekdays(start, end) {
		if !d.Equal(goodFriday) {
			have = append(have, d)
		}
	}

	assert.Equal(t, []time.Time{goodFriday}, findGaps(have, start, end))
}

func TestHolidayInference_CalendarClosurePromotes(t *testing.T) {
	goodFriday := common.Date(2024, 3, 29)
	provider := newSeriesProvider()
	provider.skip("*", goodFriday)
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ts := models.TrackedSymbol{Symbol: fmt.Sprintf("SYM%d", i), Market: models.MarketUS}
		_, err := svc.fetchAndStore(ctx, ts, common.Date(2024, 3, 18), common.Date(2024, 4, 10))
		require.NoError(t, err)
	}

	attempts, err := store.HolidayStore().ListAttempts(ctx, models.MarketUS, goodFriday)
	require.NoError(t, err)
	assert.Len(t, attempts, 5)

	h, err := store.HolidayStore().GetHoliday(ctx, models.MarketUS, goodFriday)
	require.NoError(t, err)
	assert.Equal(t, 5, h.Confidence)
	assert.Equal(t, models.HolidayInferred, h.Source)
}

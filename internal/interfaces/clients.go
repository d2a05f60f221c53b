package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/famfolio/internal/models"
)

// PriceProvider is the external daily price source. Implementations return
// closes in ascending date order, or a *common.ProviderError.
type PriceProvider interface {
	FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyPrice, error)
}

package forecasts

import (
	"context"
	"log/slog"

	"tidefly/internal/external"
	"tidefly/internal/types"
)

// Fetcher retrieves and aggregates a live forecast for one spot.
type Fetcher struct {
	provider external.ForecastProvider
	days     int
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher. It always requests the full provider horizon
// so one cached snapshot can serve every rule on the spot, whatever its
// window.
func NewFetcher(provider external.ForecastProvider, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		provider: provider,
		days:     types.MaxForecastDays,
		logger:   logger,
	}
}

// Fetch requests the marine series, then the wind series. Both are
// required, so a marine failure skips the wind request.
func (f *Fetcher) Fetch(ctx context.Context, spot *types.Spot) ([]types.ForecastDay, error) {
	req := external.ForecastRequest{
		Latitude:  spot.Latitude,
		Longitude: spot.Longitude,
		Timezone:  spot.Location().String(),
		Days:      f.days,
	}

	wave, err := f.provider.WaveHeight(ctx, req)
	if err != nil {
		return nil, err
	}
	wind, err := f.provider.WindSpeed(ctx, req)
	if err != nil {
		return nil, err
	}

	days := Aggregate(wave, wind)
	if len(days) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast, "forecast contained no usable morning hours", nil)
	}
	f.logger.DebugContext(ctx, "forecast fetched",
		"spot_id", spot.ID,
		"days", len(days),
	)
	return days, nil
}

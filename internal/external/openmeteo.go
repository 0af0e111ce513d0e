package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"tidefly/internal/types"
)

const (
	openMeteoMarineBase  = "https://marine-api.open-meteo.com"
	openMeteoWeatherBase = "https://api.open-meteo.com"
)

// OpenMeteoConfig holds the configuration for an OpenMeteoClient.
type OpenMeteoConfig struct {
	MarineBaseURL  string
	WeatherBaseURL string
	Logger         *slog.Logger
}

// OpenMeteoClient implements ForecastProvider against the public Open-Meteo
// marine and forecast APIs. Calls are never retried; the caller falls back
// to a stale snapshot instead.
type OpenMeteoClient struct {
	base       *BaseClient
	marineURL  string
	weatherURL string
	logger     *slog.Logger
}

// NewOpenMeteoClient creates an OpenMeteoClient on top of base.
func NewOpenMeteoClient(base *BaseClient, cfg OpenMeteoConfig) *OpenMeteoClient {
	marine := cfg.MarineBaseURL
	if marine == "" {
		marine = openMeteoMarineBase
	}
	weather := cfg.WeatherBaseURL
	if weather == "" {
		weather = openMeteoWeatherBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenMeteoClient{
		base:       base,
		marineURL:  strings.TrimSuffix(marine, "/"),
		weatherURL: strings.TrimSuffix(weather, "/"),
		logger:     logger,
	}
}

// openMeteoResponse is the subset of the Open-Meteo payload we read. The
// hourly object carries "time" plus one array per requested variable.
type openMeteoResponse struct {
	Hourly map[string]json.RawMessage `json:"hourly"`
	Reason string                     `json:"reason"`
}

// WaveHeight fetches hourly wave_height from the marine API.
func (c *OpenMeteoClient) WaveHeight(ctx context.Context, req ForecastRequest) (*HourlySeries, error) {
	q := baseForecastQuery(req)
	q.Set("hourly", "wave_height")
	return c.fetch(ctx, c.marineURL+"/v1/marine", q, "wave_height")
}

// WindSpeed fetches hourly wind_speed_10m in km/h from the forecast API.
func (c *OpenMeteoClient) WindSpeed(ctx context.Context, req ForecastRequest) (*HourlySeries, error) {
	q := baseForecastQuery(req)
	q.Set("hourly", "wind_speed_10m")
	q.Set("wind_speed_unit", "kmh")
	return c.fetch(ctx, c.weatherURL+"/v1/forecast", q, "wind_speed_10m")
}

func baseForecastQuery(req ForecastRequest) url.Values {
	days := req.Days
	if days < 1 {
		days = 1
	}
	if days > types.MaxForecastDays {
		days = types.MaxForecastDays
	}
	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(req.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(req.Longitude, 'f', -1, 64))
	q.Set("timezone", tz)
	q.Set("forecast_days", strconv.Itoa(days))
	q.Set("past_days", "0")
	return q
}

func (c *OpenMeteoClient) fetch(ctx context.Context, endpoint string, q url.Values, variable string) (*HourlySeries, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build open-meteo request", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast,
			fmt.Sprintf("open-meteo %s request failed", variable), err)
	}
	defer resp.Body.Close()

	var body openMeteoResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("open-meteo %s returned %d", variable, resp.StatusCode)
		if decodeErr == nil && body.Reason != "" {
			msg += ": " + body.Reason
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast, msg, nil)
	}
	if decodeErr != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast, "open-meteo response was not valid JSON", decodeErr)
	}

	series := &HourlySeries{}
	if raw, ok := body.Hourly["time"]; ok {
		if err := json.Unmarshal(raw, &series.Times); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamForecast, "open-meteo hourly.time malformed", err)
		}
	}
	if raw, ok := body.Hourly[variable]; ok {
		if err := json.Unmarshal(raw, &series.Values); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamForecast,
				fmt.Sprintf("open-meteo hourly.%s malformed", variable), err)
		}
	}
	if len(series.Times) != len(series.Values) {
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast,
			fmt.Sprintf("open-meteo returned %d times but %d %s values", len(series.Times), len(series.Values), variable), nil)
	}

	c.logger.DebugContext(ctx, "open-meteo fetched", "variable", variable, "samples", len(series.Times))
	return series, nil
}

var _ ForecastProvider = (*OpenMeteoClient)(nil)

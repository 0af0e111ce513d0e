package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tidefly/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenMeteo(t *testing.T, serverURL string) *OpenMeteoClient {
	t.Helper()
	base := newTestClient(t, NoRetryPolicy())
	return NewOpenMeteoClient(base, OpenMeteoConfig{
		MarineBaseURL:  serverURL,
		WeatherBaseURL: serverURL,
		Logger:         testLogger(),
	})
}

func TestOpenMeteoWaveHeight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/marine", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "wave_height", q.Get("hourly"))
		assert.Equal(t, "-8.8", q.Get("latitude"))
		assert.Equal(t, "115.1", q.Get("longitude"))
		assert.Equal(t, "Asia/Makassar", q.Get("timezone"))
		assert.Equal(t, "16", q.Get("forecast_days"))
		assert.Equal(t, "0", q.Get("past_days"))
		w.Write([]byte(`{"hourly":{"time":["2026-05-01T06:00","2026-05-01T07:00"],"wave_height":[1.5,null]}}`))
	}))
	defer server.Close()

	c := newTestOpenMeteo(t, server.URL)
	series, err := c.WaveHeight(context.Background(), ForecastRequest{
		Latitude: -8.8, Longitude: 115.1, Timezone: "Asia/Makassar", Days: 40,
	})
	require.NoError(t, err)
	require.Len(t, series.Values, 2)
	assert.Equal(t, 1.5, *series.Values[0])
	assert.Nil(t, series.Values[1])
}

func TestOpenMeteoWindSpeedUsesKmh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "wind_speed_10m", r.URL.Query().Get("hourly"))
		assert.Equal(t, "kmh", r.URL.Query().Get("wind_speed_unit"))
		assert.Equal(t, "UTC", r.URL.Query().Get("timezone"))
		w.Write([]byte(`{"hourly":{"time":["2026-05-01T06:00"],"wind_speed_10m":[12.0]}}`))
	}))
	defer server.Close()

	series, err := newTestOpenMeteo(t, server.URL).WindSpeed(context.Background(), ForecastRequest{Days: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-05-01T06:00"}, series.Times)
}

func TestOpenMeteoErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "bad request", status: 400, body: `{"error":true,"reason":"Latitude must be in range"}`, wantMsg: "Latitude must be in range"},
		{name: "server error", status: 503, body: ``, wantMsg: "returned 503"},
		{name: "invalid json", status: 200, body: `not json`, wantMsg: "not valid JSON"},
		{name: "length mismatch", status: 200, body: `{"hourly":{"time":["a","b"],"wave_height":[1]}}`, wantMsg: "2 times but 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestOpenMeteo(t, server.URL).WaveHeight(context.Background(), ForecastRequest{Days: 1})
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrCodeUpstreamForecast))
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, int32(1), calls.Load(), "forecast calls are never retried")
		})
	}
}

func TestOpenMeteoTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestOpenMeteo(t, server.URL).WaveHeight(ctx, ForecastRequest{Days: 1})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamForecast))
}

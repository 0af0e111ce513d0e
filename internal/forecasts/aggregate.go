// Package forecasts turns hourly Open-Meteo series into per-day surf
// summaries and resolves them through the forecast cache.
package forecasts

import (
	"sort"
	"time"

	"tidefly/internal/external"
	"tidefly/internal/types"
)

// Morning window and the thresholds behind ForecastDay.MorningOK.
const (
	MorningStartHour = 6
	MorningEndHour   = 12

	morningWindLimitKmh = 50.0
)

const hourlyLayout = "2006-01-02T15:04"

type sample struct {
	wave float64
	wind float64
}

// Aggregate merges the wave and wind series by timestamp, keeps the morning
// hours and reduces each calendar day to min/max/mean statistics. Hours
// missing either value are skipped, and days with no usable morning hour are
// omitted. The result is ordered by date.
func Aggregate(wave, wind *external.HourlySeries) []types.ForecastDay {
	if wave == nil || wind == nil {
		return nil
	}

	winds := make(map[string]float64, len(wind.Times))
	for i, ts := range wind.Times {
		if i < len(wind.Values) && wind.Values[i] != nil {
			winds[ts] = *wind.Values[i]
		}
	}

	byDate := make(map[string][]sample)
	for i, ts := range wave.Times {
		if i >= len(wave.Values) || wave.Values[i] == nil {
			continue
		}
		w, ok := winds[ts]
		if !ok {
			continue
		}
		t, err := time.Parse(hourlyLayout, ts)
		if err != nil {
			continue
		}
		if h := t.Hour(); h < MorningStartHour || h > MorningEndHour {
			continue
		}
		date := t.Format("2006-01-02")
		byDate[date] = append(byDate[date], sample{wave: *wave.Values[i], wind: w})
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	days := make([]types.ForecastDay, 0, len(dates))
	for _, d := range dates {
		samples := byDate[d]
		waves := make([]float64, len(samples))
		windSpeeds := make([]float64, len(samples))
		for i, s := range samples {
			waves[i] = s.wave
			windSpeeds[i] = s.wind
		}
		day := types.ForecastDay{
			Date: d,
			Wave: reduce(waves),
			Wind: reduce(windSpeeds),
		}
		day.MorningOK = day.Wave.Avg > 0 && day.Wind.Max < morningWindLimitKmh
		days = append(days, day)
	}
	return days
}

func reduce(values []float64) types.Stats {
	if len(values) == 0 {
		return types.Stats{}
	}
	s := types.Stats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		sum += v
	}
	s.Avg = sum / float64(len(values))
	return s
}

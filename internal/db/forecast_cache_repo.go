package db

import (
	"context"
	"encoding/json"
	"time"

	"tidefly/internal/types"
)

// ForecastCacheRepository stores one aggregated row per (spot, date) in
// forecast_cache. A spot's rows always come from a single fetch.
type ForecastCacheRepository struct {
	db DBTX
}

// NewForecastCacheRepository creates a new ForecastCacheRepository.
func NewForecastCacheRepository(db DBTX) *ForecastCacheRepository {
	return &ForecastCacheRepository{db: db}
}

// Get returns the stored snapshot for a spot, or nil when none exists.
// CachedAt is the oldest cached_at across the rows.
func (r *ForecastCacheRepository) Get(ctx context.Context, spotID string) (*types.ForecastSnapshot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT date::text, wave_stats, wind_stats, morning_ok, cached_at
		 FROM forecast_cache
		 WHERE spot_id = $1
		 ORDER BY date ASC`,
		spotID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read forecast cache", err)
	}
	defer rows.Close()

	snap := &types.ForecastSnapshot{SpotID: spotID}
	for rows.Next() {
		var (
			day        types.ForecastDay
			wave, wind []byte
			cachedAt   time.Time
		)
		if err := rows.Scan(&day.Date, &wave, &wind, &day.MorningOK, &cachedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan forecast row", err)
		}
		if err := json.Unmarshal(wave, &day.Wave); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "malformed wave_stats", err)
		}
		if err := json.Unmarshal(wind, &day.Wind); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "malformed wind_stats", err)
		}
		if snap.CachedAt.IsZero() || cachedAt.Before(snap.CachedAt) {
			snap.CachedAt = cachedAt
		}
		snap.Days = append(snap.Days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating forecast rows", err)
	}
	if len(snap.Days) == 0 {
		return nil, nil
	}
	return snap, nil
}

// Put replaces the spot's snapshot in one statement: new dates are upserted
// and every date absent from the new snapshot is deleted, so readers never
// observe a mix of two fetches.
func (r *ForecastCacheRepository) Put(ctx context.Context, snap *types.ForecastSnapshot) error {
	dates := make([]string, len(snap.Days))
	waves := make([]string, len(snap.Days))
	winds := make([]string, len(snap.Days))
	morning := make([]bool, len(snap.Days))
	for i, d := range snap.Days {
		w, err := json.Marshal(d.Wave)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode wave stats", err)
		}
		wi, err := json.Marshal(d.Wind)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode wind stats", err)
		}
		dates[i] = d.Date
		waves[i] = string(w)
		winds[i] = string(wi)
		morning[i] = d.MorningOK
	}

	_, err := r.db.Exec(ctx,
		`WITH incoming AS (
			SELECT d::date AS date, w::jsonb AS wave_stats, wi::jsonb AS wind_stats, m AS morning_ok
			FROM unnest($2::text[], $3::text[], $4::text[], $5::bool[]) AS t(d, w, wi, m)
		), upserted AS (
			INSERT INTO forecast_cache (spot_id, date, wave_stats, wind_stats, morning_ok, cached_at)
			SELECT $1, date, wave_stats, wind_stats, morning_ok, $6 FROM incoming
			ON CONFLICT (spot_id, date) DO UPDATE
			SET wave_stats = EXCLUDED.wave_stats,
			    wind_stats = EXCLUDED.wind_stats,
			    morning_ok = EXCLUDED.morning_ok,
			    cached_at  = EXCLUDED.cached_at
			RETURNING date
		)
		DELETE FROM forecast_cache
		WHERE spot_id = $1 AND date NOT IN (SELECT date FROM incoming)`,
		snap.SpotID, dates, waves, winds, morning, snap.CachedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to replace forecast snapshot", err)
	}
	return nil
}

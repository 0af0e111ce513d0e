package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"tidefly/internal/types"
)

// FlightCacheRepository stores the cheapest known price per route and
// departure day in flight_cache.
type FlightCacheRepository struct {
	db DBTX
}

// NewFlightCacheRepository creates a new FlightCacheRepository.
func NewFlightCacheRepository(db DBTX) *FlightCacheRepository {
	return &FlightCacheRepository{db: db}
}

// Get returns the entry for (origin, dest, departure day) or nil.
func (r *FlightCacheRepository) Get(ctx context.Context, origin, dest, dateBucket string) (*types.FlightCacheEntry, error) {
	var (
		e              types.FlightCacheEntry
		ret, cur, link *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT origin_iata, dest_iata, date_bucket::text, return_date::text,
		        cheapest_price::float8, currency, deep_link, fetched_at
		 FROM flight_cache
		 WHERE origin_iata = $1 AND dest_iata = $2 AND date_bucket = $3::date`,
		origin, dest, dateBucket,
	).Scan(&e.OriginIATA, &e.DestIATA, &e.DateBucket, &ret, &e.CheapestPrice, &cur, &link, &e.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read flight cache", err)
	}
	e.ReturnDate = deref(ret)
	e.Currency = deref(cur)
	e.DeepLink = deref(link)
	return &e, nil
}

// Upsert writes an entry keyed on (origin, dest, date bucket).
func (r *FlightCacheRepository) Upsert(ctx context.Context, e *types.FlightCacheEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO flight_cache
		   (origin_iata, dest_iata, date_bucket, return_date, cheapest_price, currency, deep_link, fetched_at)
		 VALUES ($1, $2, $3::date, $4::date, $5, $6, $7, $8)
		 ON CONFLICT (origin_iata, dest_iata, date_bucket) DO UPDATE
		 SET return_date    = EXCLUDED.return_date,
		     cheapest_price = EXCLUDED.cheapest_price,
		     currency       = EXCLUDED.currency,
		     deep_link      = EXCLUDED.deep_link,
		     fetched_at     = EXCLUDED.fetched_at`,
		e.OriginIATA, e.DestIATA, e.DateBucket, e.ReturnDate, e.CheapestPrice, e.Currency, e.DeepLink, e.FetchedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert flight cache", err)
	}
	return nil
}

package forecasts

import (
	"context"
	"log/slog"
	"time"

	"tidefly/internal/types"
)

// SnapshotStore persists forecast snapshots. Implemented by
// db.ForecastCacheRepository.
type SnapshotStore interface {
	Get(ctx context.Context, spotID string) (*types.ForecastSnapshot, error)
	Put(ctx context.Context, snap *types.ForecastSnapshot) error
}

// LiveFetcher fetches a fresh forecast for a spot.
type LiveFetcher interface {
	Fetch(ctx context.Context, spot *types.Spot) ([]types.ForecastDay, error)
}

// Classify maps a snapshot age to its freshness.
func Classify(age, freshTTL, staleTTL time.Duration) types.Freshness {
	switch {
	case age <= freshTTL:
		return types.FreshnessFresh
	case age <= staleTTL:
		return types.FreshnessStale
	default:
		return types.FreshnessExpired
	}
}

// Cache wraps a SnapshotStore with freshness classification.
type Cache struct {
	store    SnapshotStore
	freshTTL time.Duration
	staleTTL time.Duration
	clock    types.Clock
}

// NewCache creates a Cache with the given freshness thresholds.
func NewCache(store SnapshotStore, freshTTL, staleTTL time.Duration, clock types.Clock) *Cache {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Cache{store: store, freshTTL: freshTTL, staleTTL: staleTTL, clock: clock}
}

// Get returns the stored snapshot and its freshness. An expired snapshot is
// returned with FreshnessExpired so callers can log its age, but it must not
// be used for matching.
func (c *Cache) Get(ctx context.Context, spotID string) (*types.ForecastSnapshot, types.Freshness, error) {
	snap, err := c.store.Get(ctx, spotID)
	if err != nil {
		return nil, types.FreshnessMissing, err
	}
	if snap == nil || len(snap.Days) == 0 {
		return nil, types.FreshnessMissing, nil
	}
	return snap, Classify(c.clock.Now().Sub(snap.CachedAt), c.freshTTL, c.staleTTL), nil
}

// Put replaces the spot's snapshot with days, stamped with the current time.
func (c *Cache) Put(ctx context.Context, spotID string, days []types.ForecastDay) (*types.ForecastSnapshot, error) {
	snap := &types.ForecastSnapshot{
		SpotID:   spotID,
		CachedAt: c.clock.Now(),
		Days:     days,
	}
	if err := c.store.Put(ctx, snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// Source records how a Resolution was obtained.
type Source string

const (
	SourceCache Source = "cache"
	SourceLive  Source = "live"
	SourceStale Source = "stale_cache"
	SourceNone  Source = "unavailable"
)

// Resolution is the forecast the matcher runs against. Days is nil when no
// usable forecast exists.
type Resolution struct {
	Days      []types.ForecastDay
	Source    Source
	Freshness types.Freshness
}

// Available reports whether the resolution carries usable days.
func (r *Resolution) Available() bool {
	return r != nil && len(r.Days) > 0
}

// Memo holds the forecasts already resolved during one worker run, keyed by
// spot ID. It is not safe for concurrent use.
type Memo map[string]*Resolution

// Resolver implements the lookup order used by the worker: in-run memo, a
// fresh cached snapshot, a live fetch (written back to the cache), a stale
// cached snapshot, then unavailable.
type Resolver struct {
	cache   *Cache
	fetcher LiveFetcher
	logger  *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cache *Cache, fetcher LiveFetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cache: cache, fetcher: fetcher, logger: logger}
}

// Resolve returns the forecast for spot. It never fails: cache and provider
// errors are logged and degrade the result. Every outcome, including
// unavailable, is memoized so later rules on the same spot reuse it.
func (r *Resolver) Resolve(ctx context.Context, spot *types.Spot, memo Memo) *Resolution {
	if res, ok := memo[spot.ID]; ok {
		return res
	}
	res := r.resolve(ctx, spot)
	if memo != nil {
		memo[spot.ID] = res
	}
	return res
}

func (r *Resolver) resolve(ctx context.Context, spot *types.Spot) *Resolution {
	log := r.logger.With("spot_id", spot.ID)

	cached, freshness, err := r.cache.Get(ctx, spot.ID)
	if err != nil {
		log.WarnContext(ctx, "forecast cache read failed", "error", err)
	}
	if freshness == types.FreshnessFresh {
		return &Resolution{Days: cached.Days, Source: SourceCache, Freshness: freshness}
	}

	days, fetchErr := r.fetcher.Fetch(ctx, spot)
	if fetchErr == nil {
		if _, err := r.cache.Put(ctx, spot.ID, days); err != nil {
			log.WarnContext(ctx, "forecast cache write failed", "error", err)
		}
		return &Resolution{Days: days, Source: SourceLive, Freshness: types.FreshnessFresh}
	}
	log.WarnContext(ctx, "live forecast fetch failed",
		"error", fetchErr,
		"cache_freshness", string(freshness),
	)

	if freshness == types.FreshnessStale {
		return &Resolution{Days: cached.Days, Source: SourceStale, Freshness: freshness}
	}
	return &Resolution{Source: SourceNone, Freshness: freshness}
}

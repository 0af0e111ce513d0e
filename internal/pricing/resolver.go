// Package pricing resolves the flight price for a rule's trip window, from
// the route cache, the live flight search or a fixed configured price.
package pricing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tidefly/internal/affiliate"
	"tidefly/internal/external"
	"tidefly/internal/types"
)

// FakeDeepLink is the placeholder link returned in fixed-price mode.
const FakeDeepLink = "https://aviasales.com/search/FAKE?marker=test"

// Query identifies the route and trip to price.
type Query struct {
	Origin string
	Dest   string
	Trip   types.TripWindow
}

// PriceResolver returns the price for a query. It returns (nil, nil) when
// no price could be found.
type PriceResolver interface {
	Resolve(ctx context.Context, q Query) (*types.FlightQuote, error)
}

// FlightCache is the route price store. Implemented by
// db.FlightCacheRepository.
type FlightCache interface {
	Get(ctx context.Context, origin, dest, dateBucket string) (*types.FlightCacheEntry, error)
	Upsert(ctx context.Context, e *types.FlightCacheEntry) error
}

// IsPlaceholderLink reports whether a cached link was written by a test or
// an older fallback and must not be shown to users.
func IsPlaceholderLink(link string) bool {
	link = strings.TrimSpace(link)
	return link == "" ||
		strings.HasPrefix(link, "https://example.") ||
		strings.HasPrefix(link, "https://www.google.") ||
		strings.Contains(link, "#flt=")
}

// LivePriceResolver consults the flight cache and falls back to the live
// flight search, writing the result back to the cache.
type LivePriceResolver struct {
	cache    FlightCache
	searcher external.FlightSearcher
	links    *affiliate.Builder
	currency string
	ttl      time.Duration
	clock    types.Clock
	logger   *slog.Logger
}

// LiveConfig configures a LivePriceResolver.
type LiveConfig struct {
	Currency string
	CacheTTL time.Duration
	Logger   *slog.Logger
	Clock    types.Clock
}

// NewLivePriceResolver creates a LivePriceResolver. Cached links are plain
// search links without tracking parameters; per-rule affiliate links are
// built at notification time.
func NewLivePriceResolver(cache FlightCache, searcher external.FlightSearcher, cfg LiveConfig) *LivePriceResolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &LivePriceResolver{
		cache:    cache,
		searcher: searcher,
		links:    affiliate.NewBuilder(affiliate.Config{}),
		currency: cfg.Currency,
		ttl:      cfg.CacheTTL,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// Resolve implements PriceResolver.
func (r *LivePriceResolver) Resolve(ctx context.Context, q Query) (*types.FlightQuote, error) {
	log := r.logger.With("origin", q.Origin, "dest", q.Dest, "depart", q.Trip.DepartDate)

	entry, err := r.cache.Get(ctx, q.Origin, q.Dest, q.Trip.DepartDate)
	if err != nil {
		log.WarnContext(ctx, "flight cache read failed", "error", err)
	}
	if quote := r.fromCache(entry, q); quote != nil {
		log.DebugContext(ctx, "flight cache hit", "price", quote.Price)
		return quote, nil
	}

	offer, err := r.searcher.CheapestOffer(ctx, external.OfferQuery{
		Origin:     q.Origin,
		Dest:       q.Dest,
		DepartDate: q.Trip.DepartDate,
		ReturnDate: q.Trip.ReturnDate,
		Currency:   r.currency,
	})
	if err != nil {
		return nil, err
	}
	if offer == nil {
		log.InfoContext(ctx, "no flight offers found")
		return nil, nil
	}

	currency := offer.Currency
	if currency == "" {
		currency = r.currency
	}
	quote := &types.FlightQuote{
		Origin:     q.Origin,
		Dest:       q.Dest,
		DepartDate: q.Trip.DepartDate,
		ReturnDate: q.Trip.ReturnDate,
		Price:      offer.Price,
		Currency:   currency,
		DeepLink:   r.links.FlightLink("", q.Trip, q.Origin, q.Dest),
		Source:     types.QuoteFromLive,
	}

	price := quote.Price
	if err := r.cache.Upsert(ctx, &types.FlightCacheEntry{
		OriginIATA:    q.Origin,
		DestIATA:      q.Dest,
		DateBucket:    q.Trip.DepartDate,
		ReturnDate:    q.Trip.ReturnDate,
		CheapestPrice: &price,
		Currency:      currency,
		DeepLink:      quote.DeepLink,
		FetchedAt:     r.clock.Now(),
	}); err != nil {
		log.WarnContext(ctx, "flight cache write failed", "error", err)
	}
	return quote, nil
}

// fromCache accepts an entry only when it prices the same round trip, is
// younger than the TTL and carries a real link.
func (r *LivePriceResolver) fromCache(e *types.FlightCacheEntry, q Query) *types.FlightQuote {
	if e == nil || e.CheapestPrice == nil || *e.CheapestPrice <= 0 {
		return nil
	}
	if e.ReturnDate != q.Trip.ReturnDate {
		return nil
	}
	if r.ttl > 0 && r.clock.Now().Sub(e.FetchedAt) > r.ttl {
		return nil
	}
	if IsPlaceholderLink(e.DeepLink) {
		return nil
	}
	currency := e.Currency
	if currency == "" {
		currency = r.currency
	}
	return &types.FlightQuote{
		Origin:     q.Origin,
		Dest:       q.Dest,
		DepartDate: q.Trip.DepartDate,
		ReturnDate: q.Trip.ReturnDate,
		Price:      *e.CheapestPrice,
		Currency:   currency,
		DeepLink:   e.DeepLink,
		Source:     types.QuoteFromCache,
	}
}

// FixedPriceResolver returns a configured price without any network or
// cache access.
type FixedPriceResolver struct {
	Price    float64
	Currency string
}

// Resolve implements PriceResolver.
func (r *FixedPriceResolver) Resolve(_ context.Context, q Query) (*types.FlightQuote, error) {
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	return &types.FlightQuote{
		Origin:     q.Origin,
		Dest:       q.Dest,
		DepartDate: q.Trip.DepartDate,
		ReturnDate: q.Trip.ReturnDate,
		Price:      r.Price,
		Currency:   currency,
		DeepLink:   FakeDeepLink,
		Source:     types.QuoteFixed,
	}, nil
}

package external

import (
	"context"
)

// ---------------------------------------------------------------------------
// Forecast (Open-Meteo)
// ---------------------------------------------------------------------------

// HourlySeries is one hourly variable keyed by local timestamp
// ("2006-01-02T15:04"). Missing samples are nil.
type HourlySeries struct {
	Times  []string
	Values []*float64
}

// ForecastRequest identifies a spot and horizon for the forecast provider.
type ForecastRequest struct {
	Latitude  float64
	Longitude float64
	Timezone  string
	Days      int
}

// ForecastProvider fetches the two hourly series the matcher needs.
type ForecastProvider interface {
	// WaveHeight returns hourly significant wave height in meters.
	WaveHeight(ctx context.Context, req ForecastRequest) (*HourlySeries, error)
	// WindSpeed returns hourly 10m wind speed in km/h.
	WindSpeed(ctx context.Context, req ForecastRequest) (*HourlySeries, error)
}

// ---------------------------------------------------------------------------
// Flights (Amadeus)
// ---------------------------------------------------------------------------

// TokenSource supplies a bearer token for the flight provider. Invalidate
// drops the cached token so the next Token call fetches a new one.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// OfferQuery describes a round-trip search.
type OfferQuery struct {
	Origin     string
	Dest       string
	DepartDate string // YYYY-MM-DD
	ReturnDate string // YYYY-MM-DD
	Currency   string
}

// Offer is the cheapest offer found for a query.
type Offer struct {
	Price    float64
	Currency string
}

// FlightSearcher returns the cheapest offer for a route. It returns
// (nil, nil) when the provider has no offers.
type FlightSearcher interface {
	CheapestOffer(ctx context.Context, q OfferQuery) (*Offer, error)
}

// ---------------------------------------------------------------------------
// Email (Resend, SendGrid)
// ---------------------------------------------------------------------------

// SenderIdentity is the From header of an outgoing email.
type SenderIdentity struct {
	Name    string
	Address string
}

// EmailMessage is a fully rendered email.
type EmailMessage struct {
	To          string
	From        SenderIdentity
	Subject     string
	HTML        string
	ReferenceID string
}

// EmailProvider transmits a rendered email and returns the provider's
// message ID.
type EmailProvider interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

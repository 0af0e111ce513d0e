package types

import (
	"time"
)

// AlertRule is a user's saved combination of surf thresholds, route and
// notification policy. The worker only ever mutates LastCheckedAt and
// LastNotifiedAt.
type AlertRule struct {
	ID     string `json:"id" db:"id" validate:"required"`
	UserID string `json:"user_id" db:"user_id" validate:"required"`
	Name   string `json:"name" db:"name"`
	Mode   string `json:"mode" db:"mode" validate:"omitempty,oneof=spot"`
	SpotID string `json:"spot_id" db:"spot_id"`

	OriginIATA string `json:"origin_iata" db:"origin_iata" validate:"omitempty,len=3,alpha"`
	DestIATA   string `json:"dest_iata" db:"dest_iata" validate:"omitempty,len=3,alpha"`

	// Nil thresholds are not enforced.
	WaveMinM   *float64 `json:"wave_min_m,omitempty" db:"wave_min_m" validate:"omitempty,gte=0"`
	WaveMaxM   *float64 `json:"wave_max_m,omitempty" db:"wave_max_m" validate:"omitempty,gte=0"`
	WindMaxKmh *float64 `json:"wind_max_kmh,omitempty" db:"wind_max_kmh" validate:"omitempty,gte=0"`

	ForecastWindow int        `json:"forecast_window" db:"forecast_window" validate:"gte=0,lte=16"`
	DaysMask       *int       `json:"days_mask,omitempty" db:"days_mask" validate:"omitempty,gte=0,lte=127"`
	DateFrom       *time.Time `json:"date_from,omitempty" db:"date_from"`
	DateTo         *time.Time `json:"date_to,omitempty" db:"date_to"`

	MaxPrice      *float64      `json:"max_price,omitempty" db:"max_price" validate:"omitempty,gte=0"`
	PlanningLogic PlanningLogic `json:"planning_logic" db:"planning_logic" validate:"omitempty,oneof=conservative aggressive optimistic"`
	CooldownHours *int          `json:"cooldown_hours,omitempty" db:"cooldown_hours" validate:"omitempty,gte=0"`

	IsActive       bool       `json:"is_active" db:"is_active"`
	PausedUntil    *time.Time `json:"paused_until,omitempty" db:"paused_until"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty" db:"last_notified_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// DisplayName returns the rule name or the generic label used in emails.
func (r *AlertRule) DisplayName() string {
	if r.Name == "" {
		return "Surf Alert"
	}
	return r.Name
}

// Mask returns the weekday bitmask, treating a null mask as "every day".
func (r *AlertRule) Mask() int {
	if r.DaysMask == nil {
		return AllDaysMask
	}
	return *r.DaysMask
}

// Window returns the forecast window length clamped to the provider horizon.
func (r *AlertRule) Window() int {
	switch {
	case r.ForecastWindow <= 0:
		return DefaultForecastWindow
	case r.ForecastWindow > MaxForecastDays:
		return MaxForecastDays
	default:
		return r.ForecastWindow
	}
}

// Logic returns the planning logic, defaulting to conservative.
func (r *AlertRule) Logic() PlanningLogic {
	if r.PlanningLogic == "" {
		return LogicConservative
	}
	return r.PlanningLogic
}

// Cooldown returns the cooldown as a duration, using def when the rule has
// no value of its own.
func (r *AlertRule) Cooldown(def time.Duration) time.Duration {
	if r.CooldownHours == nil {
		return def
	}
	return time.Duration(*r.CooldownHours) * time.Hour
}

// Spot is a physical surf location. Read-only for the worker.
type Spot struct {
	ID                 string  `json:"id" db:"id"`
	Name               string  `json:"name" db:"name"`
	Latitude           float64 `json:"latitude" db:"latitude"`
	Longitude          float64 `json:"longitude" db:"longitude"`
	Timezone           string  `json:"timezone" db:"timezone"`
	NearestAirportIATA string  `json:"nearest_airport_iata" db:"nearest_airport_iata"`
	City               string  `json:"city,omitempty" db:"city"`
}

// Location resolves the spot's timezone, falling back to UTC when the stored
// name is empty or unknown.
func (s *Spot) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// User owns alert rules. Plan limits are enforced outside the worker.
type User struct {
	ID          string   `json:"id" db:"id"`
	Email       string   `json:"email" db:"email"`
	HomeAirport string   `json:"home_airport,omitempty" db:"home_airport"`
	PlanTier    PlanTier `json:"plan_tier" db:"plan_tier"`
}

// Stats holds the morning min/max/mean of one hourly variable for a day.
type Stats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// ForecastDay is one aggregated calendar day for a spot.
type ForecastDay struct {
	Date      string `json:"date"` // YYYY-MM-DD, spot-local
	Wave      Stats  `json:"wave_stats"`
	Wind      Stats  `json:"wind_stats"`
	MorningOK bool   `json:"morning_ok"`
}

// ForecastSnapshot is the authoritative set of days stored for one spot.
type ForecastSnapshot struct {
	SpotID   string        `json:"spot_id"`
	CachedAt time.Time     `json:"cached_at"`
	Days     []ForecastDay `json:"days"`
}

// FlightCacheEntry is a day-granularity route price.
type FlightCacheEntry struct {
	OriginIATA    string    `db:"origin_iata"`
	DestIATA      string    `db:"dest_iata"`
	DateBucket    string    `db:"date_bucket"`
	ReturnDate    string    `db:"return_date"`
	CheapestPrice *float64  `db:"cheapest_price"`
	Currency      string    `db:"currency"`
	DeepLink      string    `db:"deep_link"`
	FetchedAt     time.Time `db:"fetched_at"`
}

// FlightQuote is a resolved price for a concrete round trip.
type FlightQuote struct {
	Origin     string      `json:"origin"`
	Dest       string      `json:"dest"`
	DepartDate string      `json:"depart_date"`
	ReturnDate string      `json:"return_date"`
	Price      float64     `json:"price"`
	Currency   string      `json:"currency"`
	DeepLink   string      `json:"deep_link,omitempty"`
	Source     QuoteSource `json:"source"`
}

// TripWindow is the booking window derived from qualifying days.
type TripWindow struct {
	DepartDate string `json:"depart_date"`
	ReturnDate string `json:"return_date"`
	Nights     int    `json:"trip_length_days"`
}

// AlertEvent is the append-only outcome log, upserted on (RuleID, SummaryHash).
type AlertEvent struct {
	ID           int64       `json:"id" db:"id"`
	RuleID       string      `json:"rule_id" db:"rule_id"`
	Status       EventStatus `json:"status" db:"status"`
	Price        *float64    `json:"price,omitempty" db:"price"`
	DeepLink     string      `json:"deep_link,omitempty" db:"deep_link"`
	HotelLink    string      `json:"hotel_link,omitempty" db:"hotel_link"`
	MatchedDates []string    `json:"ok_dates" db:"ok_dates"`
	SummaryHash  string      `json:"summary_hash" db:"summary_hash"`
	Reason       string      `json:"reason,omitempty" db:"reason"`
	EvaluatedAt  time.Time   `json:"evaluated_at" db:"evaluated_at"`
	SentAt       *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
}

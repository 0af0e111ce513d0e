package types

// PlanningLogic selects which daily statistic is compared against a rule's
// wave and wind thresholds.
type PlanningLogic string

const (
	// LogicConservative tests mean wave height and max wind speed.
	LogicConservative PlanningLogic = "conservative"
	// LogicAggressive tests min wave height and mean wind speed.
	LogicAggressive PlanningLogic = "aggressive"
	// LogicOptimistic tests mean wave height and mean wind speed.
	LogicOptimistic PlanningLogic = "optimistic"
)

// EventStatus is the terminal outcome of one rule evaluation.
// These values MUST match the CHECK constraint on alert_events.status.
type EventStatus string

const (
	EventSent                EventStatus = "sent"
	EventDeduped             EventStatus = "deduped"
	EventCooledDown          EventStatus = "cooled_down"
	EventNoSurf              EventStatus = "no_surf"
	EventTooPricey           EventStatus = "too_pricey"
	EventNoPrice             EventStatus = "no_price"
	EventForecastUnavailable EventStatus = "forecast_unavailable"
	// EventSendFailed is a deliverable alert the email provider rejected.
	// sent_at stays null so the next eligible run retries it.
	EventSendFailed EventStatus = "send_failed"
)

// AllEventStatuses lists every status in a stable order, for metrics and
// reporting.
var AllEventStatuses = []EventStatus{
	EventSent,
	EventDeduped,
	EventCooledDown,
	EventNoSurf,
	EventTooPricey,
	EventNoPrice,
	EventForecastUnavailable,
	EventSendFailed,
}

// Freshness classifies a cached forecast snapshot by age.
type Freshness string

const (
	FreshnessFresh   Freshness = "fresh"
	FreshnessStale   Freshness = "stale"
	FreshnessExpired Freshness = "expired"
	FreshnessMissing Freshness = "missing"
)

// Usable reports whether a snapshot of this freshness may feed the matcher.
func (f Freshness) Usable() bool {
	return f == FreshnessFresh || f == FreshnessStale
}

// QuoteSource records where a flight price came from.
type QuoteSource string

const (
	QuoteFromCache QuoteSource = "cache"
	QuoteFromLive  QuoteSource = "live"
	QuoteFixed     QuoteSource = "fixed"
)

// PlanTier identifies the user's subscription plan.
type PlanTier string

const (
	PlanFree      PlanTier = "free"
	PlanPro       PlanTier = "pro"
	PlanUnlimited PlanTier = "unlimited"
)

// Forecast horizon and defaults shared by the matcher and fetcher.
const (
	MaxForecastDays       = 16
	DefaultForecastWindow = 5
	AllDaysMask           = 127
	MinTripDays           = 3
)

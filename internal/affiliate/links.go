// Package affiliate builds the booking links placed in alert emails and
// returned by the rule status endpoint. Every function is pure so a link can
// be recomputed byte-for-byte from the stored event.
package affiliate

import (
	"fmt"
	"net/url"
	"strings"

	"tidefly/internal/types"
)

const (
	flightSearchBase = "https://www.aviasales.com/search/"
	hotelSearchBase  = "https://search.hotellook.com/"
	redirectorBase   = "https://tp.media/r"
)

// Config holds the partner identifiers and feature switches.
type Config struct {
	Enabled          bool
	HotelCTA         bool
	Marker           string
	HotelProgramID   string
	HotelCurrency    string
	DefaultHotelCity string
}

// Builder produces flight and hotel links for one configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a Builder.
func NewBuilder(cfg Config) *Builder {
	if cfg.HotelCurrency == "" {
		cfg.HotelCurrency = "USD"
	}
	return &Builder{cfg: cfg}
}

// SubID tags a link with the rule that produced it.
func SubID(ruleID string) string {
	return "alert_" + ruleID
}

// ddmm converts YYYY-MM-DD to DDMM. Malformed input yields "".
func ddmm(ymd string) string {
	parts := strings.Split(ymd, "-")
	if len(parts) != 3 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return ""
	}
	return parts[2] + parts[1]
}

// FlightLink returns the round-trip search link. With affiliates disabled
// or no marker configured the link carries no tracking parameters.
func (b *Builder) FlightLink(ruleID string, trip types.TripWindow, origin, dest string) string {
	path := strings.ToUpper(origin) + ddmm(trip.DepartDate) + strings.ToUpper(dest) + ddmm(trip.ReturnDate)
	link := flightSearchBase + path
	if !b.cfg.Enabled || b.cfg.Marker == "" {
		return link
	}
	q := url.Values{}
	q.Set("marker", b.cfg.Marker)
	q.Set("sub_id", SubID(ruleID))
	return link + "?" + q.Encode()
}

// HotelLink returns the hotel search link for the trip, or "" when the hotel
// call to action is switched off. The search is wrapped in the partner
// redirector only when affiliates are enabled and both the marker and the
// program id are set.
func (b *Builder) HotelLink(ruleID string, trip types.TripWindow, destination string) string {
	if !b.cfg.HotelCTA {
		return ""
	}
	if destination == "" {
		destination = b.cfg.DefaultHotelCity
	}
	if destination == "" {
		return ""
	}

	q := url.Values{}
	q.Set("destination", destination)
	q.Set("checkIn", trip.DepartDate)
	q.Set("checkOut", trip.ReturnDate)
	q.Set("adults", "1")
	q.Set("rooms", "1")
	q.Set("children", "0")
	q.Set("locale", "en")
	q.Set("currency", b.cfg.HotelCurrency)
	search := hotelSearchBase + "?" + q.Encode()

	if !b.cfg.Enabled || b.cfg.Marker == "" || b.cfg.HotelProgramID == "" {
		return search
	}
	r := url.Values{}
	r.Set("marker", b.cfg.Marker)
	r.Set("p", b.cfg.HotelProgramID)
	r.Set("u", search)
	r.Set("sub_id", SubID(ruleID))
	return fmt.Sprintf("%s?%s", redirectorBase, r.Encode())
}

// Links is the pair of links attached to a notification.
type Links struct {
	Flight string `json:"flight"`
	Hotel  string `json:"hotel,omitempty"`
}

// ForTrip builds both links for a rule's trip. The hotel destination is the
// spot's city, falling back to a known city for the destination airport and
// finally to the airport code itself.
func (b *Builder) ForTrip(ruleID string, trip types.TripWindow, origin, dest, city string) Links {
	if city == "" {
		city = CityForIATA(dest)
	}
	return Links{
		Flight: b.FlightLink(ruleID, trip, origin, dest),
		Hotel:  b.HotelLink(ruleID, trip, city),
	}
}

var iataCities = map[string]string{
	"LIS": "Lisbon",
	"OPO": "Porto",
	"FAO": "Faro",
	"FUE": "Fuerteventura",
	"ACE": "Lanzarote",
	"TFS": "Tenerife",
	"BIQ": "Biarritz",
	"DPS": "Bali",
	"LAX": "Los Angeles",
	"SFO": "San Francisco",
	"SAN": "San Diego",
	"HNL": "Honolulu",
	"OGG": "Maui",
	"NYC": "New York",
	"SJO": "San Jose",
	"LIR": "Liberia",
	"CMN": "Casablanca",
	"AGA": "Agadir",
	"CMB": "Colombo",
	"SYD": "Sydney",
	"OOL": "Gold Coast",
}

// CityForIATA returns a hotel search destination for an airport code.
// Unknown codes are returned upper-cased.
func CityForIATA(iata string) string {
	code := strings.ToUpper(strings.TrimSpace(iata))
	if city, ok := iataCities[code]; ok {
		return city
	}
	return code
}

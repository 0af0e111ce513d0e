package evaluation

import (
	"errors"
	"sort"
	"time"

	"tidefly/internal/types"
)

// ErrNoDays is returned when a trip is requested for an empty day list.
var ErrNoDays = errors.New("evaluation: no qualifying days")

// SelectTrip turns qualifying dates into one booking window. A single day
// departs that day and returns types.MinTripDays later. Several days depart
// on the earliest and return the day after the latest, so the window spans
// every good day.
func SelectTrip(dates []string) (types.TripWindow, error) {
	if len(dates) == 0 {
		return types.TripWindow{}, ErrNoDays
	}
	sorted := append([]string(nil), dates...)
	sort.Strings(sorted)

	first, err := time.Parse(dateLayout, sorted[0])
	if err != nil {
		return types.TripWindow{}, err
	}
	last, err := time.Parse(dateLayout, sorted[len(sorted)-1])
	if err != nil {
		return types.TripWindow{}, err
	}

	ret := last.AddDate(0, 0, 1)
	if first.Equal(last) {
		ret = first.AddDate(0, 0, types.MinTripDays)
	}
	return types.TripWindow{
		DepartDate: first.Format(dateLayout),
		ReturnDate: ret.Format(dateLayout),
		Nights:     int(ret.Sub(first).Hours() / 24),
	}, nil
}

// DaysOut returns the number of calendar days from today (YYYY-MM-DD) to the
// latest date in dates.
func DaysOut(today string, dates []string) int {
	t, err := time.Parse(dateLayout, today)
	if err != nil || len(dates) == 0 {
		return 0
	}
	latest := dates[0]
	for _, d := range dates[1:] {
		if d > latest {
			latest = d
		}
	}
	l, err := time.Parse(dateLayout, latest)
	if err != nil {
		return 0
	}
	return int(l.Sub(t).Hours() / 24)
}

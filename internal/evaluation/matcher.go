// Package evaluation decides which forecast days satisfy an alert rule and
// turns them into a bookable trip window.
package evaluation

import (
	"time"

	"tidefly/internal/types"
)

const dateLayout = "2006-01-02"

// MatchOptions carries the process-wide matching switches.
type MatchOptions struct {
	// RequireMorningOK additionally demands the day's morning flag.
	RequireMorningOK bool
}

// Window is the inclusive [Start, End] range of calendar dates a rule looks
// at, expressed as YYYY-MM-DD in the spot's timezone.
type Window struct {
	Start string
	End   string
}

// Empty reports whether clipping left no dates in the window.
func (w Window) Empty() bool {
	return w.End < w.Start
}

// RuleWindow returns today through today+forecast_window-1 in loc, clipped to
// the rule's optional DateFrom and DateTo.
func RuleWindow(rule *types.AlertRule, now time.Time, loc *time.Location) Window {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	w := Window{
		Start: today.Format(dateLayout),
		End:   today.AddDate(0, 0, rule.Window()-1).Format(dateLayout),
	}
	if rule.DateFrom != nil {
		if from := rule.DateFrom.Format(dateLayout); from > w.Start {
			w.Start = from
		}
	}
	if rule.DateTo != nil {
		if to := rule.DateTo.Format(dateLayout); to < w.End {
			w.End = to
		}
	}
	return w
}

// WeekdayEnabled reports whether the mask enables the date's weekday.
// Bit 0 is Monday and bit 6 is Sunday.
func WeekdayEnabled(mask int, d time.Time) bool {
	bit := (int(d.Weekday()) + 6) % 7
	return (mask>>bit)&1 == 1
}

// WaveStat picks the wave statistic the planning logic tests.
func WaveStat(logic types.PlanningLogic, s types.Stats) float64 {
	if logic == types.LogicAggressive {
		return s.Min
	}
	return s.Avg
}

// WindStat picks the wind statistic the planning logic tests.
func WindStat(logic types.PlanningLogic, s types.Stats) float64 {
	if logic == types.LogicConservative || logic == "" {
		return s.Max
	}
	return s.Avg
}

// DayQualifies applies the rule's thresholds to one day. Unset thresholds are
// not enforced.
func DayQualifies(rule *types.AlertRule, day types.ForecastDay, opts MatchOptions) bool {
	logic := rule.Logic()
	wave := WaveStat(logic, day.Wave)
	if rule.WaveMinM != nil && wave < *rule.WaveMinM {
		return false
	}
	if rule.WaveMaxM != nil && wave > *rule.WaveMaxM {
		return false
	}
	if rule.WindMaxKmh != nil && WindStat(logic, day.Wind) > *rule.WindMaxKmh {
		return false
	}
	if opts.RequireMorningOK && !day.MorningOK {
		return false
	}
	return true
}

// Match returns the dates (ascending) inside the rule's window whose weekday
// is enabled and whose statistics pass the thresholds.
func Match(rule *types.AlertRule, days []types.ForecastDay, w Window, opts MatchOptions) []string {
	if w.Empty() {
		return nil
	}
	mask := rule.Mask()
	var good []string
	for _, day := range days {
		if day.Date < w.Start || day.Date > w.End {
			continue
		}
		d, err := time.Parse(dateLayout, day.Date)
		if err != nil {
			continue
		}
		if !WeekdayEnabled(mask, d) {
			continue
		}
		if DayQualifies(rule, day, opts) {
			good = append(good, day.Date)
		}
	}
	return good
}

// Outlook labels how far ahead the last good day lies, which sets the
// reader's expectations about forecast confidence.
type Outlook string

const (
	OutlookConfident Outlook = "confident"
	OutlookTrend     Outlook = "trend"
	OutlookEarly     Outlook = "early"
	OutlookWatch     Outlook = "watch"
)

// OutlookFor returns the outlook for a good day daysOut days from today.
func OutlookFor(daysOut int) Outlook {
	switch {
	case daysOut <= 3:
		return OutlookConfident
	case daysOut <= 5:
		return OutlookTrend
	case daysOut <= 7:
		return OutlookEarly
	default:
		return OutlookWatch
	}
}

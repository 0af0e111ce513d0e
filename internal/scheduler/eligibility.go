package scheduler

import (
	"time"

	"tidefly/internal/types"
)

// Runnable reports whether a rule is active, not paused at now and not
// expired. Expiry is compared by UTC calendar date, so a rule expiring today
// still runs today.
func Runnable(r *types.AlertRule, now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.PausedUntil != nil && r.PausedUntil.After(now) {
		return false
	}
	if r.ExpiresAt != nil {
		today := now.UTC().Format("2006-01-02")
		if r.ExpiresAt.UTC().Format("2006-01-02") < today {
			return false
		}
	}
	return true
}

// CheckDue reports whether the rule's check cooldown has elapsed. A rule that
// was never checked is always due.
func CheckDue(r *types.AlertRule, now time.Time, defaultCooldown time.Duration) bool {
	if r.LastCheckedAt == nil {
		return true
	}
	return !r.LastCheckedAt.Add(r.Cooldown(defaultCooldown)).After(now)
}

// Eligible returns the rules that should be evaluated at now, preserving the
// input order (created_at ascending from the repository).
func Eligible(rules []types.AlertRule, now time.Time, defaultCooldown time.Duration) []types.AlertRule {
	out := make([]types.AlertRule, 0, len(rules))
	for i := range rules {
		r := &rules[i]
		if Runnable(r, now) && CheckDue(r, now, defaultCooldown) {
			out = append(out, *r)
		}
	}
	return out
}

// FilterSpot keeps only the rules on spotID. An empty spotID keeps all.
func FilterSpot(rules []types.AlertRule, spotID string) []types.AlertRule {
	if spotID == "" {
		return rules
	}
	out := make([]types.AlertRule, 0, len(rules))
	for _, r := range rules {
		if r.SpotID == spotID {
			out = append(out, r)
		}
	}
	return out
}

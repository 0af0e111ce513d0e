package scheduler

import (
	"testing"
	"time"

	"tidefly/internal/types"
)

var testNow = time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := testNow.Add(d)
	return &t
}

func intp(v int) *int { return &v }

func TestRunnable(t *testing.T) {
	tests := []struct {
		name string
		rule types.AlertRule
		want bool
	}{
		{"active", types.AlertRule{IsActive: true}, true},
		{"inactive", types.AlertRule{IsActive: false}, false},
		{"paused in future", types.AlertRule{IsActive: true, PausedUntil: at(time.Hour)}, false},
		{"pause elapsed", types.AlertRule{IsActive: true, PausedUntil: at(-time.Hour)}, true},
		{"pause ends now", types.AlertRule{IsActive: true, PausedUntil: at(0)}, true},
		{"expired yesterday", types.AlertRule{IsActive: true, ExpiresAt: at(-24 * time.Hour)}, false},
		{"expires earlier today", types.AlertRule{IsActive: true, ExpiresAt: at(-5 * time.Hour)}, true},
		{"expires tomorrow", types.AlertRule{IsActive: true, ExpiresAt: at(24 * time.Hour)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Runnable(&tt.rule, testNow); got != tt.want {
				t.Errorf("Runnable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckDue(t *testing.T) {
	def := 24 * time.Hour
	tests := []struct {
		name string
		rule types.AlertRule
		want bool
	}{
		{"never checked", types.AlertRule{}, true},
		{"default cooldown running", types.AlertRule{LastCheckedAt: at(-23 * time.Hour)}, false},
		{"default cooldown elapsed", types.AlertRule{LastCheckedAt: at(-24 * time.Hour)}, true},
		{"rule cooldown elapsed", types.AlertRule{LastCheckedAt: at(-2 * time.Hour), CooldownHours: intp(2)}, true},
		{"rule cooldown running", types.AlertRule{LastCheckedAt: at(-1 * time.Hour), CooldownHours: intp(2)}, false},
		{"zero cooldown", types.AlertRule{LastCheckedAt: at(0), CooldownHours: intp(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckDue(&tt.rule, testNow, def); got != tt.want {
				t.Errorf("CheckDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEligible_KeepsOrder(t *testing.T) {
	rules := []types.AlertRule{
		{ID: "a", IsActive: true},
		{ID: "b", IsActive: true, PausedUntil: at(time.Hour)},
		{ID: "c", IsActive: true, LastCheckedAt: at(-48 * time.Hour)},
		{ID: "d", IsActive: true, LastCheckedAt: at(-time.Hour)},
		{ID: "e", IsActive: true},
	}
	got := Eligible(rules, testNow, 24*time.Hour)
	want := []string{"a", "c", "e"}
	if len(got) != len(want) {
		t.Fatalf("expected %d eligible rules, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestFilterSpot(t *testing.T) {
	rules := []types.AlertRule{{ID: "a", SpotID: "s1"}, {ID: "b", SpotID: "s2"}, {ID: "c", SpotID: "s1"}}

	if got := FilterSpot(rules, ""); len(got) != 3 {
		t.Errorf("empty filter: expected 3 rules, got %d", len(got))
	}
	got := FilterSpot(rules, "s1")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("unexpected filter result: %+v", got)
	}
}

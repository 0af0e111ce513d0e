// Package scheduler runs the alert worker: it picks the eligible rules and
// evaluates them one at a time against forecasts and flight prices.
//
// This file defines the payload EventBridge sends to the worker Lambda. The
// Task field selects which job runs.
package scheduler

import "time"

// TaskType identifies which job handles a scheduled event.
type TaskType string

const (
	// TaskRunAlerts evaluates every eligible rule.
	TaskRunAlerts TaskType = "run_alerts"
	// TaskResetCooldowns clears last_checked_at so the next run re-evaluates
	// the rules immediately.
	TaskResetCooldowns TaskType = "reset_cooldowns"
)

// TaskPayload is the JSON payload of a scheduled invocation:
//
//	{
//	  "task": "run_alerts",
//	  "spot_id": "optional",
//	  "reference_time": "2026-02-06T06:00:00Z"
//	}
//
// An empty Task means TaskRunAlerts.
type TaskPayload struct {
	Task   TaskType `json:"task"`
	SpotID string   `json:"spot_id,omitempty"`
	RuleID string   `json:"rule_id,omitempty"`
	// ReferenceTime pins "now" for replays. If nil, the worker clock is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// RunOptions narrows a worker run.
type RunOptions struct {
	// SpotID restricts the run to rules on one spot.
	SpotID string
	// RuleID evaluates a single rule, loaded even if it is not in the active
	// list ordering. Pause and expiry still apply.
	RuleID string
	// IgnoreCheckCooldown skips the last_checked_at gate. Set for triggered
	// single-rule runs. The notification cooldown still applies.
	IgnoreCheckCooldown bool
	// Now overrides the worker clock for this run.
	Now *time.Time
}

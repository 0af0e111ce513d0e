// Package core holds the notification policy shared by the alert worker and
// the run metrics emitted alongside it.
package core

import (
	"context"
	"time"

	"tidefly/internal/types"
)

// PolicyDecision represents the outcome of a policy evaluation.
type PolicyDecision string

const (
	// PolicyDeliver indicates the alert should be sent now.
	PolicyDeliver PolicyDecision = "deliver"

	// PolicyDedup indicates an identical summary was already sent.
	PolicyDedup PolicyDecision = "dedup"

	// PolicyCooldown indicates the rule notified too recently.
	PolicyCooldown PolicyDecision = "cooldown"
)

// Status maps a decision onto the event status recorded for it.
func (d PolicyDecision) Status() types.EventStatus {
	switch d {
	case PolicyDedup:
		return types.EventDeduped
	case PolicyCooldown:
		return types.EventCooledDown
	default:
		return types.EventSent
	}
}

// PolicyInput is everything the policy needs to know about one candidate.
type PolicyInput struct {
	Rule        *types.AlertRule
	SummaryHash string
	// AlreadySent is true when an event with SummaryHash was dispatched.
	AlreadySent bool
	// LastSentAt is the latest dispatch recorded in the event log.
	LastSentAt *time.Time
}

// PolicyResult contains the outcome and metadata from a policy evaluation.
type PolicyResult struct {
	Decision PolicyDecision
	Reason   string
	// ResumeAt is set for PolicyCooldown.
	ResumeAt *time.Time
}

// PolicyEngine decides whether a candidate alert is sent, deduplicated or
// held back by the rule's cooldown.
type PolicyEngine interface {
	Evaluate(ctx context.Context, in PolicyInput) PolicyResult
}

// RunSummary is the per-run rollup published as metrics.
type RunSummary struct {
	RulesLoaded   int
	RulesEligible int
	Evaluated     int
	Errors        int
	EmailsSent    int
	Outcomes      map[types.EventStatus]int
	Duration      time.Duration
}

// RunMetrics publishes worker telemetry.
type RunMetrics interface {
	RecordRun(ctx context.Context, s RunSummary)
	RecordUpstreamError(ctx context.Context, provider string)
}

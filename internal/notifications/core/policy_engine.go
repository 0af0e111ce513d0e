package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tidefly/internal/types"
)

// Compile-time assertion that PolicyEngineImpl implements PolicyEngine.
var _ PolicyEngine = (*PolicyEngineImpl)(nil)

// PolicyEngineImpl is the production implementation of PolicyEngine.
type PolicyEngineImpl struct {
	clock           types.Clock
	defaultCooldown time.Duration
	logger          *slog.Logger
}

// NewPolicyEngine creates a new PolicyEngineImpl. defaultCooldown applies to
// rules without cooldown_hours.
func NewPolicyEngine(clock types.Clock, defaultCooldown time.Duration, logger *slog.Logger) *PolicyEngineImpl {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyEngineImpl{
		clock:           clock,
		defaultCooldown: defaultCooldown,
		logger:          logger,
	}
}

// Evaluate applies, in order:
//  1. Dedup: an event with the same summary hash was already sent.
//  2. Cooldown: the latest send (event log or rule.last_notified_at) is
//     younger than the rule's cooldown.
//  3. Otherwise deliver.
func (e *PolicyEngineImpl) Evaluate(ctx context.Context, in PolicyInput) PolicyResult {
	if in.AlreadySent {
		return PolicyResult{
			Decision: PolicyDedup,
			Reason:   "summary already sent",
		}
	}

	last := latest(in.LastSentAt, in.Rule.LastNotifiedAt)
	if last != nil {
		cooldown := in.Rule.Cooldown(e.defaultCooldown)
		resumeAt := last.Add(cooldown)
		if e.clock.Now().Before(resumeAt) {
			e.logger.DebugContext(ctx, "rule in cooldown",
				"rule_id", in.Rule.ID,
				"resume_at", resumeAt,
			)
			return PolicyResult{
				Decision: PolicyCooldown,
				Reason:   fmt.Sprintf("notified %s ago, cooldown %s", e.clock.Now().Sub(*last).Round(time.Minute), cooldown),
				ResumeAt: &resumeAt,
			}
		}
	}

	return PolicyResult{
		Decision: PolicyDeliver,
		Reason:   "no policy restrictions apply",
	}
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

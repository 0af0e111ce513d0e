// Package notifications turns an evaluated rule into exactly one alert event:
// it applies the price cap, deduplication and cooldown policy, sends the
// email when warranted and writes the rule's check timestamps back.
package notifications

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tidefly/internal/affiliate"
	"tidefly/internal/notifications/core"
	"tidefly/internal/notifications/email"
	"tidefly/internal/types"
)

// EventStore is the alert event log. Implemented by db.EventRepository.
type EventStore interface {
	Upsert(ctx context.Context, ev *types.AlertEvent) error
	WasSent(ctx context.Context, ruleID, summaryHash string) (bool, error)
	LastSentAt(ctx context.Context, ruleID string) (*time.Time, error)
}

// RuleWriter persists the worker's rule timestamps. Implemented by
// db.RuleRepository.
type RuleWriter interface {
	MarkChecked(ctx context.Context, id string, at time.Time) error
	MarkNotified(ctx context.Context, id string, at time.Time) error
}

// Deliverer sends a rendered email. Implemented by email.EmailChannel.
type Deliverer interface {
	Deliver(ctx context.Context, to string, rendered *email.RenderedEmail, referenceID string) (string, error)
}

// Candidate is a rule with qualifying days and a booking window. Quote is
// nil when no price could be resolved.
type Candidate struct {
	Rule     *types.AlertRule
	Spot     *types.Spot
	User     *types.User
	Origin   string
	Dest     string
	GoodDays []string
	Trip     types.TripWindow
	Quote    *types.FlightQuote
	Outlook  string
}

// SummaryHash identifies an alert by rule, trip and price so an identical
// summary is never emailed twice.
func SummaryHash(ruleID string, trip types.TripWindow, price float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%.2f", ruleID, trip.DepartDate, trip.ReturnDate, price)))
	return hex.EncodeToString(sum[:])
}

// OutcomeHash keys outcomes that have no priced trip. One row per rule,
// status and day keeps repeated runs from growing the log.
func OutcomeHash(ruleID string, status types.EventStatus, day time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", ruleID, status, day.UTC().Format("2006-01-02"))))
	return hex.EncodeToString(sum[:])
}

// PriceMatches reports whether price is within the rule's cap. A rule
// without a cap accepts any price.
func PriceMatches(rule *types.AlertRule, price float64) bool {
	return rule.MaxPrice == nil || price <= *rule.MaxPrice
}

// Notifier records outcomes and dispatches alert emails.
type Notifier struct {
	events   EventStore
	rules    RuleWriter
	policy   core.PolicyEngine
	renderer *email.Renderer
	channel  Deliverer
	links    *affiliate.Builder
	clock    types.Clock
	logger   *slog.Logger
}

// NotifierConfig holds the dependencies needed to create a Notifier.
type NotifierConfig struct {
	Events   EventStore
	Rules    RuleWriter
	Policy   core.PolicyEngine
	Renderer *email.Renderer
	Channel  Deliverer
	Links    *affiliate.Builder
	Clock    types.Clock
	Logger   *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	return &Notifier{
		events:   cfg.Events,
		rules:    cfg.Rules,
		policy:   cfg.Policy,
		renderer: cfg.Renderer,
		channel:  cfg.Channel,
		links:    cfg.Links,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// Record stores an outcome reached before any trip was priced
// (no_surf, forecast_unavailable) and marks the rule checked.
func (n *Notifier) Record(ctx context.Context, rule *types.AlertRule, status types.EventStatus, goodDays []string, reason string) (*types.AlertEvent, error) {
	now := n.clock.Now()
	ev := &types.AlertEvent{
		RuleID:       rule.ID,
		Status:       status,
		MatchedDates: goodDays,
		SummaryHash:  OutcomeHash(rule.ID, status, now),
		Reason:       reason,
		EvaluatedAt:  now,
	}
	return ev, n.finish(ctx, rule, ev, false)
}

// Notify resolves a candidate to one of no_price, too_pricey, deduped,
// cooled_down, sent or send_failed. A failed send is recorded without sent_at
// and the rule is marked checked, so a later eligible run retries it.
func (n *Notifier) Notify(ctx context.Context, c Candidate) (*types.AlertEvent, error) {
	now := n.clock.Now()
	log := n.logger.With("rule_id", c.Rule.ID)

	if c.Quote == nil {
		ev := &types.AlertEvent{
			RuleID:       c.Rule.ID,
			Status:       types.EventNoPrice,
			MatchedDates: c.GoodDays,
			SummaryHash:  OutcomeHash(c.Rule.ID, types.EventNoPrice, now),
			Reason:       fmt.Sprintf("no fare for %s-%s %s/%s", c.Origin, c.Dest, c.Trip.DepartDate, c.Trip.ReturnDate),
			EvaluatedAt:  now,
		}
		return ev, n.finish(ctx, c.Rule, ev, false)
	}

	price := c.Quote.Price
	links := n.links.ForTrip(c.Rule.ID, c.Trip, c.Origin, c.Dest, c.Spot.City)
	ev := &types.AlertEvent{
		RuleID:       c.Rule.ID,
		Price:        &price,
		DeepLink:     links.Flight,
		HotelLink:    links.Hotel,
		MatchedDates: c.GoodDays,
		SummaryHash:  SummaryHash(c.Rule.ID, c.Trip, price),
		EvaluatedAt:  now,
	}

	if !PriceMatches(c.Rule, price) {
		ev.Status = types.EventTooPricey
		ev.Reason = fmt.Sprintf("price %.2f exceeds cap %.2f", price, *c.Rule.MaxPrice)
		return ev, n.finish(ctx, c.Rule, ev, false)
	}

	sent, err := n.events.WasSent(ctx, c.Rule.ID, ev.SummaryHash)
	if err != nil {
		return nil, err
	}
	lastSent, err := n.events.LastSentAt(ctx, c.Rule.ID)
	if err != nil {
		return nil, err
	}
	decision := n.policy.Evaluate(ctx, core.PolicyInput{
		Rule:        c.Rule,
		SummaryHash: ev.SummaryHash,
		AlreadySent: sent,
		LastSentAt:  lastSent,
	})
	if decision.Decision != core.PolicyDeliver {
		ev.Status = decision.Decision.Status()
		ev.Reason = decision.Reason
		log.InfoContext(ctx, "alert held back", "status", ev.Status, "reason", decision.Reason)
		return ev, n.finish(ctx, c.Rule, ev, false)
	}

	rendered, err := n.renderer.Render(n.alertData(c, links))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render alert email", err)
	}
	msgID, err := n.channel.Deliver(ctx, c.User.Email, rendered, c.Rule.ID)
	if err != nil {
		ev.Status = types.EventSendFailed
		ev.Reason = fmt.Sprintf("email delivery failed: %v", err)
		log.WarnContext(ctx, "alert delivery failed", "error", err)
		return ev, n.finish(ctx, c.Rule, ev, false)
	}

	ev.Status = types.EventSent
	ev.SentAt = &now
	ev.Reason = "price_match"
	if c.Quote.Source == types.QuoteFixed {
		ev.Reason = "fake_mode"
	}
	log.InfoContext(ctx, "alert sent",
		"message_id", msgID,
		"price", price,
		"depart", c.Trip.DepartDate,
		"return", c.Trip.ReturnDate,
	)
	return ev, n.finish(ctx, c.Rule, ev, true)
}

// finish upserts the event, then writes back the rule timestamps.
func (n *Notifier) finish(ctx context.Context, rule *types.AlertRule, ev *types.AlertEvent, notified bool) error {
	if err := n.events.Upsert(ctx, ev); err != nil {
		return err
	}
	if notified {
		return n.rules.MarkNotified(ctx, rule.ID, ev.EvaluatedAt)
	}
	return n.rules.MarkChecked(ctx, rule.ID, ev.EvaluatedAt)
}

func (n *Notifier) alertData(c Candidate, links affiliate.Links) email.AlertData {
	return email.AlertData{
		RuleName:   c.Rule.DisplayName(),
		SpotName:   c.Spot.Name,
		Origin:     c.Origin,
		Dest:       c.Dest,
		DepartDate: c.Trip.DepartDate,
		ReturnDate: c.Trip.ReturnDate,
		TripDays:   c.Trip.Nights,
		GoodDays:   c.GoodDays,
		Price:      c.Quote.Price,
		Currency:   c.Quote.Currency,
		Outlook:    c.Outlook,
		Thresholds: DescribeThresholds(c.Rule),
		FlightLink: links.Flight,
		HotelLink:  links.Hotel,
	}
}

// DescribeThresholds summarizes a rule's surf conditions for the email,
// for example "wave 1.0-2.5 m, wind ≤ 20 km/h (conservative)".
func DescribeThresholds(rule *types.AlertRule) string {
	var parts []string
	switch {
	case rule.WaveMinM != nil && rule.WaveMaxM != nil:
		parts = append(parts, fmt.Sprintf("wave %.1f-%.1f m", *rule.WaveMinM, *rule.WaveMaxM))
	case rule.WaveMinM != nil:
		parts = append(parts, fmt.Sprintf("wave ≥ %.1f m", *rule.WaveMinM))
	case rule.WaveMaxM != nil:
		parts = append(parts, fmt.Sprintf("wave ≤ %.1f m", *rule.WaveMaxM))
	}
	if rule.WindMaxKmh != nil {
		parts = append(parts, fmt.Sprintf("wind ≤ %.0f km/h", *rule.WindMaxKmh))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ") + fmt.Sprintf(" (%s)", rule.Logic())
}

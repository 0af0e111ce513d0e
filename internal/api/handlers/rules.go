// Package handlers contains the HTTP handlers of the TideFly API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tidefly/internal/affiliate"
	"tidefly/internal/core"
	"tidefly/internal/evaluation"
	"tidefly/internal/queue"
	"tidefly/internal/scheduler"
	"tidefly/internal/types"
)

// RuleReader loads a rule. Implemented by db.RuleRepository.
type RuleReader interface {
	GetByID(ctx context.Context, id string) (*types.AlertRule, error)
}

// SpotReader loads a spot. Implemented by db.SpotRepository.
type SpotReader interface {
	GetByID(ctx context.Context, id string) (*types.Spot, error)
}

// UserReader loads a user. Implemented by db.UserRepository.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// EventReader returns a rule's most recent evaluation. Implemented by
// db.EventRepository.
type EventReader interface {
	Latest(ctx context.Context, ruleID string) (*types.AlertEvent, error)
}

// Trigger queues a single-rule evaluation. Implemented by queue.RuleTrigger.
type Trigger interface {
	TriggerRule(ctx context.Context, ruleID string, reason queue.TriggerReason) (string, error)
}

// RuleHandler serves rule status and on-demand evaluation.
type RuleHandler struct {
	rules           RuleReader
	spots           SpotReader
	users           UserReader
	events          EventReader
	trigger         Trigger
	links           *affiliate.Builder
	validator       *core.Validator
	defaultCooldown time.Duration
	logger          *slog.Logger
}

// RuleHandlerConfig holds the dependencies needed to create a RuleHandler.
type RuleHandlerConfig struct {
	Rules           RuleReader
	Spots           SpotReader
	Users           UserReader
	Events          EventReader
	Trigger         Trigger
	Links           *affiliate.Builder
	Validator       *core.Validator
	DefaultCooldown time.Duration
	Logger          *slog.Logger
}

// NewRuleHandler creates a RuleHandler.
func NewRuleHandler(cfg RuleHandlerConfig) *RuleHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RuleHandler{
		rules:           cfg.Rules,
		spots:           cfg.Spots,
		users:           cfg.Users,
		events:          cfg.Events,
		trigger:         cfg.Trigger,
		links:           cfg.Links,
		validator:       cfg.Validator,
		defaultCooldown: cfg.DefaultCooldown,
		logger:          cfg.Logger,
	}
}

// RegisterRoutes mounts the rule endpoints under /rules.
func (h *RuleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/rules/{id}", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Post("/trigger", h.HandleTrigger)
	})
}

// EventView is the public shape of an alert event.
type EventView struct {
	Status       types.EventStatus `json:"status"`
	Price        *float64          `json:"price,omitempty"`
	MatchedDates []string          `json:"ok_dates"`
	Reason       string            `json:"reason,omitempty"`
	EvaluatedAt  time.Time         `json:"evaluated_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
}

// RuleStatus is the body of GET /v1/rules/{id}/status.
type RuleStatus struct {
	RuleID         string            `json:"rule_id"`
	Name           string            `json:"name"`
	IsActive       bool              `json:"is_active"`
	Origin         string            `json:"origin_iata,omitempty"`
	Dest           string            `json:"dest_iata,omitempty"`
	LastCheckedAt  *time.Time        `json:"last_checked_at,omitempty"`
	LastNotifiedAt *time.Time        `json:"last_notified_at,omitempty"`
	NextCheckAt    *time.Time        `json:"next_check_at,omitempty"`
	LatestEvent    *EventView        `json:"latest_event,omitempty"`
	Trip           *types.TripWindow `json:"trip,omitempty"`
	Links          *affiliate.Links  `json:"links,omitempty"`
}

// HandleStatus handles GET /v1/rules/{id}/status. The booking links are
// rebuilt from the latest event's matched dates with the same builder the
// worker uses, so they equal the ones in the email.
func (h *RuleHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !core.ValidRuleID(id) {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidRule, "invalid rule id", nil))
		return
	}

	rule, err := h.rules.GetByID(ctx, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	status := RuleStatus{
		RuleID:         rule.ID,
		Name:           rule.DisplayName(),
		IsActive:       rule.IsActive,
		LastCheckedAt:  rule.LastCheckedAt,
		LastNotifiedAt: rule.LastNotifiedAt,
	}
	if rule.LastCheckedAt != nil {
		next := rule.LastCheckedAt.Add(rule.Cooldown(h.defaultCooldown))
		status.NextCheckAt = &next
	}

	ev, err := h.events.Latest(ctx, rule.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if ev != nil {
		status.LatestEvent = &EventView{
			Status:       ev.Status,
			Price:        ev.Price,
			MatchedDates: ev.MatchedDates,
			Reason:       ev.Reason,
			EvaluatedAt:  ev.EvaluatedAt,
			SentAt:       ev.SentAt,
		}
	}

	if err := h.attachTrip(ctx, rule, ev, &status); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: status})
}

// attachTrip fills the route, trip and links when the latest event carries
// a priced trip. A deleted spot or user leaves the route partly empty.
func (h *RuleHandler) attachTrip(ctx context.Context, rule *types.AlertRule, ev *types.AlertEvent, status *RuleStatus) error {
	var (
		spot *types.Spot
		user *types.User
		err  error
	)
	if rule.SpotID != "" {
		if spot, err = h.spots.GetByID(ctx, rule.SpotID); err != nil && !types.IsCode(err, types.ErrCodeNotFoundSpot) {
			return err
		}
	}
	if rule.OriginIATA == "" {
		if user, err = h.users.GetByID(ctx, rule.UserID); err != nil && !types.IsCode(err, types.ErrCodeNotFoundUser) {
			return err
		}
	}
	status.Origin, status.Dest = scheduler.Route(rule, spot, user)

	if ev == nil || ev.Price == nil || len(ev.MatchedDates) == 0 {
		return nil
	}
	trip, err := evaluation.SelectTrip(ev.MatchedDates)
	if err != nil {
		h.logger.WarnContext(ctx, "stored event has unusable dates", "rule_id", rule.ID, "error", err)
		return nil
	}
	city := ""
	if spot != nil {
		city = spot.City
	}
	links := h.links.ForTrip(rule.ID, trip, status.Origin, status.Dest, city)
	status.Trip = &trip
	status.Links = &links
	return nil
}

// TriggerRequest is the optional body of POST /v1/rules/{id}/trigger.
type TriggerRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=user_request scheduled conditions_good"`
}

// TriggerResponse acknowledges a queued evaluation.
type TriggerResponse struct {
	TriggerID     string `json:"trigger_id"`
	RuleID        string `json:"rule_id"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
	EstimatedTime string `json:"estimated_time"`
}

// HandleTrigger handles POST /v1/rules/{id}/trigger.
func (h *RuleHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !core.ValidRuleID(id) {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidRule, "invalid rule id", nil))
		return
	}

	var req TriggerRequest
	if err := core.DecodeJSON(w, r, &req, true); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	reason := queue.TriggerReason(req.Reason)
	if reason == "" {
		reason = queue.ReasonUserRequest
	}

	rule, err := h.rules.GetByID(ctx, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !rule.IsActive {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidRule, "rule is not active", nil))
		return
	}

	triggerID, err := h.trigger.TriggerRule(ctx, rule.ID, reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to queue trigger", "rule_id", rule.ID, "error", err)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: TriggerResponse{
		TriggerID:     triggerID,
		RuleID:        rule.ID,
		Reason:        string(reason),
		Status:        "queued",
		EstimatedTime: "2-5 minutes",
	}})
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tidefly/internal/core"
	"tidefly/internal/types"
)

// CooldownResetter clears rule check timestamps. Implemented by
// db.RuleRepository.
type CooldownResetter interface {
	ResetCooldowns(ctx context.Context, ruleID string) (int64, error)
}

// AdminHandler serves operator endpoints. Routes are wrapped in the admin
// key middleware by RegisterRoutes.
type AdminHandler struct {
	rules     CooldownResetter
	guard     func(http.Handler) http.Handler
	validator *core.Validator
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler. guard authenticates every route,
// normally core.Server.AdminOnly.
func NewAdminHandler(rules CooldownResetter, guard func(http.Handler) http.Handler, val *core.Validator, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{rules: rules, guard: guard, validator: val, logger: logger}
}

// RegisterRoutes mounts the admin endpoints under /admin.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.guard)
		r.Post("/reset-cooldowns", h.HandleResetCooldowns)
	})
}

// ResetCooldownsRequest optionally narrows the reset to one rule.
type ResetCooldownsRequest struct {
	RuleID string `json:"rule_id" validate:"omitempty,rule_id"`
}

// HandleResetCooldowns handles POST /v1/admin/reset-cooldowns.
func (h *AdminHandler) HandleResetCooldowns(w http.ResponseWriter, r *http.Request) {
	var req ResetCooldownsRequest
	if err := core.DecodeJSON(w, r, &req, true); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	n, err := h.rules.ResetCooldowns(r.Context(), req.RuleID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "cooldowns reset",
		"rule_id", req.RuleID,
		"rules_reset", n,
		"request_id", types.GetRequestID(r.Context()),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{"rules_reset": n}})
}

package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tidefly/internal/types"
)

// RuleRepository provides data access for the alert_rules table. The worker
// writes only last_checked_at and last_notified_at.
type RuleRepository struct {
	db DBTX
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db DBTX) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `r.id, r.user_id, r.name, r.mode, r.spot_id, r.origin_iata, r.dest_iata,
	r.wave_min_m, r.wave_max_m, r.wind_max_kmh, r.forecast_window, r.days_mask,
	r.date_from, r.date_to, r.max_price, r.planning_logic, r.cooldown_hours,
	r.is_active, r.paused_until, r.expires_at, r.last_checked_at, r.last_notified_at,
	r.created_at`

func scanRule(row pgx.Row) (*types.AlertRule, error) {
	var r types.AlertRule
	var (
		name, mode, spotID, origin, dest, logic *string
		window                                  *int
	)
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&name,
		&mode,
		&spotID,
		&origin,
		&dest,
		&r.WaveMinM,
		&r.WaveMaxM,
		&r.WindMaxKmh,
		&window,
		&r.DaysMask,
		&r.DateFrom,
		&r.DateTo,
		&r.MaxPrice,
		&logic,
		&r.CooldownHours,
		&r.IsActive,
		&r.PausedUntil,
		&r.ExpiresAt,
		&r.LastCheckedAt,
		&r.LastNotifiedAt,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Name = deref(name)
	r.Mode = deref(mode)
	r.SpotID = deref(spotID)
	r.OriginIATA = types.NormalizeIATA(deref(origin))
	r.DestIATA = types.NormalizeIATA(deref(dest))
	r.PlanningLogic = types.PlanningLogic(deref(logic))
	if window != nil {
		r.ForecastWindow = *window
	}
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListActive returns every active rule ordered by created_at ascending. The
// remaining eligibility conditions are evaluated in Go so they share one
// clock with the rest of the run.
func (r *RuleRepository) ListActive(ctx context.Context) ([]types.AlertRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+`
		 FROM alert_rules r
		 WHERE r.is_active = true
		 ORDER BY r.created_at ASC, r.id ASC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active rules", err)
	}
	defer rows.Close()

	var rules []types.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan rule", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating rules", err)
	}
	return rules, nil
}

// GetByID retrieves a single rule regardless of its active flag.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*types.AlertRule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+`
		 FROM alert_rules r
		 WHERE r.id = $1`,
		id,
	)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "rule not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve rule", err)
	}
	return rule, nil
}

// MarkChecked records that the rule was evaluated at the given time.
func (r *RuleRepository) MarkChecked(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE alert_rules SET last_checked_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last_checked_at", err)
	}
	return nil
}

// MarkNotified records a dispatched email. It also sets last_checked_at so a
// single write covers both fields.
func (r *RuleRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE alert_rules SET last_checked_at = $2, last_notified_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last_notified_at", err)
	}
	return nil
}

// ResetCooldowns clears last_checked_at so the next run re-evaluates the
// rules immediately. An empty ruleID resets every rule. It returns the number
// of rows touched.
func (r *RuleRepository) ResetCooldowns(ctx context.Context, ruleID string) (int64, error) {
	var (
		sql  = `UPDATE alert_rules SET last_checked_at = NULL WHERE last_checked_at IS NOT NULL`
		args []any
	)
	if ruleID != "" {
		sql += ` AND id = $1`
		args = append(args, ruleID)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to reset cooldowns", err)
	}
	return tag.RowsAffected(), nil
}

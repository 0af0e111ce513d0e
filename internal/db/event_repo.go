package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tidefly/internal/types"
)

// EventRepository provides data access for alert_events.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Upsert records an evaluation outcome keyed on (rule_id, summary_hash).
// A repeat evaluation overwrites the outcome fields, but sent_at keeps the
// first dispatch time once set.
func (r *EventRepository) Upsert(ctx context.Context, ev *types.AlertEvent) error {
	dates := ev.MatchedDates
	if dates == nil {
		dates = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO alert_events
		   (rule_id, status, price, deep_link, hotel_link, ok_dates, summary_hash, reason, evaluated_at, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6::text[]::date[], $7, $8, $9, $10)
		 ON CONFLICT (rule_id, summary_hash) DO UPDATE
		 SET status       = EXCLUDED.status,
		     price        = EXCLUDED.price,
		     deep_link    = EXCLUDED.deep_link,
		     hotel_link   = EXCLUDED.hotel_link,
		     ok_dates     = EXCLUDED.ok_dates,
		     reason       = EXCLUDED.reason,
		     evaluated_at = EXCLUDED.evaluated_at,
		     sent_at      = COALESCE(alert_events.sent_at, EXCLUDED.sent_at)`,
		ev.RuleID, string(ev.Status), ev.Price, nullIfEmpty(ev.DeepLink), nullIfEmpty(ev.HotelLink),
		dates, ev.SummaryHash, nullIfEmpty(ev.Reason), ev.EvaluatedAt, ev.SentAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert alert event", err)
	}
	return nil
}

// WasSent reports whether an email already went out for this summary.
func (r *EventRepository) WasSent(ctx context.Context, ruleID, summaryHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM alert_events
			WHERE rule_id = $1 AND summary_hash = $2 AND sent_at IS NOT NULL
		)`,
		ruleID, summaryHash,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check sent events", err)
	}
	return exists, nil
}

// LastSentAt returns the most recent dispatch time for the rule, or nil.
func (r *EventRepository) LastSentAt(ctx context.Context, ruleID string) (*time.Time, error) {
	var at *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT MAX(sent_at) FROM alert_events WHERE rule_id = $1`,
		ruleID,
	).Scan(&at)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read last sent event", err)
	}
	return at, nil
}

// Latest returns the most recently evaluated event for the rule, or nil.
func (r *EventRepository) Latest(ctx context.Context, ruleID string) (*types.AlertEvent, error) {
	var (
		ev                      types.AlertEvent
		status                  string
		deepLink, hotel, reason *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, rule_id, status, price::float8, deep_link, hotel_link,
		        COALESCE(ok_dates::text[], '{}'), summary_hash, reason, evaluated_at, sent_at
		 FROM alert_events
		 WHERE rule_id = $1
		 ORDER BY evaluated_at DESC, id DESC
		 LIMIT 1`,
		ruleID,
	).Scan(&ev.ID, &ev.RuleID, &status, &ev.Price, &deepLink, &hotel,
		&ev.MatchedDates, &ev.SummaryHash, &reason, &ev.EvaluatedAt, &ev.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read latest event", err)
	}
	ev.Status = types.EventStatus(status)
	ev.DeepLink = deref(deepLink)
	ev.HotelLink = deref(hotel)
	ev.Reason = deref(reason)
	return &ev, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

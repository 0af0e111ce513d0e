package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidefly/internal/affiliate"
	"tidefly/internal/evaluation"
	"tidefly/internal/external"
	"tidefly/internal/forecasts"
	"tidefly/internal/notifications"
	"tidefly/internal/notifications/core"
	"tidefly/internal/notifications/email"
	"tidefly/internal/pricing"
	"tidefly/internal/types"
)

// memRules persists the notifier's timestamp writes back into the rule list.
type memRules struct {
	*mockRuleStore
}

func (m memRules) MarkChecked(_ context.Context, id string, at time.Time) error {
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules[i].LastCheckedAt = &at
		}
	}
	return nil
}

func (m memRules) MarkNotified(_ context.Context, id string, at time.Time) error {
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules[i].LastCheckedAt = &at
			m.rules[i].LastNotifiedAt = &at
		}
	}
	return nil
}

type eventKey struct{ ruleID, hash string }

// memEvents mirrors the alert_events upsert: one row per (rule_id,
// summary_hash) and sent_at never cleared once set.
type memEvents struct {
	rows    map[eventKey]types.AlertEvent
	inserts int
}

func newMemEvents() *memEvents {
	return &memEvents{rows: make(map[eventKey]types.AlertEvent)}
}

func (m *memEvents) Upsert(_ context.Context, ev *types.AlertEvent) error {
	k := eventKey{ev.RuleID, ev.SummaryHash}
	row := *ev
	if prev, ok := m.rows[k]; ok {
		if prev.SentAt != nil {
			row.SentAt = prev.SentAt
		}
	} else {
		m.inserts++
	}
	m.rows[k] = row
	return nil
}

func (m *memEvents) WasSent(_ context.Context, ruleID, hash string) (bool, error) {
	row, ok := m.rows[eventKey{ruleID, hash}]
	return ok && row.SentAt != nil, nil
}

func (m *memEvents) LastSentAt(_ context.Context, ruleID string) (*time.Time, error) {
	var last *time.Time
	for k, row := range m.rows {
		if k.ruleID == ruleID && row.SentAt != nil && (last == nil || row.SentAt.After(*last)) {
			last = row.SentAt
		}
	}
	return last, nil
}

func (m *memEvents) only(t *testing.T) types.AlertEvent {
	t.Helper()
	require.Len(t, m.rows, 1)
	for _, row := range m.rows {
		return row
	}
	return types.AlertEvent{}
}

type countingProvider struct {
	sent []external.EmailMessage
	err  error
}

func (p *countingProvider) Send(_ context.Context, msg external.EmailMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, msg)
	return "msg_" + msg.ReferenceID, nil
}

type pipeline struct {
	rules    memRules
	events   *memEvents
	provider *countingProvider
	worker   *Worker
}

// surfRule matches the goodDays fixture: wave 0.5-3.0 m, wind up to 20 km/h
// over a 5 day window.
func surfRule(maxPrice float64) types.AlertRule {
	r := testRule("r1", "s1")
	r.WaveMinM, r.WaveMaxM = fp(0.5), fp(3.0)
	r.WindMaxKmh = fp(20)
	r.MaxPrice = fp(maxPrice)
	r.ForecastWindow = 5
	return r
}

func newPipeline(t *testing.T, rule types.AlertRule, price float64) *pipeline {
	t.Helper()
	renderer, err := email.NewRenderer()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := types.FixedClock{T: testNow}
	p := &pipeline{
		rules:    memRules{&mockRuleStore{rules: []types.AlertRule{rule}}},
		events:   newMemEvents(),
		provider: &countingProvider{},
	}
	notifier := notifications.NewNotifier(notifications.NotifierConfig{
		Events:   p.events,
		Rules:    p.rules,
		Policy:   core.NewPolicyEngine(clock, 24*time.Hour, logger),
		Renderer: renderer,
		Channel:  email.NewEmailChannel(email.EmailChannelConfig{Provider: p.provider, Logger: logger}),
		Links: affiliate.NewBuilder(affiliate.Config{
			Enabled: true, HotelCTA: true, Marker: "m1", HotelProgramID: "4115",
		}),
		Clock:  clock,
		Logger: logger,
	})
	p.worker = NewWorker(WorkerConfig{
		Rules: p.rules,
		Spots: mockSpotStore{
			"s1": {ID: "s1", Name: "Hossegor", City: "Hossegor", Timezone: "UTC", NearestAirportIATA: "BIQ"},
		},
		Users: mockUserStore{"u1": {ID: "u1", Email: "surfer@example.com", HomeAirport: "OPO"}},
		Forecasts: &mockForecasts{bySpot: map[string]*forecasts.Resolution{
			"s1": {Days: goodDays("2026-03-15", "2026-03-16"), Source: forecasts.SourceCache, Freshness: types.FreshnessFresh},
		}},
		Prices:          &pricing.FixedPriceResolver{Price: price},
		Notifier:        notifier,
		Metrics:         core.NoopRunMetrics{},
		Clock:           clock,
		DefaultCooldown: 24 * time.Hour,
		Match:           evaluation.MatchOptions{},
		Logger:          logger,
	})
	return p
}

func TestPipeline_SendsThenDedupes(t *testing.T) {
	p := newPipeline(t, surfRule(500), 137)
	ctx := context.Background()

	summary, err := p.worker.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outcomes[types.EventSent])
	assert.Equal(t, 1, summary.EmailsSent)
	require.Len(t, p.provider.sent, 1)

	ev := p.events.only(t)
	assert.Equal(t, types.EventSent, ev.Status)
	require.NotNil(t, ev.Price)
	assert.Equal(t, 137.0, *ev.Price)
	assert.NotEmpty(t, ev.DeepLink)
	assert.NotEmpty(t, ev.HotelLink)
	assert.NotNil(t, ev.SentAt)
	assert.Equal(t, "fake_mode", ev.Reason)
	assert.NotNil(t, p.rules.rules[0].LastNotifiedAt)

	summary, err = p.worker.Run(ctx, RunOptions{IgnoreCheckCooldown: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outcomes[types.EventDeduped])
	assert.Len(t, p.provider.sent, 1, "a deduped alert sends no email")
	assert.Equal(t, 1, p.events.inserts, "the repeat evaluation updates the same row")
	assert.NotNil(t, p.events.only(t).SentAt)
}

func TestPipeline_OverCapRecordsPrice(t *testing.T) {
	p := newPipeline(t, surfRule(50), 137)

	summary, err := p.worker.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outcomes[types.EventTooPricey])
	assert.Empty(t, p.provider.sent)

	ev := p.events.only(t)
	assert.Equal(t, types.EventTooPricey, ev.Status)
	require.NotNil(t, ev.Price)
	assert.Equal(t, 137.0, *ev.Price)
	assert.Nil(t, ev.SentAt)
	assert.NotNil(t, p.rules.rules[0].LastCheckedAt)
	assert.Nil(t, p.rules.rules[0].LastNotifiedAt)
}

func TestPipeline_SendFailureRetriedNextRun(t *testing.T) {
	p := newPipeline(t, surfRule(500), 137)
	p.provider.err = errors.New("resend 500")
	ctx := context.Background()

	summary, err := p.worker.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outcomes[types.EventSendFailed])
	assert.Zero(t, summary.Errors)
	assert.Zero(t, summary.EmailsSent)

	ev := p.events.only(t)
	assert.Equal(t, types.EventSendFailed, ev.Status)
	assert.Nil(t, ev.SentAt)
	assert.Contains(t, ev.Reason, "resend 500")
	assert.NotNil(t, p.rules.rules[0].LastCheckedAt, "a failed send still marks the rule checked")

	eligible, err := p.worker.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, eligible.RulesEligible, "the check cooldown holds the rule until its next slot")

	p.provider.err = nil
	summary, err = p.worker.Run(ctx, RunOptions{IgnoreCheckCooldown: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outcomes[types.EventSent])
	require.Len(t, p.provider.sent, 1)
	assert.Equal(t, types.EventSent, p.events.only(t).Status)
	assert.Equal(t, 1, p.events.inserts)
}

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tidefly/internal/evaluation"
	"tidefly/internal/forecasts"
	"tidefly/internal/notifications"
	"tidefly/internal/notifications/core"
	"tidefly/internal/pricing"
	"tidefly/internal/queue"
	"tidefly/internal/types"
)

// Provider names used for the UpstreamError metric.
const (
	ProviderForecast = "open-meteo"
	ProviderFlights  = "amadeus"
)

// RuleStore abstracts the rule queries the worker needs. Implemented by
// db.RuleRepository.
type RuleStore interface {
	ListActive(ctx context.Context) ([]types.AlertRule, error)
	GetByID(ctx context.Context, id string) (*types.AlertRule, error)
	ResetCooldowns(ctx context.Context, ruleID string) (int64, error)
}

// SpotStore reads spots. Implemented by db.SpotRepository.
type SpotStore interface {
	GetByID(ctx context.Context, id string) (*types.Spot, error)
}

// UserStore reads users. Implemented by db.UserRepository.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// ForecastSource resolves a spot's forecast for one run. Implemented by
// forecasts.Resolver.
type ForecastSource interface {
	Resolve(ctx context.Context, spot *types.Spot, memo forecasts.Memo) *forecasts.Resolution
}

// AlertNotifier writes the outcome of one evaluation. Implemented by
// notifications.Notifier.
type AlertNotifier interface {
	Record(ctx context.Context, rule *types.AlertRule, status types.EventStatus, goodDays []string, reason string) (*types.AlertEvent, error)
	Notify(ctx context.Context, c notifications.Candidate) (*types.AlertEvent, error)
}

// Worker evaluates alert rules sequentially. A failing rule is logged and
// counted; it never stops the run.
type Worker struct {
	rules           RuleStore
	spots           SpotStore
	users           UserStore
	forecasts       ForecastSource
	prices          pricing.PriceResolver
	notifier        AlertNotifier
	metrics         core.RunMetrics
	clock           types.Clock
	defaultCooldown time.Duration
	match           evaluation.MatchOptions
	logger          *slog.Logger
}

// WorkerConfig holds the dependencies needed to create a Worker.
type WorkerConfig struct {
	Rules           RuleStore
	Spots           SpotStore
	Users           UserStore
	Forecasts       ForecastSource
	Prices          pricing.PriceResolver
	Notifier        AlertNotifier
	Metrics         core.RunMetrics
	Clock           types.Clock
	DefaultCooldown time.Duration
	Match           evaluation.MatchOptions
	Logger          *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = core.NoopRunMetrics{}
	}
	return &Worker{
		rules:           cfg.Rules,
		spots:           cfg.Spots,
		users:           cfg.Users,
		forecasts:       cfg.Forecasts,
		prices:          cfg.Prices,
		notifier:        cfg.Notifier,
		metrics:         metrics,
		clock:           clock,
		defaultCooldown: cfg.DefaultCooldown,
		match:           cfg.Match,
		logger:          logger,
	}
}

// Dispatch routes a scheduled payload to its job.
func (w *Worker) Dispatch(ctx context.Context, p TaskPayload) error {
	switch p.Task {
	case "", TaskRunAlerts:
		_, err := w.Run(ctx, RunOptions{SpotID: p.SpotID, RuleID: p.RuleID, Now: p.ReferenceTime})
		return err
	case TaskResetCooldowns:
		n, err := w.rules.ResetCooldowns(ctx, p.RuleID)
		if err != nil {
			return err
		}
		w.logger.InfoContext(ctx, "cooldowns reset", "rule_id", p.RuleID, "rules_reset", n)
		return nil
	default:
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("unknown task %q", p.Task), nil)
	}
}

// HandleTrigger evaluates the single rule named by a trigger message. The
// check cooldown is skipped since the evaluation was asked for explicitly.
// It returns an error when the rule failed so the message is retried.
func (w *Worker) HandleTrigger(ctx context.Context, msg *queue.TriggerMessage) error {
	log := w.logger.With("trigger_id", msg.TriggerID, "rule_id", msg.RuleID, "reason", string(msg.Reason))
	log.InfoContext(ctx, "handling trigger")

	summary, err := w.Run(ctx, RunOptions{RuleID: msg.RuleID, IgnoreCheckCooldown: true})
	if err != nil {
		return err
	}
	if summary.Errors > 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("triggered evaluation of rule %s failed", msg.RuleID), nil)
	}
	return nil
}

// Run executes one batch and returns its summary. It fails only when the rule
// list cannot be loaded or ctx ends mid-run; in the latter case the partial
// summary is still returned and published.
func (w *Worker) Run(ctx context.Context, opts RunOptions) (*core.RunSummary, error) {
	runID := uuid.New().String()
	ctx = types.WithRunID(ctx, runID)
	log := w.logger.With("run_id", runID)

	start := time.Now()
	now := w.clock.Now()
	if opts.Now != nil {
		now = opts.Now.UTC()
	}

	summary := &core.RunSummary{Outcomes: make(map[types.EventStatus]int)}
	defer func() {
		summary.Duration = time.Since(start)
		w.metrics.RecordRun(context.WithoutCancel(ctx), *summary)
	}()

	rules, err := w.loadRules(ctx, opts)
	if err != nil {
		log.ErrorContext(ctx, "failed to load rules", "error", err)
		return summary, err
	}
	summary.RulesLoaded = len(rules)

	var eligible []types.AlertRule
	if opts.IgnoreCheckCooldown {
		for _, r := range rules {
			if Runnable(&r, now) {
				eligible = append(eligible, r)
			}
		}
	} else {
		eligible = Eligible(rules, now, w.defaultCooldown)
	}
	eligible = FilterSpot(eligible, opts.SpotID)
	summary.RulesEligible = len(eligible)

	log.InfoContext(ctx, "run started",
		"rules_loaded", summary.RulesLoaded,
		"rules_eligible", summary.RulesEligible,
		"spot_filter", opts.SpotID,
		"rule_filter", opts.RuleID,
	)

	memo := make(forecasts.Memo)
	for i := range eligible {
		if err := ctx.Err(); err != nil {
			log.WarnContext(ctx, "run interrupted", "remaining", len(eligible)-i, "error", err)
			return summary, err
		}
		rule := &eligible[i]
		status, err := w.evaluateSafely(ctx, rule, memo, now)
		if err != nil {
			summary.Errors++
			log.ErrorContext(ctx, "rule evaluation failed",
				"rule_id", rule.ID,
				"spot_id", rule.SpotID,
				"error", err,
			)
			continue
		}
		summary.Evaluated++
		summary.Outcomes[status]++
		if status == types.EventSent {
			summary.EmailsSent++
		}
	}

	log.InfoContext(ctx, "run complete",
		"evaluated", summary.Evaluated,
		"errors", summary.Errors,
		"emails_sent", summary.EmailsSent,
		"outcomes", summary.Outcomes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return summary, nil
}

func (w *Worker) loadRules(ctx context.Context, opts RunOptions) ([]types.AlertRule, error) {
	if opts.RuleID == "" {
		return w.rules.ListActive(ctx)
	}
	rule, err := w.rules.GetByID(ctx, opts.RuleID)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundRule) {
			w.logger.WarnContext(ctx, "requested rule does not exist", "rule_id", opts.RuleID)
			return nil, nil
		}
		return nil, err
	}
	return []types.AlertRule{*rule}, nil
}

// evaluateSafely is the per-rule error boundary.
func (w *Worker) evaluateSafely(ctx context.Context, rule *types.AlertRule, memo forecasts.Memo, now time.Time) (status types.EventStatus, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("panic evaluating rule: %v", p), nil)
		}
	}()
	return w.evaluate(ctx, rule, memo, now)
}

func (w *Worker) evaluate(ctx context.Context, rule *types.AlertRule, memo forecasts.Memo, now time.Time) (types.EventStatus, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	if rule.SpotID == "" {
		return "", types.NewAppError(types.ErrCodeValidationInvalidRule, "rule has no spot", nil)
	}

	spot, err := w.spots.GetByID(ctx, rule.SpotID)
	if err != nil {
		return "", err
	}
	user, err := w.users.GetByID(ctx, rule.UserID)
	if err != nil {
		return "", err
	}

	origin, dest := Route(rule, spot, user)
	if !types.ValidIATA(origin) || !types.ValidIATA(dest) {
		return "", types.NewAppError(types.ErrCodeValidationInvalidIATA,
			fmt.Sprintf("cannot resolve route %q-%q", origin, dest), nil)
	}

	log := w.logger.With("run_id", types.GetRunID(ctx), "rule_id", rule.ID, "spot_id", spot.ID)

	_, memoized := memo[spot.ID]
	res := w.forecasts.Resolve(ctx, spot, memo)
	if !memoized && (res.Source == forecasts.SourceStale || res.Source == forecasts.SourceNone) {
		w.metrics.RecordUpstreamError(ctx, ProviderForecast)
	}
	if !res.Available() {
		ev, err := w.notifier.Record(ctx, rule, types.EventForecastUnavailable, nil,
			fmt.Sprintf("no forecast (cache %s)", res.Freshness))
		return statusOf(ev, err)
	}

	loc := spot.Location()
	window := evaluation.RuleWindow(rule, now, loc)
	good := evaluation.Match(rule, res.Days, window, w.match)
	log.DebugContext(ctx, "rule matched",
		"forecast_source", string(res.Source),
		"window_start", window.Start,
		"window_end", window.End,
		"good_days", len(good),
	)
	if len(good) == 0 {
		ev, err := w.notifier.Record(ctx, rule, types.EventNoSurf, nil,
			fmt.Sprintf("no qualifying days in %s..%s", window.Start, window.End))
		return statusOf(ev, err)
	}

	trip, err := evaluation.SelectTrip(good)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to select trip", err)
	}
	today := now.In(loc).Format("2006-01-02")
	outlook := evaluation.OutlookFor(evaluation.DaysOut(today, good))

	quote, err := w.prices.Resolve(ctx, pricing.Query{Origin: origin, Dest: dest, Trip: trip})
	if err != nil {
		log.WarnContext(ctx, "price lookup failed", "error", err)
		w.metrics.RecordUpstreamError(ctx, ProviderFlights)
		quote = nil
	}

	ev, err := w.notifier.Notify(ctx, notifications.Candidate{
		Rule:     rule,
		Spot:     spot,
		User:     user,
		Origin:   origin,
		Dest:     dest,
		GoodDays: good,
		Trip:     trip,
		Quote:    quote,
		Outlook:  string(outlook),
	})
	return statusOf(ev, err)
}

// Route returns the rule's origin and destination airports. A missing
// origin falls back to the user's home airport and a missing destination to
// the spot's nearest airport.
func Route(rule *types.AlertRule, spot *types.Spot, user *types.User) (string, string) {
	origin := rule.OriginIATA
	if origin == "" && user != nil {
		origin = user.HomeAirport
	}
	dest := rule.DestIATA
	if dest == "" && spot != nil {
		dest = spot.NearestAirportIATA
	}
	return types.NormalizeIATA(origin), types.NormalizeIATA(dest)
}

func statusOf(ev *types.AlertEvent, err error) (types.EventStatus, error) {
	if err != nil {
		return "", err
	}
	return ev.Status, nil
}

// Package main is the entrypoint for the TideFly alert worker.
//
// The worker evaluates every eligible alert rule once per invocation. It runs
// in one of two modes:
//
//   - Lambda: an EventBridge schedule delivers a scheduler.TaskPayload and the
//     trigger queue delivers SQS batches of single-rule trigger messages. Both
//     arrive at the same handler, which tells them apart by shape.
//   - Local: a one-shot run from the command line, optionally narrowed with
//     -spot or -rule.
//
// Cold start:
//  1. Load configuration (dotenv, environment).
//  2. Initialize the structured logger.
//  3. Open the database pool and build the repositories.
//  4. Build the provider clients, forecast resolver and price resolver.
//  5. Build the notification pipeline and run metrics.
//  6. Start the Lambda runtime or run once.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"tidefly/internal/affiliate"
	"tidefly/internal/config"
	"tidefly/internal/db"
	"tidefly/internal/evaluation"
	"tidefly/internal/external"
	"tidefly/internal/forecasts"
	"tidefly/internal/notifications"
	"tidefly/internal/notifications/core"
	"tidefly/internal/notifications/email"
	"tidefly/internal/pricing"
	"tidefly/internal/queue"
	"tidefly/internal/scheduler"
	"tidefly/internal/types"
)

func main() {
	spotID := flag.String("spot", "", "only evaluate rules for this spot")
	ruleID := flag.String("rule", "", "only evaluate this rule, ignoring its check cooldown")
	task := flag.String("task", string(scheduler.TaskRunAlerts), "task to run: run_alerts or reset_cooldowns")
	flag.Parse()

	if err := run(*spotID, *ruleID, scheduler.TaskType(*task)); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(spotID, ruleID string, task scheduler.TaskType) error {
	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service)
	logger.Info("alert worker initializing",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"amadeus_mode", cfg.Amadeus.Mode,
		"dry_run", cfg.Email.DryRun,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	metrics, err := newRunMetrics(ctx, cfg, logger)
	if err != nil {
		return err
	}

	worker, err := buildWorker(cfg, db.NewRuleRepository(pool), repositories{
		spots:     db.NewSpotRepository(pool),
		users:     db.NewUserRepository(pool),
		events:    db.NewEventRepository(pool),
		flights:   db.NewFlightCacheRepository(pool),
		forecasts: db.NewForecastCacheRepository(pool),
	}, metrics, logger)
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		logger.Info("alert worker initialized, starting lambda runtime")
		lambda.Start(newLambdaHandler(worker, cfg.Worker.RunTimeout, logger))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Worker.RunTimeout)
	defer cancel()
	if ruleID != "" && task == scheduler.TaskRunAlerts {
		_, err := worker.Run(ctx, scheduler.RunOptions{RuleID: ruleID, IgnoreCheckCooldown: true})
		return err
	}
	return worker.Dispatch(ctx, scheduler.TaskPayload{Task: task, SpotID: spotID, RuleID: ruleID})
}

// repositories groups the stores the worker reads and writes besides rules.
type repositories struct {
	spots     *db.SpotRepository
	users     *db.UserRepository
	events    *db.EventRepository
	flights   *db.FlightCacheRepository
	forecasts *db.ForecastCacheRepository
}

// buildWorker wires the evaluation pipeline. In fake pricing mode no flight
// cache is read or written.
func buildWorker(cfg *config.Config, rules *db.RuleRepository, repos repositories, metrics core.RunMetrics, logger *slog.Logger) (*scheduler.Worker, error) {
	clock := types.RealClock{}
	clients := external.NewClientRegistry(cfg, logger, clock)

	cache := forecasts.NewCache(repos.forecasts, cfg.Forecast.FreshTTL, cfg.Forecast.StaleTTL, clock)
	resolver := forecasts.NewResolver(cache, forecasts.NewFetcher(clients.Forecast, logger), logger)

	var prices pricing.PriceResolver
	if cfg.Amadeus.Mode == "fake" {
		prices = &pricing.FixedPriceResolver{Price: cfg.Amadeus.FakePrice, Currency: cfg.Amadeus.Currency}
	} else {
		prices = pricing.NewLivePriceResolver(repos.flights, clients.Flights, pricing.LiveConfig{
			Currency: cfg.Amadeus.Currency,
			CacheTTL: cfg.Amadeus.CacheTTL,
			Logger:   logger.With("component", "pricing"),
			Clock:    clock,
		})
	}

	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("loading email templates: %w", err)
	}
	channel := email.NewEmailChannel(email.EmailChannelConfig{
		Provider: clients.Email,
		Sender:   external.SenderIdentity{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress},
		Logger:   logger,
	})

	notifier := notifications.NewNotifier(notifications.NotifierConfig{
		Events:   repos.events,
		Rules:    rules,
		Policy:   core.NewPolicyEngine(clock, cfg.Worker.DefaultCooldown, logger),
		Renderer: renderer,
		Channel:  channel,
		Links: affiliate.NewBuilder(affiliate.Config{
			Enabled:        cfg.Affiliate.Enabled,
			HotelCTA:       cfg.Affiliate.EnableHotelCTA,
			Marker:         cfg.Affiliate.Marker,
			HotelProgramID: cfg.Affiliate.HotelProgramID,
			HotelCurrency:  cfg.Amadeus.Currency,
		}),
		Clock:  clock,
		Logger: logger,
	})

	return scheduler.NewWorker(scheduler.WorkerConfig{
		Rules:           rules,
		Spots:           repos.spots,
		Users:           repos.users,
		Forecasts:       resolver,
		Prices:          prices,
		Notifier:        notifier,
		Metrics:         metrics,
		Clock:           clock,
		DefaultCooldown: cfg.Worker.DefaultCooldown,
		Match:           evaluation.MatchOptions{RequireMorningOK: cfg.Worker.RequireMorningOK},
		Logger:          logger,
	}), nil
}

// newRunMetrics returns CloudWatch metrics when enabled, otherwise a no-op.
func newRunMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.RunMetrics, error) {
	if !cfg.Metrics.Enabled {
		return core.NoopRunMetrics{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Metrics.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	return core.NewCloudWatchRunMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, cfg.Environment, logger), nil
}

// jobRunner is the part of scheduler.Worker the Lambda handler drives.
type jobRunner interface {
	Dispatch(ctx context.Context, p scheduler.TaskPayload) error
	HandleTrigger(ctx context.Context, msg *queue.TriggerMessage) error
}

// newLambdaHandler returns a handler accepting both SQS batches and scheduled
// task payloads. An SQS event is recognised by its Records array.
func newLambdaHandler(jobs jobRunner, timeout time.Duration, logger *slog.Logger) func(ctx context.Context, raw json.RawMessage) (any, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if isSQSEvent(raw) {
			var ev events.SQSEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return nil, fmt.Errorf("decoding sqs event: %w", err)
			}
			return handleTriggers(ctx, jobs, ev, logger), nil
		}

		var payload scheduler.TaskPayload
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, fmt.Errorf("decoding task payload: %w", err)
			}
		}
		logger.InfoContext(ctx, "scheduled invocation", "task", string(payload.Task), "spot_id", payload.SpotID)
		if err := jobs.Dispatch(ctx, payload); err != nil {
			logger.ErrorContext(ctx, "scheduled task failed", "task", string(payload.Task), "error", err)
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}
}

// handleTriggers processes each trigger independently. Malformed messages
// are acknowledged and dropped; failed evaluations are reported back so SQS
// redelivers only those messages.
func handleTriggers(ctx context.Context, jobs jobRunner, ev events.SQSEvent, logger *slog.Logger) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range ev.Records {
		msg, err := queue.ParseTriggerMessage(record.Body)
		if err != nil {
			logger.ErrorContext(ctx, "dropping malformed trigger message",
				"message_id", record.MessageId,
				"error", err,
			)
			continue
		}
		if err := jobs.HandleTrigger(ctx, msg); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}
	return resp
}

func isSQSEvent(raw json.RawMessage) bool {
	var probe struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Records != nil
}

// isLambdaEnvironment reports whether the process runs inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasFunctionName := os.LookupEnv("AWS_LAMBDA_FUNCTION_NAME")
	return hasRuntimeAPI || hasFunctionName
}

// newLogger creates a JSON logger at the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

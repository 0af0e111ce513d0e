// Package main is the entry point for the TideFly API server.
//
// The API is deliberately small: rule status, on-demand rule evaluation via
// the trigger queue, and an admin endpoint to reset check cooldowns. It runs
// as a standard HTTP server with graceful shutdown on SIGINT and SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/gzhttp"

	"tidefly/internal/affiliate"
	"tidefly/internal/api/handlers"
	"tidefly/internal/config"
	"tidefly/internal/core"
	"tidefly/internal/db"
	"tidefly/internal/queue"
	"tidefly/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("tidefly API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	sqsClient, err := newSQSClient(ctx, cfg)
	if err != nil {
		return err
	}

	srv, err := buildServer(cfg, pool, sqsClient, logger)
	if err != nil {
		return err
	}
	return runHTTPServer(srv, cfg, logger)
}

// queueClient is the SQS surface used by the API.
type queueClient interface {
	queue.SQSSender
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// newSQSClient builds the SQS client. AWS_ENDPOINT_URL points it at a local
// emulator during development.
func newSQSClient(ctx context.Context, cfg *config.Config) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Metrics.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Queue.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.Queue.EndpointURL)
		}
	}), nil
}

// buildServer wires the repositories, handlers and health probes into a
// mounted core.Server.
func buildServer(cfg *config.Config, pool *pgxpool.Pool, sqsClient queueClient, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Admin = core.NewBcryptAdminAuthenticator(cfg.Security.AdminKeyHash)
	srv.HealthProbes = healthProbes(cfg, pool, sqsClient)

	rules := db.NewRuleRepository(pool)
	ruleHandler := handlers.NewRuleHandler(handlers.RuleHandlerConfig{
		Rules:   rules,
		Spots:   db.NewSpotRepository(pool),
		Users:   db.NewUserRepository(pool),
		Events:  db.NewEventRepository(pool),
		Trigger: queue.NewRuleTrigger(sqsClient, cfg.Queue, types.RealClock{}, logger),
		Links: affiliate.NewBuilder(affiliate.Config{
			Enabled:        cfg.Affiliate.Enabled,
			HotelCTA:       cfg.Affiliate.EnableHotelCTA,
			Marker:         cfg.Affiliate.Marker,
			HotelProgramID: cfg.Affiliate.HotelProgramID,
			HotelCurrency:  cfg.Amadeus.Currency,
		}),
		Validator:       srv.Validator,
		DefaultCooldown: cfg.Worker.DefaultCooldown,
		Logger:          logger,
	})
	adminHandler := handlers.NewAdminHandler(rules, srv.AdminOnly, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		ruleHandler.RegisterRoutes,
		adminHandler.RegisterRoutes,
	)
	srv.MountRoutes()
	return srv, nil
}

// healthProbes checks the database and, when configured, the trigger queue.
func healthProbes(cfg *config.Config, pool *pgxpool.Pool, sqsClient queueClient) []core.HealthProbe {
	probes := []core.HealthProbe{
		core.HealthProbeFunc{ProbeName: "database", Fn: pool.Ping},
	}
	if cfg.Queue.TriggerQueueURL != "" {
		probes = append(probes, core.HealthProbeFunc{ProbeName: "trigger_queue", Fn: queueProbe(sqsClient, cfg.Queue.TriggerQueueURL)})
	}
	return probes
}

func queueProbe(client queueClient, url string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
			QueueUrl:       aws.String(url),
			AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameApproximateNumberOfMessages},
		})
		return err
	}
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           gzhttp.GzipHandler(srv.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
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

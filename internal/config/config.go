// Package config defines the configuration for the TideFly alert worker and
// its small API. Configuration is loaded once at process start and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File
//
// Any missing required value or invalid format is returned as a *ConfigError
// and the process refuses to start.
package config

import (
	"time"

	"tidefly/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Components receive only the
// sub-config they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tidefly-worker"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database  DatabaseConfig
	Forecast  ForecastConfig
	Amadeus   AmadeusConfig
	Email     EmailConfig
	Affiliate AffiliateConfig
	Worker    WorkerConfig
	Metrics   MetricsConfig
	Queue     QueueConfig
	Server    ServerConfig
	Security  SecurityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"4"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"5s"`
}

// ForecastConfig configures the Open-Meteo client and the snapshot cache.
type ForecastConfig struct {
	MarineBaseURL  string        `envconfig:"OPEN_METEO_MARINE_URL" default:"https://marine-api.open-meteo.com" validate:"url"`
	WeatherBaseURL string        `envconfig:"OPEN_METEO_WEATHER_URL" default:"https://api.open-meteo.com" validate:"url"`
	RequestTimeout time.Duration `envconfig:"FORECAST_TIMEOUT" default:"35s"`
	FreshTTL       time.Duration `envconfig:"FORECAST_FRESH_TTL" default:"6h"`
	StaleTTL       time.Duration `envconfig:"FORECAST_STALE_TTL" default:"12h" validate:"gtefield=FreshTTL"`
}

// AmadeusConfig configures flight pricing.
type AmadeusConfig struct {
	// Mode "live" queries Amadeus; "fake" returns FakePrice without any I/O.
	Mode         string        `envconfig:"AMADEUS_MODE" default:"live" validate:"oneof=live fake"`
	Env          string        `envconfig:"AMADEUS_ENV" default:"test" validate:"oneof=test prod"`
	BaseURL      string        `envconfig:"AMADEUS_BASE_URL"`
	ClientID     string        `envconfig:"AMADEUS_CLIENT_ID" validate:"required_if=Mode live"`
	ClientSecret SecretString  `envconfig:"AMADEUS_CLIENT_SECRET" validate:"required_if=Mode live"`
	Currency     string        `envconfig:"AMADEUS_CURRENCY" default:"USD" validate:"len=3"`
	FakePrice    float64       `envconfig:"AMADEUS_FAKE_PRICE" default:"199" validate:"gte=0"`
	Timeout      time.Duration `envconfig:"AMADEUS_TIMEOUT" default:"30s"`
	CacheTTL     time.Duration `envconfig:"FLIGHT_CACHE_TTL" default:"24h"`
}

// ResolvedBaseURL returns the explicit base URL or the one implied by Env.
func (c AmadeusConfig) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Env == "prod" {
		return "https://api.amadeus.com"
	}
	return "https://test.api.amadeus.com"
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	Provider       string       `envconfig:"EMAIL_PROVIDER" default:"resend" validate:"oneof=resend sendgrid"`
	ResendAPIKey   SecretString `envconfig:"RESEND_API_KEY"`
	ResendBaseURL  string       `envconfig:"RESEND_BASE_URL" default:"https://api.resend.com" validate:"url"`
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	FromAddress    string       `envconfig:"EMAIL_FROM" default:"alerts@tidefly.app" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"TideFly Surf Alerts"`
	DryRun         bool         `envconfig:"DRY_RUN" default:"false"`
}

// AffiliateConfig holds Travelpayouts identifiers for booking links.
type AffiliateConfig struct {
	Enabled        bool   `envconfig:"ENABLE_AFFILIATES" default:"true"`
	EnableHotelCTA bool   `envconfig:"ENABLE_HOTEL_CTA" default:"true"`
	Marker         string `envconfig:"TRAVELPAYOUTS_MARKER"`
	HotelProgramID string `envconfig:"HOTELLOOK_PROGRAM_ID"`
}

// WorkerConfig holds evaluation policy knobs.
type WorkerConfig struct {
	DefaultCooldown  time.Duration `envconfig:"DEFAULT_COOLDOWN" default:"24h"`
	RequireMorningOK bool          `envconfig:"REQUIRE_MORNING_OK" default:"false"`
	RunTimeout       time.Duration `envconfig:"RUN_TIMEOUT" default:"14m"`
}

// MetricsConfig controls CloudWatch run metrics.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"TideFly"`
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// QueueConfig holds the SQS queue used for single-rule trigger messages.
type QueueConfig struct {
	TriggerQueueURL string `envconfig:"SQS_TRIGGER_QUEUE_URL" validate:"omitempty,url"`
	EndpointURL     string `envconfig:"AWS_ENDPOINT_URL"`
}

// ServerConfig holds HTTP server configuration for cmd/api.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// SecurityConfig holds admin access configuration.
type SecurityConfig struct {
	// AdminKeyHash is a bcrypt hash of the admin API key.
	AdminKeyHash SecretString `envconfig:"ADMIN_API_KEY_HASH"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrSecretResolution indicates a failure when fetching secrets from a
	// SecretProvider.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
)

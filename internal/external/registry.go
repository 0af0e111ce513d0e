package external

import (
	"log/slog"
	"time"

	"tidefly/internal/config"
	"tidefly/internal/types"
)

const userAgent = "TideFly-Worker/1.0"

// ClientRegistry holds every outbound provider the worker talks to.
// Flights and Tokens are nil when AMADEUS_MODE=fake.
type ClientRegistry struct {
	Forecast ForecastProvider
	Flights  FlightSearcher
	Tokens   TokenSource
	Email    EmailProvider
}

// NewClientRegistry builds the provider clients from configuration.
//
//   - Open-Meteo: one attempt per call, bounded by FORECAST_TIMEOUT.
//   - Amadeus: up to three attempts on 429 with 1s/2s/4s backoff.
//   - Email: Resend or SendGrid; a logging stub when DRY_RUN is set.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, clock types.Clock) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}

	reg := &ClientRegistry{}

	forecastBase := NewBaseClient(NewHTTPClient(cfg.Forecast.RequestTimeout), "open-meteo", NoRetryPolicy(), userAgent)
	reg.Forecast = NewOpenMeteoClient(forecastBase, OpenMeteoConfig{
		MarineBaseURL:  cfg.Forecast.MarineBaseURL,
		WeatherBaseURL: cfg.Forecast.WeatherBaseURL,
		Logger:         logger.With("client", "open-meteo"),
	})

	if cfg.Amadeus.Mode == "live" {
		amadeusCfg := AmadeusConfig{
			BaseURL:      cfg.Amadeus.ResolvedBaseURL(),
			ClientID:     cfg.Amadeus.ClientID,
			ClientSecret: cfg.Amadeus.ClientSecret,
			Logger:       logger.With("client", "amadeus"),
			Clock:        clock,
		}
		amadeusBase := NewBaseClient(NewHTTPClient(cfg.Amadeus.Timeout), "amadeus", RateLimitRetryPolicy(3), userAgent)
		reg.Tokens = NewAmadeusTokenSource(amadeusBase, amadeusCfg)
		reg.Flights = NewAmadeusClient(amadeusBase, reg.Tokens, amadeusCfg)
	}

	emailLogger := logger.With("client", "email")
	emailBase := NewBaseClient(NewHTTPClient(15*time.Second), "email", RateLimitRetryPolicy(3), userAgent)
	switch {
	case cfg.Email.DryRun:
		reg.Email = NewStubEmailProvider(emailLogger.With("mode", "dry_run"))
	case cfg.Email.Provider == "sendgrid":
		reg.Email = NewSendGridClient(emailBase, SendGridClientConfig{
			APIKey: cfg.Email.SendGridAPIKey,
			Logger: emailLogger,
		})
	default:
		reg.Email = NewResendClient(emailBase, ResendClientConfig{
			APIKey:  cfg.Email.ResendAPIKey,
			BaseURL: cfg.Email.ResendBaseURL,
			Logger:  emailLogger,
		})
	}

	logger.Info("external clients initialized",
		"amadeus_mode", cfg.Amadeus.Mode,
		"email_provider", cfg.Email.Provider,
		"dry_run", cfg.Email.DryRun,
	)
	return reg
}

package external

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"tidefly/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClientRegistry_DryRunFakeMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.Amadeus.Mode = "fake"
	cfg.Email.DryRun = true
	cfg.Email.Provider = "resend"

	reg := NewClientRegistry(cfg, testLogger(), nil)

	if reg.Forecast == nil {
		t.Fatal("Forecast is nil")
	}
	if reg.Flights != nil || reg.Tokens != nil {
		t.Errorf("fake mode should not build amadeus clients, got %T/%T", reg.Flights, reg.Tokens)
	}
	if _, ok := reg.Email.(*StubEmailProvider); !ok {
		t.Errorf("Email is %T, want *StubEmailProvider", reg.Email)
	}

	id, err := reg.Email.Send(context.Background(), EmailMessage{To: "a@b.c", ReferenceID: "r1"})
	if err != nil || id != "dry_run_r1" {
		t.Errorf("stub send = %q, %v", id, err)
	}
}

func TestNewClientRegistry_LiveProviders(t *testing.T) {
	cfg := &config.Config{}
	cfg.Amadeus.Mode = "live"
	cfg.Amadeus.Env = "test"
	cfg.Email.Provider = "sendgrid"

	reg := NewClientRegistry(cfg, testLogger(), nil)

	if _, ok := reg.Flights.(*AmadeusClient); !ok {
		t.Errorf("Flights is %T, want *AmadeusClient", reg.Flights)
	}
	if _, ok := reg.Tokens.(*AmadeusTokenSource); !ok {
		t.Errorf("Tokens is %T, want *AmadeusTokenSource", reg.Tokens)
	}
	if _, ok := reg.Email.(*SendGridClient); !ok {
		t.Errorf("Email is %T, want *SendGridClient", reg.Email)
	}

	cfg.Email.Provider = "resend"
	reg = NewClientRegistry(cfg, testLogger(), nil)
	if _, ok := reg.Email.(*ResendClient); !ok {
		t.Errorf("Email is %T, want *ResendClient", reg.Email)
	}
}

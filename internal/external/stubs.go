package external

import (
	"context"
	"fmt"
	"log/slog"
)

// StubEmailProvider logs messages instead of sending them. It backs DRY_RUN.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

// Send logs the message and returns a synthetic message ID.
func (s *StubEmailProvider) Send(ctx context.Context, msg EmailMessage) (string, error) {
	s.logger.InfoContext(ctx, "dry run: email not sent",
		"to", msg.To,
		"subject", msg.Subject,
		"reference_id", msg.ReferenceID,
		"html_bytes", len(msg.HTML),
	)
	return fmt.Sprintf("dry_run_%s", msg.ReferenceID), nil
}

var _ EmailProvider = (*StubEmailProvider)(nil)

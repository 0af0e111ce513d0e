// Package email renders surf alert emails and hands them to the configured
// EmailProvider (Resend, SendGrid or the dry-run stub).
package email

import (
	"context"
	"log/slog"

	"tidefly/internal/external"
	"tidefly/internal/types"
)

// IsBlocklistError reports whether the provider refused the recipient
// because of a suppression list or block.
func IsBlocklistError(err error) bool {
	return types.IsCode(err, types.ErrCodeEmailBlocked)
}

// EmailChannel delivers rendered alerts through an external EmailProvider.
type EmailChannel struct {
	provider external.EmailProvider
	sender   external.SenderIdentity
	logger   *slog.Logger
}

// EmailChannelConfig holds the dependencies needed to create an EmailChannel.
type EmailChannelConfig struct {
	Provider external.EmailProvider
	Sender   external.SenderIdentity
	Logger   *slog.Logger
}

// NewEmailChannel creates a new EmailChannel with the given dependencies.
func NewEmailChannel(cfg EmailChannelConfig) *EmailChannel {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &EmailChannel{
		provider: cfg.Provider,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
	}
}

// Deliver sends the rendered email and returns the provider message ID.
// referenceID ties the message back to the alert rule in provider logs.
func (e *EmailChannel) Deliver(ctx context.Context, to string, rendered *RenderedEmail, referenceID string) (string, error) {
	e.logger.InfoContext(ctx, "attempting email delivery", "dest", RedactEmail(to), "ref", referenceID)

	msgID, err := e.provider.Send(ctx, external.EmailMessage{
		To:          to,
		From:        e.sender,
		Subject:     rendered.Subject,
		HTML:        rendered.BodyHTML,
		ReferenceID: referenceID,
	})
	if err != nil {
		if IsBlocklistError(err) {
			e.logger.WarnContext(ctx, "recipient blocked by provider",
				"dest", RedactEmail(to),
				"ref", referenceID,
			)
		}
		return "", err
	}
	return msgID, nil
}

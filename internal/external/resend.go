package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"tidefly/internal/types"
)

const resendAPIBase = "https://api.resend.com"

// ResendClientConfig holds the configuration for creating a ResendClient.
type ResendClientConfig struct {
	APIKey  types.SecretString
	BaseURL string
	Logger  *slog.Logger
}

// ResendClient implements EmailProvider with the Resend HTTP API.
type ResendClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	logger  *slog.Logger
}

// NewResendClient creates a ResendClient on top of base.
func NewResendClient(base *BaseClient, cfg ResendClientConfig) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = resendAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResendClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

type resendPayload struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html"`
	Tags    []resendTag `json:"tags,omitempty"`
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

// FormatSender renders "Name <address>" or just the address.
func FormatSender(from SenderIdentity) string {
	if from.Name == "" {
		return from.Address
	}
	return fmt.Sprintf("%s <%s>", from.Name, from.Address)
}

// Send posts the message to /emails and returns the Resend email id.
//
// Error mapping:
//   - 403 -> types.ErrCodeEmailBlocked
//   - 429 -> retried by BaseClient, then types.ErrCodeUpstreamRateLimited
//   - anything else non-2xx -> types.ErrCodeUpstreamEmailProvider
func (r *ResendClient) Send(ctx context.Context, msg EmailMessage) (string, error) {
	payload := resendPayload{
		From:    FormatSender(msg.From),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	if msg.ReferenceID != "" {
		// Resend tag values allow only ASCII letters, numbers, '_' and '-'.
		payload.Tags = []resendTag{{Name: "reference_id", Value: sanitizeTag(msg.ReferenceID)}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal resend payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build resend request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey.Unmask())

	resp, err := r.base.Do(req)
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "resend request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var rr resendResponse
	_ = json.Unmarshal(raw, &rr)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return rr.ID, nil
	case resp.StatusCode == http.StatusForbidden:
		return "", types.NewAppError(types.ErrCodeEmailBlocked,
			fmt.Sprintf("resend refused delivery: %s", rr.Message), nil)
	default:
		msgText := rr.Message
		if msgText == "" {
			msgText = strings.TrimSpace(string(raw))
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("resend error (%d): %s", resp.StatusCode, msgText), nil)
	}
}

func sanitizeTag(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ EmailProvider = (*ResendClient)(nil)

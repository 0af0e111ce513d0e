package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tidefly/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMessage = EmailMessage{
	To:          "surfer@example.com",
	From:        SenderIdentity{Name: "TideFly Surf Alerts", Address: "alerts@tidefly.app"},
	Subject:     "Surf's up at Uluwatu",
	HTML:        "<p>Go surf</p>",
	ReferenceID: "alert_42",
}

func TestResendSend(t *testing.T) {
	var got resendPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer server.Close()

	c := NewResendClient(newTestClient(t, NoRetryPolicy()), ResendClientConfig{APIKey: "re_test", BaseURL: server.URL})
	id, err := c.Send(context.Background(), testMessage)
	require.NoError(t, err)

	assert.Equal(t, "email_123", id)
	assert.Equal(t, "TideFly Surf Alerts <alerts@tidefly.app>", got.From)
	assert.Equal(t, []string{"surfer@example.com"}, got.To)
	assert.Equal(t, "Surf's up at Uluwatu", got.Subject)
	assert.Equal(t, "<p>Go surf</p>", got.HTML)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "alert_42", got.Tags[0].Value)
}

func TestResendErrors(t *testing.T) {
	tests := []struct {
		status int
		want   types.ErrorCode
	}{
		{http.StatusForbidden, types.ErrCodeEmailBlocked},
		{http.StatusUnprocessableEntity, types.ErrCodeUpstreamEmailProvider},
		{http.StatusInternalServerError, types.ErrCodeUpstreamEmailProvider},
		{http.StatusTooManyRequests, types.ErrCodeUpstreamRateLimited},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"name":"error","message":"nope"}`))
		}))

		c := NewResendClient(newTestClient(t, RateLimitRetryPolicy(2)), ResendClientConfig{APIKey: "k", BaseURL: server.URL})
		_, err := c.Send(context.Background(), testMessage)
		assert.True(t, types.IsCode(err, tt.want), "status %d: got %v", tt.status, err)
		server.Close()
	}
}

func TestSendGridSend(t *testing.T) {
	var got sendGridMailPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("X-Message-Id", "sg_1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	c := NewSendGridClient(newTestClient(t, NoRetryPolicy()), SendGridClientConfig{APIKey: "SG.key", BaseURL: server.URL})
	id, err := c.Send(context.Background(), testMessage)
	require.NoError(t, err)

	assert.Equal(t, "sg_1", id)
	assert.Equal(t, "surfer@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "alerts@tidefly.app", got.From.Email)
	assert.Equal(t, "text/html", got.Content[0].Type)
	assert.Equal(t, "alert_42", got.CustomArgs["reference_id"])
}

func TestSendGridForbiddenIsBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"message":"suppressed"}]}`))
	}))
	defer server.Close()

	c := NewSendGridClient(newTestClient(t, NoRetryPolicy()), SendGridClientConfig{APIKey: "k", BaseURL: server.URL})
	_, err := c.Send(context.Background(), testMessage)
	assert.True(t, types.IsCode(err, types.ErrCodeEmailBlocked))
	assert.Contains(t, err.Error(), "suppressed")
}

func TestFormatSenderAndSanitizeTag(t *testing.T) {
	assert.Equal(t, "a@b.c", FormatSender(SenderIdentity{Address: "a@b.c"}))
	assert.Equal(t, "rule_1_2", sanitizeTag("rule:1.2"))
}

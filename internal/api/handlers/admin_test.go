package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"tidefly/internal/core"
	"tidefly/internal/types"
)

type mockResetter struct {
	gotRuleID string
	calls     int
	n         int64
	err       error
}

func (m *mockResetter) ResetCooldowns(_ context.Context, ruleID string) (int64, error) {
	m.calls++
	m.gotRuleID = ruleID
	return m.n, m.err
}

func passThrough(next http.Handler) http.Handler { return next }

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "admin key required", nil))
	})
}

func adminRouter(rs *mockResetter, guard func(http.Handler) http.Handler) http.Handler {
	h := NewAdminHandler(rs, guard, core.NewValidator(slog.Default()), nil)
	r := chi.NewRouter()
	r.Route("/v1", h.RegisterRoutes)
	return r
}

func postReset(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/reset-cooldowns", strings.NewReader(body)))
	return rec
}

func TestHandleResetCooldowns_All(t *testing.T) {
	rs := &mockResetter{n: 12}
	rec := postReset(adminRouter(rs, passThrough), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeData[map[string]int64](t, rec)
	if got["rules_reset"] != 12 {
		t.Errorf("expected 12 rules reset, got %v", got)
	}
	if rs.gotRuleID != "" {
		t.Errorf("expected a global reset, got rule %q", rs.gotRuleID)
	}
}

func TestHandleResetCooldowns_SingleRule(t *testing.T) {
	rs := &mockResetter{n: 1}
	rec := postReset(adminRouter(rs, passThrough), `{"rule_id":"r1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rs.gotRuleID != "r1" {
		t.Errorf("expected rule r1, got %q", rs.gotRuleID)
	}
}

func TestHandleResetCooldowns_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		guard  func(http.Handler) http.Handler
		body   string
		err    error
		status int
	}{
		{"unauthenticated", denyAll, "", nil, http.StatusUnauthorized},
		{"bad rule id", passThrough, `{"rule_id":"not valid!"}`, nil, http.StatusBadRequest},
		{"unknown field", passThrough, `{"all":true}`, nil, http.StatusBadRequest},
		{"store failure", passThrough, "",
			types.NewAppError(types.ErrCodeInternalDB, "update failed", errors.New("conn reset")),
			http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &mockResetter{err: tt.err}
			rec := postReset(adminRouter(rs, tt.guard), tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if tt.err == nil && rs.calls != 0 {
				t.Error("store must not be touched")
			}
		})
	}
}

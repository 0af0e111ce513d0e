package core

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"tidefly/internal/types"
)

// AdminAuthenticator verifies the key presented on admin routes.
type AdminAuthenticator interface {
	VerifyAdminKey(ctx context.Context, key string) error
}

// BcryptAdminAuthenticator compares the presented key with a bcrypt hash
// from ADMIN_API_KEY_HASH. With no hash configured every key is rejected.
type BcryptAdminAuthenticator struct {
	hash types.SecretString
}

// NewBcryptAdminAuthenticator creates an authenticator for hash.
func NewBcryptAdminAuthenticator(hash types.SecretString) *BcryptAdminAuthenticator {
	return &BcryptAdminAuthenticator{hash: hash}
}

// VerifyAdminKey implements AdminAuthenticator.
func (a *BcryptAdminAuthenticator) VerifyAdminKey(_ context.Context, key string) error {
	if !a.hash.IsSet() {
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "admin access is disabled", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.hash.Unmask()), []byte(key)); err != nil {
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid admin key", nil)
	}
	return nil
}

var _ AdminAuthenticator = (*BcryptAdminAuthenticator)(nil)

// AdminOnly guards a route group with the admin key, read from a Bearer
// Authorization header or X-Admin-Key. A nil Admin rejects every request.
func (s *Server) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractBearerToken(r.Header.Get("Authorization"))
		if key == "" {
			key = strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		}
		if key == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "admin key is required", nil))
			return
		}
		if s.Admin == nil {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "admin access is disabled", nil))
			return
		}
		if err := s.Admin.VerifyAdminKey(r.Context(), key); err != nil {
			s.Logger.WarnContext(r.Context(), "admin authentication failed",
				"path", r.URL.Path,
				"request_id", types.GetRequestID(r.Context()),
			)
			Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearerToken returns the token from "Bearer <token>", or "".
func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

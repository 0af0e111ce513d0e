package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := NewAppError(ErrCodeNotFoundRule, "rule not found", nil)
	assert.Equal(t, "not_found_rule: rule not found", appErr.Error())

	wrapped := NewAppError(ErrCodeInternalDB, "query failed", errors.New("conn reset"))
	assert.Equal(t, "internal_database_error: query failed: conn reset", wrapped.Error())
}

func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeUpstreamFlights, "amadeus down", nil)
	chain := fmt.Errorf("pricing: %w", appErr)

	var target *AppError
	assert.True(t, errors.As(chain, &target))
	assert.Equal(t, ErrCodeUpstreamFlights, target.Code)
	assert.True(t, IsCode(chain, ErrCodeUpstreamFlights))
	assert.False(t, IsCode(chain, ErrCodeUpstreamForecast))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeUpstreamFlights))
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidIATA, http.StatusBadRequest},
		{ErrCodeAuthTokenInvalid, http.StatusUnauthorized},
		{ErrCodeNotFoundRule, http.StatusNotFound},
		{ErrCodeEmailBlocked, http.StatusForbidden},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.HTTPStatus(), string(tt.code))
	}
}

func TestAppErrorWithDetailsDoesNotMutate(t *testing.T) {
	base := NewAppError(ErrCodeValidationInvalidRule, "bad", nil).WithDetails(map[string]any{"a": 1})
	derived := base.WithDetails(map[string]any{"b": 2})

	assert.Len(t, base.Details, 1)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, derived.Details)
}

package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "x"), http.StatusBadRequest},
		{"site_not_found_is_validation", domain.NewDomainError(domain.ErrorCodeSiteNotFound, "x"), http.StatusBadRequest},
		{"session_not_found", domain.NewDomainError(domain.ErrorCodeSessionNotFound, "x"), http.StatusNotFound},
		{"transaction_not_found", domain.NewDomainError(domain.ErrorCodeTransactionNotFound, "x"), http.StatusNotFound},
		{"token_invalid", domain.NewDomainError(domain.ErrorCodeTokenInvalid, "x"), http.StatusForbidden},
		{"token_expired", domain.NewDomainError(domain.ErrorCodeTokenExpired, "x"), http.StatusForbidden},
		{"already_processed", domain.NewDomainError(domain.ErrorCodeSessionAlreadyProcessed, "x"), http.StatusConflict},
		{"gateway_timeout", domain.NewDomainError(domain.ErrorCodeGatewayTimeout, "x"), http.StatusGatewayTimeout},
		{"upstream", domain.NewDomainError(domain.ErrorCodeUpstreamUnavailable, "x"), http.StatusBadGateway},
		{"internal", domain.NewDomainError(domain.ErrorCodeDatabaseError, "x"), http.StatusInternalServerError},
		{"plain_error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusFor(tt.err))
		})
	}
}

func TestError_HidesInternalDetail(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		expectedCode    string
		expectedMessage string
	}{
		{"domain_validation", domain.NewDomainError(domain.ErrorCodeValidationFailed, "bad amount"), "VALIDATION_FAILED", "bad amount"},
		{"database", domain.NewDomainError(domain.ErrorCodeDatabaseError, "pg: conn refused"), "INTERNAL_DATABASE_ERROR", "internal error"},
		{"plain", errors.New("secret detail"), "INTERNAL_ERROR", "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, httptest.NewRequest(http.MethodGet, "/x", nil), zap.NewNop(), tt.err)

			var body ErrorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.expectedCode, body.Code)
			assert.Equal(t, tt.expectedMessage, body.Message)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	rec := httptest.NewRecorder()
	require.NoError(t, Decode(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`)), &v))
	assert.Equal(t, "a", v.Name)

	err := Decode(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``)), &v)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))

	err = Decode(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), &v)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))
}

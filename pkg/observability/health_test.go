package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name           string
		deps           map[string]Pinger
		expectedStatus string
		expectedChecks map[string]string
	}{
		{
			name: "all_healthy",
			deps: map[string]Pinger{
				"postgres": PingFunc(func(ctx context.Context) error { return nil }),
				"redis":    PingFunc(func(ctx context.Context) error { return nil }),
			},
			expectedStatus: "healthy",
			expectedChecks: map[string]string{"postgres": "healthy", "redis": "healthy"},
		},
		{
			name: "redis_down",
			deps: map[string]Pinger{
				"postgres": PingFunc(func(ctx context.Context) error { return nil }),
				"redis":    PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
			},
			expectedStatus: "unhealthy",
			expectedChecks: map[string]string{"postgres": "healthy", "redis": "unhealthy: connection refused"},
		},
		{
			name:           "not_configured",
			deps:           map[string]Pinger{"postgres": nil},
			expectedStatus: "healthy",
			expectedChecks: map[string]string{"postgres": "not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := NewHealthChecker(tt.deps).Check(context.Background())
			assert.Equal(t, tt.expectedStatus, status.Status)
			assert.Equal(t, tt.expectedChecks, status.Checks)
		})
	}
}

func TestHealthHandler_UnhealthyReturns503(t *testing.T) {
	checker := NewHealthChecker(map[string]Pinger{
		"postgres": PingFunc(func(ctx context.Context) error { return errors.New("down") }),
	})

	rec := httptest.NewRecorder()
	checker.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
}

func TestHTTPMiddleware_PassesThroughStatus(t *testing.T) {
	h := HTTPMiddleware("test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

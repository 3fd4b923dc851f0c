package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T, rps float64, burst, maxClients int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerSecond: rps,
		Burst:             burst,
		MaxClients:        maxClients,
		CleanupInterval:   time.Hour,
	}, zap.NewNop())
	t.Cleanup(rl.Shutdown)
	return rl
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := newTestLimiter(t, 1, 2, 10)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "limits are per client")
}

func TestRateLimiter_EvictsOldestAtCapacity(t *testing.T) {
	rl := newTestLimiter(t, 1, 1, 2)
	base := time.Now()
	rl.now = func() time.Time { return base }
	rl.Allow("a")
	rl.now = func() time.Time { return base.Add(time.Second) }
	rl.Allow("b")
	rl.Allow("c")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.limiters, 2)
	assert.NotContains(t, rl.limiters, "a")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newTestLimiter(t, 1, 1, 10)
	base := time.Now()
	rl.now = func() time.Time { return base }
	rl.Allow("a")
	rl.now = func() time.Time { return base.Add(2 * time.Hour) }

	assert.Equal(t, 1, rl.cleanup())
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := newTestLimiter(t, 0.001, 1, 10)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trustProxy bool
		expected   string
	}{
		{"strips_port", "192.0.2.1:5555", "", false, "192.0.2.1"},
		{"ignores_forwarded_when_untrusted", "192.0.2.1:5555", "203.0.113.9", false, "192.0.2.1"},
		{"first_forwarded_hop", "192.0.2.1:5555", "203.0.113.9, 10.0.0.1", true, "203.0.113.9"},
		{"bad_forwarded_falls_back", "192.0.2.1:5555", "garbage", true, "192.0.2.1"},
		{"no_port", "192.0.2.1", "", false, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.expected, ClientIP(r, tt.trustProxy))
		})
	}
}

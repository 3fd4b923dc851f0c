package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := BreakerConfig{MaxFailures: 2, Timeout: time.Minute, MaxRequestsHalfOpen: 1}
	return NewClient("test-upstream", server.URL, time.Second, cfg, zap.NewNop()), server
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Do_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		expectedCode domain.ErrorCode
		expectedHTTP int
	}{
		{"not_found_keeps_status", http.StatusNotFound, domain.ErrorCodeUpstreamUnavailable, http.StatusNotFound},
		{"server_error", http.StatusInternalServerError, domain.ErrorCodeUpstreamUnavailable, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error": "nope"})
			})

			err := client.Do(context.Background(), http.MethodGet, "/thing", nil, nil, nil)
			assert.Equal(t, tt.expectedCode, domain.GetErrorCode(err))
			assert.Equal(t, tt.expectedHTTP, StatusCode(err))
		})
	}
}

func TestClient_Do_Timeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.Do(ctx, http.MethodGet, "/slow", nil, nil, nil)
	assert.Equal(t, domain.ErrorCodeGatewayTimeout, domain.GetErrorCode(err))
}

func TestClient_BreakerOpensOnServerErrorsOnly(t *testing.T) {
	var calls int32
	var status int32 = http.StatusBadRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, int(atomic.LoadInt32(&status)), map[string]string{})
	})

	for i := 0; i < 3; i++ {
		_ = client.Do(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "client errors never trip the breaker")

	atomic.StoreInt32(&status, http.StatusServiceUnavailable)
	for i := 0; i < 2; i++ {
		_ = client.Do(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	}
	err := client.Do(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	assert.Equal(t, domain.ErrorCodeUpstreamUnavailable, domain.GetErrorCode(err))
	assert.Equal(t, 0, StatusCode(err), "open breaker short-circuits")
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestSiteClient_GetSite(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/sites/site-1" {
			writeJSON(w, http.StatusOK, domain.Site{ID: "site-1", BusinessGroupID: "bg-1", FraudEnabled: true, PublicKeys: []string{"pk-1"}})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{})
	})
	sites := NewSiteClient(client)

	site, err := sites.GetSite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, "bg-1", site.BusinessGroupID)
	assert.True(t, site.HasPublicKey("pk-1"))

	_, err = sites.GetSite(context.Background(), "ghost")
	assert.Equal(t, domain.ErrorCodeSiteNotFound, domain.GetErrorCode(err))
}

type countingSites struct {
	calls int32
}

func (c *countingSites) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	atomic.AddInt32(&c.calls, 1)
	if siteID == "ghost" {
		return nil, domain.NewDomainError(domain.ErrorCodeSiteNotFound, "site not found")
	}
	return &domain.Site{ID: siteID}, nil
}

func TestSiteCache(t *testing.T) {
	t.Run("serves_fresh_entries_from_memory", func(t *testing.T) {
		next := &countingSites{}
		cache := NewSiteCache(next, time.Minute, 10, zap.NewNop())

		for i := 0; i < 3; i++ {
			site, err := cache.GetSite(context.Background(), "site-1")
			require.NoError(t, err)
			assert.Equal(t, "site-1", site.ID)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
	})

	t.Run("refetches_expired_entries", func(t *testing.T) {
		next := &countingSites{}
		cache := NewSiteCache(next, time.Millisecond, 10, zap.NewNop())

		_, err := cache.GetSite(context.Background(), "site-1")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		_, err = cache.GetSite(context.Background(), "site-1")
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
	})

	t.Run("does_not_cache_errors", func(t *testing.T) {
		next := &countingSites{}
		cache := NewSiteCache(next, time.Minute, 10, zap.NewNop())

		for i := 0; i < 2; i++ {
			_, err := cache.GetSite(context.Background(), "ghost")
			assert.Equal(t, domain.ErrorCodeSiteNotFound, domain.GetErrorCode(err))
		}
		assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
	})

	t.Run("evicts_when_full", func(t *testing.T) {
		next := &countingSites{}
		cache := NewSiteCache(next, time.Minute, 2, zap.NewNop())

		for _, id := range []string{"a", "b", "c"} {
			_, err := cache.GetSite(context.Background(), id)
			require.NoError(t, err)
		}
		assert.Equal(t, 2, cache.size)
	})

	t.Run("invalidate", func(t *testing.T) {
		next := &countingSites{}
		cache := NewSiteCache(next, time.Minute, 10, zap.NewNop())

		_, _ = cache.GetSite(context.Background(), "site-1")
		cache.Invalidate("site-1")
		_, _ = cache.GetSite(context.Background(), "site-1")
		assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
	})
}

func TestFraudClients(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body fraudRequestDTO
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/api/v1/fraud/recommendations":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"recommendations": []domain.FraudRecommendation{{Code: domain.FraudCodeCaptcha, Severity: domain.FraudSeverityAllow, Message: body.SessionID}},
			})
		case "/api/v1/fraud/advice":
			writeJSON(w, http.StatusOK, map[string]bool{"blacklist": true, "force_3ds": true})
		}
	})

	req := ports.FraudRequest{SessionID: "session-1", SiteID: "site-1", IP: "10.0.0.1"}

	recs, err := NewFraudClient(client).Recommendations(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.FraudCodeCaptcha, recs[0].Code)
	assert.Equal(t, "session-1", recs[0].Message)

	advice, err := NewLegacyFraudClient(client).Advice(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, advice.Blacklisted)
	assert.True(t, advice.Force3DS)
	assert.False(t, advice.CaptchaRequired)
}

func TestMemberAndTemplateClients_UnknownMember(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{})
	})

	member, err := NewMemberClient(client).GetMember(context.Background(), "m-1", "site-1", "pk-1")
	require.NoError(t, err)
	assert.Nil(t, member)

	templates, err := NewTemplateClient(client).ListTemplates(context.Background(), "m-1", "session-1")
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestTransactionClient_Submit(t *testing.T) {
	tests := []struct {
		name           string
		response       transactionDTO
		expectedStatus domain.TransactionStatus
		expectSecured  bool
	}{
		{
			name:           "approved_with_3ds",
			response:       transactionDTO{TransactionID: "tx-1", Status: "approved", RawFields: map[string]string{"secured_with_3ds": "true", "three_ds_version": "2"}},
			expectedStatus: domain.TransactionStatusApproved,
			expectSecured:  true,
		},
		{
			name:           "declined",
			response:       transactionDTO{TransactionID: "tx-2", Status: "declined", Decline: &domain.DeclineInfo{Code: "105", Class: domain.ErrorClassDecline}},
			expectedStatus: domain.TransactionStatusDeclined,
		},
		{
			name:           "unrecognized_status_is_unknown",
			response:       transactionDTO{TransactionID: "tx-3", Status: "weird"},
			expectedStatus: domain.TransactionStatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got saleRequestDTO
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/billers/rocketgate/sale", r.URL.Path)
				_ = json.NewDecoder(r.Body).Decode(&got)
				writeJSON(w, http.StatusOK, tt.response)
			})
			biller := domain.Biller{Name: domain.BillerRocketgate, ID: "23423", Supports3DS: true}

			tx, err := NewTransactionClient(client).Submit(context.Background(), ports.SubmitRequest{
				SessionID:      "session-1",
				ItemID:         "item-1",
				Biller:         biller,
				Payment:        domain.PaymentInfo{Type: domain.PaymentTypeCC, CardHash: "hash"},
				IdempotencyKey: "key-1",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, tx.Status)
			assert.Equal(t, domain.BillerRocketgate, tx.BillerName)
			assert.Equal(t, tt.expectSecured, tx.ThreeDS.Secured)
			assert.Equal(t, "key-1", got.IdempotencyKey)
			assert.Equal(t, "23423", got.BillerID)
		})
	}
}

func TestTransactionClient_StartThirdPartyRequiresRedirect(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, transactionDTO{TransactionID: "tx-1", Status: "pending"})
	})

	_, err := NewTransactionClient(client).StartThirdParty(context.Background(), ports.ThirdPartyRequest{
		Biller: domain.Biller{Name: domain.BillerEpoch, ThirdParty: true},
	})
	assert.Equal(t, domain.ErrorCodeGatewayError, domain.GetErrorCode(err))
}

func TestTransactionClient_RetrieveTransaction(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/billers/epoch/transactions/tx-9", r.URL.Path)
		assert.Equal(t, "session-1", r.URL.Query().Get("session_id"))
		writeJSON(w, http.StatusOK, transactionDTO{Status: "declined", Decline: &domain.DeclineInfo{Code: "51"}})
	})

	tx, err := NewTransactionClient(client).RetrieveTransaction(context.Background(), ports.RetrieveTransactionRequest{
		SessionID:     "session-1",
		TransactionID: "tx-9",
		Biller:        domain.Biller{Name: domain.BillerEpoch, ThirdParty: true},
		PaymentType:   domain.PaymentTypeCC,
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-9", tx.TransactionID)
	assert.Equal(t, domain.TransactionStatusDeclined, tx.Status)
	assert.Equal(t, domain.BillerEpoch, tx.BillerName)
}

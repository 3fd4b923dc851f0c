package mgpg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/adapters/upstream"
	"github.com/kevin07696/purchase-gateway/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(upstream.NewClient("mgpg", server.URL, time.Second, upstream.DefaultBreakerConfig(), zap.NewNop()))
}

func TestClient_Init(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/payment/init", r.URL.Path)

		var req InitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pk-1", req.PublicKeyID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(InitResponse{SessionID: "mgpg-1", NextAction: NextAction{Type: ActionValidateCaptcha}})
	})

	resp, err := client.Init(context.Background(), InitRequest{PublicKeyID: "pk-1"})
	require.NoError(t, err)
	assert.Equal(t, "mgpg-1", resp.SessionID)
	assert.Equal(t, ActionValidateCaptcha, resp.NextAction.Type)
}

func TestClient_Process(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payment/mgpg-1/process", r.URL.Path)

		var req ProcessRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ProcessResponse{
			SessionID: "mgpg-1",
			Charges:   []ChargeResult{{ChargeID: req.SelectedChargeIDs[0], IsPrimaryCharge: true, Status: StatusSuccess}},
		})
	})

	resp, err := client.Process(context.Background(), "mgpg-1", ProcessRequest{SelectedChargeIDs: []string{"c-1"}})
	require.NoError(t, err)
	require.Len(t, resp.Charges, 1)
	assert.Equal(t, "c-1", resp.Charges[0].ChargeID)
}

func TestClient_UpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Init(context.Background(), InitRequest{})
	assert.Equal(t, domain.ErrorCodeUpstreamUnavailable, domain.GetErrorCode(err))
}

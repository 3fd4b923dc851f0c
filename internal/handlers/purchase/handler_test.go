package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/ng"
	"github.com/kevin07696/purchase-gateway/internal/services/postback"
	"github.com/kevin07696/purchase-gateway/pkg/middleware"
)

const testCallbackSecret = "callback-secret"

type mockService struct {
	mock.Mock
}

func (m *mockService) Init(ctx context.Context, req ng.InitRequest) (*ng.InitResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ng.InitResponse), args.Error(1)
}

func (m *mockService) Process(ctx context.Context, req ng.ProcessRequest) (*ng.ProcessResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ng.ProcessResponse), args.Error(1)
}

func (m *mockService) ValidateCaptcha(ctx context.Context, sessionID string) (*ng.ProcessResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ng.ProcessResponse), args.Error(1)
}

func (m *mockService) Complete3DS(ctx context.Context, req ng.ThreeDSCompleteRequest) (*ng.ProcessResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ng.ProcessResponse), args.Error(1)
}

func (m *mockService) FailedBillers(ctx context.Context, sessionID string) (*ng.FailedBillersResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ng.FailedBillersResponse), args.Error(1)
}

func (m *mockService) Postback(ctx context.Context, n postback.Notification) (*postback.Result, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*postback.Result), args.Error(1)
}

func (m *mockService) Return(ctx context.Context, n postback.Notification) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

func newTestMux(t *testing.T) (*http.ServeMux, *mockService) {
	t.Helper()
	svc := &mockService{}
	mux := http.NewServeMux()
	NewHandler(svc, testCallbackSecret, zap.NewNop()).Register(mux, func(_ string, next http.Handler) http.Handler { return next })
	return mux, svc
}

func serve(mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func signedPostback(target string, body interface{}, secret string) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderCallbackSignature, middleware.SignCallback(payload, secret))
	return req
}

func TestHandler_Init(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		svcErr         error
		expectedStatus int
		expectedCode   string
	}{
		{"success", `{"siteId":"site-1","currency":"USD"}`, nil, http.StatusOK, ""},
		{"malformed_body", `{"siteId":`, nil, http.StatusBadRequest, string(domain.ErrorCodeValidationFailed)},
		{"validation_error", `{"siteId":"site-1"}`, domain.NewDomainError(domain.ErrorCodeSiteNotFound, "site not found"), http.StatusBadRequest, string(domain.ErrorCodeSiteNotFound)},
		{"upstream_error", `{"siteId":"site-1"}`, domain.NewDomainError(domain.ErrorCodeUpstreamUnavailable, "config service down"), http.StatusBadGateway, string(domain.ErrorCodeUpstreamUnavailable)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, svc := newTestMux(t)
			if tt.svcErr != nil {
				svc.On("Init", mock.Anything, mock.Anything).Return(nil, tt.svcErr)
			} else {
				svc.On("Init", mock.Anything, mock.MatchedBy(func(req ng.InitRequest) bool {
					return req.SiteID == "site-1"
				})).Return(&ng.InitResponse{SessionID: "sess-1", State: "validated"}, nil)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/purchase/init", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := serve(mux, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Contains(t, w.Body.String(), tt.expectedCode)
				return
			}
			var resp ng.InitResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "sess-1", resp.SessionID)
		})
	}
}

func TestHandler_Process_FillsClientIP(t *testing.T) {
	mux, svc := newTestMux(t)
	svc.On("Process", mock.Anything, mock.MatchedBy(func(req ng.ProcessRequest) bool {
		return req.SessionID == "sess-1" && req.ClientIP == "192.0.2.1"
	})).Return(&ng.ProcessResponse{SessionID: "sess-1", State: "processed", Success: true}, nil)

	w := serve(mux, jsonRequest(http.MethodPost, "/api/v1/purchase/process", ng.ProcessRequest{SessionID: "sess-1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestHandler_Process_StateErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"already_processed", domain.NewDomainError(domain.ErrorCodeSessionAlreadyProcessed, "done"), http.StatusConflict},
		{"not_found", domain.NewDomainError(domain.ErrorCodeSessionNotFound, "missing"), http.StatusNotFound},
		{"biller_timeout", domain.NewDomainError(domain.ErrorCodeGatewayTimeout, "slow"), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, svc := newTestMux(t)
			svc.On("Process", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := serve(mux, jsonRequest(http.MethodPost, "/api/v1/purchase/process", ng.ProcessRequest{SessionID: "sess-1"}))
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestHandler_ValidateCaptcha(t *testing.T) {
	mux, svc := newTestMux(t)
	svc.On("ValidateCaptcha", mock.Anything, "sess-1").
		Return(&ng.ProcessResponse{SessionID: "sess-1", State: "processed"}, nil)

	w := serve(mux, httptest.NewRequest(http.MethodPost, "/api/v1/purchase/captcha/sess-1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestHandler_FailedBillers(t *testing.T) {
	mux, svc := newTestMux(t)
	svc.On("FailedBillers", mock.Anything, "sess-1").Return(&ng.FailedBillersResponse{
		SessionID:     "sess-1",
		FailedBillers: []ng.FailedBiller{{BillerName: "rocketgate", Status: "declined"}},
	}, nil)

	w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/v1/purchase/failed-billers/sess-1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp ng.FailedBillersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.FailedBillers, 1)
	assert.Equal(t, "rocketgate", resp.FailedBillers[0].BillerName)
}

func TestHandler_Complete3DS(t *testing.T) {
	t.Run("form_post", func(t *testing.T) {
		mux, svc := newTestMux(t)
		svc.On("Complete3DS", mock.Anything, ng.ThreeDSCompleteRequest{SessionID: "sess-1", PaRes: "pares-1", MD: "md-1"}).
			Return(&ng.ProcessResponse{SessionID: "sess-1", State: "processed"}, nil)

		form := url.Values{"PaRes": {"pares-1"}, "MD": {"md-1"}}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/purchase/threed/complete/sess-1", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		assert.Equal(t, http.StatusOK, serve(mux, req).Code)
		svc.AssertExpectations(t)
	})

	t.Run("json_post_uses_path_session", func(t *testing.T) {
		mux, svc := newTestMux(t)
		svc.On("Complete3DS", mock.Anything, ng.ThreeDSCompleteRequest{SessionID: "sess-1", Flow: "frictionless"}).
			Return(&ng.ProcessResponse{SessionID: "sess-1", State: "processed"}, nil)

		req := jsonRequest(http.MethodPost, "/api/v1/purchase/threed/complete/sess-1",
			ng.ThreeDSCompleteRequest{SessionID: "other", Flow: "frictionless"})

		assert.Equal(t, http.StatusOK, serve(mux, req).Code)
		svc.AssertExpectations(t)
	})
}

func TestHandler_Return(t *testing.T) {
	t.Run("redirects_payer", func(t *testing.T) {
		mux, svc := newTestMux(t)
		svc.On("Return", mock.Anything, mock.MatchedBy(func(n postback.Notification) bool {
			return n.SessionID == "sess-1" &&
				n.TransactionID == "tx-1" &&
				n.Status == domain.TransactionStatusApproved &&
				n.RawFields["ref"] == "abc"
		})).Return("https://client.example.com/return?sessionId=sess-1", nil)

		w := serve(mux, httptest.NewRequest(http.MethodGet,
			"/api/v1/purchase/return/sess-1?transactionId=tx-1&status=approved&ref=abc", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://client.example.com/return?sessionId=sess-1", w.Header().Get("Location"))
	})

	t.Run("unknown_transaction", func(t *testing.T) {
		mux, svc := newTestMux(t)
		svc.On("Return", mock.Anything, mock.Anything).
			Return("", domain.NewDomainError(domain.ErrorCodeTransactionNotFound, "no such transaction"))

		w := serve(mux, httptest.NewRequest(http.MethodGet, "/api/v1/purchase/return/sess-1?transactionId=ghost", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandler_Postback(t *testing.T) {
	tests := []struct {
		name           string
		body           Notification
		svcErr         error
		expectedStatus int
	}{
		{"applied", Notification{TransactionID: "tx-1", Status: "approved"}, nil, http.StatusOK},
		{"already_processed", Notification{TransactionID: "tx-1", Status: "approved"}, domain.NewDomainError(domain.ErrorCodeSessionAlreadyProcessed, "done"), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, svc := newTestMux(t)
			if tt.svcErr != nil {
				svc.On("Postback", mock.Anything, mock.Anything).Return(nil, tt.svcErr)
			} else {
				svc.On("Postback", mock.Anything, mock.MatchedBy(func(n postback.Notification) bool {
					return n.SessionID == "sess-1" && n.Status == domain.TransactionStatusApproved
				})).Return(&postback.Result{
					SessionID:     "sess-1",
					State:         domain.StateProcessed,
					TransactionID: "tx-1",
					Status:        domain.TransactionStatusApproved,
				}, nil)
			}

			w := serve(mux, signedPostback("/api/v1/purchase/postback/sess-1", tt.body, testCallbackSecret))
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.svcErr == nil {
				var ack PostbackAck
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
				assert.Equal(t, "processed", ack.State)
			}
		})
	}
}

func TestHandler_Postback_RejectsUnsignedNotifications(t *testing.T) {
	body := Notification{TransactionID: "tx-1", Status: "approved"}
	tests := []struct {
		name    string
		request func() *http.Request
	}{
		{"unsigned", func() *http.Request {
			return jsonRequest(http.MethodPost, "/api/v1/purchase/postback/sess-1", body)
		}},
		{"signed_with_wrong_secret", func() *http.Request {
			return signedPostback("/api/v1/purchase/postback/sess-1", body, "attacker-secret")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, svc := newTestMux(t)

			w := serve(mux, tt.request())

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			svc.AssertNotCalled(t, "Postback", mock.Anything, mock.Anything)
		})
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		in       string
		expected domain.TransactionStatus
	}{
		{"approved", domain.TransactionStatusApproved},
		{"success", domain.TransactionStatusApproved},
		{"declined", domain.TransactionStatusDeclined},
		{"failed", domain.TransactionStatusDeclined},
		{"pending", domain.TransactionStatusPending},
		{"", domain.TransactionStatusUnknown},
		{"weird", domain.TransactionStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, toStatus(tt.in))
		})
	}
}

func TestNotification_DeclineInfo(t *testing.T) {
	n := Notification{Status: "declined", DeclineCode: "51", DeclineReason: "insufficient funds"}.toNotification("sess-1")
	require.NotNil(t, n.Decline)
	assert.Equal(t, "51", n.Decline.Code)

	clean := Notification{Status: "approved"}.toNotification("sess-1")
	assert.Nil(t, clean.Decline)
}

package bridge

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/adapters/memory"
	"github.com/kevin07696/purchase-gateway/internal/adapters/mgpg"
	"github.com/kevin07696/purchase-gateway/internal/auth"
	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/ng"
	"github.com/kevin07696/purchase-gateway/internal/testutil/fixtures"
	"github.com/kevin07696/purchase-gateway/internal/testutil/mocks"
	"github.com/kevin07696/purchase-gateway/pkg/resilience"
)

const testSessionID = "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"

type mockMGPG struct {
	mock.Mock
}

func (m *mockMGPG) Init(ctx context.Context, req mgpg.InitRequest) (*mgpg.InitResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mgpg.InitResponse), args.Error(1)
}

func (m *mockMGPG) Process(ctx context.Context, sessionID string, req mgpg.ProcessRequest) (*mgpg.ProcessResponse, error) {
	args := m.Called(ctx, sessionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mgpg.ProcessResponse), args.Error(1)
}

type recordingRelay struct {
	targets   []string
	postbacks []ng.Postback
	err       error
}

func (r *recordingRelay) Deliver(ctx context.Context, target string, pb ng.Postback) error {
	r.targets = append(r.targets, target)
	r.postbacks = append(r.postbacks, pb)
	return r.err
}

type harness struct {
	svc    *Service
	sites  *mocks.MockSiteRepository
	client *mockMGPG
	tokens *auth.ResumeTokens
	relay  *recordingRelay
	store  *memory.ChargeIdentityStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	keys := auth.NewKeyring(nil, "", "k1")
	require.NoError(t, keys.AddKey("k1", []byte(strings.Repeat("k", auth.MinKeyLength))))
	tokens := auth.NewResumeTokens(keys, "purchase-gateway", 0)

	h := &harness{
		sites:  new(mocks.MockSiteRepository),
		client: &mockMGPG{},
		tokens: tokens,
		relay:  &recordingRelay{},
		store:  memory.NewChargeIdentityStore(),
	}
	for _, id := range []string{"site-1", "site-2"} {
		h.sites.On("GetSite", mock.Anything, id).Return(fixtures.NewSite(id).Build(), nil)
	}
	h.sites.On("GetSite", mock.Anything, mock.Anything).Return(nil, domain.ErrSiteNotFound)

	h.svc = NewService(
		Config{CallbackBaseURL: "https://gateway.example.com", Timeouts: resilience.TestTimeoutConfig()},
		h.sites,
		h.client,
		mgpg.NewTranslator(),
		tokens,
		h.store,
		h.relay,
		zap.NewNop(),
	)
	return h
}

func initRequest() ng.InitRequest {
	return ng.InitRequest{
		SessionID:   testSessionID,
		SiteID:      "site-1",
		BundleID:    "bundle-1",
		AddonID:     "addon-1",
		PublicKeyID: "pk-1",
		Currency:    "USD",
		PaymentType: domain.PaymentTypeCC,
		ClientIP:    "10.0.0.1",
		RedirectURL: "https://client.example.com/done?ref=1",
		PostbackURL: "https://client.example.com/postback",
		Charge:      ng.Charge{Amount: decimal.RequireFromString("9.99"), InitialDays: 30},
		CrossSales: []ng.CrossSale{
			{SiteID: "site-2", BundleID: "bundle-2", AddonID: "addon-2", Charge: ng.Charge{Amount: decimal.RequireFromString("1.00"), InitialDays: 3}},
		},
	}
}

// tokenFrom extracts the resume token from a callback URL
func tokenFrom(t *testing.T, callback, path string) string {
	t.Helper()
	u, err := url.Parse(callback)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u.Path, path), u.Path)
	return strings.TrimPrefix(u.Path, path)
}

func (h *harness) init(t *testing.T) mgpg.InitRequest {
	t.Helper()
	var sent mgpg.InitRequest
	h.client.On("Init", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(mgpg.InitRequest) }).
		Return(&mgpg.InitResponse{SessionID: "mgpg-1", Billers: []string{"rocketgate"}}, nil).Once()

	out, err := h.svc.Init(context.Background(), initRequest())
	require.NoError(t, err)
	require.Equal(t, testSessionID, out.SessionID)
	return sent
}

func TestInit_EmbedsResumeTokenInCallbacks(t *testing.T) {
	h := newHarness(t)
	sent := h.init(t)

	assert.True(t, strings.HasPrefix(sent.Invoice.RedirectURL, "https://gateway.example.com"+ReturnPath))
	token := tokenFrom(t, sent.Invoice.RedirectURL, ReturnPath)
	assert.Equal(t, token, tokenFrom(t, sent.Invoice.PostbackURL, PostbackPath))

	claims, err := h.tokens.Parse(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, testSessionID, claims.SessionID)
	assert.Equal(t, "pk-1", claims.PublicKeyID)
	assert.Equal(t, "https://client.example.com/done?ref=1", claims.ReturnURL)
	assert.Equal(t, "https://client.example.com/postback", claims.PostbackURL)

	stored, err := h.store.Load(context.Background(), testSessionID)
	require.NoError(t, err)
	assert.Equal(t, "mgpg-1", mgpg.ChargeIdentity(stored).SessionID())
	assert.Equal(t, sent.Invoice.Charges[0].ChargeID, mgpg.ChargeIdentity(stored).MainChargeID())
}

func TestInit_Failures(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(r *ng.InitRequest)
		expectedCode domain.ErrorCode
	}{
		{"missing_public_key", func(r *ng.InitRequest) { r.PublicKeyID = "" }, domain.ErrorCodeValidationMissingField},
		{"session_id_not_uuid", func(r *ng.InitRequest) { r.SessionID = "abc" }, domain.ErrorCodeValidationFailed},
		{"unknown_site", func(r *ng.InitRequest) { r.SiteID = "site-404" }, domain.ErrorCodeSiteNotFound},
		{"unknown_cross_sale_site", func(r *ng.InitRequest) {
			r.CrossSales = append(r.CrossSales, ng.CrossSale{SiteID: "site-9", BundleID: "bundle-9", AddonID: "addon-9"})
		}, domain.ErrorCodeCrossSaleSiteNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := initRequest()
			tt.mutate(&req)

			_, err := h.svc.Init(context.Background(), req)
			assert.Equal(t, tt.expectedCode, domain.GetErrorCode(err))
			h.client.AssertNotCalled(t, "Init", mock.Anything, mock.Anything)

			_, err = h.store.Load(context.Background(), testSessionID)
			assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSessionNotFound), "nothing stored")
		})
	}
}

func TestInit_UpstreamFailureStoresNothing(t *testing.T) {
	h := newHarness(t)
	h.client.On("Init", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrorCodeUpstreamUnavailable, "down"))

	_, err := h.svc.Init(context.Background(), initRequest())
	assert.Equal(t, domain.ErrorCodeUpstreamUnavailable, domain.GetErrorCode(err))

	_, err = h.store.Load(context.Background(), testSessionID)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSessionNotFound))
}

func TestProcess_SelectsChargesAndTranslatesResult(t *testing.T) {
	h := newHarness(t)
	sent := h.init(t)
	mainCharge, crossCharge := sent.Invoice.Charges[0].ChargeID, sent.Invoice.Charges[1].ChargeID

	h.client.On("Process", mock.Anything, "mgpg-1", mock.MatchedBy(func(req mgpg.ProcessRequest) bool {
		return len(req.SelectedChargeIDs) == 2 && req.SelectedChargeIDs[0] == mainCharge && req.SelectedChargeIDs[1] == crossCharge
	})).Return(&mgpg.ProcessResponse{
		SessionID: "mgpg-1",
		Charges: []mgpg.ChargeResult{
			{ChargeID: mainCharge, IsPrimaryCharge: true, Status: mgpg.StatusSuccess, TransactionID: "tx-1", BillerName: "rocketgate"},
			{ChargeID: crossCharge, Status: mgpg.StatusSuccess, TransactionID: "tx-2", BillerName: "rocketgate"},
		},
	}, nil)

	out, err := h.svc.Process(context.Background(), ng.ProcessRequest{
		SessionID:          testSessionID,
		Payment:            ng.PaymentInput{Type: domain.PaymentTypeCC, CardHash: "hash"},
		SelectedCrossSales: []ng.ItemRef{{SiteID: "site-2", BundleID: "bundle-2", AddonID: "addon-2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, testSessionID, out.SessionID)
	assert.True(t, out.Success)
	assert.Equal(t, string(domain.StateProcessed), out.State)
	require.NotNil(t, out.Result)
	assert.Equal(t, "tx-1", out.Result.TransactionID)
	require.Len(t, out.CrossSales, 1)
	h.client.AssertExpectations(t)
}

func TestProcess_Failures(t *testing.T) {
	t.Run("unknown_session", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Process(context.Background(), ng.ProcessRequest{SessionID: testSessionID})
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSessionNotFound))
	})

	t.Run("cross_sale_not_offered", func(t *testing.T) {
		h := newHarness(t)
		h.init(t)
		_, err := h.svc.Process(context.Background(), ng.ProcessRequest{
			SessionID:          testSessionID,
			SelectedCrossSales: []ng.ItemRef{{SiteID: "site-9"}},
		})
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))
		h.client.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReturn(t *testing.T) {
	h := newHarness(t)
	sent := h.init(t)
	token := tokenFrom(t, sent.Invoice.RedirectURL, ReturnPath)

	target, err := h.svc.Return(context.Background(), token)
	require.NoError(t, err)
	u, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "client.example.com", u.Host)
	assert.Equal(t, "/done", u.Path)
	assert.Equal(t, "1", u.Query().Get("ref"))
	assert.Equal(t, testSessionID, u.Query().Get("sessionId"))
}

func TestReturn_RejectsForgedToken(t *testing.T) {
	h := newHarness(t)
	sent := h.init(t)
	token := tokenFrom(t, sent.Invoice.RedirectURL, ReturnPath)

	_, err := h.svc.Return(context.Background(), token[:len(token)-2]+"xx")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTokenInvalid))
}

func TestReturn_WithoutReturnURL(t *testing.T) {
	h := newHarness(t)
	token, err := h.tokens.Issue(context.Background(), auth.ResumeClaims{SessionID: testSessionID, PublicKeyID: "pk-1"})
	require.NoError(t, err)

	_, err = h.svc.Return(context.Background(), token)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeMissingRedirectURL))
}

func TestPostback_RelaysTranslatedPayload(t *testing.T) {
	h := newHarness(t)
	sent := h.init(t)
	token := tokenFrom(t, sent.Invoice.PostbackURL, PostbackPath)

	err := h.svc.Postback(context.Background(), token, mgpg.Postback{
		ChargeID:        sent.Invoice.Charges[0].ChargeID,
		IsPrimaryCharge: true,
		TransactionID:   "tx-1",
		BillerName:      "epoch",
		Status:          mgpg.StatusSuccess,
	})
	require.NoError(t, err)

	require.Len(t, h.relay.postbacks, 1)
	assert.Equal(t, "https://client.example.com/postback", h.relay.targets[0])
	pb := h.relay.postbacks[0]
	assert.Equal(t, testSessionID, pb.SessionID)
	assert.Equal(t, ng.PostbackTypeSale, pb.Type)
	assert.Equal(t, "site-1", pb.SiteID)
	assert.Equal(t, string(domain.TransactionStatusApproved), pb.Status)
	assert.False(t, pb.IsCrossSale)
}

func TestPostback_Failures(t *testing.T) {
	t.Run("invalid_token", func(t *testing.T) {
		h := newHarness(t)
		err := h.svc.Postback(context.Background(), "garbage", mgpg.Postback{})
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTokenInvalid))
		assert.Empty(t, h.relay.postbacks)
	})

	t.Run("relay_failure", func(t *testing.T) {
		h := newHarness(t)
		h.relay.err = errors.New("connection refused")
		sent := h.init(t)

		err := h.svc.Postback(context.Background(), tokenFrom(t, sent.Invoice.PostbackURL, PostbackPath), mgpg.Postback{Status: mgpg.StatusSuccess})
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayError))
	})

	t.Run("no_postback_url_is_dropped", func(t *testing.T) {
		h := newHarness(t)
		token, err := h.tokens.Issue(context.Background(), auth.ResumeClaims{SessionID: testSessionID, PublicKeyID: "pk-1"})
		require.NoError(t, err)

		require.NoError(t, h.svc.Postback(context.Background(), token, mgpg.Postback{Status: mgpg.StatusSuccess}))
		assert.Empty(t, h.relay.postbacks)
	})
}

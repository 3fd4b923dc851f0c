package postback_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/adapters/memory"
	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/services/postback"
	"github.com/kevin07696/purchase-gateway/internal/testutil/fixtures"
)

type harness struct {
	repo       *memory.SessionRepository
	reconciler *postback.Reconciler
}

func newHarness(t *testing.T, sessions ...*domain.PurchaseSession) *harness {
	t.Helper()
	repo := memory.NewSessionRepository()
	for _, s := range sessions {
		require.NoError(t, repo.Create(context.Background(), s))
	}
	return &harness{
		repo:       repo,
		reconciler: postback.NewReconciler(repo, memory.NewLocker(), nil, zap.NewNop()),
	}
}

func pendingTx(t *testing.T, s *domain.PurchaseSession) domain.Transaction {
	t.Helper()
	tx, ok := s.MainItem().LastTransaction()
	require.True(t, ok)
	return tx
}

func TestReconciler_Apply(t *testing.T) {
	tests := []struct {
		name          string
		status        domain.TransactionStatus
		expectedState domain.SessionState
	}{
		{"approval_completes_session", domain.TransactionStatusApproved, domain.StateProcessed},
		{"decline_aborts_session", domain.TransactionStatusDeclined, domain.StateAborted},
		{"pending_keeps_session_parked", domain.TransactionStatusPending, domain.StatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := fixtures.NewSession().Pending()
			h := newHarness(t, session)
			tx := pendingTx(t, session)

			result, err := h.reconciler.Apply(context.Background(), postback.Notification{
				Kind:          postback.KindPostback,
				SessionID:     session.ID(),
				TransactionID: tx.TransactionID,
				Status:        tt.status,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expectedState, result.State)
			assert.Equal(t, session.MainItem().ItemID, result.ItemID)
			assert.False(t, result.IsCrossSale)

			stored, err := h.repo.Get(context.Background(), session.ID())
			require.NoError(t, err)
			assert.Equal(t, tt.expectedState, stored.State())
			assert.Equal(t, 2, stored.MainItem().Transactions.Len())
			last, _ := stored.MainItem().LastTransaction()
			assert.Equal(t, tx.BillerName, last.BillerName, "biller carried over from the pending attempt")
		})
	}
}

func TestReconciler_ResolvesByItemID(t *testing.T) {
	session := fixtures.NewSession().Pending()
	h := newHarness(t, session)

	result, err := h.reconciler.Apply(context.Background(), postback.Notification{
		SessionID: session.ID(),
		ItemID:    session.MainItem().ItemID,
		Status:    domain.TransactionStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, pendingTx(t, session).TransactionID, result.TransactionID)
}

func TestReconciler_ItemIDFallsBackToTransactionID(t *testing.T) {
	session := fixtures.NewSession().Pending()
	h := newHarness(t, session)
	tx := pendingTx(t, session)

	result, err := h.reconciler.Apply(context.Background(), postback.Notification{
		SessionID: session.ID(),
		ItemID:    tx.TransactionID,
		Status:    domain.TransactionStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, tx.TransactionID, result.TransactionID)
	assert.Equal(t, domain.StateProcessed, result.State)
}

func TestReconciler_Rejections(t *testing.T) {
	tests := []struct {
		name         string
		session      func() *domain.PurchaseSession
		notification func(s *domain.PurchaseSession) postback.Notification
		expectedCode domain.ErrorCode
	}{
		{
			name:    "unknown_session",
			session: func() *domain.PurchaseSession { return fixtures.NewSession().Pending() },
			notification: func(s *domain.PurchaseSession) postback.Notification {
				return postback.Notification{SessionID: "missing", TransactionID: "tx", Status: domain.TransactionStatusApproved}
			},
			expectedCode: domain.ErrorCodeSessionNotFound,
		},
		{
			name:    "missing_session_id",
			session: func() *domain.PurchaseSession { return fixtures.NewSession().Pending() },
			notification: func(s *domain.PurchaseSession) postback.Notification {
				return postback.Notification{TransactionID: "tx"}
			},
			expectedCode: domain.ErrorCodeValidationMissingField,
		},
		{
			name:    "unknown_transaction",
			session: func() *domain.PurchaseSession { return fixtures.NewSession().Pending() },
			notification: func(s *domain.PurchaseSession) postback.Notification {
				return postback.Notification{SessionID: s.ID(), TransactionID: "never-seen", Status: domain.TransactionStatusApproved}
			},
			expectedCode: domain.ErrorCodeTransactionNotFound,
		},
		{
			name:    "unknown_item_without_transaction",
			session: func() *domain.PurchaseSession { return fixtures.NewSession().Routed() },
			notification: func(s *domain.PurchaseSession) postback.Notification {
				return postback.Notification{SessionID: s.ID(), ItemID: "unknown-item", Status: domain.TransactionStatusApproved}
			},
			expectedCode: domain.ErrorCodeTransactionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := tt.session()
			h := newHarness(t, session)

			_, err := h.reconciler.Apply(context.Background(), tt.notification(session))
			assert.Equal(t, tt.expectedCode, domain.GetErrorCode(err))
		})
	}
}

func TestReconciler_DuplicateIsRejectedWithoutMutation(t *testing.T) {
	session := fixtures.NewSession().Pending()
	h := newHarness(t, session)
	n := postback.Notification{
		SessionID:     session.ID(),
		TransactionID: pendingTx(t, session).TransactionID,
		Status:        domain.TransactionStatusApproved,
	}

	_, err := h.reconciler.Apply(context.Background(), n)
	require.NoError(t, err)
	before, err := h.repo.Get(context.Background(), session.ID())
	require.NoError(t, err)

	n.Status = domain.TransactionStatusDeclined
	_, err = h.reconciler.Apply(context.Background(), n)
	assert.Equal(t, domain.ErrorCodeSessionAlreadyProcessed, domain.GetErrorCode(err))

	after, err := h.repo.Get(context.Background(), session.ID())
	require.NoError(t, err)
	assert.Equal(t, before.Version(), after.Version())
	assert.Equal(t, domain.StateProcessed, after.State())
	assert.Equal(t, before.MainItem().Transactions.Len(), after.MainItem().Transactions.Len())
}

func TestReconciler_ConcurrentDuplicatesApplyOnce(t *testing.T) {
	session := fixtures.NewSession().Pending()
	h := newHarness(t, session)
	n := postback.Notification{
		SessionID:     session.ID(),
		TransactionID: pendingTx(t, session).TransactionID,
		Status:        domain.TransactionStatusApproved,
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.reconciler.Apply(context.Background(), n); err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	stored, err := h.repo.Get(context.Background(), session.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, stored.MainItem().Transactions.Len())
}

func TestReconciler_CrossSaleDoesNotMoveSession(t *testing.T) {
	cross := fixtures.NewItem("site-2").WithID("cross-1").AsCrossSale().Build()
	session := fixtures.NewSession().WithCrossSale(cross).Pending()
	require.NoError(t, session.RecordCrossSaleAttempt("cross-1", domain.Transaction{
		TransactionID: "cross-tx",
		BillerName:    domain.BillerRocketgate,
		Status:        domain.TransactionStatusPending,
	}))
	h := newHarness(t, session)

	result, err := h.reconciler.Apply(context.Background(), postback.Notification{
		SessionID:     session.ID(),
		TransactionID: "cross-tx",
		Status:        domain.TransactionStatusApproved,
	})
	require.NoError(t, err)
	assert.True(t, result.IsCrossSale)
	assert.Equal(t, domain.StatePending, result.State)
}

func TestReconciler_ApprovalHook(t *testing.T) {
	tests := []struct {
		name         string
		status       domain.TransactionStatus
		expectCalled bool
	}{
		{"runs_before_main_approval", domain.TransactionStatusApproved, true},
		{"skipped_on_decline", domain.TransactionStatusDeclined, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := fixtures.NewSession().Pending()
			h := newHarness(t, session)
			tx := pendingTx(t, session)

			var (
				calls      int
				billerName string
				stateSeen  domain.SessionState
			)
			h.reconciler.OnMainApproval(func(_ context.Context, s *domain.PurchaseSession, biller string) {
				calls++
				billerName = biller
				stateSeen = s.State()
			})

			_, err := h.reconciler.Apply(context.Background(), postback.Notification{
				SessionID:     session.ID(),
				TransactionID: tx.TransactionID,
				Status:        tt.status,
			})
			require.NoError(t, err)

			if !tt.expectCalled {
				assert.Zero(t, calls)
				return
			}
			assert.Equal(t, 1, calls)
			assert.Equal(t, tx.BillerName, billerName)
			assert.Equal(t, domain.StatePending, stateSeen, "hook runs while the session is still pending")
		})
	}
}

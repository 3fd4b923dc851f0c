// Package postback applies asynchronous biller notifications to purchase
// sessions exactly once.
package postback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/internal/services/events"
	"github.com/kevin07696/purchase-gateway/pkg/observability"
)

// Notification kinds
const (
	KindPostback = "postback"
	KindReturn   = "return"
	KindThreeDS  = "three_ds"
)

// Postback outcomes, used as metric labels
const (
	OutcomeApplied          = "applied"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeNotFound         = "not_found"
	OutcomeRejected         = "rejected"
)

// Notification is a biller result that arrived outside the process call
type Notification struct {
	Kind      string
	SessionID string
	// ItemID names the charged item. An id this gateway never charged is
	// treated as the transaction id itself.
	ItemID        string
	TransactionID string
	BillerName    string
	Status        domain.TransactionStatus
	Decline       *domain.DeclineInfo
	ThreeDS       domain.ThreeDSInfo
	RawFields     map[string]string
}

// Result reports what a notification did to its session
type Result struct {
	SessionID     string
	State         domain.SessionState
	ItemID        string
	TransactionID string
	Status        domain.TransactionStatus
	IsCrossSale   bool
	RedirectURL   string
}

// ApprovalHook runs under the session lock right before a notification
// approves the main item. billerName is the biller that approved it.
type ApprovalHook func(ctx context.Context, session *domain.PurchaseSession, billerName string)

// Reconciler serializes notifications per session and applies them
type Reconciler struct {
	repo       ports.SessionRepository
	locker     ports.SessionLocker
	emitter    *events.Emitter
	onApproval ApprovalHook
	logger     *zap.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(repo ports.SessionRepository, locker ports.SessionLocker, emitter *events.Emitter, logger *zap.Logger) *Reconciler {
	return &Reconciler{repo: repo, locker: locker, emitter: emitter, logger: logger}
}

// OnMainApproval registers the hook run before a main-item approval lands
func (r *Reconciler) OnMainApproval(hook ApprovalHook) {
	r.onApproval = hook
}

// Apply locks the session, applies n and saves the result
func (r *Reconciler) Apply(ctx context.Context, n Notification) (*Result, error) {
	start := time.Now()
	if n.SessionID == "" {
		observability.RecordPostback(OutcomeRejected)
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "session id is required")
	}

	unlock, err := r.locker.Lock(ctx, n.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := r.repo.Get(ctx, n.SessionID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeSessionNotFound) {
			observability.RecordPostback(OutcomeNotFound)
			r.logger.Warn("Notification for unknown session",
				zap.String("session_id", n.SessionID),
				zap.String("kind", n.Kind),
			)
		}
		return nil, err
	}

	result, err := r.ApplyToSession(ctx, session, n)
	if err != nil {
		return nil, err
	}

	if err := r.repo.Update(ctx, session); err != nil {
		r.logger.Error("Failed to save session after notification",
			zap.String("session_id", n.SessionID),
			zap.Error(err),
		)
		return nil, err
	}

	r.emitter.Emit(ctx, session, domain.EventPostbackApplied)
	observability.RecordPurchaseOperation("postback", string(session.State()), time.Since(start).Seconds())
	return result, nil
}

// ApplyToSession applies n to an already loaded session. The caller holds
// the session lock and saves the session.
func (r *Reconciler) ApplyToSession(ctx context.Context, session *domain.PurchaseSession, n Notification) (*Result, error) {
	item, txID, err := resolve(session, n)
	if err != nil {
		observability.RecordPostback(OutcomeNotFound)
		r.logger.Warn("Notification references unknown transaction",
			zap.String("session_id", session.ID()),
			zap.String("item_id", n.ItemID),
			zap.String("transaction_id", n.TransactionID),
		)
		return nil, err
	}

	if session.IsTerminal() {
		observability.RecordPostback(OutcomeAlreadyProcessed)
		r.logger.Info("Notification for finished session rejected",
			zap.String("session_id", session.ID()),
			zap.String("state", string(session.State())),
			zap.String("transaction_id", txID),
		)
		return nil, domain.NewDomainError(domain.ErrorCodeSessionAlreadyProcessed, "purchase session already processed").
			WithDetail("session_id", session.ID()).
			WithDetail("state", string(session.State()))
	}

	if prior, ok := item.Transactions.Find(txID); ok && prior.Status.IsTerminal() {
		observability.RecordPostback(OutcomeAlreadyProcessed)
		return nil, domain.NewDomainError(domain.ErrorCodeSessionAlreadyProcessed, "transaction already reconciled").
			WithDetail("session_id", session.ID()).
			WithDetail("transaction_id", txID)
	}

	tx := domain.Transaction{
		TransactionID: txID,
		BillerName:    n.BillerName,
		PaymentType:   session.Payment().Type,
		Status:        n.Status,
		Decline:       n.Decline,
		ThreeDS:       n.ThreeDS,
		RawFields:     n.RawFields,
	}
	if prior, ok := item.Transactions.Find(txID); ok {
		if tx.BillerName == "" {
			tx.BillerName = prior.BillerName
		}
		if !tx.ThreeDS.Secured && prior.ThreeDS.Secured {
			tx.ThreeDS = prior.ThreeDS
		}
	}

	if r.onApproval != nil && !item.IsCrossSale &&
		tx.Status == domain.TransactionStatusApproved && session.State() == domain.StatePending {
		r.onApproval(ctx, session, tx.BillerName)
	}

	if err := session.ApplyAsyncResult(item, tx); err != nil {
		observability.RecordPostback(OutcomeRejected)
		return nil, err
	}

	observability.RecordPostback(OutcomeApplied)
	r.logger.Info("Notification applied",
		zap.String("session_id", session.ID()),
		zap.String("kind", n.Kind),
		zap.String("item_id", item.ItemID),
		zap.String("transaction_id", txID),
		zap.String("status", string(tx.Status)),
		zap.String("state", string(session.State())),
	)
	return &Result{
		SessionID:     session.ID(),
		State:         session.State(),
		ItemID:        item.ItemID,
		TransactionID: txID,
		Status:        tx.Status,
		IsCrossSale:   item.IsCrossSale,
		RedirectURL:   session.RedirectURL(),
	}, nil
}

// resolve finds the item and transaction id a notification refers to
func resolve(session *domain.PurchaseSession, n Notification) (*domain.InitializedItem, string, error) {
	txID := n.TransactionID
	if n.ItemID != "" {
		if item, ok := session.Item(n.ItemID); ok {
			if txID == "" {
				last, ok := item.LastTransaction()
				if !ok {
					return nil, "", notFound(session.ID(), n.ItemID)
				}
				txID = last.TransactionID
			}
			return item, txID, nil
		}
		if txID == "" {
			txID = n.ItemID
		}
	}
	if txID == "" {
		return nil, "", notFound(session.ID(), n.ItemID)
	}
	item, ok := session.ItemByTransaction(txID)
	if !ok {
		return nil, "", notFound(session.ID(), txID)
	}
	return item, txID, nil
}

func notFound(sessionID, ref string) error {
	return domain.NewDomainError(domain.ErrorCodeTransactionNotFound, "transaction not found in session").
		WithDetail("session_id", sessionID).
		WithDetail("reference", ref)
}

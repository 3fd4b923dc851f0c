package purchase

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/internal/services/postback"
)

// Postback applies a biller's server-to-server notification. The handler
// has already verified its signature.
func (s *Service) Postback(ctx context.Context, n postback.Notification) (*postback.Result, error) {
	n.Kind = postback.KindPostback
	return s.reconciler.Apply(ctx, n)
}

// Return resolves the client URL a payer continues to after a third-party
// biller. The payer's parameters are never trusted: while the session is
// pending, the outcome of its pending transaction is asked from the
// transaction service and applied only when the biller settled it.
func (s *Service) Return(ctx context.Context, n postback.Notification) (string, error) {
	if n.SessionID == "" {
		return "", domain.NewDomainError(domain.ErrorCodeValidationMissingField, "session id is required")
	}
	ctx, cancel := s.cfg.Timeouts.OperationContext(ctx)
	defer cancel()

	session, err := s.repo.Get(ctx, n.SessionID)
	if err != nil {
		return "", err
	}
	if session.State() == domain.StatePending {
		s.confirmReturn(ctx, session, n.TransactionID)
	}

	redirect := session.RedirectURL()
	if redirect == "" {
		return "", domain.NewDomainError(domain.ErrorCodeMissingRedirectURL, "purchase has no return url").
			WithDetail("session_id", n.SessionID)
	}
	target, err := url.Parse(redirect)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeMissingRedirectURL, "invalid return url", err)
	}
	q := target.Query()
	q.Set("sessionId", n.SessionID)
	target.RawQuery = q.Encode()

	s.logger.Info("Payer returned from biller",
		zap.String("session_id", n.SessionID),
		zap.String("transaction_id", n.TransactionID),
	)
	return target.String(), nil
}

// confirmReturn settles the pending main transaction from the biller's
// answer. Failures leave the session pending for the postback.
func (s *Service) confirmReturn(ctx context.Context, session *domain.PurchaseSession, claimedTxID string) {
	pending, ok := session.MainItem().LastTransaction()
	if !ok || pending.Status.IsTerminal() {
		return
	}
	if claimedTxID != "" && claimedTxID != pending.TransactionID {
		s.logger.Warn("Return names a transaction the session is not waiting on",
			zap.String("session_id", session.ID()),
			zap.String("claimed_transaction_id", claimedTxID),
			zap.String("pending_transaction_id", pending.TransactionID),
		)
	}
	entry, ok := session.Cascade().Entry(pending.BillerName)
	if !ok {
		return
	}

	bctx, cancel := s.cfg.Timeouts.BillerCallContext(ctx)
	tx, err := s.transactions.RetrieveTransaction(bctx, ports.RetrieveTransactionRequest{
		SessionID:     session.ID(),
		TransactionID: pending.TransactionID,
		Biller:        entry.Biller,
		PaymentType:   session.Payment().Type,
	})
	cancel()
	if err != nil {
		s.logger.Warn("Could not confirm return with biller, waiting for postback",
			zap.String("session_id", session.ID()),
			zap.String("transaction_id", pending.TransactionID),
			zap.Error(err),
		)
		return
	}
	if !tx.Status.IsTerminal() {
		return
	}

	_, err = s.reconciler.Apply(ctx, postback.Notification{
		Kind:          postback.KindReturn,
		SessionID:     session.ID(),
		TransactionID: pending.TransactionID,
		BillerName:    entry.Biller.Name,
		Status:        tx.Status,
		Decline:       tx.Decline,
		ThreeDS:       tx.ThreeDS,
		RawFields:     tx.RawFields,
	})
	if err != nil && !domain.IsDomainError(err, domain.ErrorCodeSessionAlreadyProcessed) {
		s.logger.Error("Failed to apply confirmed return",
			zap.String("session_id", session.ID()),
			zap.String("transaction_id", pending.TransactionID),
			zap.Error(err),
		)
	}
}

// chargeOnApproval charges the selected cross-sales with the biller whose
// asynchronous approval is about to complete the session
func (s *Service) chargeOnApproval(ctx context.Context, session *domain.PurchaseSession, billerName string) {
	entry, ok := session.Cascade().Entry(billerName)
	if !ok {
		if len(session.SelectedCrossSales()) > 0 {
			s.logger.Warn("Approving biller not in cascade, cross-sales not charged",
				zap.String("session_id", session.ID()),
				zap.String("biller", billerName),
			)
		}
		return
	}
	s.chargeCrossSales(ctx, session, entry)
}

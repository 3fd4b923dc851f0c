package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/internal/ng"
	"github.com/kevin07696/purchase-gateway/internal/services/cascade"
	"github.com/kevin07696/purchase-gateway/internal/services/fraud"
	"github.com/kevin07696/purchase-gateway/internal/services/postback"
	"github.com/kevin07696/purchase-gateway/pkg/observability"
)

// Process submits payment for an initialized session. Billers are tried in
// cascade order, one at a time, until one approves, the cascade runs out or
// an attempt cannot be retried.
func (s *Service) Process(ctx context.Context, req ng.ProcessRequest) (*ng.ProcessResponse, error) {
	start := time.Now()
	ctx, cancel := s.cfg.Timeouts.OperationContext(ctx)
	defer cancel()

	unlock, err := s.locker.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.load(ctx, req.SessionID, true)
	if err != nil {
		return nil, s.failed(OpProcess, req.SessionID, start, err)
	}
	if session.State() == domain.StatePending {
		return nil, s.failed(OpProcess, req.SessionID, start,
			domain.NewDomainError(domain.ErrorCodeIllegalStateTransition, "purchase session is waiting for the biller").
				WithDetail("session_id", session.ID()).
				WithDetail("state", string(session.State())))
	}

	session.UpdateUser(domain.UserInfo{
		IP:        req.ClientIP,
		Country:   req.Member.Country,
		Email:     req.Member.Email,
		Username:  req.Member.Username,
		FirstName: req.Member.FirstName,
		LastName:  req.Member.LastName,
		ZipCode:   req.Member.ZipCode,
		Phone:     req.Member.Phone,
	})

	if err := s.applyPayment(ctx, session, req); err != nil {
		return nil, s.failed(OpProcess, req.SessionID, start, err)
	}

	keys := make([]domain.ItemKey, len(req.SelectedCrossSales))
	for i, ref := range req.SelectedCrossSales {
		keys[i] = ref.Key()
	}
	if err := session.SelectCrossSales(keys); err != nil {
		return nil, s.failed(OpProcess, req.SessionID, start, err)
	}

	var stepErr error
	switch {
	case session.FraudAdvice().Blacklisted:
		s.logger.Info("Purchase blocked by fraud advice",
			zap.String("session_id", session.ID()),
			zap.String("site_id", session.SiteID()),
		)
		stepErr = session.Abort(domain.AbortReasonBlockedByFraud)
	case session.State() == domain.StateCaptchaPending:
		// Payer must solve the captcha first
	case session.State() == domain.StateThirdPartyPending:
		entry, _ := session.NextBiller()
		stepErr = s.startThirdParty(ctx, session, entry)
	case session.State() == domain.StateProcessing:
		stepErr = s.runCascade(ctx, session)
	default:
		stepErr = domain.NewDomainError(domain.ErrorCodeIllegalStateTransition, "purchase session cannot be processed").
			WithDetail("session_id", session.ID()).
			WithDetail("state", string(session.State()))
	}

	if err := s.save(ctx, session); err != nil {
		return nil, s.failed(OpProcess, req.SessionID, start, err)
	}
	if stepErr != nil {
		return nil, s.failed(OpProcess, req.SessionID, start, stepErr)
	}

	s.emitter.Emit(ctx, session, domain.EventPurchaseProcessed)
	observability.RecordPurchaseOperation(OpProcess, string(session.State()), time.Since(start).Seconds())
	return toProcessResponse(session), nil
}

// applyPayment takes the payment given at process time. A different
// payment type than announced at init re-runs fraud and routing.
func (s *Service) applyPayment(ctx context.Context, session *domain.PurchaseSession, req ng.ProcessRequest) error {
	if req.Payment == (ng.PaymentInput{}) {
		if session.State() == domain.StateValidated {
			_, err := session.Route()
			return err
		}
		return nil
	}

	payment := req.Payment.ToDomain()
	if !session.NeedsFraudReevaluation(payment.Type) {
		session.UpdatePayment(payment)
		if session.State() == domain.StateValidated {
			_, err := session.Route()
			return err
		}
		return nil
	}

	site, err := s.lookupSite(ctx, session.SiteID())
	if err != nil {
		return err
	}
	result := s.reevaluateFraud(ctx, session, site, payment, req.FraudHeaders)

	c, err := s.cascades.Build(ctx, cascade.Request{
		SessionID:       session.ID(),
		SiteID:          site.ID,
		BusinessGroupID: site.BusinessGroupID,
		Country:         session.User().Country,
		PaymentType:     payment.Type,
		PaymentMethod:   payment.Method,
		TrafficSource:   session.TrafficSource(),
		ForceCascade:    session.ForceCascade(),
	})
	if err != nil {
		return err
	}
	c = s.cascades.Apply3DS(c, result.Advice)
	result.Advice = fraud.DetectThreeDS(result.Advice, c.FirstBiller())

	s.logger.Info("Payment type changed, fraud and cascade re-evaluated",
		zap.String("session_id", session.ID()),
		zap.String("from", session.Payment().Type),
		zap.String("to", payment.Type),
		zap.Strings("cascade", c.BillerNames()),
	)
	_, err = session.ChangePayment(payment, result, c)
	return err
}

func (s *Service) reevaluateFraud(ctx context.Context, session *domain.PurchaseSession, site domain.Site, payment domain.PaymentInfo, headers map[string]string) domain.FraudResult {
	in := fraud.Input{
		SessionID:   session.ID(),
		Site:        site,
		MemberID:    session.MemberID(),
		PublicKeyID: session.PublicKeyID(),
		IP:          session.User().IP,
		Country:     session.User().Country,
		Email:       session.User().Email,
		Amount:      session.MainItem().Charge.Amount.String(),
		PaymentType: payment.Type,
		FirstSix:    payment.FirstSix,
		LastFour:    payment.LastFour,
		Headers:     headers,
	}
	if session.MemberID() != "" {
		result, _ := s.fraud.EvaluateExistingMember(ctx, in)
		return result
	}
	return s.fraud.EvaluateNewMember(ctx, in)
}

func (s *Service) lookupSite(ctx context.Context, siteID string) (domain.Site, error) {
	lctx, cancel := s.cfg.Timeouts.UpstreamContext(ctx)
	defer cancel()

	site, err := s.sites.GetSite(lctx, siteID)
	if err != nil {
		return domain.Site{}, err
	}
	return *site, nil
}

// runCascade submits to billers strictly in sequence
func (s *Service) runCascade(ctx context.Context, session *domain.PurchaseSession) error {
	for {
		entry, ok := session.NextBiller()
		if !ok {
			s.logger.Info("Cascade exhausted",
				zap.String("session_id", session.ID()),
				zap.Int("attempts", session.MainItem().Transactions.Len()),
			)
			return session.Abort(domain.AbortReasonCascadeExhausted)
		}
		if entry.Biller.ThirdParty {
			if session.RedirectURL() != "" {
				return s.startThirdParty(ctx, session, entry)
			}
			s.logger.Warn("Third-party biller reached without redirect url, skipping",
				zap.String("session_id", session.ID()),
				zap.String("biller", entry.Biller.Name),
			)
			if err := session.RemoveBiller(entry.Biller.Name, domain.RemovalReasonNoRedirectURL); err != nil {
				return err
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return domain.WrapError(domain.ErrorCodeGatewayTimeout, "purchase operation ran out of time", err).
				WithDetail("session_id", session.ID())
		}

		req := s.submitRequest(session, session.MainItem(), entry)
		tx, err := s.submit(ctx, req)
		if err != nil {
			if !isUnknownOutcome(err) {
				return err
			}
			// The biller may have charged; park the session for reconciliation
			s.logger.Error("Biller outcome unknown, parking session",
				zap.String("session_id", session.ID()),
				zap.String("biller", entry.Biller.Name),
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err),
			)
			observability.RecordCascadeSubmit(entry.Biller.Name, string(domain.TransactionStatusUnknown))
			unknown := domain.Transaction{
				TransactionID: req.IdempotencyKey,
				BillerName:    entry.Biller.Name,
				PaymentType:   session.Payment().Type,
				Status:        domain.TransactionStatusUnknown,
			}
			if err := session.RecordAttempt(unknown); err != nil {
				return err
			}
			return session.MarkPending()
		}

		if tx.BillerName == "" {
			tx.BillerName = entry.Biller.Name
		}
		if err := session.RecordAttempt(*tx); err != nil {
			return err
		}
		observability.RecordCascadeSubmit(entry.Biller.Name, string(tx.Status))

		switch tx.Status {
		case domain.TransactionStatusApproved:
			s.chargeCrossSales(ctx, session, entry)
			return session.Complete()
		case domain.TransactionStatusPending, domain.TransactionStatusUnknown:
			return session.MarkPending()
		default:
			if tx.Decline != nil && !tx.Decline.Class.Retryable() {
				s.logger.Info("Non-retryable biller error, stopping cascade",
					zap.String("session_id", session.ID()),
					zap.String("biller", entry.Biller.Name),
					zap.String("decline_code", tx.Decline.Code),
				)
				return session.Abort(domain.AbortReasonNonRetryable)
			}
			s.logger.Info("Biller declined, trying next biller",
				zap.String("session_id", session.ID()),
				zap.String("biller", entry.Biller.Name),
			)
		}
	}
}

// chargeCrossSales charges every selected cross-sale once with the biller
// that approved the main item. Calls run concurrently; results are recorded
// in selection order.
func (s *Service) chargeCrossSales(ctx context.Context, session *domain.PurchaseSession, entry domain.CascadeEntry) {
	selected := session.SelectedCrossSales()
	if len(selected) == 0 {
		return
	}
	results := make([]domain.Transaction, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range selected {
		req := s.submitRequest(session, item, entry)
		g.Go(func() error {
			tx, err := s.submit(gctx, req)
			if err != nil {
				s.logger.Error("Cross-sale charge failed",
					zap.String("session_id", session.ID()),
					zap.String("item_id", item.ItemID),
					zap.String("biller", entry.Biller.Name),
					zap.Error(err),
				)
				status := domain.TransactionStatusAborted
				if isUnknownOutcome(err) {
					status = domain.TransactionStatusUnknown
				}
				results[i] = domain.Transaction{
					TransactionID: req.IdempotencyKey,
					BillerName:    entry.Biller.Name,
					PaymentType:   session.Payment().Type,
					Status:        status,
					Decline:       &domain.DeclineInfo{Class: domain.ErrorClassBillerSystem, Message: err.Error()},
				}
				return nil
			}
			if tx.BillerName == "" {
				tx.BillerName = entry.Biller.Name
			}
			results[i] = *tx
			return nil
		})
	}
	// Each charge records its own failure
	_ = g.Wait()

	for i, item := range selected {
		if err := session.RecordCrossSaleAttempt(item.ItemID, results[i]); err != nil {
			s.logger.Error("Failed to record cross-sale attempt",
				zap.String("session_id", session.ID()),
				zap.String("item_id", item.ItemID),
				zap.Error(err),
			)
			continue
		}
		observability.RecordCascadeSubmit(entry.Biller.Name, "cross_sale_"+string(results[i].Status))
	}
}

// startThirdParty asks a redirect-based biller for the payer's URL and
// parks the session until the return or postback arrives.
func (s *Service) startThirdParty(ctx context.Context, session *domain.PurchaseSession, entry domain.CascadeEntry) error {
	item := session.MainItem()
	bctx, cancel := s.cfg.Timeouts.BillerCallContext(ctx)
	defer cancel()

	res, err := s.transactions.StartThirdParty(bctx, ports.ThirdPartyRequest{
		SessionID:   session.ID(),
		ItemID:      item.ItemID,
		Biller:      entry.Biller,
		Amount:      item.Charge.Amount,
		Currency:    session.Currency(),
		SiteID:      session.SiteID(),
		Payment:     session.Payment(),
		User:        session.User(),
		ReturnURL:   s.callbackURL(ReturnPath, session.ID()),
		PostbackURL: s.callbackURL(PostbackPath, session.ID()),
	})
	if err != nil {
		return gatewayError(err, entry.Biller.Name)
	}

	observability.RecordCascadeSubmit(entry.Biller.Name, string(domain.TransactionStatusPending))
	if err := session.RecordAttempt(domain.Transaction{
		TransactionID: res.TransactionID,
		BillerName:    entry.Biller.Name,
		PaymentType:   session.Payment().Type,
		Status:        domain.TransactionStatusPending,
		RedirectURL:   res.RedirectURL,
	}); err != nil {
		return err
	}
	return session.MarkPending()
}

func (s *Service) submit(ctx context.Context, req ports.SubmitRequest) (*domain.Transaction, error) {
	bctx, cancel := s.cfg.Timeouts.BillerCallContext(ctx)
	defer cancel()

	tx, err := s.transactions.Submit(bctx, req)
	if err != nil {
		return nil, gatewayError(err, req.Biller.Name)
	}
	return tx, nil
}

func (s *Service) submitRequest(session *domain.PurchaseSession, item *domain.InitializedItem, entry domain.CascadeEntry) ports.SubmitRequest {
	advice := session.FraudAdvice()
	payment := session.Payment()
	if entry.PaymentMethod != "" {
		payment.Method = entry.PaymentMethod
	}
	return ports.SubmitRequest{
		SessionID:      session.ID(),
		ItemID:         item.ItemID,
		Biller:         entry.Biller,
		Amount:         item.Charge.Amount,
		RebillAmount:   item.Charge.RebillAmount,
		RebillDays:     item.Charge.RebillDays,
		InitialDays:    item.Charge.InitialDays,
		Currency:       session.Currency(),
		SiteID:         item.Key.SiteID,
		Payment:        payment,
		User:           session.User(),
		Detect3DS:      advice.Detect3DSUsage,
		Force3DS:       advice.Force3DS,
		ReturnURL:      s.callbackURL(ThreeDSPath, session.ID()),
		IdempotencyKey: idempotencyKey(session.ID(), item, entry),
	}
}

// idempotencyKey is stable for a given (session, item, biller, attempt)
func idempotencyKey(sessionID string, item *domain.InitializedItem, entry domain.CascadeEntry) string {
	name := fmt.Sprintf("%s:%s:%s:%d", sessionID, item.ItemID, entry.Biller.Name, entry.Submits+1)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// ValidateCaptcha releases a captcha-gated session for processing
func (s *Service) ValidateCaptcha(ctx context.Context, sessionID string) (*ng.ProcessResponse, error) {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.load(ctx, sessionID, true)
	if err != nil {
		return nil, s.failed(OpCaptcha, sessionID, start, err)
	}
	if err := session.ValidateCaptcha(); err != nil {
		return nil, s.failed(OpCaptcha, sessionID, start, err)
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	observability.RecordPurchaseOperation(OpCaptcha, string(session.State()), time.Since(start).Seconds())
	return toProcessResponse(session), nil
}

// Complete3DS finishes the 3DS challenge of the pending main transaction
// and applies the biller's answer like any other asynchronous result.
func (s *Service) Complete3DS(ctx context.Context, req ng.ThreeDSCompleteRequest) (*ng.ProcessResponse, error) {
	start := time.Now()
	ctx, cancel := s.cfg.Timeouts.OperationContext(ctx)
	defer cancel()

	unlock, err := s.locker.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// A pending session stays reconcilable after its TTL
	session, err := s.load(ctx, req.SessionID, false)
	if err != nil {
		return nil, s.failed(OpCompleteThreeDS, req.SessionID, start, err)
	}
	if session.State() != domain.StatePending {
		return nil, s.failed(OpCompleteThreeDS, req.SessionID, start,
			domain.NewDomainError(domain.ErrorCodeIllegalStateTransition, "no 3DS challenge is pending").
				WithDetail("session_id", session.ID()).
				WithDetail("state", string(session.State())))
	}

	pending, _ := session.MainItem().LastTransaction()
	entry, ok := session.Cascade().Entry(pending.BillerName)
	if !ok {
		return nil, domain.NewDomainError(domain.ErrorCodeTransactionNotFound, "pending transaction biller not in cascade").
			WithDetail("biller", pending.BillerName)
	}

	bctx, bcancel := s.cfg.Timeouts.BillerCallContext(ctx)
	tx, err := s.transactions.CompleteThreeDS(bctx, ports.CompleteThreeDSRequest{
		SessionID:     session.ID(),
		TransactionID: pending.TransactionID,
		Biller:        entry.Biller,
		PaRes:         req.PaRes,
		MD:            req.MD,
		Flow:          req.Flow,
	})
	bcancel()
	if err != nil {
		return nil, s.failed(OpCompleteThreeDS, req.SessionID, start, gatewayError(err, entry.Biller.Name))
	}

	// Selected cross-sales are charged by the approval hook
	if _, err := s.reconciler.ApplyToSession(ctx, session, postback.Notification{
		Kind:          postback.KindThreeDS,
		SessionID:     session.ID(),
		TransactionID: pending.TransactionID,
		BillerName:    entry.Biller.Name,
		Status:        tx.Status,
		Decline:       tx.Decline,
		ThreeDS:       tx.ThreeDS,
		RawFields:     tx.RawFields,
	}); err != nil {
		return nil, s.failed(OpCompleteThreeDS, req.SessionID, start, err)
	}

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, session, domain.EventPurchaseProcessed)
	observability.RecordPurchaseOperation(OpCompleteThreeDS, string(session.State()), time.Since(start).Seconds())
	return toProcessResponse(session), nil
}

func (s *Service) failed(operation, sessionID string, start time.Time, err error) error {
	s.logger.Warn("Purchase operation failed",
		zap.String("operation", operation),
		zap.String("session_id", sessionID),
		zap.String("code", string(domain.GetErrorCode(err))),
		zap.Error(err),
	)
	observability.RecordPurchaseOperation(operation, "failed", time.Since(start).Seconds())
	return err
}

// isUnknownOutcome reports whether a biller call may have been executed
// without the gateway learning its result
func isUnknownOutcome(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || domain.IsDomainError(err, domain.ErrorCodeGatewayTimeout)
}

// gatewayError keeps domain errors and classifies everything else
func gatewayError(err error, biller string) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrorCodeGatewayTimeout, "biller call timed out", err).
			WithDetail("biller", biller)
	}
	return domain.WrapError(domain.ErrorCodeGatewayError, "biller call failed", err).
		WithDetail("biller", biller)
}

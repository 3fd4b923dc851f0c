package purchase

import (
	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/ng"
)

func toInitResponse(session *domain.PurchaseSession, templates []domain.PaymentTemplate) *ng.InitResponse {
	fraud := session.Fraud()
	resp := &ng.InitResponse{
		SessionID:            session.ID(),
		State:                string(session.State()),
		PaymentProcessorType: ng.ProcessorGateway,
		Billers:              session.Cascade().BillerNames(),
		FraudAdvice:          fraud.Advice,
		FraudRecommendation:  toRecommendation(fraud.Recommendations.Primary()),
	}
	for _, r := range fraud.Recommendations {
		resp.FraudRecommendations = append(resp.FraudRecommendations, toRecommendation(r))
	}
	for _, t := range templates {
		resp.PaymentTemplates = append(resp.PaymentTemplates, ng.PaymentTemplate{
			TemplateID:           t.TemplateID,
			FirstSix:             t.FirstSix,
			LastFour:             t.LastFour,
			ExpirationYear:       t.ExpirationYear,
			ExpirationMonth:      t.ExpirationMonth,
			BillerName:           t.BillerName,
			IsSafe:               t.IsSafe,
			RequiresVerification: !t.IsSafe && !t.IsBlank(),
		})
	}

	if session.Cascade().FirstBiller().ThirdParty {
		resp.PaymentProcessorType = ng.ProcessorThirdParty
	}

	planned, _ := session.PlannedRoute()
	switch {
	case fraud.Advice.Blacklisted:
		resp.NextAction = ng.NextAction{Type: ng.NextActionFinishProcess, Reason: domain.AbortReasonBlockedByFraud}
	case planned == domain.StateThirdPartyPending:
		resp.NextAction = ng.NextAction{Type: ng.NextActionRedirectToURL, ExternalType: session.Cascade().FirstBiller().Name}
	case planned == domain.StateCaptchaPending:
		resp.NextAction = ng.NextAction{Type: ng.NextActionRenderGateway, ShowCaptcha: true}
	default:
		resp.NextAction = ng.NextAction{Type: ng.NextActionRenderGateway}
	}
	return resp
}

func toProcessResponse(session *domain.PurchaseSession) *ng.ProcessResponse {
	main := session.MainItem()
	resp := &ng.ProcessResponse{
		SessionID:   session.ID(),
		State:       string(session.State()),
		Success:     session.State() == domain.StateProcessed,
		Attempts:    main.Transactions.Len(),
		FraudAdvice: session.FraudAdvice(),
	}

	last, hasAttempt := main.LastTransaction()
	if hasAttempt {
		r := toResult(main, last)
		resp.Result = &r
	}
	for _, cs := range session.SelectedCrossSales() {
		if tx, ok := cs.LastTransaction(); ok {
			resp.CrossSales = append(resp.CrossSales, toResult(cs, tx))
		}
	}

	switch session.State() {
	case domain.StateProcessed:
		resp.NextAction = ng.NextAction{Type: ng.NextActionFinishProcess}
	case domain.StateAborted:
		resp.NextAction = ng.NextAction{Type: ng.NextActionFinishProcess, Reason: session.AbortReason()}
	case domain.StateCaptchaPending:
		resp.NextAction = ng.NextAction{Type: ng.NextActionRenderGateway, ShowCaptcha: true}
	case domain.StatePending:
		switch {
		case hasAttempt && last.RedirectURL != "":
			resp.NextAction = ng.NextAction{Type: ng.NextActionRedirectToURL, URL: last.RedirectURL, ExternalType: last.BillerName}
		case hasAttempt && last.ThreeDS.AuthURL != "":
			resp.NextAction = ng.NextAction{Type: ng.NextActionAuthenticate3D, URL: last.ThreeDS.AuthURL, ThreeDVersion: last.ThreeDS.Version}
		default:
			resp.NextAction = ng.NextAction{Type: ng.NextActionWaitForReturn}
		}
	default:
		resp.NextAction = ng.NextAction{Type: ng.NextActionRenderGateway}
	}
	return resp
}

func toResult(item *domain.InitializedItem, tx domain.Transaction) ng.TransactionResult {
	r := ng.TransactionResult{
		ItemID:         item.ItemID,
		TransactionID:  tx.TransactionID,
		BillerName:     tx.BillerName,
		Status:         string(tx.Status),
		IsCrossSale:    item.IsCrossSale,
		Secured3DS:     tx.ThreeDS.Secured,
		ThreeDVersion:  tx.ThreeDS.Version,
		Frictionless:   tx.ThreeDS.Frictionless,
		SubscriptionID: item.SubscriptionID,
	}
	if tx.Decline != nil {
		r.DeclineCode = tx.Decline.Code
		r.DeclineReason = tx.Decline.Message
		r.ErrorClass = string(tx.Decline.Class)
	}
	return r
}

func toRecommendation(r domain.FraudRecommendation) ng.FraudRecommendation {
	return ng.FraudRecommendation{Severity: r.Severity, Code: r.Code, Message: r.Message}
}

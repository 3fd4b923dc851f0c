package mgpg

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/ng"
)

// Callbacks are the gateway URLs MGPG calls back. Each already carries the
// resume token of the purchase.
type Callbacks struct {
	ReturnURL   string
	PostbackURL string
}

// Translator maps NG requests to MGPG and MGPG responses back to NG
type Translator struct {
	newID func() string
}

// NewTranslator creates a translator generating random charge ids
func NewTranslator() *Translator {
	return &Translator{newID: uuid.NewString}
}

// ToInitRequest flattens the main item and cross-sales into one charge list.
// The first charge is the primary one.
func (t *Translator) ToInitRequest(req ng.InitRequest, cb Callbacks) (InitRequest, ChargeIdentity) {
	ids := ChargeIdentity{}

	main := t.charge(req.SiteID, req.BundleID, req.AddonID, req.Charge)
	main.IsPrimaryCharge = true
	main.Entitlements.MemberID = req.MemberID
	main.Entitlements.SubscriptionID = req.SubscriptionID
	ids.add(req.ItemKey(), main.ChargeID, true)

	charges := []Charge{main}
	for _, cs := range req.CrossSales {
		c := t.charge(cs.SiteID, cs.BundleID, cs.AddonID, cs.Charge)
		c.Entitlements.MemberID = req.MemberID
		ids.add(cs.Key(), c.ChargeID, false)
		charges = append(charges, c)
	}

	return InitRequest{
		Invoice: Invoice{
			InvoiceID:          t.newID(),
			MemberID:           req.MemberID,
			UsingMemberProfile: req.MemberID != "",
			ClientIP:           req.ClientIP,
			ClientCountry:      req.ClientCountry,
			Email:              req.Email,
			Currency:           req.Currency,
			RedirectURL:        cb.ReturnURL,
			PostbackURL:        cb.PostbackURL,
			Charges:            charges,
		},
		Payment:       PaymentSelection{Type: req.PaymentType, Method: req.PaymentMethod},
		FraudHeaders:  req.FraudHeaders,
		TrafficSource: req.TrafficSource,
		PublicKeyID:   req.PublicKeyID,
	}, ids
}

func (t *Translator) charge(siteID, bundleID, addonID string, c ng.Charge) Charge {
	out := Charge{
		ChargeID:                     t.newID(),
		SiteID:                       siteID,
		BusinessTransactionOperation: OperationSingleChargePurchase,
		Price: PriceInfo{
			BasePrice:     c.Amount,
			ExpiresInDays: c.InitialDays,
		},
		Entitlements: Entitlements{SiteID: siteID, BundleID: bundleID, AddonID: addonID},
	}
	if c.RebillDays > 0 {
		out.BusinessTransactionOperation = OperationSubscriptionPurchase
		out.Price.Rebill = &RebillInfo{Amount: c.RebillAmount, Frequency: c.RebillDays}
	}
	if c.Tax != nil {
		out.Tax = &TaxInfo{
			TaxName:          c.Tax.Name,
			TaxRate:          c.Tax.Rate,
			TaxType:          c.Tax.Type,
			InitialAmount:    c.Tax.InitialAmount,
			InitialTax:       c.Tax.InitialTax,
			RebillAmount:     c.Tax.RebillAmount,
			RebillTax:        c.Tax.RebillTax,
			TaxApplicationID: c.Tax.ApplicationID,
		}
	}
	return out
}

// FromInitResponse rebuilds the NG init answer. MGPG has no fraud fields, so
// advice and recommendation are read off its next action.
func (t *Translator) FromInitResponse(resp InitResponse) *ng.InitResponse {
	advice, rec := fraudFromNextAction(resp.NextAction)
	out := &ng.InitResponse{
		SessionID:            resp.SessionID,
		State:                string(domain.StateValidated),
		PaymentProcessorType: ng.ProcessorGateway,
		Billers:              resp.Billers,
		FraudAdvice:          advice,
		FraudRecommendation:  toRecommendation(rec),
		FraudRecommendations: []ng.FraudRecommendation{toRecommendation(rec)},
		NextAction:           toNextAction(resp.NextAction),
	}
	if advice.Blacklisted {
		out.State = string(domain.StateAborted)
	}
	if resp.NextAction.Type == ActionRedirectToURL {
		out.PaymentProcessorType = ng.ProcessorThirdParty
	}
	for _, pt := range resp.PaymentTemplates {
		out.PaymentTemplates = append(out.PaymentTemplates, toTemplate(pt))
	}
	return out
}

// ToProcessRequest selects the primary charge plus the charges of the chosen
// cross-sales. A cross-sale that was not offered at init is rejected.
func (t *Translator) ToProcessRequest(req ng.ProcessRequest, ids ChargeIdentity) (ProcessRequest, error) {
	main := ids.MainChargeID()
	if main == "" {
		return ProcessRequest{}, domain.NewDomainError(domain.ErrorCodeValidationFailed, "no charges recorded for session").
			WithDetail("session_id", req.SessionID)
	}

	selected := []string{main}
	for _, ref := range req.SelectedCrossSales {
		id, ok := ids.ChargeID(ref.Key())
		if !ok {
			return ProcessRequest{}, domain.NewDomainError(domain.ErrorCodeValidationFailed, "cross-sale was not offered at init").
				WithDetail("cross_sale", ref.Key().String())
		}
		selected = append(selected, id)
	}

	p := req.Payment
	return ProcessRequest{
		Payment: Payment{
			Type:   p.Type,
			Method: p.Method,
			Information: PaymentInformation{
				CardHash:      p.CardHash,
				FirstSix:      p.FirstSix,
				LastFour:      p.LastFour,
				ExpMonth:      p.ExpMonth,
				ExpYear:       p.ExpYear,
				TemplateID:    p.TemplateID,
				RoutingNumber: p.RoutingNumber,
				AccountLast4:  p.AccountLast4,
			},
		},
		Member: Member{
			Email:     req.Member.Email,
			Username:  req.Member.Username,
			FirstName: req.Member.FirstName,
			LastName:  req.Member.LastName,
			ZipCode:   req.Member.ZipCode,
			Phone:     req.Member.Phone,
			Country:   req.Member.Country,
		},
		ClientIP:          req.ClientIP,
		SelectedChargeIDs: selected,
	}, nil
}

// FromProcessResponse rebuilds the NG process answer. Charge ids become item
// ids; the primary charge is the main result.
func (t *Translator) FromProcessResponse(resp ProcessResponse, ids ChargeIdentity) *ng.ProcessResponse {
	advice, _ := fraudFromNextAction(resp.NextAction)
	out := &ng.ProcessResponse{
		SessionID:   resp.SessionID,
		FraudAdvice: advice,
		NextAction:  toNextAction(resp.NextAction),
	}

	var primary *ChargeResult
	for i := range resp.Charges {
		ch := resp.Charges[i]
		primaryCharge := ch.IsPrimaryCharge || ch.ChargeID == ids.MainChargeID()
		r := toResult(ch, !primaryCharge)
		if primaryCharge {
			primary = &resp.Charges[i]
			out.Result = &r
			out.Attempts = 1
			continue
		}
		out.CrossSales = append(out.CrossSales, r)
	}

	out.State = string(processState(primary, resp.NextAction))
	out.Success = out.State == string(domain.StateProcessed)
	if resp.NextAction.Type == "" && (out.Success || out.State == string(domain.StateAborted)) {
		out.NextAction = ng.NextAction{Type: ng.NextActionFinishProcess}
	}
	return out
}

func processState(primary *ChargeResult, next NextAction) domain.SessionState {
	switch next.Type {
	case ActionRedirectToURL, ActionAuthenticate3D:
		return domain.StatePending
	case ActionValidateCaptcha:
		return domain.StateCaptchaPending
	}
	if primary != nil {
		switch toStatus(primary.Status) {
		case domain.TransactionStatusApproved:
			return domain.StateProcessed
		case domain.TransactionStatusPending, domain.TransactionStatusUnknown:
			return domain.StatePending
		default:
			return domain.StateAborted
		}
	}
	if next.Type == ActionFinishProcess {
		return domain.StateAborted
	}
	return domain.StateProcessing
}

// FromPostback rebuilds the NG postback for the client of sessionID
func (t *Translator) FromPostback(p Postback, sessionID string) ng.Postback {
	kind := p.Type
	if kind == "" {
		kind = ng.PostbackTypeSale
	}
	return ng.Postback{
		SessionID: sessionID,
		Type:      kind,
		SiteID:    p.Entitlements.SiteID,
		BundleID:  p.Entitlements.BundleID,
		AddonID:   p.Entitlements.AddonID,
		MemberID:  p.Entitlements.MemberID,
		TransactionResult: ng.TransactionResult{
			ItemID:         p.ChargeID,
			TransactionID:  p.TransactionID,
			BillerName:     p.BillerName,
			Status:         string(toStatus(p.Status)),
			IsCrossSale:    !p.IsPrimaryCharge,
			DeclineCode:    p.ErrorCode,
			DeclineReason:  p.ErrorMessage,
			SubscriptionID: p.Entitlements.SubscriptionID,
		},
	}
}

// fraudFromNextAction recognizes the blocked and captcha shapes; anything
// else is the default recommendation.
func fraudFromNextAction(a NextAction) (domain.FraudAdvice, domain.FraudRecommendation) {
	advice := domain.DefaultFraudAdvice()
	switch {
	case a.Type == ActionFinishProcess && a.Reason == ReasonBlockedDueToFraud:
		advice.Blacklisted = true
		return advice, domain.FraudRecommendation{Code: domain.FraudCodeBlacklist, Severity: domain.FraudSeverityBlock, Message: "Block_Transaction"}
	case a.Type == ActionValidateCaptcha:
		advice.CaptchaRequired = true
		return advice, domain.FraudRecommendation{Code: domain.FraudCodeCaptcha, Severity: domain.FraudSeverityAllow, Message: "Show_Captcha"}
	default:
		return advice, domain.DefaultFraudRecommendation()
	}
}

func toNextAction(a NextAction) ng.NextAction {
	switch a.Type {
	case "":
		return ng.NextAction{Type: ng.NextActionRenderGateway}
	case ActionFinishProcess:
		return ng.NextAction{Type: ng.NextActionFinishProcess, Reason: finishReason(a.Reason)}
	case ActionValidateCaptcha:
		return ng.NextAction{Type: ng.NextActionRenderGateway, ShowCaptcha: true}
	case ActionRedirectToURL:
		out := ng.NextAction{Type: ng.NextActionRedirectToURL}
		if a.ThirdParty != nil {
			out.URL = a.ThirdParty.URL
		}
		return out
	default:
		out := ng.NextAction{Type: a.Type, Reason: a.Reason}
		if a.ThreeD != nil {
			out.URL = a.ThreeD.AuthURL
			out.ThreeDVersion = a.ThreeD.Version
		}
		return out
	}
}

func finishReason(reason string) string {
	switch reason {
	case ReasonBlockedDueToFraud:
		return domain.AbortReasonBlockedByFraud
	case ReasonNoMoreBillers:
		return domain.AbortReasonCascadeExhausted
	default:
		return reason
	}
}

func toStatus(s string) domain.TransactionStatus {
	switch s {
	case StatusSuccess, string(domain.TransactionStatusApproved):
		return domain.TransactionStatusApproved
	case StatusDecline, string(domain.TransactionStatusDeclined):
		return domain.TransactionStatusDeclined
	case StatusPending:
		return domain.TransactionStatusPending
	case StatusAborted:
		return domain.TransactionStatusAborted
	default:
		return domain.TransactionStatusUnknown
	}
}

func toResult(ch ChargeResult, crossSale bool) ng.TransactionResult {
	r := ng.TransactionResult{
		ItemID:         ch.ChargeID,
		TransactionID:  ch.TransactionID,
		BillerName:     ch.BillerName,
		Status:         string(toStatus(ch.Status)),
		IsCrossSale:    crossSale,
		DeclineCode:    ch.ErrorCode,
		DeclineReason:  ch.ErrorMessage,
		Secured3DS:     ch.Secured3DS,
		ThreeDVersion:  ch.ThreeDVersion,
		SubscriptionID: ch.Entitlements.SubscriptionID,
	}
	if ch.ErrorClassification != nil {
		r.ErrorClass = ch.ErrorClassification.ErrorType
	}
	return r
}

// toTemplate treats a template without validation parameters as a blank
// placeholder that never asks for verification.
func toTemplate(pt PaymentTemplate) ng.PaymentTemplate {
	out := ng.PaymentTemplate{
		TemplateID: pt.TemplateID,
		BillerName: pt.ProcessorName,
		IsSafe:     pt.IsSafe,
	}
	if len(pt.ValidationParameters) == 0 {
		return out
	}
	out.FirstSix = pt.ValidationParameters["firstSix"]
	out.LastFour = pt.ValidationParameters["lastFour"]
	out.ExpirationMonth, _ = strconv.Atoi(pt.ValidationParameters["cardExpirationMonth"])
	out.ExpirationYear, _ = strconv.Atoi(pt.ValidationParameters["cardExpirationYear"])
	out.RequiresVerification = !pt.IsSafe
	return out
}

func toRecommendation(r domain.FraudRecommendation) ng.FraudRecommendation {
	return ng.FraudRecommendation{Severity: r.Severity, Code: r.Code, Message: r.Message}
}

// Package ng holds the gateway's native purchase protocol: the requests
// clients send to init and process a purchase and the responses they get back.
package ng

import (
	"github.com/shopspring/decimal"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

// Next action types returned to clients
const (
	NextActionFinishProcess  = "finishProcess"
	NextActionRenderGateway  = "renderGateway"
	NextActionRedirectToURL  = "redirectToUrl"
	NextActionAuthenticate3D = "authenticate3D"
	NextActionWaitForReturn  = "waitForReturn"
)

// Payment processor types reported at init
const (
	ProcessorGateway    = "gateway"
	ProcessorThirdParty = "third_party"
)

// NextAction tells the client what to do after a call
type NextAction struct {
	Type                 string `json:"type"`
	Reason               string `json:"reason,omitempty"`
	ShowCaptcha          bool   `json:"showCaptcha,omitempty"`
	URL                  string `json:"url,omitempty"`
	ThreeDVersion        int    `json:"threeDVersion,omitempty"`
	ExternalType         string `json:"externalType,omitempty"`
	ResubmitWithTemplate bool   `json:"resubmitWithTemplate,omitempty"`
}

// Charge is the price shape shared by main items and cross-sales
type Charge struct {
	Amount       decimal.Decimal `json:"amount"`
	InitialDays  int             `json:"initialDays"`
	RebillAmount decimal.Decimal `json:"rebillAmount"`
	RebillDays   int             `json:"rebillDays"`
	IsTrial      bool            `json:"isTrial"`
	Tax          *Tax            `json:"tax,omitempty"`
}

// Tax mirrors domain.TaxBreakdown on the wire
type Tax struct {
	Name          string          `json:"taxName,omitempty"`
	Rate          decimal.Decimal `json:"taxRate"`
	Type          string          `json:"taxType,omitempty"`
	InitialAmount decimal.Decimal `json:"initialAmount"`
	InitialTax    decimal.Decimal `json:"initialTax"`
	RebillAmount  decimal.Decimal `json:"rebillAmount"`
	RebillTax     decimal.Decimal `json:"rebillTax"`
	ApplicationID string          `json:"taxApplicationId,omitempty"`
}

// CrossSale is an additional product offered with the main purchase
type CrossSale struct {
	SiteID   string `json:"siteId"`
	BundleID string `json:"bundleId"`
	AddonID  string `json:"addonId"`
	Charge
}

// InitRequest opens a purchase
type InitRequest struct {
	SessionID         string            `json:"sessionId,omitempty"`
	SiteID            string            `json:"siteId"`
	PublicKeyID       string            `json:"publicKeyId"`
	MemberID          string            `json:"memberId,omitempty"`
	SubscriptionID    string            `json:"subscriptionId,omitempty"`
	EntitlementID     string            `json:"entitlementId,omitempty"`
	BundleID          string            `json:"bundleId"`
	AddonID           string            `json:"addonId"`
	Currency          string            `json:"currency"`
	PaymentType       string            `json:"paymentType"`
	PaymentMethod     string            `json:"paymentMethod,omitempty"`
	ClientIP          string            `json:"clientIp"`
	ClientCountry     string            `json:"clientCountryCode"`
	Email             string            `json:"email,omitempty"`
	RedirectURL       string            `json:"redirectUrl,omitempty"`
	PostbackURL       string            `json:"postbackUrl,omitempty"`
	SkipVoid          bool              `json:"skipVoid,omitempty"`
	EntrySiteID       string            `json:"entrySiteId,omitempty"`
	TrafficSource     string            `json:"trafficSource,omitempty"`
	ForceCascade      string            `json:"forceCascade,omitempty"`
	InitialJoinBiller string            `json:"initialJoinBiller,omitempty"`
	FraudHeaders      map[string]string `json:"fraudHeaders,omitempty"`
	CrossSales        []CrossSale       `json:"crossSellOptions,omitempty"`
	Charge
}

// ItemKey converts the main item identity of r
func (r InitRequest) ItemKey() domain.ItemKey {
	return domain.ItemKey{SiteID: r.SiteID, BundleID: r.BundleID, AddonID: r.AddonID}
}

// Key converts the identity of c
func (c CrossSale) Key() domain.ItemKey {
	return domain.ItemKey{SiteID: c.SiteID, BundleID: c.BundleID, AddonID: c.AddonID}
}

// ToDomain converts the wire charge
func (c Charge) ToDomain() domain.ChargeInformation {
	return domain.ChargeInformation{
		Amount:       c.Amount,
		InitialDays:  c.InitialDays,
		RebillAmount: c.RebillAmount,
		RebillDays:   c.RebillDays,
		IsTrial:      c.IsTrial,
	}
}

// TaxToDomain converts the wire tax, nil when absent
func (c Charge) TaxToDomain() *domain.TaxBreakdown {
	if c.Tax == nil {
		return nil
	}
	return &domain.TaxBreakdown{
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

// FraudRecommendation is the wire form of domain.FraudRecommendation
type FraudRecommendation struct {
	Severity string `json:"severity"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
}

// PaymentTemplate summarizes a stored payment method
type PaymentTemplate struct {
	TemplateID           string `json:"templateId"`
	FirstSix             string `json:"firstSix"`
	LastFour             string `json:"lastFour"`
	ExpirationYear       int    `json:"expirationYear"`
	ExpirationMonth      int    `json:"expirationMonth"`
	BillerName           string `json:"billerName,omitempty"`
	IsSafe               bool   `json:"isSafe"`
	RequiresVerification bool   `json:"requiresVerification"`
}

// InitResponse answers an init call
type InitResponse struct {
	SessionID            string                `json:"sessionId"`
	State                string                `json:"state"`
	PaymentProcessorType string                `json:"paymentProcessorType"`
	Billers              []string              `json:"billers"`
	FraudAdvice          domain.FraudAdvice    `json:"fraudAdvice"`
	FraudRecommendation  FraudRecommendation   `json:"fraudRecommendation"`
	FraudRecommendations []FraudRecommendation `json:"fraudRecommendationCollection"`
	PaymentTemplates     []PaymentTemplate     `json:"paymentTemplateInfo,omitempty"`
	NextAction           NextAction            `json:"nextAction"`
}

// PaymentInput is the payment detail supplied at process time
type PaymentInput struct {
	Type          string `json:"type"`
	Method        string `json:"method,omitempty"`
	CardHash      string `json:"cardHash,omitempty"`
	FirstSix      string `json:"firstSix,omitempty"`
	LastFour      string `json:"lastFour,omitempty"`
	ExpMonth      int    `json:"expirationMonth,omitempty"`
	ExpYear       int    `json:"expirationYear,omitempty"`
	TemplateID    string `json:"templateId,omitempty"`
	RoutingNumber string `json:"routingNumber,omitempty"`
	AccountLast4  string `json:"accountLast4,omitempty"`
}

// ToDomain converts the payment input into a payment descriptor
func (p PaymentInput) ToDomain() domain.PaymentInfo {
	info := domain.PaymentInfo{
		Type:          p.Type,
		Method:        p.Method,
		CardHash:      p.CardHash,
		FirstSix:      p.FirstSix,
		LastFour:      p.LastFour,
		ExpMonth:      p.ExpMonth,
		ExpYear:       p.ExpYear,
		TemplateID:    p.TemplateID,
		RoutingNumber: p.RoutingNumber,
		AccountLast4:  p.AccountLast4,
	}
	switch {
	case p.TemplateID != "":
		info.Kind = domain.PaymentKindTemplate
	case p.Type == domain.PaymentTypeChecks:
		info.Kind = domain.PaymentKindCheque
	case p.Type == domain.PaymentTypeCrypto:
		info.Kind = domain.PaymentKindCrypto
	case p.Type == domain.PaymentTypeEWallet:
		info.Kind = domain.PaymentKindHybrid
	default:
		info.Kind = domain.PaymentKindCard
	}
	return info
}

// MemberInput is what the payer fills in on the payment form
type MemberInput struct {
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	ZipCode   string `json:"zipCode,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Country   string `json:"countryCode,omitempty"`
}

// ItemRef selects a cross-sale by what it sells
type ItemRef struct {
	SiteID   string `json:"siteId"`
	BundleID string `json:"bundleId"`
	AddonID  string `json:"addonId"`
}

// Key converts the reference
func (r ItemRef) Key() domain.ItemKey {
	return domain.ItemKey{SiteID: r.SiteID, BundleID: r.BundleID, AddonID: r.AddonID}
}

// ProcessRequest submits payment for an initialized session
type ProcessRequest struct {
	SessionID          string            `json:"sessionId"`
	Payment            PaymentInput      `json:"payment"`
	Member             MemberInput       `json:"member"`
	ClientIP           string            `json:"clientIp,omitempty"`
	SelectedCrossSales []ItemRef         `json:"selectedCrossSells,omitempty"`
	FraudHeaders       map[string]string `json:"fraudHeaders,omitempty"`
}

// TransactionResult is the outcome of one item's charge
type TransactionResult struct {
	ItemID         string `json:"itemId"`
	TransactionID  string `json:"transactionId,omitempty"`
	BillerName     string `json:"billerName,omitempty"`
	Status         string `json:"status"`
	IsCrossSale    bool   `json:"isCrossSale"`
	DeclineCode    string `json:"declineCode,omitempty"`
	DeclineReason  string `json:"declineReason,omitempty"`
	ErrorClass     string `json:"errorClassification,omitempty"`
	Secured3DS     bool   `json:"securedWithThreeD"`
	ThreeDVersion  int    `json:"threeDVersion,omitempty"`
	Frictionless   bool   `json:"threeDFrictionless,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// ProcessResponse answers a process, captcha or 3DS completion call
type ProcessResponse struct {
	SessionID   string              `json:"sessionId"`
	State       string              `json:"state"`
	Success     bool                `json:"success"`
	Attempts    int                 `json:"attempts"`
	Result      *TransactionResult  `json:"transaction,omitempty"`
	CrossSales  []TransactionResult `json:"crossSells,omitempty"`
	FraudAdvice domain.FraudAdvice  `json:"fraudAdvice"`
	NextAction  NextAction          `json:"nextAction"`
}

// ThreeDSCompleteRequest finishes a 3DS challenge
type ThreeDSCompleteRequest struct {
	SessionID string `json:"sessionId"`
	PaRes     string `json:"pares,omitempty"`
	MD        string `json:"md,omitempty"`
	Flow      string `json:"flow,omitempty"`
}

// FailedBiller is one biller that did not approve the purchase
type FailedBiller struct {
	BillerName    string `json:"billerName"`
	TransactionID string `json:"transactionId,omitempty"`
	Status        string `json:"status"`
	RemovedFor    string `json:"removedFor,omitempty"`
}

// FailedBillersResponse lists failed billers of a session
type FailedBillersResponse struct {
	SessionID     string         `json:"sessionId"`
	FailedBillers []FailedBiller `json:"failedBillers"`
}

// Postback types relayed to clients
const (
	PostbackTypeSale   = "sale"
	PostbackTypeRebill = "rebill"
	PostbackTypeReturn = "return"
)

// Postback is the notification the gateway relays to a client's postback URL
type Postback struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	SiteID    string `json:"siteId"`
	BundleID  string `json:"bundleId,omitempty"`
	AddonID   string `json:"addonId,omitempty"`
	MemberID  string `json:"memberId,omitempty"`
	TransactionResult
}

// Package mgpg translates between the gateway's native purchase protocol and
// the MGPG payment-processing protocol, and calls the MGPG service.
package mgpg

import (
	"github.com/shopspring/decimal"
)

// MGPG next action types. Anything else is passed through verbatim.
const (
	ActionFinishProcess   = "finishProcess"
	ActionValidateCaptcha = "validateCaptcha"
	ActionRedirectToURL   = "redirectToUrl"
	ActionAuthenticate3D  = "authenticate3D"
)

// MGPG finish reasons
const (
	ReasonBlockedDueToFraud = "BlockedDueToFraudAdvice"
	ReasonNoMoreBillers     = "NoMoreBillersAvailable"
)

// MGPG charge statuses
const (
	StatusSuccess = "success"
	StatusDecline = "decline"
	StatusPending = "pending"
	StatusAborted = "aborted"
)

// Business transaction operations
const (
	OperationSubscriptionPurchase = "subscriptionPurchase"
	OperationSingleChargePurchase = "singleChargePurchase"
)

// InitRequest opens an MGPG purchase
type InitRequest struct {
	Invoice       Invoice           `json:"invoice"`
	Payment       PaymentSelection  `json:"payment"`
	FraudHeaders  map[string]string `json:"fraudHeaders,omitempty"`
	TrafficSource string            `json:"trafficSource,omitempty"`
	PublicKeyID   string            `json:"publicKeyId"`
}

// Invoice groups every charge of a purchase
type Invoice struct {
	InvoiceID          string   `json:"invoiceId"`
	MemberID           string   `json:"memberId,omitempty"`
	UsingMemberProfile bool     `json:"usingMemberProfile"`
	ClientIP           string   `json:"clientIp"`
	ClientCountry      string   `json:"clientCountryCode,omitempty"`
	Email              string   `json:"email,omitempty"`
	Currency           string   `json:"currency"`
	RedirectURL        string   `json:"redirectUrl"`
	PostbackURL        string   `json:"postbackUrl"`
	Charges            []Charge `json:"charges"`
}

// PaymentSelection is the payment type chosen at init
type PaymentSelection struct {
	Type   string `json:"type"`
	Method string `json:"method,omitempty"`
}

// Charge is one line of the flat charge list
type Charge struct {
	ChargeID                     string       `json:"chargeId"`
	SiteID                       string       `json:"siteId"`
	IsPrimaryCharge              bool         `json:"isPrimaryCharge"`
	BusinessTransactionOperation string       `json:"businessTransactionOperation"`
	Price                        PriceInfo    `json:"priceInfo"`
	Tax                          *TaxInfo     `json:"tax,omitempty"`
	Entitlements                 Entitlements `json:"entitlements"`
}

// PriceInfo is the price of one charge
type PriceInfo struct {
	BasePrice     decimal.Decimal `json:"basePrice"`
	ExpiresInDays int             `json:"expiresInDays"`
	Rebill        *RebillInfo     `json:"rebill,omitempty"`
}

// RebillInfo is the recurring part of a subscription charge
type RebillInfo struct {
	Amount    decimal.Decimal `json:"amount"`
	Frequency int             `json:"frequency"`
}

// TaxInfo carries tax the client computed
type TaxInfo struct {
	TaxName          string          `json:"taxName,omitempty"`
	TaxRate          decimal.Decimal `json:"taxRate"`
	TaxType          string          `json:"taxType,omitempty"`
	InitialAmount    decimal.Decimal `json:"initialAmount"`
	InitialTax       decimal.Decimal `json:"initialTaxAmount"`
	RebillAmount     decimal.Decimal `json:"rebillAmount"`
	RebillTax        decimal.Decimal `json:"rebillTaxAmount"`
	TaxApplicationID string          `json:"taxApplicationId,omitempty"`
}

// Entitlements is echoed back unmodified by MGPG
type Entitlements struct {
	SiteID         string `json:"siteId"`
	BundleID       string `json:"bundleId"`
	AddonID        string `json:"addonId"`
	MemberID       string `json:"memberId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// NextAction is MGPG's instruction to the client
type NextAction struct {
	Type       string      `json:"type"`
	Reason     string      `json:"reason,omitempty"`
	ThirdParty *ThirdParty `json:"thirdParty,omitempty"`
	ThreeD     *ThreeD     `json:"threeD,omitempty"`
}

// ThirdParty is the redirect of a third-party biller
type ThirdParty struct {
	URL string `json:"url"`
}

// ThreeD is a 3DS challenge
type ThreeD struct {
	AuthURL string `json:"authenticateUrl"`
	Version int    `json:"version"`
}

// PaymentTemplate is a stored payment method as MGPG reports it
type PaymentTemplate struct {
	TemplateID           string            `json:"templateId"`
	ProcessorName        string            `json:"processorName"`
	IsSafe               bool              `json:"isSafe"`
	ValidationParameters map[string]string `json:"validationParameters,omitempty"`
}

// InitResponse answers an MGPG init
type InitResponse struct {
	SessionID        string            `json:"sessionId"`
	Billers          []string          `json:"billers,omitempty"`
	PaymentTemplates []PaymentTemplate `json:"paymentTemplateInfo,omitempty"`
	NextAction       NextAction        `json:"nextAction"`
}

// ProcessRequest pays for an MGPG purchase
type ProcessRequest struct {
	Payment           Payment  `json:"payment"`
	Member            Member   `json:"member"`
	ClientIP          string   `json:"clientIp,omitempty"`
	SelectedChargeIDs []string `json:"selectedChargeIds"`
}

// Payment is the payment detail of a process call
type Payment struct {
	Type        string             `json:"type"`
	Method      string             `json:"method,omitempty"`
	Information PaymentInformation `json:"information"`
}

// PaymentInformation is the payment-kind specific part
type PaymentInformation struct {
	CardHash      string `json:"ccNumberHash,omitempty"`
	FirstSix      string `json:"firstSix,omitempty"`
	LastFour      string `json:"lastFour,omitempty"`
	ExpMonth      int    `json:"cardExpirationMonth,omitempty"`
	ExpYear       int    `json:"cardExpirationYear,omitempty"`
	TemplateID    string `json:"paymentTemplateId,omitempty"`
	RoutingNumber string `json:"routingNo,omitempty"`
	AccountLast4  string `json:"accountNoLast4,omitempty"`
}

// Member is the payer
type Member struct {
	Email     string `json:"email,omitempty"`
	Username  string `json:"userName,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	ZipCode   string `json:"zipCode,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Country   string `json:"countryCode,omitempty"`
}

// ProcessResponse answers an MGPG process
type ProcessResponse struct {
	SessionID  string         `json:"sessionId"`
	InvoiceID  string         `json:"invoiceId"`
	Charges    []ChargeResult `json:"charges"`
	NextAction NextAction     `json:"nextAction"`
}

// ChargeResult is the outcome of one charge
type ChargeResult struct {
	ChargeID            string               `json:"chargeId"`
	IsPrimaryCharge     bool                 `json:"isPrimaryCharge"`
	Status              string               `json:"status"`
	TransactionID       string               `json:"transactionId,omitempty"`
	BillerName          string               `json:"billerName,omitempty"`
	ErrorCode           string               `json:"errorCode,omitempty"`
	ErrorMessage        string               `json:"errorMessage,omitempty"`
	ErrorClassification *ErrorClassification `json:"errorClassification,omitempty"`
	Secured3DS          bool                 `json:"securedWithThreeD"`
	ThreeDVersion       int                  `json:"threeDVersion,omitempty"`
	Entitlements        Entitlements         `json:"entitlements"`
}

// ErrorClassification explains a decline
type ErrorClassification struct {
	GroupDecline      string `json:"groupDecline,omitempty"`
	ErrorType         string `json:"errorType,omitempty"`
	RecommendedAction string `json:"recommendedAction,omitempty"`
}

// Postback is what MGPG sends to the gateway's postback callback
type Postback struct {
	Type            string       `json:"type"`
	InvoiceID       string       `json:"invoiceId"`
	ChargeID        string       `json:"chargeId"`
	IsPrimaryCharge bool         `json:"isPrimaryCharge"`
	TransactionID   string       `json:"transactionId"`
	BillerName      string       `json:"billerName"`
	Status          string       `json:"status"`
	ErrorCode       string       `json:"errorCode,omitempty"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
	Entitlements    Entitlements `json:"entitlements"`
}

package ports

import (
	"context"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// SubmitRequest is a single charge attempt against one biller
type SubmitRequest struct {
	SessionID      string
	ItemID         string
	Biller         domain.Biller
	Amount         decimal.Decimal
	RebillAmount   decimal.Decimal
	RebillDays     int
	InitialDays    int
	Currency       string
	SiteID         string
	Payment        domain.PaymentInfo
	User           domain.UserInfo
	Detect3DS      bool
	Force3DS       bool
	ReturnURL      string
	IdempotencyKey string
}

// ThirdPartyRequest starts a redirect-based purchase
type ThirdPartyRequest struct {
	SessionID   string
	ItemID      string
	Biller      domain.Biller
	Amount      decimal.Decimal
	Currency    string
	SiteID      string
	Payment     domain.PaymentInfo
	User        domain.UserInfo
	ReturnURL   string
	PostbackURL string
}

// ThirdPartyResult is where the payer must be sent to finish the purchase
type ThirdPartyResult struct {
	TransactionID string
	RedirectURL   string
}

// CompleteThreeDSRequest finishes a 3DS challenge for a pending transaction
type CompleteThreeDSRequest struct {
	SessionID     string
	TransactionID string
	Biller        domain.Biller
	PaRes         string
	MD            string
	Flow          string
}

// RetrieveTransactionRequest looks up the biller's current view of a transaction
type RetrieveTransactionRequest struct {
	SessionID     string
	TransactionID string
	Biller        domain.Biller
	PaymentType   string
}

// TransactionService talks to billers. Declines are results, not errors;
// an error means the outcome is unknown or the request never reached the biller.
type TransactionService interface {
	Submit(ctx context.Context, req SubmitRequest) (*domain.Transaction, error)
	StartThirdParty(ctx context.Context, req ThirdPartyRequest) (*ThirdPartyResult, error)
	CompleteThreeDS(ctx context.Context, req CompleteThreeDSRequest) (*domain.Transaction, error)
	RetrieveTransaction(ctx context.Context, req RetrieveTransactionRequest) (*domain.Transaction, error)
}

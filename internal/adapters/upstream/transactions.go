package upstream

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
)

// TransactionClient talks to the transaction service, which fronts every biller
type TransactionClient struct {
	client *Client
}

var _ ports.TransactionService = (*TransactionClient)(nil)

// NewTransactionClient creates a transaction-service client
func NewTransactionClient(client *Client) *TransactionClient {
	return &TransactionClient{client: client}
}

type paymentDTO struct {
	Type          string `json:"type"`
	Method        string `json:"method,omitempty"`
	CardHash      string `json:"card_hash,omitempty"`
	ExpMonth      int    `json:"exp_month,omitempty"`
	ExpYear       int    `json:"exp_year,omitempty"`
	TemplateID    string `json:"template_id,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
	AccountLast4  string `json:"account_last4,omitempty"`
}

type saleRequestDTO struct {
	SessionID      string          `json:"session_id"`
	ItemID         string          `json:"item_id"`
	BillerID       string          `json:"biller_id"`
	SiteID         string          `json:"site_id"`
	Amount         decimal.Decimal `json:"amount"`
	InitialDays    int             `json:"initial_days"`
	RebillAmount   decimal.Decimal `json:"rebill_amount"`
	RebillDays     int             `json:"rebill_days"`
	Currency       string          `json:"currency"`
	Payment        paymentDTO      `json:"payment"`
	Member         domain.UserInfo `json:"member"`
	Detect3DS      bool            `json:"detect_3ds"`
	Force3DS       bool            `json:"force_3ds"`
	ReturnURL      string          `json:"return_url,omitempty"`
	PostbackURL    string          `json:"postback_url,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type transactionDTO struct {
	TransactionID string              `json:"transaction_id"`
	Status        string              `json:"status"`
	Decline       *domain.DeclineInfo `json:"decline,omitempty"`
	ThreeDSURL    string              `json:"three_ds_auth_url,omitempty"`
	RedirectURL   string              `json:"redirect_url,omitempty"`
	RawFields     map[string]string   `json:"raw_fields,omitempty"`
}

func toPaymentDTO(p domain.PaymentInfo) paymentDTO {
	return paymentDTO{
		Type:          p.Type,
		Method:        p.Method,
		CardHash:      p.CardHash,
		ExpMonth:      p.ExpMonth,
		ExpYear:       p.ExpYear,
		TemplateID:    p.TemplateID,
		RoutingNumber: p.RoutingNumber,
		AccountLast4:  p.AccountLast4,
	}
}

func (t *TransactionClient) Submit(ctx context.Context, req ports.SubmitRequest) (*domain.Transaction, error) {
	body := saleRequestDTO{
		SessionID:      req.SessionID,
		ItemID:         req.ItemID,
		BillerID:       req.Biller.ID,
		SiteID:         req.SiteID,
		Amount:         req.Amount,
		InitialDays:    req.InitialDays,
		RebillAmount:   req.RebillAmount,
		RebillDays:     req.RebillDays,
		Currency:       req.Currency,
		Payment:        toPaymentDTO(req.Payment),
		Member:         req.User,
		Detect3DS:      req.Detect3DS,
		Force3DS:       req.Force3DS,
		ReturnURL:      req.ReturnURL,
		IdempotencyKey: req.IdempotencyKey,
	}
	var resp transactionDTO
	if err := t.client.Do(ctx, http.MethodPost, billerPath(req.Biller, "sale"), nil, body, &resp); err != nil {
		return nil, err
	}
	return toTransaction(req.Biller, req.Payment.Type, resp), nil
}

func (t *TransactionClient) StartThirdParty(ctx context.Context, req ports.ThirdPartyRequest) (*ports.ThirdPartyResult, error) {
	body := saleRequestDTO{
		SessionID:   req.SessionID,
		ItemID:      req.ItemID,
		BillerID:    req.Biller.ID,
		SiteID:      req.SiteID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Payment:     toPaymentDTO(req.Payment),
		Member:      req.User,
		ReturnURL:   req.ReturnURL,
		PostbackURL: req.PostbackURL,
	}
	var resp transactionDTO
	if err := t.client.Do(ctx, http.MethodPost, billerPath(req.Biller, "redirect"), nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.RedirectURL == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayError, "third-party biller returned no redirect url").
			WithDetail("biller", req.Biller.Name)
	}
	return &ports.ThirdPartyResult{TransactionID: resp.TransactionID, RedirectURL: resp.RedirectURL}, nil
}

func (t *TransactionClient) CompleteThreeDS(ctx context.Context, req ports.CompleteThreeDSRequest) (*domain.Transaction, error) {
	body := map[string]string{
		"session_id": req.SessionID,
		"pares":      req.PaRes,
		"md":         req.MD,
		"flow":       req.Flow,
	}
	path := billerPath(req.Biller, "transactions/"+url.PathEscape(req.TransactionID)+"/3ds/complete")
	var resp transactionDTO
	if err := t.client.Do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.TransactionID == "" {
		resp.TransactionID = req.TransactionID
	}
	return toTransaction(req.Biller, domain.PaymentTypeCC, resp), nil
}

func (t *TransactionClient) RetrieveTransaction(ctx context.Context, req ports.RetrieveTransactionRequest) (*domain.Transaction, error) {
	path := billerPath(req.Biller, "transactions/"+url.PathEscape(req.TransactionID))
	var resp transactionDTO
	if err := t.client.Do(ctx, http.MethodGet, path, map[string]string{"session_id": req.SessionID}, nil, &resp); err != nil {
		return nil, err
	}
	if resp.TransactionID == "" {
		resp.TransactionID = req.TransactionID
	}
	return toTransaction(req.Biller, req.PaymentType, resp), nil
}

func billerPath(b domain.Biller, op string) string {
	return "/api/v1/billers/" + url.PathEscape(b.Name) + "/" + op
}

// toTransaction maps the wire answer; 3DS metadata is read from the
// biller's raw fields through its transaction-info variant.
func toTransaction(biller domain.Biller, paymentType string, resp transactionDTO) *domain.Transaction {
	tx := &domain.Transaction{
		TransactionID: resp.TransactionID,
		BillerName:    biller.Name,
		PaymentType:   paymentType,
		Status:        domain.TransactionStatus(resp.Status),
		Decline:       resp.Decline,
		RedirectURL:   resp.RedirectURL,
		RawFields:     resp.RawFields,
		CreatedAt:     time.Now(),
	}
	if card, ok := domain.NewTransactionInfo(biller, paymentType, resp.RawFields).(domain.CardTransactionInfo); ok {
		tx.ThreeDS = domain.ThreeDSInfo{
			Secured: card.Secured3DS,
			Version: card.ThreeDSVersion,
			AuthURL: resp.ThreeDSURL,
		}
		if resp.RawFields["three_ds_frictionless"] == "true" {
			tx.ThreeDS.Frictionless = true
		}
	}
	switch tx.Status {
	case domain.TransactionStatusApproved, domain.TransactionStatusDeclined,
		domain.TransactionStatusPending, domain.TransactionStatusAborted:
	default:
		tx.Status = domain.TransactionStatusUnknown
	}
	return tx
}

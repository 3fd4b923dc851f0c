package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
)

type fraudRequestDTO struct {
	Identifier      string            `json:"identifier,omitempty"`
	SessionID       string            `json:"session_id"`
	BusinessGroupID string            `json:"business_group_id"`
	SiteID          string            `json:"site_id"`
	IP              string            `json:"ip"`
	Country         string            `json:"country,omitempty"`
	Amount          string            `json:"amount,omitempty"`
	Email           string            `json:"email,omitempty"`
	PaymentType     string            `json:"payment_type,omitempty"`
	FirstSix        string            `json:"bin,omitempty"`
	LastFour        string            `json:"last_four,omitempty"`
	MemberID        string            `json:"member_id,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
}

func toFraudDTO(req ports.FraudRequest) fraudRequestDTO {
	return fraudRequestDTO{
		Identifier:      req.Identifier,
		SessionID:       req.SessionID,
		BusinessGroupID: req.BusinessGroupID,
		SiteID:          req.SiteID,
		IP:              req.IP,
		Country:         req.Country,
		Amount:          req.Amount,
		Email:           req.Email,
		PaymentType:     req.PaymentType,
		FirstSix:        req.FirstSix,
		LastFour:        req.LastFour,
		MemberID:        req.MemberID,
		Headers:         req.Headers,
	}
}

// FraudClient asks the cross-service fraud provider for recommendations
type FraudClient struct {
	client *Client
}

var _ ports.FraudRecommendationProvider = (*FraudClient)(nil)

// NewFraudClient creates a recommendation client
func NewFraudClient(client *Client) *FraudClient {
	return &FraudClient{client: client}
}

func (f *FraudClient) Recommendations(ctx context.Context, req ports.FraudRequest) (domain.FraudRecommendations, error) {
	var resp struct {
		Recommendations domain.FraudRecommendations `json:"recommendations"`
	}
	if err := f.client.Do(ctx, http.MethodPost, "/api/v1/fraud/recommendations", nil, toFraudDTO(req), &resp); err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

// LegacyFraudClient asks the legacy provider for advice flags
type LegacyFraudClient struct {
	client *Client
}

var _ ports.FraudAdviceProvider = (*LegacyFraudClient)(nil)

// NewLegacyFraudClient creates an advice client
func NewLegacyFraudClient(client *Client) *LegacyFraudClient {
	return &LegacyFraudClient{client: client}
}

func (f *LegacyFraudClient) Advice(ctx context.Context, req ports.FraudRequest) (domain.FraudAdvice, error) {
	var resp struct {
		Captcha   bool `json:"captcha"`
		Blacklist bool `json:"blacklist"`
		Force3DS  bool `json:"force_3ds"`
	}
	if err := f.client.Do(ctx, http.MethodPost, "/api/v1/fraud/advice", nil, toFraudDTO(req), &resp); err != nil {
		return domain.FraudAdvice{}, err
	}
	return domain.FraudAdvice{
		CaptchaRequired: resp.Captcha,
		Blacklisted:     resp.Blacklist,
		Force3DS:        resp.Force3DS,
	}, nil
}

// MemberClient reads member profiles
type MemberClient struct {
	client *Client
}

var _ ports.MemberProfileService = (*MemberClient)(nil)

// NewMemberClient creates a member-profile client
func NewMemberClient(client *Client) *MemberClient {
	return &MemberClient{client: client}
}

// GetMember returns nil without error for an unknown member
func (m *MemberClient) GetMember(ctx context.Context, memberID, siteID, publicKeyID string) (*domain.MemberInfo, error) {
	var member domain.MemberInfo
	query := map[string]string{"site_id": siteID, "public_key_id": publicKeyID}
	err := m.client.Do(ctx, http.MethodGet, "/api/v1/members/"+url.PathEscape(memberID), query, nil, &member)
	if err != nil {
		if StatusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// TemplateClient lists stored payment templates
type TemplateClient struct {
	client *Client
}

var _ ports.PaymentTemplateService = (*TemplateClient)(nil)

// NewTemplateClient creates a payment-template client
func NewTemplateClient(client *Client) *TemplateClient {
	return &TemplateClient{client: client}
}

func (t *TemplateClient) ListTemplates(ctx context.Context, memberID, sessionID string) ([]domain.PaymentTemplate, error) {
	var resp struct {
		Templates []domain.PaymentTemplate `json:"templates"`
	}
	query := map[string]string{"session_id": sessionID}
	path := "/api/v1/members/" + url.PathEscape(memberID) + "/payment-templates"
	if err := t.client.Do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		if StatusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return resp.Templates, nil
}

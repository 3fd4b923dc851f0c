package ports

import (
	"context"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

// SiteRepository resolves site configuration
type SiteRepository interface {
	// GetSite returns the site or a SITE_NOT_FOUND error
	GetSite(ctx context.Context, siteID string) (*domain.Site, error)
}

// FraudRequest carries the signals sent to a fraud provider
type FraudRequest struct {
	Identifier      string
	SessionID       string
	BusinessGroupID string
	SiteID          string
	IP              string
	Country         string
	Amount          string
	Email           string
	PaymentType     string
	FirstSix        string
	LastFour        string
	Headers         map[string]string
	MemberID        string
}

// FraudRecommendationProvider is the cross-service fraud provider
type FraudRecommendationProvider interface {
	Recommendations(ctx context.Context, req FraudRequest) (domain.FraudRecommendations, error)
}

// FraudAdviceProvider is the legacy provider answering with advice flags directly
type FraudAdviceProvider interface {
	Advice(ctx context.Context, req FraudRequest) (domain.FraudAdvice, error)
}

// MemberProfileService looks up existing members
type MemberProfileService interface {
	GetMember(ctx context.Context, memberID, siteID, publicKeyID string) (*domain.MemberInfo, error)
}

// PaymentTemplateService lists stored payment methods of a member
type PaymentTemplateService interface {
	ListTemplates(ctx context.Context, memberID, sessionID string) ([]domain.PaymentTemplate, error)
}

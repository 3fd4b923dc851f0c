// Package mocks provides shared testify mocks for the collaborator ports.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
)

// MockSiteRepository mocks ports.SiteRepository
type MockSiteRepository struct {
	mock.Mock
}

func (m *MockSiteRepository) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	args := m.Called(ctx, siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Site), args.Error(1)
}

// MockFraudRecommendationProvider mocks ports.FraudRecommendationProvider
type MockFraudRecommendationProvider struct {
	mock.Mock
}

func (m *MockFraudRecommendationProvider) Recommendations(ctx context.Context, req ports.FraudRequest) (domain.FraudRecommendations, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.FraudRecommendations), args.Error(1)
}

// MockFraudAdviceProvider mocks ports.FraudAdviceProvider
type MockFraudAdviceProvider struct {
	mock.Mock
}

func (m *MockFraudAdviceProvider) Advice(ctx context.Context, req ports.FraudRequest) (domain.FraudAdvice, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.FraudAdvice), args.Error(1)
}

// MockMemberProfileService mocks ports.MemberProfileService
type MockMemberProfileService struct {
	mock.Mock
}

func (m *MockMemberProfileService) GetMember(ctx context.Context, memberID, siteID, publicKeyID string) (*domain.MemberInfo, error) {
	args := m.Called(ctx, memberID, siteID, publicKeyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MemberInfo), args.Error(1)
}

// MockPaymentTemplateService mocks ports.PaymentTemplateService
type MockPaymentTemplateService struct {
	mock.Mock
}

func (m *MockPaymentTemplateService) ListTemplates(ctx context.Context, memberID, sessionID string) ([]domain.PaymentTemplate, error) {
	args := m.Called(ctx, memberID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PaymentTemplate), args.Error(1)
}

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/loan-aggregator/internal/domain"
)

type MockReferralRepository struct {
	mock.Mock
}

func (m *MockReferralRepository) Create(ctx context.Context, link *domain.ReferralLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockReferralRepository) GetLatestByReferee(ctx context.Context, refereeID string) (*domain.ReferralLink, error) {
	args := m.Called(ctx, refereeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReferralLink), args.Error(1)
}

func (m *MockReferralRepository) Settle(ctx context.Context, link *domain.ReferralLink, from domain.ReferralState) error {
	args := m.Called(ctx, link, from)
	return args.Error(0)
}

func (m *MockReferralRepository) CountByReferrer(ctx context.Context, referrerID string, since time.Time) (int, error) {
	args := m.Called(ctx, referrerID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockReferralRepository) GetStats(ctx context.Context, referrerID string) (*domain.ReferralStats, error) {
	args := m.Called(ctx, referrerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReferralStats), args.Error(1)
}

func (m *MockReferralRepository) TopReferrers(ctx context.Context, since time.Time, limit int) ([]domain.TopReferrer, error) {
	args := m.Called(ctx, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TopReferrer), args.Error(1)
}

// MockPartnerSource stands in for the partner feed.
type MockPartnerSource struct {
	mock.Mock
}

func (m *MockPartnerSource) Load(ctx context.Context) ([]domain.PartnerOfferRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PartnerOfferRule), args.Error(1)
}

type MockPartnerRuleRepository struct {
	mock.Mock
}

func (m *MockPartnerRuleRepository) Load(ctx context.Context) ([]domain.PartnerOfferRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PartnerOfferRule), args.Error(1)
}

func (m *MockPartnerRuleRepository) Upsert(ctx context.Context, rule domain.PartnerOfferRule, position int, enabled bool) error {
	args := m.Called(ctx, rule, position, enabled)
	return args.Error(0)
}

func (m *MockPartnerRuleRepository) DisableExcept(ctx context.Context, keep []string) (int64, error) {
	args := m.Called(ctx, keep)
	return args.Get(0).(int64), args.Error(1)
}

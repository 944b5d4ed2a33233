package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/offers"
)

type MockDecisionService struct {
	mock.Mock
}

func (m *MockDecisionService) Evaluate(ctx context.Context, request domain.DecisionRequest) (*domain.Decision, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Decision), args.Error(1)
}

func (m *MockDecisionService) RecordReferral(ctx context.Context, referrerID, refereeID string) error {
	args := m.Called(ctx, referrerID, refereeID)
	return args.Error(0)
}

func (m *MockDecisionService) SettleOutcome(ctx context.Context, refereeID string, outcome domain.TerminalOutcome) (*domain.RewardEvent, error) {
	args := m.Called(ctx, refereeID, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RewardEvent), args.Error(1)
}

func (m *MockDecisionService) ReferralStats(ctx context.Context, referrerID string) (*domain.ReferralStats, error) {
	args := m.Called(ctx, referrerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReferralStats), args.Error(1)
}

func (m *MockDecisionService) TopReferrers(ctx context.Context, limit, periodDays int) ([]domain.TopReferrer, error) {
	args := m.Called(ctx, limit, periodDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TopReferrer), args.Error(1)
}

func (m *MockDecisionService) Snapshot() (*offers.Snapshot, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*offers.Snapshot), args.Error(1)
}

func (m *MockDecisionService) ReloadPartners(ctx context.Context) (*offers.Snapshot, bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*offers.Snapshot), args.Bool(1), args.Error(2)
}

// NewMockDecisionService creates a new mock decision service instance
func NewMockDecisionService() *MockDecisionService {
	return &MockDecisionService{}
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/loan-aggregator/internal/domain"
)

type MockRewardPublisher struct {
	mock.Mock
}

func (m *MockRewardPublisher) PublishReward(ctx context.Context, event domain.RewardEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/mocks"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
)

func rulesFor(ids ...string) []domain.PartnerOfferRule {
	rules := make([]domain.PartnerOfferRule, 0, len(ids))
	for _, id := range ids {
		rules = append(rules, domain.PartnerOfferRule{PartnerID: id})
	}
	return rules
}

func matchPartner(id string) interface{} {
	return mock.MatchedBy(func(rule domain.PartnerOfferRule) bool { return rule.PartnerID == id })
}

func TestFeedSync_Run(t *testing.T) {
	logger, hook := test.NewNullLogger()
	source := new(mocks.MockPartnerSource)
	store := new(mocks.MockPartnerRuleRepository)

	source.On("Load", mock.Anything).Return(rulesFor("alpha", "bravo", "charlie"), nil).Once()
	store.On("Upsert", mock.Anything, matchPartner("alpha"), 0, true).Return(nil).Once()
	store.On("Upsert", mock.Anything, matchPartner("bravo"), 1, true).
		Return(customError.WrapInvalidInput("partner bravo is not priced by a rate table")).Once()
	store.On("Upsert", mock.Anything, matchPartner("charlie"), 2, true).Return(nil).Once()
	store.On("DisableExcept", mock.Anything, []string{"alpha", "bravo", "charlie"}).Return(int64(1), nil).Once()

	synced, err := NewFeedSync(source, store, logger).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, synced)

	assert.Equal(t, "Partner feed synced", hook.LastEntry().Message)
	assert.Equal(t, 1, hook.LastEntry().Data["skipped"])
	assert.Equal(t, int64(1), hook.LastEntry().Data["disabled"])
	source.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestFeedSync_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mocks.MockPartnerSource, *mocks.MockPartnerRuleRepository)
	}{
		{
			name: "feed unreachable",
			setup: func(source *mocks.MockPartnerSource, _ *mocks.MockPartnerRuleRepository) {
				source.On("Load", mock.Anything).Return(nil, errors.New("no such file")).Once()
			},
		},
		{
			name: "duplicate partner ids leave the table untouched",
			setup: func(source *mocks.MockPartnerSource, _ *mocks.MockPartnerRuleRepository) {
				source.On("Load", mock.Anything).Return(rulesFor("alpha", "alpha"), nil).Once()
			},
		},
		{
			name: "disable fails",
			setup: func(source *mocks.MockPartnerSource, store *mocks.MockPartnerRuleRepository) {
				source.On("Load", mock.Anything).Return(rulesFor("alpha"), nil).Once()
				store.On("Upsert", mock.Anything, mock.Anything, 0, true).Return(nil).Once()
				store.On("DisableExcept", mock.Anything, []string{"alpha"}).
					Return(int64(0), customError.WrapDatabaseError(errors.New("connection refused"))).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			source := new(mocks.MockPartnerSource)
			store := new(mocks.MockPartnerRuleRepository)
			tt.setup(source, store)

			_, err := NewFeedSync(source, store, logger).Run(context.Background())
			assert.Error(t, err)
			source.AssertExpectations(t)
			store.AssertExpectations(t)
		})
	}
}

func TestFeedSync_Schedule(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sync := NewFeedSync(new(mocks.MockPartnerSource), new(mocks.MockPartnerRuleRepository), logger)
	c := cron.New()

	assert.Error(t, sync.Schedule(c, "sometimes"))
	require.NoError(t, sync.Schedule(c, "@hourly"))
	assert.Len(t, c.Entries(), 1)
}

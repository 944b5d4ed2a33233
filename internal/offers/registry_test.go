package offers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-aggregator/internal/domain"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
)

type staticSource struct {
	rules []domain.PartnerOfferRule
	err   error
}

func (s staticSource) Load(context.Context) ([]domain.PartnerOfferRule, error) {
	return s.rules, s.err
}

func tableRule(id string, base string) domain.PartnerOfferRule {
	return testRule(id, 1, RateTable{
		BaseRate:    decimal.RequireFromString(base),
		TierMarkups: map[domain.Tier]decimal.Decimal{domain.TierLow: decimal.Zero},
	})
}

func TestRegistry_CurrentBeforeLoad(t *testing.T) {
	registry := NewRegistry()

	snapshot, err := registry.Current()

	assert.Nil(t, snapshot)
	assert.True(t, errors.Is(err, customError.ErrPartnersUnavailable))
}

func TestRegistry_Reload(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	first, changed, err := registry.Reload(ctx, staticSource{rules: []domain.PartnerOfferRule{tableRule("alpha", "0.2")}})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, first.Len())

	same, changed, err := registry.Reload(ctx, staticSource{rules: []domain.PartnerOfferRule{tableRule("alpha", "0.2")}})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first.Version, same.Version)

	updated, changed, err := registry.Reload(ctx, staticSource{rules: []domain.PartnerOfferRule{tableRule("alpha", "0.25")}})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotEqual(t, first.Version, updated.Version)

	current, err := registry.Current()
	require.NoError(t, err)
	assert.Same(t, updated, current)
}

func TestRegistry_FailedReloadKeepsPrevious(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	loaded, _, err := registry.Reload(ctx, staticSource{rules: []domain.PartnerOfferRule{tableRule("alpha", "0.2")}})
	require.NoError(t, err)

	_, _, err = registry.Reload(ctx, staticSource{err: errors.New("feed unavailable")})
	require.Error(t, err)

	_, _, err = registry.Reload(ctx, staticSource{rules: []domain.PartnerOfferRule{
		tableRule("alpha", "0.2"),
		tableRule("alpha", "0.3"),
	}})
	assert.True(t, errors.Is(err, customError.ErrInvalidPolicy))

	current, err := registry.Current()
	require.NoError(t, err)
	assert.Same(t, loaded, current)
}

func TestSnapshot_IsolatedFromCaller(t *testing.T) {
	rules := []domain.PartnerOfferRule{tableRule("alpha", "0.2")}
	rules[0].ExcludedEmployment = []domain.EmploymentCategory{domain.EmploymentStudent}

	snapshot, err := NewSnapshot(rules, time.Unix(0, 0))
	require.NoError(t, err)

	rules[0].PartnerID = "mutated"
	rules[0].ExcludedEmployment[0] = domain.EmploymentRetired

	got := snapshot.Rules()
	assert.Equal(t, "alpha", got[0].PartnerID)
	assert.Equal(t, domain.EmploymentStudent, got[0].ExcludedEmployment[0])

	got[0].PartnerID = "mutated again"
	assert.Equal(t, "alpha", snapshot.Rules()[0].PartnerID)
}

func TestSnapshot_VersionIgnoresLoadTime(t *testing.T) {
	rules := []domain.PartnerOfferRule{tableRule("alpha", "0.2"), tableRule("bravo", "0.3")}

	a, err := NewSnapshot(rules, time.Unix(0, 0))
	require.NoError(t, err)
	b, err := NewSnapshot(rules, time.Unix(1000, 0))
	require.NoError(t, err)

	assert.Equal(t, a.Version, b.Version)

	reordered, err := NewSnapshot([]domain.PartnerOfferRule{rules[1], rules[0]}, time.Unix(0, 0))
	require.NoError(t, err)
	assert.NotEqual(t, a.Version, reordered.Version)
}

func TestRegistry_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	registry := NewRegistry()
	small, err := NewSnapshot([]domain.PartnerOfferRule{tableRule("alpha", "0.2")}, time.Unix(0, 0))
	require.NoError(t, err)
	large, err := NewSnapshot([]domain.PartnerOfferRule{
		tableRule("alpha", "0.2"), tableRule("bravo", "0.2"), tableRule("charlie", "0.2"),
	}, time.Unix(0, 0))
	require.NoError(t, err)
	registry.Swap(small)

	expectedLen := map[string]int{small.Version: 1, large.Version: 3}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				current, err := registry.Current()
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, expectedLen[current.Version], len(current.Rules()))
			}
		}()
	}
	for j := 0; j < 500; j++ {
		if j%2 == 0 {
			registry.Swap(large)
		} else {
			registry.Swap(small)
		}
	}
	wg.Wait()
}

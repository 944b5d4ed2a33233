package referral

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

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestLedger(t *testing.T, policy Policy) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	ledger, err := NewLedger(store, policy, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return ledger, store
}

func funded(amount int64) domain.TerminalOutcome {
	return domain.TerminalOutcome{
		ApplicationID: "app-1",
		Status:        domain.ApplicationFunded,
		LoanAmount:    decimal.NewFromInt(amount),
	}
}

func TestRecordReferral(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T, l *Ledger)
		referrerID  string
		refereeID   string
		expectedErr error
	}{
		{
			name:       "first referral",
			referrerID: "alice",
			refereeID:  "bob",
		},
		{
			name:        "self referral",
			referrerID:  "alice",
			refereeID:   "alice",
			expectedErr: customError.ErrSelfReferral,
		},
		{
			name:        "blank ids",
			referrerID:  " ",
			refereeID:   "bob",
			expectedErr: customError.ErrInvalidInput,
		},
		{
			name: "same referrer again is idempotent",
			setup: func(t *testing.T, l *Ledger) {
				require.NoError(t, l.RecordReferral(context.Background(), "alice", "bob"))
			},
			referrerID: "alice",
			refereeID:  "bob",
		},
		{
			name: "different referrer while pending",
			setup: func(t *testing.T, l *Ledger) {
				require.NoError(t, l.RecordReferral(context.Background(), "alice", "bob"))
			},
			referrerID:  "carol",
			refereeID:   "bob",
			expectedErr: customError.ErrDuplicateReferral,
		},
		{
			name: "different referrer after earned",
			setup: func(t *testing.T, l *Ledger) {
				require.NoError(t, l.RecordReferral(context.Background(), "alice", "bob"))
				_, err := l.SettleOutcome(context.Background(), "bob", funded(1000000))
				require.NoError(t, err)
			},
			referrerID:  "carol",
			refereeID:   "bob",
			expectedErr: customError.ErrDuplicateReferral,
		},
		{
			name: "different referrer after void",
			setup: func(t *testing.T, l *Ledger) {
				require.NoError(t, l.RecordReferral(context.Background(), "alice", "bob"))
				_, err := l.SettleOutcome(context.Background(), "bob", domain.TerminalOutcome{
					ApplicationID: "app-0",
					Status:        domain.ApplicationRejected,
				})
				require.NoError(t, err)
			},
			referrerID: "carol",
			refereeID:  "bob",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _ := newTestLedger(t, DefaultPolicy())
			if tt.setup != nil {
				tt.setup(t, ledger)
			}

			err := ledger.RecordReferral(context.Background(), tt.referrerID, tt.refereeID)

			if tt.expectedErr != nil {
				assert.True(t, errors.Is(err, tt.expectedErr), "expected %v, got %v", tt.expectedErr, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecordReferral_Limits(t *testing.T) {
	t.Run("daily limit", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.DailyLimit = 2
		ledger, _ := newTestLedger(t, policy)
		ctx := context.Background()

		require.NoError(t, ledger.RecordReferral(ctx, "alice", "bob"))
		require.NoError(t, ledger.RecordReferral(ctx, "alice", "carol"))

		err := ledger.RecordReferral(ctx, "alice", "dave")
		assert.True(t, errors.Is(err, customError.ErrReferralLimitExceeded))

		// Another referrer is unaffected.
		assert.NoError(t, ledger.RecordReferral(ctx, "erin", "dave"))
	})

	t.Run("daily limit resets the next day", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.DailyLimit = 1
		store := NewMemoryStore()
		now := fixedNow
		ledger, err := NewLedger(store, policy, WithClock(func() time.Time { return now }))
		require.NoError(t, err)
		ctx := context.Background()

		require.NoError(t, ledger.RecordReferral(ctx, "alice", "bob"))
		assert.Error(t, ledger.RecordReferral(ctx, "alice", "carol"))

		now = fixedNow.Add(24 * time.Hour)
		assert.NoError(t, ledger.RecordReferral(ctx, "alice", "carol"))
	})

	t.Run("total limit", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.DailyLimit = 0
		policy.TotalLimit = 1
		ledger, _ := newTestLedger(t, policy)
		ctx := context.Background()

		require.NoError(t, ledger.RecordReferral(ctx, "alice", "bob"))

		err := ledger.RecordReferral(ctx, "alice", "carol")
		assert.True(t, errors.Is(err, customError.ErrReferralLimitExceeded))
		assert.Equal(t, customError.ErrCodeReferralLimitExceeded, customError.Code(err))
	})
}

func TestSettleOutcome_Funded(t *testing.T) {
	ledger, store := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	require.NoError(t, ledger.RecordReferral(ctx, "alice", "bob"))

	event, err := ledger.SettleOutcome(ctx, "bob", funded(1234567))

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "alice", event.ReferrerID)
	assert.Equal(t, "bob", event.RefereeID)
	assert.Equal(t, "app-1", event.ApplicationID)
	// 1,234,567 × 1% = 12,345.67
	assert.True(t, event.Amount.Equal(decimal.RequireFromString("12345.67")), "got %s", event.Amount)
	assert.True(t, event.RefereeBonus.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, fixedNow, event.OccurredAt)

	link, err := store.GetLatestByReferee(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.ReferralEarned, link.State)
	assert.Equal(t, event.LinkID, link.ID)
	assert.True(t, link.RewardAmount.Valid)
	require.NotNil(t, link.SettledAt)
}

func TestSettleOutcome_VoidOutcomes(t *testing.T) {
	for _, status := range []domain.ApplicationStatus{domain.ApplicationRejected, domain.ApplicationWithdrawn} {
		t.Run(string(status), func(t *testing.T) {
			ledger, store := newTestLedger(t, DefaultPolicy())
			ctx := context.Background()
			require.NoError(t, ledger.RecordReferral(ctx, "alice", "bob"))

			event, err := ledger.SettleOutcome(ctx, "bob", domain.TerminalOutcome{ApplicationID: "app-1", Status: status})

			require.NoError(t, err)
			assert.Nil(t, event)

			link, err := store.GetLatestByReferee(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, domain.ReferralVoid, link.State)
			assert.False(t, link.RewardAmount.Valid)
		})
	}
}

func TestSettleOutcome_ExactlyOnce(t *testing.T) {
	ledger, store := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	require.NoError(t, ledger.RecordReferral(ctx, "alice", "bob"))

	first, err := ledger.SettleOutcome(ctx, "bob", funded(1000000))
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := ledger.SettleOutcome(ctx, "bob", funded(1000000))
	assert.Nil(t, second)
	assert.True(t, errors.Is(err, customError.ErrAlreadySettled))

	_, err = ledger.SettleOutcome(ctx, "bob", domain.TerminalOutcome{ApplicationID: "app-1", Status: domain.ApplicationWithdrawn})
	assert.True(t, errors.Is(err, customError.ErrAlreadySettled))

	stats, err := store.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Earned)
	assert.True(t, stats.EarnedRewards.Equal(decimal.NewFromInt(10000)))
}

func TestSettleOutcome_ConcurrentSettlementsEarnOnce(t *testing.T) {
	ledger, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	require.NoError(t, ledger.RecordReferral(ctx, "alice", "bob"))

	const attempts = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		events  int
		settled int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event, err := ledger.SettleOutcome(ctx, "bob", funded(1000000))
			mu.Lock()
			defer mu.Unlock()
			if event != nil {
				events++
			}
			if errors.Is(err, customError.ErrAlreadySettled) {
				settled++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, events)
	assert.Equal(t, attempts-1, settled)
}

func TestSettleOutcome_Errors(t *testing.T) {
	ledger, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()

	_, err := ledger.SettleOutcome(ctx, "nobody", funded(1000))
	assert.True(t, errors.Is(err, customError.ErrReferralNotFound))

	require.NoError(t, ledger.RecordReferral(ctx, "alice", "bob"))

	_, err = ledger.SettleOutcome(ctx, "bob", funded(0))
	assert.True(t, errors.Is(err, customError.ErrInvalidInput))

	_, err = ledger.SettleOutcome(ctx, "bob", domain.TerminalOutcome{ApplicationID: "app-1", Status: "PAUSED"})
	assert.True(t, errors.Is(err, customError.ErrInvalidInput))

	// Invalid outcomes leave the link pending.
	event, err := ledger.SettleOutcome(ctx, "bob", funded(1000))
	require.NoError(t, err)
	assert.NotNil(t, event)
}

func TestSettleOutcome_PaddedIDs(t *testing.T) {
	ledger, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()

	require.NoError(t, ledger.RecordReferral(ctx, " alice ", "  bob\t"))

	_, err := ledger.SettleOutcome(ctx, "   ", funded(1000))
	assert.True(t, errors.Is(err, customError.ErrInvalidInput))

	event, err := ledger.SettleOutcome(ctx, " bob ", funded(1000000))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "bob", event.RefereeID)
	assert.Equal(t, "alice", event.ReferrerID)

	stats, err := ledger.Stats(ctx, "alice ")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Earned)
}

func TestReward(t *testing.T) {
	tests := []struct {
		name     string
		policy   func(p *Policy)
		loan     string
		expected string
	}{
		{name: "rate applied", loan: "2500000", expected: "25000"},
		{name: "capped", loan: "9000000", expected: "50000"},
		{name: "banker's rounding half to even", loan: "1000.50", expected: "10"},
		{name: "banker's rounding half to even upward", loan: "1001.50", expected: "10.02"},
		{
			name:     "uncapped",
			policy:   func(p *Policy) { p.RewardCap = decimal.NullDecimal{} },
			loan:     "9000000",
			expected: "90000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultPolicy()
			if tt.policy != nil {
				tt.policy(&policy)
			}
			ledger, _ := newTestLedger(t, policy)

			reward := ledger.Reward(decimal.RequireFromString(tt.loan))

			assert.True(t, reward.Equal(decimal.RequireFromString(tt.expected)),
				"Expected %s, but got %s", tt.expected, reward)
		})
	}
}

func TestStats(t *testing.T) {
	ledger, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()

	for _, referee := range []string{"bob", "carol", "dave"} {
		require.NoError(t, ledger.RecordReferral(ctx, "alice", referee))
	}
	_, err := ledger.SettleOutcome(ctx, "bob", funded(2000000))
	require.NoError(t, err)
	_, err = ledger.SettleOutcome(ctx, "carol", domain.TerminalOutcome{ApplicationID: "app-2", Status: domain.ApplicationWithdrawn})
	require.NoError(t, err)

	stats, err := ledger.Stats(ctx, "alice")

	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Earned)
	assert.Equal(t, 1, stats.Void)
	assert.True(t, stats.EarnedRewards.Equal(decimal.NewFromInt(20000)))

	_, err = ledger.Stats(ctx, "")
	assert.True(t, errors.Is(err, customError.ErrInvalidInput))
}

func TestTopReferrers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	clock := fixedNow.AddDate(0, 0, -60)
	ledger, err := NewLedger(store, DefaultPolicy(), WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	// Two months ago: carol brings in three referees.
	for _, referee := range []string{"r1", "r2", "r3"} {
		require.NoError(t, ledger.RecordReferral(ctx, "carol", referee))
	}

	clock = fixedNow
	for _, referee := range []string{"bob", "dave", "erin"} {
		require.NoError(t, ledger.RecordReferral(ctx, "alice", referee))
	}
	for _, referee := range []string{"frank", "gina"} {
		require.NoError(t, ledger.RecordReferral(ctx, "zoe", referee))
	}
	require.NoError(t, ledger.RecordReferral(ctx, "mia", "hank"))
	require.NoError(t, ledger.RecordReferral(ctx, "mia", "ivy"))
	_, err = ledger.SettleOutcome(ctx, "bob", funded(2000000))
	require.NoError(t, err)
	_, err = ledger.SettleOutcome(ctx, "ivy", domain.TerminalOutcome{ApplicationID: "app-9", Status: domain.ApplicationRejected})
	require.NoError(t, err)

	t.Run("last thirty days", func(t *testing.T) {
		top, err := ledger.TopReferrers(ctx, DefaultTopReferrers, 30)

		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, "alice", top[0].ReferrerID)
		assert.Equal(t, 3, top[0].Referrals)
		assert.Equal(t, 1, top[0].Earned)
		assert.True(t, top[0].EarnedRewards.Equal(decimal.NewFromInt(20000)))
		assert.Equal(t, "zoe", top[1].ReferrerID)
		assert.Equal(t, "mia", top[2].ReferrerID)
		assert.Equal(t, 1, top[2].Referrals)
	})

	t.Run("all time breaks ties by id", func(t *testing.T) {
		top, err := ledger.TopReferrers(ctx, 2, 0)

		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "alice", top[0].ReferrerID)
		assert.Equal(t, "carol", top[1].ReferrerID)
		assert.Equal(t, 3, top[1].Referrals)
	})

	t.Run("bounds", func(t *testing.T) {
		for _, args := range [][2]int{{0, 30}, {MaxTopReferrers + 1, 30}, {10, -1}, {10, MaxTopPeriodDays + 1}} {
			_, err := ledger.TopReferrers(ctx, args[0], args[1])
			assert.True(t, errors.Is(err, customError.ErrInvalidInput), "limit=%d period=%d", args[0], args[1])
		}
	})
}

func TestNewLedger_RejectsInvalidPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.RewardRate = decimal.NewFromInt(2)

	ledger, err := NewLedger(NewMemoryStore(), policy)

	assert.Nil(t, ledger)
	assert.True(t, errors.Is(err, customError.ErrInvalidPolicy))
}

func TestKeyedMutex_ReleasesKeys(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock("a")
	unlock()

	assert.Empty(t, k.locks)
}

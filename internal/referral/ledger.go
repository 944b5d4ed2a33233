package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/repository"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
	"github.com/segyhp/loan-aggregator/pkg/utils"
)

// Ledger records referral links and settles them exactly once.
//
// Settlement of a referee is serialized in-process by a per-referee lock; the
// repository's conditional update covers concurrent settlements across
// processes. Limits are checked under a per-referrer lock.
type Ledger struct {
	repo   repository.ReferralRepository
	policy Policy
	now    func() time.Time
	newID  func() uuid.UUID
	locks  *keyedMutex
}

type Option func(*Ledger)

// WithClock overrides the ledger's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func NewLedger(repo repository.ReferralRepository, policy Policy, opts ...Option) (*Ledger, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	l := &Ledger{
		repo:   repo,
		policy: policy,
		now:    time.Now,
		newID:  uuid.New,
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// RecordReferral links refereeID to referrerID. Recording the same pair again
// is a no-op. A referee whose previous link was voided can be referred again.
func (l *Ledger) RecordReferral(ctx context.Context, referrerID, refereeID string) error {
	referrerID = strings.TrimSpace(referrerID)
	refereeID = strings.TrimSpace(refereeID)
	if referrerID == "" || refereeID == "" {
		return customError.WrapInvalidInput("referrer and referee ids are required")
	}
	if referrerID == refereeID {
		return customError.WrapSelfReferral(refereeID)
	}

	// Referrer locks are always taken before referee locks.
	unlockReferrer := l.locks.Lock("referrer:" + referrerID)
	defer unlockReferrer()
	unlockReferee := l.locks.Lock("referee:" + refereeID)
	defer unlockReferee()

	existing, err := l.repo.GetLatestByReferee(ctx, refereeID)
	switch {
	case errors.Is(err, customError.ErrReferralNotFound):
	case err != nil:
		return err
	case existing.State.Active() && existing.ReferrerID == referrerID:
		return nil
	case existing.State.Active():
		return customError.WrapDuplicateReferral(refereeID, existing.ReferrerID)
	}

	if err := l.checkLimits(ctx, referrerID); err != nil {
		return err
	}

	link := &domain.ReferralLink{
		ID:         l.newID(),
		ReferrerID: referrerID,
		RefereeID:  refereeID,
		State:      domain.ReferralPending,
		CreatedAt:  l.now().UTC(),
	}
	return l.repo.Create(ctx, link)
}

func (l *Ledger) checkLimits(ctx context.Context, referrerID string) error {
	if l.policy.DailyLimit > 0 {
		now := l.now().UTC()
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		count, err := l.repo.CountByReferrer(ctx, referrerID, startOfDay)
		if err != nil {
			return err
		}
		if count >= l.policy.DailyLimit {
			return customError.WrapReferralLimitExceeded(referrerID, "daily")
		}
	}

	if l.policy.TotalLimit > 0 {
		count, err := l.repo.CountByReferrer(ctx, referrerID, time.Time{})
		if err != nil {
			return err
		}
		if count >= l.policy.TotalLimit {
			return customError.WrapReferralLimitExceeded(referrerID, "total")
		}
	}
	return nil
}

// SettleOutcome moves the referee's link out of PENDING. A funded application
// earns the referrer a reward and returns the RewardEvent; any other outcome
// voids the link and returns nil. Settling twice fails with ErrAlreadySettled.
func (l *Ledger) SettleOutcome(ctx context.Context, refereeID string, outcome domain.TerminalOutcome) (*domain.RewardEvent, error) {
	refereeID = strings.TrimSpace(refereeID)
	if refereeID == "" {
		return nil, customError.WrapInvalidInput("referee id is required")
	}
	next, err := targetState(outcome)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock("referee:" + refereeID)
	defer unlock()

	link, err := l.repo.GetLatestByReferee(ctx, refereeID)
	if err != nil {
		return nil, err
	}
	if !link.State.CanTransitionTo(next) {
		return nil, customError.WrapAlreadySettled(refereeID, string(link.State))
	}

	settledAt := l.now().UTC()
	settled := *link
	settled.State = next
	settled.ApplicationID = outcome.ApplicationID
	settled.SettledAt = &settledAt

	var reward decimal.Decimal
	if next == domain.ReferralEarned {
		reward = l.Reward(outcome.LoanAmount)
		settled.RewardAmount = decimal.NewNullDecimal(reward)
	}

	if err := l.repo.Settle(ctx, &settled, link.State); err != nil {
		return nil, err
	}

	if next != domain.ReferralEarned {
		return nil, nil
	}

	return &domain.RewardEvent{
		ID:            l.newID(),
		LinkID:        settled.ID,
		ReferrerID:    settled.ReferrerID,
		RefereeID:     settled.RefereeID,
		ApplicationID: outcome.ApplicationID,
		LoanAmount:    outcome.LoanAmount,
		Amount:        reward,
		RefereeBonus:  l.policy.RefereeBonus,
		OccurredAt:    settledAt,
	}, nil
}

func targetState(outcome domain.TerminalOutcome) (domain.ReferralState, error) {
	switch outcome.Status {
	case domain.ApplicationFunded:
		if !outcome.LoanAmount.IsPositive() {
			return "", customError.WrapInvalidInput("funded outcome requires a positive loan amount")
		}
		return domain.ReferralEarned, nil
	case domain.ApplicationRejected, domain.ApplicationWithdrawn:
		return domain.ReferralVoid, nil
	}
	return "", customError.WrapInvalidInput("unknown application status " + string(outcome.Status))
}

// Reward is loanAmount × RewardRate at money precision, bounded by RewardCap.
func (l *Ledger) Reward(loanAmount decimal.Decimal) decimal.Decimal {
	reward := loanAmount.Mul(l.policy.RewardRate).RoundBank(utils.MoneyPlaces)
	if l.policy.RewardCap.Valid && reward.GreaterThan(l.policy.RewardCap.Decimal) {
		return l.policy.RewardCap.Decimal
	}
	return reward
}

// Leaderboard bounds. A period of zero days ranks over all time.
const (
	DefaultTopReferrers = 10
	MaxTopReferrers     = 50
	MaxTopPeriodDays    = 365
)

// TopReferrers ranks referrers by the active links they created in the last
// periodDays days.
func (l *Ledger) TopReferrers(ctx context.Context, limit, periodDays int) ([]domain.TopReferrer, error) {
	if limit < 1 || limit > MaxTopReferrers {
		return nil, customError.WrapInvalidInput(fmt.Sprintf("limit must be within [1, %d]", MaxTopReferrers))
	}
	if periodDays < 0 || periodDays > MaxTopPeriodDays {
		return nil, customError.WrapInvalidInput(fmt.Sprintf("period must be within [0, %d] days", MaxTopPeriodDays))
	}

	var since time.Time
	if periodDays > 0 {
		since = l.now().UTC().AddDate(0, 0, -periodDays)
	}
	return l.repo.TopReferrers(ctx, since, limit)
}

// Stats summarises a referrer's links.
func (l *Ledger) Stats(ctx context.Context, referrerID string) (*domain.ReferralStats, error) {
	referrerID = strings.TrimSpace(referrerID)
	if referrerID == "" {
		return nil, customError.WrapInvalidInput("referrer id is required")
	}
	return l.repo.GetStats(ctx, referrerID)
}

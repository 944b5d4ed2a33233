package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferralState is the reward lifecycle of a referral link.
type ReferralState string

const (
	ReferralPending ReferralState = "PENDING"
	ReferralEarned  ReferralState = "EARNED"
	ReferralVoid    ReferralState = "VOID"
)

var referralTransitions = map[ReferralState][]ReferralState{
	ReferralPending: {ReferralEarned, ReferralVoid},
}

// CanTransitionTo is the only authority on referral state changes.
// PENDING moves to EARNED or VOID once; settled states never move again.
func (s ReferralState) CanTransitionTo(next ReferralState) bool {
	for _, allowed := range referralTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether the link still binds the referee to its referrer.
func (s ReferralState) Active() bool {
	return s == ReferralPending || s == ReferralEarned
}

// ReferralLink binds a referee to the referrer that brought them in.
// Links are never deleted; VOID is kept for audit.
type ReferralLink struct {
	ID            uuid.UUID           `json:"id" db:"id"`
	ReferrerID    string              `json:"referrer_id" db:"referrer_id"`
	RefereeID     string              `json:"referee_id" db:"referee_id"`
	State         ReferralState       `json:"state" db:"state"`
	ApplicationID string              `json:"application_id,omitempty" db:"application_id"`
	RewardAmount  decimal.NullDecimal `json:"reward_amount" db:"reward_amount"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	SettledAt     *time.Time          `json:"settled_at,omitempty" db:"settled_at"`
}

// ApplicationStatus is the terminal status of the referee's application.
type ApplicationStatus string

const (
	ApplicationFunded    ApplicationStatus = "FUNDED"
	ApplicationRejected  ApplicationStatus = "REJECTED"
	ApplicationWithdrawn ApplicationStatus = "WITHDRAWN"
)

// TerminalOutcome is the final state of an application used to settle a referral.
type TerminalOutcome struct {
	ApplicationID string            `json:"application_id" validate:"required"`
	Status        ApplicationStatus `json:"status" validate:"required,oneof=FUNDED REJECTED WITHDRAWN"`
	LoanAmount    decimal.Decimal   `json:"loan_amount"`
}

// RewardEvent is emitted when a link becomes EARNED, at most once per link.
type RewardEvent struct {
	ID            uuid.UUID       `json:"id"`
	LinkID        uuid.UUID       `json:"link_id"`
	ReferrerID    string          `json:"referrer_id"`
	RefereeID     string          `json:"referee_id"`
	ApplicationID string          `json:"application_id"`
	LoanAmount    decimal.Decimal `json:"loan_amount"`
	Amount        decimal.Decimal `json:"amount"`
	RefereeBonus  decimal.Decimal `json:"referee_bonus"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// TopReferrer is one leaderboard row. Referrals counts the referrer's active
// links created in the ranking window.
type TopReferrer struct {
	ReferrerID    string          `json:"referrer_id" db:"referrer_id"`
	Referrals     int             `json:"referrals" db:"referrals"`
	Earned        int             `json:"earned" db:"earned"`
	EarnedRewards decimal.Decimal `json:"earned_rewards" db:"earned_rewards"`
}

// ReferralStats summarises a referrer's links.
type ReferralStats struct {
	ReferrerID    string          `json:"referrer_id" db:"referrer_id"`
	Total         int             `json:"total" db:"total"`
	Pending       int             `json:"pending" db:"pending"`
	Earned        int             `json:"earned" db:"earned"`
	Void          int             `json:"void" db:"void"`
	EarnedRewards decimal.Decimal `json:"earned_rewards" db:"earned_rewards"`
}

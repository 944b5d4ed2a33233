package referral

import (
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/loan-aggregator/pkg/errors"
)

// Policy configures reward amounts and per-referrer limits. Zero limits mean
// unlimited.
type Policy struct {
	// RewardRate is the referrer's share of the funded loan amount.
	RewardRate   decimal.Decimal
	RewardCap    decimal.NullDecimal
	RefereeBonus decimal.Decimal

	DailyLimit int
	TotalLimit int
}

func DefaultPolicy() Policy {
	return Policy{
		RewardRate:   decimal.RequireFromString("0.01"),
		RewardCap:    decimal.NewNullDecimal(decimal.NewFromInt(50000)),
		RefereeBonus: decimal.NewFromInt(10000),
		DailyLimit:   10,
		TotalLimit:   100,
	}
}

func (p Policy) Validate() error {
	if p.RewardRate.IsNegative() || p.RewardRate.GreaterThan(decimal.NewFromInt(1)) {
		return customError.WrapInvalidPolicy("reward rate must be within [0, 1]")
	}
	if p.RewardCap.Valid && p.RewardCap.Decimal.IsNegative() {
		return customError.WrapInvalidPolicy("reward cap must not be negative")
	}
	if p.RefereeBonus.IsNegative() {
		return customError.WrapInvalidPolicy("referee bonus must not be negative")
	}
	if p.DailyLimit < 0 || p.TotalLimit < 0 {
		return customError.WrapInvalidPolicy("referral limits must not be negative")
	}
	return nil
}

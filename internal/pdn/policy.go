package pdn

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-aggregator/internal/domain"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
	"github.com/segyhp/loan-aggregator/pkg/utils"
)

// Threshold maps every ratio strictly below Below to Bucket.
type Threshold struct {
	Below  decimal.Decimal
	Bucket domain.RiskBucket
}

// Policy is the jurisdiction/product specific configuration of the engine.
type Policy struct {
	// Thresholds are ordered by Below; ratios at or above the last one fall
	// into Fallback.
	Thresholds []Threshold
	Fallback   domain.RiskBucket

	// ImplausibleCeiling caps the ratio (3 means 300% of income).
	ImplausibleCeiling decimal.Decimal

	// ObligationMedians imputes undisclosed obligation amounts per type.
	ObligationMedians map[domain.ObligationType]decimal.Decimal

	// TargetRatio is the affordability limit used by MaxAffordableAmount
	// and SuggestLoan.
	TargetRatio decimal.Decimal

	// MaxTermMonths is the longest term SuggestLoan may extend a request to.
	MaxTermMonths int

	RatioPlaces int32
}

// DefaultPolicy returns the thresholds used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: []Threshold{
			{Below: decimal.RequireFromString("0.30"), Bucket: domain.RiskBucketLow},
			{Below: decimal.RequireFromString("0.50"), Bucket: domain.RiskBucketMedium},
		},
		Fallback:           domain.RiskBucketHigh,
		ImplausibleCeiling: decimal.NewFromInt(3),
		ObligationMedians: map[domain.ObligationType]decimal.Decimal{
			domain.ObligationMortgage:     decimal.NewFromInt(2500000),
			domain.ObligationAutoLoan:     decimal.NewFromInt(1500000),
			domain.ObligationCreditCard:   decimal.NewFromInt(400000),
			domain.ObligationConsumerLoan: decimal.NewFromInt(800000),
			domain.ObligationMicroloan:    decimal.NewFromInt(300000),
		},
		TargetRatio:   decimal.RequireFromString("0.50"),
		MaxTermMonths: 36,
		RatioPlaces:   utils.RatioPlaces,
	}
}

// Validate checks that thresholds are ordered and non-overlapping and that
// every table entry is usable.
func (p Policy) Validate() error {
	if len(p.Thresholds) == 0 {
		return customError.WrapInvalidPolicy("debt burden thresholds are empty")
	}

	for i, th := range p.Thresholds {
		if !th.Bucket.Valid() {
			return customError.WrapInvalidPolicy(fmt.Sprintf("threshold %d has invalid bucket", i))
		}
		if !th.Below.IsPositive() {
			return customError.WrapInvalidPolicy(fmt.Sprintf("threshold %d must be positive", i))
		}
		if i == 0 {
			continue
		}
		prev := p.Thresholds[i-1]
		if !th.Below.GreaterThan(prev.Below) {
			return customError.WrapInvalidPolicy(fmt.Sprintf("threshold %d overlaps threshold %d", i, i-1))
		}
		if th.Bucket <= prev.Bucket {
			return customError.WrapInvalidPolicy(fmt.Sprintf("threshold %d bucket %s is not above %s", i, th.Bucket, prev.Bucket))
		}
	}

	last := p.Thresholds[len(p.Thresholds)-1]
	if !p.Fallback.Valid() || p.Fallback <= last.Bucket {
		return customError.WrapInvalidPolicy("fallback bucket must be above the last threshold bucket")
	}

	if !p.ImplausibleCeiling.IsPositive() {
		return customError.WrapInvalidPolicy("implausible ratio ceiling must be positive")
	}

	for obligationType, median := range p.ObligationMedians {
		if obligationType == "" {
			return customError.WrapInvalidPolicy("obligation median with empty type")
		}
		if median.IsNegative() {
			return customError.WrapInvalidPolicy(fmt.Sprintf("median for %s must not be negative", obligationType))
		}
	}

	if !p.TargetRatio.IsPositive() {
		return customError.WrapInvalidPolicy("target ratio must be positive")
	}

	if p.MaxTermMonths <= 0 {
		return customError.WrapInvalidPolicy("max term must be positive")
	}

	if p.RatioPlaces < 0 {
		return customError.WrapInvalidPolicy("ratio precision must not be negative")
	}

	return nil
}

// clone detaches the policy from caller-owned slices and maps.
func (p Policy) clone() Policy {
	out := p
	out.Thresholds = append([]Threshold(nil), p.Thresholds...)
	out.ObligationMedians = make(map[domain.ObligationType]decimal.Decimal, len(p.ObligationMedians))
	for k, v := range p.ObligationMedians {
		out.ObligationMedians[k] = v
	}
	return out
}

package scoring

import (
	"fmt"

	"github.com/segyhp/loan-aggregator/internal/domain"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
)

// Policy holds the weights and cutoffs of the scoring model.
type Policy struct {
	BaseScore int
	MinScore  int
	MaxScore  int

	BucketWeights map[domain.RiskBucket]int

	EmploymentWeights       map[domain.EmploymentCategory]int
	DefaultEmploymentWeight int

	// DefaultPenalty is subtracted per prior default and halves every
	// DefaultHalfLifeMonths of age.
	DefaultPenalty        int
	DefaultHalfLifeMonths int

	OnTimeRepaymentBonus int
	MaxRepaymentBonus    int

	LowRiskMin    int
	MediumRiskMin int
	HighRiskMin   int
}

// DefaultPolicy returns the model used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		BaseScore: 600,
		MinScore:  0,
		MaxScore:  1000,
		BucketWeights: map[domain.RiskBucket]int{
			domain.RiskBucketLow:    100,
			domain.RiskBucketMedium: 0,
			domain.RiskBucketHigh:   -250,
		},
		EmploymentWeights: map[domain.EmploymentCategory]int{
			domain.EmploymentEmployed:     80,
			domain.EmploymentSelfEmployed: 40,
			domain.EmploymentRetired:      20,
			domain.EmploymentStudent:      -20,
			domain.EmploymentUnemployed:   -120,
		},
		DefaultEmploymentWeight: 0,
		DefaultPenalty:          200,
		DefaultHalfLifeMonths:   12,
		OnTimeRepaymentBonus:    25,
		MaxRepaymentBonus:       150,
		LowRiskMin:              700,
		MediumRiskMin:           550,
		HighRiskMin:             400,
	}
}

func (p Policy) Validate() error {
	if p.MinScore >= p.MaxScore {
		return customError.WrapInvalidPolicy(fmt.Sprintf("score range [%d, %d] is empty", p.MinScore, p.MaxScore))
	}
	if !(p.LowRiskMin > p.MediumRiskMin && p.MediumRiskMin > p.HighRiskMin) {
		return customError.WrapInvalidPolicy("tier cutoffs must be strictly decreasing from LOW to HIGH")
	}
	if p.HighRiskMin < p.MinScore || p.LowRiskMin > p.MaxScore {
		return customError.WrapInvalidPolicy("tier cutoffs must lie inside the score range")
	}
	for _, bucket := range []domain.RiskBucket{domain.RiskBucketLow, domain.RiskBucketMedium, domain.RiskBucketHigh} {
		if _, ok := p.BucketWeights[bucket]; !ok {
			return customError.WrapInvalidPolicy(fmt.Sprintf("missing weight for bucket %s", bucket))
		}
	}
	if p.BucketWeights[domain.RiskBucketHigh] > p.BucketWeights[domain.RiskBucketMedium] ||
		p.BucketWeights[domain.RiskBucketMedium] > p.BucketWeights[domain.RiskBucketLow] {
		return customError.WrapInvalidPolicy("bucket weights must not reward higher debt burden")
	}
	if p.DefaultPenalty < 0 {
		return customError.WrapInvalidPolicy("default penalty must not be negative")
	}
	if p.DefaultHalfLifeMonths <= 0 {
		return customError.WrapInvalidPolicy("default half-life must be positive")
	}
	if p.OnTimeRepaymentBonus < 0 || p.MaxRepaymentBonus < 0 {
		return customError.WrapInvalidPolicy("repayment bonus must not be negative")
	}
	return nil
}

func (p Policy) clone() Policy {
	out := p
	out.BucketWeights = make(map[domain.RiskBucket]int, len(p.BucketWeights))
	for k, v := range p.BucketWeights {
		out.BucketWeights[k] = v
	}
	out.EmploymentWeights = make(map[domain.EmploymentCategory]int, len(p.EmploymentWeights))
	for k, v := range p.EmploymentWeights {
		out.EmploymentWeights[k] = v
	}
	return out
}

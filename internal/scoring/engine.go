package scoring

import (
	"fmt"

	"github.com/segyhp/loan-aggregator/internal/domain"
)

// Factor names, listed on ScoreResult.Factors in this order.
const (
	FactorDebtBurden       = "debt_burden"
	FactorEmployment       = "employment"
	FactorPriorDefaults    = "prior_defaults"
	FactorOnTimeRepayments = "on_time_repayments"
)

// StopRuleHighBurdenNoHistory marks a tier forced to REJECTED by the guardrail.
const StopRuleHighBurdenNoHistory = "high-debt-burden-without-repayment-history"

// Engine scores an applicant from the debt-burden result, employment and history.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy.clone()}, nil
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy.clone()
}

// Score combines the weighted factors, clamps the result into the configured
// range and applies the high-burden stop rule.
func (e *Engine) Score(profile domain.FinancialProfile, debtBurden domain.DebtBurdenResult, history []domain.PastApplicationOutcome) domain.ScoreResult {
	var (
		defaults, onTime int
		defaultPenalty   int
	)
	for _, outcome := range history {
		switch outcome.Kind {
		case domain.OutcomeDefault:
			defaults++
			defaultPenalty += e.decayedPenalty(outcome.MonthsAgo)
		case domain.OutcomeOnTimeRepayment:
			onTime++
		}
	}

	repaymentBonus := e.policy.OnTimeRepaymentBonus * onTime
	if repaymentBonus > e.policy.MaxRepaymentBonus {
		repaymentBonus = e.policy.MaxRepaymentBonus
	}

	employmentWeight, ok := e.policy.EmploymentWeights[profile.Employment]
	if !ok {
		employmentWeight = e.policy.DefaultEmploymentWeight
	}

	factors := []domain.ScoreFactor{
		{
			Name:   FactorDebtBurden,
			Weight: e.policy.BucketWeights[debtBurden.Bucket],
			Detail: fmt.Sprintf("bucket=%s ratio=%s", debtBurden.Bucket, debtBurden.Ratio),
		},
		{
			Name:   FactorEmployment,
			Weight: employmentWeight,
			Detail: "category=" + string(profile.Employment),
		},
		{
			Name:   FactorPriorDefaults,
			Weight: -defaultPenalty,
			Detail: fmt.Sprintf("count=%d", defaults),
		},
		{
			Name:   FactorOnTimeRepayments,
			Weight: repaymentBonus,
			Detail: fmt.Sprintf("count=%d", onTime),
		},
	}

	raw := e.policy.BaseScore
	for _, f := range factors {
		raw += f.Weight
	}
	score := e.clamp(raw)

	result := domain.ScoreResult{
		Score:    score,
		RawScore: raw,
		Tier:     e.tierFor(score),
		Factors:  factors,
	}

	if debtBurden.Bucket == domain.RiskBucketHigh && onTime == 0 {
		result.Tier = domain.TierRejected
		result.StopRule = StopRuleHighBurdenNoHistory
	}
	result.Recommendations = recommend(result.Tier, factors, onTime)

	return result
}

func (e *Engine) decayedPenalty(monthsAgo int) int {
	if monthsAgo < 0 {
		monthsAgo = 0
	}
	halvings := monthsAgo / e.policy.DefaultHalfLifeMonths
	if halvings >= 31 {
		return 0
	}
	return e.policy.DefaultPenalty >> uint(halvings)
}

func (e *Engine) clamp(raw int) int {
	switch {
	case raw < e.policy.MinScore:
		return e.policy.MinScore
	case raw > e.policy.MaxScore:
		return e.policy.MaxScore
	}
	return raw
}

func (e *Engine) tierFor(score int) domain.Tier {
	switch {
	case score >= e.policy.LowRiskMin:
		return domain.TierLow
	case score >= e.policy.MediumRiskMin:
		return domain.TierMedium
	case score >= e.policy.HighRiskMin:
		return domain.TierHigh
	}
	return domain.TierRejected
}

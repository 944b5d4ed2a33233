package pdn

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-aggregator/internal/domain"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
	"github.com/segyhp/loan-aggregator/pkg/utils"
)

// Correction reasons recorded on DebtBurdenResult.Corrections.
const (
	CorrectionImputedPrefix = "missing-amount-imputed:"
	CorrectionRatioCapped   = "implausible-ratio-capped"
	CorrectionBucketWidened = "low-confidence-bucket-widened"
)

// Engine computes the debt-burden indicator (PDN) of a financial profile.
type Engine struct {
	policy  Policy
	ceiling *big.Rat
	bounds  []*big.Rat
}

func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	policy = policy.clone()
	bounds := make([]*big.Rat, len(policy.Thresholds))
	for i, th := range policy.Thresholds {
		bounds[i] = th.Below.Rat()
	}

	return &Engine{
		policy:  policy,
		ceiling: policy.ImplausibleCeiling.Rat(),
		bounds:  bounds,
	}, nil
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy.clone()
}

// Compute calculates obligations ÷ income and applies the correction policy:
// imputation of undisclosed amounts, capping of implausible ratios and
// widening of the bucket when most inputs are low-confidence.
func (e *Engine) Compute(profile domain.FinancialProfile) (domain.DebtBurdenResult, error) {
	if !profile.MonthlyIncome.Valid || !profile.MonthlyIncome.Decimal.IsPositive() {
		return domain.DebtBurdenResult{}, customError.WrapInsufficientData("monthly income is missing or not positive")
	}

	var (
		corrections   []string
		lowConfidence int
		total         = decimal.Zero
	)

	for i, obligation := range profile.Obligations {
		amount := obligation.Amount
		low := obligation.LowConfidence()

		if !amount.Valid {
			median, ok := e.policy.ObligationMedians[obligation.Type]
			if !ok {
				return domain.DebtBurdenResult{}, customError.WrapInsufficientData(
					fmt.Sprintf("obligation %d of type %q has no amount and no configured median", i, obligation.Type))
			}
			amount = decimal.NewNullDecimal(median)
			low = true
			corrections = append(corrections, CorrectionImputedPrefix+string(obligation.Type))
		}

		if amount.Decimal.IsNegative() {
			return domain.DebtBurdenResult{}, customError.WrapInvalidInput(
				fmt.Sprintf("obligation %d has a negative amount", i))
		}

		if low {
			lowConfidence++
		}
		total = total.Add(amount.Decimal)
	}

	ratio := new(big.Rat).Quo(total.Rat(), profile.MonthlyIncome.Decimal.Rat())
	if ratio.Cmp(e.ceiling) > 0 {
		ratio.Set(e.ceiling)
		corrections = append(corrections, CorrectionRatioCapped)
	}

	bucket := e.bucketFor(ratio)
	if lowConfidence*2 > len(profile.Obligations) {
		if widened := bucket.Widen(); widened != bucket {
			bucket = widened
			corrections = append(corrections, CorrectionBucketWidened)
		}
	}

	result := domain.NewDebtBurdenResult(ratio, utils.RoundRat(ratio, e.policy.RatioPlaces), bucket)
	result.Corrected = len(corrections) > 0
	result.Corrections = corrections
	result.MonthlyIncome = profile.MonthlyIncome.Decimal
	result.TotalObligations = total
	result.LowConfidence = lowConfidence
	result.ObligationCount = len(profile.Obligations)

	return result, nil
}

func (e *Engine) bucketFor(ratio *big.Rat) domain.RiskBucket {
	for i, bound := range e.bounds {
		if ratio.Cmp(bound) < 0 {
			return e.policy.Thresholds[i].Bucket
		}
	}
	return e.policy.Fallback
}

package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Obligation is one existing monthly debt payment. Amount is invalid (not Valid)
// when the applicant did not disclose it.
type Obligation struct {
	Type       ObligationType      `json:"type"`
	Amount     decimal.NullDecimal `json:"amount"`
	Confidence Confidence          `json:"confidence"`
}

// LowConfidence reports whether the entry was flagged as unreliable.
func (o Obligation) LowConfidence() bool {
	return o.Confidence == ConfidenceLow
}

// FinancialProfile is a snapshot of the applicant's disclosures. Engines never
// modify it; recalculation takes a new snapshot.
type FinancialProfile struct {
	ApplicantID   string              `json:"applicant_id"`
	MonthlyIncome decimal.NullDecimal `json:"monthly_income"`
	Obligations   []Obligation        `json:"obligations"`
	Employment    EmploymentCategory  `json:"employment"`
}

// DebtBurdenResult is the immutable output of a PDN calculation.
type DebtBurdenResult struct {
	exactRatio *big.Rat

	// Ratio is the exact ratio rounded for output.
	Ratio            decimal.Decimal `json:"ratio"`
	Bucket           RiskBucket      `json:"bucket"`
	Corrected        bool            `json:"corrected"`
	Corrections      []string        `json:"corrections"`
	MonthlyIncome    decimal.Decimal `json:"monthly_income"`
	TotalObligations decimal.Decimal `json:"total_obligations"`
	LowConfidence    int             `json:"low_confidence_obligations"`
	ObligationCount  int             `json:"obligation_count"`
}

// NewDebtBurdenResult builds a result around an exact ratio. The rational is
// copied so later changes by the caller cannot leak in.
func NewDebtBurdenResult(exactRatio *big.Rat, rounded decimal.Decimal, bucket RiskBucket) DebtBurdenResult {
	return DebtBurdenResult{
		exactRatio: new(big.Rat).Set(exactRatio),
		Ratio:      rounded,
		Bucket:     bucket,
	}
}

// ExactRatio returns a copy of the unrounded ratio.
func (r DebtBurdenResult) ExactRatio() *big.Rat {
	if r.exactRatio == nil {
		return r.Ratio.Rat()
	}
	return new(big.Rat).Set(r.exactRatio)
}

// OutcomeKind classifies a past application in the applicant's history.
type OutcomeKind string

const (
	OutcomeDefault         OutcomeKind = "default"
	OutcomeOnTimeRepayment OutcomeKind = "on_time_repayment"
	OutcomeLateRepayment   OutcomeKind = "late_repayment"
	OutcomeRejected        OutcomeKind = "rejected"
	OutcomeWithdrawn       OutcomeKind = "withdrawn"
)

// PastApplicationOutcome is one entry of the applicant's history. MonthsAgo is
// supplied by the caller so scoring never reads the clock.
type PastApplicationOutcome struct {
	Kind      OutcomeKind `json:"kind" validate:"required"`
	MonthsAgo int         `json:"months_ago" validate:"gte=0"`
}

// ScoreFactor is one signed contribution to the score, in evaluation order.
type ScoreFactor struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
	Detail string `json:"detail,omitempty"`
}

// ScoreResult is the immutable output of a scoring pass.
type ScoreResult struct {
	Score    int           `json:"score"`
	RawScore int           `json:"raw_score"`
	Tier     Tier          `json:"tier"`
	Factors  []ScoreFactor `json:"factors"`
	StopRule string        `json:"stop_rule,omitempty"`

	Recommendations []string `json:"recommendations"`
}

// LoanRequest is the amount and term the applicant asks for.
type LoanRequest struct {
	ApplicationID string          `json:"application_id"`
	Amount        decimal.Decimal `json:"amount"`
	TermMonths    int             `json:"term_months"`
}

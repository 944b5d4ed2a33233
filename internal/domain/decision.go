package domain

import "github.com/shopspring/decimal"

// DecisionRequest is the validated input handed over by the application layer.
type DecisionRequest struct {
	Request LoanRequest              `json:"request"`
	Profile FinancialProfile         `json:"profile"`
	History []PastApplicationOutcome `json:"history"`
}

// Decision bundles the immutable results of one pipeline run. Persisting it is
// the caller's concern.
type Decision struct {
	ApplicationID       string            `json:"application_id"`
	DebtBurden          DebtBurdenResult  `json:"debt_burden"`
	Score               ScoreResult       `json:"score"`
	Offers              AggregationResult `json:"offers"`
	MaxAffordableAmount decimal.Decimal   `json:"max_affordable_amount"`
	Suggestion          LoanSuggestion    `json:"suggestion"`
}

type LoanCorrectionKind string

const (
	CorrectionTermExtended  LoanCorrectionKind = "term_extended"
	CorrectionAmountReduced LoanCorrectionKind = "amount_reduced"
)

// LoanCorrection records one change made to the requested loan.
type LoanCorrection struct {
	Kind           LoanCorrectionKind `json:"kind"`
	FromAmount     decimal.Decimal    `json:"from_amount"`
	ToAmount       decimal.Decimal    `json:"to_amount"`
	FromTermMonths int                `json:"from_term_months"`
	ToTermMonths   int                `json:"to_term_months"`
}

type LoanScenarioKind string

const (
	ScenarioExtendedTerm  LoanScenarioKind = "extended_term"
	ScenarioReducedAmount LoanScenarioKind = "reduced_amount"
)

// LoanScenario is an alternative amount and term priced at the same rate.
type LoanScenario struct {
	Kind                LoanScenarioKind `json:"kind"`
	Amount              decimal.Decimal  `json:"amount"`
	TermMonths          int              `json:"term_months"`
	MonthlyPayment      decimal.Decimal  `json:"monthly_payment"`
	ProjectedDebtBurden decimal.Decimal  `json:"projected_debt_burden"`
	WithinTarget        bool             `json:"within_target"`
}

// LoanSuggestion is the closest loan to the request that keeps the projected
// debt burden within target. Affordable is false when no amount fits at all;
// Amount is then zero.
type LoanSuggestion struct {
	Amount              decimal.Decimal  `json:"amount"`
	TermMonths          int              `json:"term_months"`
	AnnualRate          decimal.Decimal  `json:"annual_rate"`
	MonthlyPayment      decimal.Decimal  `json:"monthly_payment"`
	ProjectedDebtBurden decimal.Decimal  `json:"projected_debt_burden"`
	Affordable          bool             `json:"affordable"`
	Corrected           bool             `json:"corrected"`
	Corrections         []LoanCorrection `json:"corrections"`
	Alternatives        []LoanScenario   `json:"alternatives"`
}

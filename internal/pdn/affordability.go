package pdn

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-aggregator/internal/domain"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
	"github.com/segyhp/loan-aggregator/pkg/utils"
)

// reducedAmountShare sizes the reduced-amount alternative.
var reducedAmountShare = decimal.RequireFromString("0.75")

// ProjectedRatio is the debt burden after adding a new monthly payment to the
// applicant's existing obligations. The implausibility cap is not applied.
func ProjectedRatio(result domain.DebtBurdenResult, monthlyPayment decimal.Decimal) *big.Rat {
	if !result.MonthlyIncome.IsPositive() {
		return new(big.Rat)
	}
	obligations := result.TotalObligations.Add(monthlyPayment)
	return new(big.Rat).Quo(obligations.Rat(), result.MonthlyIncome.Rat())
}

// paymentBudget is the largest monthly payment, at money precision, that keeps
// the projected ratio within target. Being on the money grid, any payment
// that rounds from an exact value below it stays below it.
func (e *Engine) paymentBudget(result domain.DebtBurdenResult) decimal.Decimal {
	headroom := result.MonthlyIncome.Mul(e.policy.TargetRatio).Sub(result.TotalObligations)
	return utils.FloorRat(headroom.Rat(), utils.MoneyPlaces)
}

// MaxAffordableAmount returns the largest principal, at money precision and
// rounded down, whose annuity payment keeps the projected ratio within the
// policy's target. Zero means no headroom is left.
func (e *Engine) MaxAffordableAmount(result domain.DebtBurdenResult, annualRate decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	budget := e.paymentBudget(result)
	if !budget.IsPositive() {
		return decimal.Zero, nil
	}

	principal, err := utils.PrincipalForPaymentRat(budget.Rat(), annualRate, termMonths)
	if err != nil {
		return decimal.Zero, err
	}

	return utils.FloorRat(principal, utils.MoneyPlaces), nil
}

// SuggestLoan fits the request to the target ratio. A request over target is
// first extended to the policy's maximum term and, if that is not enough,
// reduced to the largest affordable amount at that term. Every change is
// listed in Corrections. Alternatives are priced regardless of the outcome.
func (e *Engine) SuggestLoan(result domain.DebtBurdenResult, annualRate decimal.Decimal, request domain.LoanRequest) (domain.LoanSuggestion, error) {
	if !request.Amount.IsPositive() {
		return domain.LoanSuggestion{}, customError.WrapInvalidInput("requested amount must be positive")
	}
	if request.TermMonths <= 0 {
		return domain.LoanSuggestion{}, customError.WrapInvalidInput("requested term must be positive")
	}
	if annualRate.IsNegative() {
		return domain.LoanSuggestion{}, customError.WrapInvalidInput("annual rate must not be negative")
	}

	alternatives, err := e.alternatives(result, annualRate, request)
	if err != nil {
		return domain.LoanSuggestion{}, err
	}
	suggestion := domain.LoanSuggestion{
		AnnualRate:   annualRate,
		Corrections:  []domain.LoanCorrection{},
		Alternatives: alternatives,
	}

	current, err := e.scenario(result, annualRate, request.Amount, request.TermMonths)
	if err != nil {
		return domain.LoanSuggestion{}, err
	}

	if !current.WithinTarget && request.TermMonths < e.policy.MaxTermMonths {
		current, err = e.scenario(result, annualRate, request.Amount, e.policy.MaxTermMonths)
		if err != nil {
			return domain.LoanSuggestion{}, err
		}
		suggestion.Corrections = append(suggestion.Corrections, domain.LoanCorrection{
			Kind:           domain.CorrectionTermExtended,
			FromAmount:     request.Amount,
			ToAmount:       request.Amount,
			FromTermMonths: request.TermMonths,
			ToTermMonths:   current.TermMonths,
		})
	}

	if !current.WithinTarget {
		amount, err := e.MaxAffordableAmount(result, annualRate, current.TermMonths)
		if err != nil {
			return domain.LoanSuggestion{}, err
		}
		if !amount.IsPositive() {
			suggestion.TermMonths = current.TermMonths
			suggestion.Amount = decimal.Zero
			suggestion.MonthlyPayment = decimal.Zero
			suggestion.ProjectedDebtBurden = utils.RoundRat(ProjectedRatio(result, decimal.Zero), e.policy.RatioPlaces)
			suggestion.Corrected = len(suggestion.Corrections) > 0
			return suggestion, nil
		}

		reduced, err := e.scenario(result, annualRate, amount, current.TermMonths)
		if err != nil {
			return domain.LoanSuggestion{}, err
		}
		suggestion.Corrections = append(suggestion.Corrections, domain.LoanCorrection{
			Kind:           domain.CorrectionAmountReduced,
			FromAmount:     request.Amount,
			ToAmount:       amount,
			FromTermMonths: current.TermMonths,
			ToTermMonths:   current.TermMonths,
		})
		current = reduced
	}

	suggestion.Amount = current.Amount
	suggestion.TermMonths = current.TermMonths
	suggestion.MonthlyPayment = current.MonthlyPayment
	suggestion.ProjectedDebtBurden = current.ProjectedDebtBurden
	suggestion.Affordable = true
	suggestion.Corrected = len(suggestion.Corrections) > 0
	return suggestion, nil
}

func (e *Engine) alternatives(result domain.DebtBurdenResult, annualRate decimal.Decimal, request domain.LoanRequest) ([]domain.LoanScenario, error) {
	out := []domain.LoanScenario{}

	if request.TermMonths < e.policy.MaxTermMonths {
		extended, err := e.scenario(result, annualRate, request.Amount, e.policy.MaxTermMonths)
		if err != nil {
			return nil, err
		}
		extended.Kind = domain.ScenarioExtendedTerm
		out = append(out, extended)
	}

	if amount := request.Amount.Mul(reducedAmountShare).Truncate(utils.MoneyPlaces); amount.IsPositive() {
		reduced, err := e.scenario(result, annualRate, amount, request.TermMonths)
		if err != nil {
			return nil, err
		}
		reduced.Kind = domain.ScenarioReducedAmount
		out = append(out, reduced)
	}

	return out, nil
}

func (e *Engine) scenario(result domain.DebtBurdenResult, annualRate, amount decimal.Decimal, termMonths int) (domain.LoanScenario, error) {
	payment, err := utils.CalculateMonthlyPayment(amount, annualRate, termMonths)
	if err != nil {
		return domain.LoanScenario{}, customError.WrapInvalidInput(err.Error())
	}
	projected := ProjectedRatio(result, payment)

	return domain.LoanScenario{
		Amount:              amount,
		TermMonths:          termMonths,
		MonthlyPayment:      payment,
		ProjectedDebtBurden: utils.RoundRat(projected, e.policy.RatioPlaces),
		WithinTarget:        projected.Cmp(e.policy.TargetRatio.Rat()) <= 0,
	}, nil
}

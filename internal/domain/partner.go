package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceQuery is what a partner prices: the applicant's tier and the requested terms.
type PriceQuery struct {
	Tier       Tier
	Amount     decimal.Decimal
	TermMonths int
}

// Pricer computes a partner's annual rate (a fraction, 0.24 = 24%). Implementations
// must be pure: no side effects and no network calls.
type Pricer interface {
	AnnualRate(ctx context.Context, q PriceQuery) (decimal.Decimal, error)
}

// PartnerOfferRule is a partner bank's eligibility predicate and pricing function.
// Rules come from configuration and are treated as read-only.
type PartnerOfferRule struct {
	PartnerID              string               `json:"partner_id"`
	Name                   string               `json:"name"`
	Priority               int                  `json:"priority"`
	MinScore               int                  `json:"min_score"`
	MaxDebtBurden          decimal.Decimal      `json:"max_debt_burden"`
	MaxProjectedDebtBurden decimal.NullDecimal  `json:"max_projected_debt_burden"`
	ExcludedEmployment     []EmploymentCategory `json:"excluded_employment"`
	MinAmount              decimal.Decimal      `json:"min_amount"`
	MaxAmount              decimal.Decimal      `json:"max_amount"`
	MinTermMonths          int                  `json:"min_term_months"`
	MaxTermMonths          int                  `json:"max_term_months"`
	Pricing                Pricer               `json:"pricing"`
}

// Excludes reports whether the employment category is barred by the partner.
func (r PartnerOfferRule) Excludes(category EmploymentCategory) bool {
	for _, excluded := range r.ExcludedEmployment {
		if excluded == category {
			return true
		}
	}
	return false
}

// Offer is one priced, eligible partner offer. Rank 1 is the best offer.
type Offer struct {
	PartnerID           string          `json:"partner_id"`
	PartnerName         string          `json:"partner_name"`
	Amount              decimal.Decimal `json:"amount"`
	TermMonths          int             `json:"term_months"`
	AnnualRate          decimal.Decimal `json:"annual_rate"`
	MonthlyPayment      decimal.Decimal `json:"monthly_payment"`
	TotalRepayment      decimal.Decimal `json:"total_repayment"`
	Overpayment         decimal.Decimal `json:"overpayment"`
	ProjectedDebtBurden decimal.Decimal `json:"projected_debt_burden"`
	Priority            int             `json:"priority"`
	Rank                int             `json:"rank"`
}

// PartnerEvaluationWarning records a partner that was excluded because its
// evaluation failed, panicked or timed out. It is non-fatal.
type PartnerEvaluationWarning struct {
	PartnerID string `json:"partner_id"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

func (w PartnerEvaluationWarning) Error() string {
	return "partner " + w.PartnerID + " excluded: " + w.Reason
}

func (w PartnerEvaluationWarning) Unwrap() error {
	return w.Err
}

// AggregationResult is the ranked offers of one aggregation run plus the
// warnings of partners that had to be skipped.
type AggregationResult struct {
	SnapshotVersion string                     `json:"snapshot_version"`
	Offers          []Offer                    `json:"offers"`
	Warnings        []PartnerEvaluationWarning `json:"warnings"`
}

// NoEligibleOffers distinguishes "nobody qualified" from a computation failure.
func (r AggregationResult) NoEligibleOffers() bool {
	return len(r.Offers) == 0
}

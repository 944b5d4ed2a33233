package offers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/pdn"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
	"github.com/segyhp/loan-aggregator/pkg/utils"
)

const (
	DefaultEvaluationTimeout = 2 * time.Second
	DefaultMaxParallel       = 8
)

// Warning reasons.
const (
	ReasonTimeout       = "evaluation timed out"
	ReasonPanic         = "evaluation panicked"
	ReasonMalformedRule = "malformed rule"
	ReasonPricingFailed = "pricing failed"
)

var errMalformedRule = errors.New("malformed partner rule")

// Applicant is everything the engine needs to know about the application.
type Applicant struct {
	Score      domain.ScoreResult
	DebtBurden domain.DebtBurdenResult
	Request    domain.LoanRequest
	Employment domain.EmploymentCategory
}

// Engine matches an applicant against partner rules and ranks the offers.
type Engine struct {
	timeout     time.Duration
	maxParallel int
}

type Option func(*Engine)

// WithEvaluationTimeout bounds a single partner evaluation.
func WithEvaluationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxParallel bounds how many partners are evaluated at once.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeout:     DefaultEvaluationTimeout,
		maxParallel: DefaultMaxParallel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type evaluation struct {
	offer   *domain.Offer
	warning *domain.PartnerEvaluationWarning
}

// AggregateSnapshot runs Aggregate over a registry snapshot and stamps the
// result with the snapshot version.
func (e *Engine) AggregateSnapshot(ctx context.Context, applicant Applicant, snapshot *Snapshot) (domain.AggregationResult, error) {
	if snapshot == nil {
		return domain.AggregationResult{}, customError.WrapPartnersUnavailable()
	}
	result, err := e.Aggregate(ctx, applicant, snapshot.Rules())
	if err != nil {
		return result, err
	}
	result.SnapshotVersion = snapshot.Version
	return result, nil
}

// Aggregate evaluates every rule concurrently and returns the eligible offers
// ranked by total repayment, term, priority and partner id. Ineligible partners
// are dropped silently; partners whose evaluation fails, panics or times out
// are dropped with a warning. An empty offer list is not an error.
func (e *Engine) Aggregate(ctx context.Context, applicant Applicant, rules []domain.PartnerOfferRule) (domain.AggregationResult, error) {
	if !applicant.Request.Amount.IsPositive() {
		return domain.AggregationResult{}, customError.WrapInvalidInput("requested amount must be positive")
	}
	if applicant.Request.TermMonths <= 0 {
		return domain.AggregationResult{}, customError.WrapInvalidInput("requested term must be positive")
	}

	evaluations := make([]evaluation, len(rules))

	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for i := range rules {
		rule := rules[i]
		g.Go(func() error {
			evaluations[i] = e.evaluateWithin(ctx, applicant, rule)
			return nil
		})
	}
	_ = g.Wait()

	// A cancelled caller is not a partner failure.
	if err := ctx.Err(); err != nil {
		return domain.AggregationResult{}, fmt.Errorf("offer aggregation interrupted: %w", err)
	}

	result := domain.AggregationResult{
		Offers:   []domain.Offer{},
		Warnings: []domain.PartnerEvaluationWarning{},
	}
	for _, ev := range evaluations {
		if ev.offer != nil {
			result.Offers = append(result.Offers, *ev.offer)
		}
		if ev.warning != nil {
			result.Warnings = append(result.Warnings, *ev.warning)
		}
	}

	rank(result.Offers)
	sort.SliceStable(result.Warnings, func(i, j int) bool {
		return result.Warnings[i].PartnerID < result.Warnings[j].PartnerID
	})

	return result, nil
}

func rank(offers []domain.Offer) {
	sort.Slice(offers, func(i, j int) bool {
		a, b := offers[i], offers[j]
		if c := a.TotalRepayment.Cmp(b.TotalRepayment); c != 0 {
			return c < 0
		}
		if a.TermMonths != b.TermMonths {
			return a.TermMonths < b.TermMonths
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.PartnerID < b.PartnerID
	})
	for i := range offers {
		offers[i].Rank = i + 1
	}
}

func (e *Engine) evaluateWithin(parent context.Context, applicant Applicant, rule domain.PartnerOfferRule) evaluation {
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	done := make(chan evaluation, 1)
	go func() {
		var (
			pc  panics.Catcher
			out evaluation
		)
		pc.Try(func() {
			offer, err := e.evaluate(ctx, applicant, rule)
			if err != nil {
				out.warning = newWarning(rule.PartnerID, reasonFor(err), err)
				return
			}
			out.offer = offer
		})
		if recovered := pc.Recovered(); recovered != nil {
			out = evaluation{warning: newWarning(rule.PartnerID, ReasonPanic, recovered.AsError())}
		}
		done <- out
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		if parent.Err() != nil {
			return evaluation{}
		}
		return evaluation{warning: newWarning(rule.PartnerID, ReasonTimeout, ctx.Err())}
	}
}

func newWarning(partnerID, reason string, cause error) *domain.PartnerEvaluationWarning {
	return &domain.PartnerEvaluationWarning{
		PartnerID: partnerID,
		Reason:    reason,
		Err:       customError.WrapPartnerEvaluation(partnerID, cause),
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, errMalformedRule):
		return ReasonMalformedRule
	default:
		return ReasonPricingFailed
	}
}

// evaluate returns (nil, nil) when the applicant is simply not eligible.
func (e *Engine) evaluate(ctx context.Context, applicant Applicant, rule domain.PartnerOfferRule) (*domain.Offer, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	if !eligible(applicant, rule) {
		return nil, nil
	}

	request := applicant.Request
	rate, err := rule.Pricing.AnnualRate(ctx, domain.PriceQuery{
		Tier:       applicant.Score.Tier,
		Amount:     request.Amount,
		TermMonths: request.TermMonths,
	})
	if err != nil {
		return nil, err
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("negative annual rate %s", rate)
	}

	payment, err := utils.CalculateMonthlyPayment(request.Amount, rate, request.TermMonths)
	if err != nil {
		return nil, err
	}

	projected := pdn.ProjectedRatio(applicant.DebtBurden, payment)
	if rule.MaxProjectedDebtBurden.Valid && projected.Cmp(rule.MaxProjectedDebtBurden.Decimal.Rat()) > 0 {
		return nil, nil
	}

	total := utils.CalculateTotalRepayment(payment, request.TermMonths)
	return &domain.Offer{
		PartnerID:           rule.PartnerID,
		PartnerName:         rule.Name,
		Amount:              request.Amount,
		TermMonths:          request.TermMonths,
		AnnualRate:          rate,
		MonthlyPayment:      payment,
		TotalRepayment:      total,
		Overpayment:         utils.CalculateOverpayment(request.Amount, total),
		ProjectedDebtBurden: utils.RoundRat(projected, utils.RatioPlaces),
		Priority:            rule.Priority,
	}, nil
}

func eligible(applicant Applicant, rule domain.PartnerOfferRule) bool {
	request := applicant.Request
	switch {
	case applicant.Score.Tier == domain.TierRejected:
		return false
	case applicant.Score.Score < rule.MinScore:
		return false
	case applicant.DebtBurden.ExactRatio().Cmp(rule.MaxDebtBurden.Rat()) > 0:
		return false
	case rule.Excludes(applicant.Employment):
		return false
	case request.Amount.LessThan(rule.MinAmount), request.Amount.GreaterThan(rule.MaxAmount):
		return false
	case request.TermMonths < rule.MinTermMonths, request.TermMonths > rule.MaxTermMonths:
		return false
	}
	return true
}

func validateRule(rule domain.PartnerOfferRule) error {
	malformed := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", errMalformedRule, fmt.Sprintf(format, args...))
	}

	switch {
	case rule.PartnerID == "":
		return malformed("partner id is empty")
	case rule.Pricing == nil:
		return malformed("no pricing function")
	case !rule.MaxDebtBurden.IsPositive():
		return malformed("max debt burden %s must be positive", rule.MaxDebtBurden)
	case rule.MinAmount.IsNegative(), rule.MinAmount.GreaterThan(rule.MaxAmount):
		return malformed("amount range [%s, %s] is invalid", rule.MinAmount, rule.MaxAmount)
	case rule.MinTermMonths < 1, rule.MinTermMonths > rule.MaxTermMonths:
		return malformed("term range [%d, %d] is invalid", rule.MinTermMonths, rule.MaxTermMonths)
	case rule.MaxProjectedDebtBurden.Valid && !rule.MaxProjectedDebtBurden.Decimal.IsPositive():
		return malformed("max projected debt burden must be positive")
	}

	if table, ok := rule.Pricing.(interface{ Validate() error }); ok {
		if err := table.Validate(); err != nil {
			return malformed("%v", err)
		}
	}
	return nil
}

package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/events"
	"github.com/segyhp/loan-aggregator/internal/offers"
	"github.com/segyhp/loan-aggregator/internal/pdn"
	"github.com/segyhp/loan-aggregator/internal/referral"
	"github.com/segyhp/loan-aggregator/internal/scoring"
	"github.com/segyhp/loan-aggregator/internal/tracing"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
)

// Dependencies wires a DecisionService. Tracer and Log may be nil.
type Dependencies struct {
	DebtBurden *pdn.Engine
	Scoring    *scoring.Engine
	Offers     *offers.Engine
	Registry   *offers.Registry
	Partners   offers.Source
	Ledger     *referral.Ledger
	Publisher  events.RewardPublisher

	// ReferenceRate prices the affordability estimate when no partner offers.
	ReferenceRate decimal.Decimal

	Tracer *tracing.Tracer
	Log    *logrus.Logger
}

// DecisionService runs the decision pipeline: debt burden, score, offers.
// It also fronts the referral ledger and publishes reward events.
type DecisionService struct {
	debtBurden    *pdn.Engine
	scoring       *scoring.Engine
	offers        *offers.Engine
	registry      *offers.Registry
	partners      offers.Source
	ledger        *referral.Ledger
	publisher     events.RewardPublisher
	referenceRate decimal.Decimal
	tracer        *tracing.Tracer
	log           *logrus.Logger
}

func NewDecisionService(deps Dependencies) *DecisionService {
	s := &DecisionService{
		debtBurden:    deps.DebtBurden,
		scoring:       deps.Scoring,
		offers:        deps.Offers,
		registry:      deps.Registry,
		partners:      deps.Partners,
		ledger:        deps.Ledger,
		publisher:     deps.Publisher,
		referenceRate: deps.ReferenceRate,
		tracer:        deps.Tracer,
		log:           deps.Log,
	}
	if s.tracer == nil {
		s.tracer = tracing.Noop()
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.publisher == nil {
		s.publisher = events.NewLogPublisher(s.log)
	}
	return s
}

// Evaluate computes the debt burden, scores the applicant and aggregates the
// current partner snapshot. An empty offer list is a valid decision.
func (s *DecisionService) Evaluate(ctx context.Context, request domain.DecisionRequest) (*domain.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "decision.evaluate",
		attribute.String("application.id", request.Request.ApplicationID),
	)
	defer span.End()

	if err := validateLoanRequest(request.Request); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	debtBurden, err := s.debtBurden.Compute(request.Profile)
	if err != nil {
		tracing.Fail(span, err)
		s.log.WithError(err).WithField("application_id", request.Request.ApplicationID).
			Info("Debt burden could not be computed")
		return nil, err
	}

	score := s.scoring.Score(request.Profile, debtBurden, request.History)
	span.SetAttributes(
		attribute.String("debt_burden.bucket", debtBurden.Bucket.String()),
		attribute.Int("score.value", score.Score),
		attribute.String("score.tier", score.Tier.String()),
	)

	snapshot, err := s.registry.Current()
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	result, err := s.aggregate(ctx, offers.Applicant{
		Score:      score,
		DebtBurden: debtBurden,
		Request:    request.Request,
		Employment: request.Profile.Employment,
	}, snapshot)
	if err != nil {
		tracing.Fail(span, err)
		s.logFailure(err, logrus.Fields{"application_id": request.Request.ApplicationID}, "Offer aggregation failed")
		return nil, err
	}

	rate := s.referenceRate
	if len(result.Offers) > 0 {
		rate = result.Offers[0].AnnualRate
	}
	maxAffordable, err := s.debtBurden.MaxAffordableAmount(debtBurden, rate, request.Request.TermMonths)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	suggestion, err := s.debtBurden.SuggestLoan(debtBurden, rate, request.Request)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"application_id":   request.Request.ApplicationID,
		"debt_burden":      debtBurden.Ratio.String(),
		"bucket":           debtBurden.Bucket.String(),
		"corrected":        debtBurden.Corrected,
		"score":            score.Score,
		"tier":             score.Tier.String(),
		"offers":           len(result.Offers),
		"warnings":         len(result.Warnings),
		"snapshot_version": result.SnapshotVersion,
		"loan_corrected":   suggestion.Corrected,
	}).Info("Decision evaluated")

	return &domain.Decision{
		ApplicationID:       request.Request.ApplicationID,
		DebtBurden:          debtBurden,
		Score:               score,
		Offers:              result,
		MaxAffordableAmount: maxAffordable,
		Suggestion:          suggestion,
	}, nil
}

func (s *DecisionService) aggregate(ctx context.Context, applicant offers.Applicant, snapshot *offers.Snapshot) (domain.AggregationResult, error) {
	ctx, span := s.tracer.Start(ctx, "offers.aggregate",
		attribute.String("snapshot.version", snapshot.Version),
		attribute.Int("snapshot.partners", snapshot.Len()),
	)
	defer span.End()

	result, err := s.offers.AggregateSnapshot(ctx, applicant, snapshot)
	if err != nil {
		tracing.Fail(span, err)
		return result, err
	}

	for _, warning := range result.Warnings {
		s.log.WithFields(logrus.Fields{
			"application_id": applicant.Request.ApplicationID,
			"partner_id":     warning.PartnerID,
			"reason":         warning.Reason,
		}).WithError(warning.Err).Warn("Partner excluded from aggregation")
	}
	span.SetAttributes(
		attribute.Int("offers.count", len(result.Offers)),
		attribute.Int("offers.warnings", len(result.Warnings)),
	)
	return result, nil
}

// logFailure records errors the caller only sees as an opaque failure.
// Business outcomes such as a duplicate referral are left to the response.
func (s *DecisionService) logFailure(err error, fields logrus.Fields, message string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.WithFields(fields).WithError(err).Warn(message)
	case customError.IsInternal(err):
		s.log.WithFields(fields).WithError(err).Error(message)
	}
}

func validateLoanRequest(request domain.LoanRequest) error {
	if !request.Amount.IsPositive() {
		return customError.WrapInvalidInput("requested amount must be positive")
	}
	if request.TermMonths <= 0 {
		return customError.WrapInvalidInput("requested term must be positive")
	}
	return nil
}

func (s *DecisionService) RecordReferral(ctx context.Context, referrerID, refereeID string) error {
	if err := s.ledger.RecordReferral(ctx, referrerID, refereeID); err != nil {
		s.logFailure(err, logrus.Fields{"referrer_id": referrerID, "referee_id": refereeID}, "Failed to record referral")
		return err
	}

	s.log.WithFields(logrus.Fields{
		"referrer_id": referrerID,
		"referee_id":  refereeID,
	}).Info("Referral recorded")
	return nil
}

// SettleOutcome settles the referee's link and publishes the reward event.
// A publish failure does not undo the settlement; the event is returned with
// a PUBLISH_ERROR and is not re-published by this service.
func (s *DecisionService) SettleOutcome(ctx context.Context, refereeID string, outcome domain.TerminalOutcome) (*domain.RewardEvent, error) {
	ctx, span := s.tracer.Start(ctx, "referral.settle",
		attribute.String("referee.id", refereeID),
		attribute.String("application.status", string(outcome.Status)),
	)
	defer span.End()

	event, err := s.ledger.SettleOutcome(ctx, refereeID, outcome)
	if err != nil {
		tracing.Fail(span, err)
		s.logFailure(err, logrus.Fields{
			"referee_id":     refereeID,
			"application_id": outcome.ApplicationID,
		}, "Failed to settle referral")
		return nil, err
	}

	fields := logrus.Fields{
		"referee_id":     refereeID,
		"application_id": outcome.ApplicationID,
		"status":         outcome.Status,
	}
	if event == nil {
		s.log.WithFields(fields).Info("Referral voided")
		return nil, nil
	}

	fields["referrer_id"] = event.ReferrerID
	fields["reward"] = event.Amount.String()
	s.log.WithFields(fields).Info("Referral reward earned")

	if err := s.publisher.PublishReward(ctx, *event); err != nil {
		tracing.Fail(span, err)
		s.log.WithFields(fields).WithError(err).Error("Failed to publish reward event")
		return event, customError.WrapPublishError(err)
	}
	return event, nil
}

func (s *DecisionService) ReferralStats(ctx context.Context, referrerID string) (*domain.ReferralStats, error) {
	stats, err := s.ledger.Stats(ctx, referrerID)
	if err != nil {
		s.logFailure(err, logrus.Fields{"referrer_id": referrerID}, "Failed to load referral stats")
		return nil, err
	}
	return stats, nil
}

func (s *DecisionService) TopReferrers(ctx context.Context, limit, periodDays int) ([]domain.TopReferrer, error) {
	top, err := s.ledger.TopReferrers(ctx, limit, periodDays)
	if err != nil {
		s.logFailure(err, logrus.Fields{"limit": limit, "period_days": periodDays}, "Failed to load top referrers")
		return nil, err
	}
	return top, nil
}

// ReloadPartners replaces the partner snapshot from the configured source.
func (s *DecisionService) ReloadPartners(ctx context.Context) (*offers.Snapshot, bool, error) {
	ctx, span := s.tracer.Start(ctx, "partners.reload")
	defer span.End()

	snapshot, changed, err := s.registry.Reload(ctx, s.partners)
	if err != nil {
		tracing.Fail(span, err)
		return nil, false, err
	}
	span.SetAttributes(
		attribute.String("snapshot.version", snapshot.Version),
		attribute.Bool("snapshot.changed", changed),
	)
	return snapshot, changed, nil
}

func (s *DecisionService) Snapshot() (*offers.Snapshot, error) {
	return s.registry.Current()
}

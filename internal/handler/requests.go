package handler

import (
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-aggregator/internal/domain"
)

type EvaluateRequest struct {
	ApplicationID string                          `json:"application_id" validate:"required,max=64"`
	Amount        decimal.Decimal                 `json:"amount"`
	TermMonths    int                             `json:"term_months" validate:"required,gt=0,lte=360"`
	Profile       ProfileRequest                  `json:"profile"`
	History       []domain.PastApplicationOutcome `json:"history" validate:"omitempty,dive"`
}

type ProfileRequest struct {
	ApplicantID   string              `json:"applicant_id" validate:"required"`
	MonthlyIncome decimal.NullDecimal `json:"monthly_income"`
	Employment    string              `json:"employment" validate:"required,oneof=employed self_employed unemployed retired student"`
	Obligations   []ObligationRequest `json:"obligations" validate:"omitempty,dive"`
}

type ObligationRequest struct {
	Type       string              `json:"type" validate:"required"`
	Amount     decimal.NullDecimal `json:"amount"`
	Confidence string              `json:"confidence" validate:"omitempty,oneof=high low"`
}

// DecisionRequest converts the payload. Missing confidence means high.
func (r EvaluateRequest) DecisionRequest() domain.DecisionRequest {
	obligations := make([]domain.Obligation, 0, len(r.Profile.Obligations))
	for _, o := range r.Profile.Obligations {
		confidence := domain.ConfidenceHigh
		if o.Confidence != "" {
			confidence = domain.Confidence(o.Confidence)
		}
		obligations = append(obligations, domain.Obligation{
			Type:       domain.ObligationType(o.Type),
			Amount:     o.Amount,
			Confidence: confidence,
		})
	}

	return domain.DecisionRequest{
		Request: domain.LoanRequest{
			ApplicationID: r.ApplicationID,
			Amount:        r.Amount,
			TermMonths:    r.TermMonths,
		},
		Profile: domain.FinancialProfile{
			ApplicantID:   r.Profile.ApplicantID,
			MonthlyIncome: r.Profile.MonthlyIncome,
			Obligations:   obligations,
			Employment:    domain.EmploymentCategory(r.Profile.Employment),
		},
		History: r.History,
	}
}

type RecordReferralRequest struct {
	ReferrerID string `json:"referrer_id" validate:"required,max=64"`
	RefereeID  string `json:"referee_id" validate:"required,max=64"`
}

type SnapshotResponse struct {
	Version  string   `json:"version"`
	LoadedAt string   `json:"loaded_at"`
	Partners []string `json:"partners"`
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/offers"
	"github.com/segyhp/loan-aggregator/internal/referral"
	customError "github.com/segyhp/loan-aggregator/pkg/errors"
	"github.com/segyhp/loan-aggregator/pkg/response"
)

// DecisionService is the application layer behind the HTTP routes.
type DecisionService interface {
	Evaluate(ctx context.Context, request domain.DecisionRequest) (*domain.Decision, error)
	RecordReferral(ctx context.Context, referrerID, refereeID string) error
	SettleOutcome(ctx context.Context, refereeID string, outcome domain.TerminalOutcome) (*domain.RewardEvent, error)
	ReferralStats(ctx context.Context, referrerID string) (*domain.ReferralStats, error)
	TopReferrers(ctx context.Context, limit, periodDays int) ([]domain.TopReferrer, error)
	ReloadPartners(ctx context.Context) (*offers.Snapshot, bool, error)
	Snapshot() (*offers.Snapshot, error)
}

type DecisionHandler struct {
	service   DecisionService
	validator *validator.Validate
}

func NewDecisionHandler(service DecisionService) *DecisionHandler {
	return &DecisionHandler{
		service:   service,
		validator: validator.New(),
	}
}

// Evaluate handles POST /api/v1/decisions
func (h *DecisionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	decision, err := h.service.Evaluate(r.Context(), req.DecisionRequest())
	if err != nil {
		writeError(w, err, nil)
		return
	}

	response.Success(w, decision)
}

// RecordReferral handles POST /api/v1/referrals
func (h *DecisionHandler) RecordReferral(w http.ResponseWriter, r *http.Request) {
	var req RecordReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	if err := h.service.RecordReferral(r.Context(), req.ReferrerID, req.RefereeID); err != nil {
		writeError(w, err, nil)
		return
	}

	response.Created(w, req)
}

// SettleOutcome handles POST /api/v1/referrals/{refereeId}/settlement
func (h *DecisionHandler) SettleOutcome(w http.ResponseWriter, r *http.Request) {
	refereeID := mux.Vars(r)["refereeId"]

	var outcome domain.TerminalOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(outcome); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	event, err := h.service.SettleOutcome(r.Context(), refereeID, outcome)
	if err != nil {
		// event is set when only the publication failed
		var data interface{}
		if event != nil {
			data = event
		}
		writeError(w, err, data)
		return
	}

	if event == nil {
		response.Success(w, map[string]string{"referee_id": refereeID, "state": string(domain.ReferralVoid)})
		return
	}
	response.Success(w, event)
}

// ReferralStats handles GET /api/v1/referrals/{referrerId}/stats
func (h *DecisionHandler) ReferralStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ReferralStats(r.Context(), mux.Vars(r)["referrerId"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	response.Success(w, stats)
}

// TopReferrers handles GET /api/v1/referrals/top?limit=10&period_days=30
func (h *DecisionHandler) TopReferrers(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", referral.DefaultTopReferrers)
	if err != nil {
		response.BadRequest(w, "Invalid limit", err)
		return
	}
	periodDays, err := intQuery(r, "period_days", defaultTopPeriodDays)
	if err != nil {
		response.BadRequest(w, "Invalid period_days", err)
		return
	}

	top, err := h.service.TopReferrers(r.Context(), limit, periodDays)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	response.Success(w, map[string]interface{}{
		"period_days": periodDays,
		"referrers":   top,
	})
}

const defaultTopPeriodDays = 30

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// Snapshot handles GET /api/v1/partners/snapshot
func (h *DecisionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Snapshot()
	if err != nil {
		writeError(w, err, nil)
		return
	}
	response.Success(w, snapshotResponse(snapshot))
}

// ReloadPartners handles POST /api/v1/partners/reload
func (h *DecisionHandler) ReloadPartners(w http.ResponseWriter, r *http.Request) {
	snapshot, changed, err := h.service.ReloadPartners(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	response.Success(w, map[string]interface{}{
		"changed":  changed,
		"snapshot": snapshotResponse(snapshot),
	})
}

func snapshotResponse(snapshot *offers.Snapshot) SnapshotResponse {
	rules := snapshot.Rules()
	partners := make([]string, 0, len(rules))
	for _, rule := range rules {
		partners = append(partners, rule.PartnerID)
	}
	return SnapshotResponse{
		Version:  snapshot.Version,
		LoadedAt: snapshot.LoadedAt.UTC().Format(time.RFC3339),
		Partners: partners,
	}
}

func statusFor(code string) int {
	switch code {
	case customError.ErrCodeInvalidInput, customError.ErrCodeSelfReferral:
		return http.StatusBadRequest
	case customError.ErrCodeReferralNotFound:
		return http.StatusNotFound
	case customError.ErrCodeDuplicateReferral, customError.ErrCodeAlreadySettled:
		return http.StatusConflict
	case customError.ErrCodeInsufficientData:
		return http.StatusUnprocessableEntity
	case customError.ErrCodeReferralLimitExceeded:
		return http.StatusTooManyRequests
	case customError.ErrCodePartnersUnavailable:
		return http.StatusServiceUnavailable
	case customError.ErrCodePublishError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, data interface{}) {
	code := customError.Code(err)
	status := statusFor(code)

	message := http.StatusText(status)
	var be *customError.BusinessError
	if errors.As(err, &be) {
		message = be.Message
	}
	if status == http.StatusInternalServerError {
		response.ErrorWithCode(w, status, code, "Internal server error", nil, data)
		return
	}
	response.ErrorWithCode(w, status, code, message, err, data)
}

package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInsufficientData      = errors.New("insufficient data")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidPolicy         = errors.New("invalid policy configuration")
	ErrDuplicateReferral     = errors.New("referee already has an active referrer")
	ErrSelfReferral          = errors.New("referrer and referee must differ")
	ErrAlreadySettled        = errors.New("referral link is already settled")
	ErrReferralNotFound      = errors.New("referral link not found")
	ErrReferralLimitExceeded = errors.New("referral limit exceeded")
	ErrPartnerEvaluation     = errors.New("partner evaluation failed")
	ErrPartnersUnavailable   = errors.New("partner registry is empty")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeInsufficientData      = "INSUFFICIENT_DATA"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeInvalidPolicy         = "INVALID_POLICY"
	ErrCodeDuplicateReferral     = "DUPLICATE_REFERRAL"
	ErrCodeSelfReferral          = "SELF_REFERRAL"
	ErrCodeAlreadySettled        = "ALREADY_SETTLED"
	ErrCodeReferralNotFound      = "REFERRAL_NOT_FOUND"
	ErrCodeReferralLimitExceeded = "REFERRAL_LIMIT_EXCEEDED"
	ErrCodePartnerEvaluation     = "PARTNER_EVALUATION_FAILED"
	ErrCodePartnersUnavailable   = "PARTNERS_UNAVAILABLE"
	ErrCodeDatabaseError         = "DATABASE_ERROR"
	ErrCodePublishError          = "PUBLISH_ERROR"
)

func WrapInsufficientData(detail string) *BusinessError {
	return NewBusinessError(
		ErrCodeInsufficientData,
		detail,
		ErrInsufficientData,
	)
}

func WrapInvalidInput(detail string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidInput,
		detail,
		ErrInvalidInput,
	)
}

func WrapInvalidPolicy(detail string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPolicy,
		detail,
		ErrInvalidPolicy,
	)
}

func WrapDuplicateReferral(refereeID, existingReferrerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicateReferral,
		fmt.Sprintf("Referee %s is already referred by %s", refereeID, existingReferrerID),
		ErrDuplicateReferral,
	)
}

func WrapSelfReferral(userID string) *BusinessError {
	return NewBusinessError(
		ErrCodeSelfReferral,
		fmt.Sprintf("User %s cannot refer themselves", userID),
		ErrSelfReferral,
	)
}

func WrapAlreadySettled(refereeID, state string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadySettled,
		fmt.Sprintf("Referral for referee %s is already %s", refereeID, state),
		ErrAlreadySettled,
	)
}

func WrapReferralNotFound(refereeID string) *BusinessError {
	return NewBusinessError(
		ErrCodeReferralNotFound,
		fmt.Sprintf("No referral link for referee %s", refereeID),
		ErrReferralNotFound,
	)
}

func WrapReferralLimitExceeded(referrerID, limit string) *BusinessError {
	return NewBusinessError(
		ErrCodeReferralLimitExceeded,
		fmt.Sprintf("Referrer %s reached the %s limit", referrerID, limit),
		ErrReferralLimitExceeded,
	)
}

// WrapPartnerEvaluation keeps the underlying cause reachable through errors.Is
// while still matching ErrPartnerEvaluation.
func WrapPartnerEvaluation(partnerID string, cause error) *BusinessError {
	return NewBusinessError(
		ErrCodePartnerEvaluation,
		fmt.Sprintf("Partner %s excluded", partnerID),
		fmt.Errorf("%w: %w", ErrPartnerEvaluation, cause),
	)
}

func WrapPartnersUnavailable() *BusinessError {
	return NewBusinessError(
		ErrCodePartnersUnavailable,
		"No partner snapshot has been loaded",
		ErrPartnersUnavailable,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapPublishError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodePublishError,
		"reward event publication failed",
		err,
	)
}

// Code extracts the BusinessError code from err, or "" when err carries none.
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsInternal reports whether err is a failure of the system rather than an
// outcome the caller caused or can act on.
func IsInternal(err error) bool {
	if err == nil {
		return false
	}
	switch Code(err) {
	case "", ErrCodeDatabaseError, ErrCodeInvalidPolicy:
		return true
	}
	return false
}

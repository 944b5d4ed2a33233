package domain

import (
	"fmt"
	"strings"
)

// RiskBucket is the ordered debt-burden classification.
type RiskBucket int

const (
	RiskBucketLow RiskBucket = iota + 1
	RiskBucketMedium
	RiskBucketHigh
)

var riskBucketNames = map[RiskBucket]string{
	RiskBucketLow:    "LOW",
	RiskBucketMedium: "MEDIUM",
	RiskBucketHigh:   "HIGH",
}

func (b RiskBucket) String() string {
	if name, ok := riskBucketNames[b]; ok {
		return name
	}
	return fmt.Sprintf("RiskBucket(%d)", int(b))
}

// Valid reports whether b is one of the declared buckets.
func (b RiskBucket) Valid() bool {
	_, ok := riskBucketNames[b]
	return ok
}

// Widen moves the bucket one step toward higher risk. HIGH stays HIGH.
func (b RiskBucket) Widen() RiskBucket {
	if b >= RiskBucketHigh {
		return RiskBucketHigh
	}
	return b + 1
}

func (b RiskBucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *RiskBucket) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskBucket(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseRiskBucket parses a bucket name, case-insensitively.
func ParseRiskBucket(s string) (RiskBucket, error) {
	for bucket, name := range riskBucketNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return bucket, nil
		}
	}
	return 0, fmt.Errorf("invalid risk bucket: %q", s)
}

// Tier is the ordered creditworthiness classification. REJECTED is the worst.
type Tier int

const (
	TierLow Tier = iota + 1
	TierMedium
	TierHigh
	TierRejected
)

var tierNames = map[Tier]string{
	TierLow:      "LOW",
	TierMedium:   "MEDIUM",
	TierHigh:     "HIGH",
	TierRejected: "REJECTED",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseTier(s string) (Tier, error) {
	for tier, name := range tierNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("invalid tier: %q", s)
}

// EmploymentCategory classifies the applicant's source of income.
type EmploymentCategory string

const (
	EmploymentEmployed     EmploymentCategory = "employed"
	EmploymentSelfEmployed EmploymentCategory = "self_employed"
	EmploymentUnemployed   EmploymentCategory = "unemployed"
	EmploymentRetired      EmploymentCategory = "retired"
	EmploymentStudent      EmploymentCategory = "student"
)

// ObligationType names the kind of an existing debt. Types are free-form so new
// products only need a median entry in configuration.
type ObligationType string

const (
	ObligationMortgage     ObligationType = "mortgage"
	ObligationAutoLoan     ObligationType = "auto_loan"
	ObligationCreditCard   ObligationType = "credit_card"
	ObligationConsumerLoan ObligationType = "consumer_loan"
	ObligationMicroloan    ObligationType = "microloan"
)

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

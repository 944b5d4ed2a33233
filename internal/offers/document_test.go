package offers

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-aggregator/internal/domain"
)

func testDocument() RuleDocument {
	return RuleDocument{
		PartnerID:              "alpha",
		Name:                   "Alpha Bank",
		Priority:               3,
		MinScore:               500,
		MaxDebtBurden:          "0.5",
		MaxProjectedDebtBurden: "0.6",
		ExcludedEmployment:     []string{"unemployed"},
		MinAmount:              "10000",
		MaxAmount:              "5000000",
		MinTermMonths:          1,
		MaxTermMonths:          36,
		Pricing: RateTableDocument{
			BaseRate:    "0.18",
			TierMarkups: map[string]string{"low": "0", "medium": "0.04", "high": "0.09"},
			AmountBands: []AmountBandDocument{{UpTo: "500000", Adjustment: "0.02"}},
			TermBands:   []TermBandDocument{{UpToMonths: 6, Adjustment: "-0.01"}},
			Cap:         "0.40",
		},
	}
}

func TestRuleDocument_Rule(t *testing.T) {
	rule := testDocument().Rule()

	assert.Equal(t, "alpha", rule.PartnerID)
	assert.True(t, rule.MaxDebtBurden.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, rule.MaxProjectedDebtBurden.Valid)
	assert.Equal(t, []domain.EmploymentCategory{domain.EmploymentUnemployed}, rule.ExcludedEmployment)

	table, ok := rule.Pricing.(RateTable)
	require.True(t, ok, "expected RateTable, got %T", rule.Pricing)
	assert.Len(t, table.TierMarkups, 3)
	assert.False(t, table.Floor.Valid)
	assert.True(t, table.Cap.Valid)

	rate, err := table.AnnualRate(context.Background(), domain.PriceQuery{
		Tier: domain.TierMedium, Amount: decimal.NewFromInt(1000000), TermMonths: 12,
	})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.22")), "got %s", rate)
}

func TestRuleDocument_BadValuesBecomeMalformedPartner(t *testing.T) {
	doc := testDocument()
	doc.PartnerID = "broken"
	doc.Pricing.BaseRate = "eighteen percent"
	doc.Pricing.TierMarkups["platinum"] = "0"

	rule := doc.Rule()

	invalid, ok := rule.Pricing.(InvalidPricing)
	require.True(t, ok, "expected InvalidPricing, got %T", rule.Pricing)
	assert.Contains(t, invalid.Err.Error(), "pricing.base_rate")
	assert.Contains(t, invalid.Err.Error(), "platinum")

	result, err := NewEngine().Aggregate(context.Background(), testApplicant(), []domain.PartnerOfferRule{
		testDocument().Rule(),
		rule,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, partnerIDs(result.Offers))
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "broken", result.Warnings[0].PartnerID)
	assert.Equal(t, ReasonMalformedRule, result.Warnings[0].Reason)
}

func TestRuleDocument_MalformedVersionIsStable(t *testing.T) {
	doc := testDocument()
	doc.Pricing.TierMarkups = map[string]string{
		"low":      "zero",
		"medium":   "four",
		"high":     "nine",
		"platinum": "0",
		"gold":     "0.01",
	}

	versions := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		snapshot, err := NewSnapshot([]domain.PartnerOfferRule{doc.Rule()}, time.Time{})
		require.NoError(t, err)
		versions[snapshot.Version] = struct{}{}
	}

	assert.Len(t, versions, 1)
}

func TestNewRuleDocument_RoundTrip(t *testing.T) {
	original := testDocument().Rule()

	doc, err := NewRuleDocument(original)
	require.NoError(t, err)

	a, err := NewSnapshot([]domain.PartnerOfferRule{original}, time.Unix(0, 0))
	require.NoError(t, err)
	b, err := NewSnapshot([]domain.PartnerOfferRule{doc.Rule()}, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, a.Version, b.Version)

	_, err = NewRuleDocument(testRule("alpha", 1, fixedRate("0.2")))
	assert.Error(t, err)
}

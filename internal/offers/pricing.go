package offers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-aggregator/internal/domain"
)

// AmountBand adjusts the rate for requested amounts up to and including UpTo.
type AmountBand struct {
	UpTo       decimal.Decimal `json:"up_to"`
	Adjustment decimal.Decimal `json:"adjustment"`
}

// TermBand adjusts the rate for terms up to and including UpToMonths.
type TermBand struct {
	UpToMonths int             `json:"up_to_months"`
	Adjustment decimal.Decimal `json:"adjustment"`
}

// RateTable is the static pricing function of a partner:
// base rate + tier markup + first matching amount band + first matching term band,
// bounded by Floor and Cap when set.
type RateTable struct {
	BaseRate    decimal.Decimal                 `json:"base_rate"`
	TierMarkups map[domain.Tier]decimal.Decimal `json:"tier_markups"`
	AmountBands []AmountBand                    `json:"amount_bands,omitempty"`
	TermBands   []TermBand                      `json:"term_bands,omitempty"`
	Floor       decimal.NullDecimal             `json:"floor"`
	Cap         decimal.NullDecimal             `json:"cap"`
}

// AnnualRate implements domain.Pricer.
func (t RateTable) AnnualRate(ctx context.Context, q domain.PriceQuery) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	markup, ok := t.TierMarkups[q.Tier]
	if !ok {
		return decimal.Zero, fmt.Errorf("no markup configured for tier %s", q.Tier)
	}

	rate := t.BaseRate.Add(markup)
	for _, band := range t.AmountBands {
		if q.Amount.LessThanOrEqual(band.UpTo) {
			rate = rate.Add(band.Adjustment)
			break
		}
	}
	for _, band := range t.TermBands {
		if q.TermMonths <= band.UpToMonths {
			rate = rate.Add(band.Adjustment)
			break
		}
	}

	if t.Floor.Valid && rate.LessThan(t.Floor.Decimal) {
		rate = t.Floor.Decimal
	}
	if t.Cap.Valid && rate.GreaterThan(t.Cap.Decimal) {
		rate = t.Cap.Decimal
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative annual rate %s", rate)
	}
	return rate, nil
}

// Validate checks that bands are ordered and bounds are consistent.
func (t RateTable) Validate() error {
	if t.BaseRate.IsNegative() {
		return fmt.Errorf("base rate must not be negative")
	}
	if len(t.TierMarkups) == 0 {
		return fmt.Errorf("tier markups are empty")
	}
	for i := 1; i < len(t.AmountBands); i++ {
		if !t.AmountBands[i].UpTo.GreaterThan(t.AmountBands[i-1].UpTo) {
			return fmt.Errorf("amount band %d is not above band %d", i, i-1)
		}
	}
	for i := 1; i < len(t.TermBands); i++ {
		if t.TermBands[i].UpToMonths <= t.TermBands[i-1].UpToMonths {
			return fmt.Errorf("term band %d is not above band %d", i, i-1)
		}
	}
	if t.Floor.Valid && t.Cap.Valid && t.Floor.Decimal.GreaterThan(t.Cap.Decimal) {
		return fmt.Errorf("rate floor %s is above cap %s", t.Floor.Decimal, t.Cap.Decimal)
	}
	return nil
}

// Fingerprint is a canonical rendering of the table used for snapshot versions.
func (t RateTable) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "base=%s", t.BaseRate)

	tiers := make([]domain.Tier, 0, len(t.TierMarkups))
	for tier := range t.TierMarkups {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	for _, tier := range tiers {
		fmt.Fprintf(&b, ";tier:%s=%s", tier, t.TierMarkups[tier])
	}
	for _, band := range t.AmountBands {
		fmt.Fprintf(&b, ";amount<=%s:%s", band.UpTo, band.Adjustment)
	}
	for _, band := range t.TermBands {
		fmt.Fprintf(&b, ";term<=%d:%s", band.UpToMonths, band.Adjustment)
	}
	if t.Floor.Valid {
		fmt.Fprintf(&b, ";floor=%s", t.Floor.Decimal)
	}
	if t.Cap.Valid {
		fmt.Fprintf(&b, ";cap=%s", t.Cap.Decimal)
	}
	return b.String()
}

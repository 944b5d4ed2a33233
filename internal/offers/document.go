package offers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-aggregator/internal/domain"
)

// RuleDocument is the serialized form of a partner rule, shared by the YAML
// feed and the partner_rules table. Numbers are strings so that no value ever
// passes through a float.
type RuleDocument struct {
	PartnerID              string            `json:"partner_id" mapstructure:"id"`
	Name                   string            `json:"name" mapstructure:"name"`
	Priority               int               `json:"priority" mapstructure:"priority"`
	MinScore               int               `json:"min_score" mapstructure:"min_score"`
	MaxDebtBurden          string            `json:"max_debt_burden" mapstructure:"max_debt_burden"`
	MaxProjectedDebtBurden string            `json:"max_projected_debt_burden,omitempty" mapstructure:"max_projected_debt_burden"`
	ExcludedEmployment     []string          `json:"excluded_employment,omitempty" mapstructure:"excluded_employment"`
	MinAmount              string            `json:"min_amount" mapstructure:"min_amount"`
	MaxAmount              string            `json:"max_amount" mapstructure:"max_amount"`
	MinTermMonths          int               `json:"min_term_months" mapstructure:"min_term_months"`
	MaxTermMonths          int               `json:"max_term_months" mapstructure:"max_term_months"`
	Pricing                RateTableDocument `json:"pricing" mapstructure:"pricing"`
}

type RateTableDocument struct {
	BaseRate    string               `json:"base_rate" mapstructure:"base_rate"`
	TierMarkups map[string]string    `json:"tier_markups" mapstructure:"tier_markups"`
	AmountBands []AmountBandDocument `json:"amount_bands,omitempty" mapstructure:"amount_bands"`
	TermBands   []TermBandDocument   `json:"term_bands,omitempty" mapstructure:"term_bands"`
	Floor       string               `json:"floor,omitempty" mapstructure:"floor"`
	Cap         string               `json:"cap,omitempty" mapstructure:"cap"`
}

type AmountBandDocument struct {
	UpTo       string `json:"up_to" mapstructure:"up_to"`
	Adjustment string `json:"adjustment" mapstructure:"adjustment"`
}

type TermBandDocument struct {
	UpToMonths int    `json:"up_to_months" mapstructure:"up_to_months"`
	Adjustment string `json:"adjustment" mapstructure:"adjustment"`
}

// InvalidPricing stands in for a pricing function that could not be decoded.
// The partner stays in the snapshot and is reported as malformed on every
// aggregation instead of silently disappearing.
type InvalidPricing struct {
	Err error
}

func (p InvalidPricing) AnnualRate(context.Context, domain.PriceQuery) (decimal.Decimal, error) {
	return decimal.Zero, p.Err
}

func (p InvalidPricing) Validate() error {
	return p.Err
}

func (p InvalidPricing) Fingerprint() string {
	return "invalid:" + p.Err.Error()
}

// Rule decodes the document. Decoding problems never fail the whole feed; they
// surface as InvalidPricing on the affected partner.
func (d RuleDocument) Rule() domain.PartnerOfferRule {
	var errs []error
	parse := func(field, value string) decimal.Decimal {
		v, err := decimal.NewFromString(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return v
	}
	parseOptional := func(field, value string) decimal.NullDecimal {
		if value == "" {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(parse(field, value))
	}

	rule := domain.PartnerOfferRule{
		PartnerID:              d.PartnerID,
		Name:                   d.Name,
		Priority:               d.Priority,
		MinScore:               d.MinScore,
		MaxDebtBurden:          parse("max_debt_burden", d.MaxDebtBurden),
		MaxProjectedDebtBurden: parseOptional("max_projected_debt_burden", d.MaxProjectedDebtBurden),
		MinAmount:              parse("min_amount", d.MinAmount),
		MaxAmount:              parse("max_amount", d.MaxAmount),
		MinTermMonths:          d.MinTermMonths,
		MaxTermMonths:          d.MaxTermMonths,
	}
	for _, c := range d.ExcludedEmployment {
		rule.ExcludedEmployment = append(rule.ExcludedEmployment, domain.EmploymentCategory(c))
	}

	table := RateTable{
		BaseRate:    parse("pricing.base_rate", d.Pricing.BaseRate),
		TierMarkups: make(map[domain.Tier]decimal.Decimal, len(d.Pricing.TierMarkups)),
		Floor:       parseOptional("pricing.floor", d.Pricing.Floor),
		Cap:         parseOptional("pricing.cap", d.Pricing.Cap),
	}
	// Sorted so that error text, and with it the snapshot version, is stable.
	names := make([]string, 0, len(d.Pricing.TierMarkups))
	for name := range d.Pricing.TierMarkups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		markup := d.Pricing.TierMarkups[name]
		tier, err := domain.ParseTier(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("pricing.tier_markups: %w", err))
			continue
		}
		table.TierMarkups[tier] = parse("pricing.tier_markups."+name, markup)
	}
	for i, band := range d.Pricing.AmountBands {
		table.AmountBands = append(table.AmountBands, AmountBand{
			UpTo:       parse(fmt.Sprintf("pricing.amount_bands[%d].up_to", i), band.UpTo),
			Adjustment: parse(fmt.Sprintf("pricing.amount_bands[%d].adjustment", i), band.Adjustment),
		})
	}
	for i, band := range d.Pricing.TermBands {
		table.TermBands = append(table.TermBands, TermBand{
			UpToMonths: band.UpToMonths,
			Adjustment: parse(fmt.Sprintf("pricing.term_bands[%d].adjustment", i), band.Adjustment),
		})
	}

	if len(errs) > 0 {
		rule.Pricing = InvalidPricing{Err: errors.Join(errs...)}
	} else {
		rule.Pricing = table
	}
	return rule
}

// NewRuleDocument is the inverse of Rule for rules priced by a RateTable.
func NewRuleDocument(rule domain.PartnerOfferRule) (RuleDocument, error) {
	table, ok := rule.Pricing.(RateTable)
	if !ok {
		return RuleDocument{}, fmt.Errorf("partner %s: pricing %T cannot be serialized", rule.PartnerID, rule.Pricing)
	}

	doc := RuleDocument{
		PartnerID:     rule.PartnerID,
		Name:          rule.Name,
		Priority:      rule.Priority,
		MinScore:      rule.MinScore,
		MaxDebtBurden: rule.MaxDebtBurden.String(),
		MinAmount:     rule.MinAmount.String(),
		MaxAmount:     rule.MaxAmount.String(),
		MinTermMonths: rule.MinTermMonths,
		MaxTermMonths: rule.MaxTermMonths,
		Pricing: RateTableDocument{
			BaseRate:    table.BaseRate.String(),
			TierMarkups: make(map[string]string, len(table.TierMarkups)),
		},
	}
	if rule.MaxProjectedDebtBurden.Valid {
		doc.MaxProjectedDebtBurden = rule.MaxProjectedDebtBurden.Decimal.String()
	}
	for _, c := range rule.ExcludedEmployment {
		doc.ExcludedEmployment = append(doc.ExcludedEmployment, string(c))
	}
	for tier, markup := range table.TierMarkups {
		doc.Pricing.TierMarkups[tier.String()] = markup.String()
	}
	for _, band := range table.AmountBands {
		doc.Pricing.AmountBands = append(doc.Pricing.AmountBands, AmountBandDocument{
			UpTo: band.UpTo.String(), Adjustment: band.Adjustment.String(),
		})
	}
	for _, band := range table.TermBands {
		doc.Pricing.TermBands = append(doc.Pricing.TermBands, TermBandDocument{
			UpToMonths: band.UpToMonths, Adjustment: band.Adjustment.String(),
		})
	}
	if table.Floor.Valid {
		doc.Pricing.Floor = table.Floor.Decimal.String()
	}
	if table.Cap.Valid {
		doc.Pricing.Cap = table.Cap.Decimal.String()
	}
	return doc, nil
}

package scoring

import (
	"github.com/segyhp/loan-aggregator/internal/domain"
)

// Recommendation codes. The first entry of ScoreResult.Recommendations always
// describes the tier; factor codes follow in factor order.
const (
	RecommendBestTerms        = "best_terms_available"
	RecommendMostOffers       = "most_offers_available"
	RecommendLimitedOffers    = "limited_offers_available"
	RecommendPostpone         = "postpone_application"
	RecommendReduceDebt       = "reduce_debt_burden"
	RecommendStableEmployment = "improve_employment_stability"
	RecommendClearDefaults    = "avoid_further_defaults"
	RecommendBuildHistory     = "build_repayment_history"
)

var tierRecommendations = map[domain.Tier]string{
	domain.TierLow:      RecommendBestTerms,
	domain.TierMedium:   RecommendMostOffers,
	domain.TierHigh:     RecommendLimitedOffers,
	domain.TierRejected: RecommendPostpone,
}

var factorRecommendations = map[string]string{
	FactorDebtBurden:    RecommendReduceDebt,
	FactorEmployment:    RecommendStableEmployment,
	FactorPriorDefaults: RecommendClearDefaults,
}

// recommend lists what an applicant can act on. A factor that pulled the score
// down is weak; missing repayment history is weak whenever the tier is not LOW.
func recommend(tier domain.Tier, factors []domain.ScoreFactor, onTime int) []string {
	out := []string{tierRecommendations[tier]}

	for _, f := range factors {
		if code, ok := factorRecommendations[f.Name]; ok && f.Weight < 0 {
			out = append(out, code)
		}
	}
	if onTime == 0 && tier != domain.TierLow {
		out = append(out, RecommendBuildHistory)
	}

	return out
}

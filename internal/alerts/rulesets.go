package alerts

import (
	"fmt"

	"ewarn/internal/models"
)

// Rule categories, used as the recommendation lookup key
const (
	CategoryIndigenousCase     = "indigenous_case"
	CategoryIndigenousIncrease = "indigenous_increase"
	CategoryCaseIncrease       = "case_increase"
	CategoryCaseFatality       = "case_fatality"
)

// RuleSet is the ordered rule table of one disease
type RuleSet struct {
	Disease models.Disease `yaml:"disease" json:"disease"`
	Rules   []Rule         `yaml:"rules" json:"rules"`
}

// ForTier returns the rules that apply to a record of the given tier, in
// declaration order.
func (s RuleSet) ForTier(t Tier) []Rule {
	var rules []Rule
	for _, r := range s.Rules {
		if r.Tier.Matches(t) {
			rules = append(rules, r)
		}
	}
	return rules
}

// Validate checks the disease and every rule, and rejects duplicate rule IDs
func (s RuleSet) Validate() error {
	if !s.Disease.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidDisease, s.Disease)
	}
	seen := make(map[string]bool, len(s.Rules))
	for _, r := range s.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.Disease, err)
		}
		if seen[r.ID] {
			return fmt.Errorf("%s: %w: duplicate id %s", s.Disease, ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// DefaultRuleSets returns the built-in tables for every supported disease
func DefaultRuleSets() []RuleSet {
	return []RuleSet{MalariaRules(), DBDRules(), LeptospirosisRules()}
}

// MalariaRules: elimination areas alert on any indigenous case, low endemic
// areas on a doubling of indigenous cases, and moderate/high endemic areas on
// a doubling of total positive cases.
func MalariaRules() RuleSet {
	const (
		indigenousLabel = "Penularan indigenous"
		positiveLabel   = "Total kasus positif"
	)
	doubling := func(id string, tier Tier, metric models.Metric, kind models.ChangeKind, category, label, desc string) Rule {
		return Rule{
			ID:          id,
			Category:    category,
			Tier:        tier,
			Kind:        KindChange,
			Metric:      metric,
			Comparison:  kind,
			Operator:    OpGTE,
			Threshold:   100,
			Label:       label,
			Description: desc,
		}
	}

	return RuleSet{
		Disease: models.DiseaseMalaria,
		Rules: []Rule{
			{
				ID:          "malaria.elimination.indigenous",
				Category:    CategoryIndigenousCase,
				Tier:        TierElimination,
				Kind:        KindCount,
				Metric:      models.MetricIndigenousTransmission,
				Operator:    OpGTE,
				Threshold:   1,
				Label:       indigenousLabel,
				Description: "daerah eliminasi, ambang >= 1 kasus indigenous",
			},
			doubling("malaria.low.indigenous_mom", TierLowEndemic, models.MetricIndigenousTransmission, models.MonthOverMonth,
				CategoryIndigenousIncrease, indigenousLabel, "endemis rendah, ambang kenaikan >= 100% per bulan"),
			doubling("malaria.low.indigenous_yoy", TierLowEndemic, models.MetricIndigenousTransmission, models.YearOverYear,
				CategoryIndigenousIncrease, indigenousLabel, "endemis rendah, ambang kenaikan >= 100% per tahun"),
			doubling("malaria.moderate.positive_mom", TierModerateEndemic, models.MetricTotalPositive, models.MonthOverMonth,
				CategoryCaseIncrease, positiveLabel, "endemis sedang, ambang kenaikan >= 100% per bulan"),
			doubling("malaria.moderate.positive_yoy", TierModerateEndemic, models.MetricTotalPositive, models.YearOverYear,
				CategoryCaseIncrease, positiveLabel, "endemis sedang, ambang kenaikan >= 100% per tahun"),
			doubling("malaria.high.positive_mom", TierHighEndemic, models.MetricTotalPositive, models.MonthOverMonth,
				CategoryCaseIncrease, positiveLabel, "endemis tinggi, ambang kenaikan >= 100% per bulan"),
			doubling("malaria.high.positive_yoy", TierHighEndemic, models.MetricTotalPositive, models.YearOverYear,
				CategoryCaseIncrease, positiveLabel, "endemis tinggi, ambang kenaikan >= 100% per tahun"),
		},
	}
}

// DBDRules alerts on a case fatality rate above 0.5%
func DBDRules() RuleSet {
	return RuleSet{
		Disease: models.DiseaseDBD,
		Rules:   []Rule{caseFatalityRule("dbd.cfr")},
	}
}

// LeptospirosisRules alerts on a case fatality rate above 0.5%
func LeptospirosisRules() RuleSet {
	return RuleSet{
		Disease: models.DiseaseLeptospirosis,
		Rules:   []Rule{caseFatalityRule("leptospirosis.cfr")},
	}
}

func caseFatalityRule(id string) Rule {
	return Rule{
		ID:          id,
		Category:    CategoryCaseFatality,
		Tier:        TierAny,
		Kind:        KindRatio,
		Metric:      models.MetricDeaths,
		Denominator: models.MetricCases,
		Operator:    OpGT,
		Threshold:   0.5,
		Reports:     models.MetricCaseFatalityRate,
		Label:       "CFR (%)",
		Description: "ambang CFR > 0.5%",
	}
}

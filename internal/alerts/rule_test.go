package alerts

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ewarn/internal/models"
)

func ruleByID(t *testing.T, set RuleSet, id string) Rule {
	t.Helper()
	for _, r := range set.Rules {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("rule %s not found", id)
	return Rule{}
}

func TestCountRule(t *testing.T) {
	rule := ruleByID(t, MalariaRules(), "malaria.elimination.indigenous")

	tests := []struct {
		name  string
		value *float64
		fires bool
	}{
		{"at threshold", models.Float(1), true},
		{"above threshold", models.Float(4), true},
		{"below threshold", models.Float(0), false},
		{"null", nil, false},
		{"NaN", models.Float(math.NaN()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := models.MonthlyRecord{Metrics: models.Metrics{models.MetricIndigenousTransmission: tt.value}}
			trigger, fired := rule.Evaluate(rec)
			assert.Equal(t, tt.fires, fired)
			if fired {
				assert.Equal(t, *tt.value, trigger.Value)
				assert.Nil(t, trigger.ChangeValue)
			}
		})
	}

	_, fired := rule.Evaluate(models.MonthlyRecord{})
	assert.False(t, fired, "missing metric map must not fire")
}

func TestChangeRule_NullSafe(t *testing.T) {
	mom := Rule{
		ID: "test.mom", Kind: KindChange, Metric: models.MetricCases,
		Comparison: models.MonthOverMonth, Operator: OpGTE, Threshold: 100, Label: "Kasus",
	}
	rec := models.MonthlyRecord{
		ChangeMetrics: models.ChangeMetrics{
			models.MetricCases: {MonthOverMonth: nil, YearOverYear: models.Float(150)},
		},
	}

	_, fired := mom.Evaluate(rec)
	assert.False(t, fired)

	yoy := mom
	yoy.Comparison = models.YearOverYear
	trigger, fired := yoy.Evaluate(rec)
	require.True(t, fired)
	require.NotNil(t, trigger.ChangeValue)
	assert.Equal(t, 150.0, *trigger.ChangeValue)
	require.NotNil(t, trigger.Comparison)
	assert.Equal(t, models.YearOverYear, *trigger.Comparison)
	assert.Equal(t, 0.0, trigger.Value, "unknown current value reports zero")
}

func TestChangeRule_InclusiveThreshold(t *testing.T) {
	rule := ruleByID(t, MalariaRules(), "malaria.moderate.positive_mom")
	rec := models.MonthlyRecord{
		Metrics: models.Metrics{models.MetricTotalPositive: models.Float(40)},
		ChangeMetrics: models.ChangeMetrics{
			models.MetricTotalPositive: {MonthOverMonth: models.Float(100)},
		},
	}

	trigger, fired := rule.Evaluate(rec)
	require.True(t, fired)
	assert.Equal(t, 40.0, trigger.Value)

	rec.ChangeMetrics[models.MetricTotalPositive] = models.Change{MonthOverMonth: models.Float(99.9)}
	_, fired = rule.Evaluate(rec)
	assert.False(t, fired)
}

func TestRatioRule(t *testing.T) {
	rule := caseFatalityRule("dbd.cfr")

	tests := []struct {
		name   string
		cases  *float64
		deaths *float64
		fires  bool
		ratio  float64
	}{
		{"one percent", models.Float(100), models.Float(1), true, 1},
		{"exactly half percent is not above", models.Float(200), models.Float(1), false, 0},
		{"no deaths", models.Float(100), models.Float(0), false, 0},
		{"no cases no deaths", models.Float(0), models.Float(0), false, 0},
		{"deaths without cases", models.Float(0), models.Float(3), false, 0},
		{"null cases", nil, models.Float(3), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := models.MonthlyRecord{Metrics: models.Metrics{
				models.MetricCases:  tt.cases,
				models.MetricDeaths: tt.deaths,
			}}
			trigger, fired := rule.Evaluate(rec)
			assert.Equal(t, tt.fires, fired)
			if fired {
				assert.InDelta(t, tt.ratio, trigger.Value, 1e-9)
			}
		})
	}
}

func TestRatioRule_GuardHoldsForZeroThreshold(t *testing.T) {
	rule := caseFatalityRule("dbd.cfr")
	rule.Operator = OpGTE
	rule.Threshold = 0

	rec := models.MonthlyRecord{Metrics: models.Metrics{
		models.MetricCases:  models.Float(0),
		models.MetricDeaths: models.Float(0),
	}}
	_, fired := rule.Evaluate(rec)
	assert.False(t, fired)
}

func TestRuleValidate(t *testing.T) {
	valid := Rule{ID: "r", Kind: KindCount, Metric: models.MetricCases, Operator: OpGTE, Threshold: 1, Label: "Kasus"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Rule)
	}{
		{"empty id", func(r *Rule) { r.ID = "" }},
		{"bad tier", func(r *Rule) { r.Tier = "Severe" }},
		{"bad operator", func(r *Rule) { r.Operator = "lt" }},
		{"no metric", func(r *Rule) { r.Metric = "" }},
		{"no label", func(r *Rule) { r.Label = "" }},
		{"infinite threshold", func(r *Rule) { r.Threshold = math.Inf(1) }},
		{"count with comparison", func(r *Rule) { r.Comparison = models.MonthOverMonth }},
		{"change without comparison", func(r *Rule) { r.Kind = KindChange }},
		{"ratio without denominator", func(r *Rule) { r.Kind = KindRatio }},
		{"unknown kind", func(r *Rule) { r.Kind = "spline" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.modify(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRule)
		})
	}
}

func TestDefaultRuleSetsValid(t *testing.T) {
	for _, s := range DefaultRuleSets() {
		assert.NoError(t, s.Validate(), s.Disease)
	}
}

func TestRuleSetForTier(t *testing.T) {
	set := MalariaRules()

	low := set.ForTier(TierLowEndemic)
	require.Len(t, low, 2)
	assert.Equal(t, "malaria.low.indigenous_mom", low[0].ID)
	assert.Equal(t, "malaria.low.indigenous_yoy", low[1].ID)

	assert.Len(t, set.ForTier(TierElimination), 1)
	assert.Len(t, DBDRules().ForTier(TierHighEndemic), 1)
	assert.Len(t, DBDRules().ForTier(TierElimination), 1)
}

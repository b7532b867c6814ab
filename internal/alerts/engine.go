package alerts

import (
	"fmt"

	"github.com/google/uuid"

	"ewarn/internal/models"
)

// warningNamespace seeds the name-based UUIDs used as warning IDs.
var warningNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ewarn.warning"))

// AlertEngine evaluates surveillance records and emits warnings.
type AlertEngine interface {
	Detect(records []models.MonthlyRecord, latest *models.Period, disease models.Disease) []models.Warning
	Evaluate(records []models.MonthlyRecord, latest *models.Period, disease models.Disease) Report
	RuleSet(disease models.Disease) (RuleSet, bool)
	Diseases() []models.Disease
}

// Report is the outcome of one detection run with the diagnostics callers
// use for logging and metrics.
type Report struct {
	Disease    models.Disease
	Reference  *models.Period
	Candidates int
	Warnings   []models.Warning

	// UnrecognizedLabels lists endemic labels that fell back to
	// FallbackTier, each once, in first-seen order.
	UnrecognizedLabels []string
	MissingRuleSet     bool
}

// Engine is the rule engine shared by all diseases. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	sets map[models.Disease]RuleSet
}

// NewEngine builds an engine from validated rule sets. A later set for the
// same disease replaces an earlier one.
func NewEngine(sets ...RuleSet) (*Engine, error) {
	e := &Engine{sets: make(map[models.Disease]RuleSet, len(sets))}
	for _, s := range sets {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		rules := make([]Rule, len(s.Rules))
		copy(rules, s.Rules)
		e.sets[s.Disease] = RuleSet{Disease: s.Disease, Rules: rules}
	}
	return e, nil
}

// NewDefaultEngine returns an engine loaded with DefaultRuleSets.
func NewDefaultEngine() *Engine {
	e, err := NewEngine(DefaultRuleSets()...)
	if err != nil {
		panic(fmt.Sprintf("built-in rule sets are invalid: %v", err))
	}
	return e
}

// RuleSet returns the rules configured for a disease
func (e *Engine) RuleSet(disease models.Disease) (RuleSet, bool) {
	s, ok := e.sets[disease]
	return s, ok
}

// Diseases lists the diseases that have rule sets, in models.Diseases order
func (e *Engine) Diseases() []models.Disease {
	var out []models.Disease
	for _, d := range models.Diseases {
		if _, ok := e.sets[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Detect returns the warnings for the predicted records inside the window
// that follows latest. It never returns nil.
func (e *Engine) Detect(records []models.MonthlyRecord, latest *models.Period, disease models.Disease) []models.Warning {
	return e.Evaluate(records, latest, disease).Warnings
}

// Evaluate is Detect with diagnostics.
func (e *Engine) Evaluate(records []models.MonthlyRecord, latest *models.Period, disease models.Disease) Report {
	report := Report{
		Disease:  disease,
		Warnings: []models.Warning{},
	}
	if latest != nil {
		ref := *latest
		report.Reference = &ref
	}

	if len(records) == 0 || latest == nil {
		return report
	}

	set, ok := e.sets[disease]
	if !ok {
		report.MissingRuleSet = true
		return report
	}

	candidates := SelectWindow(records, latest)
	report.Candidates = len(candidates)

	seenLabels := make(map[string]bool)
	for _, rec := range candidates {
		tier, matched := MatchTier(rec.EndemicStatus)
		if !matched && !seenLabels[rec.EndemicStatus] {
			seenLabels[rec.EndemicStatus] = true
			report.UnrecognizedLabels = append(report.UnrecognizedLabels, rec.EndemicStatus)
		}

		for _, rule := range set.ForTier(tier) {
			trigger, fired := rule.Evaluate(rec)
			if !fired {
				continue
			}
			report.Warnings = append(report.Warnings, newWarning(disease, rec, tier, rule, trigger))
		}
	}

	return report
}

func newWarning(disease models.Disease, rec models.MonthlyRecord, tier Tier, rule Rule, trigger Trigger) models.Warning {
	return models.Warning{
		ID:        WarningID(disease, rec.Region, rec.Period, rule.ID),
		Disease:   disease,
		Region:    rec.Region.Display(),
		RegionKey: rec.Region.Key(),
		Period: models.WarningPeriod{
			Month:     rec.Period.Month,
			Year:      rec.Period.Year,
			MonthName: rec.Period.MonthName(),
		},
		RuleID:                rule.ID,
		Category:              rule.Category,
		Metric:                rule.ReportedMetric(),
		TriggeringMetricLabel: rule.Label,
		Value:                 trigger.Value,
		ChangeValue:           trigger.ChangeValue,
		ComparisonKind:        trigger.Comparison,
		Threshold:             rule.Threshold,
		ThresholdDescription:  rule.Description,
		EndemicStatus:         rec.EndemicStatus,
		Tier:                  string(tier),
	}
}

// WarningID derives the stable identifier of a warning from what it is about.
func WarningID(disease models.Disease, region models.Region, period models.Period, ruleID string) string {
	key := fmt.Sprintf("%s|%s|%s|%s", disease, region.Key(), period, ruleID)
	return uuid.NewSHA1(warningNamespace, []byte(key)).String()
}

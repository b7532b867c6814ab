package alerts

import (
	"errors"
	"fmt"
	"math"

	"ewarn/internal/models"
)

// Kind is the shape of a threshold rule
type Kind string

const (
	// KindCount compares a metric value against the threshold.
	KindCount Kind = "count"
	// KindChange compares a metric's percentage change against the threshold.
	KindChange Kind = "change"
	// KindRatio compares Metric/Denominator*100 against the threshold.
	KindRatio Kind = "ratio"
)

// Operator is the comparison applied to the evaluated value
type Operator string

const (
	OpGTE Operator = "gte"
	OpGT  Operator = "gt"
)

// Rule errors
var (
	ErrInvalidRule = errors.New("invalid rule")
)

// Rule is one threshold predicate over a single record.
type Rule struct {
	ID          string            `yaml:"id" json:"id"`
	Category    string            `yaml:"category" json:"category"`
	Tier        Tier              `yaml:"tier,omitempty" json:"tier,omitempty"`
	Kind        Kind              `yaml:"kind" json:"kind"`
	Metric      models.Metric     `yaml:"metric" json:"metric"`
	Denominator models.Metric     `yaml:"denominator,omitempty" json:"denominator,omitempty"`
	Comparison  models.ChangeKind `yaml:"comparison,omitempty" json:"comparison,omitempty"`
	Operator    Operator          `yaml:"operator" json:"operator"`
	Threshold   float64           `yaml:"threshold" json:"threshold"`

	// Reports overrides the metric name surfaced on the warning (ratio rules).
	Reports     models.Metric `yaml:"reports,omitempty" json:"reports,omitempty"`
	Label       string        `yaml:"label" json:"label"`
	Description string        `yaml:"description" json:"description"`
}

// Trigger carries the values that made a rule fire
type Trigger struct {
	Value       float64
	ChangeValue *float64
	Comparison  *models.ChangeKind
}

// Evaluate applies the rule to a record. Values the rule needs that are
// absent never satisfy it.
func (r Rule) Evaluate(rec models.MonthlyRecord) (Trigger, bool) {
	switch r.Kind {
	case KindCount:
		v, ok := rec.Metrics.Get(r.Metric)
		if !ok || !r.compare(v) {
			return Trigger{}, false
		}
		return Trigger{Value: v}, true

	case KindChange:
		c, ok := rec.ChangeMetrics.Get(r.Metric, r.Comparison)
		if !ok || !r.compare(c) {
			return Trigger{}, false
		}
		v, _ := rec.Metrics.Get(r.Metric)
		kind := r.Comparison
		return Trigger{Value: v, ChangeValue: &c, Comparison: &kind}, true

	case KindRatio:
		ratio := r.ratio(rec)
		if ratio == 0 || !r.compare(ratio) {
			return Trigger{}, false
		}
		return Trigger{Value: ratio}, true

	default:
		return Trigger{}, false
	}
}

// ratio is Metric/Denominator*100, or 0 unless both are positive.
func (r Rule) ratio(rec models.MonthlyRecord) float64 {
	num, ok := rec.Metrics.Get(r.Metric)
	if !ok || num <= 0 {
		return 0
	}
	den, ok := rec.Metrics.Get(r.Denominator)
	if !ok || den <= 0 {
		return 0
	}
	return num * 100 / den
}

func (r Rule) compare(v float64) bool {
	switch r.Operator {
	case OpGTE:
		return v >= r.Threshold
	case OpGT:
		return v > r.Threshold
	default:
		return false
	}
}

// ReportedMetric is the metric name placed on warnings from this rule
func (r Rule) ReportedMetric() models.Metric {
	if r.Reports != "" {
		return r.Reports
	}
	return r.Metric
}

// Validate checks that the rule is fully specified for its kind
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if !r.Tier.IsValid() {
		return fmt.Errorf("%w %s: unknown tier %q", ErrInvalidRule, r.ID, r.Tier)
	}
	if r.Operator != OpGTE && r.Operator != OpGT {
		return fmt.Errorf("%w %s: unknown operator %q", ErrInvalidRule, r.ID, r.Operator)
	}
	if r.Metric == "" {
		return fmt.Errorf("%w %s: metric is required", ErrInvalidRule, r.ID)
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return fmt.Errorf("%w %s: threshold must be finite", ErrInvalidRule, r.ID)
	}
	if r.Label == "" {
		return fmt.Errorf("%w %s: label is required", ErrInvalidRule, r.ID)
	}

	switch r.Kind {
	case KindCount:
		if r.Comparison != "" || r.Denominator != "" {
			return fmt.Errorf("%w %s: count rules take no comparison or denominator", ErrInvalidRule, r.ID)
		}
	case KindChange:
		if !r.Comparison.IsValid() {
			return fmt.Errorf("%w %s: change rules need MonthOverMonth or YearOverYear", ErrInvalidRule, r.ID)
		}
	case KindRatio:
		if r.Denominator == "" {
			return fmt.Errorf("%w %s: ratio rules need a denominator", ErrInvalidRule, r.ID)
		}
		if r.Threshold < 0 {
			return fmt.Errorf("%w %s: ratio threshold cannot be negative", ErrInvalidRule, r.ID)
		}
	default:
		return fmt.Errorf("%w %s: unknown kind %q", ErrInvalidRule, r.ID, r.Kind)
	}

	return nil
}

package models

import (
	"fmt"
	"strconv"
)

// WarningPeriod is the period of a warning with its display month name
type WarningPeriod struct {
	Month     int    `json:"month"`
	Year      int    `json:"year"`
	MonthName string `json:"month_name"`
}

// Warning is one rule firing for one predicted record
type Warning struct {
	ID                    string        `json:"id"`
	Disease               Disease       `json:"disease"`
	Region                string        `json:"region"`
	RegionKey             string        `json:"region_key"`
	Period                WarningPeriod `json:"period"`
	RuleID                string        `json:"rule_id"`
	Category              string        `json:"category"`
	Metric                Metric        `json:"metric"`
	TriggeringMetricLabel string        `json:"triggering_metric_label"`
	Value                 float64       `json:"value"`
	ChangeValue           *float64      `json:"change_value"`
	ComparisonKind        *ChangeKind   `json:"comparison_kind"`
	Threshold             float64       `json:"threshold"`
	ThresholdDescription  string        `json:"threshold_description"`
	EndemicStatus         string        `json:"endemic_status"`
	Tier                  string        `json:"tier"`
}

// Message renders the one-line summary shown in the warning list
func (w Warning) Message() string {
	var detail string
	if w.ChangeValue != nil && w.ComparisonKind != nil {
		detail = fmt.Sprintf("%s berubah %s%% %s",
			w.TriggeringMetricLabel, formatNumber(*w.ChangeValue), comparisonPhrase(*w.ComparisonKind))
	} else {
		detail = fmt.Sprintf("%s %s", w.TriggeringMetricLabel, formatNumber(w.Value))
	}

	return fmt.Sprintf("[%s] %s, %s %d: %s (%s)",
		w.Disease.DisplayName(), w.Region, w.Period.MonthName, w.Period.Year, detail, w.ThresholdDescription)
}

func comparisonPhrase(kind ChangeKind) string {
	switch kind {
	case MonthOverMonth:
		return "dibanding bulan sebelumnya"
	case YearOverYear:
		return "dibanding bulan yang sama tahun lalu"
	default:
		return ""
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Summary counts warnings for the dashboard badge and detail tabs
type Summary struct {
	Total      int             `json:"total"`
	ByDisease  map[Disease]int `json:"by_disease"`
	ByCategory map[string]int  `json:"by_category"`
}

// Summarize counts warnings per disease and per rule category
func Summarize(warnings []Warning) Summary {
	s := Summary{
		Total:      len(warnings),
		ByDisease:  make(map[Disease]int),
		ByCategory: make(map[string]int),
	}
	for _, w := range warnings {
		s.ByDisease[w.Disease]++
		s.ByCategory[w.Category]++
	}
	return s
}

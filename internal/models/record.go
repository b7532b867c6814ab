package models

import (
	"errors"
	"math"
)

// Disease identifies which surveillance programme a record belongs to
type Disease string

const (
	DiseaseMalaria       Disease = "malaria"
	DiseaseDBD           Disease = "dbd"
	DiseaseLeptospirosis Disease = "leptospirosis"
)

// Diseases lists every supported disease in display order
var Diseases = []Disease{DiseaseMalaria, DiseaseDBD, DiseaseLeptospirosis}

// IsValid checks if the disease is one we have rules for
func (d Disease) IsValid() bool {
	switch d {
	case DiseaseMalaria, DiseaseDBD, DiseaseLeptospirosis:
		return true
	default:
		return false
	}
}

// DisplayName is the label used in warning messages
func (d Disease) DisplayName() string {
	switch d {
	case DiseaseMalaria:
		return "Malaria"
	case DiseaseDBD:
		return "DBD"
	case DiseaseLeptospirosis:
		return "Leptospirosis"
	default:
		return string(d)
	}
}

// Status tells observed data apart from model forecasts
type Status string

const (
	StatusActual    Status = "actual"
	StatusPredicted Status = "predicted"
)

// IsValid checks if the status is known
func (s Status) IsValid() bool {
	return s == StatusActual || s == StatusPredicted
}

// Metric names a numeric column of a record
type Metric string

const (
	MetricIndigenousTransmission Metric = "indigenousTransmission"
	MetricTotalPositive          Metric = "totalPositive"
	MetricCases                  Metric = "cases"
	MetricDeaths                 Metric = "deaths"
	MetricCaseFatalityRate       Metric = "caseFatalityRate"
)

// ChangeKind selects which prior period a percentage change compares against
type ChangeKind string

const (
	MonthOverMonth ChangeKind = "MonthOverMonth"
	YearOverYear   ChangeKind = "YearOverYear"
)

// IsValid checks if the comparison kind is known
func (k ChangeKind) IsValid() bool {
	return k == MonthOverMonth || k == YearOverYear
}

// Region is the administrative area a record describes. City fields are
// empty for province-level rows.
type Region struct {
	ProvinceCode string `json:"province_code"`
	ProvinceName string `json:"province_name"`
	CityCode     string `json:"city_code,omitempty"`
	CityName     string `json:"city_name,omitempty"`
}

// Key is the stable code-based identifier of the region
func (r Region) Key() string {
	if r.CityCode != "" {
		return r.ProvinceCode + "/" + r.CityCode
	}
	return r.ProvinceCode
}

// Display returns the most specific human-readable name
func (r Region) Display() string {
	if r.CityName != "" {
		return r.CityName
	}
	if r.ProvinceName != "" {
		return r.ProvinceName
	}
	return r.Key()
}

// Metrics maps a metric to its value. A nil value means the value is unknown.
type Metrics map[Metric]*float64

// Get returns the value and whether it can be evaluated. Missing, null and
// non-finite values all report false.
func (m Metrics) Get(name Metric) (float64, bool) {
	return finite(m[name])
}

// Change holds the percentage changes of one metric
type Change struct {
	MonthOverMonth *float64 `json:"MonthOverMonth"`
	YearOverYear   *float64 `json:"YearOverYear"`
}

// ChangeMetrics maps a metric to its percentage changes
type ChangeMetrics map[Metric]Change

// Get returns the change of the given kind and whether it can be evaluated
func (c ChangeMetrics) Get(name Metric, kind ChangeKind) (float64, bool) {
	change, ok := c[name]
	if !ok {
		return 0, false
	}
	switch kind {
	case MonthOverMonth:
		return finite(change.MonthOverMonth)
	case YearOverYear:
		return finite(change.YearOverYear)
	default:
		return 0, false
	}
}

// MonthlyRecord is one disease-month-region observation or forecast
type MonthlyRecord struct {
	Disease       Disease       `json:"disease,omitempty"`
	Region        Region        `json:"region"`
	Period        Period        `json:"period"`
	Status        Status        `json:"status"`
	Metrics       Metrics       `json:"metrics,omitempty"`
	ChangeMetrics ChangeMetrics `json:"change_metrics,omitempty"`
	EndemicStatus string        `json:"endemic_status,omitempty"`
}

// Validation errors
var (
	ErrEmptyProvince  = errors.New("region province code cannot be empty")
	ErrInvalidStatus  = errors.New("status must be actual or predicted")
	ErrInvalidDisease = errors.New("unknown disease")
)

// Validate checks the structural fields of a record. Metric values are not
// checked: an absent metric only means a rule cannot fire.
func (r *MonthlyRecord) Validate() error {
	if r.Region.ProvinceCode == "" {
		return ErrEmptyProvince
	}

	if err := r.Period.Validate(); err != nil {
		return err
	}

	if !r.Status.IsValid() {
		return ErrInvalidStatus
	}

	if r.Disease != "" && !r.Disease.IsValid() {
		return ErrInvalidDisease
	}

	return nil
}

// Float returns a pointer to v, for building metric maps
func Float(v float64) *float64 {
	return &v
}

func finite(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

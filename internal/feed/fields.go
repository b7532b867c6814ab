package feed

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ewarn/internal/models"
)

// Column suffixes carrying percentage changes of a metric column
const (
	suffixMonthOverMonth = "_m_to_m_change"
	suffixYearOverYear   = "_y_on_y_change"
)

// Region, period and label columns shared by every disease table
const (
	colProvinceCode  = "kd_prov"
	colProvinceName  = "nama_prov"
	colCityCode      = "kd_kab"
	colCityName      = "nama_kab"
	colMonth         = "bulan"
	colYear          = "tahun"
	colStatus        = "status"
	colEndemicStatus = "status_endemis"
)

// FieldMap translates the metric columns of one disease table into metric
// names. Change columns are derived from the metric column name.
type FieldMap map[string]models.Metric

// DefaultFieldMaps are the column layouts of the surveillance backend
func DefaultFieldMaps() map[models.Disease]FieldMap {
	return map[models.Disease]FieldMap{
		models.DiseaseMalaria: {
			"tot_pos":    models.MetricTotalPositive,
			"indigenous": models.MetricIndigenousTransmission,
		},
		models.DiseaseDBD: {
			"dbd_p": models.MetricCases,
			"dbd_m": models.MetricDeaths,
		},
		models.DiseaseLeptospirosis: {
			"lep_k": models.MetricCases,
			"lep_m": models.MetricDeaths,
		},
	}
}

// MergeFieldMaps overlays configured column layouts on the defaults. A
// configured disease replaces its whole layout.
func MergeFieldMaps(overrides map[string]map[string]string) (map[models.Disease]FieldMap, error) {
	maps := DefaultFieldMaps()
	for rawDisease, columns := range overrides {
		d, ok := models.ParseDisease(rawDisease)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedDisease, rawDisease)
		}
		if len(columns) == 0 {
			return nil, fmt.Errorf("field map for %s has no columns", d)
		}
		fm := make(FieldMap, len(columns))
		for column, metric := range columns {
			fm[column] = models.Metric(metric)
		}
		maps[d] = fm
	}
	return maps, nil
}

// Row is one flat feed row keyed by column name
type Row map[string]any

// DecodeRow converts a flat row into a MonthlyRecord. Metric columns that are
// absent, null or non-numeric stay unknown.
func (fm FieldMap) DecodeRow(disease models.Disease, row Row) (models.MonthlyRecord, error) {
	rec := models.MonthlyRecord{
		Disease: disease,
		Region: models.Region{
			ProvinceCode: stringValue(row[colProvinceCode]),
			ProvinceName: stringValue(row[colProvinceName]),
			CityCode:     stringValue(row[colCityCode]),
			CityName:     stringValue(row[colCityName]),
		},
		EndemicStatus: stringValue(row[colEndemicStatus]),
	}

	month, ok := intValue(row[colMonth])
	if !ok {
		return rec, fmt.Errorf("%s: not a month number: %v", colMonth, row[colMonth])
	}
	year, ok := intValue(row[colYear])
	if !ok {
		return rec, fmt.Errorf("%s: not a year: %v", colYear, row[colYear])
	}
	rec.Period = models.Period{Month: month, Year: year}

	status, ok := models.ParseStatus(stringValue(row[colStatus]))
	if !ok {
		return rec, fmt.Errorf("%s: %w: %v", colStatus, models.ErrInvalidStatus, row[colStatus])
	}
	rec.Status = status

	rec.Metrics = make(models.Metrics, len(fm))
	for column, metric := range fm {
		rec.Metrics[metric] = floatValue(row[column])

		mom := floatValue(row[column+suffixMonthOverMonth])
		yoy := floatValue(row[column+suffixYearOverYear])
		if mom != nil || yoy != nil {
			if rec.ChangeMetrics == nil {
				rec.ChangeMetrics = make(models.ChangeMetrics)
			}
			rec.ChangeMetrics[metric] = models.Change{MonthOverMonth: mom, YearOverYear: yoy}
		}
	}

	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return rec, err
	}
	return rec, nil
}

// RowError describes a feed row that could not be decoded
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

// DecodeRows decodes every row, skipping the ones that fail
func (fm FieldMap) DecodeRows(disease models.Disease, rows []Row) ([]models.MonthlyRecord, []RowError) {
	records := make([]models.MonthlyRecord, 0, len(rows))
	var rowErrs []RowError

	for i, row := range rows {
		rec, err := fm.DecodeRow(disease, row)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: i, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func floatValue(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func intValue(v any) (int, bool) {
	f := floatValue(v)
	if f == nil || *f != math.Trunc(*f) {
		return 0, false
	}
	return int(*f), true
}

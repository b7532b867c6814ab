package models

import (
	"strings"
)

// statusAliases maps the spellings seen in upstream feeds to a Status
var statusAliases = map[string]Status{
	"actual":     StatusActual,
	"aktual":     StatusActual,
	"realisasi":  StatusActual,
	"predicted":  StatusPredicted,
	"prediction": StatusPredicted,
	"prediksi":   StatusPredicted,
	"forecast":   StatusPredicted,
}

// diseaseAliases maps URL and feed spellings to a Disease
var diseaseAliases = map[string]Disease{
	"malaria":       DiseaseMalaria,
	"dbd":           DiseaseDBD,
	"dengue":        DiseaseDBD,
	"leptospirosis": DiseaseLeptospirosis,
	"lepto":         DiseaseLeptospirosis,
}

// Normalize applies field normalization to a MonthlyRecord
// - trims region codes and names
// - maps status and disease aliases
// - trims the endemic label but keeps its case (classification is case-sensitive)
func (r *MonthlyRecord) Normalize() {
	r.Region.ProvinceCode = strings.TrimSpace(r.Region.ProvinceCode)
	r.Region.ProvinceName = strings.TrimSpace(r.Region.ProvinceName)
	r.Region.CityCode = strings.TrimSpace(r.Region.CityCode)
	r.Region.CityName = strings.TrimSpace(r.Region.CityName)

	if s, ok := ParseStatus(string(r.Status)); ok {
		r.Status = s
	}

	if r.Disease != "" {
		if d, ok := ParseDisease(string(r.Disease)); ok {
			r.Disease = d
		}
	}

	r.EndemicStatus = strings.TrimSpace(r.EndemicStatus)
}

// ParseStatus resolves a status spelling, case-insensitively
func ParseStatus(s string) (Status, bool) {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	return status, ok
}

// ParseDisease resolves a disease spelling, case-insensitively
func ParseDisease(s string) (Disease, bool) {
	d, ok := diseaseAliases[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

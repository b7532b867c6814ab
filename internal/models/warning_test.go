package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWarningMessage(t *testing.T) {
	count := Warning{
		Disease:               DiseaseMalaria,
		Region:                "Jakarta Pusat",
		Period:                WarningPeriod{Month: 2, Year: 2023, MonthName: "Februari"},
		TriggeringMetricLabel: "Penularan indigenous",
		Value:                 1,
		ThresholdDescription:  "daerah eliminasi, ambang >= 1 kasus indigenous",
	}
	assert.Equal(t,
		"[Malaria] Jakarta Pusat, Februari 2023: Penularan indigenous 1 (daerah eliminasi, ambang >= 1 kasus indigenous)",
		count.Message())

	kind := YearOverYear
	change := Warning{
		Disease:               DiseaseMalaria,
		Region:                "Mimika",
		Period:                WarningPeriod{Month: 5, Year: 2024, MonthName: "Mei"},
		TriggeringMetricLabel: "Total kasus positif",
		Value:                 420,
		ChangeValue:           Float(125.5),
		ComparisonKind:        &kind,
		ThresholdDescription:  "endemis tinggi, ambang kenaikan >= 100% per tahun",
	}
	assert.Equal(t,
		"[Malaria] Mimika, Mei 2024: Total kasus positif berubah 125.5% dibanding bulan yang sama tahun lalu (endemis tinggi, ambang kenaikan >= 100% per tahun)",
		change.Message())
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Warning{
		{Disease: DiseaseMalaria, Category: "case_increase"},
		{Disease: DiseaseMalaria, Category: "case_increase"},
		{Disease: DiseaseDBD, Category: "case_fatality"},
	})

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.ByDisease[DiseaseMalaria])
	assert.Equal(t, 1, s.ByDisease[DiseaseDBD])
	assert.Equal(t, 2, s.ByCategory["case_increase"])

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Total)
	assert.NotNil(t, empty.ByDisease)
}

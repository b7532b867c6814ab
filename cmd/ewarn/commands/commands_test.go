package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ewarn/internal/alerts"
	"ewarn/internal/config"
	"ewarn/internal/detector"
	"ewarn/internal/feed"
	"ewarn/internal/handlers"
	"ewarn/internal/models"
)

const dengueInput = `{
	"latest_actual_period": {"month": 1, "year": 2024},
	"records": [
		{"region": {"province_code": "31", "province_name": "DKI Jakarta"},
		 "period": {"month": 2, "year": 2024}, "status": "predicted",
		 "metrics": {"cases": 150, "deaths": 3}},
		{"region": {"province_code": ""}, "period": {"month": 2, "year": 2024}, "status": "predicted"}
	]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFlagPeriod(t *testing.T) {
	p, err := flagPeriod(0, 0)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = flagPeriod(3, 2024)
	require.NoError(t, err)
	assert.Equal(t, &models.Period{Month: 3, Year: 2024}, p)

	_, err = flagPeriod(3, 0)
	assert.ErrorIs(t, err, models.ErrInvalidPeriod)
}

func TestDetectFromFile(t *testing.T) {
	detectInput = writeFile(t, "records.json", dengueInput)
	t.Cleanup(func() { detectInput = "" })

	batch, err := detectFromFile(models.DiseaseDBD, nil, detector.New(alerts.NewDefaultEngine(), nil))
	require.NoError(t, err)
	assert.Equal(t, &models.Period{Month: 1, Year: 2024}, batch.Reference)
	require.Len(t, batch.Warnings, 1)
	assert.Equal(t, "DKI Jakarta", batch.Warnings[0].Region)

	// The flag period wins over the file
	batch, err = detectFromFile(models.DiseaseDBD, &models.Period{Month: 2, Year: 2024}, detector.New(alerts.NewDefaultEngine(), nil))
	require.NoError(t, err)
	assert.Empty(t, batch.Warnings)
}

func TestDetectFromFile_RejectsOtherDisease(t *testing.T) {
	detectInput = writeFile(t, "records.json", `{
		"latest_actual_period": {"month": 1, "year": 2024},
		"records": [
			{"disease": "malaria", "region": {"province_code": "31", "province_name": "DKI Jakarta"},
			 "period": {"month": 2, "year": 2024}, "status": "predicted",
			 "metrics": {"cases": 150, "deaths": 3}},
			{"disease": "dbd", "region": {"province_code": "32", "province_name": "Jawa Barat"},
			 "period": {"month": 2, "year": 2024}, "status": "predicted",
			 "metrics": {"cases": 150, "deaths": 3}}
		]
	}`)
	t.Cleanup(func() { detectInput = "" })

	batch, err := detectFromFile(models.DiseaseDBD, nil, detector.New(alerts.NewDefaultEngine(), nil))
	require.NoError(t, err)
	require.Len(t, batch.Warnings, 1)
	assert.Equal(t, "Jawa Barat", batch.Warnings[0].Region)
}

func TestPrintWarnings(t *testing.T) {
	detectInput = writeFile(t, "records.json", dengueInput)
	t.Cleanup(func() { detectInput = "" })

	batch, err := detectFromFile(models.DiseaseDBD, nil, detector.New(alerts.NewDefaultEngine(), nil))
	require.NoError(t, err)

	var text bytes.Buffer
	require.NoError(t, printWarnings(&text, batch, "text"))
	assert.Contains(t, text.String(), "1 warning(s) after Januari 2024")
	assert.Contains(t, text.String(), "DKI Jakarta")

	var out bytes.Buffer
	require.NoError(t, printWarnings(&out, batch, "json"))
	var resp handlers.WarningsResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Len(t, resp.Warnings, 1)
	assert.NotNil(t, resp.Warnings[0].Recommendation)

	assert.Error(t, printWarnings(&out, batch, "xml"))

	var empty bytes.Buffer
	require.NoError(t, printWarnings(&empty, &models.WarningBatch{Disease: models.DiseaseMalaria}, "text"))
	assert.Contains(t, empty.String(), "no actual data yet")
}

func TestRulesRoundTrip(t *testing.T) {
	sets, err := activeRuleSets(config.Default(), "")
	require.NoError(t, err)
	assert.Len(t, sets, 3)

	var out bytes.Buffer
	require.NoError(t, printRuleSets(&out, sets, "yaml"))

	parsed, err := alerts.ParseRuleSets(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sets, parsed)

	only, err := activeRuleSets(config.Default(), "lepto")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, models.DiseaseLeptospirosis, only[0].Disease)

	_, err = activeRuleSets(config.Default(), "cholera")
	assert.ErrorIs(t, err, detector.ErrUnknownDisease)
}

func TestRulesCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"rules", "--disease", "dbd", "--format", "json"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		rulesDisease, rulesFormat = "", "yaml"
	})

	require.NoError(t, Execute())

	var sets []alerts.RuleSet
	require.NoError(t, json.Unmarshal(out.Bytes(), &sets))
	require.Len(t, sets, 1)
	assert.Equal(t, "dbd.cfr", sets[0].Rules[0].ID)
}

func TestDecodeImport(t *testing.T) {
	path := writeFile(t, "rows.json", `[
		{"kd_prov": "31", "nama_prov": "DKI Jakarta", "bulan": 1, "tahun": 2024, "status": "Aktual", "lep_k": 12, "lep_m": 1},
		{"kd_prov": "31", "bulan": "x", "tahun": 2024, "status": "Aktual"}
	]`)

	disease, records, err := decodeImport(feed.DefaultFieldMaps(), "lepto", path)
	require.NoError(t, err)
	assert.Equal(t, models.DiseaseLeptospirosis, disease)
	require.Len(t, records, 1)
	cases, ok := records[0].Metrics.Get(models.MetricCases)
	require.True(t, ok)
	assert.Equal(t, 12.0, cases)

	_, _, err = decodeImport(feed.DefaultFieldMaps(), "cholera", path)
	assert.ErrorIs(t, err, detector.ErrUnknownDisease)
}

type fakeRecordStore struct {
	saved map[models.Disease][]models.MonthlyRecord
}

func (f *fakeRecordStore) Records(ctx context.Context, d models.Disease) ([]models.MonthlyRecord, error) {
	return f.saved[d], nil
}

func (f *fakeRecordStore) LatestActual(ctx context.Context, d models.Disease) (*models.Period, error) {
	return nil, nil
}

func (f *fakeRecordStore) SaveRecords(ctx context.Context, d models.Disease, records []models.MonthlyRecord) (int, error) {
	if f.saved == nil {
		f.saved = make(map[models.Disease][]models.MonthlyRecord)
	}
	f.saved[d] = append(f.saved[d], records...)
	return len(records), nil
}

func TestImportRecords(t *testing.T) {
	path := writeFile(t, "rows.json", `{"data": [
		{"kd_prov": "63", "bulan": 5, "tahun": 2024, "status": "Prediksi", "tot_pos": 40, "tot_pos_m_to_m_change": 120}
	]}`)

	disease, records, err := decodeImport(feed.DefaultFieldMaps(), "malaria", path)
	require.NoError(t, err)

	store := &fakeRecordStore{}
	var out bytes.Buffer
	require.NoError(t, importRecords(context.Background(), &out, store, disease, records))

	assert.Equal(t, "imported 1 of 1 malaria record(s)\n", out.String())
	require.Len(t, store.saved[models.DiseaseMalaria], 1)
	change, ok := store.saved[models.DiseaseMalaria][0].ChangeMetrics.Get(models.MetricTotalPositive, models.MonthOverMonth)
	require.True(t, ok)
	assert.Equal(t, 120.0, change)
}

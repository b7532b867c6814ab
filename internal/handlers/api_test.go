package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ewarn/internal/alerts"
	"ewarn/internal/detector"
	"ewarn/internal/models"
	"ewarn/internal/worker"
)

type stubSource struct {
	records []models.MonthlyRecord
	latest  *models.Period
	err     error
}

func (s *stubSource) Records(ctx context.Context, d models.Disease) ([]models.MonthlyRecord, error) {
	return s.records, s.err
}

func (s *stubSource) LatestActual(ctx context.Context, d models.Disease) (*models.Period, error) {
	return s.latest, s.err
}

type stubPool struct {
	jobs []worker.Job
	err  error
}

func (p *stubPool) Submit(job worker.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func dengueRecord(province string, month int, cases, deaths float64) models.MonthlyRecord {
	return models.MonthlyRecord{
		Region:  models.Region{ProvinceCode: province, ProvinceName: "Provinsi " + province},
		Period:  models.Period{Month: month, Year: 2024},
		Status:  models.StatusPredicted,
		Metrics: models.Metrics{models.MetricCases: models.Float(cases), models.MetricDeaths: models.Float(deaths)},
	}
}

func newTestRouter(src *stubSource, pool Submitter) *mux.Router {
	api := NewAPI(Config{
		Detector: detector.New(alerts.NewDefaultEngine(), src),
		Pool:     pool,
	})
	r := mux.NewRouter()
	api.Register(r)
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListRules(t *testing.T) {
	r := newTestRouter(&stubSource{}, nil)

	rec := serve(r, http.MethodGet, "/api/v1/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sets []alerts.RuleSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sets))
	assert.Len(t, sets, 3)
}

func TestGetRules(t *testing.T) {
	r := newTestRouter(&stubSource{}, nil)

	rec := serve(r, http.MethodGet, "/api/v1/rules/dengue", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var set alerts.RuleSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	assert.Equal(t, models.DiseaseDBD, set.Disease)
	require.Len(t, set.Rules, 1)
	assert.Equal(t, "dbd.cfr", set.Rules[0].ID)

	rec = serve(r, http.MethodGet, "/api/v1/rules/cholera", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWarnings(t *testing.T) {
	src := &stubSource{
		latest: &models.Period{Month: 1, Year: 2024},
		records: []models.MonthlyRecord{
			dengueRecord("31", 3, 100, 2),
			dengueRecord("32", 3, 100, 0),
			dengueRecord("33", 1, 100, 5), // reference month itself is excluded
		},
	}
	r := newTestRouter(src, nil)

	rec := serve(r, http.MethodGet, "/api/v1/warnings/dbd", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WarningsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DiseaseDBD, resp.Disease)
	assert.Equal(t, &models.Period{Month: 1, Year: 2024}, resp.Reference)
	require.Len(t, resp.Warnings, 1)

	w := resp.Warnings[0]
	assert.Equal(t, "31", w.RegionKey)
	assert.Equal(t, 2.0, w.Value)
	assert.NotEmpty(t, w.Message)
	require.NotNil(t, w.Recommendation)
	assert.Equal(t, alerts.CategoryCaseFatality, w.Recommendation.Category)
	assert.Equal(t, 1, resp.Summary.Total)
}

func TestGetWarnings_ReferenceOverride(t *testing.T) {
	src := &stubSource{
		latest:  &models.Period{Month: 1, Year: 2024},
		records: []models.MonthlyRecord{dengueRecord("31", 3, 100, 2)},
	}
	r := newTestRouter(src, nil)

	// March itself is now the reference month and is excluded
	rec := serve(r, http.MethodGet, "/api/v1/warnings/dbd?month=3&year=2024", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WarningsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, &models.Period{Month: 3, Year: 2024}, resp.Reference)
	assert.Empty(t, resp.Warnings)
}

func TestGetWarnings_NoActualData(t *testing.T) {
	src := &stubSource{records: []models.MonthlyRecord{dengueRecord("31", 3, 100, 2)}}
	r := newTestRouter(src, nil)

	rec := serve(r, http.MethodGet, "/api/v1/warnings/dbd", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WarningsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Reference)
	assert.Empty(t, resp.Warnings)
}

func TestGetWarnings_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    *stubSource
		target string
		status int
	}{
		{"unknown disease", &stubSource{}, "/api/v1/warnings/cholera", http.StatusNotFound},
		{"month without year", &stubSource{}, "/api/v1/warnings/dbd?month=3", http.StatusBadRequest},
		{"invalid month", &stubSource{}, "/api/v1/warnings/dbd?month=13&year=2024", http.StatusBadRequest},
		{"non numeric year", &stubSource{}, "/api/v1/warnings/dbd?month=1&year=abc", http.StatusBadRequest},
		{"source down", &stubSource{err: errors.New("connection refused")}, "/api/v1/warnings/dbd", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestRouter(tt.src, nil), http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestGetRecommendation(t *testing.T) {
	r := newTestRouter(&stubSource{}, nil)

	rec := serve(r, http.MethodGet, "/api/v1/recommendations/malaria/indigenous_case", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got alerts.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.DiseaseMalaria, got.Disease)
	assert.NotEmpty(t, got.Actions)

	rec = serve(r, http.MethodGet, "/api/v1/recommendations/dbd/indigenous_case", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh(t *testing.T) {
	pool := &stubPool{}
	r := newTestRouter(&stubSource{}, pool)

	rec := serve(r, http.MethodPost, "/api/v1/refresh/lepto", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pool.jobs, 1)
	assert.Equal(t, worker.Job{Disease: models.DiseaseLeptospirosis, Trigger: detector.TriggerAPI, Fresh: true}, pool.jobs[0])

	pool.err = fmt.Errorf("submit: %w", worker.ErrQueueFull)
	rec = serve(r, http.MethodPost, "/api/v1/refresh/lepto", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefresh_Disabled(t *testing.T) {
	r := newTestRouter(&stubSource{}, nil)

	rec := serve(r, http.MethodPost, "/api/v1/refresh/malaria", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	r := newTestRouter(&stubSource{}, nil)

	rec := serve(r, http.MethodDelete, "/api/v1/rules", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(r, http.MethodPost, "/api/v1/warnings/dbd", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(r, http.MethodGet, "/api/v1/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func serveRequest(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

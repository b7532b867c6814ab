package processor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ewarn/internal/config"
	"ewarn/internal/handlers"
	"ewarn/internal/models"
)

// newFeedServer serves one DBD province with a fatal predicted month
func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/dbd/records", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"kd_prov": "31", "nama_prov": "DKI Jakarta", "bulan": 1, "tahun": 2024,
			 "status": "Aktual", "dbd_p": 120, "dbd_m": 0},
			{"kd_prov": "31", "nama_prov": "DKI Jakarta", "bulan": 2, "tahun": 2024,
			 "status": "Prediksi", "dbd_p": 150, "dbd_m": 3}
		]}`))
	})
	mux.HandleFunc("/dbd/latest-period", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"month": 1, "year": 2024}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.NodeID = "test-node"
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Feed.BaseURL = baseURL
	cfg.Feed.MaxRetries = 0
	cfg.Schedule.Enabled = false
	return cfg
}

func TestProcessorRun(t *testing.T) {
	p := New(testConfig("http://127.0.0.1:1"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestProcessorRunAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Server.Addr = ln.Addr().String()
	p := New(cfg)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the listener failed")
	}
}

func TestProcessorRoutes(t *testing.T) {
	feedSrv := newFeedServer(t)
	p := New(testConfig(feedSrv.URL))
	require.NoError(t, p.setup(context.Background()))

	p.workerPool.Start()
	defer p.workerPool.Stop()

	api := httptest.NewServer(p.router())
	defer api.Close()

	t.Run("warnings", func(t *testing.T) {
		resp, err := http.Get(api.URL + "/api/v1/warnings/dbd")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		var body handlers.WarningsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Warnings, 1)
		assert.Equal(t, "DKI Jakarta", body.Warnings[0].Region)
		assert.Equal(t, 2.0, body.Warnings[0].Value)
	})

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(api.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Status)
	})

	t.Run("stats", func(t *testing.T) {
		resp, err := http.Get(api.URL + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body StatsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Nil(t, body.Producer)
		assert.ElementsMatch(t, []models.Disease{models.DiseaseMalaria, models.DiseaseDBD, models.DiseaseLeptospirosis}, body.Diseases)
		assert.Equal(t, 64, body.Worker.Capacity)
	})

	t.Run("refresh", func(t *testing.T) {
		resp, err := http.Post(api.URL+"/api/v1/refresh/dbd", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("cors", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, api.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://dashboard.example")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(api.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestHandleRefresh(t *testing.T) {
	p := New(testConfig("http://127.0.0.1:1"))
	require.NoError(t, p.setup(context.Background()))

	// The pool is not started, so the job stays queued
	require.NoError(t, p.handleRefresh(context.Background(), models.RefreshNotice{Disease: models.DiseaseMalaria}))
	assert.Equal(t, 1, p.workerPool.QueueLen())

	// A second notice for the same disease is merged into the queued job
	require.NoError(t, p.handleRefresh(context.Background(), models.RefreshNotice{Disease: models.DiseaseMalaria}))
	assert.Equal(t, 1, p.workerPool.QueueLen())

	p.workerPool.Abort()
}

func TestSetupWithSchedule(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Schedule.Enabled = true
	cfg.Schedule.Spec = "0 */6 * * *"

	p := New(cfg)
	require.NoError(t, p.setup(context.Background()))
	require.NotNil(t, p.scheduler)

	status := p.scheduler.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "refresh_all", status[0].Name)
}

func TestNewEngine(t *testing.T) {
	cfg := config.Default()
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	set, ok := engine.RuleSet(models.DiseaseDBD)
	require.True(t, ok)
	assert.Equal(t, "dbd.cfr", set.Rules[0].ID)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rule_sets:
  - disease: dbd
    rules:
      - id: dbd.cfr.strict
        category: case_fatality
        kind: ratio
        metric: deaths
        denominator: cases
        operator: gt
        threshold: 0.25
        label: CFR (%)
        description: ambang CFR > 0.25%
`), 0o644))

	cfg.RulesFile = path
	engine, err = NewEngine(cfg)
	require.NoError(t, err)
	set, ok = engine.RuleSet(models.DiseaseDBD)
	require.True(t, ok)
	assert.Equal(t, "dbd.cfr.strict", set.Rules[0].ID)
	_, ok = engine.RuleSet(models.DiseaseMalaria)
	assert.True(t, ok)

	cfg.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewEngine(cfg)
	assert.Error(t, err)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"ewarn/internal/alerts"
	"ewarn/internal/detector"
	"ewarn/internal/logger"
	"ewarn/internal/models"
	"ewarn/internal/worker"
)

// Detector is the detection surface the API needs. *detector.Detector
// implements it.
type Detector interface {
	Diseases() []models.Disease
	RuleSet(disease models.Disease) (alerts.RuleSet, bool)
	Run(ctx context.Context, req detector.Request) (*models.WarningBatch, error)
	Evaluate(disease models.Disease, records []models.MonthlyRecord, latest *models.Period, trigger string) (*models.WarningBatch, error)
}

// Submitter queues background detection jobs. *worker.Pool implements it.
type Submitter interface {
	Submit(job worker.Job) error
}

// API serves the warning, rule and recommendation endpoints
type API struct {
	detector Detector

	// Pool for refresh requests; nil disables POST /refresh
	pool Submitter

	// Max body size for detect requests (default 10MB)
	maxBodySize int64
}

// Config holds configuration for the API handlers
type Config struct {
	Detector    Detector
	Pool        Submitter
	MaxBodySize int64
}

// NewAPI creates the API handlers
func NewAPI(cfg Config) *API {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 10 * 1024 * 1024 // 10MB default
	}

	return &API{
		detector:    cfg.Detector,
		pool:        cfg.Pool,
		maxBodySize: maxBodySize,
	}
}

// Register mounts the API routes under /api/v1
func (a *API) Register(r *mux.Router) {
	const v1 = "/api/v1"

	r.HandleFunc(v1+"/rules", a.listRules).Methods(http.MethodGet)
	r.HandleFunc(v1+"/rules/{disease}", a.getRules).Methods(http.MethodGet)
	r.HandleFunc(v1+"/warnings/{disease}", a.getWarnings).Methods(http.MethodGet)
	r.HandleFunc(v1+"/warnings/{disease}/detect", a.detect).Methods(http.MethodPost)
	r.HandleFunc(v1+"/recommendations/{disease}/{category}", a.getRecommendation).Methods(http.MethodGet)
	r.HandleFunc(v1+"/refresh/{disease}", a.refresh).Methods(http.MethodPost)
}

// WarningView is a warning with its rendered message and guidance
type WarningView struct {
	models.Warning
	Message        string                 `json:"message"`
	Recommendation *alerts.Recommendation `json:"recommendation,omitempty"`
}

// WarningsResponse is returned by the warning endpoints
type WarningsResponse struct {
	Disease   models.Disease `json:"disease"`
	Reference *models.Period `json:"reference_period"`
	Warnings  []WarningView  `json:"warnings"`
	Summary   models.Summary `json:"summary"`
}

// NewWarningsResponse renders a batch with messages and recommendations
func NewWarningsResponse(batch *models.WarningBatch) WarningsResponse {
	views := make([]WarningView, 0, len(batch.Warnings))
	for _, w := range batch.Warnings {
		view := WarningView{Warning: w, Message: w.Message()}
		if rec, ok := alerts.RecommendationFor(w); ok {
			view.Recommendation = &rec
		}
		views = append(views, view)
	}

	return WarningsResponse{
		Disease:   batch.Disease,
		Reference: batch.Reference,
		Warnings:  views,
		Summary:   batch.Summary,
	}
}

func (a *API) listRules(w http.ResponseWriter, r *http.Request) {
	diseases := a.detector.Diseases()
	sets := make([]alerts.RuleSet, 0, len(diseases))
	for _, d := range diseases {
		if set, ok := a.detector.RuleSet(d); ok {
			sets = append(sets, set)
		}
	}
	writeJSON(w, http.StatusOK, sets)
}

func (a *API) getRules(w http.ResponseWriter, r *http.Request) {
	disease, ok := a.disease(w, r)
	if !ok {
		return
	}
	set, ok := a.detector.RuleSet(disease)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no rules for disease %q", disease))
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (a *API) getWarnings(w http.ResponseWriter, r *http.Request) {
	disease, ok := a.disease(w, r)
	if !ok {
		return
	}

	reference, err := queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := a.detector.Run(r.Context(), detector.Request{
		Disease:   disease,
		Reference: reference,
		Trigger:   detector.TriggerAPI,
	})
	if err != nil {
		a.writeRunError(w, disease, err)
		return
	}

	writeJSON(w, http.StatusOK, NewWarningsResponse(batch))
}

func (a *API) getRecommendation(w http.ResponseWriter, r *http.Request) {
	disease, ok := a.disease(w, r)
	if !ok {
		return
	}
	category := mux.Vars(r)["category"]

	rec, ok := alerts.LookupRecommendation(disease, category)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no recommendation for %s/%s", disease, category))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RefreshResponse acknowledges a queued refresh
type RefreshResponse struct {
	Disease models.Disease `json:"disease"`
	Status  string         `json:"status"`
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	disease, ok := a.disease(w, r)
	if !ok {
		return
	}
	if _, ok := a.detector.RuleSet(disease); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no rules for disease %q", disease))
		return
	}
	if a.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "background detection is disabled")
		return
	}

	err := a.pool.Submit(worker.Job{Disease: disease, Trigger: detector.TriggerAPI, Fresh: true})
	if err != nil {
		a.writeRunError(w, disease, err)
		return
	}

	writeJSON(w, http.StatusAccepted, RefreshResponse{Disease: disease, Status: "queued"})
}

// disease resolves the {disease} path variable, writing 404 when unknown
func (a *API) disease(w http.ResponseWriter, r *http.Request) (models.Disease, bool) {
	raw := mux.Vars(r)["disease"]
	d, ok := models.ParseDisease(raw)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown disease %q", raw))
		return "", false
	}
	return d, true
}

// queryPeriod reads an optional month/year pair. Both or neither must be set.
func queryPeriod(r *http.Request) (*models.Period, error) {
	q := r.URL.Query()
	month, year := q.Get("month"), q.Get("year")
	if month == "" && year == "" {
		return nil, nil
	}
	if month == "" || year == "" {
		return nil, fmt.Errorf("%w: month and year must be given together", models.ErrInvalidPeriod)
	}

	m, err := strconv.Atoi(month)
	if err != nil {
		return nil, fmt.Errorf("%w: month %q", models.ErrInvalidPeriod, month)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil, fmt.Errorf("%w: year %q", models.ErrInvalidPeriod, year)
	}

	p := models.Period{Month: m, Year: y}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, detector.ErrUnknownDisease):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, detector.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeRunError(w http.ResponseWriter, disease models.Disease, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log := logger.WithDisease("api", string(disease))
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"ewarn/internal/detector"
	"ewarn/internal/metrics"
	"ewarn/internal/models"
)

// DetectRequest is the object form of a detect payload
type DetectRequest struct {
	LatestActualPeriod *models.Period         `json:"latest_actual_period"`
	Records            []models.MonthlyRecord `json:"records"`
}

// DetectResponse reports the warnings plus which records were rejected
type DetectResponse struct {
	WarningsResponse
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []RecordError `json:"errors,omitempty"`
}

// RecordError describes a validation error for a specific record
type RecordError struct {
	Index  int    `json:"index"`
	Region string `json:"region,omitempty"`
	Error  string `json:"error"`
}

var errDiseaseMismatch = errors.New("record disease does not match requested disease")

// detect runs the engine over records supplied in the request body
func (a *API) detect(w http.ResponseWriter, r *http.Request) {
	disease, ok := a.disease(w, r)
	if !ok {
		return
	}

	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req, err := ParseDetectBody(body)
	if err != nil {
		metrics.DetectValidationErrors.WithLabelValues("decode").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Query parameters override the body's reference period
	reference, err := queryPeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if reference == nil {
		reference = req.LatestActualPeriod
	}
	if reference != nil {
		if err := reference.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	records, response := ValidateRecords(disease, req.Records)
	if response.Rejected > 0 && response.Accepted == 0 {
		writeJSON(w, http.StatusBadRequest, response)
		return
	}

	batch, err := a.detector.Evaluate(disease, records, reference, detector.TriggerAPI)
	if err != nil {
		a.writeRunError(w, disease, err)
		return
	}

	response.WarningsResponse = NewWarningsResponse(batch)
	writeJSON(w, http.StatusOK, response)
}

// ParseDetectBody accepts either a DetectRequest object or a bare array of
// records
func ParseDetectBody(body []byte) (DetectRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return DetectRequest{}, fmt.Errorf("empty request body")
	}

	switch trimmed[0] {
	case '{':
		var req DetectRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return DetectRequest{}, fmt.Errorf("invalid JSON format: %w", err)
		}
		return req, nil
	case '[':
		var records []models.MonthlyRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return DetectRequest{}, fmt.Errorf("invalid JSON format: %w", err)
		}
		return DetectRequest{Records: records}, nil
	default:
		return DetectRequest{}, fmt.Errorf("invalid JSON format: expected detect object or array of records")
	}
}

// ValidateRecords normalizes each record and keeps the valid ones. Records
// naming another disease are rejected.
func ValidateRecords(disease models.Disease, inputs []models.MonthlyRecord) ([]models.MonthlyRecord, DetectResponse) {
	response := DetectResponse{Errors: make([]RecordError, 0)}
	records := make([]models.MonthlyRecord, 0, len(inputs))

	for i := range inputs {
		rec := inputs[i]
		rec.Normalize()

		err := rec.Validate()
		if err == nil && rec.Disease != "" && rec.Disease != disease {
			err = fmt.Errorf("%w: %s", errDiseaseMismatch, rec.Disease)
		}
		if err != nil {
			metrics.DetectValidationErrors.WithLabelValues(validationErrorType(err)).Inc()
			response.Errors = append(response.Errors, RecordError{
				Index:  i,
				Region: rec.Region.Key(),
				Error:  err.Error(),
			})
			response.Rejected++
			continue
		}

		rec.Disease = disease
		records = append(records, rec)
		response.Accepted++
	}

	return records, response
}

func validationErrorType(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptyProvince):
		return "empty_province"
	case errors.Is(err, models.ErrInvalidPeriod):
		return "invalid_period"
	case errors.Is(err, models.ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, models.ErrInvalidDisease), errors.Is(err, errDiseaseMismatch):
		return "invalid_disease"
	default:
		return "other"
	}
}

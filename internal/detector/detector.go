package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ewarn/internal/alerts"
	"ewarn/internal/feed"
	"ewarn/internal/logger"
	"ewarn/internal/metrics"
	"ewarn/internal/models"
)

// Detector errors
var (
	ErrUnknownDisease    = errors.New("unknown disease")
	ErrSourceUnavailable = errors.New("record source unavailable")
)

// Triggers recorded on warning batches
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerRefresh  = "refresh"
	TriggerCLI      = "cli"
)

// Request describes one detection run against the record source
type Request struct {
	Disease models.Disease
	// Reference overrides the latest actual period reported by the source
	Reference *models.Period
	// Fresh drops cached records before fetching
	Fresh   bool
	Trigger string
}

// Detector runs the alert engine over records from a Source and records the
// diagnostics of each run
type Detector struct {
	engine alerts.AlertEngine
	source feed.Source
}

// New creates a detector. source may be nil when only Evaluate is used.
func New(engine alerts.AlertEngine, source feed.Source) *Detector {
	return &Detector{engine: engine, source: source}
}

// Diseases lists the diseases the engine has rules for
func (d *Detector) Diseases() []models.Disease {
	return d.engine.Diseases()
}

// RuleSet returns the rules configured for a disease
func (d *Detector) RuleSet(disease models.Disease) (alerts.RuleSet, bool) {
	return d.engine.RuleSet(disease)
}

// Run fetches the disease's records and detects warnings
func (d *Detector) Run(ctx context.Context, req Request) (*models.WarningBatch, error) {
	if _, ok := d.engine.RuleSet(req.Disease); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDisease, req.Disease)
	}
	if d.source == nil {
		return nil, ErrSourceUnavailable
	}

	log := logger.WithDisease("detector", string(req.Disease))
	start := time.Now()
	defer func() {
		metrics.DetectionDuration.WithLabelValues(string(req.Disease)).Observe(time.Since(start).Seconds())
	}()

	if req.Fresh {
		if inv, ok := d.source.(feed.Invalidator); ok {
			if err := inv.Invalidate(ctx, req.Disease); err != nil {
				log.Warn().Err(err).Msg("failed to invalidate cached records")
			}
		}
	}

	latest := req.Reference
	if latest == nil {
		var err error
		latest, err = d.source.LatestActual(ctx, req.Disease)
		if err != nil {
			d.recordFailure(req)
			return nil, fmt.Errorf("%w: latest period: %w", ErrSourceUnavailable, err)
		}
	}

	records, err := d.source.Records(ctx, req.Disease)
	if err != nil {
		d.recordFailure(req)
		return nil, fmt.Errorf("%w: records: %w", ErrSourceUnavailable, err)
	}

	return d.Evaluate(req.Disease, records, latest, req.Trigger)
}

// Evaluate detects warnings in caller-supplied records
func (d *Detector) Evaluate(disease models.Disease, records []models.MonthlyRecord, latest *models.Period, trigger string) (*models.WarningBatch, error) {
	if _, ok := d.engine.RuleSet(disease); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDisease, disease)
	}

	log := logger.WithDisease("detector", string(disease))
	report := d.engine.Evaluate(records, latest, disease)

	if latest == nil {
		log.Info().Str("trigger", trigger).Msg("no actual data yet, nothing to evaluate")
	}

	for _, label := range report.UnrecognizedLabels {
		metrics.UnrecognizedEndemicLabels.WithLabelValues(string(disease)).Inc()
		log.Warn().
			Str("endemic_status", label).
			Str("fallback_tier", string(alerts.FallbackTier)).
			Msg("unrecognized endemic status label")
	}

	metrics.DetectionCandidates.WithLabelValues(string(disease)).Observe(float64(report.Candidates))
	for _, w := range report.Warnings {
		metrics.WarningsGenerated.WithLabelValues(string(disease), w.Category).Inc()
	}
	metrics.DetectionRunsTotal.WithLabelValues(string(disease), trigger, "success").Inc()

	log.Info().
		Str("trigger", trigger).
		Int("records", len(records)).
		Int("candidates", report.Candidates).
		Int("warnings", len(report.Warnings)).
		Msg("detection complete")

	return &models.WarningBatch{
		Disease:   disease,
		Reference: report.Reference,
		Warnings:  report.Warnings,
		Summary:   models.Summarize(report.Warnings),
	}, nil
}

func (d *Detector) recordFailure(req Request) {
	metrics.DetectionRunsTotal.WithLabelValues(string(req.Disease), req.Trigger, "failed").Inc()
}

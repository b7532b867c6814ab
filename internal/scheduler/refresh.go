package scheduler

import (
	"context"
	"errors"

	"ewarn/internal/detector"
	"ewarn/internal/metrics"
	"ewarn/internal/models"
	"ewarn/internal/worker"
)

// Submitter accepts detection jobs. *worker.Pool implements it.
type Submitter interface {
	Submit(job worker.Job) error
}

// RefreshJob queues a fresh detection for every disease
type RefreshJob struct {
	spec     string
	diseases []models.Disease
	pool     Submitter
}

// NewRefreshJob creates the periodic refresh job
func NewRefreshJob(spec string, diseases []models.Disease, pool Submitter) *RefreshJob {
	return &RefreshJob{spec: spec, diseases: diseases, pool: pool}
}

func (j *RefreshJob) Name() string     { return "refresh_all" }
func (j *RefreshJob) Schedule() string { return j.spec }

// Run submits one job per disease and reports the ones that were rejected
func (j *RefreshJob) Run(ctx context.Context) error {
	metrics.ScheduledRunsTotal.Inc()

	var errs []error
	for _, d := range j.diseases {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := j.pool.Submit(worker.Job{Disease: d, Trigger: detector.TriggerSchedule, Fresh: true})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ewarn/internal/logger"
)

// Job is a unit of scheduled work
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// JobStatus is the last known state of a scheduled job
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Next      time.Time `json:"next,omitempty"`
}

type entry struct {
	job    Job
	id     cron.EntryID
	status JobStatus
}

// Scheduler runs jobs on standard five-field cron expressions. Overlapping
// runs of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.RWMutex
	entries map[string]*entry
	timeout time.Duration
}

// New creates a scheduler. Each run gets a context bounded by timeout.
func New(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cl := cronLogger{log: logger.WithComponent("scheduler")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		entries: make(map[string]*entry),
		timeout: timeout,
	}
}

// AddJob registers a job
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	e := &entry{job: job, status: JobStatus{Name: name, Schedule: job.Schedule()}}
	id, err := s.cron.AddFunc(job.Schedule(), func() { s.run(e) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	e.id = id
	s.entries[name] = e

	log := logger.WithComponent("scheduler")
	log.Info().
		Str("job", name).
		Str("schedule", job.Schedule()).
		Msg("job added to scheduler")
	return nil
}

// Start starts the scheduler in its own goroutine
func (s *Scheduler) Start() {
	log := logger.WithComponent("scheduler")
	log.Info().Int("jobs", len(s.entries)).Msg("starting scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log := logger.WithComponent("scheduler")
	log.Info().Msg("scheduler stopped")
}

// RunNow runs a job immediately on the calling goroutine
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	return s.run(e)
}

func (s *Scheduler) run(e *entry) error {
	log := logger.WithComponent("scheduler").With().Str("job", e.job.Name()).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := e.job.Run(ctx)

	s.mu.Lock()
	e.status.Runs++
	e.status.LastRun = start
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return err
	}
	log.Debug().Dur("duration", time.Since(start)).Msg("job completed")
	return nil
}

// Status returns the state of every job sorted by name
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.entries))
	for _, e := range s.entries {
		st := e.status
		st.Next = s.cron.Entry(e.id).Next
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"ewarn/internal/detector"
	"ewarn/internal/logger"
	"ewarn/internal/metrics"
	"ewarn/internal/models"
)

// Pool errors
var (
	ErrQueueFull   = errors.New("detection queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Publisher defines the interface for publishing envelopes
type Publisher interface {
	Publish(ctx context.Context, envelope *models.Envelope) error
	PublishBatch(ctx context.Context, envelopes []*models.Envelope) error
}

// Runner runs one detection. *detector.Detector implements it.
type Runner interface {
	Run(ctx context.Context, req detector.Request) (*models.WarningBatch, error)
}

// Job asks for one disease to be re-evaluated
type Job struct {
	Disease models.Disease
	Trigger string
	Fresh   bool
}

// Pool runs detection jobs on a fixed set of workers and publishes the
// resulting warning batches in groups
type Pool struct {
	runner       Runner
	publisher    Publisher
	nodeID       string
	jobs         chan Job
	workers      int
	batchSize    int
	batchTimeout time.Duration
	jobTimeout   time.Duration

	// diseases with a job waiting in the queue
	pendingMu sync.Mutex
	pending   map[models.Disease]bool

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool

	processed atomic.Uint64
	failed    atomic.Uint64
	coalesced atomic.Uint64
	published atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Runner       Runner
	Publisher    Publisher
	NodeID       string
	Workers      int
	QueueSize    int
	BatchSize    int
	BatchTimeout time.Duration
	JobTimeout   time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	metrics.WorkerQueueCapacity.Set(float64(cfg.QueueSize))

	return &Pool{
		runner:       cfg.Runner,
		publisher:    cfg.Publisher,
		nodeID:       cfg.NodeID,
		jobs:         make(chan Job, cfg.QueueSize),
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		jobTimeout:   cfg.JobTimeout,
		pending:      make(map[models.Disease]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Submit queues a job without blocking. A job for a disease that is already
// queued is merged into the queued one.
func (p *Pool) Submit(job Job) error {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	if p.stopped.Load() {
		return ErrPoolStopped
	}

	if p.pending[job.Disease] {
		p.coalesced.Add(1)
		return nil
	}

	select {
	case p.jobs <- job:
		p.pending[job.Disease] = true
		metrics.WorkerQueueSize.Set(float64(len(p.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Start begins processing jobs
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("queue_size", cap(p.jobs)).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop drains queued jobs, flushes pending batches and waits for workers
func (p *Pool) Stop() {
	p.pendingMu.Lock()
	if p.stopped.Swap(true) {
		p.pendingMu.Unlock()
		return
	}
	close(p.jobs)
	p.pendingMu.Unlock()

	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")

	p.wg.Wait()
	p.cancel()
	log.Info().Msg("worker pool stopped")
}

// Abort cancels in-flight jobs and stops without draining
func (p *Pool) Abort() {
	p.cancel()
	p.Stop()
}

// QueueLen is the number of queued jobs
func (p *Pool) QueueLen() int { return len(p.jobs) }

// QueueCap is the queue capacity
func (p *Pool) QueueCap() int { return cap(p.jobs) }

// worker processes jobs from the queue
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.Envelope, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				p.publishBatch(batch)
				return
			}

			if envelope := p.run(job); envelope != nil {
				batch = append(batch, envelope)
			}

			if len(batch) >= p.batchSize {
				p.publishBatch(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.publishBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

// run executes one job and wraps its result, recovering from panics
func (p *Pool) run(job Job) (envelope *models.Envelope) {
	log := logger.WithDisease("worker", string(job.Disease))

	p.pendingMu.Lock()
	delete(p.pending, job.Disease)
	metrics.WorkerQueueSize.Set(float64(len(p.jobs)))
	p.pendingMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
			p.failed.Add(1)
			metrics.WorkerFailedTotal.Inc()
			envelope = nil
		}
	}()

	ctx, cancel := context.WithTimeout(p.ctx, p.jobTimeout)
	defer cancel()

	batch, err := p.runner.Run(ctx, detector.Request{
		Disease: job.Disease,
		Fresh:   job.Fresh,
		Trigger: job.Trigger,
	})
	if err != nil {
		log.Error().Err(err).Str("trigger", job.Trigger).Msg("detection job failed")
		p.failed.Add(1)
		metrics.WorkerFailedTotal.Inc()
		return nil
	}

	p.processed.Add(1)
	metrics.WorkerProcessedTotal.Inc()
	return models.NewEnvelope(batch, p.nodeID).WithTrigger(job.Trigger)
}

// publishBatch publishes a batch of envelopes
func (p *Pool) publishBatch(batch []*models.Envelope) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("worker")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)
	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("failed to publish batch")

		p.publishIndividually(batch)
		return
	}

	log.Info().
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("batch published successfully")
	p.published.Add(uint64(len(batch)))
}

// publishIndividually retries each envelope on its own after a batch failure
func (p *Pool) publishIndividually(batch []*models.Envelope) {
	log := logger.WithComponent("worker")
	log.Warn().Int("count", len(batch)).Msg("attempting individual publish for failed batch")

	for _, envelope := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.publisher.Publish(ctx, envelope)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("disease", string(envelope.Batch.Disease)).
				Int("warnings", len(envelope.Batch.Warnings)).
				Msg("failed to publish envelope individually")
			continue
		}
		p.published.Add(1)
	}
}

// Stats holds worker pool counters
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Coalesced uint64 `json:"coalesced"`
	Published uint64 `json:"published"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Coalesced: p.coalesced.Load(),
		Published: p.published.Load(),
		Queued:    len(p.jobs),
		Capacity:  cap(p.jobs),
	}
}

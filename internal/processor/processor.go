package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ewarn/internal/alerts"
	"ewarn/internal/config"
	"ewarn/internal/detector"
	"ewarn/internal/handlers"
	"ewarn/internal/kafka"
	"ewarn/internal/logger"
	"ewarn/internal/metrics"
	"ewarn/internal/middleware"
	"ewarn/internal/models"
	"ewarn/internal/scheduler"
	"ewarn/internal/worker"
)

// pinger is implemented by backends that can report their health
type pinger interface {
	Ping(ctx context.Context) error
}

// Processor is the high-level coordinator. It owns every long-running
// component between the record source and the warning publisher.
type Processor struct {
	cfg *config.Config

	engine     *alerts.Engine
	backends   *Backends
	detector   *detector.Detector
	producer   *kafka.Producer
	publisher  worker.Publisher
	workerPool *worker.Pool
	consumer   *kafka.RefreshConsumer
	scheduler  *scheduler.Scheduler
	httpServer *http.Server

	wg sync.WaitGroup
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	return &Processor{cfg: cfg}
}

// Run starts background goroutines and blocks until context cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Str("node", p.nodeID()).Msg("processor starting")

	if err := p.setup(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize processor")
		p.closeBackends()
		return err
	}

	p.workerPool.Start()

	// Start HTTP server in background
	serverErr := make(chan error, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.httpServer.Addr).Msg("starting HTTP server")
		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
			serverErr <- err
		}
	}()

	// runCtx also ends when the HTTP server fails
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	if p.consumer != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.consumer.Start(runCtx); err != nil {
				log.Error().Err(err).Msg("refresh consumer stopped")
			}
		}()
	}

	if p.scheduler != nil {
		p.scheduler.Start()
	}

	// Stats reporting goroutine
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(runCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-serverErr:
	}
	stop()

	// Graceful shutdown
	if err := p.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// NewEngine builds the alert engine from the built-in rule sets, merged with
// the rules file when one is configured.
func NewEngine(cfg *config.Config) (*alerts.Engine, error) {
	sets := alerts.DefaultRuleSets()
	if cfg.RulesFile != "" {
		overrides, err := alerts.LoadRuleSets(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		sets = alerts.MergeRuleSets(sets, overrides)
		log := logger.WithComponent("processor")
		log.Info().
			Str("rules_file", cfg.RulesFile).
			Int("overrides", len(overrides)).
			Msg("rule overrides loaded")
	}
	return alerts.NewEngine(sets...)
}

// setup builds every component without starting any of them
func (p *Processor) setup(ctx context.Context) error {
	engine, err := NewEngine(p.cfg)
	if err != nil {
		return fmt.Errorf("failed to build alert engine: %w", err)
	}
	p.engine = engine

	backends, err := OpenBackends(ctx, p.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize record source: %w", err)
	}
	p.backends = backends
	p.detector = detector.New(p.engine, backends.Source)

	if err := p.initPublisher(); err != nil {
		return fmt.Errorf("failed to initialize producer: %w", err)
	}
	p.initWorkerPool()

	if p.cfg.Kafka.Enabled {
		p.consumer = kafka.NewRefreshConsumer(p.cfg.Kafka, p.handleRefresh)
	}

	if err := p.initScheduler(); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	p.initHTTPServer()
	return nil
}

// initPublisher initializes the Kafka producer, or the log publisher when
// Kafka is disabled
func (p *Processor) initPublisher() error {
	log := logger.WithComponent("processor")
	if !p.cfg.Kafka.Enabled {
		p.publisher = worker.LogPublisher{}
		log.Info().Msg("kafka disabled, warning batches go to the log")
		return nil
	}

	producer, err := kafka.NewProducer(
		p.cfg.Kafka.Brokers,
		p.cfg.Kafka.WarningsTopic,
		p.cfg.Kafka.Producer,
	)
	if err != nil {
		return err
	}

	p.producer = producer
	p.publisher = producer
	log.Info().
		Strs("brokers", p.cfg.Kafka.Brokers).
		Str("topic", p.cfg.Kafka.WarningsTopic).
		Msg("kafka producer initialized")
	return nil
}

// initWorkerPool initializes the worker pool
func (p *Processor) initWorkerPool() {
	log := logger.WithComponent("processor")

	cfg := worker.Config{
		Runner:       p.detector,
		Publisher:    p.publisher,
		NodeID:       p.nodeID(),
		Workers:      p.cfg.Worker.NumWorkers,
		QueueSize:    p.cfg.Worker.QueueSize,
		BatchSize:    p.cfg.Worker.BatchSize,
		BatchTimeout: p.cfg.Worker.FlushInterval,
		JobTimeout:   p.cfg.Worker.JobTimeout,
	}

	p.workerPool = worker.NewPool(cfg)
	log.Info().Int("workers", p.cfg.Worker.NumWorkers).Msg("worker pool initialized")
}

func (p *Processor) initScheduler() error {
	if !p.cfg.Schedule.Enabled {
		return nil
	}
	s := scheduler.New(p.cfg.Worker.JobTimeout)
	job := scheduler.NewRefreshJob(p.cfg.Schedule.Spec, p.engine.Diseases(), p.workerPool)
	if err := s.AddJob(job); err != nil {
		return err
	}
	p.scheduler = s
	return nil
}

// handleRefresh queues a fresh run for a refresh notice
func (p *Processor) handleRefresh(ctx context.Context, notice models.RefreshNotice) error {
	return p.workerPool.Submit(worker.Job{
		Disease: notice.Disease,
		Trigger: detector.TriggerRefresh,
		Fresh:   true,
	})
}

// router builds the HTTP routes
func (p *Processor) router() http.Handler {
	r := mux.NewRouter()
	// Logging wraps Recovery so recovered panics keep their request ID
	r.Use(middleware.Logging, middleware.Recovery)

	handlers.NewAPI(handlers.Config{
		Detector:    p.detector,
		Pool:        p.workerPool,
		MaxBodySize: p.cfg.Server.MaxBodySize,
	}).Register(r)

	// Health check
	r.HandleFunc("/health", p.healthHandler).Methods(http.MethodGet)

	// Stats endpoint
	r.HandleFunc("/stats", p.statsHandler).Methods(http.MethodGet)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	return middleware.Chain(r, middleware.CORS(p.cfg.Server.CORSOrigins))
}

// initHTTPServer initializes the HTTP server with handlers
func (p *Processor) initHTTPServer() {
	p.httpServer = &http.Server{
		Addr:         p.cfg.Server.Addr,
		Handler:      p.router(),
		ReadTimeout:  p.cfg.Server.ReadTimeout,
		WriteTimeout: p.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown performs graceful shutdown
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	timeout := p.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// 1. Stop accepting new HTTP requests and scheduled runs
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if p.scheduler != nil {
		p.scheduler.Stop()
	}

	// 2. Stop reading refresh notices
	if p.consumer != nil {
		if err := p.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("refresh consumer close error")
		}
	}

	// 3. Wait for workers to drain the queue (with timeout)
	done := make(chan struct{})
	go func() {
		p.workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers stopped gracefully")
	case <-shutdownCtx.Done():
		log.Warn().Msg("worker shutdown timeout - aborting in-flight runs")
		p.workerPool.Abort()
	}

	// 4. Close producer and backends
	p.closeBackends()

	// 5. Wait for all goroutines
	p.wg.Wait()

	log.Info().Msg("processor stopped gracefully")
	return nil
}

func (p *Processor) closeBackends() {
	log := logger.WithComponent("processor")
	if p.producer != nil {
		log.Info().Msg("closing kafka producer")
		if err := p.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}
	p.backends.Close()
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			workerStats := p.workerPool.Stats()

			// Update metrics
			metrics.WorkerQueueSize.Set(float64(workerStats.Queued))

			event := log.Info().
				Uint64("worker_processed", workerStats.Processed).
				Uint64("worker_failed", workerStats.Failed).
				Uint64("worker_published", workerStats.Published).
				Int("queue_size", workerStats.Queued)
			if p.producer != nil {
				producerStats := p.producer.Stats()
				event = event.
					Uint64("producer_sent", producerStats.MessagesSent).
					Uint64("producer_failed", producerStats.MessagesFailed).
					Uint64("producer_bytes", producerStats.BytesWritten)
			}
			event.Msg("stats")
		}
	}
}

func (p *Processor) nodeID() string {
	if p.cfg.NodeID != "" {
		return p.cfg.NodeID
	}
	host, _ := os.Hostname()
	if host == "" {
		return "unknown"
	}
	return host
}

// HealthResponse reports the state of each backend
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	backends := map[string]pinger{}
	if p.backends.Postgres != nil {
		backends["postgres"] = p.backends.Postgres
	}
	if p.backends.Cache != nil {
		backends["redis"] = p.backends.Cache
	}

	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: make(map[string]string, len(backends)),
	}
	status := http.StatusOK
	for name, b := range backends {
		if err := b.Ping(ctx); err != nil {
			resp.Components[name] = fmt.Sprintf("unhealthy: %v", err)
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// StatsResponse is returned by /stats
type StatsResponse struct {
	Worker    worker.Stats          `json:"worker"`
	Producer  *kafka.ProducerStats  `json:"producer,omitempty"`
	Scheduler []scheduler.JobStatus `json:"scheduler,omitempty"`
	Diseases  []models.Disease      `json:"diseases"`
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Worker:   p.workerPool.Stats(),
		Diseases: p.engine.Diseases(),
	}
	if p.producer != nil {
		stats := p.producer.Stats()
		resp.Producer = &stats
	}
	if p.scheduler != nil {
		resp.Scheduler = p.scheduler.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

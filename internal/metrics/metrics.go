package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ewarn_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ewarn_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Detection metrics
	DetectionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_detection_runs_total",
			Help: "Total number of detection runs",
		},
		[]string{"disease", "trigger", "status"}, // status: success, failed
	)

	DetectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ewarn_detection_duration_seconds",
			Help:    "Time taken by a detection run including record fetch",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"disease"},
	)

	DetectionCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ewarn_detection_window_records",
			Help:    "Number of predicted records inside the warning window per run",
			Buckets: []float64{0, 10, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"disease"},
	)

	WarningsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_warnings_generated_total",
			Help: "Total number of warnings produced",
		},
		[]string{"disease", "category"},
	)

	UnrecognizedEndemicLabels = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_unrecognized_endemic_labels_total",
			Help: "Endemic status labels that matched no tier keyword",
		},
		[]string{"disease"},
	)

	DetectValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_detect_validation_errors_total",
			Help: "Records rejected by the detect endpoint",
		},
		[]string{"error_type"},
	)

	// Feed metrics
	FeedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_feed_requests_total",
			Help: "Total number of requests to the surveillance feed",
		},
		[]string{"endpoint", "status"},
	)

	FeedRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ewarn_feed_request_duration_seconds",
			Help:    "Surveillance feed request latency",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	FeedRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ewarn_feed_retries_total",
			Help: "Total number of surveillance feed retries",
		},
	)

	FeedRowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_feed_rows_dropped_total",
			Help: "Feed rows that could not be decoded into records",
		},
		[]string{"disease"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_cache_lookups_total",
			Help: "Record cache lookups",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ewarn_worker_queue_size",
			Help: "Current size of the detection job queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ewarn_worker_queue_capacity",
			Help: "Capacity of the detection job queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ewarn_worker_processed_total",
			Help: "Total number of detection jobs processed by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ewarn_worker_failed_total",
			Help: "Total number of detection jobs that failed",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ewarn_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch of warning envelopes",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ewarn_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ewarn_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ewarn_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	KafkaConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_kafka_consumed_total",
			Help: "Refresh notices read from Kafka",
		},
		[]string{"status"}, // status: accepted, invalid, dropped
	)

	// Scheduler
	ScheduledRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ewarn_scheduled_runs_total",
			Help: "Total number of scheduled refresh ticks",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewarn_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

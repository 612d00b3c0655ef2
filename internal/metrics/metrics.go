package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline throughput metrics
	TransactionsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudhawk_transactions_processed_total",
			Help: "Total number of transactions processed by the detection service",
		},
	)

	AnomaliesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudhawk_anomalies_detected_total",
			Help: "Total number of anomalies detected by the detection service",
		},
	)

	ProcessingErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudhawk_transaction_processing_errors_total",
			Help: "Total number of errors encountered while processing transactions",
		},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fraudhawk_transaction_processing_duration_seconds",
			Help:    "Duration of end-to-end transaction processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AnomalyScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fraudhawk_anomaly_score",
			Help:    "Distribution of normalized anomaly scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// Scoring metrics
	ModelDegradations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudhawk_model_degradations_total",
			Help: "Total number of events scored rule-only because the model was unavailable",
		},
	)

	// Persistence metrics
	PersistenceRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudhawk_persistence_retries_total",
			Help: "Total number of retried persistence attempts",
		},
	)

	DeadLetterEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudhawk_dead_letter_events_total",
			Help: "Total number of events routed to the dead-letter stream",
		},
	)

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudhawk_cache_invalidations_total",
			Help: "Total number of cache invalidation signals emitted after writes",
		},
	)

	CacheInvalidationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudhawk_cache_invalidation_errors_total",
			Help: "Total number of failed cache invalidation attempts",
		},
	)

	// Notification metrics
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudhawk_notifications_total",
			Help: "Total number of notification deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)
)

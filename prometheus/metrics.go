package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"inventory-service/pkg/config"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   prometheus.CounterVec
	HttpRequestDuration prometheus.HistogramVec

	// Authentication metrics
	AuthErrorsCounter prometheus.Counter

	// Database operation metrics
	DbOperationDuration prometheus.HistogramVec

	// Sync metrics
	SyncBatchesCounter     prometheus.Counter
	SyncOperationsCounter  prometheus.CounterVec
	SyncRejectionsCounter  prometheus.CounterVec
	SyncRateLimitedCounter prometheus.Counter

	// Alert metrics
	AlertTransitionsCounter prometheus.CounterVec

	// Movement metrics
	MovementsCounter prometheus.CounterVec

	// Webhook delivery metrics
	WebhookDeliveriesCounter prometheus.CounterVec
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(cfg *config.Config) {
	// Use metric prefix from configuration
	prefix := cfg.Metrics.Prefix

	// HTTP request metrics
	HttpRequestsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration
	HttpRequestDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Authentication metrics
	AuthErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
	)

	// Database operation metrics
	DbOperationDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	// Sync metrics
	SyncBatchesCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_sync_batches_total",
			Help: "Total number of accepted sync batches",
		},
	)

	SyncOperationsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_sync_operations_total",
			Help: "Total number of sync operations by result status",
		},
		[]string{"status"},
	)

	SyncRejectionsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_sync_rejections_total",
			Help: "Total number of batch-level sync rejections by code",
		},
		[]string{"code"},
	)

	SyncRateLimitedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_sync_rate_limited_total",
			Help: "Total number of rate-limited sync requests",
		},
	)

	// Alert metrics
	AlertTransitionsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alert_transitions_total",
			Help: "Total number of alert lifecycle transitions",
		},
		[]string{"transition"},
	)

	// Movement metrics
	MovementsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_stock_movements_total",
			Help: "Total number of stock movements by type",
		},
		[]string{"type"},
	)

	// Webhook delivery metrics
	WebhookDeliveriesCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DbOperationDuration.WithLabelValues(operationType).Observe(duration)
	}
}

// RecordSyncOperation increments the counter for one per-operation sync result
func RecordSyncOperation(status string) {
	SyncOperationsCounter.WithLabelValues(status).Inc()
}

// RecordSyncRejection increments the counter for a batch-level rejection
func RecordSyncRejection(code string) {
	SyncRejectionsCounter.WithLabelValues(code).Inc()
}

// RecordMovement increments the counter for stock movements
func RecordMovement(movementType string) {
	MovementsCounter.WithLabelValues(movementType).Inc()
}

// RecordAlertTransition increments the counter for alert transitions
func RecordAlertTransition(transition string) {
	AlertTransitionsCounter.WithLabelValues(transition).Inc()
}

// RecordWebhookDelivery increments the counter for one webhook delivery
// attempt. No-op before InitMetrics runs, so the delivery worker can be
// exercised in isolation.
func RecordWebhookDelivery(outcome string) {
	if WebhookDeliveriesCounter.MetricVec == nil {
		return
	}
	WebhookDeliveriesCounter.WithLabelValues(outcome).Inc()
}

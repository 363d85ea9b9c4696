// Package metrics provides Prometheus metrics for fsbridge operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsbridge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsbridge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Adapter operation metrics
	AdapterOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsbridge_adapter_ops_total",
			Help: "Total number of adapter operations",
		},
		[]string{"operation", "status"}, // status: "success", "invalid_path", "error"
	)

	AdapterOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsbridge_adapter_op_duration_seconds",
			Help:    "Adapter operation duration in seconds, including the delegate call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Backend operation metrics
	BackendOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsbridge_backend_ops_total",
			Help: "Total number of backend operations",
		},
		[]string{"backend_type", "operation"},
	)

	// Attribute store metrics
	AttributeStoreQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsbridge_attribute_store_queries_total",
			Help: "Total number of attribute store queries",
		},
		[]string{"store", "operation"},
	)

	AttributeStoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsbridge_attribute_store_query_duration_seconds",
			Help:    "Attribute store query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	// Remote log shipping metrics
	RemoteLogEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsbridge_remote_log_entries_total",
			Help: "Total number of log entries handed to the remote log shipper",
		},
		[]string{"status"}, // "shipped", "dropped", "failed"
	)

	RemoteLogDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fsbridge_remote_log_delivery_duration_seconds",
			Help:    "Remote log delivery duration in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	RemoteLogQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fsbridge_remote_log_queue_depth",
			Help: "Number of log entries waiting for remote delivery",
		},
	)

	// Lock manager metrics
	LockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsbridge_lock_operations_total",
			Help: "Total number of lock operations",
		},
		[]string{"operation", "status"}, // operation: "acquire", "release"; status: "success", "failure"
	)

	// Active locks gauge
	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fsbridge_active_locks",
			Help: "Number of currently active locks",
		},
	)
)

// ObserveAttributeStore records one attribute store query that started at start.
func ObserveAttributeStore(store, operation string, start time.Time) {
	AttributeStoreQueriesTotal.WithLabelValues(store, operation).Inc()
	AttributeStoreQueryDuration.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
}

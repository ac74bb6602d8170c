package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: operation (upsert, delete, search, get, create_collection,
	// delete_collection), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftor",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"operation", "result"},
	)

	// OperationDuration tracks store operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driftor",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// DocumentsUpserted counts documents written, by document type.
	DocumentsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftor",
			Subsystem: "vectorstore",
			Name:      "documents_upserted_total",
			Help:      "Total number of documents upserted",
		},
		[]string{"document_type"},
	)

	// SearchResultsReturned tracks result counts per similarity search.
	SearchResultsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "driftor",
			Subsystem: "vectorstore",
			Name:      "search_results_returned",
			Help:      "Number of results returned per similarity search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	// StoreHealth indicates current store health (1=healthy, 0=degraded).
	StoreHealth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "driftor",
			Subsystem: "vectorstore",
			Name:      "health_status",
			Help:      "Current vector store health (1=healthy, 0=degraded)",
		},
	)

	// CollectionsGauge tracks the number of collections visible to the
	// store at the last health check.
	CollectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "driftor",
			Subsystem: "vectorstore",
			Name:      "collections_total",
			Help:      "Number of collections at last health check",
		},
	)
)

// observeOperation records a completed store operation.
func observeOperation(operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// UpdateHealthMetrics publishes a health check result to Prometheus.
func UpdateHealthMetrics(status HealthStatus) {
	if status.Healthy {
		StoreHealth.Set(1)
	} else {
		StoreHealth.Set(0)
	}
	CollectionsGauge.Set(float64(status.Collections))
}

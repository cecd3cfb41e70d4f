package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Deletion subsystem metrics
var (
	// OperationsTotal counts finished operations by outcome
	OperationsTotal *prometheus.CounterVec

	// OperationDuration tracks how long a whole operation takes
	OperationDuration prometheus.Histogram

	// ActiveOperations is the number of operations currently running
	ActiveOperations prometheus.Gauge

	// EventsTotal counts emitted events by kind
	EventsTotal *prometheus.CounterVec

	// BytesRemovedTotal sums the scanned size of targets that were fully removed
	BytesRemovedTotal prometheus.Counter

	// TargetBytes tracks the scanned size of each target
	TargetBytes prometheus.Histogram

	// SweepRetriesTotal counts items the fallback sweep had to retry
	SweepRetriesTotal prometheus.Counter

	// SweepFailuresTotal counts items the sweep could not remove after retrying
	SweepFailuresTotal prometheus.Counter

	// LastOperationTimestamp records Unix timestamp of the last finished operation
	LastOperationTimestamp prometheus.Gauge

	// ValidationRejectionsTotal counts requests refused before any deletion
	ValidationRejectionsTotal *prometheus.CounterVec
)

// initDeletionMetrics initializes all deletion subsystem metrics
func initDeletionMetrics() {
	OperationsTotal = NewCounterVec(
		"folderdeleter_operations_total",
		"Total deletion operations by outcome.",
		[]string{"outcome"},
	)

	OperationDuration = NewDurationHistogram(
		"folderdeleter_operation_duration_seconds",
		"Duration of deletion operations in seconds.",
	)

	ActiveOperations = NewGauge(
		"folderdeleter_operations_active",
		"Number of deletion operations currently running.",
	)

	EventsTotal = NewCounterVec(
		"folderdeleter_events_total",
		"Total progress events emitted by kind.",
		[]string{"kind"},
	)

	BytesRemovedTotal = NewCounter(
		"folderdeleter_bytes_removed_total",
		"Total bytes of targets that were removed completely.",
	)

	TargetBytes = NewHistogram(
		"folderdeleter_target_bytes",
		"Scanned size of deletion targets in bytes.",
		BytesBuckets,
	)

	SweepRetriesTotal = NewCounter(
		"folderdeleter_sweep_retries_total",
		"Total items the fallback sweep retried after clearing attributes.",
	)

	SweepFailuresTotal = NewCounter(
		"folderdeleter_sweep_failures_total",
		"Total items the fallback sweep could not remove.",
	)

	LastOperationTimestamp = NewGauge(
		"folderdeleter_last_operation_timestamp",
		"Timestamp of the last finished operation (Unix epoch seconds).",
	)

	ValidationRejectionsTotal = NewCounterVec(
		"folderdeleter_validation_rejections_total",
		"Total deletion requests rejected by validation.",
		[]string{"reason"},
	)
}

// registerDeletionMetrics registers all deletion metrics with Prometheus
func registerDeletionMetrics() {
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(ActiveOperations)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(BytesRemovedTotal)
	prometheus.MustRegister(TargetBytes)
	prometheus.MustRegister(SweepRetriesTotal)
	prometheus.MustRegister(SweepFailuresTotal)
	prometheus.MustRegister(LastOperationTimestamp)
	prometheus.MustRegister(ValidationRejectionsTotal)
}

// DeletionMetrics feeds operation measurements into the global metrics.
// It satisfies deletion.Metrics.
type DeletionMetrics struct{}

// NewDeletionMetrics initializes the metrics if needed
func NewDeletionMetrics() DeletionMetrics {
	Init()
	return DeletionMetrics{}
}

func (DeletionMetrics) OperationStarted() {
	ActiveOperations.Inc()
}

func (DeletionMetrics) OperationFinished(outcome string, seconds float64, bytes int64) {
	ActiveOperations.Dec()
	OperationsTotal.WithLabelValues(outcome).Inc()
	OperationDuration.Observe(seconds)
	TargetBytes.Observe(float64(bytes))
	if outcome == "success" {
		BytesRemovedTotal.Add(float64(bytes))
	}
	LastOperationTimestamp.Set(float64(time.Now().Unix()))
}

func (DeletionMetrics) EventEmitted(kind string) {
	EventsTotal.WithLabelValues(kind).Inc()
}

func (DeletionMetrics) SweepFinished(retried, failed int) {
	SweepRetriesTotal.Add(float64(retried))
	SweepFailuresTotal.Add(float64(failed))
}

// RecordRejection counts a request refused by validation
func RecordRejection(reason string) {
	ValidationRejectionsTotal.WithLabelValues(reason).Inc()
}

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// API/HTTP subsystem metrics
var (
	// HTTPRequestDuration tracks HTTP request latency
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsTotal tracks total HTTP requests by handler, method, status
	HTTPRequestsTotal *prometheus.CounterVec
)

// initAPIMetrics initializes all API subsystem metrics
func initAPIMetrics() {
	HTTPRequestDuration = NewHistogramVec(
		"folderdeleter_api_request_duration_seconds",
		"HTTP request duration in seconds. Stream requests last as long as their operation.",
		APIBuckets,
		[]string{"handler", "method", "status"},
	)

	HTTPRequestsTotal = NewCounterVec(
		"folderdeleter_api_requests_total",
		"Total HTTP requests processed by the folder-deleter API.",
		[]string{"handler", "method", "status"},
	)
}

// registerAPIMetrics registers all API metrics with Prometheus
func registerAPIMetrics() {
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsTotal)
}

// ObserveRequest records one served HTTP request
func ObserveRequest(handler, method string, status int, seconds float64) {
	code := strconv.Itoa(status)
	HTTPRequestDuration.WithLabelValues(handler, method, code).Observe(seconds)
	HTTPRequestsTotal.WithLabelValues(handler, method, code).Inc()
}

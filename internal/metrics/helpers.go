package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Histogram buckets shared by the collectors of this package
var (
	// DurationBuckets: an empty folder finishes in well under a second, a large
	// tree paced item by item can take an hour
	DurationBuckets = []float64{0.1, 0.5, 1, 5, 30, 120, 600, 3600}

	// BytesBuckets: 1KB to 100GB under one target
	BytesBuckets = []float64{1 << 10, 1 << 20, 10 << 20, 100 << 20, 1 << 30, 10 << 30, 100 << 30}

	// APIBuckets: history queries answer in milliseconds, streams stay open for
	// the whole operation
	APIBuckets = []float64{0.01, 0.1, 0.5, 1, 5, 30, 300, 1800}

	// HealthBuckets: a check answers in milliseconds or runs into its timeout
	HealthBuckets = []float64{.001, .005, .025, .1, .5, 1, 5}
)

// NewHistogram creates a histogram with the given buckets
func NewHistogram(name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	})
}

// NewHistogramVec creates a labeled histogram with the given buckets
func NewHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}, labels)
}

// NewDurationHistogram creates a histogram of operation durations in seconds
func NewDurationHistogram(name, help string) prometheus.Histogram {
	return NewHistogram(name, help, DurationBuckets)
}

func NewCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: help,
	})
}

func NewCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)
}

func NewGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	})
}

func NewGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labels)
}

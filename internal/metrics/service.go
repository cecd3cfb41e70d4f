package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/maruaican/Quick-Folder-Deleter/internal/disk"
)

// Service-level metrics
var (
	// ErrorsTotal tracks total errors encountered by the service itself
	ErrorsTotal prometheus.Counter

	// FreeSpacePercent tracks current free space percentage per allowed root
	FreeSpacePercent *prometheus.GaugeVec

	// PathFreeBytes tracks free space available on the filesystem containing the root
	PathFreeBytes *prometheus.GaugeVec

	// PathTotalBytes tracks total capacity of the filesystem containing the root
	PathTotalBytes *prometheus.GaugeVec
)

// initServiceMetrics initializes all service subsystem metrics
func initServiceMetrics() {
	ErrorsTotal = NewCounter(
		"folderdeleter_errors_total",
		"Total number of internal errors encountered by the service.",
	)

	FreeSpacePercent = NewGaugeVec(
		"folderdeleter_free_space_percent",
		"Current free space percentage for allowed roots.",
		[]string{"path"},
	)

	PathFreeBytes = NewGaugeVec(
		"folderdeleter_path_free_bytes",
		"Free space available on the filesystem containing this root.",
		[]string{"path"},
	)

	PathTotalBytes = NewGaugeVec(
		"folderdeleter_path_total_bytes",
		"Total capacity of the filesystem containing this root.",
		[]string{"path"},
	)
}

// registerServiceMetrics registers all service metrics with Prometheus
func registerServiceMetrics() {
	prometheus.MustRegister(ErrorsTotal)
	prometheus.MustRegister(FreeSpacePercent)
	prometheus.MustRegister(PathFreeBytes)
	prometheus.MustRegister(PathTotalBytes)
}

// UpdateDiskMetrics publishes the filesystem usage of one allowed root
func UpdateDiskMetrics(u disk.Usage) {
	freePercent := 100.0
	if u.TotalBytes > 0 {
		freePercent = (float64(u.FreeBytes) / float64(u.TotalBytes)) * 100.0
	}
	FreeSpacePercent.WithLabelValues(u.Path).Set(freePercent)
	PathFreeBytes.WithLabelValues(u.Path).Set(float64(u.FreeBytes))
	PathTotalBytes.WithLabelValues(u.Path).Set(float64(u.TotalBytes))
}

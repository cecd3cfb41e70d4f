package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Core synchronization primitives
	initOnce sync.Once

	// Global health checker instance
	globalHealthChecker *HealthChecker
	healthMutex         sync.RWMutex
)

// Init initializes all metrics subsystems and registers them with Prometheus
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		// Initialize all subsystem metrics
		initDeletionMetrics()
		initServiceMetrics()
		initAPIMetrics()
		initServiceHealthMetrics()

		// Register all metrics with Prometheus
		registerDeletionMetrics()
		registerServiceMetrics()
		registerAPIMetrics()
		registerServiceHealthMetrics()

		// Initialize metrics with default values so they appear in /metrics immediately
		LastOperationTimestamp.Set(0)
		ActiveOperations.Set(0)
	})
}

// Handler serves /metrics (Prometheus) and /health
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", HealthHandler)
	return mux
}

// HealthHandler reports the state of the global health checker as JSON
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	healthMutex.RLock()
	hc := globalHealthChecker
	healthMutex.RUnlock()

	body := map[string]interface{}{"status": "healthy"}
	status := http.StatusOK
	if hc != nil {
		body["components"] = hc.GetHealth()
		body["uptime_seconds"] = hc.GetUptime()
		if !hc.IsHealthy() {
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Serve runs a dedicated metrics server on addr until ctx is done
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("metrics server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			ErrorsTotal.Inc()
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown error: %v", err)
		ErrorsTotal.Inc()
		return err
	}
	return nil
}

// SetHealthChecker sets the global health checker instance
func SetHealthChecker(hc *HealthChecker) {
	healthMutex.Lock()
	defer healthMutex.Unlock()
	globalHealthChecker = hc
}

// GetHealthChecker returns the global health checker instance
func GetHealthChecker() *HealthChecker {
	healthMutex.RLock()
	defer healthMutex.RUnlock()
	return globalHealthChecker
}

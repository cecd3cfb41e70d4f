package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Service health metrics
var (
	// ServiceHealthy is 1 while every registered component passes its check
	ServiceHealthy prometheus.Gauge

	// ServiceStartTime records service start timestamp
	ServiceStartTime prometheus.Gauge

	// ComponentHealthy tracks individual component health
	ComponentHealthy *prometheus.GaugeVec

	// LastHealthCheck records timestamp of the last check per component
	LastHealthCheck *prometheus.GaugeVec

	// HealthCheckDuration tracks health check execution time
	HealthCheckDuration *prometheus.HistogramVec

	// HealthCheckFailures counts consecutive failures per component
	HealthCheckFailures *prometheus.GaugeVec

	// HealthCheckTimeouts counts checks abandoned after their timeout
	HealthCheckTimeouts prometheus.Counter
)

var ErrHealthCheckTimeout = errors.New("health check timeout")

// HealthChecker periodically checks the components the service depends on:
// the history database and the filesystems of the allowed roots
type HealthChecker struct {
	mu         sync.RWMutex
	startTime  time.Time
	components map[string]*component
	interval   time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	started    bool
}

type component struct {
	check    func() error
	timeout  time.Duration
	status   ComponentStatus
	failures int
}

// ComponentStatus is the reportable part of a component's health
type ComponentStatus struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

func initServiceHealthMetrics() {
	ServiceHealthy = NewGauge(
		"folderdeleter_healthy",
		"Service health status (1=healthy, 0=unhealthy).",
	)

	ServiceStartTime = NewGauge(
		"folderdeleter_start_timestamp_seconds",
		"Unix timestamp when the service started.",
	)

	ComponentHealthy = NewGaugeVec(
		"folderdeleter_component_healthy",
		"Component health status (1=healthy, 0=unhealthy).",
		[]string{"component"},
	)

	LastHealthCheck = NewGaugeVec(
		"folderdeleter_last_health_check_timestamp_seconds",
		"Unix timestamp of the last health check.",
		[]string{"component"},
	)

	HealthCheckDuration = NewHistogramVec(
		"folderdeleter_health_check_duration_seconds",
		"Time taken to execute health checks.",
		HealthBuckets,
		[]string{"component"},
	)

	HealthCheckFailures = NewGaugeVec(
		"folderdeleter_health_check_failures_consecutive",
		"Consecutive health check failures per component.",
		[]string{"component"},
	)

	HealthCheckTimeouts = NewCounter(
		"folderdeleter_health_check_timeouts_total",
		"Total number of health check timeouts.",
	)
}

func registerServiceHealthMetrics() {
	prometheus.MustRegister(ServiceHealthy)
	prometheus.MustRegister(ServiceStartTime)
	prometheus.MustRegister(ComponentHealthy)
	prometheus.MustRegister(LastHealthCheck)
	prometheus.MustRegister(HealthCheckDuration)
	prometheus.MustRegister(HealthCheckFailures)
	prometheus.MustRegister(HealthCheckTimeouts)
}

// NewHealthChecker creates a checker probing every interval once started
func NewHealthChecker(interval time.Duration) *HealthChecker {
	hc := &HealthChecker{
		startTime:  time.Now(),
		components: make(map[string]*component),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
	ServiceStartTime.Set(float64(hc.startTime.Unix()))
	ServiceHealthy.Set(1)
	return hc
}

// RegisterComponent adds or replaces a check. check returns nil when the
// component is usable; timeout 0 waits for it indefinitely.
func (hc *HealthChecker) RegisterComponent(name string, check func() error, timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.components[name] = &component{
		check:   check,
		timeout: timeout,
		status:  ComponentStatus{Healthy: true},
	}
	ComponentHealthy.WithLabelValues(name).Set(1)
	HealthCheckFailures.WithLabelValues(name).Set(0)
}

// Start begins periodic checking. Register components first.
func (hc *HealthChecker) Start() {
	hc.mu.Lock()
	if hc.started {
		hc.mu.Unlock()
		return
	}
	hc.started = true
	stop := hc.stopCh
	hc.mu.Unlock()

	hc.wg.Add(1)
	go hc.loop(stop)
}

// Stop halts checking and waits for a running check to return
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	if !hc.started {
		hc.mu.Unlock()
		return
	}
	close(hc.stopCh)
	hc.mu.Unlock()

	hc.wg.Wait()

	hc.mu.Lock()
	hc.started = false
	hc.stopCh = make(chan struct{})
	hc.mu.Unlock()
}

func (hc *HealthChecker) loop(stop <-chan struct{}) {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.CheckNow()
	for {
		select {
		case <-ticker.C:
			hc.CheckNow()
		case <-stop:
			return
		}
	}
}

// CheckNow runs every registered check once. Checks run without holding the
// lock so readers never wait for a slow check.
func (hc *HealthChecker) CheckNow() {
	hc.mu.RLock()
	pending := make(map[string]*component, len(hc.components))
	for name, c := range hc.components {
		pending[name] = c
	}
	hc.mu.RUnlock()

	results := make(map[string]error, len(pending))
	for name, c := range pending {
		start := time.Now()
		results[name] = run(c.check, c.timeout)
		HealthCheckDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()

	now := time.Now()
	for name, err := range results {
		c := hc.components[name]
		if c != pending[name] {
			// replaced while the check ran
			continue
		}
		c.status.LastCheck = now
		LastHealthCheck.WithLabelValues(name).Set(float64(now.Unix()))

		if err != nil {
			c.status.Healthy = false
			c.status.LastError = err.Error()
			c.failures++
			ComponentHealthy.WithLabelValues(name).Set(0)
			ErrorsTotal.Inc()
		} else {
			c.status.Healthy = true
			c.status.LastError = ""
			c.failures = 0
			ComponentHealthy.WithLabelValues(name).Set(1)
		}
		HealthCheckFailures.WithLabelValues(name).Set(float64(c.failures))
	}

	if hc.healthyLocked() {
		ServiceHealthy.Set(1)
	} else {
		ServiceHealthy.Set(0)
	}
}

func run(check func() error, timeout time.Duration) error {
	if timeout <= 0 {
		return check()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- check()
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		HealthCheckTimeouts.Inc()
		return ErrHealthCheckTimeout
	}
}

// GetHealth returns the current status of every component
func (hc *HealthChecker) GetHealth() map[string]ComponentStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	health := make(map[string]ComponentStatus, len(hc.components))
	for name, c := range hc.components {
		health[name] = c.status
	}
	return health
}

// IsHealthy reports whether every component passed its last check
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.healthyLocked()
}

func (hc *HealthChecker) healthyLocked() bool {
	for _, c := range hc.components {
		if !c.status.Healthy {
			return false
		}
	}
	return true
}

// GetUptime returns service uptime in seconds
func (hc *HealthChecker) GetUptime() float64 {
	return time.Since(hc.startTime).Seconds()
}

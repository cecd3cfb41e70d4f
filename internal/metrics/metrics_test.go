package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/maruaican/Quick-Folder-Deleter/internal/disk"
)

// TestMetricsInit verifies that Init() is idempotent and registers metrics
func TestMetricsInit(t *testing.T) {
	// Call Init multiple times - should be idempotent via sync.Once
	Init()
	Init()
	Init()

	if OperationsTotal == nil || EventsTotal == nil || ActiveOperations == nil {
		t.Fatal("deletion metrics should be initialized")
	}
	if ErrorsTotal == nil || FreeSpacePercent == nil {
		t.Fatal("service metrics should be initialized")
	}
	if HTTPRequestDuration == nil || HTTPRequestsTotal == nil {
		t.Fatal("API metrics should be initialized")
	}

	// Labeled vectors only show up once a child exists
	OperationsTotal.WithLabelValues("success")
	EventsTotal.WithLabelValues("info")
	ObserveRequest("/init", http.MethodGet, 200, 0.01)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := []string{
		"folderdeleter_operations_total",
		"folderdeleter_operations_active",
		"folderdeleter_events_total",
		"folderdeleter_last_operation_timestamp",
		"folderdeleter_sweep_retries_total",
		"folderdeleter_errors_total",
		"folderdeleter_api_request_duration_seconds",
		"folderdeleter_api_requests_total",
	}

	foundMetrics := make(map[string]bool)
	for _, mf := range mfs {
		foundMetrics[mf.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		if !foundMetrics[expected] {
			t.Errorf("Expected metric %s not found in registry", expected)
		}
	}
}

// TestDeletionMetrics verifies the deletion.Metrics implementation
func TestDeletionMetrics(t *testing.T) {
	m := NewDeletionMetrics()

	active := testutil.ToFloat64(ActiveOperations)
	successes := testutil.ToFloat64(OperationsTotal.WithLabelValues("success"))
	removed := testutil.ToFloat64(BytesRemovedTotal)
	dels := testutil.ToFloat64(EventsTotal.WithLabelValues("del"))
	retries := testutil.ToFloat64(SweepRetriesTotal)

	m.OperationStarted()
	if got := testutil.ToFloat64(ActiveOperations); got != active+1 {
		t.Errorf("ActiveOperations = %v, want %v", got, active+1)
	}

	m.EventEmitted("del")
	m.EventEmitted("del")
	m.SweepFinished(3, 1)
	m.OperationFinished("success", 1.5, 2048)

	if got := testutil.ToFloat64(ActiveOperations); got != active {
		t.Errorf("ActiveOperations = %v, want %v", got, active)
	}
	if got := testutil.ToFloat64(OperationsTotal.WithLabelValues("success")); got != successes+1 {
		t.Errorf("successes = %v, want %v", got, successes+1)
	}
	if got := testutil.ToFloat64(BytesRemovedTotal); got != removed+2048 {
		t.Errorf("BytesRemovedTotal = %v, want %v", got, removed+2048)
	}
	if got := testutil.ToFloat64(EventsTotal.WithLabelValues("del")); got != dels+2 {
		t.Errorf("del events = %v, want %v", got, dels+2)
	}
	if got := testutil.ToFloat64(SweepRetriesTotal); got != retries+3 {
		t.Errorf("SweepRetriesTotal = %v, want %v", got, retries+3)
	}

	// An incomplete operation removes nothing
	before := testutil.ToFloat64(BytesRemovedTotal)
	m.OperationStarted()
	m.OperationFinished("incomplete", 0.2, 4096)
	if got := testutil.ToFloat64(BytesRemovedTotal); got != before {
		t.Errorf("incomplete operation added %v bytes", got-before)
	}

	RecordRejection("protected")
	if got := testutil.ToFloat64(ValidationRejectionsTotal.WithLabelValues("protected")); got < 1 {
		t.Errorf("rejection not counted")
	}
}

// TestUpdateDiskMetrics verifies free space is derived from usage
func TestUpdateDiskMetrics(t *testing.T) {
	Init()
	UpdateDiskMetrics(disk.Usage{Path: "/srv/scratch", FreeBytes: 25, TotalBytes: 100})

	if got := testutil.ToFloat64(FreeSpacePercent.WithLabelValues("/srv/scratch")); got != 25 {
		t.Errorf("FreeSpacePercent = %v, want 25", got)
	}
	if got := testutil.ToFloat64(PathTotalBytes.WithLabelValues("/srv/scratch")); got != 100 {
		t.Errorf("PathTotalBytes = %v, want 100", got)
	}
}

// TestStandardBuckets verifies that standard bucket definitions are correct
func TestStandardBuckets(t *testing.T) {
	tests := []struct {
		name     string
		got      []float64
		expected []float64
	}{
		{"DurationBuckets", DurationBuckets, []float64{0.1, 0.5, 1, 5, 30, 120, 600, 3600}},
		{"BytesBuckets", BytesBuckets, []float64{1024, 1048576, 10485760, 104857600, 1073741824, 10737418240, 107374182400}},
		{"APIBuckets", APIBuckets, []float64{0.01, 0.1, 0.5, 1, 5, 30, 300, 1800}},
		{"HealthBuckets", HealthBuckets, []float64{.001, .005, .025, .1, .5, 1, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.got) != len(tt.expected) {
				t.Fatalf("Expected %d buckets, got %d", len(tt.expected), len(tt.got))
			}
			for i, v := range tt.expected {
				if tt.got[i] != v {
					t.Errorf("bucket[%d]: expected %v, got %v", i, v, tt.got[i])
				}
			}
		})
	}
}

// TestHealthChecker verifies component state transitions
func TestHealthChecker(t *testing.T) {
	Init()
	hc := NewHealthChecker(time.Hour)

	failing := errors.New("disk gone")
	var dbErr error
	hc.RegisterComponent("history_db", func() error { return dbErr }, 0)
	hc.RegisterComponent("slow", func() error { time.Sleep(200 * time.Millisecond); return nil }, 20*time.Millisecond)

	hc.CheckNow()
	if hc.IsHealthy() {
		t.Error("a timed out component must make the service unhealthy")
	}
	if st := hc.GetHealth()["slow"]; st.Healthy || st.LastError != "health check timeout" {
		t.Errorf("unexpected slow status: %+v", st)
	}

	hc.RegisterComponent("slow", func() error { return nil }, 0)
	dbErr = failing
	hc.CheckNow()
	if st := hc.GetHealth()["history_db"]; st.Healthy || st.LastError != "disk gone" {
		t.Errorf("unexpected db status: %+v", st)
	}

	dbErr = nil
	hc.CheckNow()
	if !hc.IsHealthy() {
		t.Errorf("expected healthy after recovery: %+v", hc.GetHealth())
	}

	hc.Start()
	hc.Stop()
	hc.Stop()
}

// TestHealthCheckDoesNotBlockReaders verifies status reads during a slow check
func TestHealthCheckDoesNotBlockReaders(t *testing.T) {
	Init()
	hc := NewHealthChecker(time.Hour)
	release := make(chan struct{})
	hc.RegisterComponent("slow", func() error { <-release; return nil }, 0)

	done := make(chan struct{})
	go func() {
		hc.CheckNow()
		close(done)
	}()

	read := make(chan bool, 1)
	go func() { read <- hc.IsHealthy() }()
	select {
	case healthy := <-read:
		if !healthy {
			t.Error("a component not yet checked counts as healthy")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("IsHealthy blocked behind a running check")
	}

	close(release)
	<-done
	if st := hc.GetHealth()["slow"]; !st.Healthy || st.LastCheck.IsZero() {
		t.Errorf("unexpected status after check: %+v", st)
	}
	if got := testutil.ToFloat64(ServiceHealthy); got != 1 {
		t.Errorf("ServiceHealthy = %v, want 1", got)
	}
}

// TestHealthHandler verifies the JSON health endpoint
func TestHealthHandler(t *testing.T) {
	Init()
	SetHealthChecker(nil)

	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}

	hc := NewHealthChecker(time.Hour)
	hc.RegisterComponent("broken", func() error { return errors.New("x") }, 0)
	hc.CheckNow()
	SetHealthChecker(hc)
	defer SetHealthChecker(nil)

	rec = httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// TestServe runs the dedicated metrics server and stops it via the context
func TestServe(t *testing.T) {
	Init()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, log.New(io.Discard, "", 0)) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("metrics server never came up: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "folderdeleter_operations_active") {
		t.Error("metrics output missing folderdeleter_operations_active")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

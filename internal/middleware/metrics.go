package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/alphacouncil/internal/health"
)

// Metrics stores HTTP-surface counters. Pipeline counters live in the
// injected health monitor; this file only covers the request side.
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	LettersAccepted    uint64
	LettersRejected    uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementLettersAccepted counts an admitted letter
func IncrementLettersAccepted() {
	atomic.AddUint64(&globalMetrics.LettersAccepted, 1)
}

// IncrementLettersRejected counts a rate-limited or queue-full rejection
func IncrementLettersRejected() {
	atomic.AddUint64(&globalMetrics.LettersRejected, 1)
}

// GetMetrics returns current metrics merged with the pipeline snapshot
func GetMetrics(monitor *health.Monitor) map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	out := map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"letters_accepted":     atomic.LoadUint64(&globalMetrics.LettersAccepted),
		"letters_rejected":     atomic.LoadUint64(&globalMetrics.LettersRejected),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
	if monitor != nil {
		out["pipeline"] = monitor.Snapshot()
	}
	return out
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
		atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
		defer atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))

		// Wrap response writer to capture status
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		// Track success/failure based on status code
		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
		} else {
			atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(monitor *health.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(GetMetrics(monitor))
	}
}

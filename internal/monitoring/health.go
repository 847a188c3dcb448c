package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startTime = time.Now()

// HealthChecker serves a JSON liveness endpoint fed by the orchestrator.
type HealthChecker struct {
	mu            sync.RWMutex
	lastIteration time.Time
	emergency     bool
	lastError     string
}

// HealthStatus is the JSON body returned by the health endpoint.
type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	LastIteration time.Time `json:"last_iteration"`
	EmergencyStop bool      `json:"emergency_stop"`
	Uptime        string    `json:"uptime"`
	LastError     string    `json:"last_error,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// MarkIteration records a completed loop iteration.
func (h *HealthChecker) MarkIteration() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastIteration = time.Now()
}

// SetEmergency mirrors the global emergency-stop flag.
func (h *HealthChecker) SetEmergency(active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emergency = active
}

// RecordError keeps the most recent loop error for the health body.
func (h *HealthChecker) RecordError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastError = err.Error()
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	switch {
	case h.emergency:
		status = "emergency_stopped"
	case h.lastIteration.IsZero() || time.Since(h.lastIteration) > 5*time.Minute:
		status = "stalled"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	body := HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		LastIteration: h.lastIteration,
		EmergencyStop: h.emergency,
		Uptime:        time.Since(startTime).String(),
		LastError:     h.lastError,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

// Serve starts the metrics and health HTTP listeners. Each runs on its own
// port so the metrics scrape never competes with liveness probes.
func Serve(metricsPort, healthPort int, health *HealthChecker) {
	if metricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			_ = http.ListenAndServe(fmt.Sprintf(":%d", metricsPort), mux)
		}()
	}
	if healthPort > 0 && health != nil {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/health", health)
			_ = http.ListenAndServe(fmt.Sprintf(":%d", healthPort), mux)
		}()
	}
}

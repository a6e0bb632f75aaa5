// Package server implements health check handlers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// BufferState is the view of the buffer manager the health checker reads.
type BufferState interface {
	Closed() bool
	Stats() []telemetry.ChannelStats
}

// ManagerHealthChecker reports readiness from the buffer manager state and
// the outcome of the most recent flush.
type ManagerHealthChecker struct {
	state BufferState

	mu        sync.RWMutex
	lastFlush time.Time
	flushErr  error
	ingestErr error
}

// NewManagerHealthChecker creates a health checker for state.
func NewManagerHealthChecker(state BufferState) *ManagerHealthChecker {
	return &ManagerHealthChecker{state: state}
}

// RecordFlush records the outcome of a flush.
func (h *ManagerHealthChecker) RecordFlush(at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastFlush = at
	h.flushErr = err
}

// RecordIngestError records a fatal ingestion error; nil clears it.
func (h *ManagerHealthChecker) RecordIngestError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ingestErr = err
}

// Liveness reports whether the process is alive.
func (h *ManagerHealthChecker) Liveness() bool {
	return true
}

// Readiness reports whether samples are accepted and the last flush, if any,
// succeeded.
func (h *ManagerHealthChecker) Readiness(ctx context.Context) bool {
	return h.IsHealthy()
}

// IsHealthy reports the overall health.
func (h *ManagerHealthChecker) IsHealthy() bool {
	if h.state.Closed() {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.flushErr == nil && h.ingestErr == nil
}

// GetStatus returns per-component status details.
func (h *ManagerHealthChecker) GetStatus() map[string]string {
	status := make(map[string]string)

	if h.state.Closed() {
		status["buffer_manager"] = "closed"
	} else {
		status["buffer_manager"] = "open"
	}

	for _, s := range h.state.Stats() {
		status["channel."+s.Name] = fmt.Sprintf("%d/%d", s.Size, s.Capacity)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	switch {
	case h.lastFlush.IsZero():
		status["last_flush"] = "never"
	case h.flushErr != nil:
		status["last_flush"] = "failed: " + h.flushErr.Error()
	default:
		status["last_flush"] = h.lastFlush.UTC().Format(time.RFC3339)
	}

	if h.ingestErr != nil {
		status["ingestion"] = "failed: " + h.ingestErr.Error()
	}

	return status
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeHealth(w http.ResponseWriter, statusCode int, response HealthResponse, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

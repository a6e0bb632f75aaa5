package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// mockHealthChecker implements HealthChecker for testing
type mockHealthChecker struct {
	liveness  bool
	readiness bool
	healthy   bool
	status    map[string]string
}

func (m *mockHealthChecker) Liveness() bool {
	return m.liveness
}

func (m *mockHealthChecker) Readiness(ctx context.Context) bool {
	return m.readiness
}

func (m *mockHealthChecker) IsHealthy() bool {
	return m.healthy
}

func (m *mockHealthChecker) GetStatus() map[string]string {
	return m.status
}

// fakeBufferState implements BufferState for testing
type fakeBufferState struct {
	closed bool
	stats  []telemetry.ChannelStats
}

func (f *fakeBufferState) Closed() bool                    { return f.closed }
func (f *fakeBufferState) Stats() []telemetry.ChannelStats { return f.stats }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestLivenessHandler(t *testing.T) {
	tests := []struct {
		name       string
		liveness   bool
		wantCode   int
		wantStatus string
	}{
		{"alive", true, http.StatusOK, "alive"},
		{"not alive", false, http.StatusServiceUnavailable, "not alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := LivenessHandler(&mockHealthChecker{liveness: tt.liveness}, testLogger())
			w := httptest.NewRecorder()

			handler(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", ct)
			}
			if response := decodeHealth(t, w); response.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", response.Status, tt.wantStatus)
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		readiness  bool
		wantCode   int
		wantStatus string
	}{
		{"ready", true, http.StatusOK, "ready"},
		{"not ready", false, http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &mockHealthChecker{
				readiness: tt.readiness,
				status:    map[string]string{"buffer_manager": "open"},
			}
			handler := ReadinessHandler(checker, testLogger())
			w := httptest.NewRecorder()

			handler(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			response := decodeHealth(t, w)
			if response.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", response.Status, tt.wantStatus)
			}
			if response.Checks["buffer_manager"] != "open" {
				t.Errorf("checks = %v, want buffer_manager=open", response.Checks)
			}
		})
	}
}

func TestManagerHealthChecker_Readiness(t *testing.T) {
	state := &fakeBufferState{}
	checker := NewManagerHealthChecker(state)
	ctx := context.Background()

	if !checker.Liveness() {
		t.Error("expected checker to be alive")
	}
	if !checker.Readiness(ctx) {
		t.Error("expected open manager to be ready")
	}

	checker.RecordFlush(time.Now(), errors.New("upload failed"))
	if checker.Readiness(ctx) {
		t.Error("expected not ready after a failed flush")
	}

	checker.RecordFlush(time.Now(), nil)
	if !checker.Readiness(ctx) {
		t.Error("expected ready after a successful flush")
	}

	checker.RecordIngestError(errors.New("brokers unreachable"))
	if checker.Readiness(ctx) {
		t.Error("expected not ready after an ingestion error")
	}
	checker.RecordIngestError(nil)

	state.closed = true
	if checker.Readiness(ctx) {
		t.Error("expected closed manager to be not ready")
	}
	if !checker.Liveness() {
		t.Error("closed manager should still be alive")
	}
}

func TestManagerHealthChecker_GetStatus(t *testing.T) {
	state := &fakeBufferState{
		stats: []telemetry.ChannelStats{
			{Name: "pos", Size: 2, Capacity: 10},
			{Name: "vel", Size: 10, Capacity: 10, Full: true},
		},
	}
	checker := NewManagerHealthChecker(state)

	status := checker.GetStatus()
	want := map[string]string{
		"buffer_manager": "open",
		"channel.pos":    "2/10",
		"channel.vel":    "10/10",
		"last_flush":     "never",
	}
	for k, v := range want {
		if status[k] != v {
			t.Errorf("status[%s] = %q, want %q", k, status[k], v)
		}
	}

	at := time.Date(2025, 12, 18, 10, 30, 0, 0, time.UTC)
	checker.RecordFlush(at, nil)
	if got := checker.GetStatus()["last_flush"]; got != "2025-12-18T10:30:00Z" {
		t.Errorf("last_flush = %q, want 2025-12-18T10:30:00Z", got)
	}

	checker.RecordFlush(at, errors.New("disk full"))
	if got := checker.GetStatus()["last_flush"]; got != "failed: disk full" {
		t.Errorf("last_flush = %q, want failed: disk full", got)
	}

	state.closed = true
	if got := checker.GetStatus()["buffer_manager"]; got != "closed" {
		t.Errorf("buffer_manager = %q, want closed", got)
	}
}

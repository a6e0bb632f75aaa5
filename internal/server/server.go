// Package server implements HTTP server for health checks and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	IsHealthy() bool
	GetStatus() map[string]string
}

// Server represents the HTTP server for health and metrics.
// When both ports are equal a single listener serves every endpoint.
type Server struct {
	servers []*http.Server
	logger  *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(
	healthPort int,
	metricsPort int,
	healthChecker HealthChecker,
	registry *prometheus.Registry,
	logger *slog.Logger,
) *Server {
	healthMux := HealthMux(healthChecker, logger)
	metricsMux := MetricsMux(registry)

	if healthPort == metricsPort {
		healthMux.Handle("/metrics", metricsMux)
		return &Server{
			servers: []*http.Server{newHTTPServer(healthPort, healthMux)},
			logger:  logger,
		}
	}

	return &Server{
		servers: []*http.Server{
			newHTTPServer(healthPort, healthMux),
			newHTTPServer(metricsPort, metricsMux),
		},
		logger: logger,
	}
}

// HealthMux returns the mux serving the liveness and readiness endpoints.
func HealthMux(checker HealthChecker, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", LivenessHandler(checker, logger))
	mux.HandleFunc("GET /health/ready", ReadinessHandler(checker, logger))
	return mux
}

// MetricsMux returns the mux serving registry on /metrics.
func MetricsMux(registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Start starts the HTTP listeners in the background.
func (s *Server) Start() error {
	for _, srv := range s.servers {
		go func() {
			s.logger.Info("starting http server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("http server failed", "addr", srv.Addr, "error", err)
			}
		}()
	}
	return nil
}

// Shutdown gracefully shuts down all listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	errChan := make(chan error, len(s.servers))
	for _, srv := range s.servers {
		go func() {
			errChan <- srv.Shutdown(ctx)
		}()
	}

	var lastErr error
	for range s.servers {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}

	return lastErr
}

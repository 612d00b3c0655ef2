// Package server wires the detector's HTTP surface: probes and metrics.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/fraudhawk/internal/handlers"
	"github.com/telhawk-systems/fraudhawk/internal/middleware"
)

// NewRouter constructs a ServeMux with the detector's routes registered.
func NewRouter(h *handlers.HealthHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}

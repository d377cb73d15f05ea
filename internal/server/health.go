package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler reports liveness and backend readiness.
type HealthHandler struct {
	server  *Server
	version string
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(s *Server, version string) *HealthHandler {
	return &HealthHandler{
		server:  s,
		version: version,
		started: time.Now(),
	}
}

// RegisterRoutes registers health routes.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/ready", h.handleReady)
}

// handleHealth handles GET /health. It always answers while the process is
// up; readiness is a separate endpoint.
func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// handleReady handles GET /health/ready. The search backend being down makes
// the service degraded, not dead: stored experiments remain readable.
func (h *HealthHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	backendStatus := "ok"

	if h.server.searcher != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.server.searcher.HealthCheck(ctx); err != nil {
			status = "degraded"
			backendStatus = err.Error()
		}
	}

	code := http.StatusOK
	if status != "ready" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"backend": backendStatus,
		"version": h.version,
	})
}

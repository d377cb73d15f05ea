package metrics

import (
	"net/http"
)

// Handler serves the Prometheus scrape endpoint.
type Handler struct {
	metrics *Metrics
}

// NewHandler creates a metrics handler.
func NewHandler(m *Metrics) *Handler {
	return &Handler{metrics: m}
}

// ServeHTTP handles GET requests with the text exposition format.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.metrics.PrometheusFormat()))
}

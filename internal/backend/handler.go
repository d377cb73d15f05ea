package backend

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// Handler exposes the search configuration API over HTTP.
type Handler struct {
	registry *Registry
}

// NewHandler creates a new search configuration handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers search configuration routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/search-configurations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPut, http.MethodPost:
			h.handlePut(w, r)
		default:
			errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
		}
	})

	mux.HandleFunc("/v1/search-configurations/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/search-configurations/")
		if id == "" {
			errors.WriteError(w, errors.NotFoundError("search configuration"))
			return
		}

		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodDelete:
			h.handleDelete(w, r, id)
		default:
			errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
		}
	})
}

// handlePut handles PUT /v1/search-configurations
func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	var cfg SearchConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid request body"))
		return
	}

	stored, err := h.registry.Put(r.Context(), &cfg)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, stored)
}

// handleList handles GET /v1/search-configurations
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	configs, err := h.registry.List(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"searchConfigurations": configs})
}

// handleGet handles GET /v1/search-configurations/{id}
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	cfg, err := h.registry.Get(r.Context(), id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleDelete handles DELETE /v1/search-configurations/{id}
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.registry.Delete(r.Context(), id); err != nil {
		errors.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

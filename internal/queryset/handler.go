package queryset

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// Handler exposes the query set API over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a new query set handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers query set routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/querysets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPut, http.MethodPost:
			h.handlePut(w, r)
		default:
			errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
		}
	})

	mux.HandleFunc("/v1/querysets/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/v1/querysets/")
		if path == "" {
			errors.WriteError(w, errors.NotFoundError("query set"))
			return
		}

		if path == "sample" {
			if r.Method != http.MethodPost {
				errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
				return
			}
			h.handleSample(w, r)
			return
		}

		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, path)
		case http.MethodDelete:
			h.handleDelete(w, r, path)
		default:
			errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
		}
	})
}

// handlePut handles PUT /v1/querysets
func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	var req PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid request body"))
		return
	}

	qs, err := h.svc.Put(r.Context(), req)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, qs)
}

// handleSample handles POST /v1/querysets/sample
func (h *Handler) handleSample(w http.ResponseWriter, r *http.Request) {
	var req SampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid request body"))
		return
	}

	qs, err := h.svc.Sample(r.Context(), req)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, qs)
}

// handleList handles GET /v1/querysets
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sets, err := h.svc.List(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"querySets": sets})
}

// handleGet handles GET /v1/querysets/{id}
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	qs, err := h.svc.Get(r.Context(), id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, qs)
}

// handleDelete handles DELETE /v1/querysets/{id}
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.Delete(r.Context(), id); err != nil {
		errors.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package experiment

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// Handler exposes the experiment API over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a new experiment handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers experiment routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/experiments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
		}
	})

	mux.HandleFunc("/v1/experiments/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/v1/experiments/")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) == 0 || parts[0] == "" {
			errors.WriteError(w, errors.NotFoundError("experiment"))
			return
		}

		id := parts[0]
		subPath := ""
		if len(parts) > 1 {
			subPath = parts[1]
		}

		switch {
		case subPath == "" || subPath == "/":
			switch r.Method {
			case http.MethodGet:
				h.handleGet(w, r, id)
			case http.MethodDelete:
				h.handleDelete(w, r, id)
			default:
				errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
			}
		case subPath == "results":
			if r.Method == http.MethodGet {
				h.handleResults(w, r, id)
			} else {
				errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
			}
		default:
			errors.WriteError(w, errors.NotFoundError("resource"))
		}
	})
}

// handleCreate handles POST /v1/experiments
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var spec Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid request body"))
		return
	}

	exp, err := h.svc.Create(r.Context(), spec)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, exp)
}

// handleList handles GET /v1/experiments
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	experiments, err := h.svc.List(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"experiments": experiments})
}

// handleGet handles GET /v1/experiments/{id}
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	exp, err := h.svc.Get(r.Context(), id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exp)
}

// handleDelete handles DELETE /v1/experiments/{id}
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.Delete(r.Context(), id); err != nil {
		errors.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleResults handles GET /v1/experiments/{id}/results
func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request, id string) {
	results, err := h.svc.Results(r.Context(), id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"experimentId": id,
		"results":      results,
	})
}

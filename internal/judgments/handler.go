package judgments

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// Handler exposes the judgment API over HTTP.
type Handler struct {
	importer *Importer
}

// NewHandler creates a new judgment handler.
func NewHandler(importer *Importer) *Handler {
	return &Handler{importer: importer}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers judgment routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/judgments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPut, http.MethodPost:
			h.handleImport(w, r)
		default:
			errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
		}
	})

	mux.HandleFunc("/v1/judgments/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/judgments/")
		if id == "" {
			errors.WriteError(w, errors.NotFoundError("judgment set"))
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

// handleImport handles PUT /v1/judgments
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid request body"))
		return
	}

	result, err := h.importer.Import(r.Context(), req)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleList handles GET /v1/judgments
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sets, err := h.importer.List(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"judgments": sets})
}

// handleGet handles GET /v1/judgments/{id}
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	set, err := h.importer.Get(r.Context(), id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, set)
}

// handleDelete handles DELETE /v1/judgments/{id}
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.importer.Delete(r.Context(), id); err != nil {
		errors.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

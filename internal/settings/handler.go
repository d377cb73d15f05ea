package settings

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// Handler exposes the runtime settings API over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a new settings handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers settings routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/settings", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r)
		case http.MethodPut:
			h.handleUpdate(w, r)
		default:
			errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
		}
	})

	mux.HandleFunc("/v1/settings/", func(w http.ResponseWriter, r *http.Request) {
		action := strings.TrimPrefix(r.URL.Path, "/v1/settings/")
		switch action {
		case "history":
			if r.Method != http.MethodGet {
				errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
				return
			}
			h.handleHistory(w, r)
		case "rollback":
			if r.Method != http.MethodPost {
				errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
				return
			}
			h.handleRollback(w, r)
		case "reset":
			if r.Method != http.MethodPost {
				errors.WriteErrorWithStatus(w, http.StatusMethodNotAllowed, errors.InvalidRequestError("method not allowed"))
				return
			}
			h.handleReset(w, r)
		default:
			errors.WriteError(w, errors.NotFoundError("resource"))
		}
	})
}

// handleGet handles GET /v1/settings
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Get(r.Context()))
}

// handleUpdate handles PUT /v1/settings
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var cfg RuntimeConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid request body"))
		return
	}

	result, err := h.svc.ValidateAndUpdate(r.Context(), cfg, "api")
	if err != nil {
		if !result.Valid {
			writeJSON(w, http.StatusBadRequest, result)
			return
		}
		errors.WriteError(w, errors.Wrap(errors.CodeInternal, "failed to update settings", err))
		return
	}

	writeJSON(w, http.StatusOK, h.svc.Get(r.Context()))
}

// handleHistory handles GET /v1/settings/history
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			errors.WriteError(w, errors.InvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	history, err := h.svc.GetHistory(r.Context(), limit)
	if err != nil {
		errors.WriteError(w, errors.Wrap(errors.CodeInternal, "failed to load settings history", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// handleRollback handles POST /v1/settings/rollback
func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version int `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version < 1 {
		errors.WriteError(w, errors.InvalidRequestError("version must be a positive integer"))
		return
	}

	if err := h.svc.Rollback(r.Context(), req.Version, "rollback"); err != nil {
		errors.WriteError(w, errors.InvalidRequestError(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, h.svc.Get(r.Context()))
}

// handleReset handles POST /v1/settings/reset
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context(), "api"); err != nil {
		errors.WriteError(w, errors.Wrap(errors.CodeInternal, "failed to reset settings", err))
		return
	}

	writeJSON(w, http.StatusOK, h.svc.Get(r.Context()))
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/barcode-extractor/internal/history"
	"github.com/spherical/barcode-extractor/internal/observability"
)

const defaultRunLimit = 50

// RunReader reads stored runs.
type RunReader interface {
	List(ctx context.Context, limit int) ([]history.Run, error)
	Get(ctx context.Context, id string) (*history.Run, error)
}

// RunsHandler exposes the run history.
type RunsHandler struct {
	logger *observability.Logger
	runs   RunReader // nil when history is disabled
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(logger *observability.Logger, runs RunReader) *RunsHandler {
	return &RunsHandler{
		logger: logger.WithOperation("runs"),
		runs:   runs,
	}
}

// RunListDTO is the response of GET /runs.
type RunListDTO struct {
	Runs []history.Run `json:"runs"`
}

// List handles GET /runs.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "Run history is disabled.")
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer.")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "Failed to read run history.")
		return
	}

	writeJSON(w, http.StatusOK, RunListDTO{Runs: runs})
}

// Get handles GET /runs/{runId}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "Run history is disabled.")
		return
	}

	id := chi.URLParam(r, "runId")
	run, err := h.runs.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found.")
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Str("run_id", id).Msg("Failed to read run")
		writeError(w, http.StatusInternalServerError, "Failed to read run history.")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

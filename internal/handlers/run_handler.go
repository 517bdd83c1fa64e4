package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

const defaultEventLimit = 200

// RunHandler handles run read APIs
type RunHandler struct {
	jobs   interfaces.JobService
	events interfaces.EventService
	logger arbor.ILogger
}

// NewRunHandler creates a new run handler
func NewRunHandler(jobs interfaces.JobService, events interfaces.EventService, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		jobs:   jobs,
		events: events,
		logger: logger,
	}
}

// ListRunsHandler returns all runs across jobs
// GET /api/runs
func (h *RunHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	runs, err := h.jobs.ListRuns(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteServiceError(w, err)
		return
	}

	if runs == nil {
		runs = []*models.Run{}
	}
	WriteJSON(w, http.StatusOK, runs)
}

// GetRunHandler returns a single run by ID
// GET /api/runs/{id}
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	runID := PathSegment(r, 2)
	if runID == "" {
		WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	run, err := h.jobs.GetRun(r.Context(), runID)
	if err != nil {
		h.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to get run")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

// ListRunArtifactsHandler returns the artifacts registered to a run
// GET /api/runs/{id}/artifacts
func (h *RunHandler) ListRunArtifactsHandler(w http.ResponseWriter, r *http.Request) {
	runID := PathSegment(r, 2)
	if runID == "" {
		WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	artifacts, err := h.jobs.ListRunArtifacts(r.Context(), runID)
	if err != nil {
		h.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to list run artifacts")
		WriteServiceError(w, err)
		return
	}

	if artifacts == nil {
		artifacts = []*models.RunArtifact{}
	}
	WriteJSON(w, http.StatusOK, artifacts)
}

// ListRunEventsHandler returns the event log for a run in append order
// GET /api/runs/{id}/events?limit=200&level=error
func (h *RunHandler) ListRunEventsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID := PathSegment(r, 2)
	if runID == "" {
		WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	// Events for unknown runs are indistinguishable from an empty log,
	// so existence is checked against the snapshot first.
	if _, err := h.jobs.GetRun(ctx, runID); err != nil {
		h.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to get run for events")
		WriteServiceError(w, err)
		return
	}

	limit := defaultEventLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var (
		events []models.RunEvent
		err    error
	)
	if level := r.URL.Query().Get("level"); level != "" {
		events, err = h.events.GetEventsByLevel(ctx, runID, level, limit)
	} else {
		events, err = h.events.GetEvents(ctx, runID, limit)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to read run events")
		WriteServiceError(w, err)
		return
	}

	if events == nil {
		events = []models.RunEvent{}
	}
	WriteJSON(w, http.StatusOK, events)
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// JobHandler handles comparison job API requests
type JobHandler struct {
	jobs      interfaces.JobService
	pipeline  interfaces.PipelineService
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs interfaces.JobService, pipeline interfaces.PipelineService, scheduler interfaces.SchedulerService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		pipeline:  pipeline,
		scheduler: scheduler,
		logger:    logger,
	}
}

// ListJobsHandler returns all comparison jobs
// GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteServiceError(w, err)
		return
	}

	if jobs == nil {
		jobs = []*models.ComparisonJob{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// CreateJobHandler creates a comparison job
// POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var job models.ComparisonJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	created, err := h.jobs.CreateJob(ctx, &job)
	if err != nil {
		h.logger.Warn().Err(err).Str("name", job.Name).Msg("Failed to create job")
		WriteServiceError(w, err)
		return
	}

	h.reloadSchedules(ctx)

	h.logger.Info().Str("job_id", created.ID).Str("name", created.Name).Msg("Job created")
	WriteJSON(w, http.StatusCreated, created)
}

// GetJobHandler returns a single job by ID
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// UpdateJobHandler applies a partial update to a job
// PUT /api/jobs/{id}
func (h *JobHandler) UpdateJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	var update models.JobUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	job, err := h.jobs.UpdateJob(ctx, jobID, &update)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to update job")
		WriteServiceError(w, err)
		return
	}

	h.reloadSchedules(ctx)

	h.logger.Info().Str("job_id", jobID).Msg("Job updated")
	WriteJSON(w, http.StatusOK, job)
}

// DeleteJobHandler deletes a job, its runs, and everything recorded under them
// DELETE /api/jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	// Cancel any run still executing before its rows disappear.
	runs, err := h.jobs.ListRunsForJob(ctx, jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to list runs for delete")
		WriteServiceError(w, err)
		return
	}
	if h.pipeline != nil {
		for _, run := range runs {
			if !run.IsTerminal() && h.pipeline.CancelRun(run.ID) {
				h.logger.Info().Str("run_id", run.ID).Str("job_id", jobID).Msg("Cancelled run for job deletion")
			}
		}
	}

	if err := h.jobs.DeleteJob(ctx, jobID); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to delete job")
		WriteServiceError(w, err)
		return
	}

	h.reloadSchedules(ctx)

	h.logger.Info().Str("job_id", jobID).Msg("Job deleted")
	w.WriteHeader(http.StatusNoContent)
}

// TriggerRunHandler enqueues a run for the job
// POST /api/jobs/{id}/run
func (h *JobHandler) TriggerRunHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	// Optional body may name the trigger source.
	triggeredBy := "api"
	if r.Body != nil {
		defer r.Body.Close()
		var body struct {
			TriggeredBy string `json:"triggeredBy"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.TriggeredBy != "" {
			triggeredBy = body.TriggeredBy
		}
	}

	run, err := h.jobs.EnqueueRun(ctx, jobID, triggeredBy)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to enqueue run")
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().Str("job_id", jobID).Str("run_id", run.ID).Msg("Run enqueued")
	WriteJSON(w, http.StatusAccepted, run)
}

// MigrateJobsHandler converts legacy single-URL jobs in place
// POST /api/jobs/migrate
func (h *JobHandler) MigrateJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	count, err := h.jobs.MigrateLegacy(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Legacy job migration failed")
		WriteServiceError(w, err)
		return
	}

	if count > 0 {
		h.logger.Info().Int("count", count).Msg("Legacy jobs migrated")
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

// reloadSchedules resyncs cron entries after a job mutation. Scheduling is
// advisory; a reload failure never fails the request.
func (h *JobHandler) reloadSchedules(ctx context.Context) {
	if h.scheduler == nil {
		return
	}
	if err := h.scheduler.Reload(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to reload schedules")
	}
}

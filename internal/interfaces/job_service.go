package interfaces

import (
	"context"

	"github.com/ternarybob/paritas/internal/models"
)

// JobService manages comparison jobs, their runs, and the cascade rules
// between them
type JobService interface {
	// CreateJob validates the job, fills defaults, assigns id and
	// timestamps, and persists it with status pending.
	CreateJob(ctx context.Context, job *models.ComparisonJob) (*models.ComparisonJob, error)

	GetJob(ctx context.Context, id string) (*models.ComparisonJob, error)
	ListJobs(ctx context.Context) ([]*models.ComparisonJob, error)

	// UpdateJob applies a partial update. Touched URLs must still form
	// a valid, distinct pair.
	UpdateJob(ctx context.Context, id string, update *models.JobUpdate) (*models.ComparisonJob, error)

	// DeleteJob removes the job, its runs, their registry rows, their
	// events, and (best-effort) their artifact directories.
	DeleteJob(ctx context.Context, id string) error

	// MigrateLegacy converts legacy single-URL jobs. Idempotent;
	// returns the count migrated.
	MigrateLegacy(ctx context.Context) (int, error)

	// EnqueueRun creates a queued Run for the job and hands it to the
	// pipeline queue.
	EnqueueRun(ctx context.Context, jobID, triggeredBy string) (*models.Run, error)

	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context) ([]*models.Run, error)
	ListRunsForJob(ctx context.Context, jobID string) ([]*models.Run, error)
	ListRunArtifacts(ctx context.Context, runID string) ([]*models.RunArtifact, error)
}

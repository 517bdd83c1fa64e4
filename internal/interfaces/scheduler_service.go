package interfaces

import "context"

// SchedulerService triggers runs for jobs that carry a cron schedule
type SchedulerService interface {
	Start() error
	Stop() error

	// Reload resyncs cron entries against the jobs currently in the
	// snapshot. Called at startup and after job create/update/delete.
	Reload(ctx context.Context) error

	// ScheduledJobIDs lists the job ids with an active cron entry.
	ScheduledJobIDs() []string
}

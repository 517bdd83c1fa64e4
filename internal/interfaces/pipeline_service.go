package interfaces

import "context"

// PipelineService owns the run workers: it polls the queue, executes
// runs through the stage sequence, and records outcomes
type PipelineService interface {
	Start() error
	Stop() error

	// Recover marks runs left in status running by a previous process
	// as failed and attaches an aborted-on-restart log artifact. Queued
	// runs are re-enqueued in case their message was lost with the
	// previous process. Called once at startup before workers poll.
	Recover(ctx context.Context) (int, error)

	// CancelRun requests cancellation of an in-flight run. No-op when
	// the run is not currently executing on this process.
	CancelRun(runID string) bool
}

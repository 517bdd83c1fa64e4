package models

import "time"

// RunStatus represents the state of a pipeline run
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one execution of a comparison job. A run advances at most once
// through queued -> running -> {completed, failed}; re-running a job
// always creates a new Run.
type Run struct {
	ID          string     `json:"id"`
	JobID       string     `json:"jobId"`
	Status      RunStatus  `json:"status"`
	TriggeredBy string     `json:"triggeredBy"` // "api", "schedule", or free-form
	TriggeredAt time.Time  `json:"triggeredAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"` // set iff status is terminal
	Error       string     `json:"error,omitempty"`       // failing stage and reason when status=failed
}

// IsTerminal reports whether the run has reached a final state
func (r *Run) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// ArtifactType classifies a run artifact for listing and display
type ArtifactType string

const (
	ArtifactTypeLog        ArtifactType = "log"
	ArtifactTypeScreenshot ArtifactType = "screenshot"
	ArtifactTypeReport     ArtifactType = "report"
	ArtifactTypeOther      ArtifactType = "other"
)

// RunArtifact is a typed, labeled reference to a file produced during a
// run. Paths are logical, always of the form data/artifacts/{runId}/...,
// and resolve against the storage layer's data directory. Artifacts are
// append-only within a run and deleted only with the owning job.
type RunArtifact struct {
	ID        string       `json:"id"`
	RunID     string       `json:"runId"`
	Type      ArtifactType `json:"type"`
	Label     string       `json:"label"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"createdAt"`
}

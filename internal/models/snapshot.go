package models

import (
	"encoding/json"
	"time"
)

// SnapshotVersion is the current on-disk snapshot format version.
// Version 1 was the legacy single-URL job list; version 2 introduced
// ComparisonJobs, Runs, and the artifact registry.
const SnapshotVersion = 2

// StorageSnapshot is the durable top-level aggregate: every job, run,
// and artifact registration the control plane knows about. The storage
// layer owns it exclusively; everything else holds short-lived copies.
type StorageSnapshot struct {
	Version        int              `json:"version"`
	ComparisonJobs []*ComparisonJob `json:"comparisonJobs"`
	Runs           []*Run           `json:"runs"`
	Artifacts      []*RunArtifact   `json:"artifacts"`
	Metadata       SnapshotMetadata `json:"metadata"`

	// LegacyJobs is tolerated on read and converted by migration.
	// It is never written back.
	LegacyJobs []*LegacyJob `json:"jobs,omitempty"`
}

// SnapshotMetadata records migration history and freeform notes
type SnapshotMetadata struct {
	LastMigration *time.Time `json:"lastMigration,omitempty"`
	Notes         []string   `json:"notes,omitempty"`
}

// LegacyJob is the pre-version-2 job shape with a single source/target
// URL pair and no crawl or test configuration.
type LegacyJob struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SourceURL string    `json:"sourceUrl"`
	TargetURL string    `json:"targetUrl"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// NewEmptySnapshot returns a snapshot at the current version with no entities
func NewEmptySnapshot() *StorageSnapshot {
	return &StorageSnapshot{
		Version:        SnapshotVersion,
		ComparisonJobs: []*ComparisonJob{},
		Runs:           []*Run{},
		Artifacts:      []*RunArtifact{},
	}
}

// Clone returns a deep copy via JSON round-trip, so callers can hand out
// snapshots without exposing the storage layer's internal state.
func (s *StorageSnapshot) Clone() (*StorageSnapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var copied StorageSnapshot
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, err
	}
	if copied.ComparisonJobs == nil {
		copied.ComparisonJobs = []*ComparisonJob{}
	}
	if copied.Runs == nil {
		copied.Runs = []*Run{}
	}
	if copied.Artifacts == nil {
		copied.Artifacts = []*RunArtifact{}
	}
	return &copied, nil
}

// FindJob returns the job with the given id, or nil
func (s *StorageSnapshot) FindJob(id string) *ComparisonJob {
	for _, job := range s.ComparisonJobs {
		if job.ID == id {
			return job
		}
	}
	return nil
}

// FindRun returns the run with the given id, or nil
func (s *StorageSnapshot) FindRun(id string) *Run {
	for _, run := range s.Runs {
		if run.ID == id {
			return run
		}
	}
	return nil
}

// RunsForJob returns all runs belonging to the given job, in insertion order
func (s *StorageSnapshot) RunsForJob(jobID string) []*Run {
	var runs []*Run
	for _, run := range s.Runs {
		if run.JobID == jobID {
			runs = append(runs, run)
		}
	}
	return runs
}

// ArtifactsForRun returns all artifacts registered to the given run,
// in registration order
func (s *StorageSnapshot) ArtifactsForRun(runID string) []*RunArtifact {
	var artifacts []*RunArtifact
	for _, artifact := range s.Artifacts {
		if artifact.RunID == runID {
			artifacts = append(artifacts, artifact)
		}
	}
	return artifacts
}

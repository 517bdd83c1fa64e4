package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique comparison-job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewRunID generates a unique run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewArtifactID generates a unique artifact ID with the "art_" prefix
func NewArtifactID() string {
	return "art_" + uuid.New().String()
}

// NewEventID generates a unique run-event ID with the "evt_" prefix
func NewEventID() string {
	return "evt_" + uuid.New().String()
}

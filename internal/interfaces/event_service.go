package interfaces

import (
	"context"

	"github.com/ternarybob/paritas/internal/models"
)

// EventService manages batch persistence of pipeline run events
type EventService interface {
	Start() error
	Stop() error

	// Append queues one event for the run. Non-blocking; events are
	// flushed in batches.
	Append(ctx context.Context, runID, stage, level, message string)

	// GetEvents returns up to limit events for a run in append order.
	GetEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error)

	// GetEventsByLevel filters by level.
	GetEventsByLevel(ctx context.Context, runID, level string, limit int) ([]models.RunEvent, error)

	// DeleteEvents removes all events for a run (job-deletion cascade).
	DeleteEvents(ctx context.Context, runID string) error

	// CountEvents returns the number of stored events for a run.
	CountEvents(ctx context.Context, runID string) (int, error)
}

// EventStorage - persistence behind the EventService
type EventStorage interface {
	AppendEvent(ctx context.Context, event *models.RunEvent) error
	AppendEvents(ctx context.Context, events []*models.RunEvent) error
	GetEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error)
	GetEventsByLevel(ctx context.Context, runID, level string, limit int) ([]models.RunEvent, error)
	DeleteEvents(ctx context.Context, runID string) error
	CountEvents(ctx context.Context, runID string) (int, error)
}

package badger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// eventSequence guarantees unique keys when events land within the same nanosecond
var eventSequence uint64

// EventStorage persists run events in badgerhold, indexed by run id,
// level, and sequence
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates an EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EventStorage) AppendEvent(ctx context.Context, event *models.RunEvent) error {
	seq := atomic.AddUint64(&eventSequence, 1)
	if event.Sequence == "" {
		event.Sequence = fmt.Sprintf("%d_%010d", time.Now().UnixNano(), seq)
	}
	key := fmt.Sprintf("%s_%s", event.RunIDField, event.Sequence)

	if err := s.db.Store().Insert(key, event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *EventStorage) AppendEvents(ctx context.Context, events []*models.RunEvent) error {
	for _, event := range events {
		if err := s.AppendEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *EventStorage) GetEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error) {
	var events []models.RunEvent
	query := badgerhold.Where("RunIDField").Eq(runID).SortBy("Sequence")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

func (s *EventStorage) GetEventsByLevel(ctx context.Context, runID, level string, limit int) ([]models.RunEvent, error) {
	var events []models.RunEvent
	query := badgerhold.Where("RunIDField").Eq(runID).And("Level").Eq(level).SortBy("Sequence")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to get events by level: %w", err)
	}
	return events, nil
}

func (s *EventStorage) DeleteEvents(ctx context.Context, runID string) error {
	if err := s.db.Store().DeleteMatching(&models.RunEvent{}, badgerhold.Where("RunIDField").Eq(runID)); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

func (s *EventStorage) CountEvents(ctx context.Context, runID string) (int, error) {
	count, err := s.db.Store().Count(&models.RunEvent{}, badgerhold.Where("RunIDField").Eq(runID))
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int(count), nil
}

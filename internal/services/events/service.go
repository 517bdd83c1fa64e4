package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

const (
	flushInterval = time.Second
	flushSize     = 64
)

// Service implements EventService with batched persistence. Appends land
// in a pending buffer and are flushed on a timer or when the buffer
// fills; reads flush first so they always see the latest events.
type Service struct {
	storage interfaces.EventStorage
	logger  arbor.ILogger

	mu      sync.Mutex
	pending []*models.RunEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ interfaces.EventService = (*Service)(nil)

// NewService creates the run event service
func NewService(storage interfaces.EventStorage, logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		storage: storage,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the periodic flush goroutine
func (s *Service) Start() error {
	s.wg.Add(1)
	go s.flushLoop()
	return nil
}

// Stop flushes remaining events and stops the flush goroutine
func (s *Service) Stop() error {
	s.cancel()
	s.wg.Wait()
	s.flush()
	return nil
}

func (s *Service) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.ctx.Done():
			return
		}
	}
}

// flush persists and clears the pending buffer
func (s *Service) flush() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if err := s.storage.AppendEvents(context.Background(), batch); err != nil {
		s.logger.Warn().Err(err).Int("event_count", len(batch)).Msg("Failed to flush run events")
	}
}

// Append queues one event for the run. The write is buffered; GetEvents
// and CountEvents flush before reading.
func (s *Service) Append(ctx context.Context, runID, stage, level, message string) {
	if runID == "" || message == "" {
		return
	}

	now := time.Now()
	event := &models.RunEvent{
		ID:            common.NewEventID(),
		Timestamp:     now.Format("15:04:05.000"),
		FullTimestamp: now.Format(time.RFC3339Nano),
		Level:         normalizeLevel(level),
		RunIDField:    runID,
		Stage:         stage,
		Message:       message,
	}

	s.mu.Lock()
	s.pending = append(s.pending, event)
	full := len(s.pending) >= flushSize
	s.mu.Unlock()

	if full {
		s.flush()
	}
}

func (s *Service) GetEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error) {
	s.flush()
	return s.storage.GetEvents(ctx, runID, limit)
}

func (s *Service) GetEventsByLevel(ctx context.Context, runID, level string, limit int) ([]models.RunEvent, error) {
	s.flush()
	return s.storage.GetEventsByLevel(ctx, runID, normalizeLevel(level), limit)
}

func (s *Service) DeleteEvents(ctx context.Context, runID string) error {
	s.mu.Lock()
	kept := s.pending[:0]
	for _, event := range s.pending {
		if event.RunIDField != runID {
			kept = append(kept, event)
		}
	}
	s.pending = kept
	s.mu.Unlock()

	return s.storage.DeleteEvents(ctx, runID)
}

func (s *Service) CountEvents(ctx context.Context, runID string) (int, error) {
	s.flush()
	return s.storage.CountEvents(ctx, runID)
}

// normalizeLevel maps level spellings onto the four stored values
func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "dbg", "trace":
		return "debug"
	case "warn", "warning", "wrn":
		return "warn"
	case "error", "err", "fatal", "panic":
		return "error"
	default:
		return "info"
	}
}

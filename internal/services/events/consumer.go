package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// Consumer bridges arbor's context channel into the run event store.
// Stage code logs through a correlated logger (WithCorrelationId(runID));
// arbor delivers those entries here in batches and the consumer persists
// the ones at or above the configured minimum level.
type Consumer struct {
	storage       interfaces.EventStorage
	logger        arbor.ILogger
	channel       chan []arbormodels.LogEvent
	minEventLevel arbor.LogLevel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a log consumer persisting run-correlated entries
func NewConsumer(storage interfaces.EventStorage, logger arbor.ILogger, minEventLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		storage:       storage,
		logger:        logger,
		channel:       make(chan []arbormodels.LogEvent, 10),
		minEventLevel: parseLogLevel(minEventLevel),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// parseLogLevel converts a level string to arbor.LogLevel
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

// GetChannel returns the channel to register with arbor via SetChannel
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Start launches the consumer goroutine
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	return nil
}

// Stop shuts down the consumer and waits for in-flight batches
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Consumer) consume() {
	defer c.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			// Log without correlation so the entry cannot re-enter the channel
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Run event consumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			c.processBatch(batch)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) processBatch(batch []arbormodels.LogEvent) {
	byRun := make(map[string][]*models.RunEvent)

	for _, entry := range batch {
		runID := entry.CorrelationID
		if runID == "" {
			continue
		}
		// HTTP middleware correlates requests too; those entries are
		// request traces, not run history.
		if strings.HasPrefix(entry.Message, "HTTP request") {
			continue
		}
		if !c.shouldPersist(entry.Level) {
			continue
		}
		byRun[runID] = append(byRun[runID], transformEntry(entry))
	}

	for runID, events := range byRun {
		if err := c.storage.AppendEvents(c.ctx, events); err != nil {
			c.logger.Warn().
				Err(err).
				Str("run_id", runID).
				Int("event_count", len(events)).
				Msg("Failed to persist bridged run events")
		}
	}
}

// shouldPersist applies the min_event_level threshold
func (c *Consumer) shouldPersist(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= c.minEventLevel
}

// transformEntry converts an arbor log entry to a RunEvent. The "stage"
// field moves into the Stage column; remaining fields fold into the
// message as key=value pairs.
func transformEntry(entry arbormodels.LogEvent) *models.RunEvent {
	var stage string
	message := entry.Message

	if len(entry.Fields) > 0 {
		var extra []string
		for key, value := range entry.Fields {
			switch key {
			case "stage":
				stage = fmt.Sprintf("%v", value)
			case "run_id":
				// Already carried by the correlation id
			default:
				extra = append(extra, fmt.Sprintf("%s=%v", key, value))
			}
		}
		for _, field := range extra {
			message += " " + field
		}
	}

	return &models.RunEvent{
		ID:            common.NewEventID(),
		Timestamp:     entry.Timestamp.Format("15:04:05.000"),
		FullTimestamp: entry.Timestamp.Format(time.RFC3339Nano),
		Level:         normalizeLevel(entry.Level.String()),
		RunIDField:    entry.CorrelationID,
		Stage:         stage,
		Message:       message,
	}
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// storedMessage wraps a RunMessage with queue bookkeeping
type storedMessage struct {
	ID           string            `json:"id"`
	Body         models.RunMessage `json:"body"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
	VisibleAt    time.Time         `json:"visible_at"`
	ReceiveCount int               `json:"receive_count"`
}

// RunQueue is a persistent queue over Badger with visibility timeouts.
// Unacked messages become visible again after the timeout; messages
// received more than maxReceive times are dropped so a poison run
// cannot loop forever (startup recovery fails the run itself).
//
// Keys:
//
//	queue:{name}:msg:{id}                    message JSON
//	queue:{name}:index:{visibleAt}:{id}      visibility index, zero-padded
//	                                         nanos so lexical order is
//	                                         chronological order
type RunQueue struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewRunQueue creates a Badger-backed run queue
func NewRunQueue(db *badger.DB, logger arbor.ILogger, visibilityTimeout time.Duration, maxReceive int) (*RunQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &RunQueue{
		db:                db,
		queueName:         "runs",
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

// Start is a no-op; the database is owned by the caller
func (q *RunQueue) Start() error {
	q.logger.Debug().Str("queue", q.queueName).Msg("Run queue started")
	return nil
}

// Stop is a no-op; the database is owned by the caller
func (q *RunQueue) Stop() error {
	return nil
}

// Enqueue appends a run message, immediately visible
func (q *RunQueue) Enqueue(ctx context.Context, msg *models.RunMessage) error {
	if msg == nil || msg.RunID == "" {
		return errors.New("run message requires a run id")
	}

	id := uuid.New().String()
	now := time.Now()
	stored := storedMessage{
		ID:         id,
		Body:       *msg,
		EnqueuedAt: now,
		VisibleAt:  now,
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(q.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(stored.VisibleAt, id), []byte{})
	})
}

// Receive pulls the oldest visible message. The returned ack function
// removes the message; an unacked message is redelivered after the
// visibility timeout. Returns models.ErrNoMessage when nothing is ready.
func (q *RunQueue) Receive(ctx context.Context) (*models.RunMessage, func() error, error) {
	var claimed storedMessage
	var claimedID string
	var oldIndexKey []byte

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := q.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			ts, id, err := q.parseIndexKey(key)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Index keys sort by visibility time; nothing later is ready either.
				break
			}

			msgItem, err := txn.Get(q.msgKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Dangling index entry; drop it and keep scanning.
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var candidate storedMessage
			if err := msgItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &candidate)
			}); err != nil {
				return err
			}

			if candidate.ReceiveCount >= q.maxReceive {
				q.logger.Warn().
					Str("run_id", candidate.Body.RunID).
					Int("receive_count", candidate.ReceiveCount).
					Msg("Dropping run message after max receives")
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(q.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			claimed = candidate
			claimedID = id
			oldIndexKey = key
			found = true
			break
		}

		if !found {
			return models.ErrNoMessage
		}

		claimed.ReceiveCount++
		claimed.VisibleAt = time.Now().Add(q.visibilityTimeout)

		data, err := json.Marshal(claimed)
		if err != nil {
			return err
		}
		if err := txn.Set(q.msgKey(claimedID), data); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(q.indexKey(claimed.VisibleAt, claimedID), []byte{})
	})
	if err != nil {
		return nil, nil, err
	}

	ack := func() error {
		return q.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(q.msgKey(claimedID))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return nil // already acked
				}
				return err
			}

			var current storedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			if err := txn.Delete(q.indexKey(current.VisibleAt, claimedID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return txn.Delete(q.msgKey(claimedID))
		})
	}

	body := claimed.Body
	return &body, ack, nil
}

// Length reports the number of currently visible messages
func (q *RunQueue) Length(ctx context.Context) (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := q.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ts, _, err := q.parseIndexKey(it.Item().Key())
			if err != nil {
				continue
			}
			if ts.After(now) {
				break
			}
			count++
		}
		return nil
	})
	return count, err
}

func (q *RunQueue) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", q.queueName))
}

func (q *RunQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", q.queueName, id))
}

func (q *RunQueue) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string sorting matches numeric sorting
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", q.queueName, visibleAt.UnixNano(), id))
}

func (q *RunQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := q.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 22 { // 20 digits + colon + at least one id char
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}

var _ interfaces.RunQueue = (*RunQueue)(nil)

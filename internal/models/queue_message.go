package models

import (
	"errors"
	"time"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// RunMessage is the structure stored in the run queue.
// Keep it simple - just enough to dispatch the run.
type RunMessage struct {
	RunID      string    `json:"run_id"`
	JobID      string    `json:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

package interfaces

import (
	"context"

	"github.com/ternarybob/paritas/internal/models"
)

// RunQueue manages the durable run dispatch queue
type RunQueue interface {
	Start() error
	Stop() error

	// Enqueue appends a run message.
	Enqueue(ctx context.Context, msg *models.RunMessage) error

	// Receive returns the oldest visible message plus an ack function
	// that removes it. Unacked messages become visible again after the
	// visibility timeout. Returns models.ErrNoMessage when empty.
	Receive(ctx context.Context) (*models.RunMessage, func() error, error)

	// Length reports the number of visible messages.
	Length(ctx context.Context) (int, error)
}

package workqueue

import (
	"context"
	"time"
)

// Broker is a durable queue with consumer-group claim semantics: an item read by
// one consumer of a group is invisible to the other consumers of that group until
// it is acknowledged or reclaimed.
type Broker interface {
	Publish(ctx context.Context, item Item) error
	// ReadOne claims the next unread item for consumer, or returns ErrNoItems.
	ReadOne(ctx context.Context, group, consumer string) (Item, error)
	// Ack closes a delivery. Acknowledging the same handle twice is a no-op.
	Ack(ctx context.Context, group string, handle Handle) error
	// Reclaim republishes items claimed longer than minIdle ago with their attempt
	// count incremented, and acknowledges the stale deliveries.
	Reclaim(ctx context.Context, group, consumer string, minIdle time.Duration) (int, error)
}

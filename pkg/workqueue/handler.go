package workqueue

import "context"

// Handler processes one item. On success it returns the items to publish next.
type Handler interface {
	Handle(ctx context.Context, item Item) ([]Item, error)
}

type HandlerFunc func(ctx context.Context, item Item) ([]Item, error)

func (f HandlerFunc) Handle(ctx context.Context, item Item) ([]Item, error) {
	return f(ctx, item)
}

// DeadLetterSink records items that will not be retried.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, item Item, reason, lastError string) error
}

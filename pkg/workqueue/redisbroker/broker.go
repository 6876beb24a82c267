// Package redisbroker implements workqueue.Broker on Redis Streams consumer groups.
package redisbroker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/onboarding/pkg/workqueue"
)

const payloadField = "item"

type Options struct {
	Stream string
	// Block bounds how long ReadOne waits for a new entry. Zero means do not block.
	Block time.Duration
	// MaxLen approximately caps the stream length. Zero keeps everything.
	MaxLen       int64
	ReclaimBatch int64
}

type Broker struct {
	client *redis.Client
	opts   Options

	groups sync.Map // group name -> struct{}
}

var _ workqueue.Broker = (*Broker)(nil)

func New(client *redis.Client, opts Options) (*Broker, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", workqueue.ErrInvalidConfig)
	}
	if strings.TrimSpace(opts.Stream) == "" {
		return nil, fmt.Errorf("%w: stream is required", workqueue.ErrInvalidConfig)
	}
	if opts.ReclaimBatch == 0 {
		opts.ReclaimBatch = 100
	}
	return &Broker{client: client, opts: opts}, nil
}

func (b *Broker) Publish(ctx context.Context, item workqueue.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	payload, err := workqueue.Encode(item)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: b.opts.Stream,
		Values: map[string]any{payloadField: payload},
	}
	if b.opts.MaxLen > 0 {
		args.MaxLen = b.opts.MaxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redisbroker xadd: %w", err)
	}
	return nil
}

func (b *Broker) ReadOne(ctx context.Context, group, consumer string) (workqueue.Item, error) {
	if err := b.ensureGroup(ctx, group); err != nil {
		return workqueue.Item{}, err
	}

	block := b.opts.Block
	if block <= 0 {
		block = -1
	}
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{b.opts.Stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return workqueue.Item{}, workqueue.ErrNoItems
	}
	if err != nil {
		return workqueue.Item{}, fmt.Errorf("redisbroker xreadgroup: %w", err)
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			item, err := decode(msg)
			if err != nil {
				// an undecodable entry can never succeed; close it so it does not stay pending
				_ = b.client.XAck(ctx, b.opts.Stream, group, msg.ID).Err()
				return workqueue.Item{}, err
			}
			return item, nil
		}
	}
	return workqueue.Item{}, workqueue.ErrNoItems
}

func (b *Broker) Ack(ctx context.Context, group string, handle workqueue.Handle) error {
	if handle == "" {
		return nil
	}
	if err := b.client.XAck(ctx, b.opts.Stream, group, string(handle)).Err(); err != nil {
		return fmt.Errorf("redisbroker xack: %w", err)
	}
	return nil
}

func (b *Broker) Reclaim(ctx context.Context, group, consumer string, minIdle time.Duration) (int, error) {
	if err := b.ensureGroup(ctx, group); err != nil {
		return 0, err
	}

	reclaimed := 0
	start := "0-0"
	for {
		msgs, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   b.opts.Stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    b.opts.ReclaimBatch,
		}).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("redisbroker xautoclaim: %w", err)
		}

		for _, msg := range msgs {
			item, decodeErr := decode(msg)
			if decodeErr == nil {
				item.Attempts++
				if err := b.Publish(ctx, item.Requeued(time.Time{})); err != nil {
					return reclaimed, err
				}
				reclaimed++
			}
			if err := b.client.XAck(ctx, b.opts.Stream, group, msg.ID).Err(); err != nil {
				return reclaimed, fmt.Errorf("redisbroker xack reclaimed: %w", err)
			}
		}

		if next == "" || next == "0-0" {
			return reclaimed, nil
		}
		start = next
	}
}

func (b *Broker) ensureGroup(ctx context.Context, group string) error {
	if _, ok := b.groups.Load(group); ok {
		return nil
	}
	err := b.client.XGroupCreateMkStream(ctx, b.opts.Stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redisbroker xgroup create: %w", err)
	}
	b.groups.Store(group, struct{}{})
	return nil
}

func decode(msg redis.XMessage) (workqueue.Item, error) {
	raw, ok := msg.Values[payloadField]
	if !ok {
		return workqueue.Item{}, fmt.Errorf("redisbroker: entry %s has no %q field", msg.ID, payloadField)
	}
	s, ok := raw.(string)
	if !ok {
		return workqueue.Item{}, fmt.Errorf("redisbroker: entry %s has non-string payload", msg.ID)
	}
	item, err := workqueue.Decode([]byte(s))
	if err != nil {
		return workqueue.Item{}, err
	}
	item.Handle = workqueue.Handle(msg.ID)
	return item, nil
}

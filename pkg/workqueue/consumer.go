package workqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Outcome string

const (
	OutcomeIdle         Outcome = "idle"
	OutcomeSucceeded    Outcome = "succeeded"
	OutcomeRequeued     Outcome = "requeued"
	OutcomeDeadLettered Outcome = "dead_lettered"
	OutcomeDropped      Outcome = "dropped"
)

var tracer = otel.Tracer("github.com/iota-uz/onboarding/pkg/workqueue")

// Consumer runs the sequential read-process-ack loop for one consumer of a group.
type Consumer struct {
	broker  Broker
	handler Handler
	opts    ConsumerOptions

	m *metrics
}

func NewConsumer(broker Broker, handler Handler, opts ConsumerOptions) (*Consumer, error) {
	if broker == nil {
		return nil, invalidConfig("broker is required")
	}
	if handler == nil {
		return nil, invalidConfig("handler is required")
	}
	if opts.Group == "" {
		return nil, invalidConfig("group is required")
	}
	if opts.Consumer == "" {
		return nil, invalidConfig("consumer is required")
	}
	if opts.MaxAttempts < 0 {
		return nil, invalidConfig("max attempts must be non-negative, got %d", opts.MaxAttempts)
	}
	opts.setDefaults()
	opts.Logger = opts.Logger.WithField("consumer", opts.Consumer)

	return &Consumer{
		broker:  broker,
		handler: handler,
		opts:    opts,
		m:       getMetrics(),
	}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome, err := c.ProcessOne(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).Warn("workqueue: process tick failed")
		}
		if err == nil && outcome != OutcomeIdle {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.opts.Clock.After(c.opts.IdleBackoff):
		}
	}
}

// ProcessOne reads and settles at most one item. The returned error reports broker
// failures only; handler failures are settled through the outcome.
func (c *Consumer) ProcessOne(ctx context.Context) (Outcome, error) {
	item, err := c.broker.ReadOne(ctx, c.opts.Group, c.opts.Consumer)
	if errors.Is(err, ErrNoItems) {
		c.m.readTotal.WithLabelValues(c.opts.Group, "empty").Inc()
		return OutcomeIdle, nil
	}
	if err != nil {
		c.m.readTotal.WithLabelValues(c.opts.Group, "error").Inc()
		return OutcomeIdle, fmt.Errorf("workqueue read: %w", err)
	}
	c.m.readTotal.WithLabelValues(c.opts.Group, "item").Inc()

	log := c.opts.Logger.WithFields(logFields(item, c.opts.Group, c.opts.Consumer))

	if item.Attempts >= c.opts.MaxAttempts {
		c.ack(ctx, item)
		c.deadLetter(ctx, item, DeadReasonMaxAttempts, "attempt ceiling reached")
		log.Warn("workqueue: attempt ceiling reached; item dropped")
		c.m.processTotal.WithLabelValues(item.Kind, string(OutcomeDropped)).Inc()
		return OutcomeDropped, nil
	}

	if err := c.waitAvailable(ctx, item); err != nil {
		return OutcomeIdle, err
	}

	item.Attempts++
	log = log.WithField("attempts", item.Attempts)

	start := c.opts.Clock.Now()
	next, handleErr := c.handle(ctx, item)
	latency := c.opts.Clock.Since(start)

	c.ack(ctx, item)

	if handleErr != nil {
		c.opts.ErrorLogger(log, handleErr)

		if Terminal(handleErr) && !c.opts.RetryTerminal {
			c.deadLetter(ctx, item, DeadReasonTerminal, c.lastError(handleErr))
			c.record(item.Kind, OutcomeDeadLettered, latency)
			return OutcomeDeadLettered, nil
		}

		delay := c.retryDelay(item.Attempts)
		retry := item.Requeued(c.opts.Clock.Now().Add(delay))
		if err := c.broker.Publish(ctx, retry); err != nil {
			c.record(item.Kind, OutcomeRequeued, latency)
			return OutcomeRequeued, fmt.Errorf("workqueue republish %s: %w", item, err)
		}
		c.m.publishTotal.WithLabelValues(item.Kind, "retry").Inc()
		c.record(item.Kind, OutcomeRequeued, latency)
		return OutcomeRequeued, nil
	}

	var publishErrs []error
	for _, child := range next {
		if err := c.broker.Publish(ctx, child); err != nil {
			publishErrs = append(publishErrs, fmt.Errorf("publish %s: %w", child, err))
			continue
		}
		c.m.publishTotal.WithLabelValues(child.Kind, "cascade").Inc()
	}
	if len(next) > 0 {
		log.WithField("children", len(next)).Info("workqueue: published follow-up items")
	}

	c.record(item.Kind, OutcomeSucceeded, latency)
	return OutcomeSucceeded, errors.Join(publishErrs...)
}

func (c *Consumer) handle(ctx context.Context, item Item) (next []Item, err error) {
	ctx, span := tracer.Start(ctx, "workqueue.handle")
	span.SetAttributes(
		attribute.String("workqueue.kind", item.Kind),
		attribute.String("workqueue.entity_id", item.EntityID),
		attribute.String("workqueue.trace_id", item.TraceID),
		attribute.Int("workqueue.attempts", item.Attempts),
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workqueue: handler panicked: %v", r)
			next = nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	handleCtx := ctx
	if c.opts.HandleTimeout > 0 {
		var cancel context.CancelFunc
		handleCtx, cancel = context.WithTimeout(ctx, c.opts.HandleTimeout)
		defer cancel()
	}
	return c.handler.Handle(handleCtx, item)
}

func (c *Consumer) waitAvailable(ctx context.Context, item Item) error {
	if item.AvailableAt.IsZero() {
		return nil
	}
	d := item.AvailableAt.Sub(c.opts.Clock.Now())
	if d <= 0 {
		return nil
	}
	if d > c.opts.MaxBackoff {
		d = c.opts.MaxBackoff
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.opts.Clock.After(d):
		return nil
	}
}

func (c *Consumer) ack(ctx context.Context, item Item) {
	if err := c.broker.Ack(ctx, c.opts.Group, item.Handle); err != nil {
		c.opts.Logger.WithError(err).WithFields(logFields(item, c.opts.Group, c.opts.Consumer)).Warn("workqueue: ack failed")
	}
}

func (c *Consumer) deadLetter(ctx context.Context, item Item, reason, lastError string) {
	c.m.deadTotal.WithLabelValues(item.Kind, reason).Inc()
	if c.opts.DeadLetters == nil {
		return
	}
	if err := c.opts.DeadLetters.DeadLetter(ctx, item, reason, lastError); err != nil {
		c.opts.Logger.WithError(err).WithFields(logFields(item, c.opts.Group, c.opts.Consumer)).Warn("workqueue: dead letter failed")
	}
}

func (c *Consumer) record(kind string, outcome Outcome, latency time.Duration) {
	c.m.processTotal.WithLabelValues(kind, string(outcome)).Inc()
	c.m.processLatency.WithLabelValues(kind, string(outcome)).Observe(latency.Seconds())
}

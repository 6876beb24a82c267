package workqueue

import (
	"context"
	"errors"
)

// Reaper periodically returns stale claims of crashed consumers to the queue.
type Reaper struct {
	broker Broker
	opts   ReaperOptions
	m      *metrics
}

func NewReaper(broker Broker, opts ReaperOptions) (*Reaper, error) {
	if broker == nil {
		return nil, invalidConfig("broker is required")
	}
	if opts.Group == "" || opts.Consumer == "" {
		return nil, invalidConfig("group and consumer are required")
	}
	opts.setDefaults()
	return &Reaper{broker: broker, opts: opts, m: getMetrics()}, nil
}

func (r *Reaper) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	ticker := r.opts.Clock.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}

		if _, err := r.ReapOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).WithField("group", r.opts.Group).Warn("workqueue: reaper tick failed")
		}
	}
}

func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	n, err := r.broker.Reclaim(ctx, r.opts.Group, r.opts.Consumer, r.opts.ClaimTimeout)
	if n > 0 {
		r.m.reclaimedTotal.WithLabelValues(r.opts.Group).Add(float64(n))
		r.opts.Logger.WithField("group", r.opts.Group).WithField("reclaimed", n).Info("workqueue: reclaimed stale claims")
	}
	return n, err
}

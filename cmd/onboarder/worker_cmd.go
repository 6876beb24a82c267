package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
	"github.com/iota-uz/onboarding/modules/onboarding/infrastructure/persistence"
	"github.com/iota-uz/onboarding/pkg/logging"
	"github.com/iota-uz/onboarding/pkg/metrics"
	"github.com/iota-uz/onboarding/pkg/workqueue"
	"github.com/iota-uz/onboarding/pkg/workqueue/pgbroker"
)

func newWorkerCmd() *cobra.Command {
	var seed []string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume work items until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e := openEnv()
			defer e.close()

			seedItems := make([]workqueue.Item, 0, len(seed))
			for _, s := range seed {
				item, err := parseItemRef(s)
				if err != nil {
					return withCode(exitUsage, err)
				}
				seedItems = append(seedItems, item)
			}
			return runWorker(ctx, e, seedItems)
		},
	}
	cmd.Flags().StringSliceVar(&seed, "seed", nil, "publish Kind:ID items before consuming (useful with QUEUE_BROKER=memory)")
	return cmd
}

func runWorker(ctx context.Context, e *env, seed []workqueue.Item) error {
	conf := e.conf
	if conf.OpenTelemetry.Enabled {
		cleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer cleanup()
		e.log.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	ctx, err := e.db(ctx)
	if err != nil {
		return err
	}
	broker, err := e.queue(ctx)
	if err != nil {
		return err
	}
	for _, item := range seed {
		if err := broker.Publish(ctx, item); err != nil {
			return withCode(exitBroker, fmt.Errorf("seed %s: %w", item, err))
		}
	}

	m, err := e.module()
	if err != nil {
		return err
	}
	if err := m.Initialize(ctx); err != nil {
		return withCode(exitUpstream, fmt.Errorf("initialize registries: %w", err))
	}

	q := conf.Queue
	log := e.log.WithFields(logrus.Fields{"group": q.Group, "consumer": q.Consumer})
	consumer, err := workqueue.NewConsumer(broker, m.Handler, workqueue.ConsumerOptions{
		Group:         q.Group,
		Consumer:      q.Consumer,
		MaxAttempts:   q.MaxAttempts,
		IdleBackoff:   q.IdleBackoff,
		MaxBackoff:    q.MaxBackoff,
		RetryTerminal: q.RetryTerminal,
		DeadLetters:   persistence.NewDeadLetterRepository(),
		ErrorLogger: func(log *logrus.Entry, err error) {
			_ = onboarderr.LogError(log, err, nil)
		},
		Logger: log,
	})
	if err != nil {
		return withCode(exitUsage, err)
	}
	reaper, err := workqueue.NewReaper(broker, workqueue.ReaperOptions{
		Group:        q.Group,
		Consumer:     q.Consumer,
		Interval:     q.ReapInterval,
		ClaimTimeout: q.ClaimTimeout,
		Logger:       log,
	})
	if err != nil {
		return withCode(exitUsage, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error { return reaper.Run(ctx) })
	if q.Broker == "postgres" {
		table, err := pgbroker.ParseIdentifier(q.Table)
		if err != nil {
			return withCode(exitUsage, err)
		}
		cleaner, err := pgbroker.NewCleaner(e.pool, table, pgbroker.CleanerOptions{Logger: log})
		if err != nil {
			return withCode(exitUsage, err)
		}
		g.Go(func() error { return cleaner.Run(ctx) })
	}
	if conf.Prometheus.Enabled {
		health := func(r *http.Request) error { return e.pool.Ping(r.Context()) }
		g.Go(func() error {
			return metrics.Serve(ctx, conf.Prometheus.Address, log,
				metrics.NewPrometheusController(conf.Prometheus.Path),
				metrics.NewHealthController("/healthz", health),
			)
		})
	}

	log.Info("worker started")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("worker stopped")
		return nil
	}
	return err
}

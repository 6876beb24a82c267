package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/modules/onboarding"
	"github.com/iota-uz/onboarding/modules/onboarding/infrastructure/directory"
	"github.com/iota-uz/onboarding/modules/onboarding/infrastructure/source"
	"github.com/iota-uz/onboarding/pkg/composables"
	"github.com/iota-uz/onboarding/pkg/configuration"
	"github.com/iota-uz/onboarding/pkg/workqueue"
	"github.com/iota-uz/onboarding/pkg/workqueue/pgbroker"
	"github.com/iota-uz/onboarding/pkg/workqueue/redisbroker"
)

// env holds the process-wide resources a subcommand opens. close releases
// whatever was opened.
type env struct {
	conf   *configuration.Configuration
	log    *logrus.Entry
	pool   *pgxpool.Pool
	redis  *redis.Client
	broker workqueue.Broker
}

func openEnv() *env {
	conf := configuration.Use()
	return &env{
		conf: conf,
		log:  logrus.NewEntry(conf.Logger()).WithField("app", "onboarder"),
	}
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			e.log.WithError(err).Warn("close redis client")
		}
	}
	e.conf.Unload()
}

// db opens the pool once and returns ctx carrying it.
func (e *env) db(ctx context.Context) (context.Context, error) {
	if e.pool == nil {
		pool, err := pgxpool.New(ctx, e.conf.Database.Opts)
		if err != nil {
			return ctx, withCode(exitDB, fmt.Errorf("connect database: %w", err))
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return ctx, withCode(exitDB, fmt.Errorf("ping database: %w", err))
		}
		e.pool = pool
	}
	return composables.WithPool(ctx, e.pool), nil
}

// queue builds the broker QUEUE_BROKER selects. The postgres broker shares the
// database pool.
func (e *env) queue(ctx context.Context) (workqueue.Broker, error) {
	if e.broker != nil {
		return e.broker, nil
	}
	q := e.conf.Queue
	switch q.Broker {
	case "redis":
		opts, err := redis.ParseURL(redisURL(e.conf.RedisURL))
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("invalid REDIS_URL: %w", err))
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, withCode(exitBroker, fmt.Errorf("ping redis: %w", err))
		}
		b, err := redisbroker.New(client, redisbroker.Options{Stream: q.Stream, Block: q.IdleBackoff})
		if err != nil {
			_ = client.Close()
			return nil, withCode(exitUsage, err)
		}
		e.redis = client
		e.broker = b
	case "postgres":
		if _, err := e.db(ctx); err != nil {
			return nil, err
		}
		table, err := pgbroker.ParseIdentifier(q.Table)
		if err != nil {
			return nil, withCode(exitUsage, err)
		}
		b, err := pgbroker.New(e.pool, table)
		if err != nil {
			return nil, withCode(exitUsage, err)
		}
		e.broker = b
	case "memory":
		e.broker = workqueue.NewMemoryBroker(nil)
	default:
		return nil, withCode(exitUsage, fmt.Errorf("unknown QUEUE_BROKER %q", q.Broker))
	}
	return e.broker, nil
}

func redisURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "redis://" + raw
}

func (e *env) module() (*onboarding.Module, error) {
	dir, err := directory.New(e.conf.Directory, e.log)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	fetcher, err := source.New(e.conf.Source, e.log)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	m, err := onboarding.NewModule(onboarding.ModuleOptions{
		Directory:   dir,
		Fetcher:     fetcher,
		CacheSize:   e.conf.Cache.LRUSize,
		NegativeTTL: e.conf.Cache.NegativeTTL,
		ScopeTTL:    e.conf.Cache.ScopeTTL,
		Logger:      e.log,
	})
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return m, nil
}

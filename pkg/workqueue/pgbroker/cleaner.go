package pgbroker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

type CleanerOptions struct {
	Interval  time.Duration
	Retention time.Duration

	Logger *logrus.Entry
	Clock  clockwork.Clock
}

func (o *CleanerOptions) setDefaults() {
	if o.Interval == 0 {
		o.Interval = 1 * time.Minute
	}
	if o.Retention == 0 {
		o.Retention = 7 * 24 * time.Hour
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// Cleaner deletes items that every claiming group has acknowledged and that are
// older than the retention window.
type Cleaner struct {
	pool   *pgxpool.Pool
	table  pgx.Identifier
	claims pgx.Identifier
	opts   CleanerOptions
}

func NewCleaner(pool *pgxpool.Pool, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	opts.setDefaults()
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = logrus.NewEntry(l)
	}
	return &Cleaner{pool: pool, table: table, claims: claimsTable(table), opts: opts}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	ticker := c.opts.Clock.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}

		if err := c.cleanOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).WithField("table", TableLabel(c.table)).Warn("pgbroker: cleaner tick failed")
		}
	}
}

func (c *Cleaner) cleanOnce(ctx context.Context) error {
	cutoff := c.opts.Clock.Now().Add(-c.opts.Retention)

	q := fmt.Sprintf(
		`DELETE FROM %[1]s i
		  WHERE i.created_at < $1
		    AND EXISTS (SELECT 1 FROM %[2]s c WHERE c.item_id = i.id)
		    AND NOT EXISTS (SELECT 1 FROM %[2]s c WHERE c.item_id = i.id AND c.acked_at IS NULL)`,
		c.table.Sanitize(), c.claims.Sanitize(),
	)
	if _, err := c.pool.Exec(ctx, q, cutoff); err != nil {
		return fmt.Errorf("pgbroker cleaner delete: %w", err)
	}
	return nil
}

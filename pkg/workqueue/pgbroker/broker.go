// Package pgbroker implements workqueue.Broker on a pair of Postgres tables:
// the item log and a per-group claims table.
package pgbroker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/onboarding/pkg/workqueue"
)

type Broker struct {
	pool   *pgxpool.Pool
	table  pgx.Identifier
	claims pgx.Identifier
}

var _ workqueue.Broker = (*Broker)(nil)

func New(pool *pgxpool.Pool, table pgx.Identifier) (*Broker, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	return &Broker{pool: pool, table: table, claims: claimsTable(table)}, nil
}

// EnsureSchema creates the item and claims tables when missing.
func (b *Broker) EnsureSchema(ctx context.Context) error {
	items := b.table.Sanitize()
	claims := b.claims.Sanitize()
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS pgcrypto;
CREATE TABLE IF NOT EXISTS %s (
  id         UUID        NOT NULL DEFAULT gen_random_uuid() PRIMARY KEY,
  sequence   BIGSERIAL   NOT NULL,
  payload    JSONB       NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS %s (
  item_id    UUID        NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
  group_name TEXT        NOT NULL,
  consumer   TEXT        NOT NULL,
  claimed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  acked_at   TIMESTAMPTZ NULL,
  PRIMARY KEY (item_id, group_name)
);`, items, claims, items)
	if _, err := b.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pgbroker ensure schema: %w", err)
	}
	return nil
}

func (b *Broker) Publish(ctx context.Context, item workqueue.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	return b.insert(ctx, b.pool, item)
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (b *Broker) insert(ctx context.Context, db queryer, item workqueue.Item) error {
	payload, err := workqueue.Encode(item)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (payload) VALUES ($1) RETURNING id`, b.table.Sanitize())
	var id uuid.UUID
	if err := db.QueryRow(ctx, q, payload).Scan(&id); err != nil {
		return fmt.Errorf("pgbroker publish: %w", err)
	}
	return nil
}

// ReadOne claims the oldest item this group has not claimed yet. The primary key on
// (item_id, group_name) makes the claim exclusive within a group; a lost race is
// reported as ErrNoItems and retried on the next poll.
func (b *Broker) ReadOne(ctx context.Context, group, consumer string) (workqueue.Item, error) {
	q := fmt.Sprintf(
		`WITH candidate AS (
		   SELECT i.id
		     FROM %[1]s i
		    WHERE NOT EXISTS (
		          SELECT 1 FROM %[2]s c
		           WHERE c.item_id = i.id AND c.group_name = $1)
		    ORDER BY i.sequence
		    LIMIT 1
		 ), claimed AS (
		   INSERT INTO %[2]s (item_id, group_name, consumer, claimed_at)
		   SELECT id, $1, $2, now() FROM candidate
		   ON CONFLICT (item_id, group_name) DO NOTHING
		   RETURNING item_id
		 )
		 SELECT i.id, i.payload
		   FROM claimed c
		   JOIN %[1]s i ON i.id = c.item_id`,
		b.table.Sanitize(), b.claims.Sanitize(),
	)

	var (
		id      uuid.UUID
		payload []byte
	)
	err := b.pool.QueryRow(ctx, q, group, consumer).Scan(&id, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return workqueue.Item{}, workqueue.ErrNoItems
	}
	if err != nil {
		return workqueue.Item{}, fmt.Errorf("pgbroker claim: %w", err)
	}

	item, err := workqueue.Decode(payload)
	if err != nil {
		_ = b.Ack(ctx, group, workqueue.Handle(id.String()))
		return workqueue.Item{}, err
	}
	item.Handle = workqueue.Handle(id.String())
	return item, nil
}

func (b *Broker) Ack(ctx context.Context, group string, handle workqueue.Handle) error {
	if handle == "" {
		return nil
	}
	id, err := uuid.Parse(string(handle))
	if err != nil {
		return fmt.Errorf("pgbroker ack: invalid handle %q: %w", handle, err)
	}
	q := fmt.Sprintf(
		`UPDATE %s
		    SET acked_at = now()
		  WHERE item_id = $1 AND group_name = $2 AND acked_at IS NULL`,
		b.claims.Sanitize(),
	)
	if _, err := b.pool.Exec(ctx, q, id, group); err != nil {
		return fmt.Errorf("pgbroker ack: %w", err)
	}
	return nil
}

func (b *Broker) Reclaim(ctx context.Context, group, consumer string, minIdle time.Duration) (int, error) {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := fmt.Sprintf(
		`SELECT c.item_id, i.payload
		   FROM %s c
		   JOIN %s i ON i.id = c.item_id
		  WHERE c.group_name = $1
		    AND c.acked_at IS NULL
		    AND c.claimed_at < $2
		  ORDER BY i.sequence
		  FOR UPDATE OF c SKIP LOCKED`,
		b.claims.Sanitize(), b.table.Sanitize(),
	)
	rows, err := tx.Query(ctx, q, group, time.Now().Add(-minIdle))
	if err != nil {
		return 0, fmt.Errorf("pgbroker reclaim select: %w", err)
	}

	type stale struct {
		id      uuid.UUID
		payload []byte
	}
	var found []stale
	for rows.Next() {
		var s stale
		if err := rows.Scan(&s.id, &s.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("pgbroker reclaim scan: %w", err)
		}
		found = append(found, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("pgbroker reclaim rows: %w", err)
	}

	ackQ := fmt.Sprintf(
		`UPDATE %s SET acked_at = now(), consumer = $3 WHERE item_id = $1 AND group_name = $2`,
		b.claims.Sanitize(),
	)
	reclaimed := 0
	for _, s := range found {
		if item, decodeErr := workqueue.Decode(s.payload); decodeErr == nil {
			item.Attempts++
			if err := b.insert(ctx, tx, item.Requeued(time.Time{})); err != nil {
				return 0, err
			}
			reclaimed++
		}
		if _, err := tx.Exec(ctx, ackQ, s.id, group, consumer); err != nil {
			return 0, fmt.Errorf("pgbroker reclaim ack: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return reclaimed, nil
}

package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/onboarding/pkg/composables"
	"github.com/iota-uz/onboarding/pkg/workqueue"
)

// DeadLetter is a work item that will not be retried, with the reason it stopped.
type DeadLetter struct {
	ID        uuid.UUID `db:"id"`
	Kind      string    `db:"kind"`
	EntityID  string    `db:"entity_id"`
	TraceID   string    `db:"trace_id"`
	Attempts  int       `db:"attempts"`
	Cascade   bool      `db:"cascade"`
	Reason    string    `db:"reason"`
	LastError string    `db:"last_error"`
	CreatedAt time.Time `db:"created_at"`
}

// Item rebuilds a fresh work item for a manual retry.
func (d DeadLetter) Item() workqueue.Item {
	return workqueue.Item{Kind: d.Kind, EntityID: d.EntityID, TraceID: d.TraceID, Cascade: d.Cascade}
}

type DeadLetterRepository struct{}

var _ workqueue.DeadLetterSink = (*DeadLetterRepository)(nil)

func NewDeadLetterRepository() *DeadLetterRepository {
	return &DeadLetterRepository{}
}

func (r *DeadLetterRepository) DeadLetter(ctx context.Context, item workqueue.Item, reason, lastError string) error {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO onboarding_dead_letters (kind, entity_id, trace_id, attempts, cascade, reason, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.Kind, item.EntityID, item.TraceID, item.Attempts, item.Cascade, reason, lastError)
	return mapPgError(err, "insert dead letter")
}

func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(ctx, `
		SELECT id, kind, entity_id, trace_id, attempts, cascade, reason, last_error, created_at
		  FROM onboarding_dead_letters
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, mapPgError(err, "list dead letters")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[DeadLetter])
	if err != nil {
		return nil, errors.Wrap(err, "scan dead letters")
	}
	return out, nil
}

func (r *DeadLetterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `DELETE FROM onboarding_dead_letters WHERE id = $1`, id)
	return mapPgError(err, "delete dead letter")
}

func (r *DeadLetterRepository) Get(ctx context.Context, id uuid.UUID) (DeadLetter, error) {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return DeadLetter{}, err
	}
	rows, err := db.Query(ctx, `
		SELECT id, kind, entity_id, trace_id, attempts, cascade, reason, last_error, created_at
		  FROM onboarding_dead_letters
		 WHERE id = $1`, id)
	if err != nil {
		return DeadLetter{}, mapPgError(err, "get dead letter")
	}
	d, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[DeadLetter])
	if err != nil {
		return DeadLetter{}, mapPgError(err, "get dead letter")
	}
	return d, nil
}

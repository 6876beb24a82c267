package persistence

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
)

func mapPgError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return errors.Wrap(err, op)
	}
	switch pgErr.Code {
	case "23505", "23503": // unique_violation, foreign_key_violation
		return errors.Wrap(&onboarderr.ConflictError{Constraint: pgErr.ConstraintName, Err: pgErr}, op)
	default:
		return errors.Wrap(err, op)
	}
}

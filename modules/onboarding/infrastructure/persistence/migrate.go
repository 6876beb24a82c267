package persistence

import (
	"context"
	_ "embed"

	"github.com/go-faster/errors"

	"github.com/iota-uz/onboarding/pkg/composables"
)

//go:embed schema/onboarding-schema.sql
var schemaSQL string

// Migrate creates the onboarding tables when they are missing.
func Migrate(ctx context.Context) error {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply onboarding schema")
	}
	return nil
}

//go:build integration

package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/pkg/composables"
	"github.com/iota-uz/onboarding/pkg/workqueue"
)

// txContext runs the test inside a transaction that is rolled back afterwards.
func txContext(t *testing.T) context.Context {
	t.Helper()
	dsn := os.Getenv("ONBOARDING_TEST_DSN")
	if dsn == "" {
		t.Skip("ONBOARDING_TEST_DSN is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })

	ctx = composables.WithTx(composables.WithPool(ctx, pool), tx)
	require.NoError(t, Migrate(ctx))
	return ctx
}

func TestStore_Integration_RoundTrip(t *testing.T) {
	ctx := txContext(t)
	s := NewStore()

	org := entity.NewValidatedOrganization(uuid.New(), entity.RawOrganization{ID: "org-1", Name: "Acme"},
		entity.TargetOrganization{ID: "target-acme", ShortCode: "ACME"})
	orgID, err := s.InsertOrganization(ctx, org)
	require.NoError(t, err)
	require.Equal(t, org.ID(), orgID)

	// re-delivery keeps the original id
	again := entity.NewValidatedOrganization(uuid.New(), entity.RawOrganization{ID: "org-1", Name: "Acme"},
		entity.TargetOrganization{ID: "target-acme"})
	againID, err := s.InsertOrganization(ctx, again)
	require.NoError(t, err)
	require.Equal(t, orgID, againID)

	got, err := s.OrganizationIDByName(ctx, "Acme")
	require.NoError(t, err)
	require.Equal(t, orgID, got)
	_, err = s.OrganizationIDByName(ctx, "Ghost")
	require.ErrorIs(t, err, entity.ErrNotFound)

	require.NoError(t, s.InsertProgram(ctx, entity.ProgramRecord{ID: "p-robotics", Name: "Robotics", OrganizationID: orgID}))
	require.NoError(t, s.InsertRole(ctx, entity.RoleRecord{ID: "r-principal", Name: "Principal", OrganizationID: orgID}))

	school := entity.NewValidatedSchool(uuid.New(), entity.RawSchool{ID: "s-1", Name: "North"}, orgID, []string{"p-robotics"})
	schoolID, err := s.InsertSchool(ctx, school)
	require.NoError(t, err)

	class := entity.NewValidatedClass(uuid.New(), entity.RawClass{ID: "c-1", Name: "1A"}, orgID, schoolID, []string{"p-robotics", "sys-math"})
	classID, err := s.InsertClass(ctx, class)
	require.NoError(t, err)

	user := entity.NewValidatedUser(uuid.New(), entity.RawUser{ID: "u-1", GivenName: "Ada", FamilyName: "L", Gender: "female"},
		entity.UserRefs{OrganizationID: orgID, SchoolID: &schoolID, ClassIDs: []uuid.UUID{classID, classID}, RoleIDs: []string{"r-principal"}})
	_, err = s.InsertUser(ctx, user)
	require.NoError(t, err)

	prog, err := s.FindProgram(ctx, "Robotics", orgID)
	require.NoError(t, err)
	require.Equal(t, "p-robotics", prog.ID)

	schools, classes, err := s.FindIDsWithProgram(ctx, "p-robotics", orgID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{schoolID}, schools)
	require.Equal(t, []uuid.UUID{classID}, classes)

	role, err := s.FindRole(ctx, "Principal", orgID)
	require.NoError(t, err)
	require.Equal(t, "r-principal", role.ID)

	gotClass, err := s.ClassIDByName(ctx, "1A", orgID, schoolID)
	require.NoError(t, err)
	require.Equal(t, classID, gotClass)
}

func TestDeadLetterRepository_Integration(t *testing.T) {
	ctx := txContext(t)
	r := NewDeadLetterRepository()

	item := workqueue.Item{Kind: "Class", EntityID: "class-1", TraceID: "t-1", Attempts: 1, Cascade: true}
	require.NoError(t, r.DeadLetter(ctx, item, workqueue.DeadReasonTerminal, "School \"Ghost\" does not exist"))

	letters, err := r.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	require.Equal(t, "class-1", letters[0].EntityID)
	require.Equal(t, workqueue.DeadReasonTerminal, letters[0].Reason)

	got, err := r.Get(ctx, letters[0].ID)
	require.NoError(t, err)
	require.Equal(t, workqueue.Item{Kind: "Class", EntityID: "class-1", TraceID: "t-1", Cascade: true}, got.Item())

	require.NoError(t, r.Delete(ctx, letters[0].ID))
	_, err = r.Get(ctx, letters[0].ID)
	require.ErrorIs(t, err, entity.ErrNotFound)
	letters, err = r.List(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, letters)
}

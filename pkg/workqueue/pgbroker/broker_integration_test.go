//go:build integration

package pgbroker

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/onboarding/pkg/workqueue"
)

func TestBroker_Integration_ClaimAckReclaim(t *testing.T) {
	dsn := os.Getenv("ONBOARDING_TEST_DSN")
	if dsn == "" {
		t.Skip("ONBOARDING_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	tableName := "work_items_it_" + uuid.NewString()[:8]
	table, err := ParseIdentifier("public." + tableName)
	require.NoError(t, err)

	b, err := New(pool, table)
	require.NoError(t, err)
	require.NoError(t, b.EnsureSchema(ctx))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", b.claims.Sanitize(), table.Sanitize()))
	})

	require.NoError(t, b.Publish(ctx, workqueue.Item{Kind: "Organization", EntityID: "org-1", TraceID: "t"}))
	require.NoError(t, b.Publish(ctx, workqueue.Item{Kind: "Organization", EntityID: "org-2", TraceID: "t"}))

	first, err := b.ReadOne(ctx, "g", "c1")
	require.NoError(t, err)
	require.Equal(t, "org-1", first.EntityID)

	second, err := b.ReadOne(ctx, "g", "c2")
	require.NoError(t, err)
	require.Equal(t, "org-2", second.EntityID)

	_, err = b.ReadOne(ctx, "g", "c3")
	require.ErrorIs(t, err, workqueue.ErrNoItems)

	require.NoError(t, b.Ack(ctx, "g", first.Handle))
	require.NoError(t, b.Ack(ctx, "g", first.Handle))

	n, err := b.Reclaim(ctx, "g", "reaper", 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	again, err := b.ReadOne(ctx, "g", "c1")
	require.NoError(t, err)
	require.Equal(t, "org-2", again.EntityID)
	require.Equal(t, 1, again.Attempts)

	rows := func() int {
		var n int
		require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM "+table.Sanitize()).Scan(&n))
		return n
	}
	before := rows()
	clock := clockwork.NewFakeClockAt(time.Now())
	cleaner, err := NewCleaner(pool, table, CleanerOptions{Retention: 24 * time.Hour, Clock: clock})
	require.NoError(t, err)

	require.NoError(t, cleaner.cleanOnce(ctx))
	require.Equal(t, before, rows())

	clock.Advance(48 * time.Hour)
	require.NoError(t, cleaner.cleanOnce(ctx))
	require.Less(t, rows(), before)
}

package workqueue

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestReaper_ReapOnce(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	b := NewMemoryBroker(clock)

	require.NoError(t, b.Publish(ctx, Item{Kind: "School", EntityID: "s-1"}))
	_, err := b.ReadOne(ctx, "g", "c1")
	require.NoError(t, err)

	r, err := NewReaper(b, ReaperOptions{Group: "g", Consumer: "reaper", ClaimTimeout: time.Minute})
	require.NoError(t, err)

	n, err := r.ReapOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	clock.Advance(time.Minute)
	n, err = r.ReapOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestReaper_RunReclaimsOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewFakeClock()
	b := NewMemoryBroker(clock)

	require.NoError(t, b.Publish(ctx, Item{Kind: "School", EntityID: "s-1"}))
	_, err := b.ReadOne(ctx, "g", "c1")
	require.NoError(t, err)

	r, err := NewReaper(b, ReaperOptions{Group: "g", Consumer: "reaper", Interval: time.Minute, ClaimTimeout: time.Minute, Clock: clock})
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Len(t, b.Pending("g"), 1)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(b.Pending("g")) == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestNewReaper_RequiresGroup(t *testing.T) {
	_, err := NewReaper(NewMemoryBroker(nil), ReaperOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

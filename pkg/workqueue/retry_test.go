package workqueue

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func retryConsumer(t *testing.T, opts ConsumerOptions) *Consumer {
	t.Helper()
	opts.Group, opts.Consumer = "g", "c"
	c, err := NewConsumer(NewMemoryBroker(nil), &countingHandler{}, opts)
	require.NoError(t, err)
	return c
}

func TestConsumer_RetryDelayDoublesUpToCap(t *testing.T) {
	t.Parallel()
	c := retryConsumer(t, ConsumerOptions{MaxBackoff: time.Minute})

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: 0},
		{attempts: 1, want: time.Second},
		{attempts: 3, want: 4 * time.Second},
		{attempts: 7, want: time.Minute},
		{attempts: 90, want: time.Minute},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, c.retryDelay(tc.attempts), "attempts=%d", tc.attempts)
	}
}

func TestConsumer_RetryDelayJitterIsSeeded(t *testing.T) {
	t.Parallel()
	opts := ConsumerOptions{MaxBackoff: time.Minute, JitterMax: 200 * time.Millisecond}

	opts.Rand = rand.New(rand.NewSource(1))
	first := retryConsumer(t, opts).retryDelay(1)
	opts.Rand = rand.New(rand.NewSource(1))
	second := retryConsumer(t, opts).retryDelay(1)

	require.Equal(t, first, second)
	require.GreaterOrEqual(t, first, time.Second)
	require.LessOrEqual(t, first, time.Second+200*time.Millisecond)
}

func TestConsumer_LastErrorKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	c := retryConsumer(t, ConsumerOptions{LastErrorMaxLen: 2})

	require.Empty(t, c.lastError(nil))
	require.Equal(t, "a", c.lastError(errors.New("aé")))
	require.Equal(t, "sc", c.lastError(errors.New("school not found")))
}

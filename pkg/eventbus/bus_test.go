package eventbus

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type created struct{ id string }
type deleted struct{ id string }

func TestBus_PublishDispatchesByType(t *testing.T) {
	b := New(nil)
	var got []string
	b.Subscribe(func(e *created) { got = append(got, "created:"+e.id) })
	b.Subscribe(func(e *deleted) { got = append(got, "deleted:"+e.id) })
	b.Subscribe(func(ctx context.Context, e *created) { got = append(got, "ctx:"+e.id) })

	b.Publish(&created{id: "1"})
	b.Publish(context.Background(), &created{id: "2"})

	require.Equal(t, []string{"created:1", "ctx:2"}, got)
	require.Equal(t, 3, b.SubscribersCount())
}

func TestBus_PublishE(t *testing.T) {
	b := New(nil)
	require.ErrorIs(t, b.PublishE(&created{}), ErrNoSubscribers)

	boom := errors.New("boom")
	b.Subscribe(func(*created) error { return boom })
	b.Subscribe(func(*created) { panic("bad") })
	b.Subscribe(func(*created) (int, error) { return 0, nil })

	err := b.PublishE(&created{id: "x"})
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, ErrInvalidHandlerReturn)
	require.Contains(t, err.Error(), "panicked")
}

func TestBus_PublishLogsFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	b := New(logrus.NewEntry(l))
	b.Subscribe(func(*created) error { return errors.New("subscriber down") })

	b.Publish(&created{})

	require.Contains(t, buf.String(), "subscriber down")
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(*created) {}, []any{&created{}}))
	require.False(t, MatchSignature(func(*created) {}, []any{&deleted{}}))
	require.False(t, MatchSignature(func(*created) {}, nil))
	require.True(t, MatchSignature(func(context.Context) {}, []any{context.Background()}))
	require.True(t, MatchSignature(func(*created) {}, []any{nil}))
	require.False(t, MatchSignature("not a func", nil))
}

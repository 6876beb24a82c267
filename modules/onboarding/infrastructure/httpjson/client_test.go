package httpjson

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/pkg/workqueue"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries uint64) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		BaseURL:         srv.URL + "/api",
		Header:          http.Header{"Authorization": []string{"Bearer secret"}},
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestClient_Get_DecodesAndSendsHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/things", r.URL.Path)
		require.Equal(t, "7", r.URL.Query().Get("page"))
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"name":"Acme"}`))
	}, 0)

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Get(context.Background(), "/things", url.Values{"page": {"7"}}, &out))
	require.Equal(t, "Acme", out.Name)
}

func TestClient_Get_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}, 3)

	err := c.Get(context.Background(), "/missing", nil, nil)
	require.ErrorIs(t, err, entity.ErrNotFound)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_Get_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}, 3)

	var out []string
	require.NoError(t, c.Get(context.Background(), "/flaky", nil, &out))
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_Get_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 2)

	err := c.Get(context.Background(), "/down", nil, nil)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, http.StatusServiceUnavailable, serr.Status)
	require.False(t, workqueue.Terminal(err))
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_Get_ClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad kind"))
	}, 3)

	err := c.Get(context.Background(), "/bad", nil, nil)
	require.True(t, workqueue.Terminal(err))
	require.Contains(t, err.Error(), "bad kind")
	require.Equal(t, int32(1), calls.Load())
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"})
	require.Error(t, err)
}

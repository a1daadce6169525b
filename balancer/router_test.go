package balancer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forwardFunc func(ctx context.Context, b Backend, path string) (*Response, error)

func (f forwardFunc) Forward(ctx context.Context, b Backend, path string) (*Response, error) {
	return f(ctx, b, path)
}

func echoForwarder(calls *atomic.Int64) Forwarder {
	return forwardFunc(func(_ context.Context, b Backend, path string) (*Response, error) {
		calls.Add(1)
		return &Response{
			Backend:    b,
			StatusCode: http.StatusOK,
			Body:       []byte(fmt.Sprintf(`{"message":"Hello from %s"}`, b.Name)),
		}, nil
	})
}

func TestRouterNoBackend(t *testing.T) {
	var calls atomic.Int64
	reg := newTestRegistry(t, "server1")
	r := NewRouter(reg.Pool(), echoForwarder(&calls), RouterConfig{ForwardTimeout: time.Second})

	_, err := r.Route(context.Background(), "", "/home")
	require.ErrorIs(t, err, ErrNoBackend)
	assert.Zero(t, calls.Load(), "must not forward without a backend")
}

func TestRouterStableKey(t *testing.T) {
	var calls atomic.Int64
	reg := newTestRegistry(t, "server1", "server2", "server3")
	_, err := reg.Converge(reg.Known())
	require.NoError(t, err)
	r := NewRouter(reg.Pool(), echoForwarder(&calls), RouterConfig{})

	for _, key := range []string{"user-1", "user-2", "abc", "42"} {
		first, err := r.Pick(key)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			b, err := r.Pick(key)
			require.NoError(t, err)
			require.Equal(t, first, b)
		}
	}
}

func TestRouterRandomKeySpreads(t *testing.T) {
	var calls atomic.Int64
	reg := newTestRegistry(t, "server1", "server2", "server3")
	_, err := reg.Converge(reg.Known())
	require.NoError(t, err)
	r := NewRouter(reg.Pool(), echoForwarder(&calls), RouterConfig{})

	const n = 10000
	dist := make(map[string]int)
	for i := 0; i < n; i++ {
		resp, err := r.Route(context.Background(), "", "/home")
		require.NoError(t, err)
		dist[resp.Backend.Name]++
	}
	assert.EqualValues(t, n, calls.Load())
	assert.Len(t, dist, 3)
	for name, c := range dist {
		assert.LessOrEqual(t, c, 2*n/3, "%s got %d requests", name, c)
	}
}

func TestRouterForwardError(t *testing.T) {
	var calls atomic.Int64
	cause := errors.New("connection refused")
	fwd := forwardFunc(func(context.Context, Backend, string) (*Response, error) {
		calls.Add(1)
		return nil, cause
	})
	reg := newTestRegistry(t, "server1", "server2")
	_, err := reg.Converge(reg.Known())
	require.NoError(t, err)
	r := NewRouter(reg.Pool(), fwd, RouterConfig{ForwardTimeout: time.Second})

	_, err = r.Route(context.Background(), "k", "/home")
	var ferr *ForwardError
	require.ErrorAs(t, err, &ferr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "/home", ferr.Path)
	assert.Contains(t, ferr.Error(), ferr.Backend.Addr)
	assert.EqualValues(t, 1, calls.Load(), "must not retry on another backend")
}

func TestRouterForwardTimeout(t *testing.T) {
	fwd := forwardFunc(func(ctx context.Context, _ Backend, _ string) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	reg := newTestRegistry(t, "server1")
	_, err := reg.Converge(reg.Known())
	require.NoError(t, err)
	r := NewRouter(reg.Pool(), fwd, RouterConfig{ForwardTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err = r.Route(context.Background(), "", "/home")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTTPForwarder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/home":
			fmt.Fprint(w, `{"message":"Hello from server1"}`)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not found"}`)
		default:
			fmt.Fprint(w, "<html>")
		}
	}))
	defer srv.Close()

	f := NewHTTPForwarder()
	b := Backend{ID: 1, Name: "server1", Addr: srv.URL}

	resp, err := f.Forward(context.Background(), b, "/home")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Hello from server1"}`, string(resp.Body))

	resp, err = f.Forward(context.Background(), b, "missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err = f.Forward(context.Background(), b, "/page")
	assert.ErrorIs(t, err, errUndecodable)

	_, err = f.Forward(context.Background(), Backend{Addr: "http://127.0.0.1:1"}, "/home")
	assert.Error(t, err)
}

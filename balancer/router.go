package balancer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// Response is what a backend answered to a forwarded request.
type Response struct {
	Backend    Backend
	StatusCode int
	Body       []byte
}

// Forwarder sends a request for path to a backend.
type Forwarder interface {
	Forward(ctx context.Context, b Backend, path string) (*Response, error)
}

// ForwardError is returned when the selected backend could not serve the
// request.
type ForwardError struct {
	Backend Backend
	Path    string
	Err     error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("balancer: forward to %s%s failed: %v", e.Backend.Addr, e.Path, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// Router picks one backend per request and forwards the request to it.
// A failed request is never retried against another backend.
type Router struct {
	pool    *Pool
	fwd     Forwarder
	timeout time.Duration
}

func NewRouter(pool *Pool, fwd Forwarder, config RouterConfig) *Router {
	if config.ForwardTimeout <= 0 {
		config.ForwardTimeout = 2 * time.Second
	}
	return &Router{
		pool:    pool,
		fwd:     fwd,
		timeout: config.ForwardTimeout,
	}
}

// RoutingKey maps key to a ring key. An empty key yields a random one, so
// requests without a key spread over all backends.
func RoutingKey(key string) uint64 {
	if key == "" {
		return rand.Uint64()
	}
	return xxhash.Sum64String(key)
}

// Pick returns the backend responsible for key, or ErrNoBackend.
func (r *Router) Pick(key string) (Backend, error) {
	return r.pool.Lookup(RoutingKey(key))
}

// Route forwards a request for path to the backend responsible for key.
func (r *Router) Route(ctx context.Context, key, path string) (*Response, error) {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name": "Router.Route",
		"path":      path,
	})
	b, err := r.Pick(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := r.fwd.Forward(ctx, b, path)
	if err != nil {
		logEntry.Errorf("backend:[%s] %v", b, err)
		return nil, &ForwardError{Backend: b, Path: path, Err: err}
	}
	logEntry.Debugf("backend:[%s] status:[%d]", b, resp.StatusCode)
	return resp, nil
}

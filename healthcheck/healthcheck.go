// Health Check
// Probe whether a backend is alive.
// HTTP and gRPC mode
package healthcheck

import (
	"context"
	"fmt"
)

// Prober checks the liveness of the backend at addr. A nil error means the
// backend is healthy.
type Prober interface {
	Probe(ctx context.Context, addr string) error
}

// Pruner is implemented by probers that keep per-backend state. Prune drops
// the state of every backend not in addrs.
type Pruner interface {
	Prune(addrs []string)
}

// ProbeError is returned when a backend did not pass its liveness check.
type ProbeError struct {
	Addr string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("healthcheck: probe %s failed: %v", e.Addr, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Balancer
// Ring and active set shared between the health monitor and request routing.

package balancer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNoBackend is returned when a request can not be routed because no
// backend is active.
var ErrNoBackend = fmt.Errorf("balancer: no backend available: %w", ErrRingEmpty)

// Delta describes one change of the active set.
type Delta struct {
	Added   []Backend
	Removed []Backend
}

func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Pool owns the hash ring together with the set of backends placed on it.
// Lookups take the read lock; every mutation batch holds the write lock for
// its whole duration, so readers see either the ring before the batch or the
// ring after it.
type Pool struct {
	mu     sync.RWMutex
	ring   *HashRing
	active map[int]Backend
}

// NewPool returns an empty pool on top of ring.
func NewPool(ring *HashRing) *Pool {
	return &Pool{
		ring:   ring,
		active: make(map[int]Backend),
	}
}

// Lookup returns the backend responsible for key.
func (p *Pool) Lookup(key uint64) (Backend, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, err := p.ring.Lookup(key)
	if err != nil {
		if errors.Is(err, ErrRingEmpty) {
			return Backend{}, ErrNoBackend
		}
		return Backend{}, err
	}
	return p.active[id], nil
}

// Converge makes the active set equal to next. Backends that can not be
// placed are left out of the active set and reported in the returned error.
func (p *Pool) Converge(next []Backend) (d Delta, err error) {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name": "Pool.Converge",
	})
	want := make(map[int]Backend, len(next))
	for _, b := range next {
		want[b.ID] = b
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.equalLocked(want) {
		return d, nil
	}
	for id, b := range p.active {
		if nb, ok := want[id]; ok && nb.Addr == b.Addr {
			continue
		}
		p.ring.Remove(id)
		delete(p.active, id)
		d.Removed = append(d.Removed, b)
	}
	var errs []error
	for _, b := range sortBackends(mapValues(want)) {
		id := b.ID
		if _, ok := p.active[id]; ok {
			continue
		}
		if perr := p.ring.Place(id); perr != nil {
			logEntry.Errorf("backend:[%s] not placed: %v", b, perr)
			errs = append(errs, perr)
			continue
		}
		p.active[id] = b
		d.Added = append(d.Added, b)
	}
	sortBackends(d.Added)
	sortBackends(d.Removed)
	return d, errors.Join(errs...)
}

func mapValues(m map[int]Backend) []Backend {
	out := make([]Backend, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	return out
}

// p.mu must be held.
func (p *Pool) equalLocked(want map[int]Backend) bool {
	if len(want) != len(p.active) {
		return false
	}
	for id, b := range want {
		if cur, ok := p.active[id]; !ok || cur.Addr != b.Addr {
			return false
		}
	}
	return true
}

// Evict removes the given ids from the ring and active set and returns the
// evicted backends.
func (p *Pool) Evict(ids ...int) []Backend {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Backend
	for _, id := range ids {
		b, ok := p.active[id]
		if !ok {
			continue
		}
		p.ring.Remove(id)
		delete(p.active, id)
		out = append(out, b)
	}
	return sortBackends(out)
}

// Active returns the currently placed backends ordered by id.
func (p *Pool) Active() []Backend {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return sortBackends(mapValues(p.active))
}

// Slots returns a copy of the ring slots; empty slots hold -1.
func (p *Pool) Slots() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ring.Slots()
}

// Members returns the distinct ids present on the ring.
func (p *Pool) Members() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ring.Members()
}

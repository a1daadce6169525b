package balancer

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry holds the known backends, i.e. the ones registered by an
// administrator regardless of their health.
//
// Registry is the only way the Pool is mutated from the outside: it takes
// its own lock before the pool's, so a backend removed from the known set can
// never be placed back by a convergence that started before the removal.
type Registry struct {
	mu       sync.RWMutex
	known    map[int]Backend
	byName   map[string]int
	pool     *Pool
	resolver Resolver
}

// NewRegistry returns an empty registry mutating pool.
func NewRegistry(pool *Pool, resolver Resolver) *Registry {
	return &Registry{
		known:    make(map[int]Backend),
		byName:   make(map[string]int),
		pool:     pool,
		resolver: resolver,
	}
}

// Register resolves names and adds them to the known set. It returns the
// names which were not known before and the resulting size of the known
// set. If any name fails to resolve nothing is registered.
func (r *Registry) Register(names []string) (added []string, total int, err error) {
	bs := make([]Backend, 0, len(names))
	for _, name := range names {
		b, err := r.resolver.Resolve(name)
		if err != nil {
			return nil, r.Len(), err
		}
		bs = append(bs, b)
	}
	got, err := r.add(bs)
	if err != nil {
		return nil, r.Len(), err
	}
	return Names(got), r.Len(), nil
}

// Add puts already resolved backends into the known set and returns the ones
// that were newly added.
func (r *Registry) Add(bs ...Backend) ([]Backend, error) {
	return r.add(bs)
}

func (r *Registry) add(bs []Backend) ([]Backend, error) {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name": "Registry.Add",
	})
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int]string, len(bs))
	for _, b := range bs {
		if cur, ok := r.known[b.ID]; ok && cur.Name != b.Name {
			return nil, fmt.Errorf("%w: %q and %q share id %d", ErrDuplicateID, cur.Name, b.Name, b.ID)
		}
		if name, ok := seen[b.ID]; ok && name != b.Name {
			return nil, fmt.Errorf("%w: %q and %q share id %d", ErrDuplicateID, name, b.Name, b.ID)
		}
		seen[b.ID] = b.Name
	}
	var added []Backend
	for _, b := range bs {
		if _, ok := r.known[b.ID]; ok {
			continue
		}
		r.known[b.ID] = b
		r.byName[b.Name] = b.ID
		added = append(added, b)
	}
	if len(added) > 0 {
		logEntry.Infof("registered:[%v] known:[%d]", Names(added), len(r.known))
	}
	return added, nil
}

// Deregister removes names from the known set. Removed backends that are
// active are evicted from the ring before Deregister returns.
func (r *Registry) Deregister(names []string) (removed []string, remaining int) {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name": "Registry.Deregister",
	})
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int
	for _, name := range names {
		id, ok := r.byName[name]
		if !ok {
			if b, err := r.resolver.Resolve(name); err == nil {
				if cur, known := r.known[b.ID]; known && cur.Name == b.Name {
					id, ok = b.ID, true
				}
			}
		}
		if !ok {
			continue
		}
		b := r.known[id]
		delete(r.known, id)
		delete(r.byName, b.Name)
		ids = append(ids, id)
		removed = append(removed, b.Name)
	}
	if len(ids) == 0 {
		return removed, len(r.known)
	}
	evicted := r.pool.Evict(ids...)
	logEntry.Infof("deregistered:%v evicted:%v known:[%d]", removed, Names(evicted), len(r.known))
	return removed, len(r.known)
}

// Converge makes the pool's active set equal to the healthy backends that
// are still known.
func (r *Registry) Converge(healthy []Backend) (Delta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	next := make([]Backend, 0, len(healthy))
	for _, b := range healthy {
		if cur, ok := r.known[b.ID]; ok && cur.Name == b.Name {
			next = append(next, cur)
		}
	}
	return r.pool.Converge(next)
}

// Known returns a snapshot of the known backends ordered by id.
func (r *Registry) Known() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortBackends(mapValues(r.known))
}

// Len returns the number of known backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.known)
}

// ListActive returns the backends currently placed on the ring.
func (r *Registry) ListActive() []Backend {
	return r.pool.Active()
}

// Pool returns the pool mutated by the registry.
func (r *Registry) Pool() *Pool {
	return r.pool
}

package balancer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

const emptySlot = -1

var (
	// ErrRingFull is returned by Place when no empty slot is left for one of
	// the backend's replicas.
	ErrRingFull = errors.New("balancer: hash ring is full")
	// ErrRingEmpty is returned by Lookup when no slot is occupied.
	ErrRingEmpty = errors.New("balancer: hash ring is empty")
	// ErrAlreadyPlaced is returned by Place for an id already on the ring.
	ErrAlreadyPlaced = errors.New("balancer: backend already placed")
	// ErrInvalidID is returned by Place for a negative id.
	ErrInvalidID = errors.New("balancer: invalid backend id")
)

// Hasher produces the positions used by a HashRing.
type Hasher interface {
	// Replica returns the hash of replica i of backend id.
	Replica(id, i int) uint64
	// Key returns the hash of a routing key.
	Key(key uint64) uint64
}

// XXHasher hashes little-endian encoded integers with xxhash64.
type XXHasher struct{}

func (XXHasher) Replica(id, i int) uint64 {
	var p [16]byte
	binary.LittleEndian.PutUint64(p[:8], uint64(id))
	binary.LittleEndian.PutUint64(p[8:], uint64(i))
	return xxhash.Sum64(p[:])
}

func (XXHasher) Key(key uint64) uint64 {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], key)
	return xxhash.Sum64(p[:])
}

type HashRinger interface {
	Place(id int) error
	Remove(id int) int
	Lookup(key uint64) (int, error)
}

var _ HashRinger = (*HashRing)(nil)

// HashRing is a fixed-size slot array mapping slots to backend ids.
// Collisions are resolved by linear probing.
//
// HashRing is not goroutine safe; Pool serializes access to it.
type HashRing struct {
	slots    []int
	virtuals int
	hash     Hasher
	occupied int
}

// NewHashRing returns an empty ring of numSlots slots placing numVirtuals
// replicas per backend. If hash is nil XXHasher is used.
func NewHashRing(numSlots, numVirtuals int, hash Hasher) (*HashRing, error) {
	if numSlots <= 0 {
		return nil, fmt.Errorf("balancer: number of slots must be positive: %d", numSlots)
	}
	if numVirtuals <= 0 || numVirtuals > numSlots {
		return nil, fmt.Errorf("balancer: number of virtuals must be in [1, %d]: %d", numSlots, numVirtuals)
	}
	if hash == nil {
		hash = XXHasher{}
	}
	slots := make([]int, numSlots)
	for i := range slots {
		slots[i] = emptySlot
	}
	return &HashRing{
		slots:    slots,
		virtuals: numVirtuals,
		hash:     hash,
	}, nil
}

// Place puts numVirtuals replicas of id onto the ring. If the ring runs out
// of empty slots the replicas placed so far are removed and ErrRingFull is
// returned.
func (r *HashRing) Place(id int) error {
	if id < 0 {
		return ErrInvalidID
	}
	if r.has(id) {
		return ErrAlreadyPlaced
	}
	n := len(r.slots)
	claimed := make([]int, 0, r.virtuals)
	for i := 0; i < r.virtuals; i++ {
		slot := r.probe(int(r.hash.Replica(id, i) % uint64(n)))
		if slot == emptySlot {
			for _, s := range claimed {
				r.slots[s] = emptySlot
			}
			r.occupied -= len(claimed)
			return fmt.Errorf("placing backend %d replica %d: %w", id, i, ErrRingFull)
		}
		r.slots[slot] = id
		r.occupied++
		claimed = append(claimed, slot)
	}
	return nil
}

// probe returns the first empty slot at or after start, or emptySlot.
func (r *HashRing) probe(start int) int {
	n := len(r.slots)
	for step := 0; step < n; step++ {
		s := (start + step) % n
		if r.slots[s] == emptySlot {
			return s
		}
	}
	return emptySlot
}

// Remove clears every slot holding id and returns how many were cleared.
func (r *HashRing) Remove(id int) int {
	var n int
	for i, v := range r.slots {
		if v == id {
			r.slots[i] = emptySlot
			n++
		}
	}
	r.occupied -= n
	return n
}

// Lookup returns the id in the first occupied slot at or after the slot the
// key hashes to.
func (r *HashRing) Lookup(key uint64) (int, error) {
	if r.occupied == 0 {
		return 0, ErrRingEmpty
	}
	n := len(r.slots)
	start := int(r.hash.Key(key) % uint64(n))
	for step := 0; step < n; step++ {
		if id := r.slots[(start+step)%n]; id != emptySlot {
			return id, nil
		}
	}
	return 0, ErrRingEmpty
}

func (r *HashRing) has(id int) bool {
	for _, v := range r.slots {
		if v == id {
			return true
		}
	}
	return false
}

// Occupied returns the number of non-empty slots.
func (r *HashRing) Occupied() int { return r.occupied }

// NumSlots returns the ring size.
func (r *HashRing) NumSlots() int { return len(r.slots) }

// NumVirtuals returns the number of replicas placed per backend.
func (r *HashRing) NumVirtuals() int { return r.virtuals }

// Members returns the distinct ids present on the ring in ascending order.
func (r *HashRing) Members() []int {
	seen := make(map[int]struct{})
	for _, v := range r.slots {
		if v != emptySlot {
			seen[v] = struct{}{}
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Slots returns a copy of the slot array. Empty slots hold -1.
func (r *HashRing) Slots() []int {
	return append([]int(nil), r.slots...)
}

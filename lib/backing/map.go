package backing

import (
	"sync/atomic"

	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// chained is implemented by the hash stores of this package
type chained interface {
	chainLengths() []float64
}

// Distribution reports how the entries of a store created by NewConcurrentMap
// or NewMap spread over their hash chains. Max is the longest chain, a low
// DistributionQuality points to a weak Hash of the equivalence.
// ok is false for other stores.
func Distribution[K, V any](s MapStore[K, V]) (stats util.DistributionStats, ok bool) {
	c, ok := s.(chained)
	if !ok {
		return stats, false
	}
	return util.NewDistributionStats(c.chainLengths()), true
}

// --------------------------------------------------------------------------
// Buckets (shared by both hash stores)
// --------------------------------------------------------------------------

// computeBucket applies fn to the live entry of b matching key.
// The input bucket is never modified, the returned bucket is a fresh slice
// (or b itself if nothing changed). Dead entries met on the way are dropped.
// cleanup releases the dropped and displaced cells and must be called once
// the caller left any lock held around the computation.
func computeBucket[K, V any](b []Entry[K, V], key ref.Probe[K], fn ComputeFunc[K, V]) (nb []Entry[K, V], res Entry[K, V], present bool, delta int, cleanup func()) {
	idx := -1
	var dead []Entry[K, V]

	nb = make([]Entry[K, V], 0, len(b)+1)
	for _, e := range b {
		if !e.Live() {
			dead = append(dead, e)
			continue
		}
		if idx < 0 && key.Matches(e.Key) {
			idx = len(nb)
		}
		nb = append(nb, e)
	}
	delta = -len(dead)

	var old Entry[K, V]
	loaded := idx >= 0
	if loaded {
		old = nb[idx]
	}

	newEntry, op := fn(old, loaded)
	switch op {
	case OpStore:
		if loaded {
			nb[idx] = newEntry
		} else {
			nb = append(nb, newEntry)
			delta++
		}
		res, present = newEntry, true
	case OpDelete:
		if loaded {
			nb = append(nb[:idx], nb[idx+1:]...)
			delta--
		}
	default:
		res, present = old, loaded
		if len(dead) == 0 {
			nb = b
		}
	}

	cleanup = func() {
		for _, e := range dead {
			releaseEntry(e)
		}
		if loaded && op != OpKeep {
			releaseDisplaced(old, newEntry, op == OpStore)
		}
	}
	return nb, res, present, delta, cleanup
}

// withoutEntry returns a copy of b without the first entry matching, and that entry
func withoutEntry[K, V any](b []Entry[K, V], match func(e Entry[K, V]) bool) ([]Entry[K, V], Entry[K, V], bool) {
	for i, e := range b {
		if match(e) {
			nb := make([]Entry[K, V], 0, len(b)-1)
			nb = append(nb, b[:i]...)
			nb = append(nb, b[i+1:]...)
			return nb, e, true
		}
	}
	return b, Entry[K, V]{}, false
}

func loadFromBucket[K, V any](b []Entry[K, V], key ref.Probe[K]) (Entry[K, V], bool) {
	for _, e := range b {
		if key.Matches(e.Key) && e.Live() {
			return e, true
		}
	}
	return Entry[K, V]{}, false
}

// --------------------------------------------------------------------------
// Concurrent hash store
// --------------------------------------------------------------------------

// concurrentMap stores entries in copy-on-write buckets of a xsync.MapOf keyed
// by the key hash. All bucket updates happen inside MapOf.Compute.
type concurrentMap[K, V any] struct {
	buckets *xsync.MapOf[uint64, []Entry[K, V]]
	size    atomic.Int64
}

// NewConcurrentMap creates a hash store safe for concurrent use
func NewConcurrentMap[K, V any]() MapStore[K, V] {
	return &concurrentMap[K, V]{
		// keys are hashes already, only mix in the seed of the map
		buckets: xsync.NewMapOfWithHasher[uint64, []Entry[K, V]](func(h uint64, seed uint64) uint64 {
			return h ^ seed
		}),
	}
}

func (m *concurrentMap[K, V]) Load(key ref.Probe[K]) (Entry[K, V], bool) {
	b, ok := m.buckets.Load(key.Hash())
	if !ok {
		return Entry[K, V]{}, false
	}
	return loadFromBucket(b, key)
}

func (m *concurrentMap[K, V]) Compute(key ref.Probe[K], fn ComputeFunc[K, V]) (Entry[K, V], bool) {
	var (
		res     Entry[K, V]
		present bool
		cleanup func()
	)
	m.buckets.Compute(key.Hash(), func(old []Entry[K, V], loaded bool) ([]Entry[K, V], bool) {
		var nb []Entry[K, V]
		var delta int
		nb, res, present, delta, cleanup = computeBucket(old, key, fn)
		m.size.Add(int64(delta))
		return nb, len(nb) == 0
	})
	cleanup()
	return res, present
}

func (m *concurrentMap[K, V]) DeleteKey(r ref.Referrer[K]) bool {
	if r == nil {
		return false
	}
	return m.remove(r.Hash(), func(e Entry[K, V]) bool { return e.Key == r })
}

func (m *concurrentMap[K, V]) DeleteValue(r ref.Referrer[V]) bool {
	if r == nil {
		return false
	}
	return m.remove(r.Anchor(), func(e Entry[K, V]) bool { return e.Value == r })
}

func (m *concurrentMap[K, V]) remove(hash uint64, match func(e Entry[K, V]) bool) bool {
	var (
		victim Entry[K, V]
		found  bool
	)
	m.buckets.Compute(hash, func(old []Entry[K, V], loaded bool) ([]Entry[K, V], bool) {
		if !loaded {
			return nil, true
		}
		var nb []Entry[K, V]
		nb, victim, found = withoutEntry(old, match)
		if found {
			m.size.Add(-1)
		}
		return nb, len(nb) == 0
	})
	if found {
		releaseEntry(victim)
	}
	return found
}

func (m *concurrentMap[K, V]) Len() int {
	return max(int(m.size.Load()), 0)
}

func (m *concurrentMap[K, V]) Range(fn func(e Entry[K, V]) bool) {
	m.buckets.Range(func(_ uint64, b []Entry[K, V]) bool {
		for _, e := range b {
			if !fn(e) {
				return false
			}
		}
		return true
	})
}

func (m *concurrentMap[K, V]) Clear() {
	m.buckets.Range(func(hash uint64, _ []Entry[K, V]) bool {
		var dropped []Entry[K, V]
		m.buckets.Compute(hash, func(old []Entry[K, V], loaded bool) ([]Entry[K, V], bool) {
			dropped = old
			m.size.Add(-int64(len(old)))
			return nil, true
		})
		for _, e := range dropped {
			releaseEntry(e)
		}
		return true
	})
}

func (m *concurrentMap[K, V]) Concurrent() bool { return true }

func (m *concurrentMap[K, V]) chainLengths() []float64 {
	out := make([]float64, 0, m.buckets.Size())
	m.buckets.Range(func(_ uint64, b []Entry[K, V]) bool {
		out = append(out, float64(len(b)))
		return true
	})
	return out
}

// --------------------------------------------------------------------------
// Plain hash store
// --------------------------------------------------------------------------

// plainMap is a hash store without any synchronization
type plainMap[K, V any] struct {
	buckets map[uint64][]Entry[K, V]
	size    int
}

// NewMap creates a hash store that is not safe for concurrent use
func NewMap[K, V any]() MapStore[K, V] {
	return &plainMap[K, V]{buckets: make(map[uint64][]Entry[K, V])}
}

func (m *plainMap[K, V]) Load(key ref.Probe[K]) (Entry[K, V], bool) {
	return loadFromBucket(m.buckets[key.Hash()], key)
}

func (m *plainMap[K, V]) Compute(key ref.Probe[K], fn ComputeFunc[K, V]) (Entry[K, V], bool) {
	hash := key.Hash()
	nb, res, present, delta, cleanup := computeBucket(m.buckets[hash], key, fn)
	m.store(hash, nb)
	m.size += delta
	cleanup()
	return res, present
}

func (m *plainMap[K, V]) store(hash uint64, b []Entry[K, V]) {
	if len(b) == 0 {
		delete(m.buckets, hash)
		return
	}
	m.buckets[hash] = b
}

func (m *plainMap[K, V]) DeleteKey(r ref.Referrer[K]) bool {
	if r == nil {
		return false
	}
	return m.remove(r.Hash(), func(e Entry[K, V]) bool { return e.Key == r })
}

func (m *plainMap[K, V]) DeleteValue(r ref.Referrer[V]) bool {
	if r == nil {
		return false
	}
	return m.remove(r.Anchor(), func(e Entry[K, V]) bool { return e.Value == r })
}

func (m *plainMap[K, V]) remove(hash uint64, match func(e Entry[K, V]) bool) bool {
	nb, victim, found := withoutEntry(m.buckets[hash], match)
	if !found {
		return false
	}
	m.store(hash, nb)
	m.size--
	releaseEntry(victim)
	return true
}

func (m *plainMap[K, V]) Len() int { return m.size }

func (m *plainMap[K, V]) Range(fn func(e Entry[K, V]) bool) {
	for _, b := range m.buckets {
		for _, e := range b {
			if !fn(e) {
				return
			}
		}
	}
}

func (m *plainMap[K, V]) Clear() {
	buckets := m.buckets
	m.buckets = make(map[uint64][]Entry[K, V])
	m.size = 0
	for _, b := range buckets {
		for _, e := range b {
			releaseEntry(e)
		}
	}
}

func (m *plainMap[K, V]) Concurrent() bool { return false }

func (m *plainMap[K, V]) chainLengths() []float64 {
	out := make([]float64, 0, len(m.buckets))
	for _, b := range m.buckets {
		out = append(out, float64(len(b)))
	}
	return out
}

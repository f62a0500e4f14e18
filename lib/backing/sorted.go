package backing

import (
	"sync"

	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/google/btree"
)

const (
	btreeDegree = 32 // degree of the b-tree nodes
	rangeChunk  = 64 // items copied per lock acquisition while iterating
)

// sortedItem is one entry of the tree together with the ordering snapshot of its key
type sortedItem[K, V any] struct {
	key   K
	entry Entry[K, V]
}

type rwLocker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// nopLocker is used by the store variant without synchronization
type nopLocker struct{}

func (nopLocker) Lock()    {}
func (nopLocker) Unlock()  {}
func (nopLocker) RLock()   {}
func (nopLocker) RUnlock() {}

// sortedStore keeps entries in a google/btree ordered by a snapshot of the key.
// The snapshot is a copy of the key value taken on insertion, it keeps ordering
// stable even after a weak key was collected. cells maps the id of every key
// and value cell to the snapshot of its entry so dead cells can be located.
type sortedStore[K, V any] struct {
	mu         rwLocker
	concurrent bool
	compare    func(a, b *K) int
	tree       *btree.BTreeG[sortedItem[K, V]]
	cells      map[uint64]K
}

// NewSorted creates an ordered store that is not safe for concurrent use
func NewSorted[K, V any](compare func(a, b *K) int) SortedStore[K, V] {
	return newSortedStore[K, V](compare, nopLocker{}, false)
}

// NewConcurrentSorted creates an ordered store guarded by a read-write mutex
func NewConcurrentSorted[K, V any](compare func(a, b *K) int) SortedStore[K, V] {
	return newSortedStore[K, V](compare, &sync.RWMutex{}, true)
}

func newSortedStore[K, V any](compare func(a, b *K) int, mu rwLocker, concurrent bool) *sortedStore[K, V] {
	less := func(a, b sortedItem[K, V]) bool {
		return compare(&a.key, &b.key) < 0
	}
	return &sortedStore[K, V]{
		mu:         mu,
		concurrent: concurrent,
		compare:    compare,
		tree:       btree.NewG(btreeDegree, less),
		cells:      make(map[uint64]K),
	}
}

func (s *sortedStore[K, V]) index(e Entry[K, V], key K) {
	s.cells[e.Key.ID()] = key
	if e.Value != nil {
		s.cells[e.Value.ID()] = key
	}
}

func (s *sortedStore[K, V]) unindex(e Entry[K, V]) {
	delete(s.cells, e.Key.ID())
	if e.Value != nil {
		delete(s.cells, e.Value.ID())
	}
}

func (s *sortedStore[K, V]) Load(key ref.Probe[K]) (Entry[K, V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, found := s.tree.Get(sortedItem[K, V]{key: *key.Get()})
	if !found || !item.entry.Live() {
		return Entry[K, V]{}, false
	}
	return item.entry, true
}

func (s *sortedStore[K, V]) Compute(key ref.Probe[K], fn ComputeFunc[K, V]) (Entry[K, V], bool) {
	pivot := sortedItem[K, V]{key: *key.Get()}

	s.mu.Lock()

	var (
		old, dead     Entry[K, V]
		loaded, found bool
	)
	if item, ok := s.tree.Get(pivot); ok {
		if item.entry.Live() {
			old, loaded = item.entry, true
		} else {
			// a dead entry with an equal key is replaced by whatever fn decides
			s.tree.Delete(pivot)
			s.unindex(item.entry)
			dead, found = item.entry, true
		}
	}

	newEntry, op := fn(old, loaded)

	var (
		res     Entry[K, V]
		present bool
	)
	switch op {
	case OpStore:
		if loaded {
			s.unindex(old)
		}
		s.tree.ReplaceOrInsert(sortedItem[K, V]{key: pivot.key, entry: newEntry})
		s.index(newEntry, pivot.key)
		res, present = newEntry, true
	case OpDelete:
		if loaded {
			s.tree.Delete(pivot)
			s.unindex(old)
		}
	default:
		res, present = old, loaded
	}

	s.mu.Unlock()

	if found {
		releaseEntry(dead)
	}
	if loaded && op != OpKeep {
		releaseDisplaced(old, newEntry, op == OpStore)
	}
	return res, present
}

func (s *sortedStore[K, V]) DeleteKey(r ref.Referrer[K]) bool {
	if r == nil {
		return false
	}
	return s.remove(r.ID(), func(e Entry[K, V]) bool { return e.Key == r })
}

func (s *sortedStore[K, V]) DeleteValue(r ref.Referrer[V]) bool {
	if r == nil {
		return false
	}
	return s.remove(r.ID(), func(e Entry[K, V]) bool { return e.Value == r })
}

func (s *sortedStore[K, V]) remove(id uint64, match func(e Entry[K, V]) bool) bool {
	s.mu.Lock()
	key, ok := s.cells[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	item, found := s.tree.Get(sortedItem[K, V]{key: key})
	if !found || !match(item.entry) {
		s.mu.Unlock()
		return false
	}
	s.tree.Delete(item)
	s.unindex(item.entry)
	s.mu.Unlock()

	releaseEntry(item.entry)
	return true
}

func (s *sortedStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

func (s *sortedStore[K, V]) Ascend(from *K, fn func(e Entry[K, V]) bool) {
	s.iterate(from, true, fn)
}

func (s *sortedStore[K, V]) Descend(from *K, fn func(e Entry[K, V]) bool) {
	s.iterate(from, false, fn)
}

// iterate copies the tree in chunks and calls fn without holding the lock,
// fn is therefore free to modify the store
func (s *sortedStore[K, V]) iterate(from *K, ascending bool, fn func(e Entry[K, V]) bool) {
	var last *K
	for {
		batch := make([]sortedItem[K, V], 0, rangeChunk)
		visit := func(it sortedItem[K, V]) bool {
			// the pivot of a continued iteration was already visited
			if last != nil && s.compare(&it.key, last) == 0 {
				return true
			}
			batch = append(batch, it)
			return len(batch) < rangeChunk
		}

		pivot := from
		if last != nil {
			pivot = last
		}

		s.mu.RLock()
		switch {
		case pivot == nil && ascending:
			s.tree.Ascend(visit)
		case pivot == nil:
			s.tree.Descend(visit)
		case ascending:
			s.tree.AscendGreaterOrEqual(sortedItem[K, V]{key: *pivot}, visit)
		default:
			s.tree.DescendLessOrEqual(sortedItem[K, V]{key: *pivot}, visit)
		}
		s.mu.RUnlock()

		for _, it := range batch {
			if !fn(it.entry) {
				return
			}
		}
		if len(batch) < rangeChunk {
			return
		}
		next := batch[len(batch)-1].key
		last = &next
	}
}

func (s *sortedStore[K, V]) Compare(a, b *K) int { return s.compare(a, b) }

func (s *sortedStore[K, V]) Clear() {
	s.mu.Lock()
	var dropped []Entry[K, V]
	s.tree.Ascend(func(it sortedItem[K, V]) bool {
		dropped = append(dropped, it.entry)
		return true
	})
	s.tree.Clear(false)
	s.cells = make(map[uint64]K)
	s.mu.Unlock()

	for _, e := range dropped {
		releaseEntry(e)
	}
}

func (s *sortedStore[K, V]) Concurrent() bool { return s.concurrent }

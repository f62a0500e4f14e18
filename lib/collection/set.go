package collection

import (
	"iter"

	"github.com/ValentinKolb/dRef/lib/backing"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/util"
)

type setEntry[T any] = backing.Entry[T, struct{}]

// Set is a hash set of reference-managed elements. Elements are unique under
// the equivalence of the set.
type Set[T any] struct {
	core[T]
	store backing.MapStore[T, struct{}]
}

// NewSet creates a set. The default store is backing.NewConcurrentMap.
func NewSet[T any](policy ref.Policy, eq ref.Equivalence[T], opts ...Option) (*Set[T], error) {
	s := newSettings(opts)
	store, err := storeFor(s, backing.NewConcurrentMap[T, struct{}])
	if err != nil {
		return nil, err
	}

	set := &Set[T]{store: store}
	err = set.init("set", policy, eq, s, func(r ref.Referrer[T]) error {
		set.store.DeleteKey(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Add inserts v, false if an equal element is already present
func (s *Set[T]) Add(v *T) bool {
	s.ProcessQueue()
	added := false
	s.store.Compute(s.factory.Probe(v), func(old setEntry[T], loaded bool) (setEntry[T], backing.Op) {
		if loaded {
			return old, backing.OpKeep
		}
		added = true
		return setEntry[T]{Key: s.factory.Referenced(v)}, backing.OpStore
	})
	return added
}

// Remove deletes the element equal to v, false if there is none
func (s *Set[T]) Remove(v *T) bool {
	s.ProcessQueue()
	removed := false
	s.store.Compute(s.factory.Probe(v), func(old setEntry[T], loaded bool) (setEntry[T], backing.Op) {
		if !loaded {
			return old, backing.OpKeep
		}
		removed = true
		return old, backing.OpDelete
	})
	return removed
}

// Contains reports whether an element equal to v is present.
// For the time policy this counts as an access of the element.
func (s *Set[T]) Contains(v *T) bool {
	s.ProcessQueue()
	e, ok := s.store.Load(s.factory.Probe(v))
	return ok && e.Key.Get() != nil
}

// Get returns the stored element equal to v
func (s *Set[T]) Get(v *T) (*T, bool) {
	s.ProcessQueue()
	e, ok := s.store.Load(s.factory.Probe(v))
	if !ok {
		return nil, false
	}
	stored := e.Key.Get()
	return stored, stored != nil
}

// Len returns the number of elements. Elements that died after the last
// queue drain are still counted.
func (s *Set[T]) Len() int {
	s.ProcessQueue()
	return s.store.Len()
}

// IsEmpty reports whether Len is 0
func (s *Set[T]) IsEmpty() bool { return s.Len() == 0 }

// Clear removes all elements
func (s *Set[T]) Clear() {
	s.store.Clear()
}

// All iterates over the live elements. Dead cells met on the way are removed.
// The set may be modified during iteration.
func (s *Set[T]) All() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		s.ProcessQueue()
		s.store.Range(func(e setEntry[T]) bool {
			v := e.Key.Get()
			if v == nil {
				s.store.DeleteKey(e.Key)
				return true
			}
			return yield(v)
		})
	}
}

// Slice returns the live elements
func (s *Set[T]) Slice() []*T {
	out := make([]*T, 0, s.store.Len())
	for v := range s.All() {
		out = append(out, v)
	}
	return out
}

// Iterator returns an iterator over a snapshot of the set that supports removal
func (s *Set[T]) Iterator() *Iterator[T] {
	s.ProcessQueue()
	cells := make([]ref.Referrer[T], 0, s.store.Len())
	s.store.Range(func(e setEntry[T]) bool {
		cells = append(cells, e.Key)
		return true
	})
	return newIterator(cells, s.store.DeleteKey)
}

// RemoveIf removes every element accepted by pred and returns their number
func (s *Set[T]) RemoveIf(pred func(v *T) bool) int {
	n := 0
	it := s.Iterator()
	for it.Next() {
		if pred(it.Value()) {
			it.Remove()
			n++
		}
	}
	return n
}

// Distribution reports how the elements spread over the hash chains of the
// store, ok is false for stores not created by the backing package
func (s *Set[T]) Distribution() (util.DistributionStats, bool) {
	return backing.Distribution(s.store)
}

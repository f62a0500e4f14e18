package collection

import (
	"iter"

	"github.com/ValentinKolb/dRef/lib/backing"
	"github.com/ValentinKolb/dRef/lib/ref"
)

// SortedSet is an ordered set of reference-managed elements. Ordering and
// uniqueness follow the compare function, the equivalence is used for the
// cells only.
type SortedSet[T any] struct {
	core[T]
	store backing.SortedStore[T, struct{}]
}

// NewSortedSet creates a sorted set. The default store is
// backing.NewConcurrentSorted(compare).
func NewSortedSet[T any](policy ref.Policy, eq ref.Equivalence[T], compare func(a, b *T) int, opts ...Option) (*SortedSet[T], error) {
	s := newSettings(opts)
	store, err := storeFor(s, func() backing.SortedStore[T, struct{}] {
		return backing.NewConcurrentSorted[T, struct{}](compare)
	})
	if err != nil {
		return nil, err
	}

	set := &SortedSet[T]{store: store}
	err = set.init("sorted-set", policy, eq, s, func(r ref.Referrer[T]) error {
		set.store.DeleteKey(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Add inserts v, false if an element comparing equal is already present
func (s *SortedSet[T]) Add(v *T) bool {
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

// Remove deletes the element comparing equal to v
func (s *SortedSet[T]) Remove(v *T) bool {
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

func (s *SortedSet[T]) Contains(v *T) bool {
	s.ProcessQueue()
	e, ok := s.store.Load(s.factory.Probe(v))
	return ok && e.Key.Get() != nil
}

func (s *SortedSet[T]) Len() int {
	s.ProcessQueue()
	return s.store.Len()
}

func (s *SortedSet[T]) IsEmpty() bool { return s.Len() == 0 }
func (s *SortedSet[T]) Clear()        { s.store.Clear() }

// Compare is the ordering of the set
func (s *SortedSet[T]) Compare(a, b *T) int { return s.store.Compare(a, b) }

// --------------------------------------------------------------------------
// Navigation
// --------------------------------------------------------------------------

// find returns the first live cell in the given direction starting at from.
// With strict set, elements comparing equal to from are skipped.
func (s *SortedSet[T]) find(from *T, ascending, strict bool) (ref.Referrer[T], *T) {
	s.ProcessQueue()
	var (
		cell  ref.Referrer[T]
		found *T
	)
	visit := func(e setEntry[T]) bool {
		v := e.Key.Get()
		if v == nil {
			s.store.DeleteKey(e.Key)
			return true
		}
		if strict && from != nil && s.store.Compare(v, from) == 0 {
			return true
		}
		cell, found = e.Key, v
		return false
	}
	if ascending {
		s.store.Ascend(from, visit)
	} else {
		s.store.Descend(from, visit)
	}
	return cell, found
}

// First returns the smallest element
func (s *SortedSet[T]) First() (*T, bool) {
	_, v := s.find(nil, true, false)
	return v, v != nil
}

// Last returns the largest element
func (s *SortedSet[T]) Last() (*T, bool) {
	_, v := s.find(nil, false, false)
	return v, v != nil
}

// Ceiling returns the smallest element >= v
func (s *SortedSet[T]) Ceiling(v *T) (*T, bool) {
	_, c := s.find(element(v), true, false)
	return c, c != nil
}

// Floor returns the largest element <= v
func (s *SortedSet[T]) Floor(v *T) (*T, bool) {
	_, c := s.find(element(v), false, false)
	return c, c != nil
}

// Higher returns the smallest element > v
func (s *SortedSet[T]) Higher(v *T) (*T, bool) {
	_, c := s.find(element(v), true, true)
	return c, c != nil
}

// Lower returns the largest element < v
func (s *SortedSet[T]) Lower(v *T) (*T, bool) {
	_, c := s.find(element(v), false, true)
	return c, c != nil
}

// PollFirst removes and returns the smallest element
func (s *SortedSet[T]) PollFirst() (*T, bool) { return s.poll(true) }

// PollLast removes and returns the largest element
func (s *SortedSet[T]) PollLast() (*T, bool) { return s.poll(false) }

func (s *SortedSet[T]) poll(ascending bool) (*T, bool) {
	for {
		cell, v := s.find(nil, ascending, false)
		if cell == nil {
			return nil, false
		}
		// another goroutine may have taken the cell first
		if s.store.DeleteKey(cell) {
			return v, true
		}
	}
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// rangeFrom yields live elements in order, starting at from, until stop
// reports true for an element
func (s *SortedSet[T]) rangeFrom(from *T, ascending bool, stop func(v *T) bool) iter.Seq[*T] {
	return func(yield func(*T) bool) {
		s.ProcessQueue()
		visit := func(e setEntry[T]) bool {
			v := e.Key.Get()
			if v == nil {
				s.store.DeleteKey(e.Key)
				return true
			}
			if stop != nil && stop(v) {
				return false
			}
			return yield(v)
		}
		if ascending {
			s.store.Ascend(from, visit)
		} else {
			s.store.Descend(from, visit)
		}
	}
}

// All iterates over the elements in ascending order
func (s *SortedSet[T]) All() iter.Seq[*T] { return s.rangeFrom(nil, true, nil) }

// Backward iterates over the elements in descending order
func (s *SortedSet[T]) Backward() iter.Seq[*T] { return s.rangeFrom(nil, false, nil) }

// Ascend iterates in ascending order over the elements >= from
func (s *SortedSet[T]) Ascend(from *T) iter.Seq[*T] { return s.rangeFrom(from, true, nil) }

// Descend iterates in descending order over the elements <= from
func (s *SortedSet[T]) Descend(from *T) iter.Seq[*T] { return s.rangeFrom(from, false, nil) }

// Between iterates in ascending order over the elements in [lo, hi)
func (s *SortedSet[T]) Between(lo, hi *T) iter.Seq[*T] {
	return s.rangeFrom(lo, true, func(v *T) bool { return s.store.Compare(v, hi) >= 0 })
}

// Slice returns the live elements in ascending order
func (s *SortedSet[T]) Slice() []*T {
	out := make([]*T, 0, s.store.Len())
	for v := range s.All() {
		out = append(out, v)
	}
	return out
}

// Iterator returns an ascending iterator over a snapshot of the set
func (s *SortedSet[T]) Iterator() *Iterator[T] {
	s.ProcessQueue()
	cells := make([]ref.Referrer[T], 0, s.store.Len())
	s.store.Ascend(nil, func(e setEntry[T]) bool {
		cells = append(cells, e.Key)
		return true
	})
	return newIterator(cells, s.store.DeleteKey)
}

package refmap

import (
	"iter"

	"github.com/ValentinKolb/dRef/lib/backing"
	"github.com/ValentinKolb/dRef/lib/ref"
)

// SortedMap is an ordered map with reference-managed keys and values.
// Ordering and key uniqueness follow the compare function.
type SortedMap[K, V any] struct {
	base[K, V]
	sorted backing.SortedStore[K, V]
}

// NewSorted creates a sorted map. The default store is
// backing.NewConcurrentSorted(compare).
func NewSorted[K, V any](keyPolicy ref.Policy, keyEq ref.Equivalence[K], compare func(a, b *K) int, valuePolicy ref.Policy, valueEq ref.Equivalence[V], opts ...Option) (*SortedMap[K, V], error) {
	s := newSettings(opts)
	st, err := storeFor(s, func() backing.SortedStore[K, V] {
		return backing.NewConcurrentSorted[K, V](compare)
	})
	if err != nil {
		return nil, err
	}

	m := &SortedMap[K, V]{sorted: st}
	m.store = st
	m.each = func(fn func(e entry[K, V]) bool) { st.Ascend(nil, fn) }
	if err := m.init("sorted-map", s, keyPolicy, keyEq, valuePolicy, valueEq); err != nil {
		return nil, err
	}
	return m, nil
}

// find returns the first live entry in the given direction starting at from.
// With strict set, keys comparing equal to from are skipped.
func (m *SortedMap[K, V]) find(from *K, ascending, strict bool) (*Entry[K, V], entry[K, V]) {
	m.ProcessQueue()
	var (
		found *Entry[K, V]
		cells entry[K, V]
	)
	visit := func(e entry[K, V]) bool {
		k, v, ok := live(e)
		if !ok {
			m.sorted.DeleteKey(e.Key)
			return true
		}
		if strict && from != nil && m.sorted.Compare(k, from) == 0 {
			return true
		}
		found, cells = &Entry[K, V]{m: &m.base, key: k, value: v}, e
		return false
	}
	if ascending {
		m.sorted.Ascend(from, visit)
	} else {
		m.sorted.Descend(from, visit)
	}
	return found, cells
}

func keyOf[K, V any](e *Entry[K, V]) (*K, bool) {
	if e == nil {
		return nil, false
	}
	return e.key, true
}

func entryOf[K, V any](e *Entry[K, V]) (*Entry[K, V], bool) {
	return e, e != nil
}

// --------------------------------------------------------------------------
// Navigation
// --------------------------------------------------------------------------

func (m *SortedMap[K, V]) first() *Entry[K, V] {
	e, _ := m.find(nil, true, false)
	return e
}

func (m *SortedMap[K, V]) last() *Entry[K, V] {
	e, _ := m.find(nil, false, false)
	return e
}

// FirstKey returns the smallest key
func (m *SortedMap[K, V]) FirstKey() (*K, bool) { return keyOf(m.first()) }

// LastKey returns the largest key
func (m *SortedMap[K, V]) LastKey() (*K, bool) { return keyOf(m.last()) }

// CeilingKey returns the smallest key >= k
func (m *SortedMap[K, V]) CeilingKey(k *K) (*K, bool) { return keyOf(m.CeilingEntry(k)) }

// FloorKey returns the largest key <= k
func (m *SortedMap[K, V]) FloorKey(k *K) (*K, bool) { return keyOf(m.FloorEntry(k)) }

// HigherKey returns the smallest key > k
func (m *SortedMap[K, V]) HigherKey(k *K) (*K, bool) { return keyOf(m.HigherEntry(k)) }

// LowerKey returns the largest key < k
func (m *SortedMap[K, V]) LowerKey(k *K) (*K, bool) { return keyOf(m.LowerEntry(k)) }

func (m *SortedMap[K, V]) FirstEntry() (*Entry[K, V], bool) { return entryOf(m.first()) }
func (m *SortedMap[K, V]) LastEntry() (*Entry[K, V], bool)  { return entryOf(m.last()) }

// CeilingEntry returns the entry with the smallest key >= k, nil if there is none
func (m *SortedMap[K, V]) CeilingEntry(k *K) *Entry[K, V] {
	e, _ := m.find(element(k), true, false)
	return e
}

// FloorEntry returns the entry with the largest key <= k, nil if there is none
func (m *SortedMap[K, V]) FloorEntry(k *K) *Entry[K, V] {
	e, _ := m.find(element(k), false, false)
	return e
}

// HigherEntry returns the entry with the smallest key > k, nil if there is none
func (m *SortedMap[K, V]) HigherEntry(k *K) *Entry[K, V] {
	e, _ := m.find(element(k), true, true)
	return e
}

// LowerEntry returns the entry with the largest key < k, nil if there is none
func (m *SortedMap[K, V]) LowerEntry(k *K) *Entry[K, V] {
	e, _ := m.find(element(k), false, true)
	return e
}

// PollFirstEntry removes and returns the entry with the smallest key
func (m *SortedMap[K, V]) PollFirstEntry() (*Entry[K, V], bool) { return m.poll(true) }

// PollLastEntry removes and returns the entry with the largest key
func (m *SortedMap[K, V]) PollLastEntry() (*Entry[K, V], bool) { return m.poll(false) }

func (m *SortedMap[K, V]) poll(ascending bool) (*Entry[K, V], bool) {
	for {
		e, cells := m.find(nil, ascending, false)
		if e == nil {
			return nil, false
		}
		if m.sorted.DeleteKey(cells.Key) {
			return e, true
		}
	}
}

// --------------------------------------------------------------------------
// Ordered iteration
// --------------------------------------------------------------------------

func (m *SortedMap[K, V]) rangeFrom(from *K, ascending bool, stop func(k *K) bool) iter.Seq2[*K, *V] {
	return func(yield func(*K, *V) bool) {
		m.ProcessQueue()
		visit := m.visit(func(k *K, v *V) bool {
			if stop != nil && stop(k) {
				return false
			}
			return yield(k, v)
		})
		if ascending {
			m.sorted.Ascend(from, visit)
		} else {
			m.sorted.Descend(from, visit)
		}
	}
}

// Backward iterates over the entries in descending key order
func (m *SortedMap[K, V]) Backward() iter.Seq2[*K, *V] { return m.rangeFrom(nil, false, nil) }

// Ascend iterates in ascending order over the entries with keys >= from
func (m *SortedMap[K, V]) Ascend(from *K) iter.Seq2[*K, *V] { return m.rangeFrom(from, true, nil) }

// Descend iterates in descending order over the entries with keys <= from
func (m *SortedMap[K, V]) Descend(from *K) iter.Seq2[*K, *V] { return m.rangeFrom(from, false, nil) }

// Between iterates in ascending order over the entries with keys in [lo, hi)
func (m *SortedMap[K, V]) Between(lo, hi *K) iter.Seq2[*K, *V] {
	return m.rangeFrom(lo, true, func(k *K) bool { return m.sorted.Compare(k, hi) >= 0 })
}

// Compare is the key ordering of the map
func (m *SortedMap[K, V]) Compare(a, b *K) int { return m.sorted.Compare(a, b) }

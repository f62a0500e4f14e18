package refmap

import (
	"errors"
	"iter"
)

// ErrIllegalState is returned by Iterator.Remove without a current entry
var ErrIllegalState = errors.New("refmap: iterator has no current entry")

// Entry is a live key/value pair of a map. SetValue writes through to the map.
type Entry[K, V any] struct {
	m     *base[K, V]
	key   *K
	value *V
}

func (e *Entry[K, V]) Key() *K   { return e.key }
func (e *Entry[K, V]) Value() *V { return e.value }

// SetValue stores v under the key of the entry and returns the previous value
func (e *Entry[K, V]) SetValue(v *V) *V {
	prev, _ := e.m.Put(e.key, v)
	e.value = v
	return prev
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// Iterator walks a snapshot of the entries of a map. Dead entries are skipped
// and removed, the current key and value are held strongly until the next
// call to Next.
type Iterator[K, V any] struct {
	m       *base[K, V]
	entries []entry[K, V]
	pos     int
	cur     *entry[K, V]
	key     *K
	value   *V
}

// Next advances to the next live entry
func (it *Iterator[K, V]) Next() bool {
	it.cur, it.key, it.value = nil, nil, nil
	for it.pos < len(it.entries) {
		e := &it.entries[it.pos]
		it.pos++
		if k, v, ok := live(*e); ok {
			it.cur, it.key, it.value = e, k, v
			return true
		}
		it.m.store.DeleteKey(e.Key)
	}
	return false
}

func (it *Iterator[K, V]) Key() *K   { return it.key }
func (it *Iterator[K, V]) Value() *V { return it.value }

// Entry returns the current entry
func (it *Iterator[K, V]) Entry() *Entry[K, V] {
	if it.cur == nil {
		return nil
	}
	return &Entry[K, V]{m: it.m, key: it.key, value: it.value}
}

// Remove deletes the current entry from the map. An entry whose key got a new
// value in the meantime is removed as well, the key cell is the same.
func (it *Iterator[K, V]) Remove() error {
	if it.cur == nil {
		return ErrIllegalState
	}
	it.m.store.DeleteKey(it.cur.Key)
	it.cur = nil
	return nil
}

// --------------------------------------------------------------------------
// Views
// --------------------------------------------------------------------------

// KeySet is the key view of a map. Keys can only be added through the map.
type KeySet[K, V any] struct {
	m *base[K, V]
}

func (s *KeySet[K, V]) Len() int                  { return s.m.Len() }
func (s *KeySet[K, V]) Contains(k *K) bool        { return s.m.ContainsKey(k) }
func (s *KeySet[K, V]) Iterator() *Iterator[K, V] { return s.m.Iterator() }

// Remove deletes k and its value from the map
func (s *KeySet[K, V]) Remove(k *K) bool {
	_, ok := s.m.Remove(k)
	return ok
}

// Add always fails with errors.ErrUnsupported, a key needs a value
func (s *KeySet[K, V]) Add(*K) error { return errors.ErrUnsupported }

func (s *KeySet[K, V]) All() iter.Seq[*K] {
	return func(yield func(*K) bool) {
		for k := range s.m.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Slice returns the live keys
func (s *KeySet[K, V]) Slice() []*K {
	var out []*K
	for k := range s.All() {
		out = append(out, k)
	}
	return out
}

// ValueCollection is the value view of a map
type ValueCollection[K, V any] struct {
	m *base[K, V]
}

func (c *ValueCollection[K, V]) Len() int                  { return c.m.Len() }
func (c *ValueCollection[K, V]) Contains(v *V) bool        { return c.m.ContainsValue(v) }
func (c *ValueCollection[K, V]) Iterator() *Iterator[K, V] { return c.m.Iterator() }

// Add always fails with errors.ErrUnsupported, a value needs a key
func (c *ValueCollection[K, V]) Add(*V) error { return errors.ErrUnsupported }

// Remove deletes the first entry whose value equals v
func (c *ValueCollection[K, V]) Remove(v *V) bool {
	p := c.m.values.Probe(v)
	it := c.m.Iterator()
	for it.Next() {
		if p.Equal(it.Value()) {
			return it.Remove() == nil
		}
	}
	return false
}

func (c *ValueCollection[K, V]) All() iter.Seq[*V] {
	return func(yield func(*V) bool) {
		for _, v := range c.m.All() {
			if !yield(v) {
				return
			}
		}
	}
}

func (c *ValueCollection[K, V]) Slice() []*V {
	var out []*V
	for v := range c.All() {
		out = append(out, v)
	}
	return out
}

// EntrySet is the entry view of a map
type EntrySet[K, V any] struct {
	m *base[K, V]
}

func (s *EntrySet[K, V]) Len() int                  { return s.m.Len() }
func (s *EntrySet[K, V]) Iterator() *Iterator[K, V] { return s.m.Iterator() }

// Contains reports whether k maps to a value equal to v
func (s *EntrySet[K, V]) Contains(k *K, v *V) bool {
	cur, ok := s.m.Get(k)
	return ok && s.m.values.Probe(v).Equal(cur)
}

// Remove deletes k only if it maps to a value equal to v
func (s *EntrySet[K, V]) Remove(k *K, v *V) bool { return s.m.RemoveIf(k, v) }

func (s *EntrySet[K, V]) All() iter.Seq[*Entry[K, V]] {
	return func(yield func(*Entry[K, V]) bool) {
		for k, v := range s.m.All() {
			if !yield(&Entry[K, V]{m: s.m, key: k, value: v}) {
				return
			}
		}
	}
}

func (s *EntrySet[K, V]) Slice() []*Entry[K, V] {
	var out []*Entry[K, V]
	for e := range s.All() {
		out = append(out, e)
	}
	return out
}

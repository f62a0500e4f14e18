package collection

import (
	"github.com/ValentinKolb/dRef/lib/ref"
)

// List is a positional list of reference-managed elements.
//
// Positions count cells, not live elements: an element that died stays in
// place and reads as nil until the processor removed its cell, which shifts
// the following positions.
type List[T any] struct {
	sequence[T]
}

// NewList creates a list backed by a backing.Sequence, WithCapacity bounds it
func NewList[T any](policy ref.Policy, eq ref.Equivalence[T], opts ...Option) (*List[T], error) {
	l := &List[T]{}
	if err := l.setup("list", policy, eq, opts); err != nil {
		return nil, err
	}
	return l, nil
}

// Append adds v at the end, ErrFull if the list is full
func (l *List[T]) Append(v *T) error {
	if !l.push(v, false) {
		return ErrFull
	}
	return nil
}

// Insert adds v at position i (0 <= i <= Len)
func (l *List[T]) Insert(i int, v *T) error {
	l.ProcessQueue()
	if i < 0 || i > l.store.Len() {
		element(v)
		return ErrIndexOutOfRange
	}
	r := l.factory.Referenced(v)
	if l.store.Insert(i, r) {
		return nil
	}
	ref.Release(r)
	if c := l.store.Cap(); c > 0 && l.store.Len() >= c {
		return ErrFull
	}
	return ErrIndexOutOfRange
}

// Get returns the element at i, nil if it died
func (l *List[T]) Get(i int) (*T, error) {
	l.ProcessQueue()
	r, ok := l.store.At(i)
	if !ok {
		return nil, ErrIndexOutOfRange
	}
	return r.Get(), nil
}

// Set replaces the element at i and returns the previous one (nil if it died)
func (l *List[T]) Set(i int, v *T) (*T, error) {
	l.ProcessQueue()
	r := l.factory.Referenced(v)
	old, ok := l.store.Set(i, r)
	if !ok {
		ref.Release(r)
		return nil, ErrIndexOutOfRange
	}
	prev := old.Get()
	ref.Release(old)
	return prev, nil
}

// RemoveAt removes the cell at i and returns its element (nil if it died)
func (l *List[T]) RemoveAt(i int) (*T, error) {
	l.ProcessQueue()
	r, ok := l.store.RemoveAt(i)
	if !ok {
		return nil, ErrIndexOutOfRange
	}
	v := r.Get()
	ref.Release(r)
	return v, nil
}

// IndexOf returns the position of the first element equal to v, -1 if absent
func (l *List[T]) IndexOf(v *T) int { return l.index(v, false) }

// LastIndexOf returns the position of the last element equal to v, -1 if absent
func (l *List[T]) LastIndexOf(v *T) int { return l.index(v, true) }

func (l *List[T]) index(v *T, backward bool) int {
	l.ProcessQueue()
	p := l.factory.Probe(v)
	pos := -1
	visit := func(i int, r ref.Referrer[T]) bool {
		if p.Matches(r) {
			pos = i
			return false
		}
		return true
	}
	if backward {
		l.store.RangeBackward(visit)
	} else {
		l.store.Range(visit)
	}
	return pos
}

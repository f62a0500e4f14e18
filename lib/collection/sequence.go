package collection

import (
	"context"
	"iter"
	"math"
	"time"

	"github.com/ValentinKolb/dRef/lib/backing"
	"github.com/ValentinKolb/dRef/lib/ref"
)

// sequence holds what queues, deques and lists have in common
type sequence[T any] struct {
	core[T]
	store backing.SequenceStore[T]
}

func (q *sequence[T]) setup(kind string, policy ref.Policy, eq ref.Equivalence[T], opts []Option) error {
	s := newSettings(opts)
	store, err := storeFor(s, func() backing.SequenceStore[T] {
		return backing.NewSequence[T](s.capacity)
	})
	if err != nil {
		return err
	}
	q.store = store
	return q.init(kind, policy, eq, s, func(r ref.Referrer[T]) error {
		q.store.RemoveRef(r)
		return nil
	})
}

// --------------------------------------------------------------------------
// Element access helpers
// --------------------------------------------------------------------------

func (q *sequence[T]) push(v *T, front bool) bool {
	q.ProcessQueue()
	r := q.factory.Referenced(v)
	var ok bool
	if front {
		ok = q.store.PushFront(r)
	} else {
		ok = q.store.PushBack(r)
	}
	if !ok {
		ref.Release(r)
	}
	return ok
}

// pop removes cells until a live one turns up
func (q *sequence[T]) pop(front bool) (*T, bool) {
	q.ProcessQueue()
	for {
		var (
			r  ref.Referrer[T]
			ok bool
		)
		if front {
			r, ok = q.store.PopFront()
		} else {
			r, ok = q.store.PopBack()
		}
		if !ok {
			return nil, false
		}
		v := r.Get()
		ref.Release(r)
		if v != nil {
			return v, true
		}
	}
}

// peek returns the first live element at the given end, dead cells on the
// way are removed
func (q *sequence[T]) peek(front bool) (*T, bool) {
	q.ProcessQueue()
	for {
		var (
			r  ref.Referrer[T]
			ok bool
		)
		if front {
			r, ok = q.store.PeekFront()
		} else {
			r, ok = q.store.PeekBack()
		}
		if !ok {
			return nil, false
		}
		if v := r.Get(); v != nil {
			return v, true
		}
		q.store.RemoveRef(r)
	}
}

func (q *sequence[T]) removeOccurrence(v *T, first bool) bool {
	q.ProcessQueue()
	p := q.factory.Probe(v)
	var (
		r  ref.Referrer[T]
		ok bool
	)
	if first {
		r, ok = q.store.RemoveFirst(p.Matches)
	} else {
		r, ok = q.store.RemoveLast(p.Matches)
	}
	ref.Release(r)
	return ok
}

// --------------------------------------------------------------------------
// Blocking helpers
// --------------------------------------------------------------------------

func (q *sequence[T]) put(ctx context.Context, v *T, front bool) error {
	q.ProcessQueue()
	r := q.factory.Referenced(v)
	var err error
	if front {
		err = q.store.PushFrontWait(ctx, r)
	} else {
		err = q.store.PushBackWait(ctx, r)
	}
	if err != nil {
		ref.Release(r)
	}
	return err
}

func (q *sequence[T]) take(ctx context.Context, front bool) (*T, error) {
	q.ProcessQueue()
	for {
		var (
			r   ref.Referrer[T]
			err error
		)
		if front {
			r, err = q.store.PopFrontWait(ctx)
		} else {
			r, err = q.store.PopBackWait(ctx)
		}
		if err != nil {
			return nil, err
		}
		v := r.Get()
		ref.Release(r)
		if v != nil {
			return v, nil
		}
	}
}

func (q *sequence[T]) offerTimeout(v *T, d time.Duration, front bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return q.put(ctx, v, front) == nil
}

func (q *sequence[T]) pollTimeout(d time.Duration, front bool) (*T, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	v, err := q.take(ctx, front)
	return v, err == nil
}

func (q *sequence[T]) remainingCapacity() int {
	if q.store.Cap() == 0 {
		return math.MaxInt
	}
	q.ProcessQueue()
	return max(q.store.Cap()-q.store.Len(), 0)
}

// drainTo moves up to limit elements (limit <= 0: all) to sink
func (q *sequence[T]) drainTo(sink func(v *T), limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		v, ok := q.pop(true)
		if !ok {
			break
		}
		sink(v)
		n++
	}
	return n
}

// --------------------------------------------------------------------------
// Shared exported operations
// --------------------------------------------------------------------------

// Len returns the number of cells, dead ones not yet removed included
func (q *sequence[T]) Len() int {
	q.ProcessQueue()
	return q.store.Len()
}

func (q *sequence[T]) IsEmpty() bool { return q.Len() == 0 }

// Cap returns the capacity, 0 if unbounded
func (q *sequence[T]) Cap() int { return q.store.Cap() }

// Clear removes all elements
func (q *sequence[T]) Clear() { q.store.Clear() }

// Contains reports whether an element equal to v is present
func (q *sequence[T]) Contains(v *T) bool {
	q.ProcessQueue()
	p := q.factory.Probe(v)
	found := false
	q.store.Range(func(_ int, r ref.Referrer[T]) bool {
		if p.Matches(r) && r.Get() != nil {
			found = true
			return false
		}
		return true
	})
	return found
}

// Remove removes the first element equal to v
func (q *sequence[T]) Remove(v *T) bool { return q.removeOccurrence(v, true) }

// all yields the live elements of a snapshot and removes the dead cells
func (q *sequence[T]) all(backward bool) iter.Seq[*T] {
	return func(yield func(*T) bool) {
		q.ProcessQueue()
		visit := func(_ int, r ref.Referrer[T]) bool {
			v := r.Get()
			if v == nil {
				q.store.RemoveRef(r)
				return true
			}
			return yield(v)
		}
		if backward {
			q.store.RangeBackward(visit)
		} else {
			q.store.Range(visit)
		}
	}
}

// All iterates from front to back over a snapshot of the live elements
func (q *sequence[T]) All() iter.Seq[*T] { return q.all(false) }

// Slice returns the live elements from front to back
func (q *sequence[T]) Slice() []*T {
	out := make([]*T, 0, q.store.Len())
	for v := range q.all(false) {
		out = append(out, v)
	}
	return out
}

func (q *sequence[T]) iterator(backward bool) *Iterator[T] {
	q.ProcessQueue()
	cells := make([]ref.Referrer[T], 0, q.store.Len())
	visit := func(_ int, r ref.Referrer[T]) bool {
		cells = append(cells, r)
		return true
	}
	if backward {
		q.store.RangeBackward(visit)
	} else {
		q.store.Range(visit)
	}
	return newIterator(cells, q.store.RemoveRef)
}

// Iterator returns a front to back iterator that supports removal
func (q *sequence[T]) Iterator() *Iterator[T] { return q.iterator(false) }

// RemoveIf removes every element accepted by pred and returns their number
func (q *sequence[T]) RemoveIf(pred func(v *T) bool) int {
	n := 0
	it := q.iterator(false)
	for it.Next() {
		if pred(it.Value()) {
			it.Remove()
			n++
		}
	}
	return n
}

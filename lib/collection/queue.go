package collection

import (
	"iter"

	"github.com/ValentinKolb/dRef/lib/ref"
)

// Queue is a FIFO queue of reference-managed elements. Dead elements are
// skipped by Poll and Peek.
type Queue[T any] struct {
	sequence[T]
}

// NewQueue creates a queue backed by a backing.Sequence, WithCapacity bounds it
func NewQueue[T any](policy ref.Policy, eq ref.Equivalence[T], opts ...Option) (*Queue[T], error) {
	q := &Queue[T]{}
	if err := q.setup("queue", policy, eq, opts); err != nil {
		return nil, err
	}
	return q, nil
}

// Offer appends v, false if the queue is full
func (q *Queue[T]) Offer(v *T) bool { return q.push(v, false) }

// Add appends v, ErrFull if the queue is full
func (q *Queue[T]) Add(v *T) error {
	if !q.push(v, false) {
		return ErrFull
	}
	return nil
}

// Poll removes and returns the head
func (q *Queue[T]) Poll() (*T, bool) { return q.pop(true) }

// Peek returns the head without removing it
func (q *Queue[T]) Peek() (*T, bool) { return q.peek(true) }

// Element returns the head, ErrNoSuchElement if the queue is empty
func (q *Queue[T]) Element() (*T, error) {
	if v, ok := q.peek(true); ok {
		return v, nil
	}
	return nil, ErrNoSuchElement
}

// RemoveHead removes and returns the head, ErrNoSuchElement if the queue is empty
func (q *Queue[T]) RemoveHead() (*T, error) {
	if v, ok := q.pop(true); ok {
		return v, nil
	}
	return nil, ErrNoSuchElement
}

// --------------------------------------------------------------------------
// Deque
// --------------------------------------------------------------------------

// Deque is a double ended queue of reference-managed elements
type Deque[T any] struct {
	Queue[T]
}

// NewDeque creates a deque backed by a backing.Sequence, WithCapacity bounds it
func NewDeque[T any](policy ref.Policy, eq ref.Equivalence[T], opts ...Option) (*Deque[T], error) {
	d := &Deque[T]{}
	if err := d.setup("deque", policy, eq, opts); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Deque[T]) OfferFirst(v *T) bool { return d.push(v, true) }
func (d *Deque[T]) OfferLast(v *T) bool  { return d.push(v, false) }

// AddFirst inserts v at the front, ErrFull if the deque is full
func (d *Deque[T]) AddFirst(v *T) error {
	if !d.push(v, true) {
		return ErrFull
	}
	return nil
}

// AddLast appends v, ErrFull if the deque is full
func (d *Deque[T]) AddLast(v *T) error { return d.Add(v) }

func (d *Deque[T]) PollFirst() (*T, bool) { return d.pop(true) }
func (d *Deque[T]) PollLast() (*T, bool)  { return d.pop(false) }
func (d *Deque[T]) PeekFirst() (*T, bool) { return d.peek(true) }
func (d *Deque[T]) PeekLast() (*T, bool)  { return d.peek(false) }

// RemoveFirst removes and returns the first element, ErrNoSuchElement if empty
func (d *Deque[T]) RemoveFirst() (*T, error) { return d.RemoveHead() }

// RemoveLast removes and returns the last element, ErrNoSuchElement if empty
func (d *Deque[T]) RemoveLast() (*T, error) {
	if v, ok := d.pop(false); ok {
		return v, nil
	}
	return nil, ErrNoSuchElement
}

// Push uses the deque as a stack, it is AddFirst
func (d *Deque[T]) Push(v *T) error { return d.AddFirst(v) }

// Pop uses the deque as a stack, it is RemoveFirst
func (d *Deque[T]) Pop() (*T, error) { return d.RemoveHead() }

func (d *Deque[T]) RemoveFirstOccurrence(v *T) bool { return d.removeOccurrence(v, true) }
func (d *Deque[T]) RemoveLastOccurrence(v *T) bool  { return d.removeOccurrence(v, false) }

// Backward iterates from back to front over a snapshot of the live elements
func (d *Deque[T]) Backward() iter.Seq[*T] { return d.all(true) }

// DescendingIterator returns a back to front iterator that supports removal
func (d *Deque[T]) DescendingIterator() *Iterator[T] { return d.iterator(true) }

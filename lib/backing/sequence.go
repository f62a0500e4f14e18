package backing

import (
	"context"
	"sync"

	"github.com/ValentinKolb/dRef/lib/ref"
)

const minSequenceBuffer = 8

// Sequence is a ring buffer deque of cells with an optional capacity.
// Blocking operations wait on a broadcast channel that is replaced on every
// change, so waiters can also select on their context.
//
// Thread-safety: All methods are safe for concurrent use. match functions
// passed to RemoveFirst and RemoveLast run under the lock and must not call
// back into the sequence.
type Sequence[T any] struct {
	mu       sync.Mutex
	buf      []ref.Referrer[T]
	head     int
	n        int
	capacity int
	changed  chan struct{}
}

// NewSequence creates a sequence, a capacity <= 0 means unbounded
func NewSequence[T any](capacity int) *Sequence[T] {
	return &Sequence[T]{
		capacity: max(capacity, 0),
		changed:  make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Internal helpers (caller holds the lock)
// --------------------------------------------------------------------------

func (s *Sequence[T]) pos(i int) int {
	return (s.head + i) % len(s.buf)
}

func (s *Sequence[T]) full() bool {
	return s.capacity > 0 && s.n >= s.capacity
}

// signal wakes up every blocked waiter
func (s *Sequence[T]) signal() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Sequence[T]) grow() {
	if s.n < len(s.buf) {
		return
	}
	nb := make([]ref.Referrer[T], max(minSequenceBuffer, 2*len(s.buf)))
	for i := 0; i < s.n; i++ {
		nb[i] = s.buf[s.pos(i)]
	}
	s.buf = nb
	s.head = 0
}

func (s *Sequence[T]) pushBack(r ref.Referrer[T]) {
	s.grow()
	s.buf[s.pos(s.n)] = r
	s.n++
	s.signal()
}

func (s *Sequence[T]) pushFront(r ref.Referrer[T]) {
	s.grow()
	s.head = (s.head - 1 + len(s.buf)) % len(s.buf)
	s.buf[s.head] = r
	s.n++
	s.signal()
}

func (s *Sequence[T]) removeAt(i int) ref.Referrer[T] {
	r := s.buf[s.pos(i)]
	switch {
	case i == 0:
		s.buf[s.head] = nil
		s.head = (s.head + 1) % len(s.buf)
	default:
		for j := i; j < s.n-1; j++ {
			s.buf[s.pos(j)] = s.buf[s.pos(j+1)]
		}
		s.buf[s.pos(s.n-1)] = nil
	}
	s.n--
	s.signal()
	return r
}

// --------------------------------------------------------------------------
// Deque operations
// --------------------------------------------------------------------------

// PushFront adds r at the front, false if the sequence is full
func (s *Sequence[T]) PushFront(r ref.Referrer[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full() {
		return false
	}
	s.pushFront(r)
	return true
}

// PushBack adds r at the back, false if the sequence is full
func (s *Sequence[T]) PushBack(r ref.Referrer[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full() {
		return false
	}
	s.pushBack(r)
	return true
}

func (s *Sequence[T]) PopFront() (ref.Referrer[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return nil, false
	}
	return s.removeAt(0), true
}

func (s *Sequence[T]) PopBack() (ref.Referrer[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return nil, false
	}
	return s.removeAt(s.n - 1), true
}

func (s *Sequence[T]) PeekFront() (ref.Referrer[T], bool) {
	return s.At(0)
}

func (s *Sequence[T]) PeekBack() (ref.Referrer[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return nil, false
	}
	return s.buf[s.pos(s.n-1)], true
}

// --------------------------------------------------------------------------
// Positional operations
// --------------------------------------------------------------------------

func (s *Sequence[T]) At(i int) (ref.Referrer[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= s.n {
		return nil, false
	}
	return s.buf[s.pos(i)], true
}

// Set replaces the cell at i and returns the previous one
func (s *Sequence[T]) Set(i int, r ref.Referrer[T]) (ref.Referrer[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= s.n {
		return nil, false
	}
	p := s.pos(i)
	old := s.buf[p]
	s.buf[p] = r
	s.signal()
	return old, true
}

// Insert adds r at position i (0 <= i <= Len), false if i is out of range or the sequence is full
func (s *Sequence[T]) Insert(i int, r ref.Referrer[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i > s.n || s.full() {
		return false
	}
	if i == 0 {
		s.pushFront(r)
		return true
	}
	s.grow()
	for j := s.n; j > i; j-- {
		s.buf[s.pos(j)] = s.buf[s.pos(j-1)]
	}
	s.buf[s.pos(i)] = r
	s.n++
	s.signal()
	return true
}

func (s *Sequence[T]) RemoveAt(i int) (ref.Referrer[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= s.n {
		return nil, false
	}
	return s.removeAt(i), true
}

// RemoveRef removes and releases the cell r itself
func (s *Sequence[T]) RemoveRef(r ref.Referrer[T]) bool {
	if r == nil {
		return false
	}
	removed, ok := s.RemoveFirst(func(c ref.Referrer[T]) bool { return c == r })
	if ok {
		ref.Release(removed)
	}
	return ok
}

// RemoveFirst removes the first cell accepted by match
func (s *Sequence[T]) RemoveFirst(match func(r ref.Referrer[T]) bool) (ref.Referrer[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.n; i++ {
		if match(s.buf[s.pos(i)]) {
			return s.removeAt(i), true
		}
	}
	return nil, false
}

// RemoveLast removes the last cell accepted by match
func (s *Sequence[T]) RemoveLast(match func(r ref.Referrer[T]) bool) (ref.Referrer[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := s.n - 1; i >= 0; i-- {
		if match(s.buf[s.pos(i)]) {
			return s.removeAt(i), true
		}
	}
	return nil, false
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

func (s *Sequence[T]) snapshot() []ref.Referrer[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ref.Referrer[T], s.n)
	for i := range out {
		out[i] = s.buf[s.pos(i)]
	}
	return out
}

// Range calls fn for a snapshot of the cells from front to back
func (s *Sequence[T]) Range(fn func(i int, r ref.Referrer[T]) bool) {
	for i, r := range s.snapshot() {
		if !fn(i, r) {
			return
		}
	}
}

// RangeBackward calls fn for a snapshot of the cells from back to front
func (s *Sequence[T]) RangeBackward(fn func(i int, r ref.Referrer[T]) bool) {
	cells := s.snapshot()
	for i := len(cells) - 1; i >= 0; i-- {
		if !fn(i, cells[i]) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Blocking operations
// --------------------------------------------------------------------------

// wait runs try under the lock until it succeeds or ctx is done
func (s *Sequence[T]) wait(ctx context.Context, try func() bool) error {
	for {
		s.mu.Lock()
		if try() {
			s.mu.Unlock()
			return nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PushFrontWait blocks until there is room at the front
func (s *Sequence[T]) PushFrontWait(ctx context.Context, r ref.Referrer[T]) error {
	return s.wait(ctx, func() bool {
		if s.full() {
			return false
		}
		s.pushFront(r)
		return true
	})
}

// PushBackWait blocks until there is room at the back
func (s *Sequence[T]) PushBackWait(ctx context.Context, r ref.Referrer[T]) error {
	return s.wait(ctx, func() bool {
		if s.full() {
			return false
		}
		s.pushBack(r)
		return true
	})
}

// PopFrontWait blocks until a cell is available
func (s *Sequence[T]) PopFrontWait(ctx context.Context) (ref.Referrer[T], error) {
	var r ref.Referrer[T]
	err := s.wait(ctx, func() bool {
		if s.n == 0 {
			return false
		}
		r = s.removeAt(0)
		return true
	})
	return r, err
}

// PopBackWait blocks until a cell is available
func (s *Sequence[T]) PopBackWait(ctx context.Context) (ref.Referrer[T], error) {
	var r ref.Referrer[T]
	err := s.wait(ctx, func() bool {
		if s.n == 0 {
			return false
		}
		r = s.removeAt(s.n - 1)
		return true
	})
	return r, err
}

func (s *Sequence[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Cap returns the capacity, 0 if unbounded
func (s *Sequence[T]) Cap() int { return s.capacity }

// Clear removes and releases all cells
func (s *Sequence[T]) Clear() {
	cells := func() []ref.Referrer[T] {
		s.mu.Lock()
		defer s.mu.Unlock()
		out := make([]ref.Referrer[T], s.n)
		for i := range out {
			out[i] = s.buf[s.pos(i)]
		}
		s.buf = nil
		s.head, s.n = 0, 0
		s.signal()
		return out
	}()
	for _, r := range cells {
		ref.Release(r)
	}
}

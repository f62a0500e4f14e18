package collection

import (
	"context"
	"time"

	"github.com/ValentinKolb/dRef/lib/ref"
)

// BlockingQueue is a Queue whose Put and Take wait for room or elements.
// Waiting operations return the context error when ctx is done.
type BlockingQueue[T any] struct {
	Queue[T]
}

// NewBlockingQueue creates a blocking queue, WithCapacity bounds it
func NewBlockingQueue[T any](policy ref.Policy, eq ref.Equivalence[T], opts ...Option) (*BlockingQueue[T], error) {
	q := &BlockingQueue[T]{}
	if err := q.setup("blocking-queue", policy, eq, opts); err != nil {
		return nil, err
	}
	return q, nil
}

// Put appends v, waiting for room if the queue is full
func (q *BlockingQueue[T]) Put(ctx context.Context, v *T) error { return q.put(ctx, v, false) }

// Take removes the head, waiting until a live element is available
func (q *BlockingQueue[T]) Take(ctx context.Context) (*T, error) { return q.take(ctx, true) }

// OfferTimeout is Put giving up after d
func (q *BlockingQueue[T]) OfferTimeout(v *T, d time.Duration) bool {
	return q.offerTimeout(v, d, false)
}

// PollTimeout is Take giving up after d
func (q *BlockingQueue[T]) PollTimeout(d time.Duration) (*T, bool) {
	return q.pollTimeout(d, true)
}

// RemainingCapacity returns the free room, math.MaxInt if unbounded
func (q *BlockingQueue[T]) RemainingCapacity() int { return q.remainingCapacity() }

// DrainTo moves up to limit elements (limit <= 0: all) from the head to sink
func (q *BlockingQueue[T]) DrainTo(sink func(v *T), limit int) int { return q.drainTo(sink, limit) }

// --------------------------------------------------------------------------
// BlockingDeque
// --------------------------------------------------------------------------

// BlockingDeque is a Deque with waiting operations at both ends
type BlockingDeque[T any] struct {
	Deque[T]
}

// NewBlockingDeque creates a blocking deque, WithCapacity bounds it
func NewBlockingDeque[T any](policy ref.Policy, eq ref.Equivalence[T], opts ...Option) (*BlockingDeque[T], error) {
	d := &BlockingDeque[T]{}
	if err := d.setup("blocking-deque", policy, eq, opts); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *BlockingDeque[T]) Put(ctx context.Context, v *T) error      { return d.put(ctx, v, false) }
func (d *BlockingDeque[T]) PutFirst(ctx context.Context, v *T) error { return d.put(ctx, v, true) }
func (d *BlockingDeque[T]) PutLast(ctx context.Context, v *T) error  { return d.put(ctx, v, false) }

func (d *BlockingDeque[T]) Take(ctx context.Context) (*T, error)      { return d.take(ctx, true) }
func (d *BlockingDeque[T]) TakeFirst(ctx context.Context) (*T, error) { return d.take(ctx, true) }
func (d *BlockingDeque[T]) TakeLast(ctx context.Context) (*T, error)  { return d.take(ctx, false) }

func (d *BlockingDeque[T]) OfferTimeout(v *T, dur time.Duration) bool {
	return d.offerTimeout(v, dur, false)
}

func (d *BlockingDeque[T]) OfferFirstTimeout(v *T, dur time.Duration) bool {
	return d.offerTimeout(v, dur, true)
}

func (d *BlockingDeque[T]) OfferLastTimeout(v *T, dur time.Duration) bool {
	return d.offerTimeout(v, dur, false)
}

func (d *BlockingDeque[T]) PollTimeout(dur time.Duration) (*T, bool) {
	return d.pollTimeout(dur, true)
}

func (d *BlockingDeque[T]) PollFirstTimeout(dur time.Duration) (*T, bool) {
	return d.pollTimeout(dur, true)
}

func (d *BlockingDeque[T]) PollLastTimeout(dur time.Duration) (*T, bool) {
	return d.pollTimeout(dur, false)
}

func (d *BlockingDeque[T]) RemainingCapacity() int { return d.remainingCapacity() }

func (d *BlockingDeque[T]) DrainTo(sink func(v *T), limit int) int { return d.drainTo(sink, limit) }

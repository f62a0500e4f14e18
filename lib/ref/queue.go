package ref

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKolb/dRef/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// RefQueue receives dead cells of one collection role and feeds them to the processor
type RefQueue[T any] interface {
	// Offer adds a dead cell, false if the queue is closed
	Offer(r Referrer[T]) bool
	// Poll removes the oldest cell without blocking
	Poll() (Referrer[T], bool)
	// Remove blocks until a cell is available, the queue is closed or ctx is done
	Remove(ctx context.Context) (Referrer[T], error)
	Len() int
	Close()
	Closed() bool
}

// softRegistry is implemented by queues able to relax soft cells
type softRegistry[T any] interface {
	trackSoft(r *softRef[T])
	forgetSoft(id uint64)
}

// --------------------------------------------------------------------------
// Queue (collector notifications)
// --------------------------------------------------------------------------

// Queue is the reference queue for collector driven policies.
// Producers are the cleanup goroutine of the runtime and explicit Clear calls,
// the consumer is the processor. The queue also tracks the soft cells offering
// to it so their strong hold can be relaxed.
//
// Thread-safety: All methods are safe for concurrent use, consumers are serialized.
type Queue[T any] struct {
	items    *util.LockFreeMPSC[Referrer[T]]
	consumer sync.Mutex
	soft     *xsync.MapOf[uint64, *softRef[T]]
}

// NewQueue creates an empty reference queue
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items: util.NewLockFreeMPSC[Referrer[T]](),
		soft:  xsync.NewMapOf[uint64, *softRef[T]](),
	}
}

// Offer adds a dead cell
func (q *Queue[T]) Offer(r Referrer[T]) bool {
	if r == nil {
		return false
	}
	return q.items.Push(&r)
}

// Poll removes the oldest cell without blocking
func (q *Queue[T]) Poll() (Referrer[T], bool) {
	q.consumer.Lock()
	defer q.consumer.Unlock()

	p, ok := q.items.Pop()
	if !ok {
		return nil, false
	}
	return *p, true
}

// Remove blocks until a cell is available. It returns util.ErrQueueClosed once
// the queue is closed and empty, or the context error.
func (q *Queue[T]) Remove(ctx context.Context) (Referrer[T], error) {
	q.consumer.Lock()
	defer q.consumer.Unlock()

	p, err := q.items.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return *p, nil
}

func (q *Queue[T]) Len() int     { return q.items.Len() }
func (q *Queue[T]) Close()       { q.items.Close() }
func (q *Queue[T]) Closed() bool { return q.items.IsClosed() }

// --------------------------------------------------------------------------
// Soft cells
// --------------------------------------------------------------------------

// Relax drops the strong hold of every soft cell not accessed within idle.
// It returns the number of cells relaxed.
func (q *Queue[T]) Relax(idle time.Duration) int {
	deadline := time.Now().Add(-idle).UnixNano()
	relaxed := 0
	q.soft.Range(func(_ uint64, r *softRef[T]) bool {
		if r.relax(deadline) {
			relaxed++
		}
		return true
	})
	return relaxed
}

// SoftLen returns the number of soft cells tracked by the queue
func (q *Queue[T]) SoftLen() int { return q.soft.Size() }

// Pinned returns the number of soft cells currently holding their element strongly
func (q *Queue[T]) Pinned() int {
	pinned := 0
	q.soft.Range(func(_ uint64, r *softRef[T]) bool {
		if r.pinned() {
			pinned++
		}
		return true
	})
	return pinned
}

func (q *Queue[T]) trackSoft(r *softRef[T]) { q.soft.Store(r.id, r) }
func (q *Queue[T]) forgetSoft(id uint64)    { q.soft.Delete(id) }

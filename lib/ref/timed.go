package ref

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/ValentinKolb/dRef/lib/util"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger(common.LoggerRef)

// Canceler is implemented by elements that can be cancelled, such as pending tasks
type Canceler interface {
	Cancel()
}

// CancelOnExpire is the default expiry hook: it cancels elements implementing Canceler
func CancelOnExpire[T any](v *T) {
	if c, ok := any(v).(Canceler); ok {
		c.Cancel()
	}
}

// TimedQueue is the reference queue of the time policy. Cells do not die
// through the collector but through UpdateClock: a cell that was not touched
// (created or read with Get) since the previous clock advance expires, is
// enqueued and handed to the expiry hook.
//
// Registered cells are kept in a MapHeap ordered by their last-touch watermark,
// touched cells report themselves through a lock-free list so Get never locks.
//
// Thread-safety: All methods are safe for concurrent use.
type TimedQueue[T any] struct {
	*Queue[T]

	mu         sync.Mutex
	clock      atomic.Int64
	watermarks *util.MapHeap
	cells      map[uint64]*timeRef[T]
	touched    *util.LockFreeMPSC[timeRef[T]]
	onExpire   func(*T)
}

// NewTimedQueue creates a timed queue, a nil hook defaults to CancelOnExpire
func NewTimedQueue[T any](onExpire func(*T)) *TimedQueue[T] {
	if onExpire == nil {
		onExpire = CancelOnExpire[T]
	}
	return &TimedQueue[T]{
		Queue:      NewQueue[T](),
		watermarks: util.NewMapHeap(),
		cells:      make(map[uint64]*timeRef[T]),
		touched:    util.NewLockFreeMPSC[timeRef[T]](),
		onExpire:   onExpire,
	}
}

// Clock returns the value of the last clock advance
func (q *TimedQueue[T]) Clock() int64 { return q.clock.Load() }

// Registered returns the number of live time cells of the queue
func (q *TimedQueue[T]) Registered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cells)
}

// UpdateClock advances the clock to now. A touched cell gets now as its new
// watermark, an untouched cell whose watermark lies behind now expires.
// It returns the number of expired cells.
func (q *TimedQueue[T]) UpdateClock(now int64) int {
	q.mu.Lock()

	if now > q.clock.Load() {
		q.clock.Store(now)
	}

	// raise the watermark of every cell touched since the previous advance
	for {
		r, ok := q.touched.Pop()
		if !ok {
			break
		}
		if q.cells[r.id] != r {
			continue
		}
		r.touched.Store(false)
		r.watermark = now
		q.watermarks.AddItem(r.id, now)
	}

	var expired []*timeRef[T]
	for {
		item, ok := q.watermarks.Peek()
		if !ok || item.Priority >= now {
			break
		}
		q.watermarks.PopItem()
		r := q.cells[item.Key]

		// touched while we were draining, it stays in the touched list
		if r.touched.Load() {
			r.watermark = now
			q.watermarks.AddItem(r.id, now)
			continue
		}

		delete(q.cells, item.Key)
		expired = append(expired, r)
	}

	q.mu.Unlock()

	for _, r := range expired {
		v := r.value.Swap(nil)
		if v == nil {
			continue
		}
		r.cleared.Store(true)
		r.enqueue(r)
		q.expire(v)
	}
	return len(expired)
}

// expire runs the hook, a panicking hook must not stop the clock advance
func (q *TimedQueue[T]) expire(v *T) {
	defer func() {
		if err := recover(); err != nil {
			Logger.Errorf("expiry hook failed: %v", err)
		}
	}()
	q.onExpire(v)
}

// register counts the creation as a touch: the cell gets the clock of the
// next advance as its watermark and lives for at least one full period.
func (q *TimedQueue[T]) register(r *timeRef[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r.watermark = q.clock.Load()
	r.touched.Store(true)
	q.cells[r.id] = r
	q.watermarks.AddItem(r.id, r.watermark)
	q.touch(r)
}

func (q *TimedQueue[T]) touch(r *timeRef[T]) {
	q.touched.Push(r)
}

func (q *TimedQueue[T]) forget(r *timeRef[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cells[r.id] == r {
		delete(q.cells, r.id)
		q.watermarks.RemoveByKey(r.id)
	}
}

// Close closes the queue and drops all registered cells
func (q *TimedQueue[T]) Close() {
	q.mu.Lock()
	q.cells = make(map[uint64]*timeRef[T])
	q.watermarks = util.NewMapHeap()
	q.mu.Unlock()

	q.touched.Close()
	q.Queue.Close()
}

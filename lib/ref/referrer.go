package ref

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"
)

// nextID numbers every referrer of the process
var nextID atomic.Uint64

// Referrer is an indirection cell standing in for exactly one element.
//
// Once Get returns nil the cell is dead for good and has to be removed from
// every structure holding it. The set of implementations is closed, new cells
// are only created by New or a Queuing factory.
type Referrer[T any] interface {
	// Get returns the live element or nil once it was collected, expired or cleared
	Get() *T
	// Peek returns the live element like Get, but never counts as an access
	Peek() *T
	// Clear drops the element and reports the cell to its queue
	Clear()
	// Enqueue reports the cell to its queue, it returns false if the cell was
	// already enqueued or has no queue
	Enqueue() bool
	IsEnqueued() bool
	Policy() Policy
	// Hash is the hash of the element, computed when the cell was created
	Hash() uint64
	// Anchor is the hash of the slot owning the cell, for map values this is the key hash
	Anchor() uint64
	// ID is unique per process
	ID() uint64
	// Equal compares the live element with v under the cell's equivalence,
	// a dead cell equals nothing. Equal never counts as an access.
	Equal(v *T) bool

	release()
}

// Release drops the hold of r on its element without reporting it to the queue.
// Collections release the cells they remove themselves.
func Release[T any](r Referrer[T]) {
	if r != nil {
		r.release()
	}
}

// --------------------------------------------------------------------------
// Common cell state
// --------------------------------------------------------------------------

type cell[T any] struct {
	id       uint64
	hash     uint64
	anchor   uint64
	eq       Equivalence[T]
	queue    RefQueue[T]
	enqueued atomic.Bool
	cleared  atomic.Bool
}

func (c *cell[T]) init(hash, anchor uint64, eq Equivalence[T], queue RefQueue[T]) {
	c.id = nextID.Add(1)
	c.hash = hash
	c.anchor = anchor
	c.eq = eq
	c.queue = queue
}

func (c *cell[T]) ID() uint64       { return c.id }
func (c *cell[T]) Hash() uint64     { return c.hash }
func (c *cell[T]) Anchor() uint64   { return c.anchor }
func (c *cell[T]) IsEnqueued() bool { return c.enqueued.Load() }

// enqueue offers self to the queue, at most once per cell
func (c *cell[T]) enqueue(self Referrer[T]) bool {
	if c.queue == nil || !c.enqueued.CompareAndSwap(false, true) {
		return false
	}
	return c.queue.Offer(self)
}

func (c *cell[T]) matches(cur, v *T) bool {
	return cur != nil && v != nil && c.eq.Equal(cur, v)
}

// --------------------------------------------------------------------------
// Strong
// --------------------------------------------------------------------------

type strongRef[T any] struct {
	cell[T]
	value atomic.Pointer[T]
}

func newStrong[T any](v *T) *strongRef[T] {
	r := &strongRef[T]{}
	r.value.Store(v)
	return r
}

func (r *strongRef[T]) Get() *T         { return r.value.Load() }
func (r *strongRef[T]) Peek() *T        { return r.value.Load() }
func (r *strongRef[T]) Policy() Policy  { return PolicyStrong }
func (r *strongRef[T]) Enqueue() bool   { return r.enqueue(r) }
func (r *strongRef[T]) Equal(v *T) bool { return r.matches(r.value.Load(), v) }
func (r *strongRef[T]) Clear()          { r.release(); r.enqueue(r) }
func (r *strongRef[T]) release()        { r.cleared.Store(true); r.value.Store(nil) }
func (r *strongRef[T]) String() string  { return describe[T](r) }

// --------------------------------------------------------------------------
// Weak
// --------------------------------------------------------------------------

type weakRef[T any] struct {
	cell[T]
	policy Policy
	ptr    weak.Pointer[T]

	mu         sync.Mutex
	cleanup    runtime.Cleanup
	registered bool
}

func newWeak[T any](p Policy, v *T) *weakRef[T] {
	return &weakRef[T]{policy: p, ptr: weak.Make(v)}
}

// watch reports the cell to its queue once v has been collected.
// The cleanup argument is the cell itself which only holds a weak pointer to v.
func (r *weakRef[T]) watch(v *T) {
	if r.queue == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanup = runtime.AddCleanup(v, collected[T], Referrer[T](r))
	r.registered = true
}

func (r *weakRef[T]) Get() *T {
	if r.cleared.Load() {
		return nil
	}
	return r.ptr.Value()
}

func (r *weakRef[T]) Peek() *T        { return r.Get() }
func (r *weakRef[T]) Policy() Policy  { return r.policy }
func (r *weakRef[T]) Enqueue() bool   { return r.enqueue(r) }
func (r *weakRef[T]) Equal(v *T) bool { return r.matches(r.Get(), v) }
func (r *weakRef[T]) Clear()          { r.release(); r.enqueue(r) }
func (r *weakRef[T]) String() string  { return describe[T](r) }

func (r *weakRef[T]) release() {
	r.cleared.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		r.cleanup.Stop()
		r.registered = false
	}
}

// collected runs on the cleanup goroutine after the referent of r became unreachable
func collected[T any](r Referrer[T]) {
	r.Enqueue()
}

// --------------------------------------------------------------------------
// Soft
// --------------------------------------------------------------------------

// softRef pins its element with a strong pointer until it is relaxed by its
// queue, afterwards it behaves like a weak cell. Get re-pins a live element.
type softRef[T any] struct {
	cell[T]
	policy     Policy
	ptr        weak.Pointer[T]
	strong     atomic.Pointer[T]
	lastAccess atomic.Int64 // unix nanos

	mu         sync.Mutex
	cleanup    runtime.Cleanup
	registered bool
	registry   softRegistry[T]
}

func newSoft[T any](p Policy, v *T) *softRef[T] {
	r := &softRef[T]{policy: p, ptr: weak.Make(v)}
	r.strong.Store(v)
	r.lastAccess.Store(time.Now().UnixNano())
	return r
}

// watch registers the cell for relaxing and collection notifications.
// While the cell pins v the cleanup argument keeps v alive, which is exactly
// the soft contract, once relaxed only the weak pointer remains.
func (r *softRef[T]) watch(v *T) {
	if r.queue == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.queue.(softRegistry[T]); ok {
		r.registry = reg
		reg.trackSoft(r)
	}
	r.cleanup = runtime.AddCleanup(v, softCollected[T], r)
	r.registered = true
}

func (r *softRef[T]) Get() *T {
	if r.cleared.Load() {
		return nil
	}
	v := r.ptr.Value()
	if v == nil {
		return nil
	}
	r.lastAccess.Store(time.Now().UnixNano())
	if r.strong.Load() == nil {
		r.strong.CompareAndSwap(nil, v)
	}
	return v
}

// relax drops the strong hold if the cell was not accessed since deadline
func (r *softRef[T]) relax(deadline int64) bool {
	if r.lastAccess.Load() > deadline || r.strong.Load() == nil {
		return false
	}
	r.strong.Store(nil)
	return true
}

// pinned reports whether the cell currently holds its element strongly
func (r *softRef[T]) pinned() bool {
	return r.strong.Load() != nil
}

func (r *softRef[T]) Policy() Policy { return r.policy }
func (r *softRef[T]) Enqueue() bool  { return r.enqueue(r) }

// Peek returns the live element without re-pinning it
func (r *softRef[T]) Peek() *T {
	if r.cleared.Load() {
		return nil
	}
	return r.ptr.Value()
}

func (r *softRef[T]) Equal(v *T) bool { return r.matches(r.Peek(), v) }

func (r *softRef[T]) Clear()         { r.release(); r.enqueue(r) }
func (r *softRef[T]) String() string { return describe[T](r) }

func (r *softRef[T]) release() {
	r.cleared.Store(true)
	r.strong.Store(nil)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		r.cleanup.Stop()
		r.registered = false
	}
	if r.registry != nil {
		r.registry.forgetSoft(r.id)
	}
}

func softCollected[T any](r *softRef[T]) {
	r.mu.Lock()
	reg := r.registry
	r.registered = false
	r.mu.Unlock()
	if reg != nil {
		reg.forgetSoft(r.id)
	}
	r.enqueue(r)
}

// --------------------------------------------------------------------------
// Time
// --------------------------------------------------------------------------

// timeRef holds its element strongly until a clock advance of its
// TimedQueue finds it untouched since the previous advance.
type timeRef[T any] struct {
	cell[T]
	value   atomic.Pointer[T]
	touched atomic.Bool
	tq      *TimedQueue[T]

	watermark int64 // guarded by tq.mu
}

func newTime[T any](v *T, tq *TimedQueue[T]) *timeRef[T] {
	r := &timeRef[T]{tq: tq}
	r.value.Store(v)
	return r
}

// Get returns the element and marks the cell as touched for the next clock advance
func (r *timeRef[T]) Get() *T {
	v := r.value.Load()
	if v != nil && !r.touched.Load() && r.touched.CompareAndSwap(false, true) {
		r.tq.touch(r)
	}
	return v
}

func (r *timeRef[T]) Peek() *T        { return r.value.Load() }
func (r *timeRef[T]) Policy() Policy  { return PolicyTime }
func (r *timeRef[T]) Enqueue() bool   { return r.enqueue(r) }
func (r *timeRef[T]) Equal(v *T) bool { return r.matches(r.value.Load(), v) }
func (r *timeRef[T]) Clear()          { r.release(); r.enqueue(r) }
func (r *timeRef[T]) String() string  { return describe[T](r) }

func (r *timeRef[T]) release() {
	r.cleared.Store(true)
	if r.value.Swap(nil) != nil {
		r.tq.forget(r)
	}
}

// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) queue implementation.
//
// Features and Guarantees:
//
//   - Lock-Free writes: atomic operations for high throughput even under high contention
//   - Unbounded Size: the queue can grow to any size as needed, limited only by available memory
//   - Small Footprint: minimal memory overhead per item (two pointers per item)
//   - Pull based: the single consumer polls with Pop() or blocks with Wait(ctx),
//     there is no background goroutine owned by the queue
//   - No Strict FIFO Guarantee: Under concurrent Push() operations, the exact ordering of items
//     is determined by which producer completes its operation first, not by which producer
//     started first.
package util

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrQueueClosed is returned by Wait once the queue is closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// node represents a single element in the queue
type node[T interface{}] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue
// Implementation uses a linked list of nodes with atomic operations
// for concurrent push operations without locks
type LockFreeMPSC[T interface{}] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	size   atomic.Int64
	closed atomic.Bool

	// signal wakes a consumer blocked in Wait, buffered with capacity 1
	signal chan struct{}
	done   chan struct{}
}

// NewLockFreeMPSC creates a new lock-free multi-producer single-consumer queue
func NewLockFreeMPSC[T interface{}]() *LockFreeMPSC[T] {
	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	// Set the initial head and tail to the sentinel node
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {

	if value == nil {
		return false
	}

	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()

		// try to atomically append our node to the current tail
		next := tailNode.next.Load()
		if next == nil {
			// the tail has no next node yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				/*
				 Successfully appended, now try to update tail
				 Note: CAS may fail if another producer helps update tail,
				 but that's okay - tail will still be updated eventually
				*/
				q.tail.CompareAndSwap(tailNode, newNode)
				q.size.Add(1)

				// Signal a waiting consumer (never blocks)
				select {
				case q.signal <- struct{}{}:
				default:
				}

				return true
			}
		} else {
			// help update the tail pointer if another producer has already appended a node but hasn't updated the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff to handle contention:
		  - At low contention (<10 retries): spin with Gosched to avoid parking
		  - At higher contention: yield once per retry
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Pop removes the oldest item without blocking.
// The boolean is false if the queue is currently empty.
//
// Thread-safety: Only a single consumer may call Pop or Wait at a time.
func (q *LockFreeMPSC[T]) Pop() (*T, bool) {
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return nil, false
	}

	// Capture value before updating pointers
	value := next.value

	// move head pointer (the old sentinel becomes garbage)
	q.head.Store(next)
	q.size.Add(-1)

	// help go gc, next is the new sentinel
	next.value = nil

	return value, true
}

// Wait blocks until an item is available, the queue is closed or the context is done.
// It returns the popped item or the reason it stopped waiting.
//
// Thread-safety: Only a single consumer may call Pop or Wait at a time.
func (q *LockFreeMPSC[T]) Wait(ctx context.Context) (*T, error) {
	for {
		if value, ok := q.Pop(); ok {
			return value, nil
		}
		if q.closed.Load() {
			return nil, ErrQueueClosed
		}
		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close closes the queue, preventing further writes.
// Items already in the queue can still be popped.
func (q *LockFreeMPSC[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items in the queue.
// Under concurrent pushes the value is a snapshot and may be stale immediately.
func (q *LockFreeMPSC[T]) Len() int {
	// the counter trails the linked list, a concurrent Pop may briefly drive it below zero
	return max(int(q.size.Load()), 0)
}

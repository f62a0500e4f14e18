package backing

import (
	"context"

	"github.com/ValentinKolb/dRef/lib/ref"
)

// Entry is a key cell with an optional value cell (sets leave Value nil)
type Entry[K, V any] struct {
	Key   ref.Referrer[K]
	Value ref.Referrer[V]
}

// Live reports whether the key and (if present) the value cell are alive.
// It never counts as an access.
func (e Entry[K, V]) Live() bool {
	if e.Key == nil || e.Key.Peek() == nil {
		return false
	}
	return e.Value == nil || e.Value.Peek() != nil
}

// Op tells Compute what to do with the result of its function
type Op uint8

const (
	OpKeep   Op = iota // leave the store unchanged
	OpStore            // store the returned entry
	OpDelete           // delete the current entry
)

// ComputeFunc is called with the live entry matching the probe (loaded=false if
// there is none). Dead entries are never passed in. Cells of the old entry not
// part of the stored result are released after Compute returns, so elements of
// the old entry have to be read inside the function.
type ComputeFunc[K, V any] func(old Entry[K, V], loaded bool) (Entry[K, V], Op)

// --------------------------------------------------------------------------
// Store interfaces
// --------------------------------------------------------------------------

// MapStore is a hash store of entries, keys are unique under their equivalence
type MapStore[K, V any] interface {
	// Load returns the live entry whose key matches the probe
	Load(key ref.Probe[K]) (Entry[K, V], bool)
	// Compute atomically updates the entry matching the probe.
	// It returns the entry present after the call.
	Compute(key ref.Probe[K], fn ComputeFunc[K, V]) (Entry[K, V], bool)
	// DeleteKey removes the entry whose key cell is exactly r, it is a no-op if there is none
	DeleteKey(r ref.Referrer[K]) bool
	// DeleteValue removes the entry whose value cell is exactly r, located by r.Anchor()
	DeleteValue(r ref.Referrer[V]) bool
	// Len counts entries including dead ones not yet removed
	Len() int
	// Range calls fn for every entry (dead ones included) until fn returns false.
	// fn may modify the store.
	Range(fn func(e Entry[K, V]) bool)
	Clear()
	Concurrent() bool
}

// SortedStore is an ordered store of entries. Every entry keeps a snapshot of
// its key for ordering so that dead entries can still be located.
type SortedStore[K, V any] interface {
	Load(key ref.Probe[K]) (Entry[K, V], bool)
	Compute(key ref.Probe[K], fn ComputeFunc[K, V]) (Entry[K, V], bool)
	DeleteKey(r ref.Referrer[K]) bool
	DeleteValue(r ref.Referrer[V]) bool
	Len() int
	// Ascend calls fn in ascending order starting at the first entry >= from
	// (from nil: the smallest entry). fn may modify the store.
	Ascend(from *K, fn func(e Entry[K, V]) bool)
	// Descend calls fn in descending order starting at the last entry <= from
	// (from nil: the largest entry). fn may modify the store.
	Descend(from *K, fn func(e Entry[K, V]) bool)
	// Compare is the ordering of the store
	Compare(a, b *K) int
	Clear()
	Concurrent() bool
}

// SequenceStore is a positional store of cells. A capacity of 0 means unbounded.
type SequenceStore[T any] interface {
	PushFront(r ref.Referrer[T]) bool
	PushBack(r ref.Referrer[T]) bool
	PopFront() (ref.Referrer[T], bool)
	PopBack() (ref.Referrer[T], bool)
	PeekFront() (ref.Referrer[T], bool)
	PeekBack() (ref.Referrer[T], bool)

	At(i int) (ref.Referrer[T], bool)
	Set(i int, r ref.Referrer[T]) (ref.Referrer[T], bool)
	Insert(i int, r ref.Referrer[T]) bool
	RemoveAt(i int) (ref.Referrer[T], bool)

	// RemoveRef removes the cell r itself, it is a no-op if r is absent
	RemoveRef(r ref.Referrer[T]) bool
	RemoveFirst(match func(r ref.Referrer[T]) bool) (ref.Referrer[T], bool)
	RemoveLast(match func(r ref.Referrer[T]) bool) (ref.Referrer[T], bool)

	// Range and RangeBackward iterate over a snapshot, fn may modify the store
	Range(fn func(i int, r ref.Referrer[T]) bool)
	RangeBackward(fn func(i int, r ref.Referrer[T]) bool)

	PushFrontWait(ctx context.Context, r ref.Referrer[T]) error
	PushBackWait(ctx context.Context, r ref.Referrer[T]) error
	PopFrontWait(ctx context.Context) (ref.Referrer[T], error)
	PopBackWait(ctx context.Context) (ref.Referrer[T], error)

	Len() int
	Cap() int
	Clear()
}

// --------------------------------------------------------------------------
// Helpers shared by the implementations
// --------------------------------------------------------------------------

// releaseEntry releases both cells of an entry
func releaseEntry[K, V any](e Entry[K, V]) {
	ref.Release(e.Key)
	ref.Release(e.Value)
}

// releaseDisplaced releases the cells of old that are not part of kept
func releaseDisplaced[K, V any](old, kept Entry[K, V], stored bool) {
	if !stored || old.Key != kept.Key {
		ref.Release(old.Key)
	}
	if old.Value != nil && (!stored || old.Value != kept.Value) {
		ref.Release(old.Value)
	}
}

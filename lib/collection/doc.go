// Package collection provides reference-managed collections: Set, SortedSet,
// Queue, Deque, BlockingQueue, BlockingDeque and List.
//
// The wrappers store ref.Referrer cells in a backing store instead of raw
// elements, so every element can be held strongly, weakly, softly or with a
// time based expiry. Apart from that they behave like ordinary collections:
//
//   - reads use a ref.Probe and never allocate a cell or touch a queue
//   - insertions wrap the element into a durable, queue registered cell
//   - a collected or expired element is never returned, even before the
//     processor removed its cell, dead cells met while iterating are removed
//     on the spot
//
// Every collection owns a reference queue and a processor.Processor. With
// background sweeping enabled (the default) a goroutine removes dead cells
// every cycle, so a collection must be closed with Close when it is no longer
// needed. Nil elements are not permitted, passing nil panics with
// ref.ErrNilReferent.
//
// Thread-safety is inherited from the backing store: the default stores are
// safe for concurrent use, stores created with backing.NewMap or
// backing.NewSorted are not.
package collection

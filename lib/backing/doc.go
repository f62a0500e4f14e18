// Package backing provides the stores of referrers behind reference-managed
// collections.
//
// The wrappers of the collection and refmap packages only talk to the
// interfaces of this package, an instantiator may supply its own store:
//
//   - MapStore: hash store of key cells (and value cells for maps)
//   - SortedStore: ordered store of key cells, navigable in both directions
//   - SequenceStore: positional store (deque, queue, list), optionally bounded
//     and blocking
//
// The concurrent implementations (NewConcurrentMap, NewConcurrentSorted,
// NewSequence) are safe for concurrent use, NewMap and NewSorted are not and
// leave synchronization to the caller.
//
// Cell ownership: a store releases (see ref.Release) every cell it drops by
// itself, that is cells displaced by Compute, cells removed by DeleteKey,
// DeleteValue and RemoveRef and all cells on Clear. Cells handed back to the
// caller (Pop, RemoveAt, Set, ...) are released by the caller once it has read
// the element.
package backing

// Package ref provides the indirection cells ("referrers") that reference-managed
// collections store instead of raw elements.
//
// A referrer stands in for exactly one element and follows one of six policies:
//
//   - Strong: the cell owns the element and never clears by itself
//   - Weak / WeakIdentity: the element may be collected once nothing else
//     references it, the cell is then pushed onto its reference queue
//   - Soft / SoftIdentity: like weak, but the cell pins the element until it
//     has been idle longer than the soft budget
//   - Time: the cell expires when a clock advance finds it untouched since
//     the previous advance
//
// Equality of referrers is defined by an Equivalence, either over the element
// value or over its identity (pointer). Lookups never allocate a cell, they use
// a Probe value instead, so a read never registers anything with a queue.
//
// Dead cells are reported through a RefQueue. A Queue receives collector
// notifications, a TimedQueue additionally drives the clock of time cells.
// Draining the queues and removing the dead cells from the owning collection is
// the job of the processor package.
package ref

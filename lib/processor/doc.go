// Package processor removes dead cells from reference-managed collections.
//
// A Processor owns one Task per reference queue of a collection (a map has one
// for its keys and one for its values). Every sweep advances the clock of timed
// queues, relaxes idle soft cells and drains each queue, handing every dead
// cell to the task's remove function which excises it from the owning store.
//
// Lifecycle is explicit: New creates a stopped processor, Start launches the
// background goroutine (only if Config.Background is set), Sweep runs a full
// sweep synchronously and Close stops the goroutine and closes the queues.
// Failures while removing a single cell are logged and counted but never
// abort the sweep and never reach the caller of a collection operation.
package processor

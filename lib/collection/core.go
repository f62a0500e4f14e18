package collection

import (
	"fmt"

	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/ValentinKolb/dRef/lib/processor"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger(common.LoggerCollection)

// --------------------------------------------------------------------------
// Shared state of all collections
// --------------------------------------------------------------------------

// core owns the cell factory, the reference queue and the processor of a
// collection
type core[T any] struct {
	name    string
	factory *ref.Queuing[T]
	proc    *processor.Processor
}

// init builds the queue, factory and processor and starts the processor.
// remove takes a dead cell out of the backing store.
func (c *core[T]) init(kind string, policy ref.Policy, eq ref.Equivalence[T], s *settings, remove func(ref.Referrer[T]) error) error {
	q, err := queueFor[T](policy, s)
	if err != nil {
		return err
	}
	factory, err := ref.NewQueuing(policy, eq, q)
	if err != nil {
		return err
	}

	c.name = s.name
	if c.name == "" {
		c.name = fmt.Sprintf("%s-%s", kind, policy)
	}
	c.factory = factory
	c.proc = processor.New(s.proc, processor.NewTask(c.name, q, remove))
	c.proc.Start()

	Logger.Debugf("created %s (background=%t)", c.name, s.proc.Background)
	return nil
}

// Policy returns the reference policy of the elements
func (c *core[T]) Policy() ref.Policy { return c.factory.Policy() }

// Equivalence returns the equivalence used to compare elements
func (c *core[T]) Equivalence() ref.Equivalence[T] { return c.factory.Equivalence() }

// ProcessQueue removes the cells reported dead so far. Every operation calls
// it first, so it only needs to be called explicitly before Len when an exact
// count matters.
func (c *core[T]) ProcessQueue() { c.proc.Drain() }

// Sweep runs a full processor sweep: timed queues advance their clock, idle
// soft cells are relaxed and dead cells removed.
func (c *core[T]) Sweep() processor.Result { return c.proc.Sweep() }

// Info returns the processor statistics of the collection
func (c *core[T]) Info() processor.Info { return c.proc.Info() }

// Close stops the processor of the collection. The collection stays usable,
// but dead cells are only removed when met during iteration.
func (c *core[T]) Close() error {
	Logger.Debugf("closing %s", c.name)
	return c.proc.Close()
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// Iterator walks a snapshot of the cells of a collection. Dead cells are
// skipped and removed, the current element is held strongly until the next
// call to Next.
//
//	it := set.Iterator()
//	for it.Next() {
//		if shouldDrop(it.Value()) {
//			it.Remove()
//		}
//	}
type Iterator[T any] struct {
	cells  []ref.Referrer[T]
	pos    int
	cur    ref.Referrer[T]
	value  *T
	remove func(r ref.Referrer[T]) bool
}

func newIterator[T any](cells []ref.Referrer[T], remove func(r ref.Referrer[T]) bool) *Iterator[T] {
	return &Iterator[T]{cells: cells, remove: remove}
}

// Next advances to the next live element, false once the snapshot is exhausted
func (it *Iterator[T]) Next() bool {
	it.cur, it.value = nil, nil
	for it.pos < len(it.cells) {
		r := it.cells[it.pos]
		it.pos++
		if v := r.Get(); v != nil {
			it.cur, it.value = r, v
			return true
		}
		it.remove(r)
	}
	return false
}

// Value returns the current element
func (it *Iterator[T]) Value() *T { return it.value }

// Remove removes the current element from the collection
func (it *Iterator[T]) Remove() error {
	if it.cur == nil {
		return ErrIllegalState
	}
	it.remove(it.cur)
	it.cur = nil
	return nil
}

// element panics with ref.ErrNilReferent if v is nil
func element[T any](v *T) *T {
	if v == nil {
		panic(ref.ErrNilReferent)
	}
	return v
}

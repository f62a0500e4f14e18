package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dRef/lib/ref"
)

// ErrRemovePanic wraps a panic raised by a remove function
var ErrRemovePanic = errors.New("processor: remove panicked")

// Task drains one reference queue. Tasks are created with NewTask.
type Task interface {
	// Name identifies the task in logs and Info
	Name() string
	// Backlog is the number of dead cells waiting in the queue
	Backlog() int

	run(s sweep) Result
	close()
}

// sweep carries the parameters of one sweep to all tasks
type sweep struct {
	now  int64
	idle time.Duration
	full bool // advance clocks and relax soft cells, otherwise only drain
}

// clocked is implemented by queues driven by UpdateClock (ref.TimedQueue)
type clocked interface {
	UpdateClock(now int64) int
}

// relaxer is implemented by queues tracking soft cells (ref.Queue)
type relaxer interface {
	Relax(idle time.Duration) int
}

type task[T any] struct {
	name   string
	queue  ref.RefQueue[T]
	remove func(ref.Referrer[T]) error
}

// NewTask creates a task draining queue. remove must excise the given dead cell
// from the owning store, removing an absent cell has to be a no-op.
func NewTask[T any](name string, queue ref.RefQueue[T], remove func(ref.Referrer[T]) error) Task {
	return &task[T]{name: name, queue: queue, remove: remove}
}

func (t *task[T]) Name() string { return t.name }
func (t *task[T]) Backlog() int { return t.queue.Len() }
func (t *task[T]) close()       { t.queue.Close() }

func (t *task[T]) run(s sweep) (res Result) {
	if s.full {
		if c, ok := t.queue.(clocked); ok {
			res.Expired = c.UpdateClock(s.now)
		}
		if r, ok := t.queue.(relaxer); ok {
			res.Relaxed = r.Relax(s.idle)
		}
	}

	for {
		r, ok := t.queue.Poll()
		if !ok {
			break
		}
		res.Drained++

		if err := t.safeRemove(r); err != nil {
			res.Failures++
			Logger.Warningf("task %s: failed to remove %v: %v", t.name, r, err)
			continue
		}
		res.Removed++
	}
	return res
}

// safeRemove runs remove, a panic is turned into an error
func (t *task[T]) safeRemove(r ref.Referrer[T]) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrRemovePanic, rec)
		}
	}()
	return t.remove(r)
}

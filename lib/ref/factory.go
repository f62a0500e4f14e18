package ref

import (
	"errors"
	"fmt"
)

// ErrNoEquivalence is returned when a referrer is built without an equivalence
var ErrNoEquivalence = errors.New("ref: missing equivalence")

// Options configures a single referrer
type Options[T any] struct {
	// Equivalence defines hash and equality of the element (required)
	Equivalence Equivalence[T]
	// Queue receives the cell once it is dead, nil disables notifications.
	// The time policy requires a *TimedQueue.
	Queue RefQueue[T]
	// Anchor is used as the cell's anchor if Anchored is set, otherwise the
	// element hash is used
	Anchor   uint64
	Anchored bool
}

// New creates the referrer variant for policy p holding v
func New[T any](p Policy, v *T, opts Options[T]) (Referrer[T], error) {
	if v == nil {
		return nil, ErrNilReferent
	}
	if err := checkEquivalence(p, opts.Equivalence); err != nil {
		return nil, err
	}

	hash := opts.Equivalence.Hash(v)
	anchor := hash
	if opts.Anchored {
		anchor = opts.Anchor
	}

	switch p {
	case PolicyStrong:
		r := newStrong(v)
		r.init(hash, anchor, opts.Equivalence, opts.Queue)
		return r, nil
	case PolicyWeak, PolicyWeakIdentity:
		r := newWeak(p, v)
		r.init(hash, anchor, opts.Equivalence, opts.Queue)
		r.watch(v)
		return r, nil
	case PolicySoft, PolicySoftIdentity:
		r := newSoft(p, v)
		r.init(hash, anchor, opts.Equivalence, opts.Queue)
		r.watch(v)
		return r, nil
	case PolicyTime:
		tq, ok := opts.Queue.(*TimedQueue[T])
		if !ok || tq == nil {
			return nil, fmt.Errorf("%w: %s needs a timed queue", ErrQueueMismatch, p)
		}
		r := newTime(v, tq)
		r.init(hash, anchor, opts.Equivalence, tq)
		tq.register(r)
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, p)
	}
}

func checkEquivalence[T any](p Policy, eq Equivalence[T]) error {
	if eq == nil {
		return ErrNoEquivalence
	}
	if !p.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, p)
	}
	if eq.Identity() != p.Identity() {
		return fmt.Errorf("%w: %s with identity=%t", ErrMixedEquivalence, p, eq.Identity())
	}
	return nil
}

// describe formats a referrer for debugging, e.g. "WEAK#12" or "TIME#3(enqueued)"
func describe[T any](r Referrer[T]) string {
	if r.IsEnqueued() {
		return fmt.Sprintf("%s#%d(enqueued)", r.Policy(), r.ID())
	}
	return fmt.Sprintf("%s#%d", r.Policy(), r.ID())
}

// --------------------------------------------------------------------------
// Queuing factory
// --------------------------------------------------------------------------

// Queuing wraps and unwraps the elements of one role (keys or values) of a
// collection. It is immutable and shared by all operations of the collection.
//
// Thread-safety: All methods are safe for concurrent use.
type Queuing[T any] struct {
	policy Policy
	eq     Equivalence[T]
	queue  RefQueue[T]
}

// NewQueuing validates the combination of policy, equivalence and queue.
// Identity policies require an identity equivalence and all other policies a
// value equivalence, the time policy requires a *TimedQueue.
func NewQueuing[T any](p Policy, eq Equivalence[T], queue RefQueue[T]) (*Queuing[T], error) {
	if err := checkEquivalence(p, eq); err != nil {
		return nil, err
	}
	if p == PolicyTime {
		if tq, ok := queue.(*TimedQueue[T]); !ok || tq == nil {
			return nil, fmt.Errorf("%w: %s needs a timed queue", ErrQueueMismatch, p)
		}
	}
	return &Queuing[T]{policy: p, eq: eq, queue: queue}, nil
}

// Referenced wraps v into a durable cell registered with the queue.
// It panics with ErrNilReferent if v is nil.
func (f *Queuing[T]) Referenced(v *T) Referrer[T] {
	return f.build(v, Options[T]{Equivalence: f.eq, Queue: f.queue})
}

// ReferencedAt is Referenced with an explicit anchor
func (f *Queuing[T]) ReferencedAt(v *T, anchor uint64) Referrer[T] {
	return f.build(v, Options[T]{Equivalence: f.eq, Queue: f.queue, Anchor: anchor, Anchored: true})
}

func (f *Queuing[T]) build(v *T, opts Options[T]) Referrer[T] {
	if v == nil {
		panic(ErrNilReferent)
	}
	r, err := New(f.policy, v, opts)
	if err != nil {
		// the combination was validated by NewQueuing
		panic(err)
	}
	return r
}

// Probe wraps v for a lookup, it panics with ErrNilReferent if v is nil
func (f *Queuing[T]) Probe(v *T) Probe[T] {
	return MakeProbe(v, f.eq)
}

// PseudoReferent unwraps a cell for a view, nil if the cell is dead
func (f *Queuing[T]) PseudoReferent(r Referrer[T]) *T {
	if r == nil {
		return nil
	}
	return r.Get()
}

func (f *Queuing[T]) Policy() Policy              { return f.policy }
func (f *Queuing[T]) Equivalence() Equivalence[T] { return f.eq }
func (f *Queuing[T]) Queue() RefQueue[T]          { return f.queue }

package collection

import (
	"fmt"

	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/ValentinKolb/dRef/lib/processor"
	"github.com/ValentinKolb/dRef/lib/ref"
)

// settings collects the options of a collection. Typed options are stored as
// any and checked against the element type on construction.
type settings struct {
	proc     processor.Config
	capacity int
	name     string
	store    any
	queue    any
	onExpire any
}

func newSettings(opts []Option) *settings {
	s := &settings{proc: processor.DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a collection
type Option func(*settings)

// WithConfig takes processor settings from the module configuration
func WithConfig(cfg common.Config) Option {
	return func(s *settings) { s.proc = processor.FromCommon(cfg) }
}

// WithProcessor sets the processor configuration
func WithProcessor(cfg processor.Config) Option {
	return func(s *settings) { s.proc = cfg }
}

// WithCapacity bounds queues, deques and lists (0 = unbounded)
func WithCapacity(n int) Option {
	return func(s *settings) { s.capacity = n }
}

// WithName names the collection in logs and processor statistics
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithStore replaces the default backing store. The store has to match the
// collection: backing.MapStore[T, struct{}] for sets,
// backing.SortedStore[T, struct{}] for sorted sets and
// backing.SequenceStore[T] for queues, deques and lists.
func WithStore[S any](store S) Option {
	return func(s *settings) { s.store = store }
}

// WithQueue sets the reference queue of the collection. The time policy
// requires a *ref.TimedQueue[T].
func WithQueue[T any](q ref.RefQueue[T]) Option {
	return func(s *settings) { s.queue = q }
}

// WithOnExpire sets the expiry hook of the time policy, the default cancels
// elements implementing ref.Canceler
func WithOnExpire[T any](fn func(*T)) Option {
	return func(s *settings) { s.onExpire = fn }
}

// storeFor returns the configured store or the result of def
func storeFor[S any](s *settings, def func() S) (S, error) {
	if s.store == nil {
		return def(), nil
	}
	store, ok := s.store.(S)
	if !ok {
		var zero S
		return zero, fmt.Errorf("%w: store is %T, want %T", ErrOptionType, s.store, zero)
	}
	return store, nil
}

// queueFor returns the configured queue or a new one fitting the policy
func queueFor[T any](policy ref.Policy, s *settings) (ref.RefQueue[T], error) {
	if s.queue != nil {
		q, ok := s.queue.(ref.RefQueue[T])
		if !ok {
			return nil, fmt.Errorf("%w: queue is %T", ErrOptionType, s.queue)
		}
		return q, nil
	}

	if policy != ref.PolicyTime {
		return ref.NewQueue[T](), nil
	}

	var hook func(*T)
	if s.onExpire != nil {
		fn, ok := s.onExpire.(func(*T))
		if !ok {
			return nil, fmt.Errorf("%w: expiry hook is %T", ErrOptionType, s.onExpire)
		}
		hook = fn
	}
	return ref.NewTimedQueue[T](hook), nil
}

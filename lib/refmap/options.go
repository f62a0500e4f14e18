package refmap

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/ValentinKolb/dRef/lib/processor"
	"github.com/ValentinKolb/dRef/lib/ref"
)

// ErrOptionType is returned when an option does not match the key or value type
var ErrOptionType = errors.New("refmap: option does not match map types")

// role holds the options of the key or the value side
type role struct {
	queue    any
	onExpire any
}

type settings struct {
	proc   processor.Config
	name   string
	store  any
	keys   role
	values role
}

func newSettings(opts []Option) *settings {
	s := &settings{proc: processor.DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a map
type Option func(*settings)

// WithConfig takes processor settings from the module configuration
func WithConfig(cfg common.Config) Option {
	return func(s *settings) { s.proc = processor.FromCommon(cfg) }
}

func WithProcessor(cfg processor.Config) Option {
	return func(s *settings) { s.proc = cfg }
}

// WithName names the map in logs and processor statistics
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithStore replaces the default store: a backing.MapStore[K, V] for Map and a
// backing.SortedStore[K, V] for SortedMap
func WithStore[S any](store S) Option {
	return func(s *settings) { s.store = store }
}

func WithKeyQueue[K any](q ref.RefQueue[K]) Option {
	return func(s *settings) { s.keys.queue = q }
}

func WithValueQueue[V any](q ref.RefQueue[V]) Option {
	return func(s *settings) { s.values.queue = q }
}

// WithKeyOnExpire sets the expiry hook for time policy keys
func WithKeyOnExpire[K any](fn func(*K)) Option {
	return func(s *settings) { s.keys.onExpire = fn }
}

// WithValueOnExpire sets the expiry hook for time policy values
func WithValueOnExpire[V any](fn func(*V)) Option {
	return func(s *settings) { s.values.onExpire = fn }
}

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

// factoryFor builds the cell factory of one side of the map
func factoryFor[T any](side string, policy ref.Policy, eq ref.Equivalence[T], r role) (*ref.Queuing[T], error) {
	var q ref.RefQueue[T]
	switch {
	case r.queue != nil:
		typed, ok := r.queue.(ref.RefQueue[T])
		if !ok {
			return nil, fmt.Errorf("%w: %s queue is %T", ErrOptionType, side, r.queue)
		}
		q = typed
	case policy == ref.PolicyTime:
		var hook func(*T)
		if r.onExpire != nil {
			fn, ok := r.onExpire.(func(*T))
			if !ok {
				return nil, fmt.Errorf("%w: %s expiry hook is %T", ErrOptionType, side, r.onExpire)
			}
			hook = fn
		}
		q = ref.NewTimedQueue[T](hook)
	default:
		q = ref.NewQueue[T]()
	}

	f, err := ref.NewQueuing(policy, eq, q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", side, err)
	}
	return f, nil
}

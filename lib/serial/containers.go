package serial

import (
	"iter"
	"slices"

	"github.com/ValentinKolb/dRef/lib/collection"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/refmap"
)

// Container is what the serial form needs from a collection
type Container[T any] interface {
	Policy() ref.Policy
	Slice() []*T
}

// Associative is what the serial form needs from a map
type Associative[K, V any] interface {
	KeyPolicy() ref.Policy
	ValuePolicy() ref.Policy
	All() iter.Seq2[*K, *V]
}

// --------------------------------------------------------------------------
// Sources
// --------------------------------------------------------------------------

type collectionSource[T any] struct {
	c     Container[T]
	codec ElementCodec[T]
}

// FromCollection returns the Source of a collection of this module
func FromCollection[T any](c Container[T], codec ElementCodec[T]) Source {
	return collectionSource[T]{c: c, codec: codec}
}

func collectionKind[T any](c Container[T]) Kind {
	switch c.(type) {
	case *collection.Set[T]:
		return KindSet
	case *collection.SortedSet[T]:
		return KindSortedSet
	case *collection.Queue[T]:
		return KindQueue
	case *collection.Deque[T]:
		return KindDeque
	case *collection.BlockingQueue[T]:
		return KindBlockingQueue
	case *collection.BlockingDeque[T]:
		return KindBlockingDeque
	case *collection.List[T]:
		return KindList
	default:
		return 0
	}
}

func (s collectionSource[T]) Identity() any { return s.c }

func (s collectionSource[T]) SerialForm(enc *Encoder) (*Form, error) {
	kind := collectionKind(s.c)
	if kind == 0 {
		return nil, newError(CodeKindMismatch, -1, "%T is not a known collection", s.c)
	}

	f := &Form{Kind: kind, Policy: s.c.Policy(), Class: s.codec.Class()}
	if c, ok := s.c.(interface{ Cap() int }); ok {
		f.Capacity = c.Cap()
	}
	for _, v := range s.c.Slice() {
		val, err := s.codec.Encode(enc, v)
		if err != nil {
			return nil, err
		}
		f.Keys = append(f.Keys, val)
	}
	return f, nil
}

type mapSource[K, V any] struct {
	m      Associative[K, V]
	keys   ElementCodec[K]
	values ElementCodec[V]
}

// FromMap returns the Source of a map of this module
func FromMap[K, V any](m Associative[K, V], keys ElementCodec[K], values ElementCodec[V]) Source {
	return mapSource[K, V]{m: m, keys: keys, values: values}
}

func (s mapSource[K, V]) Identity() any { return s.m }

func (s mapSource[K, V]) SerialForm(enc *Encoder) (*Form, error) {
	var kind Kind
	switch s.m.(type) {
	case *refmap.Map[K, V]:
		kind = KindMap
	case *refmap.SortedMap[K, V]:
		kind = KindSortedMap
	default:
		return nil, newError(CodeKindMismatch, -1, "%T is not a known map", s.m)
	}

	f := &Form{
		Kind:        kind,
		Policy:      s.m.KeyPolicy(),
		ValuePolicy: s.m.ValuePolicy(),
		Class:       s.keys.Class(),
		ValueClass:  s.values.Class(),
	}
	for k, v := range s.m.All() {
		kv, err := s.keys.Encode(enc, k)
		if err != nil {
			return nil, err
		}
		vv, err := s.values.Encode(enc, v)
		if err != nil {
			return nil, err
		}
		f.Keys = append(f.Keys, kv)
		f.Values = append(f.Values, vv)
	}
	return f, nil
}

// --------------------------------------------------------------------------
// Builders
// --------------------------------------------------------------------------

// CollectionBuilder rebuilds collections of T. Compare is only needed for
// sorted sets.
type CollectionBuilder[T any] struct {
	Codec       ElementCodec[T]
	Equivalence ref.Equivalence[T]
	Compare     func(a, b *T) int
	Options     []collection.Option
}

func (b CollectionBuilder[T]) Class() string { return b.Codec.Class() }

func (b CollectionBuilder[T]) Build(dec *Decoder, f *Form) (any, Source, error) {
	node := int(f.ID)
	opts := append(slices.Clone(b.Options), collection.WithCapacity(f.Capacity))

	var (
		c   Container[T]
		add func(v *T) bool
		err error
	)
	switch f.Kind {
	case KindSet:
		var s *collection.Set[T]
		s, err = collection.NewSet(f.Policy, b.Equivalence, opts...)
		c, add = s, func(v *T) bool { return s.Add(v) }
	case KindSortedSet:
		if b.Compare == nil {
			return nil, nil, newError(CodeKindMismatch, node, "sorted set needs a compare function")
		}
		var s *collection.SortedSet[T]
		s, err = collection.NewSortedSet(f.Policy, b.Equivalence, b.Compare, opts...)
		c, add = s, func(v *T) bool { return s.Add(v) }
	case KindQueue:
		var q *collection.Queue[T]
		q, err = collection.NewQueue(f.Policy, b.Equivalence, opts...)
		c, add = q, func(v *T) bool { return q.Offer(v) }
	case KindDeque:
		var d *collection.Deque[T]
		d, err = collection.NewDeque(f.Policy, b.Equivalence, opts...)
		c, add = d, func(v *T) bool { return d.OfferLast(v) }
	case KindBlockingQueue:
		var q *collection.BlockingQueue[T]
		q, err = collection.NewBlockingQueue(f.Policy, b.Equivalence, opts...)
		c, add = q, func(v *T) bool { return q.Offer(v) }
	case KindBlockingDeque:
		var d *collection.BlockingDeque[T]
		d, err = collection.NewBlockingDeque(f.Policy, b.Equivalence, opts...)
		c, add = d, func(v *T) bool { return d.OfferLast(v) }
	case KindList:
		var l *collection.List[T]
		l, err = collection.NewList(f.Policy, b.Equivalence, opts...)
		c, add = l, func(v *T) bool { return l.Append(v) == nil }
	default:
		return nil, nil, newError(CodeKindMismatch, node, "%s is not a collection", f.Kind)
	}
	if err != nil {
		return nil, nil, wrapError(CodeKindMismatch, node, err, "can't create %s", f.Kind)
	}

	for i, val := range f.Keys {
		v, err := b.Codec.Decode(dec, val)
		if err == nil && v == nil {
			err = newError(CodeMissingField, node, "element %d is empty", i)
		}
		if err != nil {
			closeQuietly(c)
			return nil, nil, err
		}
		if !add(v) && f.Kind != KindSet && f.Kind != KindSortedSet {
			closeQuietly(c)
			return nil, nil, newError(CodeCorrupt, node, "element %d exceeds the capacity %d", i, f.Capacity)
		}
	}
	return c, FromCollection(c, b.Codec), nil
}

// MapBuilder rebuilds maps from K to V. Compare is only needed for sorted maps.
type MapBuilder[K, V any] struct {
	Keys             ElementCodec[K]
	Values           ElementCodec[V]
	KeyEquivalence   ref.Equivalence[K]
	ValueEquivalence ref.Equivalence[V]
	Compare          func(a, b *K) int
	Options          []refmap.Option
}

func (b MapBuilder[K, V]) Class() string { return mapClass(b.Keys.Class(), b.Values.Class()) }

func (b MapBuilder[K, V]) Build(dec *Decoder, f *Form) (any, Source, error) {
	node := int(f.ID)

	var (
		m   Associative[K, V]
		put func(k *K, v *V)
		err error
	)
	switch f.Kind {
	case KindMap:
		var hm *refmap.Map[K, V]
		hm, err = refmap.New(f.Policy, b.KeyEquivalence, f.ValuePolicy, b.ValueEquivalence, b.Options...)
		m, put = hm, func(k *K, v *V) { hm.Put(k, v) }
	case KindSortedMap:
		if b.Compare == nil {
			return nil, nil, newError(CodeKindMismatch, node, "sorted map needs a compare function")
		}
		var sm *refmap.SortedMap[K, V]
		sm, err = refmap.NewSorted(f.Policy, b.KeyEquivalence, b.Compare, f.ValuePolicy, b.ValueEquivalence, b.Options...)
		m, put = sm, func(k *K, v *V) { sm.Put(k, v) }
	default:
		return nil, nil, newError(CodeKindMismatch, node, "%s is not a map", f.Kind)
	}
	if err != nil {
		return nil, nil, wrapError(CodeKindMismatch, node, err, "can't create %s", f.Kind)
	}

	for i := range f.Keys {
		k, err := b.Keys.Decode(dec, f.Keys[i])
		if err != nil {
			closeQuietly(m)
			return nil, nil, err
		}
		v, err := b.Values.Decode(dec, f.Values[i])
		if err != nil {
			closeQuietly(m)
			return nil, nil, err
		}
		if k == nil || v == nil {
			closeQuietly(m)
			return nil, nil, newError(CodeMissingField, node, "entry %d is empty", i)
		}
		put(k, v)
	}
	return m, FromMap(m, b.Keys, b.Values), nil
}

// closeQuietly stops the processor of a container that is thrown away
func closeQuietly(c any) {
	if cl, ok := c.(interface{ Close() error }); ok {
		_ = cl.Close()
	}
}

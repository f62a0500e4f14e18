package refmap

import (
	"fmt"
	"iter"

	"github.com/ValentinKolb/dRef/lib/backing"
	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/ValentinKolb/dRef/lib/processor"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger(common.LoggerRefMap)

type entry[K, V any] = backing.Entry[K, V]

// store is what Map and SortedMap need from their backing store
type store[K, V any] interface {
	Load(key ref.Probe[K]) (entry[K, V], bool)
	Compute(key ref.Probe[K], fn backing.ComputeFunc[K, V]) (entry[K, V], bool)
	DeleteKey(r ref.Referrer[K]) bool
	DeleteValue(r ref.Referrer[V]) bool
	Len() int
	Clear()
}

// base implements the operations shared by Map and SortedMap
type base[K, V any] struct {
	name   string
	keys   *ref.Queuing[K]
	values *ref.Queuing[V]
	store  store[K, V]
	each   func(fn func(e entry[K, V]) bool)
	proc   *processor.Processor

	keyView   *KeySet[K, V]
	valueView *ValueCollection[K, V]
	entryView *EntrySet[K, V]
}

func (m *base[K, V]) init(kind string, s *settings, kp ref.Policy, keq ref.Equivalence[K], vp ref.Policy, veq ref.Equivalence[V]) error {
	keys, err := factoryFor("key", kp, keq, s.keys)
	if err != nil {
		return err
	}
	values, err := factoryFor("value", vp, veq, s.values)
	if err != nil {
		return err
	}

	m.name = s.name
	if m.name == "" {
		m.name = fmt.Sprintf("%s-%s-%s", kind, kp, vp)
	}
	m.keys, m.values = keys, values
	m.keyView = &KeySet[K, V]{m: m}
	m.valueView = &ValueCollection[K, V]{m: m}
	m.entryView = &EntrySet[K, V]{m: m}

	m.proc = processor.New(s.proc,
		processor.NewTask(m.name+"/keys", keys.Queue(), func(r ref.Referrer[K]) error {
			m.store.DeleteKey(r)
			return nil
		}),
		processor.NewTask(m.name+"/values", values.Queue(), func(r ref.Referrer[V]) error {
			m.store.DeleteValue(r)
			return nil
		}),
	)
	m.proc.Start()

	Logger.Debugf("created %s (background=%t)", m.name, s.proc.Background)
	return nil
}

// --------------------------------------------------------------------------
// Lifecycle and maintenance
// --------------------------------------------------------------------------

func (m *base[K, V]) KeyPolicy() ref.Policy   { return m.keys.Policy() }
func (m *base[K, V]) ValuePolicy() ref.Policy { return m.values.Policy() }

// ProcessQueue removes the entries reported dead so far, every operation
// calls it first
func (m *base[K, V]) ProcessQueue() { m.proc.Drain() }

// Sweep runs a full processor sweep
func (m *base[K, V]) Sweep() processor.Result { return m.proc.Sweep() }

func (m *base[K, V]) Info() processor.Info { return m.proc.Info() }

// Close stops the processor. The map stays usable, dead entries are then
// only removed when met during iteration.
func (m *base[K, V]) Close() error {
	Logger.Debugf("closing %s", m.name)
	return m.proc.Close()
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// newEntry wraps k and v into durable cells, the value is anchored at the key
func (m *base[K, V]) newEntry(k *K, v *V) entry[K, V] {
	kr := m.keys.Referenced(k)
	return entry[K, V]{Key: kr, Value: m.values.ReferencedAt(v, kr.Hash())}
}

// withValue keeps the key cell of old and wraps v into a new value cell
func (m *base[K, V]) withValue(old entry[K, V], v *V) entry[K, V] {
	return entry[K, V]{Key: old.Key, Value: m.values.ReferencedAt(v, old.Key.Hash())}
}

// live reads both cells of e, ok is false if either of them died
func live[K, V any](e entry[K, V]) (k *K, v *V, ok bool) {
	k = e.Key.Get()
	if k == nil {
		return nil, nil, false
	}
	v = e.Value.Get()
	return k, v, v != nil
}

// element panics with ref.ErrNilReferent if v is nil
func element[T any](v *T) *T {
	if v == nil {
		panic(ref.ErrNilReferent)
	}
	return v
}

// --------------------------------------------------------------------------
// Map operations
// --------------------------------------------------------------------------

// Put associates v with k and returns the previous value
func (m *base[K, V]) Put(k *K, v *V) (*V, bool) {
	m.ProcessQueue()
	element(v)
	var prev *V
	m.store.Compute(m.keys.Probe(k), func(old entry[K, V], loaded bool) (entry[K, V], backing.Op) {
		if loaded {
			prev = old.Value.Get()
			return m.withValue(old, v), backing.OpStore
		}
		return m.newEntry(k, v), backing.OpStore
	})
	return prev, prev != nil
}

// PutIfAbsent stores v only if k has no live value. It returns the value
// present after the call and whether it was already there.
func (m *base[K, V]) PutIfAbsent(k *K, v *V) (*V, bool) {
	m.ProcessQueue()
	element(v)
	actual, loaded := v, false
	m.store.Compute(m.keys.Probe(k), func(old entry[K, V], ok bool) (entry[K, V], backing.Op) {
		if ok {
			if cur := old.Value.Get(); cur != nil {
				actual, loaded = cur, true
				return old, backing.OpKeep
			}
		}
		return m.newEntry(k, v), backing.OpStore
	})
	return actual, loaded
}

// Get returns the value of k. A dead key or value reads as absent.
func (m *base[K, V]) Get(k *K) (*V, bool) {
	m.ProcessQueue()
	e, ok := m.store.Load(m.keys.Probe(k))
	if !ok {
		return nil, false
	}
	_, v, ok := live(e)
	return v, ok
}

// GetOrDefault returns the value of k or def
func (m *base[K, V]) GetOrDefault(k *K, def *V) *V {
	if v, ok := m.Get(k); ok {
		return v
	}
	return def
}

func (m *base[K, V]) ContainsKey(k *K) bool {
	_, ok := m.Get(k)
	return ok
}

// ContainsValue scans the map for a value equal to v
func (m *base[K, V]) ContainsValue(v *V) bool {
	m.ProcessQueue()
	p := m.values.Probe(v)
	found := false
	m.each(func(e entry[K, V]) bool {
		if p.Matches(e.Value) && e.Key.Peek() != nil {
			found = true
			return false
		}
		return true
	})
	return found
}

// Remove deletes k and returns its value
func (m *base[K, V]) Remove(k *K) (*V, bool) {
	m.ProcessQueue()
	var prev *V
	m.store.Compute(m.keys.Probe(k), func(old entry[K, V], loaded bool) (entry[K, V], backing.Op) {
		if !loaded {
			return old, backing.OpKeep
		}
		prev = old.Value.Get()
		return old, backing.OpDelete
	})
	return prev, prev != nil
}

// RemoveIf deletes k only if it maps to a value equal to v
func (m *base[K, V]) RemoveIf(k *K, v *V) bool {
	m.ProcessQueue()
	p := m.values.Probe(v)
	removed := false
	m.store.Compute(m.keys.Probe(k), func(old entry[K, V], loaded bool) (entry[K, V], backing.Op) {
		if !loaded || !p.Matches(old.Value) {
			return old, backing.OpKeep
		}
		removed = true
		return old, backing.OpDelete
	})
	return removed
}

// Replace sets the value of k only if k is present and returns the previous value
func (m *base[K, V]) Replace(k *K, v *V) (*V, bool) {
	m.ProcessQueue()
	element(v)
	var prev *V
	m.store.Compute(m.keys.Probe(k), func(old entry[K, V], loaded bool) (entry[K, V], backing.Op) {
		if !loaded {
			return old, backing.OpKeep
		}
		prev = old.Value.Get()
		return m.withValue(old, v), backing.OpStore
	})
	return prev, prev != nil
}

// ReplaceIf sets the value of k to v only if it currently equals old
func (m *base[K, V]) ReplaceIf(k *K, old, v *V) bool {
	m.ProcessQueue()
	element(v)
	p := m.values.Probe(old)
	replaced := false
	m.store.Compute(m.keys.Probe(k), func(cur entry[K, V], loaded bool) (entry[K, V], backing.Op) {
		if !loaded || !p.Matches(cur.Value) {
			return cur, backing.OpKeep
		}
		replaced = true
		return m.withValue(cur, v), backing.OpStore
	})
	return replaced
}

// Compute atomically updates the value of k. fn gets the current value (nil,
// false if absent) and returns the new value, returning false deletes k.
func (m *base[K, V]) Compute(k *K, fn func(cur *V, loaded bool) (*V, bool)) (*V, bool) {
	m.ProcessQueue()
	var result *V
	m.store.Compute(m.keys.Probe(k), func(old entry[K, V], loaded bool) (entry[K, V], backing.Op) {
		var cur *V
		if loaded {
			cur = old.Value.Get()
		}
		nv, keep := fn(cur, cur != nil)
		switch {
		case !keep || nv == nil:
			if loaded {
				return old, backing.OpDelete
			}
			return old, backing.OpKeep
		case loaded && nv == cur:
			result = cur
			return old, backing.OpKeep
		case loaded:
			result = nv
			return m.withValue(old, nv), backing.OpStore
		default:
			result = nv
			return m.newEntry(k, nv), backing.OpStore
		}
	})
	return result, result != nil
}

// Len returns the number of entries, entries that died after the last queue
// drain are still counted
func (m *base[K, V]) Len() int {
	m.ProcessQueue()
	return m.store.Len()
}

func (m *base[K, V]) IsEmpty() bool { return m.Len() == 0 }
func (m *base[K, V]) Clear()        { m.store.Clear() }

// --------------------------------------------------------------------------
// Iteration and views
// --------------------------------------------------------------------------

// visit filters dead entries and removes them on the way
func (m *base[K, V]) visit(yield func(k *K, v *V) bool) func(e entry[K, V]) bool {
	return func(e entry[K, V]) bool {
		k, v, ok := live(e)
		if !ok {
			m.store.DeleteKey(e.Key)
			return true
		}
		return yield(k, v)
	}
}

// All iterates over the live entries, the map may be modified meanwhile
func (m *base[K, V]) All() iter.Seq2[*K, *V] {
	return func(yield func(*K, *V) bool) {
		m.ProcessQueue()
		m.each(m.visit(yield))
	}
}

// Iterator returns an iterator over a snapshot of the entries that supports removal
func (m *base[K, V]) Iterator() *Iterator[K, V] {
	m.ProcessQueue()
	entries := make([]entry[K, V], 0, m.store.Len())
	m.each(func(e entry[K, V]) bool {
		entries = append(entries, e)
		return true
	})
	return &Iterator[K, V]{m: m, entries: entries}
}

// Keys returns the key view of the map
func (m *base[K, V]) Keys() *KeySet[K, V] { return m.keyView }

// Values returns the value view of the map
func (m *base[K, V]) Values() *ValueCollection[K, V] { return m.valueView }

// Entries returns the entry view of the map
func (m *base[K, V]) Entries() *EntrySet[K, V] { return m.entryView }

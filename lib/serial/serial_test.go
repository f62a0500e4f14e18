package serial

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ValentinKolb/dRef/lib/collection"
	"github.com/ValentinKolb/dRef/lib/processor"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/refmap"
)

// member belongs to a group that contains the member itself
type member struct {
	name  string
	group *Lazy[*collection.Set[member]]
}

var memberEq = ref.Func(
	func(m *member) uint64 { return uint64(len(m.name)) },
	func(a, b *member) bool { return a.name == b.name },
)

// memberCodec writes the group of a member as a reference
type memberCodec struct {
	eager bool // resolve the group while decoding
}

func (memberCodec) Class() string { return "member" }

func (c memberCodec) Encode(enc *Encoder, m *member) (Value, error) {
	group, err := m.group.Get()
	if err != nil {
		return Value{}, err
	}
	id, err := enc.Encode(FromCollection[member](group, c))
	if err != nil {
		return Value{}, err
	}
	return Value{Data: []byte(m.name), Refs: []uint32{id}}, nil
}

func (c memberCodec) Decode(dec *Decoder, v Value) (*member, error) {
	if len(v.Refs) != 1 {
		return nil, newError(CodeMissingField, -1, "member without group")
	}
	d, err := dec.Deferred(v.Refs[0])
	if err != nil {
		return nil, err
	}
	m := &member{name: string(v.Data), group: LazyOf[*collection.Set[member]](d)}
	if c.eager {
		if _, err := m.group.Get(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func manualCollection() collection.Option {
	cfg := processor.DefaultConfig()
	cfg.Background = false
	return collection.WithProcessor(cfg)
}

func manualMap() refmap.Option {
	cfg := processor.DefaultConfig()
	cfg.Background = false
	return refmap.WithProcessor(cfg)
}

func memberBuilder(codec memberCodec) Builder {
	return CollectionBuilder[member]{
		Codec:       codec,
		Equivalence: memberEq,
		Options:     []collection.Option{manualCollection()},
	}
}

// newGroup creates a set of members pointing back to the set
func newGroup(t *testing.T, names ...string) *collection.Set[member] {
	t.Helper()
	group, err := collection.NewSet(ref.PolicyStrong, memberEq, manualCollection())
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	t.Cleanup(func() { group.Close() })
	for _, name := range names {
		group.Add(&member{name: name, group: Known(group)})
	}
	return group
}

func memberNames(s *collection.Set[member]) map[string]bool {
	out := make(map[string]bool)
	for m := range s.All() {
		out[m.name] = true
	}
	return out
}

func TestCyclicRoundTrip(t *testing.T) {
	group := newGroup(t, "alice", "bob")

	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			codec := factory()
			data, err := Marshal(codec, FromCollection[member](group, memberCodec{}))
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			dec, err := Unmarshal(codec, data, memberBuilder(memberCodec{}))
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if dec.Len() != 1 {
				t.Errorf("Expected the cycle to share one node, got %d", dec.Len())
			}

			built, err := ResolveAs[*collection.Set[member]](dec.Root())
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			defer built.Close()

			again, err := dec.Root().Resolve()
			if err != nil || again != any(built) {
				t.Errorf("Second resolve must return the same container: %p vs %v (%v)", built, again, err)
			}

			if got := memberNames(built); len(got) != 2 || !got["alice"] || !got["bob"] {
				t.Errorf("Unexpected members %v", got)
			}
			for m := range built.All() {
				g, err := m.group.Get()
				if err != nil {
					t.Fatalf("Group of %s failed: %v", m.name, err)
				}
				if g != built {
					t.Errorf("Member %s points to another group", m.name)
				}
			}
			if !built.Contains(&member{name: "alice"}) {
				t.Error("Decoded set should contain alice")
			}
			if built.Policy() != ref.PolicyStrong {
				t.Errorf("Expected policy STRONG, got %s", built.Policy())
			}
		})
	}
}

// slot is an element of a list that refers back to its list
type slot struct {
	label string
	list  *Lazy[*collection.List[slot]]
}

var slotEq = ref.Func(
	func(s *slot) uint64 { return uint64(len(s.label)) },
	func(a, b *slot) bool { return a.label == b.label },
)

type slotCodec struct{}

func (slotCodec) Class() string { return "slot" }

func (c slotCodec) Encode(enc *Encoder, s *slot) (Value, error) {
	list, err := s.list.Get()
	if err != nil {
		return Value{}, err
	}
	id, err := enc.Encode(FromCollection[slot](list, c))
	if err != nil {
		return Value{}, err
	}
	return Value{Data: []byte(s.label), Refs: []uint32{id}}, nil
}

func (slotCodec) Decode(dec *Decoder, v Value) (*slot, error) {
	if len(v.Refs) != 1 {
		return nil, newError(CodeMissingField, -1, "slot without list")
	}
	d, err := dec.Deferred(v.Refs[0])
	if err != nil {
		return nil, err
	}
	return &slot{label: string(v.Data), list: LazyOf[*collection.List[slot]](d)}, nil
}

func TestCyclicListRoundTrip(t *testing.T) {
	list, err := collection.NewList(ref.PolicyStrong, slotEq, manualCollection())
	if err != nil {
		t.Fatalf("NewList failed: %v", err)
	}
	defer list.Close()
	for _, label := range []string{"head", "middle", "head"} {
		if err := list.Append(&slot{label: label, list: Known(list)}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	builder := CollectionBuilder[slot]{
		Codec:       slotCodec{},
		Equivalence: slotEq,
		Options:     []collection.Option{manualCollection()},
	}

	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			codec := factory()
			data, err := Marshal(codec, FromCollection[slot](list, slotCodec{}))
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			dec, err := Unmarshal(codec, data, builder)
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if dec.Len() != 1 {
				t.Errorf("Expected the list to be a single node, got %d", dec.Len())
			}

			built, err := ResolveAs[*collection.List[slot]](dec.Root())
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			defer built.Close()

			again, err := dec.Root().Resolve()
			if err != nil || again != any(built) {
				t.Errorf("Second resolve must return the same list: %p vs %v (%v)", built, again, err)
			}

			var labels []string
			for i := 0; i < built.Len(); i++ {
				s, err := built.Get(i)
				if err != nil {
					t.Fatalf("Get(%d) failed: %v", i, err)
				}
				labels = append(labels, s.label)
				owner, err := s.list.Get()
				if err != nil {
					t.Fatalf("List of slot %d failed: %v", i, err)
				}
				if owner != built {
					t.Errorf("Slot %d points to another list", i)
				}
			}
			if strings.Join(labels, ",") != "head,middle,head" {
				t.Errorf("Order or duplicates not restored: %v", labels)
			}
			if built.LastIndexOf(&slot{label: "head"}) != 2 {
				t.Errorf("Expected the last head at 2, got %d", built.LastIndexOf(&slot{label: "head"}))
			}
		})
	}
}

// registry is a map value that refers back to the map holding it
type registry struct {
	owner string
	index *Lazy[*refmap.Map[string, registry]]
}

var registryEq = ref.Func(
	func(r *registry) uint64 { return uint64(len(r.owner)) },
	func(a, b *registry) bool { return a.owner == b.owner },
)

type registryCodec struct{}

func (registryCodec) Class() string { return "registry" }

func (c registryCodec) Encode(enc *Encoder, r *registry) (Value, error) {
	index, err := r.index.Get()
	if err != nil {
		return Value{}, err
	}
	id, err := enc.Encode(FromMap[string, registry](index, Strings(), c))
	if err != nil {
		return Value{}, err
	}
	return Value{Data: []byte(r.owner), Refs: []uint32{id}}, nil
}

func (registryCodec) Decode(dec *Decoder, v Value) (*registry, error) {
	if len(v.Refs) != 1 {
		return nil, newError(CodeMissingField, -1, "registry without index")
	}
	d, err := dec.Deferred(v.Refs[0])
	if err != nil {
		return nil, err
	}
	return &registry{owner: string(v.Data), index: LazyOf[*refmap.Map[string, registry]](d)}, nil
}

func TestCyclicMapRoundTrip(t *testing.T) {
	index, err := refmap.New(ref.PolicyStrong, ref.Strings(), ref.PolicyStrong, registryEq, manualMap())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer index.Close()
	for _, k := range []string{"alpha", "beta"} {
		index.Put(strPtr(k), &registry{owner: k + "-owner", index: Known(index)})
	}

	builder := MapBuilder[string, registry]{
		Keys:             Strings(),
		Values:           registryCodec{},
		KeyEquivalence:   ref.Strings(),
		ValueEquivalence: registryEq,
		Options:          []refmap.Option{manualMap()},
	}

	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			codec := factory()
			data, err := Marshal(codec, FromMap[string, registry](index, Strings(), registryCodec{}))
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			dec, err := Unmarshal(codec, data, builder)
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if dec.Len() != 1 {
				t.Errorf("Expected the map to be a single node, got %d", dec.Len())
			}

			built, err := ResolveAs[*refmap.Map[string, registry]](dec.Root())
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			defer built.Close()

			again, err := dec.Root().Resolve()
			if err != nil || again != any(built) {
				t.Errorf("Second resolve must return the same map: %p vs %v (%v)", built, again, err)
			}

			if built.Len() != 2 {
				t.Fatalf("Expected 2 entries, got %d", built.Len())
			}
			for k, v := range built.All() {
				if v.owner != *k+"-owner" {
					t.Errorf("Value of %s: expected %s-owner, got %s", *k, *k, v.owner)
				}
				owner, err := v.index.Get()
				if err != nil {
					t.Fatalf("Index of %s failed: %v", *k, err)
				}
				if owner != built {
					t.Errorf("Value of %s points to another map", *k)
				}
			}
			if !built.ContainsValue(&registry{owner: "beta-owner"}) {
				t.Error("Decoded map should contain the beta value")
			}
		})
	}
}

func TestReencodeDecoded(t *testing.T) {
	group := newGroup(t, "alice", "bob", "carol")
	codec := NewBinaryCodec()

	data, err := Marshal(codec, FromCollection[member](group, memberCodec{}))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// an unresolved node is written from its raw form
	raw, err := Unmarshal(codec, data, memberBuilder(memberCodec{}))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	copied, err := Marshal(codec, raw.Root())
	if err != nil {
		t.Fatalf("Marshal of raw node failed: %v", err)
	}
	if raw.Root().Built() {
		t.Error("Writing a raw node must not build it")
	}

	// a resolved node is written from the built container
	built, err := ResolveAs[*collection.Set[member]](raw.Root())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer built.Close()
	built.Remove(&member{name: "carol"})

	rebuilt, err := Marshal(codec, raw.Root())
	if err != nil {
		t.Fatalf("Marshal of built node failed: %v", err)
	}

	for name, data := range map[string][]byte{"raw": copied, "built": rebuilt} {
		dec, err := Unmarshal(codec, data, memberBuilder(memberCodec{}))
		if err != nil {
			t.Fatalf("%s: Unmarshal failed: %v", name, err)
		}
		if dec.Len() != 1 {
			t.Errorf("%s: expected one node, got %d", name, dec.Len())
		}
		s, err := ResolveAs[*collection.Set[member]](dec.Root())
		if err != nil {
			t.Fatalf("%s: Resolve failed: %v", name, err)
		}
		want := 3
		if name == "built" {
			want = 2
		}
		if s.Len() != want {
			t.Errorf("%s: expected %d members, got %d", name, want, s.Len())
		}
		s.Close()
	}
}

func TestCyclicBuildDetected(t *testing.T) {
	group := newGroup(t, "alice")
	codec := NewJSONCodec()
	data, err := Marshal(codec, FromCollection[member](group, memberCodec{}))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	dec, err := Unmarshal(codec, data, memberBuilder(memberCodec{eager: true}))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, err := dec.Root().Resolve(); !errors.Is(err, ErrCyclicBuild) {
		t.Fatalf("Expected ErrCyclicBuild, got %v", err)
	}
	// the failure is memoized
	if _, err := dec.Root().Resolve(); !errors.Is(err, ErrCyclicBuild) {
		t.Errorf("Expected the memoized ErrCyclicBuild, got %v", err)
	}
	if dec.Root().Built() {
		t.Error("A failed node must not count as built")
	}
}

func TestUnknownClass(t *testing.T) {
	group := newGroup(t, "alice")
	codec := NewGOBCodec()
	data, err := Marshal(codec, FromCollection[member](group, memberCodec{}))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	dec, err := Unmarshal(codec, data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, err := dec.Root().Resolve(); !IsCode(err, CodeUnknownClass) {
		t.Errorf("Expected an unknown class error, got %v", err)
	}

	// the wrong container type is a kind mismatch
	dec, _ = Unmarshal(codec, data, memberBuilder(memberCodec{}))
	if _, err := ResolveAs[*collection.List[member]](dec.Root()); !IsCode(err, CodeKindMismatch) {
		t.Errorf("Expected a kind mismatch, got %v", err)
	}
}

func TestSequenceRoundTrip(t *testing.T) {
	q, err := collection.NewBlockingQueue(ref.PolicyStrong, ref.Strings(), manualCollection(), collection.WithCapacity(3))
	if err != nil {
		t.Fatalf("NewBlockingQueue failed: %v", err)
	}
	defer q.Close()
	for _, s := range []string{"a", "b", "c"} {
		if err := q.Put(context.Background(), &s); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			codec := factory()
			data, err := Marshal(codec, FromCollection[string](q, Strings()))
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			dec, err := Unmarshal(codec, data, CollectionBuilder[string]{
				Codec:       Strings(),
				Equivalence: ref.Strings(),
				Options:     []collection.Option{manualCollection()},
			})
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			built, err := ResolveAs[*collection.BlockingQueue[string]](dec.Root())
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			defer built.Close()

			if built.Cap() != 3 || built.RemainingCapacity() != 0 {
				t.Errorf("Capacity not restored: cap %d, remaining %d", built.Cap(), built.RemainingCapacity())
			}
			var order []string
			for v, ok := built.Poll(); ok; v, ok = built.Poll() {
				order = append(order, *v)
			}
			if strings.Join(order, ",") != "a,b,c" {
				t.Errorf("Order not restored: %v", order)
			}
		})
	}
}

func TestSortedSetNeedsCompare(t *testing.T) {
	s, err := collection.NewSortedSet(ref.PolicyStrong, ref.Strings(), compareStrings, manualCollection())
	if err != nil {
		t.Fatalf("NewSortedSet failed: %v", err)
	}
	defer s.Close()
	s.Add(strPtr("b"))
	s.Add(strPtr("a"))

	data, err := Marshal(NewJSONCodec(), FromCollection[string](s, Strings()))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	dec, _ := Unmarshal(NewJSONCodec(), data, CollectionBuilder[string]{Codec: Strings(), Equivalence: ref.Strings()})
	if _, err := dec.Root().Resolve(); !IsCode(err, CodeKindMismatch) {
		t.Errorf("Expected a kind mismatch without compare, got %v", err)
	}

	dec, _ = Unmarshal(NewJSONCodec(), data, CollectionBuilder[string]{
		Codec:       Strings(),
		Equivalence: ref.Strings(),
		Compare:     compareStrings,
		Options:     []collection.Option{manualCollection()},
	})
	built, err := ResolveAs[*collection.SortedSet[string]](dec.Root())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer built.Close()
	if first, ok := built.First(); !ok || *first != "a" {
		t.Errorf("Expected first element a, got %v", first)
	}
}

func TestMapRoundTrip(t *testing.T) {
	m, err := refmap.NewSorted(ref.PolicyStrong, ref.Strings(), compareStrings, ref.PolicyStrong, ref.Values[int](), manualMap())
	if err != nil {
		t.Fatalf("NewSorted failed: %v", err)
	}
	defer m.Close()
	for i, k := range []string{"c", "a", "b"} {
		m.Put(strPtr(k), &i)
	}

	builder := MapBuilder[string, int]{
		Keys:             Strings(),
		Values:           JSON[int]("int"),
		KeyEquivalence:   ref.Strings(),
		ValueEquivalence: ref.Values[int](),
		Compare:          compareStrings,
		Options:          []refmap.Option{manualMap()},
	}

	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			codec := factory()
			data, err := Marshal(codec, FromMap[string, int](m, Strings(), JSON[int]("int")))
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			dec, err := Unmarshal(codec, data, builder)
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if got := dec.Root().Form().ValueClass; got != "int" {
				t.Errorf("Expected value class int, got %q", got)
			}

			built, err := ResolveAs[*refmap.SortedMap[string, int]](dec.Root())
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			defer built.Close()

			var keys []string
			for k, v := range built.All() {
				keys = append(keys, *k)
				if want, _ := m.Get(k); *want != *v {
					t.Errorf("Value of %s: expected %d, got %d", *k, *want, *v)
				}
			}
			if strings.Join(keys, ",") != "a,b,c" {
				t.Errorf("Unexpected key order %v", keys)
			}
		})
	}
}

func strPtr(s string) *string { return &s }

func compareStrings(a, b *string) int { return strings.Compare(*a, *b) }

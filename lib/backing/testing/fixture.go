package testing

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/dRef/lib/backing"
	"github.com/ValentinKolb/dRef/lib/ref"
)

// fixture creates strong key and value cells reporting to their own queues
type fixture struct {
	keys   *ref.Queuing[string]
	values *ref.Queuing[string]
	kq, vq *ref.Queue[string]
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	kq, vq := ref.NewQueue[string](), ref.NewQueue[string]()
	eq := ref.Strings()
	keys, err := ref.NewQueuing(ref.PolicyStrong, eq, kq)
	if err != nil {
		t.Fatalf("key factory: %v", err)
	}
	values, err := ref.NewQueuing(ref.PolicyStrong, eq, vq)
	if err != nil {
		t.Fatalf("value factory: %v", err)
	}
	return &fixture{keys: keys, values: values, kq: kq, vq: vq}
}

func (f *fixture) probe(k string) ref.Probe[string] {
	return f.keys.Probe(&k)
}

// entry builds a key cell and a value cell anchored at the key
func (f *fixture) entry(k, v string) backing.Entry[string, string] {
	kr := f.keys.Referenced(&k)
	return backing.Entry[string, string]{Key: kr, Value: f.values.ReferencedAt(&v, kr.Hash())}
}

// put stores k -> v, replacing the value cell of an existing entry
func (f *fixture) put(s computer, k, v string) backing.Entry[string, string] {
	e, _ := s.Compute(f.probe(k), func(old backing.Entry[string, string], loaded bool) (backing.Entry[string, string], backing.Op) {
		if loaded {
			return backing.Entry[string, string]{Key: old.Key, Value: f.values.ReferencedAt(&v, old.Key.Hash())}, backing.OpStore
		}
		return f.entry(k, v), backing.OpStore
	})
	return e
}

func (f *fixture) del(s computer, k string) {
	s.Compute(f.probe(k), func(old backing.Entry[string, string], loaded bool) (backing.Entry[string, string], backing.Op) {
		return old, backing.OpDelete
	})
}

type computer interface {
	Compute(key ref.Probe[string], fn backing.ComputeFunc[string, string]) (backing.Entry[string, string], bool)
	Load(key ref.Probe[string]) (backing.Entry[string, string], bool)
}

func valueOf(e backing.Entry[string, string]) string {
	if e.Value == nil || e.Value.Peek() == nil {
		return ""
	}
	return *e.Value.Peek()
}

func keyOf(e backing.Entry[string, string]) string {
	if e.Key == nil || e.Key.Peek() == nil {
		return ""
	}
	return *e.Key.Peek()
}

func compareStrings(a, b *string) int {
	return strings.Compare(*a, *b)
}

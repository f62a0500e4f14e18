package ref

import (
	"errors"
	"runtime"
	"testing"
	"time"
)

// item is a heap allocated element with a pointer field, so the runtime
// never batches it with other small objects
type item struct {
	name *string
}

func newItem(name string) *item {
	return &item{name: &name}
}

var itemEq = Func(
	func(v *item) uint64 { return uint64(len(*v.name)) },
	func(a, b *item) bool { return *a.name == *b.name },
)

// awaitQueue forces collections until the queue holds n cells
func awaitQueue[T any](t *testing.T, q RefQueue[T], n int) {
	t.Helper()
	for i := 0; i < 100; i++ {
		runtime.GC()
		if q.Len() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d dead cells in queue, got %d", n, q.Len())
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{PolicyStrong, PolicyWeak, PolicyWeakIdentity, PolicySoft, PolicySoftIdentity, PolicyTime} {
		parsed, err := ParsePolicy(p.String())
		if err != nil || parsed != p {
			t.Errorf("Round trip of %s failed: %v, %v", p, parsed, err)
		}
	}

	if p, err := ParsePolicy("weak-identity"); err != nil || p != PolicyWeakIdentity {
		t.Errorf("Expected WEAK_IDENTITY, got %v (%v)", p, err)
	}
	if _, err := ParsePolicy("phantom"); !errors.Is(err, ErrUnknownPolicy) {
		t.Errorf("Expected ErrUnknownPolicy, got %v", err)
	}

	if !PolicySoft.Collectable() || PolicyTime.Collectable() || PolicyStrong.Collectable() {
		t.Error("Collectable reports wrong policies")
	}
	if !PolicyWeakIdentity.Identity() || PolicyWeak.Identity() {
		t.Error("Identity reports wrong policies")
	}
}

func TestNewErrors(t *testing.T) {
	eq := Values[int]()

	if _, err := New[int](PolicyWeak, nil, Options[int]{Equivalence: eq}); !errors.Is(err, ErrNilReferent) {
		t.Errorf("Expected ErrNilReferent, got %v", err)
	}

	v := 1
	if _, err := New(PolicyWeak, &v, Options[int]{}); !errors.Is(err, ErrNoEquivalence) {
		t.Errorf("Expected ErrNoEquivalence, got %v", err)
	}
	if _, err := New(PolicyWeakIdentity, &v, Options[int]{Equivalence: eq}); !errors.Is(err, ErrMixedEquivalence) {
		t.Errorf("Expected ErrMixedEquivalence for identity policy with value equivalence, got %v", err)
	}
	if _, err := New(PolicySoft, &v, Options[int]{Equivalence: Identities[int]()}); !errors.Is(err, ErrMixedEquivalence) {
		t.Errorf("Expected ErrMixedEquivalence for value policy with identity equivalence, got %v", err)
	}
	if _, err := New(PolicyTime, &v, Options[int]{Equivalence: eq, Queue: NewQueue[int]()}); !errors.Is(err, ErrQueueMismatch) {
		t.Errorf("Expected ErrQueueMismatch, got %v", err)
	}
	if _, err := NewQueuing(PolicyTime, eq, nil); !errors.Is(err, ErrQueueMismatch) {
		t.Errorf("Expected ErrQueueMismatch from NewQueuing, got %v", err)
	}
}

func TestInsertedElementIsReturned(t *testing.T) {
	policies := []Policy{PolicyStrong, PolicyWeak, PolicyWeakIdentity, PolicySoft, PolicySoftIdentity, PolicyTime}

	for _, p := range policies {
		t.Run(p.String(), func(t *testing.T) {
			eq := itemEq
			if p.Identity() {
				eq = Identities[item]()
			}
			var q RefQueue[item] = NewQueue[item]()
			if p == PolicyTime {
				q = NewTimedQueue[item](nil)
			}
			f, err := NewQueuing(p, eq, q)
			if err != nil {
				t.Fatalf("NewQueuing failed: %v", err)
			}

			e := newItem("element")
			r := f.Referenced(e)
			if r.Policy() != p {
				t.Errorf("Expected policy %s, got %s", p, r.Policy())
			}

			got := r.Get()
			if got == nil || !eq.Equal(got, e) {
				t.Fatalf("Expected element equal to inserted one, got %v", got)
			}
			if !f.Probe(e).Matches(r) {
				t.Error("Probe of the inserted element should match its cell")
			}
			if r.Hash() != eq.Hash(e) || r.Anchor() != r.Hash() {
				t.Error("Hash and anchor should be the element hash")
			}
			runtime.KeepAlive(e)
		})
	}
}

func TestIdentityVersusEquality(t *testing.T) {
	a, b := newItem("same"), newItem("same")

	byValue, _ := NewQueuing(PolicyWeak, itemEq, NewQueue[item]())
	byIdentity, _ := NewQueuing(PolicyWeakIdentity, Identities[item](), NewQueue[item]())

	rv := byValue.Referenced(a)
	ri := byIdentity.Referenced(a)

	if !byValue.Probe(b).Matches(rv) {
		t.Error("Equal elements should match under value equivalence")
	}
	if byIdentity.Probe(b).Matches(ri) {
		t.Error("Distinct pointers must not match under identity equivalence")
	}
	if !byIdentity.Probe(a).Matches(ri) {
		t.Error("Same pointer should match under identity equivalence")
	}
	runtime.KeepAlive(a)
}

func TestProbeDoesNotTouchQueue(t *testing.T) {
	q := NewQueue[item]()
	f, _ := NewQueuing(PolicyWeak, itemEq, q)

	for i := 0; i < 1000; i++ {
		p := f.Probe(newItem("probe"))
		_ = p.Hash()
	}
	runtime.GC()
	runtime.GC()
	time.Sleep(20 * time.Millisecond)

	if q.Len() != 0 {
		t.Errorf("Probes must never register with the queue, depth is %d", q.Len())
	}
	if q.SoftLen() != 0 {
		t.Errorf("Probes must never register soft cells, got %d", q.SoftLen())
	}
}

func TestProbeNilPanics(t *testing.T) {
	defer func() {
		if err := recover(); err != ErrNilReferent {
			t.Errorf("Expected panic with ErrNilReferent, got %v", err)
		}
	}()
	f, _ := NewQueuing(PolicyStrong, itemEq, nil)
	f.Probe(nil)
}

func TestWeakCollected(t *testing.T) {
	q := NewQueue[item]()
	f, _ := NewQueuing(PolicyWeak, itemEq, q)

	r := func() Referrer[item] {
		return f.Referenced(newItem("garbage"))
	}()

	awaitQueue[item](t, q, 1)

	if r.Get() != nil {
		t.Error("Collected cell should return nil")
	}
	got, ok := q.Poll()
	if !ok || got != r {
		t.Errorf("Expected the collected cell in the queue, got %v", got)
	}
	if !r.IsEnqueued() {
		t.Error("Cell should report enqueued")
	}
}

func TestClearEnqueuesOnce(t *testing.T) {
	q := NewQueue[item]()
	f, _ := NewQueuing(PolicyWeak, itemEq, q)

	e := newItem("cleared")
	r := f.Referenced(e)
	r.Clear()
	r.Clear()

	if r.Get() != nil {
		t.Error("Cleared cell should return nil")
	}
	if r.Equal(e) {
		t.Error("Cleared cell should equal nothing")
	}
	if q.Len() != 1 {
		t.Errorf("Expected exactly one queue entry, got %d", q.Len())
	}
	if r.Enqueue() {
		t.Error("Enqueue of an enqueued cell should return false")
	}
	runtime.KeepAlive(e)
}

func TestReleaseDoesNotEnqueue(t *testing.T) {
	q := NewQueue[item]()
	f, _ := NewQueuing(PolicySoft, itemEq, q)

	r := f.Referenced(newItem("released"))
	if q.SoftLen() != 1 {
		t.Fatalf("Expected one tracked soft cell, got %d", q.SoftLen())
	}

	Release(r)
	runtime.GC()
	time.Sleep(20 * time.Millisecond)

	if r.Get() != nil {
		t.Error("Released cell should return nil")
	}
	if q.Len() != 0 || q.SoftLen() != 0 {
		t.Errorf("Release must not enqueue and must untrack, got len %d soft %d", q.Len(), q.SoftLen())
	}
}

func TestSoftRelax(t *testing.T) {
	q := NewQueue[item]()
	f, _ := NewQueuing(PolicySoft, itemEq, q)

	r := func() Referrer[item] {
		return f.Referenced(newItem("soft"))
	}()

	// pinned: survives collections
	runtime.GC()
	runtime.GC()
	if r.Get() == nil {
		t.Fatal("Pinned soft cell must survive collection")
	}
	if q.Pinned() != 1 {
		t.Errorf("Expected one pinned cell, got %d", q.Pinned())
	}

	if n := q.Relax(time.Hour); n != 0 {
		t.Errorf("Recently used cell must not be relaxed, got %d", n)
	}

	time.Sleep(2 * time.Millisecond)
	if n := q.Relax(time.Millisecond); n != 1 {
		t.Fatalf("Expected one relaxed cell, got %d", n)
	}

	awaitQueue[item](t, q, 1)
	if r.Get() != nil {
		t.Error("Relaxed and collected soft cell should return nil")
	}
	if q.SoftLen() != 0 {
		t.Errorf("Collected soft cell should be untracked, got %d", q.SoftLen())
	}
}

func TestSoftGetRepins(t *testing.T) {
	q := NewQueue[item]()
	f, _ := NewQueuing(PolicySoftIdentity, Identities[item](), q)

	e := newItem("repin")
	r := f.Referenced(e)

	time.Sleep(2 * time.Millisecond)
	q.Relax(time.Millisecond)
	if q.Pinned() != 0 {
		t.Fatal("Cell should be relaxed")
	}

	if r.Get() != e {
		t.Fatal("Live element should still be returned")
	}
	if q.Pinned() != 1 {
		t.Error("Get should pin the element again")
	}
	runtime.KeepAlive(e)
}

func TestSoftIdle(t *testing.T) {
	if SoftIdle(0) != 0 {
		t.Error("Zero budget should give zero idle time")
	}
	if SoftIdle(1000) < 0 {
		t.Error("Idle time must not be negative")
	}
}

package collection

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dRef/lib/backing"
	"github.com/ValentinKolb/dRef/lib/processor"
	"github.com/ValentinKolb/dRef/lib/ref"
)

// item is a heap allocated element with a pointer field, so the runtime
// never batches it with other small objects
type item struct {
	name *string
}

func newItem(name string) *item {
	return &item{name: &name}
}

var itemEq = ref.Func(
	func(v *item) uint64 { return uint64(len(*v.name)) },
	func(a, b *item) bool { return *a.name == *b.name },
)

// manual disables background sweeping and drives time queues from clock
func manual(clock *atomic.Int64) Option {
	cfg := processor.DefaultConfig()
	cfg.Background = false
	if clock != nil {
		cfg.Clock = clock.Load
	}
	return WithProcessor(cfg)
}

func str(s string) *string { return &s }

func names(vs []*string) string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = *v
	}
	return strings.Join(out, ",")
}

func TestSetBasics(t *testing.T) {
	s, err := NewSet(ref.PolicyStrong, ref.Strings(), manual(nil))
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	defer s.Close()

	if !s.Add(str("a")) || !s.Add(str("b")) {
		t.Fatal("Adding new elements should succeed")
	}
	if s.Add(str("a")) {
		t.Error("Adding an equal element should fail")
	}
	if !s.Contains(str("a")) || s.Contains(str("c")) {
		t.Error("Contains reports wrong membership")
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 elements, got %d", s.Len())
	}
	if !s.Remove(str("a")) || s.Remove(str("a")) {
		t.Error("Remove should succeed exactly once")
	}
	if got := names(s.Slice()); got != "b" {
		t.Errorf("Expected [b], got %s", got)
	}
	if stats, ok := s.Distribution(); !ok || stats.Max != 1 {
		t.Errorf("Expected a single chain of length 1, got %+v (%v)", stats, ok)
	}

	s.Clear()
	if !s.IsEmpty() {
		t.Error("Set should be empty after Clear")
	}
}

func TestInsertedElementIsReturned(t *testing.T) {
	for _, p := range []ref.Policy{ref.PolicyStrong, ref.PolicyWeak, ref.PolicySoft} {
		t.Run(p.String(), func(t *testing.T) {
			s, err := NewSet(p, itemEq, manual(nil))
			if err != nil {
				t.Fatalf("NewSet failed: %v", err)
			}
			defer s.Close()

			e := newItem("x")
			s.Add(e)
			got, ok := s.Get(newItem("x"))
			if !ok || got != e {
				t.Errorf("Expected the inserted element back, got %v", got)
			}
			runtime.KeepAlive(e)
		})
	}

	for _, p := range []ref.Policy{ref.PolicyWeakIdentity, ref.PolicySoftIdentity} {
		t.Run(p.String(), func(t *testing.T) {
			s, err := NewSet(p, ref.Identities[item](), manual(nil))
			if err != nil {
				t.Fatalf("NewSet failed: %v", err)
			}
			defer s.Close()

			e := newItem("x")
			s.Add(e)
			if !s.Contains(e) {
				t.Error("Identity set should contain the inserted pointer")
			}
			if s.Contains(newItem("x")) {
				t.Error("Identity set must not match an equal copy")
			}
			runtime.KeepAlive(e)
		})
	}
}

func TestMixedEquivalenceRejected(t *testing.T) {
	if _, err := NewSet(ref.PolicyWeakIdentity, itemEq); !errors.Is(err, ref.ErrMixedEquivalence) {
		t.Errorf("Expected ErrMixedEquivalence, got %v", err)
	}
	if _, err := NewSet(ref.PolicyTime, itemEq, WithQueue[item](ref.NewQueue[item]())); !errors.Is(err, ref.ErrQueueMismatch) {
		t.Errorf("Expected ErrQueueMismatch, got %v", err)
	}
	if _, err := NewSet(ref.PolicyStrong, itemEq, WithStore(backing.NewMap[string, struct{}]())); !errors.Is(err, ErrOptionType) {
		t.Errorf("Expected ErrOptionType, got %v", err)
	}
}

func TestNilElementPanics(t *testing.T) {
	s, _ := NewSet(ref.PolicyStrong, ref.Strings(), manual(nil))
	defer s.Close()

	defer func() {
		rec := recover()
		if err, ok := rec.(error); !ok || !errors.Is(err, ref.ErrNilReferent) {
			t.Errorf("Expected panic with ErrNilReferent, got %v", rec)
		}
	}()
	s.Add(nil)
}

func TestWeakSetDropsCollected(t *testing.T) {
	s, err := NewSet(ref.PolicyWeak, itemEq, manual(nil))
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	defer s.Close()

	kept := newItem("kept")
	s.Add(kept)
	s.Add(newItem("dropped"))

	for i := 0; i < 100 && s.Len() > 1; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if s.Len() != 1 {
		t.Fatalf("Expected the collected element to be removed, got %d", s.Len())
	}
	if !s.Contains(newItem("kept")) {
		t.Error("Reachable element must stay")
	}
	runtime.KeepAlive(kept)
}

func TestDeadElementInvisibleBeforeSweep(t *testing.T) {
	q := ref.NewQueue[string]()
	s, err := NewSet(ref.PolicyWeak, ref.Strings(), manual(nil), WithQueue[string](q))
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	defer s.Close()

	a := str("a")
	s.Add(a)
	s.Add(str("b"))

	// simulate the collection of "a" without draining the queue
	s.store.Range(func(e setEntry[string]) bool {
		if e.Key.Equal(a) {
			ref.Release(e.Key)
		}
		return true
	})

	if s.Contains(str("a")) {
		t.Error("Dead element must not be found")
	}
	if got := names(s.Slice()); got != "b" {
		t.Errorf("Iteration should skip the dead element, got %s", got)
	}
	if s.store.Len() != 1 {
		t.Errorf("Iteration should have removed the dead cell, store holds %d", s.store.Len())
	}
}

func TestProbeLeavesQueueUntouched(t *testing.T) {
	q := ref.NewQueue[string]()
	s, _ := NewSet(ref.PolicyWeak, ref.Strings(), manual(nil), WithQueue[string](q))
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.Contains(str("missing"))
		runtime.GC()
	}
	if q.Len() != 0 {
		t.Errorf("Lookups must not register cells, queue holds %d", q.Len())
	}
}

func TestTimeSetExpiry(t *testing.T) {
	var clock atomic.Int64
	var expired []string
	s, err := NewSet(ref.PolicyTime, ref.Strings(), manual(&clock),
		WithOnExpire(func(v *string) { expired = append(expired, *v) }))
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	defer s.Close()

	s.Add(str("used"))
	s.Add(str("idle"))
	if res := s.Sweep(); res.Expired != 0 {
		t.Errorf("New elements must survive the first sweep, got %+v", res)
	}

	clock.Store(10)
	s.Contains(str("used"))
	res := s.Sweep()
	if res.Expired != 1 || res.Removed != 1 {
		t.Errorf("Expected one expired and removed cell, got %+v", res)
	}
	if s.Contains(str("idle")) || !s.Contains(str("used")) {
		t.Error("Only the untouched element should expire")
	}
	if len(expired) != 1 || expired[0] != "idle" {
		t.Errorf("Expiry hook saw %v", expired)
	}

	// the last Contains touched "used" again
	clock.Store(20)
	if res := s.Sweep(); res.Expired != 0 {
		t.Errorf("Touched element must survive, got %+v", res)
	}
	clock.Store(30)
	if res := s.Sweep(); res.Expired != 1 {
		t.Errorf("Untouched element should expire, got %+v", res)
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty set, got %d", s.Len())
	}
}

func TestSweepIdempotent(t *testing.T) {
	q := ref.NewQueue[string]()
	s, _ := NewSet(ref.PolicyStrong, ref.Strings(), manual(nil), WithQueue[string](q))
	defer s.Close()

	for _, n := range []string{"a", "b", "c"} {
		s.Add(str(n))
	}
	s.store.Range(func(e setEntry[string]) bool {
		if *e.Key.Peek() == "b" {
			e.Key.Clear()
		}
		return true
	})

	first := s.Sweep()
	state := names(s.Slice())
	second := s.Sweep()
	if first.Removed != 1 || second.Removed != 0 || second.Drained != 0 {
		t.Errorf("Unexpected sweep results %+v, %+v", first, second)
	}
	if got := names(s.Slice()); got != state || s.Len() != 2 {
		t.Errorf("Second sweep changed the set: %s -> %s", state, got)
	}
}

func TestIteratorRemove(t *testing.T) {
	s, _ := NewSet(ref.PolicyStrong, ref.Strings(), manual(nil))
	defer s.Close()
	for _, n := range []string{"a", "bb", "c", "dd"} {
		s.Add(str(n))
	}

	it := s.Iterator()
	if err := it.Remove(); !errors.Is(err, ErrIllegalState) {
		t.Errorf("Remove before Next should fail, got %v", err)
	}

	if n := s.RemoveIf(func(v *string) bool { return len(*v) == 2 }); n != 2 {
		t.Errorf("Expected 2 removed elements, got %d", n)
	}
	got := names(s.Slice())
	if got != "a,c" && got != "c,a" {
		t.Errorf("Expected a and c to remain, got %s", got)
	}
}

func TestPlainStore(t *testing.T) {
	s, err := NewSet(ref.PolicyStrong, ref.Strings(), manual(nil),
		WithStore(backing.NewMap[string, struct{}]()), WithName("plain"))
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	defer s.Close()

	s.Add(str("a"))
	if !s.Contains(str("a")) {
		t.Error("Plain store should work like the default one")
	}
	if info := s.Info(); len(info.Tasks) != 1 || info.Tasks[0].Name != "plain" {
		t.Errorf("Unexpected task info %+v", info.Tasks)
	}
}

func TestBackgroundClose(t *testing.T) {
	cfg := processor.DefaultConfig()
	cfg.Cycle = time.Millisecond
	s, _ := NewSet(ref.PolicyStrong, ref.Strings(), WithProcessor(cfg))

	if !s.Info().Running {
		t.Fatal("Background processor should run")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.Info().Running || !s.Info().Closed {
		t.Error("Processor should be stopped after Close")
	}
	s.Close()

	// still usable
	s.Add(str("a"))
	if !s.Contains(str("a")) {
		t.Error("Closed set should still work")
	}
}

// --------------------------------------------------------------------------
// SortedSet
// --------------------------------------------------------------------------

func newSortedSet(t *testing.T, elems ...string) *SortedSet[string] {
	t.Helper()
	s, err := NewSortedSet(ref.PolicyStrong, ref.Strings(), func(a, b *string) int { return strings.Compare(*a, *b) }, manual(nil))
	if err != nil {
		t.Fatalf("NewSortedSet failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	for _, e := range elems {
		s.Add(str(e))
	}
	return s
}

func TestSortedSetNavigation(t *testing.T) {
	s := newSortedSet(t, "d", "b", "f", "a")

	if s.Add(str("b")) {
		t.Error("Duplicate should be rejected")
	}
	if got := names(s.Slice()); got != "a,b,d,f" {
		t.Errorf("Expected ascending order, got %s", got)
	}
	if got := names(slices.Collect(s.Backward())); got != "f,d,b,a" {
		t.Errorf("Expected descending order, got %s", got)
	}

	check := func(name string, v *string, ok bool, want string) {
		t.Helper()
		switch {
		case want == "" && ok:
			t.Errorf("%s: expected nothing, got %s", name, *v)
		case want != "" && (!ok || *v != want):
			t.Errorf("%s: expected %s, got %v", name, want, v)
		}
	}

	v, ok := s.First()
	check("First", v, ok, "a")
	v, ok = s.Last()
	check("Last", v, ok, "f")
	v, ok = s.Ceiling(str("c"))
	check("Ceiling(c)", v, ok, "d")
	v, ok = s.Ceiling(str("d"))
	check("Ceiling(d)", v, ok, "d")
	v, ok = s.Higher(str("d"))
	check("Higher(d)", v, ok, "f")
	v, ok = s.Floor(str("c"))
	check("Floor(c)", v, ok, "b")
	v, ok = s.Lower(str("b"))
	check("Lower(b)", v, ok, "a")
	v, ok = s.Lower(str("a"))
	check("Lower(a)", v, ok, "")
	v, ok = s.Higher(str("f"))
	check("Higher(f)", v, ok, "")

	if got := names(slices.Collect(s.Between(str("b"), str("f")))); got != "b,d" {
		t.Errorf("Between(b, f) = %s", got)
	}
	if got := names(slices.Collect(s.Descend(str("c")))); got != "b,a" {
		t.Errorf("Descend(c) = %s", got)
	}

	v, ok = s.PollFirst()
	check("PollFirst", v, ok, "a")
	v, ok = s.PollLast()
	check("PollLast", v, ok, "f")
	if got := names(s.Slice()); got != "b,d" {
		t.Errorf("Expected b,d after polling, got %s", got)
	}
}

func TestSortedSetSkipsDead(t *testing.T) {
	s := newSortedSet(t, "a", "b", "c")

	s.store.Ascend(nil, func(e setEntry[string]) bool {
		ref.Release(e.Key)
		return false
	})

	if v, ok := s.First(); !ok || *v != "b" {
		t.Errorf("First should skip the dead element, got %v", v)
	}
	if s.Contains(str("a")) {
		t.Error("Dead element must not be found")
	}
	if s.Len() != 2 {
		t.Errorf("Navigation should have removed the dead cell, got %d", s.Len())
	}
}

// --------------------------------------------------------------------------
// Queues and lists
// --------------------------------------------------------------------------

func TestQueue(t *testing.T) {
	q, err := NewQueue(ref.PolicyStrong, ref.Strings(), manual(nil), WithCapacity(2))
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	defer q.Close()

	if _, err := q.Element(); !errors.Is(err, ErrNoSuchElement) {
		t.Errorf("Element on empty queue should fail, got %v", err)
	}
	if !q.Offer(str("a")) || !q.Offer(str("b")) {
		t.Fatal("Offer should succeed below capacity")
	}
	if q.Offer(str("c")) {
		t.Error("Offer should fail at capacity")
	}
	if err := q.Add(str("c")); !errors.Is(err, ErrFull) {
		t.Errorf("Expected ErrFull, got %v", err)
	}

	if v, ok := q.Peek(); !ok || *v != "a" {
		t.Errorf("Peek should return the head, got %v", v)
	}
	if v, _ := q.Poll(); *v != "a" {
		t.Errorf("Poll should return a, got %s", *v)
	}
	if v, err := q.RemoveHead(); err != nil || *v != "b" {
		t.Errorf("RemoveHead should return b, got %v, %v", v, err)
	}
	if _, err := q.RemoveHead(); !errors.Is(err, ErrNoSuchElement) {
		t.Errorf("Expected ErrNoSuchElement, got %v", err)
	}
}

func TestQueueSkipsDead(t *testing.T) {
	q, _ := NewQueue(ref.PolicyStrong, ref.Strings(), manual(nil))
	defer q.Close()
	for _, n := range []string{"a", "b", "c"} {
		q.Offer(str(n))
	}

	q.store.Range(func(i int, r ref.Referrer[string]) bool {
		if i < 2 {
			ref.Release(r)
		}
		return true
	})

	if v, ok := q.Peek(); !ok || *v != "c" {
		t.Errorf("Peek should skip dead cells, got %v", v)
	}
	if q.Len() != 1 {
		t.Errorf("Peek should have removed the dead cells, got %d", q.Len())
	}
}

func TestDeque(t *testing.T) {
	d, err := NewDeque(ref.PolicyStrong, ref.Strings(), manual(nil))
	if err != nil {
		t.Fatalf("NewDeque failed: %v", err)
	}
	defer d.Close()

	d.OfferLast(str("b"))
	d.OfferFirst(str("a"))
	d.AddLast(str("c"))
	d.Push(str("x"))
	d.OfferLast(str("a"))

	if got := names(d.Slice()); got != "x,a,b,c,a" {
		t.Errorf("Unexpected order %s", got)
	}
	if got := names(slices.Collect(d.Backward())); got != "a,c,b,a,x" {
		t.Errorf("Unexpected backward order %s", got)
	}
	if v, err := d.Pop(); err != nil || *v != "x" {
		t.Errorf("Pop should return x, got %v, %v", v, err)
	}
	if !d.RemoveLastOccurrence(str("a")) {
		t.Error("RemoveLastOccurrence should find a")
	}
	if got := names(d.Slice()); got != "a,b,c" {
		t.Errorf("Expected a,b,c, got %s", got)
	}
	if v, ok := d.PeekLast(); !ok || *v != "c" {
		t.Errorf("PeekLast should return c, got %v", v)
	}
	if v, ok := d.PollLast(); !ok || *v != "c" {
		t.Errorf("PollLast should return c, got %v", v)
	}
	if !d.Contains(str("b")) || d.Contains(str("c")) {
		t.Error("Contains reports wrong membership")
	}

	it := d.DescendingIterator()
	for it.Next() {
		if *it.Value() == "b" {
			it.Remove()
		}
	}
	if got := names(d.Slice()); got != "a" {
		t.Errorf("Expected a, got %s", got)
	}
}

func TestBlockingQueue(t *testing.T) {
	q, err := NewBlockingQueue(ref.PolicyStrong, ref.Strings(), manual(nil), WithCapacity(1))
	if err != nil {
		t.Fatalf("NewBlockingQueue failed: %v", err)
	}
	defer q.Close()

	if _, ok := q.PollTimeout(10 * time.Millisecond); ok {
		t.Error("PollTimeout on empty queue should time out")
	}
	if err := q.Put(context.Background(), str("a")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if q.RemainingCapacity() != 0 {
		t.Errorf("Expected no remaining capacity, got %d", q.RemainingCapacity())
	}
	if q.OfferTimeout(str("b"), 10*time.Millisecond) {
		t.Error("OfferTimeout on full queue should time out")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, str("b")) }()

	if v, err := q.Take(ctx); err != nil || *v != "a" {
		t.Fatalf("Take should return a, got %v, %v", v, err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Blocked Put failed: %v", err)
	}

	var drained []string
	if n := q.DrainTo(func(v *string) { drained = append(drained, *v) }, 0); n != 1 || drained[0] != "b" {
		t.Errorf("DrainTo moved %v", drained)
	}
}

func TestBlockingDeque(t *testing.T) {
	d, err := NewBlockingDeque(ref.PolicyStrong, ref.Strings(), manual(nil))
	if err != nil {
		t.Fatalf("NewBlockingDeque failed: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	d.PutLast(ctx, str("b"))
	d.PutFirst(ctx, str("a"))

	if v, err := d.TakeLast(ctx); err != nil || *v != "b" {
		t.Errorf("TakeLast should return b, got %v, %v", v, err)
	}
	if v, ok := d.PollFirstTimeout(time.Millisecond); !ok || *v != "a" {
		t.Errorf("PollFirstTimeout should return a, got %v", v)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := d.TakeFirst(cctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestList(t *testing.T) {
	l, err := NewList(ref.PolicyStrong, ref.Strings(), manual(nil))
	if err != nil {
		t.Fatalf("NewList failed: %v", err)
	}
	defer l.Close()

	l.Append(str("a"))
	l.Append(str("c"))
	if err := l.Insert(1, str("b")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := l.Insert(5, str("z")); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange, got %v", err)
	}
	l.Append(str("a"))

	if got := names(l.Slice()); got != "a,b,c,a" {
		t.Errorf("Unexpected list %s", got)
	}
	if l.IndexOf(str("a")) != 0 || l.LastIndexOf(str("a")) != 3 || l.IndexOf(str("z")) != -1 {
		t.Error("IndexOf reports wrong positions")
	}

	prev, err := l.Set(1, str("B"))
	if err != nil || *prev != "b" {
		t.Errorf("Set should return the previous element, got %v, %v", prev, err)
	}
	if v, err := l.RemoveAt(0); err != nil || *v != "a" {
		t.Errorf("RemoveAt(0) should return a, got %v, %v", v, err)
	}
	if _, err := l.Get(10); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange, got %v", err)
	}
	if !l.Remove(str("a")) {
		t.Error("Remove should find a")
	}
	if got := names(l.Slice()); got != "B,c" {
		t.Errorf("Expected B,c, got %s", got)
	}
}

func TestListDeadReadsNil(t *testing.T) {
	q := ref.NewQueue[string]()
	l, _ := NewList(ref.PolicyStrong, ref.Strings(), manual(nil), WithQueue[string](q))
	defer l.Close()
	l.Append(str("a"))
	l.Append(str("b"))

	r, _ := l.store.At(0)
	r.Clear()

	// Get drains the queue first, so look at the store directly
	if r.Get() != nil {
		t.Error("Cleared cell should be dead")
	}
	l.ProcessQueue()
	if v, err := l.Get(0); err != nil || *v != "b" {
		t.Errorf("After the sweep b should move to position 0, got %v, %v", v, err)
	}

	r, _ = l.store.At(0)
	ref.Release(r)
	if v, err := l.Get(0); err != nil || v != nil {
		t.Errorf("Dead cell should read as nil until swept, got %v, %v", v, err)
	}
}

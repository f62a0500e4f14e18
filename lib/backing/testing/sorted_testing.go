package testing

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/dRef/lib/backing"
)

// SortedStoreFactory creates a new, empty sorted store with the given ordering
type SortedStoreFactory func(compare func(a, b *string) int) backing.SortedStore[string, string]

// RunSortedStoreTests runs the conformance suite for a backing.SortedStore implementation
func RunSortedStoreTests(t *testing.T, name string, factory SortedStoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Compute&Load", func(t *testing.T) {
			testSortedComputeLoad(t, factory(compareStrings))
		})

		t.Run("Order", func(t *testing.T) {
			testSortedOrder(t, factory(compareStrings))
		})

		t.Run("DeadEntries", func(t *testing.T) {
			testSortedDeadEntries(t, factory(compareStrings))
		})

		t.Run("LargeIteration", func(t *testing.T) {
			testSortedLargeIteration(t, factory(compareStrings))
		})

		t.Run("Clear", func(t *testing.T) {
			testSortedClear(t, factory(compareStrings))
		})
	})
}

func ascendKeys(s backing.SortedStore[string, string], from *string) []string {
	var keys []string
	s.Ascend(from, func(e backing.Entry[string, string]) bool {
		keys = append(keys, keyOf(e))
		return true
	})
	return keys
}

func descendKeys(s backing.SortedStore[string, string], from *string) []string {
	var keys []string
	s.Descend(from, func(e backing.Entry[string, string]) bool {
		keys = append(keys, keyOf(e))
		return true
	})
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testSortedComputeLoad(t *testing.T, s backing.SortedStore[string, string]) {
	f := newFixture(t)

	f.put(s, "b", "2")
	f.put(s, "a", "1")
	first := f.put(s, "a", "10")

	if s.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", s.Len())
	}
	if e, ok := s.Load(f.probe("a")); !ok || valueOf(e) != "10" {
		t.Errorf("Expected a -> 10, got %q", valueOf(e))
	}

	f.del(s, "a")
	if _, ok := s.Load(f.probe("a")); ok {
		t.Error("Deleted entry should not be found")
	}
	if first.Key.Get() != nil {
		t.Error("Cells of a deleted entry should be released")
	}
	if s.Compare(&[]string{"a"}[0], &[]string{"b"}[0]) >= 0 {
		t.Error("Compare should expose the ordering")
	}
}

func testSortedOrder(t *testing.T, s backing.SortedStore[string, string]) {
	f := newFixture(t)
	for _, k := range []string{"d", "b", "e", "a", "c"} {
		f.put(s, k, k)
	}

	if got := ascendKeys(s, nil); !equalKeys(got, []string{"a", "b", "c", "d", "e"}) {
		t.Errorf("Unexpected ascending order %v", got)
	}
	if got := descendKeys(s, nil); !equalKeys(got, []string{"e", "d", "c", "b", "a"}) {
		t.Errorf("Unexpected descending order %v", got)
	}

	pivot := "c"
	if got := ascendKeys(s, &pivot); !equalKeys(got, []string{"c", "d", "e"}) {
		t.Errorf("Ascend from c should include c, got %v", got)
	}
	if got := descendKeys(s, &pivot); !equalKeys(got, []string{"c", "b", "a"}) {
		t.Errorf("Descend from c should include c, got %v", got)
	}

	missing := "bb"
	if got := ascendKeys(s, &missing); !equalKeys(got, []string{"c", "d", "e"}) {
		t.Errorf("Ascend from a missing key should start at its ceiling, got %v", got)
	}
	if got := descendKeys(s, &missing); !equalKeys(got, []string{"b", "a"}) {
		t.Errorf("Descend from a missing key should start at its floor, got %v", got)
	}
}

func testSortedDeadEntries(t *testing.T, s backing.SortedStore[string, string]) {
	f := newFixture(t)
	a := f.put(s, "a", "1")
	b := f.put(s, "b", "2")

	a.Key.Clear()
	if _, ok := s.Load(f.probe("a")); ok {
		t.Error("Dead entries must not be found")
	}

	// the dead entry keeps its position thanks to the key snapshot
	if s.Len() != 2 {
		t.Errorf("Dead entry stays until removed, got %d entries", s.Len())
	}
	if !s.DeleteKey(a.Key) {
		t.Error("DeleteKey should locate the dead entry")
	}
	if s.DeleteKey(a.Key) {
		t.Error("Second DeleteKey should be a no-op")
	}

	b.Value.Clear()
	if !s.DeleteValue(b.Value) {
		t.Error("DeleteValue should locate the entry of a dead value")
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d", s.Len())
	}

	// a dead entry is replaced by a new one with an equal key
	c := f.put(s, "c", "3")
	c.Key.Clear()
	f.put(s, "c", "4")
	if e, ok := s.Load(f.probe("c")); !ok || valueOf(e) != "4" || s.Len() != 1 {
		t.Errorf("Expected c -> 4 in a single entry, got %q (len %d)", valueOf(e), s.Len())
	}
}

func testSortedLargeIteration(t *testing.T, s backing.SortedStore[string, string]) {
	f := newFixture(t)
	const n = 500
	for i := 0; i < n; i++ {
		f.put(s, fmt.Sprintf("%04d", i), "")
	}

	got := ascendKeys(s, nil)
	if len(got) != n {
		t.Fatalf("Expected %d keys, got %d", n, len(got))
	}
	for i := range got {
		if got[i] != fmt.Sprintf("%04d", i) {
			t.Fatalf("Unexpected key %q at %d", got[i], i)
		}
	}
	if got := descendKeys(s, nil); len(got) != n || got[0] != fmt.Sprintf("%04d", n-1) {
		t.Errorf("Descend should visit %d keys starting at the largest", n)
	}

	// removing every visited entry while iterating
	s.Ascend(nil, func(e backing.Entry[string, string]) bool {
		s.DeleteKey(e.Key)
		return true
	})
	if s.Len() != 0 {
		t.Errorf("Expected all entries removed during iteration, got %d", s.Len())
	}
}

func testSortedClear(t *testing.T, s backing.SortedStore[string, string]) {
	f := newFixture(t)
	e := f.put(s, "a", "1")
	f.put(s, "b", "2")

	s.Clear()
	if s.Len() != 0 || len(ascendKeys(s, nil)) != 0 {
		t.Error("Clear should remove all entries")
	}
	if e.Key.Get() != nil {
		t.Error("Clear should release all cells")
	}
	if s.DeleteKey(e.Key) {
		t.Error("Cleared cells should not be found")
	}
}

package testing

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dRef/lib/backing"
)

// MapStoreFactory creates a new, empty map store
type MapStoreFactory func() backing.MapStore[string, string]

// RunMapStoreTests runs the conformance suite for a backing.MapStore implementation
func RunMapStoreTests(t *testing.T, name string, factory MapStoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Compute&Load", func(t *testing.T) {
			testMapComputeLoad(t, factory())
		})

		t.Run("ReplaceValue", func(t *testing.T) {
			testMapReplaceValue(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testMapDelete(t, factory())
		})

		t.Run("DeleteExactCell", func(t *testing.T) {
			testMapDeleteExactCell(t, factory())
		})

		t.Run("DeadEntries", func(t *testing.T) {
			testMapDeadEntries(t, factory())
		})

		t.Run("Range&Clear", func(t *testing.T) {
			testMapRangeClear(t, factory())
		})

		t.Run("Concurrent", func(t *testing.T) {
			testMapConcurrent(t, factory())
		})
	})
}

func testMapComputeLoad(t *testing.T, s backing.MapStore[string, string]) {
	f := newFixture(t)

	if _, ok := s.Load(f.probe("missing")); ok {
		t.Error("Load on an empty store should fail")
	}

	f.put(s, "a", "1")
	f.put(s, "b", "2")

	e, ok := s.Load(f.probe("a"))
	if !ok || valueOf(e) != "1" {
		t.Errorf("Expected a -> 1, got %q (%v)", valueOf(e), ok)
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", s.Len())
	}

	// OpKeep leaves the store untouched and reports the current entry
	e, ok = s.Compute(f.probe("a"), func(old backing.Entry[string, string], loaded bool) (backing.Entry[string, string], backing.Op) {
		if !loaded {
			t.Error("Compute should see the existing entry")
		}
		return backing.Entry[string, string]{}, backing.OpKeep
	})
	if !ok || valueOf(e) != "1" {
		t.Errorf("OpKeep should return the current entry, got %q", valueOf(e))
	}
}

func testMapReplaceValue(t *testing.T, s backing.MapStore[string, string]) {
	f := newFixture(t)

	first := f.put(s, "a", "1")
	second := f.put(s, "a", "2")

	if first.Key != second.Key {
		t.Error("Replacing the value must keep the key cell")
	}
	if first.Value.Get() != nil {
		t.Error("The displaced value cell should be released")
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", s.Len())
	}
	if e, _ := s.Load(f.probe("a")); valueOf(e) != "2" {
		t.Errorf("Expected a -> 2, got %q", valueOf(e))
	}
	if f.vq.Len() != 0 {
		t.Error("Released cells must not be reported to the queue")
	}
}

func testMapDelete(t *testing.T, s backing.MapStore[string, string]) {
	f := newFixture(t)

	e := f.put(s, "a", "1")
	f.del(s, "a")

	if _, ok := s.Load(f.probe("a")); ok {
		t.Error("Deleted entry should not be found")
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d", s.Len())
	}
	if e.Key.Get() != nil || e.Value.Get() != nil {
		t.Error("Cells of a deleted entry should be released")
	}

	// deleting an absent key is a no-op
	f.del(s, "a")
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d", s.Len())
	}
}

func testMapDeleteExactCell(t *testing.T, s backing.MapStore[string, string]) {
	f := newFixture(t)

	old := f.entry("a", "1")
	current := f.put(s, "a", "1")

	// a cell with an equal key that is not stored must not remove the entry
	if s.DeleteKey(old.Key) {
		t.Error("DeleteKey with a foreign cell must not remove anything")
	}
	if s.DeleteValue(old.Value) {
		t.Error("DeleteValue with a foreign cell must not remove anything")
	}
	if s.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", s.Len())
	}

	if !s.DeleteValue(current.Value) {
		t.Error("DeleteValue should remove the entry owning the value cell")
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d", s.Len())
	}
	if current.Key.Get() != nil {
		t.Error("The key cell of an entry removed by value should be released")
	}

	// idempotent
	if s.DeleteValue(current.Value) || s.DeleteKey(current.Key) {
		t.Error("Removing an absent cell should be a no-op")
	}

	e := f.put(s, "b", "2")
	if !s.DeleteKey(e.Key) || s.Len() != 0 {
		t.Error("DeleteKey should remove the entry owning the key cell")
	}
}

func testMapDeadEntries(t *testing.T, s backing.MapStore[string, string]) {
	f := newFixture(t)

	e := f.put(s, "a", "1")
	e.Key.Clear()

	if _, ok := s.Load(f.probe("a")); ok {
		t.Error("Dead entries must not be found")
	}

	// a new entry with an equal key replaces the dead one
	f.put(s, "a", "2")
	if s.Len() != 1 {
		t.Errorf("Dead entry should be dropped on compute, got %d entries", s.Len())
	}
	if got, _ := s.Load(f.probe("a")); valueOf(got) != "2" {
		t.Errorf("Expected a -> 2, got %q", valueOf(got))
	}

	// the dead cell was dropped already, the sweep finds nothing
	if s.DeleteKey(e.Key) {
		t.Error("Dropped dead cell should not be found again")
	}

	// dead value
	v := f.put(s, "b", "3")
	v.Value.Clear()
	if _, ok := s.Load(f.probe("b")); ok {
		t.Error("Entries with a dead value must not be found")
	}
	if !s.DeleteValue(v.Value) {
		t.Error("DeleteValue should find the entry through the anchor")
	}
}

func testMapRangeClear(t *testing.T, s backing.MapStore[string, string]) {
	f := newFixture(t)

	var cells []backing.Entry[string, string]
	for i := 0; i < 100; i++ {
		cells = append(cells, f.put(s, fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i)))
	}

	seen := make(map[string]bool)
	s.Range(func(e backing.Entry[string, string]) bool {
		seen[keyOf(e)] = true
		return true
	})
	if len(seen) != 100 {
		t.Errorf("Range should visit 100 entries, got %d", len(seen))
	}

	count := 0
	s.Range(func(e backing.Entry[string, string]) bool {
		count++
		return count < 10
	})
	if count != 10 {
		t.Errorf("Range should stop when fn returns false, visited %d", count)
	}

	// deleting while ranging is allowed
	s.Range(func(e backing.Entry[string, string]) bool {
		if keyOf(e) == "key-5" {
			s.DeleteKey(e.Key)
		}
		return true
	})
	if s.Len() != 99 {
		t.Errorf("Expected 99 entries, got %d", s.Len())
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Expected empty store after clear, got %d", s.Len())
	}
	for _, e := range cells {
		if e.Key.Get() != nil {
			t.Fatal("Clear should release all cells")
		}
	}
}

func testMapConcurrent(t *testing.T, s backing.MapStore[string, string]) {
	if !s.Concurrent() {
		t.Skip("store is not safe for concurrent use")
	}
	f := newFixture(t)

	const workers, perWorker = 8, 200
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("key-%d", i)
				f.put(s, key, fmt.Sprintf("%d", w))
				if i%3 == 0 {
					f.del(s, key)
				}
			}
		}(w)
	}
	wg.Wait()

	live := 0
	s.Range(func(e backing.Entry[string, string]) bool {
		if e.Live() {
			live++
		}
		return true
	})
	if live != s.Len() {
		t.Errorf("Len (%d) should match the live entries (%d)", s.Len(), live)
	}
	for i := 0; i < perWorker; i++ {
		if _, ok := s.Load(f.probe(fmt.Sprintf("key-%d", i))); i%3 != 0 && !ok {
			t.Errorf("key-%d should be present", i)
		}
	}
}

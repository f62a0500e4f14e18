package testing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dRef/lib/backing"
	"github.com/ValentinKolb/dRef/lib/ref"
)

// SequenceFactory creates a new, empty sequence store with the given capacity (0 = unbounded)
type SequenceFactory func(capacity int) backing.SequenceStore[string]

// RunSequenceTests runs the conformance suite for a backing.SequenceStore implementation
func RunSequenceTests(t *testing.T, name string, factory SequenceFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Deque", func(t *testing.T) {
			testSequenceDeque(t, factory(0))
		})

		t.Run("Positional", func(t *testing.T) {
			testSequencePositional(t, factory(0))
		})

		t.Run("RemoveMatching", func(t *testing.T) {
			testSequenceRemoveMatching(t, factory(0))
		})

		t.Run("Capacity", func(t *testing.T) {
			testSequenceCapacity(t, factory(2))
		})

		t.Run("Blocking", func(t *testing.T) {
			testSequenceBlocking(t, factory(1))
		})

		t.Run("Growth", func(t *testing.T) {
			testSequenceGrowth(t, factory(0))
		})
	})
}

func cellOf(f *fixture, v string) ref.Referrer[string] {
	return f.keys.Referenced(&v)
}

func valueAt(s backing.SequenceStore[string], i int) string {
	r, ok := s.At(i)
	if !ok || r.Peek() == nil {
		return ""
	}
	return *r.Peek()
}

func contents(s backing.SequenceStore[string]) []string {
	var out []string
	s.Range(func(_ int, r ref.Referrer[string]) bool {
		out = append(out, *r.Peek())
		return true
	})
	return out
}

func testSequenceDeque(t *testing.T, s backing.SequenceStore[string]) {
	f := newFixture(t)

	if _, ok := s.PopFront(); ok {
		t.Error("PopFront on an empty sequence should fail")
	}
	if _, ok := s.PeekBack(); ok {
		t.Error("PeekBack on an empty sequence should fail")
	}

	s.PushBack(cellOf(f, "b"))
	s.PushBack(cellOf(f, "c"))
	s.PushFront(cellOf(f, "a"))

	if got := contents(s); !equalKeys(got, []string{"a", "b", "c"}) {
		t.Errorf("Unexpected contents %v", got)
	}
	if r, _ := s.PeekFront(); *r.Peek() != "a" {
		t.Error("PeekFront should return the first cell")
	}
	if r, _ := s.PeekBack(); *r.Peek() != "c" {
		t.Error("PeekBack should return the last cell")
	}

	if r, _ := s.PopBack(); *r.Peek() != "c" {
		t.Error("PopBack should return the last cell")
	}
	if r, _ := s.PopFront(); *r.Peek() != "a" {
		t.Error("PopFront should return the first cell")
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 cell, got %d", s.Len())
	}

	var backward []string
	s.PushBack(cellOf(f, "z"))
	s.RangeBackward(func(_ int, r ref.Referrer[string]) bool {
		backward = append(backward, *r.Peek())
		return true
	})
	if !equalKeys(backward, []string{"z", "b"}) {
		t.Errorf("Unexpected backward contents %v", backward)
	}
}

func testSequencePositional(t *testing.T, s backing.SequenceStore[string]) {
	f := newFixture(t)

	for _, v := range []string{"a", "c", "e"} {
		s.PushBack(cellOf(f, v))
	}
	s.Insert(1, cellOf(f, "b"))
	s.Insert(3, cellOf(f, "d"))
	s.Insert(5, cellOf(f, "f"))
	if s.Insert(10, cellOf(f, "x")) {
		t.Error("Insert out of range should fail")
	}
	if got := contents(s); !equalKeys(got, []string{"a", "b", "c", "d", "e", "f"}) {
		t.Errorf("Unexpected contents after insert %v", got)
	}

	old, ok := s.Set(2, cellOf(f, "C"))
	if !ok || *old.Peek() != "c" || valueAt(s, 2) != "C" {
		t.Error("Set should replace the cell and return the old one")
	}

	r, ok := s.RemoveAt(3)
	if !ok || *r.Peek() != "d" {
		t.Error("RemoveAt should return the removed cell")
	}
	if _, ok := s.RemoveAt(-1); ok {
		t.Error("RemoveAt out of range should fail")
	}
	if got := contents(s); !equalKeys(got, []string{"a", "b", "C", "e", "f"}) {
		t.Errorf("Unexpected contents after remove %v", got)
	}
}

func testSequenceRemoveMatching(t *testing.T, s backing.SequenceStore[string]) {
	f := newFixture(t)

	cells := make([]ref.Referrer[string], 0)
	for _, v := range []string{"x", "y", "x", "z"} {
		c := cellOf(f, v)
		cells = append(cells, c)
		s.PushBack(c)
	}
	isX := func(r ref.Referrer[string]) bool { return r.Peek() != nil && *r.Peek() == "x" }

	if r, ok := s.RemoveLast(isX); !ok || r != cells[2] {
		t.Error("RemoveLast should remove the last match")
	}
	if r, ok := s.RemoveFirst(isX); !ok || r != cells[0] {
		t.Error("RemoveFirst should remove the first match")
	}
	if _, ok := s.RemoveFirst(isX); ok {
		t.Error("No match should be left")
	}

	if !s.RemoveRef(cells[3]) {
		t.Error("RemoveRef should remove the exact cell")
	}
	if cells[3].Get() != nil {
		t.Error("RemoveRef should release the cell")
	}
	if s.RemoveRef(cells[3]) {
		t.Error("Removing an absent cell should be a no-op")
	}
	if got := contents(s); !equalKeys(got, []string{"y"}) {
		t.Errorf("Unexpected contents %v", got)
	}

	s.Clear()
	if s.Len() != 0 || cells[1].Get() != nil {
		t.Error("Clear should remove and release all cells")
	}
}

func testSequenceCapacity(t *testing.T, s backing.SequenceStore[string]) {
	f := newFixture(t)

	if s.Cap() != 2 {
		t.Errorf("Expected capacity 2, got %d", s.Cap())
	}
	if !s.PushBack(cellOf(f, "a")) || !s.PushFront(cellOf(f, "b")) {
		t.Fatal("Pushing into free capacity should succeed")
	}
	if s.PushBack(cellOf(f, "c")) || s.PushFront(cellOf(f, "c")) || s.Insert(1, cellOf(f, "c")) {
		t.Error("Pushing into a full sequence should fail")
	}
}

func testSequenceBlocking(t *testing.T, s backing.SequenceStore[string]) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.PopFrontWait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PopFrontWait on empty sequence should time out, got %v", err)
	}

	if err := s.PushBackWait(context.Background(), cellOf(f, "a")); err != nil {
		t.Fatalf("PushBackWait failed: %v", err)
	}

	// the sequence is full, the producer blocks until the consumer pops
	var wg sync.WaitGroup
	wg.Add(1)
	var pushErr error
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pushErr = s.PushFrontWait(ctx, cellOf(f, "b"))
	}()

	time.Sleep(10 * time.Millisecond)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	r, err := s.PopBackWait(ctx2)
	if err != nil || *r.Peek() != "a" {
		t.Fatalf("Expected a from PopBackWait, got %v", err)
	}

	wg.Wait()
	if pushErr != nil {
		t.Fatalf("Blocked producer failed: %v", pushErr)
	}
	if valueAt(s, 0) != "b" {
		t.Error("Blocked producer should have pushed b")
	}
}

func testSequenceGrowth(t *testing.T, s backing.SequenceStore[string]) {
	f := newFixture(t)

	// alternate ends so the ring wraps around several times
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			s.PushFront(cellOf(f, "front"))
		} else {
			s.PushBack(cellOf(f, "back"))
		}
	}
	if s.Len() != 100 {
		t.Fatalf("Expected 100 cells, got %d", s.Len())
	}
	if valueAt(s, 0) != "front" || valueAt(s, 99) != "back" {
		t.Error("Ends should keep their cells after growing")
	}
	for i := 0; i < 100; i++ {
		if _, ok := s.PopFront(); !ok {
			t.Fatalf("PopFront %d failed", i)
		}
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty sequence, got %d", s.Len())
	}
}

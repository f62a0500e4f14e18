package ref

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dRef/lib/util"
)

// task is a cancellable element
type task struct {
	name      string
	cancelled atomic.Bool
}

func (t *task) Cancel() { t.cancelled.Store(true) }

func newTimedFactory(t *testing.T, hook func(*task)) (*TimedQueue[task], *Queuing[task]) {
	t.Helper()
	q := NewTimedQueue[task](hook)
	f, err := NewQueuing(PolicyTime, Identities[task](), q)
	if err == nil {
		t.Fatal("Time policy with identity equivalence should be rejected")
	}
	f, err = NewQueuing(PolicyTime, Func(
		func(v *task) uint64 { return util.HashString(v.name, 7) },
		func(a, b *task) bool { return a.name == b.name },
	), q)
	if err != nil {
		t.Fatalf("NewQueuing failed: %v", err)
	}
	return q, f
}

func TestTimeUntouchedExpires(t *testing.T) {
	q, f := newTimedFactory(t, nil)

	e := &task{name: "lease"}
	r := f.Referenced(e)

	if n := q.UpdateClock(0); n != 0 {
		t.Errorf("Clock at the watermark must not expire, got %d", n)
	}
	if n := q.UpdateClock(1); n != 1 {
		t.Fatalf("Expected one expired cell, got %d", n)
	}

	if r.Get() != nil {
		t.Error("Expired cell should return nil")
	}
	if f.Probe(e).Matches(r) {
		t.Error("Expired cell must not match lookups")
	}
	if !e.cancelled.Load() {
		t.Error("Expired cancellable element should be cancelled")
	}
	if got, ok := q.Poll(); !ok || got != r {
		t.Error("Expired cell should be enqueued")
	}
	if q.Registered() != 0 {
		t.Errorf("Expired cell should be unregistered, got %d", q.Registered())
	}
}

func TestTimeNewCellSurvivesFirstAdvance(t *testing.T) {
	q, f := newTimedFactory(t, nil)
	q.UpdateClock(100)

	// created right before an advance, the cell still gets a full period
	e := &task{name: "late"}
	r := f.Referenced(e)
	if n := q.UpdateClock(101); n != 0 {
		t.Fatalf("New cell must survive the first advance, got %d expired", n)
	}
	if r.Get() == nil || e.cancelled.Load() {
		t.Error("New cell should still hold its element")
	}

	if n := q.UpdateClock(102); n != 0 {
		t.Fatalf("Cell read before the advance must survive, got %d expired", n)
	}
	if n := q.UpdateClock(103); n != 1 {
		t.Errorf("Untouched cell should expire after a full period, got %d", n)
	}
	if !e.cancelled.Load() {
		t.Error("Expired element should be cancelled")
	}
}

func TestTimeTouchedSurvives(t *testing.T) {
	q, f := newTimedFactory(t, nil)

	e := &task{name: "lease"}
	r := f.Referenced(e)

	r.Get()
	if n := q.UpdateClock(10); n != 0 {
		t.Fatalf("Touched cell must survive, got %d expired", n)
	}
	if e.cancelled.Load() {
		t.Error("Touched element must not be cancelled")
	}

	// touched once, the next advance without access expires it
	if n := q.UpdateClock(10); n != 0 {
		t.Errorf("Advance to the same clock must not expire, got %d", n)
	}
	if n := q.UpdateClock(11); n != 1 {
		t.Errorf("Untouched cell should expire on the next advance, got %d", n)
	}
	if q.Clock() != 11 {
		t.Errorf("Expected clock 11, got %d", q.Clock())
	}
}

func TestTimeCustomHook(t *testing.T) {
	var expired []string
	q, f := newTimedFactory(t, func(v *task) { expired = append(expired, v.name) })

	e := &task{name: "custom"}
	f.Referenced(e)
	q.UpdateClock(5)
	if len(expired) != 0 {
		t.Fatalf("A new cell must survive the first advance, hook saw %v", expired)
	}
	q.UpdateClock(6)

	if len(expired) != 1 || expired[0] != "custom" {
		t.Errorf("Expected hook to see the expired element, got %v", expired)
	}
	if e.cancelled.Load() {
		t.Error("Custom hook replaces the cancelling default")
	}
}

func TestTimePanickingHook(t *testing.T) {
	q, f := newTimedFactory(t, func(v *task) { panic("boom") })

	f.Referenced(&task{name: "a"})
	f.Referenced(&task{name: "b"})

	q.UpdateClock(0)
	if n := q.UpdateClock(1); n != 2 {
		t.Errorf("A failing hook must not stop the advance, got %d expired", n)
	}
	if q.Len() != 2 {
		t.Errorf("Expected both cells enqueued, got %d", q.Len())
	}
}

func TestTimeReleaseUnregisters(t *testing.T) {
	q, f := newTimedFactory(t, nil)

	e := &task{name: "removed"}
	r := f.Referenced(e)
	Release(r)

	if q.Registered() != 0 {
		t.Errorf("Released cell should be unregistered, got %d", q.Registered())
	}
	if n := q.UpdateClock(100); n != 0 {
		t.Errorf("Released cell must not expire, got %d", n)
	}
	if e.cancelled.Load() {
		t.Error("Released element must not be cancelled")
	}
}

func TestQueueRemoveBlocks(t *testing.T) {
	q := NewQueue[item]()
	f, _ := NewQueuing(PolicyStrong, itemEq, q)
	r := f.Referenced(newItem("blocked"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Clear()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := q.Remove(ctx)
	if err != nil || got != r {
		t.Fatalf("Expected cleared cell from Remove, got %v (%v)", got, err)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if _, err := q.Remove(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}

	q.Close()
	if !q.Closed() {
		t.Error("Queue should be closed")
	}
	if _, err := q.Remove(context.Background()); !errors.Is(err, util.ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
	if q.Offer(r) {
		t.Error("Offer on a closed queue should fail")
	}
}

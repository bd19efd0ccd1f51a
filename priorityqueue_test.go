package worldstream

import (
	"math/rand"
	"testing"
)

func TestPriorityQueueEmpty(t *testing.T) {
	q := NewPriorityQueue[string]()
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
	if _, _, ok := q.PopMin(); ok {
		t.Fatal("PopMin() on empty queue returned ok=true")
	}
}

func TestPriorityQueuePopMinOrder(t *testing.T) {
	q := NewPriorityQueue[string]()
	q.Push(5, "five")
	q.Push(1, "one")
	q.Push(3, "three")
	q.Push(2, "two")
	q.Push(4, "four")

	want := []string{"one", "two", "three", "four", "five"}
	for _, w := range want {
		item, _, ok := q.PopMin()
		if !ok || item != w {
			t.Fatalf("PopMin() = %q, ok=%v, want %q", item, ok, w)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after draining = %d, want 0", q.Len())
	}
}

// TestPriorityQueueNonDecreasing is the testable property from spec.md §8
// item 10: pop_min returns items in non-decreasing priority order, for a
// randomized sequence of pushes.
func TestPriorityQueueNonDecreasing(t *testing.T) {
	q := NewPriorityQueue[int]()
	r := rand.New(rand.NewSource(42))
	const n = 500
	for i := 0; i < n; i++ {
		q.Push(r.Float64()*1000, i)
	}
	last := -1.0
	for q.Len() > 0 {
		_, pri, ok := q.PopMin()
		if !ok {
			t.Fatal("PopMin() returned ok=false while Len() > 0")
		}
		if pri < last {
			t.Fatalf("priority decreased: %f after %f", pri, last)
		}
		last = pri
	}
}

func TestPriorityQueueDuplicatesTolerated(t *testing.T) {
	q := NewPriorityQueue[string]()
	q.Push(1, "a")
	q.Push(1, "b")
	q.Push(1, "c")
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	seen := map[string]bool{}
	for q.Len() > 0 {
		item, _, _ := q.PopMin()
		seen[item] = true
	}
	for _, want := range []string{"a", "b", "c"} {
		if !seen[want] {
			t.Fatalf("missing %q after draining duplicates", want)
		}
	}
}

func TestPriorityQueueSnapshotAndClear(t *testing.T) {
	q := NewPriorityQueue[int]()
	q.Push(3, 30)
	q.Push(1, 10)
	q.Push(2, 20)

	snap := q.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(snap))
	}
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("Len() after Clear() = %d, want 0", q.Len())
	}
	for _, v := range snap {
		q.Push(float64(v), v)
	}
	if q.Len() != 3 {
		t.Fatalf("Len() after re-push = %d, want 3", q.Len())
	}
}

func TestPriorityQueuePeekDoesNotRemove(t *testing.T) {
	q := NewPriorityQueue[string]()
	q.Push(1, "only")
	item, _, ok := q.Peek()
	if !ok || item != "only" {
		t.Fatalf("Peek() = %q, ok=%v", item, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() after Peek() = %d, want 1", q.Len())
	}
}

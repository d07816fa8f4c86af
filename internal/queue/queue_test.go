package queue

import (
	"sync"
	"testing"
)

type record struct {
	ID   int
	Kind string
}

func ids(items []record) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalInts(a, b []int) bool {
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

func TestQueue_New(t *testing.T) {
	q := New[record]()
	if !q.Empty() {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
	if q.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", q.Dropped())
	}
}

func TestQueue_PushReturnsLength(t *testing.T) {
	q := New[record]()

	if n := q.Push(record{ID: 1}); n != 1 {
		t.Errorf("expected length 1, got %d", n)
	}
	if n := q.Push(record{ID: 2}, record{ID: 3}); n != 3 {
		t.Errorf("expected length 3, got %d", n)
	}
	if q.Empty() {
		t.Error("expected non-empty queue")
	}
}

func TestQueue_DrainKeepsOrder(t *testing.T) {
	q := New[record]()
	q.Push(record{ID: 1}, record{ID: 2}, record{ID: 3})

	got := q.Drain()
	if !equalInts(ids(got), []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", ids(got))
	}
	if !q.Empty() {
		t.Error("expected queue to be empty after Drain")
	}

	if got := q.Drain(); len(got) != 0 {
		t.Errorf("expected nothing from an empty queue, got %v", got)
	}
}

func TestQueue_DrainedSliceIsNotReused(t *testing.T) {
	q := New[record]()
	q.Push(record{ID: 1}, record{ID: 2})
	batch := q.Drain()

	q.Push(record{ID: 9})
	if batch[0].ID != 1 {
		t.Errorf("drained batch was overwritten: %v", ids(batch))
	}
}

func TestQueue_RequeueGoesInFront(t *testing.T) {
	q := New[record]()
	q.Push(record{ID: 1}, record{ID: 2})
	failed := q.Drain()

	q.Push(record{ID: 3})
	q.Requeue(failed)

	if got := ids(q.Drain()); !equalInts(got, []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", got)
	}
}

func TestQueue_RequeueEmpty(t *testing.T) {
	q := New[record]()
	q.Push(record{ID: 1})
	q.Requeue(nil)
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}
}

func TestQueue_BoundedDropsOldest(t *testing.T) {
	q := NewBounded[record](3)
	for i := 1; i <= 5; i++ {
		q.Push(record{ID: i})
	}

	if q.Len() != 3 {
		t.Errorf("expected length 3, got %d", q.Len())
	}
	if q.Dropped() != 2 {
		t.Errorf("expected 2 drops, got %d", q.Dropped())
	}
	if got := ids(q.Drain()); !equalInts(got, []int{3, 4, 5}) {
		t.Errorf("expected [3 4 5], got %v", got)
	}
}

func TestQueue_BoundedRequeueDropsOldestRequeued(t *testing.T) {
	q := NewBounded[record](3)
	q.Push(record{ID: 1}, record{ID: 2})
	failed := q.Drain()
	q.Push(record{ID: 3}, record{ID: 4})

	q.Requeue(failed)

	if got := ids(q.Drain()); !equalInts(got, []int{2, 3, 4}) {
		t.Errorf("expected [2 3 4], got %v", got)
	}
	if q.Dropped() != 1 {
		t.Errorf("expected 1 drop, got %d", q.Dropped())
	}
}

func TestQueue_NegativeLimitIsUnbounded(t *testing.T) {
	q := NewBounded[int](-1)
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	if q.Len() != 100 {
		t.Errorf("expected length 100, got %d", q.Len())
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(base*100 + j)
			}
		}(i)
	}
	wg.Wait()

	if q.Len() != 1000 {
		t.Errorf("expected length 1000, got %d", q.Len())
	}
}

func TestQueue_ConcurrentDrain(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0

	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(j)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				n := len(q.Drain())
				mu.Lock()
				total += n
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total += len(q.Drain())

	if total != 500 {
		t.Errorf("expected 500 items in total, got %d", total)
	}
}

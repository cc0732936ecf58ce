package pipeline

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestQueueDrainsInOrder(t *testing.T) {
	var q Queue[int]
	q.Push(1, 2)
	q.Push(3)
	if q.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", q.Len())
	}
	if diff := cmp.Diff([]int{1, 2, 3}, q.Drain()); diff != "" {
		t.Fatalf("drain (-want +got):\n%s", diff)
	}
	if q.Len() != 0 || q.Drain() != nil {
		t.Fatalf("expected empty queue after drain")
	}
}

func TestQueueConcurrentPush(t *testing.T) {
	var q Queue[int]
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(j)
			}
		}()
	}
	wg.Wait()
	if got := len(q.Drain()); got != 1600 {
		t.Fatalf("expected 1600 items, got %d", got)
	}
}

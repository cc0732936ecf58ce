package pipeline

import "sync"

// Queue is an ordered mailbox between two stages. Producers push from any
// goroutine; the consuming stage drains everything available at once and
// owns the drained slice.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// Push appends items in order.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
}

// Drain removes and returns every queued item.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

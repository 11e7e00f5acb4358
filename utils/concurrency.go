package utils

import (
	"context"
	"sync"
)

// Queue is a FIFO work queue shared by the workers of a Pool. It is filled
// once up front and then drained.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewQueue creates a queue holding items in order.
func NewQueue[T any](items []T) *Queue[T] {
	q := &Queue[T]{items: make([]T, len(items))}
	copy(q.items, items)
	return q
}

// Pop removes and returns the head of the queue. ok is false once empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of items still queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// RunPool starts n workers that pull from q until it is empty or ctx is
// cancelled, then waits for all of them. Each worker receives its 1-based id.
func RunPool[T any](ctx context.Context, n int, q *Queue[T], work func(ctx context.Context, workerID int, item T)) {
	if n <= 0 {
		n = 1
	}
	if l := q.Len(); n > l {
		n = l
	}

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for ctx.Err() == nil {
				item, ok := q.Pop()
				if !ok {
					return
				}
				work(ctx, id, item)
			}
		}(i)
	}
	wg.Wait()
}

// KeySet is a thread-safe set used to track ids already handled in a cycle.
type KeySet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewKeySet creates an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{seen: make(map[string]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *KeySet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Size returns the number of unique keys tracked.
func (s *KeySet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// Reset forgets every key.
func (s *KeySet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
}

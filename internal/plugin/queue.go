package plugin

import (
	"context"
	"sync"
)

// keyedQueue runs operations for the same key one at a time, in arrival
// order. Operations for different keys run concurrently.
type keyedQueue struct {
	mu    sync.Mutex
	tails map[string]*slot
}

type slot struct {
	done chan struct{}
}

func newKeyedQueue() *keyedQueue {
	return &keyedQueue{tails: make(map[string]*slot)}
}

// Do waits for every earlier operation on key, then runs fn. If ctx ends
// while waiting, fn is skipped and the queue order is preserved.
func (q *keyedQueue) Do(ctx context.Context, key string, fn func() error) error {
	q.mu.Lock()
	prev := q.tails[key]
	s := &slot{done: make(chan struct{})}
	q.tails[key] = s
	q.mu.Unlock()

	release := func() {
		q.mu.Lock()
		if q.tails[key] == s {
			delete(q.tails, key)
		}
		q.mu.Unlock()
		close(s.done)
	}

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			go func() {
				<-prev.done
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return fn()
}

// Busy reports whether an operation is queued or running for key.
func (q *keyedQueue) Busy(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.tails[key]
	return ok
}

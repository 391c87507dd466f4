package space

import (
	"context"
	"sync"

	"yqhp/task-space/pkg/task"
)

// queue is an unbounded FIFO whose pop blocks until an item arrives, the
// queue is closed, or the context ends.
type queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

func newQueue[T any]() *queue[T] {
	q := &queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue[T]) push(items ...T) error {
	if len(items) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return task.ErrClosed
	}
	q.items = append(q.items, items...)
	if len(items) == 1 {
		q.cond.Signal()
	} else {
		q.cond.Broadcast()
	}
	return nil
}

func (q *queue[T]) pop(ctx context.Context) (T, error) {
	var zero T

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if len(q.items) == 0 {
		return zero, task.ErrClosed
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, nil
}

func (q *queue[T]) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drain removes every queued item and returns how many there were.
func (q *queue[T]) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// close wakes every waiter. Items already queued can still be popped.
func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

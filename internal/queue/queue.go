// ABOUTME: Closeable FIFO turn queue with blocking consumers
// ABOUTME: Push wakes at most one waiter; Close wakes all of them

package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push after the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO of items with blocking consumption. It is safe for
// concurrent use; concurrent Next callers each receive a distinct item.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	waiters []chan waiterResult[T]
	closed  bool
}

type waiterResult[T any] struct {
	item T
	ok   bool
}

// New creates an empty open queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends an item or hands it directly to the oldest waiting consumer.
// Returns ErrClosed once Close has been called.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	// Satisfy exactly one waiter if any are parked; otherwise queue the item.
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		w <- waiterResult[T]{item: item, ok: true}
		return nil
	}

	q.items = append(q.items, item)
	return nil
}

// Next returns the oldest queued item. When the queue is empty it blocks
// until an item is pushed, the queue is closed (ok=false), or ctx is done.
func (q *Queue[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return item, true, nil
	}
	if q.closed {
		q.mu.Unlock()
		return zero, false, nil
	}

	// Park until a push or close arrives. Buffered so a push never blocks
	// on a consumer that gave up via ctx.
	w := make(chan waiterResult[T], 1)
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case res := <-w:
		return res.item, res.ok, nil
	case <-ctx.Done():
		q.removeWaiter(w)
		// A push may have raced the cancellation; don't lose its item.
		select {
		case res := <-w:
			return res.item, res.ok, nil
		default:
		}
		return zero, false, ctx.Err()
	}
}

// Len reports the number of queued (not yet consumed) items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes every parked consumer with ok=false.
// Safe to call multiple times.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	for _, w := range q.waiters {
		w <- waiterResult[T]{ok: false}
	}
	q.waiters = nil
}

// removeWaiter unregisters a waiter that abandoned its Next call.
func (q *Queue[T]) removeWaiter(w chan waiterResult[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, cand := range q.waiters {
		if cand == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

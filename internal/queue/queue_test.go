// ABOUTME: Tests for the turn queue FIFO, blocking and close semantics
// ABOUTME: Covers ordering, waiter wakeup, close-while-waiting and ctx cancel

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := New[string]()

	require.NoError(t, q.Push("a"))
	require.NoError(t, q.Push("b"))
	require.NoError(t, q.Push("c"))

	for _, want := range []string{"a", "b", "c"} {
		item, ok, err := q.Next(t.Context())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, item)
	}
}

func TestQueue_PushWakesBlockedConsumer(t *testing.T) {
	q := New[int]()

	got := make(chan int, 1)
	go func() {
		item, ok, err := q.Next(context.Background())
		if err == nil && ok {
			got <- item
		}
	}()

	// Give the consumer time to park before pushing.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(42))

	select {
	case item := <-got:
		assert.Equal(t, 42, item)
	case <-time.After(time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestQueue_ConcurrentConsumersGetDistinctItems(t *testing.T) {
	q := New[int]()

	const n = 8
	var wg sync.WaitGroup
	results := make(chan int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, ok, err := q.Next(context.Background())
			if err == nil && ok {
				results <- item
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < n; i++ {
		require.NoError(t, q.Push(i))
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for item := range results {
		assert.False(t, seen[item], "item %d delivered twice", item)
		seen[item] = true
	}
	assert.Len(t, seen, n)
}

func TestQueue_CloseWithEmptyQueueReturnsDone(t *testing.T) {
	q := New[string]()
	q.Close()

	_, ok, err := q.Next(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := New[string]()

	done := make(chan bool, 1)
	go func() {
		_, ok, _ := q.Next(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by Close")
	}
}

func TestQueue_PushAfterCloseFails(t *testing.T) {
	q := New[string]()
	q.Close()

	err := q.Push("too late")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_QueuedItemsDrainBeforeDone(t *testing.T) {
	q := New[string]()
	require.NoError(t, q.Push("pending"))
	q.Close()

	item, ok, err := q.Next(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pending", item)

	_, ok, err = q.Next(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_NextHonorsContextCancellation(t *testing.T) {
	q := New[string]()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	q := New[string]()
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Push("x"), ErrClosed)
}

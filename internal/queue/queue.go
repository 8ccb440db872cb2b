package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rickgao/barsync/internal/model"
)

const initialRing = 16

// Queue is a thread-safe FIFO with timed reads.
type Queue[T any] struct {
	mu     sync.Mutex
	wake   chan struct{} // closed and replaced on every state change
	buf    []T
	head   int
	count  int
	limit  int // 0 = unbounded
	closed bool

	// Stats
	enqueued  int64
	dequeued  int64
	resizes   int
	maxLength int
}

// New creates an unbounded queue.
func New[T any]() *Queue[T] {
	return NewBounded[T](0)
}

// NewBounded creates a queue holding at most limit items. A limit of zero
// or less means unbounded.
func NewBounded[T any](limit int) *Queue[T] {
	if limit < 0 {
		limit = 0
	}
	size := initialRing
	if limit > 0 && limit < size {
		size = limit
	}
	return &Queue[T]{
		wake:  make(chan struct{}),
		buf:   make([]T, size),
		limit: limit,
	}
}

// Enqueue appends item to the tail. On a bounded queue it blocks until
// there is room or ctx is done. Returns model.ErrClosed after Close.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	q.mu.Lock()
	for q.limit > 0 && q.count >= q.limit && !q.closed {
		wake := q.wake
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
		q.mu.Lock()
	}
	defer q.mu.Unlock()

	if q.closed {
		return model.ErrClosed
	}

	q.maybeGrow()
	q.buf[(q.head+q.count)%len(q.buf)] = item
	q.count++
	q.enqueued++
	if q.count > q.maxLength {
		q.maxLength = q.count
	}
	q.broadcast()
	return nil
}

// Dequeue pops the head, waiting up to timeout for an item.
// Returns model.ErrTimeout when nothing arrived in time and model.ErrClosed
// once the queue is closed and drained.
func (q *Queue[T]) Dequeue(timeout time.Duration) (T, error) {
	var zero T
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	q.mu.Lock()
	for q.count == 0 {
		if q.closed {
			q.mu.Unlock()
			return zero, model.ErrClosed
		}
		wake := q.wake
		q.mu.Unlock()
		select {
		case <-deadline.C:
			return zero, model.ErrTimeout
		case <-wake:
		}
		q.mu.Lock()
	}
	item := q.popLocked()
	q.mu.Unlock()
	return item, nil
}

// TryDequeue pops the head without waiting.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Drain removes up to max items (all when max <= 0) without waiting.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = q.popLocked()
	}
	return out
}

// Close rejects further Enqueue calls. Items already queued can still be read.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:       q.count,
		Capacity:  len(q.buf),
		Limit:     q.limit,
		Enqueued:  q.enqueued,
		Dequeued:  q.dequeued,
		Resizes:   q.resizes,
		MaxLength: q.maxLength,
	}
}

// Stats contains queue statistics.
type Stats struct {
	Len       int
	Capacity  int
	Limit     int
	Enqueued  int64
	Dequeued  int64
	Resizes   int
	MaxLength int
}

// popLocked removes the head item. Must be called with lock held and count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.dequeued++
	q.broadcast()
	return item
}

// maybeGrow doubles the ring once the next item would put it at 70%.
// Must be called with lock held.
func (q *Queue[T]) maybeGrow() {
	threshold := (len(q.buf) * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 < threshold && q.count < len(q.buf) {
		return
	}
	if q.limit > 0 && len(q.buf) >= q.limit {
		return
	}

	newBuf := make([]T, len(q.buf)*2)
	for i := 0; i < q.count; i++ {
		newBuf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = newBuf
	q.head = 0
	q.resizes++
}

// broadcast wakes every waiter. Must be called with lock held.
func (q *Queue[T]) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}

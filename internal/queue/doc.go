// Package queue implements the FIFO used between producers and workers.
//
// Queue[T] is safe for any number of concurrent producers and consumers.
// It is unbounded by default; it grows its ring by doubling once 70% full.
// A bounded queue (capacity > 0) blocks Enqueue until space frees up.
//
// Dequeue waits at most the given timeout and then fails with
// model.ErrTimeout so callers can re-check their own shutdown state.
package queue

package stream

import (
	"context"
	"io"
	"sync"

	"github.com/rickgao/barsync/internal/queue"
)

// Sink receives events in stream order.
type Sink interface {
	Put(ctx context.Context, e Event) error
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Put(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// QueueSink pushes events onto a queue for an in-process consumer.
type QueueSink struct {
	Queue *queue.Queue[Event]
}

// NewQueueSink creates a sink over an unbounded queue.
func NewQueueSink() *QueueSink {
	return &QueueSink{Queue: queue.New[Event]()}
}

func (s *QueueSink) Put(ctx context.Context, e Event) error {
	return s.Queue.Enqueue(ctx, e)
}

// WriterSink writes one JSON object per line.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Put(ctx context.Context, e Event) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}

// MultiSink fans each event out to every sink, stopping at the first error.
type MultiSink []Sink

func (m MultiSink) Put(ctx context.Context, e Event) error {
	for _, s := range m {
		if err := s.Put(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

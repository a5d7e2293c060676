// Package queue is the one-directional bounded channel that carries
// immutable messages from the pipeline to its single consumer.
//
// Enqueue never blocks: a full queue evicts its oldest message to make room,
// so the consumer always sees the most recent frame and the final messages.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/presence/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 8
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds a message, evicting the oldest one when full.
	// Returns false if the queue is closed or ctx is done.
	Enqueue(ctx context.Context, msg T) bool

	// Dequeue returns the receive side. It is closed when the queue is closed.
	Dequeue() <-chan T

	// Len returns the current number of queued messages.
	Len() int

	// Dropped returns how many messages were evicted or refused.
	Dropped() uint64

	// Close stops accepting messages and closes the dequeue channel.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	msgs     chan T
	capacity int
	dropped  atomic.Uint64

	mu     sync.RWMutex
	closed bool

	// send serializes producers so an eviction always frees the slot it is for.
	send sync.Mutex
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	s := settings{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&s)
	}

	q := &InMemoryQueue[T]{
		msgs:     make(chan T, s.capacity),
		capacity: s.capacity,
	}
	metrics.UpdateOutputQueueSize(0)
	return q
}

// Enqueue adds a message without blocking.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, msg T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.drop()
		return false
	}

	select {
	case <-ctx.Done():
		q.drop()
		return false
	default:
	}

	q.send.Lock()
	defer q.send.Unlock()
	for {
		select {
		case q.msgs <- msg:
			metrics.UpdateOutputQueueSize(len(q.msgs))
			return true
		default:
		}
		select {
		case <-q.msgs:
			q.drop()
		default:
		}
	}
}

func (q *InMemoryQueue[T]) drop() {
	q.dropped.Add(1)
	metrics.RecordOutputDropped()
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue[T]) Dequeue() <-chan T {
	return q.msgs
}

// Len returns the current number of queued messages.
func (q *InMemoryQueue[T]) Len() int {
	return len(q.msgs)
}

// Capacity returns the buffer size.
func (q *InMemoryQueue[T]) Capacity() int {
	return q.capacity
}

// Dropped returns how many messages were evicted or refused.
func (q *InMemoryQueue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.msgs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Package queue buffers face probes between the frame loop and the
// recognition workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/pkg/metrics"
)

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue returns ErrFull or ErrClosed instead of blocking.
	Enqueue(ctx context.Context, p model.Probe) error
	// Dequeue returns a channel that is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan model.Probe
	Len(ctx context.Context) int
	Cap() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	probes   chan model.Probe
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.probes = make(chan model.Probe, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a probe to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, p model.Probe) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return err
	}

	select {
	case q.probes <- p:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.probes))
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		return ErrFull
	}
}

// Dequeue returns the channel workers read from.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.Probe {
	return q.probes
}

// Len returns the number of queued probes.
func (q *InMemoryQueue) Len(_ context.Context) int {
	n := len(q.probes)
	metrics.UpdateQueueSize(n)
	return n
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops accepting probes. Already queued probes remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.probes)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

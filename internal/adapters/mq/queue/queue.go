// Package queue holds the bounded queue of dirty NFT ids awaiting score
// recomputation.
package queue

import (
	"context"
	"sync"

	"github.com/proofofaesthetic/poa-engine/pkg/metrics"
)

const defaultCapacity = 100_000

// Queue provides non-blocking enqueue and channel-based dequeue of NFT ids.
// Recomputation is idempotent over the latest persisted stats, so the queue
// coalesces ids that are already pending.
type Queue interface {
	// Enqueue marks an NFT dirty. Returns false if the queue is full or
	// closed; true if enqueued or already pending.
	Enqueue(ctx context.Context, nftID string) bool

	// Dequeue returns a channel delivering dirty NFT ids. Closed when the
	// queue closes.
	Dequeue(ctx context.Context) <-chan string

	// Len returns the number of pending ids.
	Len(ctx context.Context) int

	// Close stops the queue; no further enqueues are accepted.
	Close() error
}

// InMemoryQueue implements Queue over a buffered channel plus a pending set.
type InMemoryQueue struct {
	ids      chan string
	capacity int

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds the number of pending ids.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ids = make(chan string, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

func (q *InMemoryQueue) Enqueue(_ context.Context, nftID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordQueueDropped()
		return false
	}
	if _, ok := q.pending[nftID]; ok {
		// Already dirty; the pending recompute will pick up the new state.
		return true
	}

	select {
	case q.ids <- nftID:
		q.pending[nftID] = struct{}{}
		q.updateGauges()
		return true
	default:
		metrics.RecordQueueDropped()
		return false
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for id := range q.ids {
			q.mu.Lock()
			delete(q.pending, id)
			q.updateGauges()
			q.mu.Unlock()

			select {
			case out <- id:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.ids)
	q.closed = true
	return nil
}

// updateGauges must be called with q.mu held.
func (q *InMemoryQueue) updateGauges() {
	n := len(q.pending)
	metrics.UpdateQueueSize(n)
	metrics.UpdateQueueUtilization(float64(n) / float64(q.capacity))
}

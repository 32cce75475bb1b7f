// Package notify emits "score published" signals for downstream consumers
// (leaderboard caches, UI invalidation). Delivery is fire-and-forget: the
// scoring pipeline never blocks on a slow subscriber.
package notify

import (
	"context"
	"sync"

	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
	"github.com/proofofaesthetic/poa-engine/pkg/logger"
)

// Subscriber receives publish notifications. Implementations must not block.
type Subscriber func(rec model.ScoreRecord)

// Broadcaster fans publish notifications out to subscribers over a bounded
// buffer per subscriber; a full buffer drops the notification rather than
// stalling the worker.
type Broadcaster struct {
	mu         sync.RWMutex
	channels   []chan model.ScoreRecord
	bufferSize int
	closed     bool

	logger logger.Logger
}

// Option applies a configuration option to the Broadcaster.
type Option func(*Broadcaster)

// WithBufferSize sets the per-subscriber buffer.
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBroadcaster creates a broadcaster with configuration options.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		bufferSize: 1024,
		logger:     logger.Get().Named("notify"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber and starts its delivery goroutine.
func (b *Broadcaster) Subscribe(ctx context.Context, fn Subscriber) {
	ch := make(chan model.ScoreRecord, b.bufferSize)

	b.mu.Lock()
	b.channels = append(b.channels, ch)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-ch:
				if !ok {
					return
				}
				fn(rec)
			}
		}
	}()
}

// ScorePublished implements the worker's Notifier contract.
func (b *Broadcaster) ScorePublished(ctx context.Context, rec model.ScoreRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.channels {
		select {
		case ch <- rec:
		default:
			// Subscriber is behind; dropping beats blocking the pipeline.
			b.logger.Debug(ctx, "dropped publish notification",
				logger.String("nftID", rec.NFTID),
			)
		}
	}
}

// Close stops delivery to all subscribers.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.channels {
		close(ch)
	}
	b.channels = nil
}

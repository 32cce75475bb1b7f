// Package dedupe tracks vote-event ids so at-least-once delivery from
// upstream is safe to re-invoke.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Status reports what Begin found for an event id.
type Status int

const (
	// StatusNew means the caller now owns processing for this id and must
	// finish with Commit or Abort.
	StatusNew Status = iota
	// StatusInFlight means another delivery of this id is still being
	// processed; the outcome is not known yet.
	StatusInFlight
	// StatusDone means a delivery of this id already committed.
	StatusDone
)

// Deduper reserves event ids while they are processed and remembers the
// committed ones, keeping vote processing idempotent. An id is only a
// duplicate once its first delivery actually committed; a delivery that
// fails releases the id for resubmission.
type Deduper interface {
	// Begin atomically reserves id for processing. StatusNew hands
	// ownership to the caller; any other status means the caller must not
	// process the event.
	Begin(ctx context.Context, id string) Status

	// Commit marks a reserved id as permanently processed.
	Commit(ctx context.Context, id string)

	// Abort releases a reservation after a failed apply, so a
	// resubmission can retry the event.
	Abort(ctx context.Context, id string)

	// Size returns the number of committed ids currently remembered.
	Size() int64
}

const defaultMaxSize = 500_000

type entryState uint8

const (
	stateInFlight entryState = iota + 1
	stateDone
)

// inMemoryDeduper keeps committed ids in a map with a FIFO eviction ring.
// In-flight reservations are never evicted; they are bounded by the number
// of concurrent submissions. maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]entryState
	ring    []string
	next    int
	maxSize int
	size    atomic.Int64
}

// Option applies a configuration option to the deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize bounds the number of committed ids kept; the oldest are
// evicted first.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// NewInMemoryDeduper creates a deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]entryState)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) Begin(_ context.Context, id string) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.seen[id] {
	case stateDone:
		return StatusDone
	case stateInFlight:
		return StatusInFlight
	}
	d.seen[id] = stateInFlight
	return StatusNew
}

func (d *inMemoryDeduper) Commit(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen[id] != stateInFlight {
		return
	}

	if d.maxSize > 0 {
		if evicted := d.ring[d.next]; evicted != "" {
			if d.seen[evicted] == stateDone {
				delete(d.seen, evicted)
				d.size.Add(-1)
			}
		}
		d.ring[d.next] = id
		d.next = (d.next + 1) % d.maxSize
	}

	d.seen[id] = stateDone
	d.size.Add(1)
}

func (d *inMemoryDeduper) Abort(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen[id] == stateInFlight {
		delete(d.seen, id)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

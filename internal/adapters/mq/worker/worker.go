// Package worker runs the recompute pipeline: for every dirty NFT it loads
// the latest statistics, derives a candidate score, and lets the publish
// gate decide whether the public score changes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/proofofaesthetic/poa-engine/internal/domain/gate"
	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
	"github.com/proofofaesthetic/poa-engine/internal/domain/score"
	"github.com/proofofaesthetic/poa-engine/pkg/logger"
	"github.com/proofofaesthetic/poa-engine/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4
	workerShutdownTimeout   = 5 * time.Second
)

// StatsReader loads the latest committed NFT statistics.
type StatsReader interface {
	GetNFT(ctx context.Context, id string) (model.NFTStats, error)
}

// ProgressReader reports an NFT's data counts from the vote log.
type ProgressReader interface {
	Progress(ctx context.Context, nftID string) (model.Progress, error)
}

// Engine derives a candidate score record from statistics.
type Engine interface {
	Compute(stats model.NFTStats, now time.Time) (model.ScoreRecord, error)
}

// Decider is the publish gate.
type Decider interface {
	Decide(candidate model.ScoreRecord, prev *model.ScoreRecord, progress model.Progress, now time.Time) gate.Decision
}

// Publisher commits approved records; decide runs under the store lock.
type Publisher interface {
	Publish(ctx context.Context, rec model.ScoreRecord, decide func(prev *model.ScoreRecord) bool) (bool, error)
}

// Notifier receives fire-and-forget publish notifications.
type Notifier interface {
	ScorePublished(ctx context.Context, rec model.ScoreRecord)
}

// Requeuer puts an NFT back on the dirty queue.
type Requeuer interface {
	Enqueue(ctx context.Context, nftID string) bool
}

// Queue delivers dirty NFT ids to workers.
type Queue interface {
	Dequeue(ctx context.Context) <-chan string
}

// Worker consumes dirty NFT ids until its context is canceled.
type Worker struct {
	queue    Queue
	stats    StatsReader
	progress ProgressReader
	engine   Engine
	decider  Decider
	pub      Publisher
	notifier Notifier
	requeue  Requeuer

	// minimums is a Progress template carrying only the configured
	// thresholds; per-NFT counts are merged in per job.
	minimums model.Progress

	// requeued guards against re-enqueue loops on deterministic
	// computation errors: each NFT gets one retry until a success.
	requeued *sync.Map

	name     string
	now      func() time.Time
	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}
	logger   logger.Logger
}

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name for logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithMinimums sets the gate threshold template.
func WithMinimums(minimums model.Progress) Option {
	return func(w *Worker) {
		w.minimums = minimums
	}
}

// WithNotifier sets the publish notifier.
func WithNotifier(n Notifier) Option {
	return func(w *Worker) {
		w.notifier = n
	}
}

// WithRequeuer sets where computation failures go for one retry.
func WithRequeuer(r Requeuer) Option {
	return func(w *Worker) {
		w.requeue = r
	}
}

// New creates a worker with configuration options.
func New(queue Queue, stats StatsReader, progress ProgressReader, engine Engine, decider Decider, pub Publisher, opts ...Option) *Worker {
	w := &Worker{
		queue:    queue,
		stats:    stats,
		progress: progress,
		engine:   engine,
		decider:  decider,
		pub:      pub,
		requeued: &sync.Map{},
		name:     "recompute",
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("recompute"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "recompute" {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop until ctx is canceled or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ids := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case nftID, ok := <-ids:
			if !ok {
				return
			}
			if err := w.recompute(ctx, nftID); err != nil {
				w.logger.Error(ctx, "recompute failed",
					logger.String("nftID", nftID),
					logger.Error(err),
				)
			}
		}
	}
}

// stop signals the worker loop once; Shutdown and Pool.Stop may both
// reach the same worker.
func (w *Worker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// Shutdown stops the worker, waiting for the in-flight job. Safe to call
// more than once.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown timed out: %w", ctx.Err())
	}
}

func (w *Worker) recompute(ctx context.Context, nftID string) error {
	start := w.now()
	defer func() {
		metrics.RecordRecomputeLatency(float64(time.Since(start).Milliseconds()))
	}()

	stats, err := w.stats.GetNFT(ctx, nftID)
	if err != nil {
		return fmt.Errorf("load stats for %s: %w", nftID, err)
	}
	if !stats.Active {
		return nil
	}

	counts, err := w.progress.Progress(ctx, nftID)
	if err != nil {
		return fmt.Errorf("load progress for %s: %w", nftID, err)
	}
	progress := w.mergeMinimums(counts)

	now := w.now()
	candidate, err := w.engine.Compute(stats, now)
	if err != nil {
		if errors.Is(err, score.ErrComputation) {
			// Leave the published score untouched and retry once; the
			// anomaly is logged by the caller.
			metrics.RecordComputationError()
			if _, retried := w.requeued.LoadOrStore(nftID, true); !retried && w.requeue != nil {
				w.requeue.Enqueue(ctx, nftID)
			}
		}
		return err
	}
	w.requeued.Delete(nftID)

	var decision gate.Decision
	published, err := w.pub.Publish(ctx, candidate, func(prev *model.ScoreRecord) bool {
		decision = w.decider.Decide(candidate, prev, progress, now)
		return decision.Outcome == gate.Publish
	})
	if err != nil {
		return fmt.Errorf("publish for %s: %w", nftID, err)
	}

	switch {
	case published:
		metrics.RecordScorePublished()
		if w.notifier != nil {
			w.notifier.ScorePublished(ctx, candidate)
		}
		w.logger.Debug(ctx, "score published",
			logger.String("nftID", nftID),
			logger.Float64("poa", candidate.POA),
			logger.Float64("confidence", candidate.Confidence),
			logger.Bool("provisional", candidate.Provisional),
		)
	case decision.Outcome == gate.AwaitData:
		metrics.RecordAwaitingData()
	case decision.Outcome == gate.Hold:
		metrics.RecordPublishHeld(string(decision.Reason))
	}
	return nil
}

func (w *Worker) mergeMinimums(counts model.Progress) model.Progress {
	counts.MinHeadToHead = w.minimums.MinHeadToHead
	counts.MinUniqueOpponents = w.minimums.MinUniqueOpponents
	counts.MinSliderRatings = w.minimums.MinSliderRatings
	counts.MinUniqueSliderUsers = w.minimums.MinUniqueSliderUsers
	return counts
}

// Pool manages a fixed set of recompute workers.
type Pool struct {
	workers []*Worker
	logger  logger.Logger
}

// NewPool creates workerCount workers sharing one requeue guard.
func NewPool(workerCount int, queue Queue, stats StatsReader, progress ProgressReader, engine Engine, decider Decider, pub Publisher, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	shared := &sync.Map{}
	pool := &Pool{
		workers: make([]*Worker, workerCount),
		logger:  logger.Get().Named("recompute-pool"),
	}
	for i := 0; i < workerCount; i++ {
		w := New(queue, stats, progress, engine, decider, pub,
			append([]Option{WithName("recompute-" + strconv.Itoa(i))}, opts...)...)
		w.requeued = shared
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop shuts all workers down with a bounded wait. Safe to call more
// than once, and alongside Shutdown on individual workers.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.stop()
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

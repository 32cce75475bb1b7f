// Package app wires the scoring engine together and implements the vote
// processor: the transactional unit that applies one vote event to the NFT
// and user statistics and triggers score recomputation.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	recomputequeue "github.com/proofofaesthetic/poa-engine/internal/adapters/mq/queue"
	"github.com/proofofaesthetic/poa-engine/internal/adapters/mq/worker"
	"github.com/proofofaesthetic/poa-engine/internal/adapters/notify"
	"github.com/proofofaesthetic/poa-engine/internal/adapters/repository"
	"github.com/proofofaesthetic/poa-engine/internal/config"
	"github.com/proofofaesthetic/poa-engine/internal/domain/dedupe"
	"github.com/proofofaesthetic/poa-engine/internal/domain/gate"
	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
	"github.com/proofofaesthetic/poa-engine/internal/domain/rating"
	"github.com/proofofaesthetic/poa-engine/internal/domain/score"
	"github.com/proofofaesthetic/poa-engine/pkg/logger"
	"github.com/proofofaesthetic/poa-engine/pkg/metrics"
)

// sliderAgreementBand is how close (on the 0-100 scale) a normalized slider
// rating must land to the NFT's current mean to count as consensus agreement.
const sliderAgreementBand = 15.0

// Service owns the vote processor, the recompute pipeline, and the read paths.
type Service struct {
	mu sync.RWMutex

	cfg config.Config

	stats       repository.StatsStore
	votes       repository.VoteLog
	scores      repository.ScoreStore
	deduper     dedupe.Deduper
	queue       *recomputequeue.InMemoryQueue
	engine      *score.Engine
	gate        *gate.Gate
	pool        *worker.Pool
	broadcaster *notify.Broadcaster

	elo rating.Elo
	now func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStatsStore injects a stats store (tests swap in preloaded ones).
func WithStatsStore(st repository.StatsStore) Option {
	return func(s *Service) {
		if st != nil {
			s.stats = st
		}
	}
}

// WithVoteLog injects a vote log.
func WithVoteLog(vl repository.VoteLog) Option {
	return func(s *Service) {
		if vl != nil {
			s.votes = vl
		}
	}
}

// New constructs a Service from a validated configuration.
func New(cfg config.Config, opts ...Option) *Service {
	s := &Service{
		cfg: cfg,
		now: time.Now,
		elo: rating.Elo{
			KFactor:             cfg.EloKFactor,
			UncertaintyRef:      cfg.InitialEloUncertainty,
			UncertaintyFloor:    cfg.EloUncertaintyFloor,
			UncertaintyDecay:    cfg.EloUncertaintyDecay,
			SuperVoteMultiplier: cfg.SuperVoteMultiplier,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the component graph and launches the recompute workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("app")
	}

	if s.stats == nil {
		s.stats = repository.NewMemoryStatsStore()
	}
	if s.votes == nil {
		s.votes = repository.NewMemoryVoteLog()
	}
	s.scores = repository.NewTreapScoreStore()
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = recomputequeue.NewInMemoryQueue(recomputequeue.WithCapacity(s.cfg.QueueSize))
	s.broadcaster = notify.NewBroadcaster()

	s.engine = score.NewEngine(
		score.WithWeights(s.cfg.EloWeight, s.cfg.SliderWeight, s.cfg.FireWeight),
		score.WithEloBounds(s.cfg.InitialEloMean, s.cfg.InitialEloUncertainty, s.cfg.EloUncertaintyFloor),
		score.WithProvisionalConfidence(s.cfg.ProvisionalConfidence),
	)
	s.gate = gate.New(
		gate.WithMinPOAChange(s.cfg.MinPOAChange),
		gate.WithGracePeriod(time.Duration(s.cfg.GracePeriodSeconds)*time.Second),
		gate.WithConfidenceTiers(s.cfg.ConfidenceTiers),
	)

	s.pool = worker.NewPool(
		s.cfg.WorkerCount,
		s.queue, s.stats, s.votes, s.engine, s.gate, s.scores,
		worker.WithMinimums(s.minimums()),
		worker.WithNotifier(s.broadcaster),
		worker.WithRequeuer(s.queue),
		worker.WithClock(s.now),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "scoring engine started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.QueueSize),
	)
	return nil
}

// Stop shuts the pipeline down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	_ = s.queue.Close()
	s.pool.Stop()
	s.broadcaster.Close()
	s.started = false
	s.logger.Info(context.Background(), "scoring engine stopped")
}

// Subscribe registers a fire-and-forget listener for published scores.
// It has no effect before Start.
func (s *Service) Subscribe(ctx context.Context, fn notify.Subscriber) {
	if !s.isStarted() {
		return
	}
	s.broadcaster.Subscribe(ctx, fn)
}

// RegisterNFT creates the rating record for a new NFT.
func (s *Service) RegisterNFT(ctx context.Context, id string) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	stats := model.NewNFTStats(id, s.cfg.InitialEloMean, s.cfg.InitialEloUncertainty, s.now())
	if err := s.stats.RegisterNFT(ctx, stats); err != nil {
		return err
	}
	metrics.UpdateNFTsTracked(s.stats.NFTCount(ctx))
	return nil
}

// DeactivateNFT marks an NFT inactive; its record is kept.
func (s *Service) DeactivateNFT(ctx context.Context, id string) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	return s.stats.DeactivateNFT(ctx, id)
}

// SubmitVote applies one vote event. It either fully succeeds (statistics
// updated, event durable, recompute enqueued) or fully fails with nothing
// applied. Resubmitting the same event id is safe.
func (s *Service) SubmitVote(ctx context.Context, e model.VoteEvent) (duplicate bool, err error) {
	start := s.now()
	defer func() {
		metrics.RecordVoteLatency(float64(time.Since(start).Milliseconds()))
	}()

	if !s.isStarted() {
		return false, ErrNotStarted
	}
	if err := e.Validate(); err != nil {
		metrics.RecordVoteRejected("invalid_shape")
		return false, err
	}
	if e.TS.IsZero() {
		e.TS = s.now()
	}

	switch s.deduper.Begin(ctx, e.EventID) {
	case dedupe.StatusDone:
		metrics.RecordVoteDuplicate()
		return true, nil
	case dedupe.StatusInFlight:
		// Another delivery of this event is still being applied and may
		// yet fail; only a committed event gets a duplicate ack.
		metrics.RecordVoteRejected("contention")
		return false, fmt.Errorf("%w: event %s is in flight", ErrConflictRetry, e.EventID)
	}

	if err := s.processVote(ctx, e); err != nil {
		// Release the reservation so a resubmission can retry.
		s.deduper.Abort(ctx, e.EventID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			metrics.RecordVoteRejected("not_found")
		case errors.Is(err, ErrConflictRetry):
			metrics.RecordVoteRejected("contention")
		default:
			metrics.RecordVoteRejected("internal")
		}
		return false, err
	}

	if err := s.votes.Append(ctx, e); err != nil {
		// The stats writes committed but the event is not durable; release
		// the id so a resubmission is not blocked forever, and let replay
		// repair the aggregates from the log.
		s.deduper.Abort(ctx, e.EventID)
		return false, fmt.Errorf("append vote event: %w", err)
	}
	s.deduper.Commit(ctx, e.EventID)

	metrics.RecordVoteProcessed(string(e.Kind()))
	s.markDirty(ctx, e.NFTA)
	if e.Kind() == model.KindHeadToHead {
		s.markDirty(ctx, e.NFTB)
	}
	return false, nil
}

// processVote runs the bounded read-modify-write loop around one event.
func (s *Service) processVote(ctx context.Context, e model.VoteEvent) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.ConflictRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordConflictRetry()
			if err := s.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		switch e.Kind() {
		case model.KindHeadToHead:
			lastErr = s.applyHeadToHead(ctx, e)
		case model.KindSlider:
			lastErr = s.applySlider(ctx, e)
		}

		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, repository.ErrVersionConflict) {
			return lastErr
		}
		metrics.RecordVersionConflict()
	}
	return fmt.Errorf("%w: %w", ErrConflictRetry, lastErr)
}

// applyHeadToHead updates both NFTs symmetrically and the voter's
// reliability, in one optimistic transaction.
func (s *Service) applyHeadToHead(ctx context.Context, e model.VoteEvent) error {
	a, err := s.stats.GetNFT(ctx, e.NFTA)
	if err != nil {
		return err
	}
	b, err := s.stats.GetNFT(ctx, e.NFTB)
	if err != nil {
		return err
	}
	voter, err := s.stats.EnsureUser(ctx, e.VoterID)
	if err != nil {
		return err
	}

	outcomeA := 0.5
	switch e.WinnerID {
	case a.ID:
		outcomeA = 1.0
	case b.ID:
		outcomeA = 0.0
	}

	// The Elo-implied favorite before this vote, for reliability scoring.
	// Equal means imply no favorite; the reliability update is skipped.
	var favored string
	switch {
	case a.EloMean > b.EloMean:
		favored = a.ID
	case b.EloMean > a.EloMean:
		favored = b.ID
	}

	verA, verB := a.Version, b.Version

	// Both updates read the pre-vote means; the winner moves up exactly as
	// the loser moves down relative to the same expectation.
	preA, preB := a.EloMean, b.EloMean
	a.EloMean, a.EloUncertainty = s.elo.Update(preA, a.EloUncertainty, preB, outcomeA, e.Fire)
	b.EloMean, b.EloUncertainty = s.elo.Update(preB, b.EloUncertainty, preA, 1.0-outcomeA, e.Fire)

	return s.finishHeadToHead(ctx, e, a, b, voter, outcomeA, favored, verA, verB)
}

func (s *Service) finishHeadToHead(ctx context.Context, e model.VoteEvent, a, b model.NFTStats, voter model.UserStats, outcomeA float64, favored string, verA, verB int64) error {
	a.HeadToHeadVotes++
	a.TotalVotes++
	b.HeadToHeadVotes++
	b.TotalVotes++
	if outcomeA == 1.0 {
		a.Wins++
		b.Losses++
	} else if outcomeA == 0.0 {
		a.Losses++
		b.Wins++
	}
	if e.Fire {
		if e.WinnerID == a.ID {
			a.FireCount++
		} else {
			b.FireCount++
		}
	}

	if favored == "" {
		return s.stats.PutNFTPair(ctx, a, b, verA, verB)
	}

	agreed := e.WinnerID == favored
	voter.Reliability = rating.UpdateReliability(
		voter.Reliability, agreed, 1.0,
		s.cfg.ReliabilityStep, s.cfg.ReliabilityFloor, s.cfg.ReliabilityCeiling,
	)
	voter.ReliabilityCount++

	// One commit for both NFTs and the voter: a conflict on any record
	// retries the whole apply from fresh reads, never half of it.
	return s.stats.PutNFTPairWithUser(ctx, a, b, verA, verB, voter, voter.Version)
}

// applySlider folds one slider rating into the NFT's reliability-weighted
// mean and the voter's personal calibration.
func (s *Service) applySlider(ctx context.Context, e model.VoteEvent) error {
	nft, err := s.stats.GetNFT(ctx, e.NFTA)
	if err != nil {
		return err
	}
	voter, err := s.stats.EnsureUser(ctx, e.VoterID)
	if err != nil {
		return err
	}

	raw := *e.Slider
	// Normalize against the voter's calibration before folding the new
	// observation in, so the rating is judged by the habits the voter had
	// when casting it.
	normalized := rating.NormalizeSlider(raw, voter.SliderMean, voter.SliderStd(), voter.SliderCount)

	// Reliability agreement for sliders: did this rating land near the
	// current consensus mean? Skipped while the NFT has no slider data.
	agreedKnown := nft.HasSliderData()
	agreed := agreedKnown && math.Abs(normalized-nft.SliderMean) <= sliderAgreementBand

	// The voter's influence on the aggregate is their clamped reliability.
	weight := voter.Reliability
	if weight < s.cfg.ReliabilityFloor {
		weight = s.cfg.ReliabilityFloor
	}
	if weight > s.cfg.ReliabilityCeiling {
		weight = s.cfg.ReliabilityCeiling
	}

	nftVersion := nft.Version
	if nft.SliderCount == 0 {
		nft.SliderMean = normalized
		nft.SliderWeight = weight
	} else {
		total := nft.SliderWeight + weight
		nft.SliderMean = (nft.SliderMean*nft.SliderWeight + normalized*weight) / total
		nft.SliderWeight = total
	}
	nft.SliderCount++
	nft.TotalVotes++
	if e.Fire {
		nft.FireCount++
	}

	w := rating.Welford{Count: voter.SliderCount, Mean: voter.SliderMean, M2: voter.SliderM2}
	w = w.Add(raw)
	voter.SliderCount, voter.SliderMean, voter.SliderM2 = w.Count, w.Mean, w.M2
	if agreedKnown {
		voter.Reliability = rating.UpdateReliability(
			voter.Reliability, agreed, 1.0,
			s.cfg.ReliabilityStep, s.cfg.ReliabilityFloor, s.cfg.ReliabilityCeiling,
		)
		voter.ReliabilityCount++
	}

	// NFT aggregate and voter calibration land in one commit; a conflict
	// on either retries the whole apply from fresh reads.
	return s.stats.PutNFTWithUser(ctx, nft, nftVersion, voter, voter.Version)
}

// Replay rebuilds an NFT's aggregates by folding its vote-log history from
// a fresh initial record. This is the repair path: corrupted aggregates are
// fixed by replay, never by hand-editing counters.
//
// Opponent Elo means and voter calibrations are taken as of replay time;
// the fold is deterministic over the log given the current peer state.
func (s *Service) Replay(ctx context.Context, nftID string) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	current, err := s.stats.GetNFT(ctx, nftID)
	if err != nil {
		return err
	}
	events, err := s.votes.Events(ctx, nftID)
	if err != nil {
		return err
	}

	fresh := model.NewNFTStats(nftID, s.cfg.InitialEloMean, s.cfg.InitialEloUncertainty, s.now())
	fresh.Active = current.Active

	for i := range events {
		e := events[i]
		switch e.Kind() {
		case model.KindHeadToHead:
			opponentID := e.NFTB
			if opponentID == nftID {
				opponentID = e.NFTA
			}
			opponent, err := s.stats.GetNFT(ctx, opponentID)
			if err != nil {
				// A deactivated or missing opponent still counted when the
				// vote was cast; fold against the initial baseline.
				opponent = model.NewNFTStats(opponentID, s.cfg.InitialEloMean, s.cfg.InitialEloUncertainty, e.TS)
			}
			outcome := 0.5
			if e.WinnerID == nftID {
				outcome = 1.0
			} else if e.WinnerID != "" {
				outcome = 0.0
			}
			fresh.EloMean, fresh.EloUncertainty = s.elo.Update(fresh.EloMean, fresh.EloUncertainty, opponent.EloMean, outcome, e.Fire)
			fresh.HeadToHeadVotes++
			fresh.TotalVotes++
			if outcome == 1.0 {
				fresh.Wins++
				if e.Fire {
					fresh.FireCount++
				}
			} else if outcome == 0.0 {
				fresh.Losses++
			}
		case model.KindSlider:
			voter, err := s.stats.GetUser(ctx, e.VoterID)
			if err != nil {
				voter = model.NewUserStats(e.VoterID, e.TS)
			}
			normalized := rating.NormalizeSlider(*e.Slider, voter.SliderMean, voter.SliderStd(), voter.SliderCount)
			weight := voter.Reliability
			if fresh.SliderCount == 0 {
				fresh.SliderMean = normalized
				fresh.SliderWeight = weight
			} else {
				total := fresh.SliderWeight + weight
				fresh.SliderMean = (fresh.SliderMean*fresh.SliderWeight + normalized*weight) / total
				fresh.SliderWeight = total
			}
			fresh.SliderCount++
			fresh.TotalVotes++
			if e.Fire {
				fresh.FireCount++
			}
		}
	}

	if err := s.stats.PutNFT(ctx, fresh, current.Version); err != nil {
		return err
	}
	metrics.RecordReplay()
	s.markDirty(ctx, nftID)
	s.logger.Info(ctx, "nft aggregates rebuilt from vote log",
		logger.String("nftID", nftID),
		logger.Int("events", len(events)),
	)
	return nil
}

// Score returns the published score or the NFT's progress toward one.
func (s *Service) Score(ctx context.Context, nftID string) (model.ScoreLookup, error) {
	if !s.isStarted() {
		return model.ScoreLookup{}, ErrNotStarted
	}
	if _, err := s.stats.GetNFT(ctx, nftID); err != nil {
		return model.ScoreLookup{}, err
	}

	rec, err := s.scores.Get(ctx, nftID)
	switch {
	case err == nil:
		return model.Scored(rec), nil
	case errors.Is(err, repository.ErrNoScore):
		progress, perr := s.progressFor(ctx, nftID)
		if perr != nil {
			return model.ScoreLookup{}, perr
		}
		return model.AwaitingData(progress), nil
	default:
		return model.ScoreLookup{}, err
	}
}

// TopN returns the published leaderboard.
func (s *Service) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	return s.scores.TopN(ctx, n)
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	started := s.isStarted()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     started,
		"workerCount": s.cfg.WorkerCount,
	}
	if started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["nfts"] = s.stats.NFTCount(ctx)
		stats["users"] = s.stats.UserCount(ctx)
		stats["publishedScores"] = s.scores.Count(ctx)
		stats["voteEvents"] = s.votes.Len(ctx)
		stats["dedupeSize"] = s.deduper.Size()

		metrics.UpdateNFTsTracked(s.stats.NFTCount(ctx))
		metrics.UpdateUsersTracked(s.stats.UserCount(ctx))
	}
	return stats
}

func (s *Service) progressFor(ctx context.Context, nftID string) (model.Progress, error) {
	p, err := s.votes.Progress(ctx, nftID)
	if err != nil {
		return model.Progress{}, err
	}
	mins := s.minimums()
	p.MinHeadToHead = mins.MinHeadToHead
	p.MinUniqueOpponents = mins.MinUniqueOpponents
	p.MinSliderRatings = mins.MinSliderRatings
	p.MinUniqueSliderUsers = mins.MinUniqueSliderUsers
	return p, nil
}

func (s *Service) minimums() model.Progress {
	return model.Progress{
		MinHeadToHead:        s.cfg.MinHeadToHead,
		MinUniqueOpponents:   s.cfg.MinUniqueOpponents,
		MinSliderRatings:     s.cfg.MinSliderRatings,
		MinUniqueSliderUsers: s.cfg.MinUniqueSliderUsers,
	}
}

func (s *Service) markDirty(ctx context.Context, nftID string) {
	if !s.queue.Enqueue(ctx, nftID) {
		s.logger.Warn(ctx, "recompute queue full, nft left stale",
			logger.String("nftID", nftID),
		)
	}
}

// backoff sleeps with jitter before a conflict retry, honoring ctx.
func (s *Service) backoff(ctx context.Context, attempt int) error {
	base := time.Duration(s.cfg.ConflictBackoffMS) * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) + 1)) //nolint:gosec // jitter, not crypto
	select {
	case <-time.After(base*time.Duration(attempt) + jitter):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("vote processing canceled: %w", ctx.Err())
	}
}

package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/proofofaesthetic/poa-engine/pkg/logger"
)

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type scoreLookup struct {
	Status string `json:"status"`
}

type leaderboardEntry struct {
	Rank  int     `json:"rank"`
	NFTID string  `json:"nft_id"`
	POA   float64 `json:"poa"`
}

// Run executes a full simulation: health check, NFT registration, vote
// submission, settle wait, score reads, leaderboard read, sanity checks.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting vote simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("nfts", cfg.NumNFTs),
		logger.Int("users", cfg.NumUsers),
		logger.Int("votes", cfg.NumVotes),
		logger.Int("workers", cfg.Workers),
	)

	client := newHTTPClient(cfg.Timeout)

	if err := checkHealth(ctx, client, cfg); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	nfts := generateNFTs(cfg.NumNFTs)
	if err := registerNFTs(ctx, client, cfg, nfts, stats); err != nil {
		return fmt.Errorf("nft registration failed: %w", err)
	}

	users := generateUsers(cfg.NumUsers)
	votes := generateVotes(cfg, nfts, users)
	stats.VotesGenerated = len(votes)

	if err := submitVotes(ctx, client, cfg, votes, stats); err != nil {
		return fmt.Errorf("vote submission failed: %w", err)
	}

	log.Info(ctx, "waiting for recompute workers to settle",
		logger.Duration("delay", cfg.SettleDelay))
	select {
	case <-time.After(cfg.SettleDelay):
	case <-ctx.Done():
		return fmt.Errorf("simulation canceled: %w", ctx.Err())
	}

	if err := readScores(ctx, client, cfg, nfts, stats); err != nil {
		return fmt.Errorf("score reads failed: %w", err)
	}
	if err := readLeaderboard(ctx, client, cfg, stats); err != nil {
		return fmt.Errorf("leaderboard read failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayStats(ctx, stats)
	return nil
}

func checkHealth(ctx context.Context, client *httpClient, cfg *Config) error {
	resp, err := client.get(ctx, cfg.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readBody(resp); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %d", resp.StatusCode)
	}
	return nil
}

func registerNFTs(ctx context.Context, client *httpClient, cfg *Config, nfts []nft, stats *Stats) error {
	for _, n := range nfts {
		resp, err := client.post(ctx, cfg.BaseURL+"/nfts", map[string]string{"id": n.id})
		if err != nil {
			return err
		}
		if _, err := readBody(resp); err != nil {
			return err
		}
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("registration of %s failed with status %d", n.id, resp.StatusCode)
		}
		stats.NFTsRegistered++
	}
	return nil
}

func submitVotes(ctx context.Context, client *httpClient, cfg *Config, votes []Vote, stats *Stats) error {
	var accepted, duplicate, failed, submitted int64

	voteChan := make(chan Vote, cfg.Workers*2)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range voteChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				atomic.AddInt64(&submitted, 1)
				switch submitOne(ctx, client, cfg, v) {
				case "accepted":
					atomic.AddInt64(&accepted, 1)
				case "duplicate":
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	go func() {
		defer close(voteChan)
		for _, v := range votes {
			select {
			case <-ctx.Done():
				return
			case voteChan <- v:
			}
		}
	}()

	wg.Wait()

	stats.VotesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.VotesAccepted = int(atomic.LoadInt64(&accepted))
	stats.VotesDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.VotesFailed = int(atomic.LoadInt64(&failed))

	logger.Get().Info(ctx, "vote submission completed",
		logger.Int("accepted", stats.VotesAccepted),
		logger.Int("duplicate", stats.VotesDuplicate),
		logger.Int("failed", stats.VotesFailed),
	)
	return nil
}

// submitOne posts a vote, retrying once on 429 since engine-side version
// conflicts are transient and the event id makes resubmission idempotent.
func submitOne(ctx context.Context, client *httpClient, cfg *Config, v Vote) string {
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := client.post(ctx, cfg.BaseURL+"/votes", v)
		if err != nil {
			return "failed"
		}
		body, err := readBody(resp)
		if err != nil {
			return "failed"
		}
		switch resp.StatusCode {
		case http.StatusAccepted:
			return "accepted"
		case http.StatusOK:
			var ack ackResponse
			if err := json.Unmarshal(body, &ack); err == nil && ack.Duplicate {
				return "duplicate"
			}
			return "duplicate"
		case http.StatusTooManyRequests:
			continue
		default:
			return "failed"
		}
	}
	return "failed"
}

func readScores(ctx context.Context, client *httpClient, cfg *Config, nfts []nft, stats *Stats) error {
	for _, n := range nfts {
		resp, err := client.get(ctx, cfg.BaseURL+"/score/"+n.id)
		if err != nil {
			return err
		}
		body, err := readBody(resp)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("score read of %s failed with status %d", n.id, resp.StatusCode)
		}
		var lookup scoreLookup
		if err := json.Unmarshal(body, &lookup); err != nil {
			return fmt.Errorf("bad score payload for %s: %w", n.id, err)
		}
		switch lookup.Status {
		case "scored":
			stats.ScoresPublished++
		case "awaiting_data":
			stats.ScoresAwaiting++
		default:
			return fmt.Errorf("unknown score status %q for %s", lookup.Status, n.id)
		}
	}
	return nil
}

func readLeaderboard(ctx context.Context, client *httpClient, cfg *Config, stats *Stats) error {
	resp, err := client.get(ctx, fmt.Sprintf("%s/leaderboard?limit=%d", cfg.BaseURL, cfg.TopN))
	if err != nil {
		return err
	}
	body, err := readBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("leaderboard read failed with status %d", resp.StatusCode)
	}
	var entries []leaderboardEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("bad leaderboard payload: %w", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].POA > entries[i-1].POA {
			return fmt.Errorf("leaderboard not sorted at rank %d", entries[i].Rank)
		}
	}
	stats.TopEntries = len(entries)
	return nil
}

func displayStats(ctx context.Context, stats *Stats) {
	var votesPerSecond float64
	if stats.Duration > 0 {
		votesPerSecond = float64(stats.VotesSubmitted) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "simulation finished",
		logger.Int("nftsRegistered", stats.NFTsRegistered),
		logger.Int("votesGenerated", stats.VotesGenerated),
		logger.Int("votesAccepted", stats.VotesAccepted),
		logger.Int("votesDuplicate", stats.VotesDuplicate),
		logger.Int("votesFailed", stats.VotesFailed),
		logger.Int("scoresPublished", stats.ScoresPublished),
		logger.Int("scoresAwaiting", stats.ScoresAwaiting),
		logger.Int("leaderboardEntries", stats.TopEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("votesPerSecond", votesPerSecond),
	)
}

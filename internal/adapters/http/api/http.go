// Package api declares the HTTP contracts and route registration for the
// scoring engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/proofofaesthetic/poa-engine/internal/adapters/repository"
	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
)

// Dependencies bundles what the HTTP handlers need from the service layer.
type Dependencies interface {
	RegisterNFT(ctx context.Context, id string) error
	SubmitVote(ctx context.Context, e model.VoteEvent) (duplicate bool, err error)
	Score(ctx context.Context, nftID string) (model.ScoreLookup, error)
	TopN(ctx context.Context, n int) ([]repository.Entry, error)
	Replay(ctx context.Context, nftID string) error
}

// StatsProvider exposes service statistics for the /stats endpoint.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// Server wires HTTP routes for the engine API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	nftsHandler        *NFTsHandler
	votesHandler       *VotesHandler
	scoreHandler       *ScoreHandler
	leaderboardHandler *LeaderboardHandler
	replayHandler      *ReplayHandler
}

// NewServer creates the API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		nftsHandler:        NewNFTsHandler(deps),
		votesHandler:       NewVotesHandler(deps),
		scoreHandler:       NewScoreHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
		replayHandler:      NewReplayHandler(deps),
	}
}

// Register attaches all routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/nfts", MetricsMiddleware(s.nftsHandler.HandleRegisterNFT, "nfts"))
	mux.HandleFunc("/votes", MetricsMiddleware(s.votesHandler.HandlePostVote, "votes"))
	mux.HandleFunc("/score/", MetricsMiddleware(s.scoreHandler.HandleGetScore, "score"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/replay/", MetricsMiddleware(s.replayHandler.HandleReplay, "replay"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// isNotFound translates upstream not-found errors to 404.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

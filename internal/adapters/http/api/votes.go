// Package api declares the HTTP contracts and route registration for the
// scoring engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/proofofaesthetic/poa-engine/internal/app"
	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
)

// voteRequest mirrors the POST /votes payload. Exactly one of the
// head-to-head fields (nft_b + winner_id) or slider_value may be set; shape
// errors are rejected by the domain validator, not coerced here.
type voteRequest struct {
	EventID     string   `json:"event_id"`
	VoterID     string   `json:"voter_id"`
	NFTA        string   `json:"nft_a"`
	NFTB        string   `json:"nft_b,omitempty"`
	WinnerID    string   `json:"winner_id,omitempty"`
	SliderValue *float64 `json:"slider_value,omitempty"`
	Fire        bool     `json:"fire,omitempty"`
	TS          string   `json:"ts,omitempty"`
}

func (r voteRequest) toEvent() (model.VoteEvent, error) {
	e := model.VoteEvent{
		EventID:  r.EventID,
		VoterID:  r.VoterID,
		NFTA:     r.NFTA,
		NFTB:     r.NFTB,
		WinnerID: r.WinnerID,
		Slider:   r.SliderValue,
		Fire:     r.Fire,
	}
	if e.EventID == "" {
		// Callers that want idempotent resubmission supply their own id.
		e.EventID = uuid.NewString()
	}
	if r.TS != "" {
		ts, err := time.Parse(time.RFC3339, r.TS)
		if err != nil {
			return model.VoteEvent{}, errors.New("invalid ts; must be RFC3339")
		}
		e.TS = ts
	}
	return e, nil
}

// VotesHandler handles vote submissions.
type VotesHandler struct {
	deps Dependencies
}

// NewVotesHandler creates a new votes handler.
func NewVotesHandler(deps Dependencies) *VotesHandler {
	return &VotesHandler{deps: deps}
}

// HandlePostVote handles POST /votes requests.
func (h *VotesHandler) HandlePostVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	event, err := req.toEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	duplicate, err := h.deps.SubmitVote(r.Context(), event)
	switch {
	case err == nil:
		if duplicate {
			writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
			return
		}
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	case errors.Is(err, model.ErrInvalidVote):
		writeError(w, http.StatusBadRequest, "invalid_vote", err)
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, app.ErrConflictRetry):
		// Retryable: the caller may resubmit the same event id.
		writeError(w, http.StatusTooManyRequests, "contention", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

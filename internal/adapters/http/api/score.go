// Package api declares the HTTP contracts and route registration for the
// scoring engine.
package api

import (
	"net/http"
	"strings"
)

// ScoreHandler handles score reads.
type ScoreHandler struct {
	deps Dependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps Dependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

// HandleGetScore handles GET /score/{nft_id} requests. An NFT below the
// publish minimums answers 200 with status awaiting_data and its progress;
// only an unknown NFT is a 404.
func (h *ScoreHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	nftID := strings.TrimPrefix(r.URL.Path, "/score/")
	if nftID == "" || strings.Contains(nftID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	lookup, err := h.deps.Score(r.Context(), nftID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, lookup)
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// Package api declares the HTTP contracts and route registration for the
// scoring engine.
package api

import (
	"net/http"
	"strings"
)

// ReplayHandler triggers an event-log rebuild of one NFT's aggregates.
type ReplayHandler struct {
	deps Dependencies
}

// NewReplayHandler creates a new replay handler.
func NewReplayHandler(deps Dependencies) *ReplayHandler {
	return &ReplayHandler{deps: deps}
}

// HandleReplay handles POST /replay/{nft_id} requests.
func (h *ReplayHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	nftID := strings.TrimPrefix(r.URL.Path, "/replay/")
	if nftID == "" || strings.Contains(nftID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	err := h.deps.Replay(r.Context(), nftID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ackResponse{Status: "replayed"})
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// Package api declares the HTTP contracts and route registration for the
// scoring engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/proofofaesthetic/poa-engine/internal/adapters/repository"
)

// nftRequest mirrors the POST /nfts payload.
type nftRequest struct {
	ID string `json:"id"`
}

// NFTsHandler handles NFT registration.
type NFTsHandler struct {
	deps Dependencies
}

// NewNFTsHandler creates a new NFTs handler.
func NewNFTsHandler(deps Dependencies) *NFTsHandler {
	return &NFTsHandler{deps: deps}
}

// HandleRegisterNFT handles POST /nfts requests.
func (h *NFTsHandler) HandleRegisterNFT(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req nftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing nft id"))
		return
	}

	err := h.deps.RegisterNFT(r.Context(), req.ID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, ackResponse{Status: "registered"})
	case errors.Is(err, repository.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

package repository

import (
	"context"
	"sync"

	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
)

// nftIndex tracks one NFT's slice of the log for O(1) progress reads.
type nftIndex struct {
	events    []int
	h2h       int
	opponents map[string]struct{}
	sliders   int
	raters    map[string]struct{}
}

func newNFTIndex() *nftIndex {
	return &nftIndex{
		opponents: make(map[string]struct{}),
		raters:    make(map[string]struct{}),
	}
}

// MemoryVoteLog implements VoteLog with an append-only slice plus a per-NFT
// index. Events are never mutated or removed; aggregates are rebuilt by
// folding the log, so the index can never drift from the facts.
type MemoryVoteLog struct {
	mu      sync.RWMutex
	events  []model.VoteEvent
	indexes map[string]*nftIndex
}

// NewMemoryVoteLog creates an empty vote log.
func NewMemoryVoteLog() *MemoryVoteLog {
	return &MemoryVoteLog{indexes: make(map[string]*nftIndex)}
}

func (l *MemoryVoteLog) Append(_ context.Context, e model.VoteEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := len(l.events)
	l.events = append(l.events, e)

	a := l.indexFor(e.NFTA)
	a.events = append(a.events, pos)

	switch e.Kind() {
	case model.KindHeadToHead:
		b := l.indexFor(e.NFTB)
		b.events = append(b.events, pos)
		a.h2h++
		b.h2h++
		a.opponents[e.NFTB] = struct{}{}
		b.opponents[e.NFTA] = struct{}{}
	case model.KindSlider:
		a.sliders++
		a.raters[e.VoterID] = struct{}{}
	}
	return nil
}

func (l *MemoryVoteLog) indexFor(nftID string) *nftIndex {
	idx, ok := l.indexes[nftID]
	if !ok {
		idx = newNFTIndex()
		l.indexes[nftID] = idx
	}
	return idx
}

func (l *MemoryVoteLog) Events(_ context.Context, nftID string) ([]model.VoteEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.indexes[nftID]
	if !ok {
		return nil, nil
	}
	out := make([]model.VoteEvent, len(idx.events))
	for i, pos := range idx.events {
		out[i] = l.events[pos]
	}
	return out, nil
}

func (l *MemoryVoteLog) Progress(_ context.Context, nftID string) (model.Progress, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.indexes[nftID]
	if !ok {
		return model.Progress{}, nil
	}
	return model.Progress{
		HeadToHead:        idx.h2h,
		UniqueOpponents:   len(idx.opponents),
		SliderRatings:     idx.sliders,
		UniqueSliderUsers: len(idx.raters),
	}, nil
}

func (l *MemoryVoteLog) Len(_ context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

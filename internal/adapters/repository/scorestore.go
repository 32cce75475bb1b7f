package repository

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
	"github.com/proofofaesthetic/poa-engine/pkg/metrics"
)

// Treap-based, in-memory ScoreStore.
//
// Ordering: POA desc, then NFT id asc (deterministic). In-order traversal
// yields the leaderboard from best to worst. POA is bounded [0,100], so a
// fixed-point key avoids float comparison edge cases in the tree.

const poaScale = 1_000_000_000

type poaFP int64

func toFixedPoint(x float64) poaFP {
	if math.IsNaN(x) {
		return 0
	}
	return poaFP(math.Round(x * poaScale))
}

// node is one treap node keyed by (poa, id) with a random heap priority.
type node struct {
	id    string
	poa   poaFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aPOA, aID) ranks earlier than (bPOA, bID).
func less(aPOA poaFP, aID string, bPOA poaFP, bID string) bool {
	if aPOA != bPOA {
		return aPOA > bPOA
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, poa poaFP, prio uint64) *node {
	if n == nil {
		return &node{id: id, poa: poa, prio: prio, size: 1}
	}
	if less(poa, id, n.poa, n.id) {
		n.left = insert(n.left, id, poa, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, poa, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id string, poa poaFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case poa == n.poa && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, poa)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, poa)
		}
	case less(poa, id, n.poa, n.id):
		n.left = remove(n.left, id, poa)
	default:
		n.right = remove(n.right, id, poa)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit ids in rank order.
func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// TreapScoreStore implements ScoreStore over a treap plus an id index.
type TreapScoreStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]model.ScoreRecord
	rng  *rand.Rand
}

// NewTreapScoreStore constructs an empty score store.
func NewTreapScoreStore() *TreapScoreStore {
	return &TreapScoreStore{
		byID: make(map[string]model.ScoreRecord),
		rng:  rand.New(rand.NewSource(rand.Int63())), //nolint:gosec // treap balancing, not crypto
	}
}

func (s *TreapScoreStore) Get(_ context.Context, nftID string) (model.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[nftID]
	if !ok {
		return model.ScoreRecord{}, ErrNoScore
	}
	return rec, nil
}

// Publish runs decide against the latest committed record under the store
// lock, and commits rec only on approval. This is the single write path for
// published scores.
func (s *TreapScoreStore) Publish(_ context.Context, rec model.ScoreRecord, decide func(prev *model.ScoreRecord) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *model.ScoreRecord
	if existing, ok := s.byID[rec.NFTID]; ok {
		prev = &existing
	}
	if decide != nil && !decide(prev) {
		return false, nil
	}

	if prev != nil {
		s.root = remove(s.root, rec.NFTID, toFixedPoint(prev.POA))
	}
	s.root = insert(s.root, rec.NFTID, toFixedPoint(rec.POA), s.rng.Uint64())
	s.byID[rec.NFTID] = rec
	metrics.UpdatePublishedScores(len(s.byID))
	return true, nil
}

func (s *TreapScoreStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, n)
	collectTopN(s.root, n, &ids)

	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{Rank: i + 1, ScoreRecord: s.byID[id]}
	}
	return entries, nil
}

func (s *TreapScoreStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

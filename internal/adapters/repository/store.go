// Package repository defines the storage contracts the scoring engine reads
// from and writes to, plus their in-memory implementations. Persistence
// technology stays behind these interfaces.
package repository

import (
	"context"

	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
)

// StatsStore holds the durable numeric state per NFT and per user, guarded
// by optimistic version checks so concurrent votes never lose updates.
type StatsStore interface {
	// RegisterNFT creates a fresh rating record. ErrAlreadyExists if taken.
	RegisterNFT(ctx context.Context, stats model.NFTStats) error

	// GetNFT returns the current record. ErrNotFound if unknown.
	GetNFT(ctx context.Context, id string) (model.NFTStats, error)

	// PutNFT overwrites the record iff its stored version still equals
	// expectedVersion; ErrVersionConflict otherwise. The stored version is
	// bumped on success.
	PutNFT(ctx context.Context, stats model.NFTStats, expectedVersion int64) error

	// PutNFTPair writes two records in one critical section so a
	// head-to-head vote commits both sides or neither.
	PutNFTPair(ctx context.Context, a, b model.NFTStats, expectedVersionA, expectedVersionB int64) error

	// PutNFTWithUser writes one NFT record and one user record in one
	// critical section. A version conflict on either record leaves both
	// untouched, so a vote's writes never land partially.
	PutNFTWithUser(ctx context.Context, nft model.NFTStats, nftVersion int64, user model.UserStats, userVersion int64) error

	// PutNFTPairWithUser writes both sides of a head-to-head vote and the
	// voter's record with the same all-or-nothing discipline.
	PutNFTPairWithUser(ctx context.Context, a, b model.NFTStats, expectedVersionA, expectedVersionB int64, user model.UserStats, userVersion int64) error

	// DeactivateNFT marks an NFT inactive. Records are never deleted.
	DeactivateNFT(ctx context.Context, id string) error

	// NFTCount returns the number of tracked NFTs.
	NFTCount(ctx context.Context) int

	// GetUser returns the user's record. ErrNotFound if unknown.
	GetUser(ctx context.Context, id string) (model.UserStats, error)

	// EnsureUser returns the user's record, lazily creating it on first vote.
	EnsureUser(ctx context.Context, id string) (model.UserStats, error)

	// PutUser overwrites with the same version discipline as PutNFT.
	PutUser(ctx context.Context, stats model.UserStats, expectedVersion int64) error

	// UserCount returns the number of tracked users.
	UserCount(ctx context.Context) int
}

// VoteLog is the append-only sink of vote events. Statistics are always
// derivable by folding this log, which is how corruption gets repaired.
type VoteLog interface {
	// Append records one immutable event.
	Append(ctx context.Context, e model.VoteEvent) error

	// Events returns every event touching the NFT, in append order.
	Events(ctx context.Context, nftID string) ([]model.VoteEvent, error)

	// Progress reports the NFT's data counts (threshold minimums are the
	// caller's to fill in).
	Progress(ctx context.Context, nftID string) (model.Progress, error)

	// Len returns the total number of recorded events.
	Len(ctx context.Context) int
}

// Entry is a leaderboard row over published scores.
type Entry struct {
	Rank int `json:"rank"`
	model.ScoreRecord
}

// ScoreStore holds the publicly visible scores, ordered for leaderboard
// reads. Only the publish gate path writes here.
type ScoreStore interface {
	// Get returns the published record. ErrNoScore when the NFT has none.
	Get(ctx context.Context, nftID string) (model.ScoreRecord, error)

	// Publish commits rec iff decide approves it against the latest
	// committed record for this NFT. decide runs under the store lock, so
	// two concurrent recomputations cannot both see an elapsed grace
	// period and double-publish.
	Publish(ctx context.Context, rec model.ScoreRecord, decide func(prev *model.ScoreRecord) bool) (bool, error)

	// TopN returns the top-N entries ordered by POA desc, id asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of published scores.
	Count(ctx context.Context) int
}

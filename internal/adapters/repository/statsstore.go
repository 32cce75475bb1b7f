package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/proofofaesthetic/poa-engine/internal/domain/model"
)

// MemoryStatsStore implements StatsStore with in-memory maps. Writes go
// through an optimistic version check; the map mutex only covers the
// compare-and-swap itself, so readers never block behind vote processing.
type MemoryStatsStore struct {
	mu    sync.RWMutex
	nfts  map[string]model.NFTStats
	users map[string]model.UserStats

	now func() time.Time
}

// StatsOption applies a configuration option to the MemoryStatsStore.
type StatsOption func(*MemoryStatsStore)

// WithStatsClock overrides the clock, for tests.
func WithStatsClock(now func() time.Time) StatsOption {
	return func(s *MemoryStatsStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStatsStore creates an empty stats store.
func NewMemoryStatsStore(opts ...StatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		nfts:  make(map[string]model.NFTStats),
		users: make(map[string]model.UserStats),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) RegisterNFT(_ context.Context, stats model.NFTStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nfts[stats.ID]; ok {
		return fmt.Errorf("%w: nft %s", ErrAlreadyExists, stats.ID)
	}
	stats.Version = 1
	s.nfts[stats.ID] = stats
	return nil
}

func (s *MemoryStatsStore) GetNFT(_ context.Context, id string) (model.NFTStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.nfts[id]
	if !ok {
		return model.NFTStats{}, fmt.Errorf("%w: nft %s", ErrNotFound, id)
	}
	return stats, nil
}

func (s *MemoryStatsStore) PutNFT(_ context.Context, stats model.NFTStats, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putNFTLocked(stats, expectedVersion)
}

func (s *MemoryStatsStore) PutNFTPair(_ context.Context, a, b model.NFTStats, expectedVersionA, expectedVersionB int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate both versions before touching either record, so a conflict
	// on the second NFT cannot leave the first half-written.
	if err := s.checkNFTVersionLocked(a.ID, expectedVersionA); err != nil {
		return err
	}
	if err := s.checkNFTVersionLocked(b.ID, expectedVersionB); err != nil {
		return err
	}
	if err := s.putNFTLocked(a, expectedVersionA); err != nil {
		return err
	}
	return s.putNFTLocked(b, expectedVersionB)
}

func (s *MemoryStatsStore) PutNFTWithUser(_ context.Context, nft model.NFTStats, nftVersion int64, user model.UserStats, userVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every version before touching any record, so a conflict on
	// the user cannot leave the NFT half-written (or the reverse).
	if err := s.checkNFTVersionLocked(nft.ID, nftVersion); err != nil {
		return err
	}
	if err := s.checkUserVersionLocked(user.ID, userVersion); err != nil {
		return err
	}
	if err := s.putNFTLocked(nft, nftVersion); err != nil {
		return err
	}
	return s.putUserLocked(user, userVersion)
}

func (s *MemoryStatsStore) PutNFTPairWithUser(_ context.Context, a, b model.NFTStats, expectedVersionA, expectedVersionB int64, user model.UserStats, userVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNFTVersionLocked(a.ID, expectedVersionA); err != nil {
		return err
	}
	if err := s.checkNFTVersionLocked(b.ID, expectedVersionB); err != nil {
		return err
	}
	if err := s.checkUserVersionLocked(user.ID, userVersion); err != nil {
		return err
	}
	if err := s.putNFTLocked(a, expectedVersionA); err != nil {
		return err
	}
	if err := s.putNFTLocked(b, expectedVersionB); err != nil {
		return err
	}
	return s.putUserLocked(user, userVersion)
}

func (s *MemoryStatsStore) checkNFTVersionLocked(id string, expectedVersion int64) error {
	current, ok := s.nfts[id]
	if !ok {
		return fmt.Errorf("%w: nft %s", ErrNotFound, id)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: nft %s at v%d, expected v%d", ErrVersionConflict, id, current.Version, expectedVersion)
	}
	return nil
}

func (s *MemoryStatsStore) putNFTLocked(stats model.NFTStats, expectedVersion int64) error {
	if err := s.checkNFTVersionLocked(stats.ID, expectedVersion); err != nil {
		return err
	}
	stats.Version = expectedVersion + 1
	stats.UpdatedAt = s.now()
	s.nfts[stats.ID] = stats
	return nil
}

func (s *MemoryStatsStore) DeactivateNFT(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.nfts[id]
	if !ok {
		return fmt.Errorf("%w: nft %s", ErrNotFound, id)
	}
	stats.Active = false
	stats.Version++
	stats.UpdatedAt = s.now()
	s.nfts[id] = stats
	return nil
}

func (s *MemoryStatsStore) NFTCount(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nfts)
}

func (s *MemoryStatsStore) GetUser(_ context.Context, id string) (model.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.users[id]
	if !ok {
		return model.UserStats{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return stats, nil
}

func (s *MemoryStatsStore) EnsureUser(_ context.Context, id string) (model.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stats, ok := s.users[id]; ok {
		return stats, nil
	}
	stats := model.NewUserStats(id, s.now())
	stats.Version = 1
	s.users[id] = stats
	return stats, nil
}

func (s *MemoryStatsStore) PutUser(_ context.Context, stats model.UserStats, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putUserLocked(stats, expectedVersion)
}

func (s *MemoryStatsStore) checkUserVersionLocked(id string, expectedVersion int64) error {
	current, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: user %s at v%d, expected v%d", ErrVersionConflict, id, current.Version, expectedVersion)
	}
	return nil
}

func (s *MemoryStatsStore) putUserLocked(stats model.UserStats, expectedVersion int64) error {
	if err := s.checkUserVersionLocked(stats.ID, expectedVersion); err != nil {
		return err
	}
	stats.Version = expectedVersion + 1
	stats.UpdatedAt = s.now()
	s.users[stats.ID] = stats
	return nil
}

func (s *MemoryStatsStore) UserCount(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

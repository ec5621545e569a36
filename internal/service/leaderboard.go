package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pyquest-jobs/internal/config"
	"github.com/pyquest-jobs/internal/domain"
)

// LeaderboardService serves stored weekly snapshots
type LeaderboardService struct {
	store  LeaderboardStore
	cache  SnapshotCache
	config *config.LeaderboardConfig
	logger *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service. cache may be nil.
func NewLeaderboardService(
	store LeaderboardStore,
	cache SnapshotCache,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
	}
}

// ClampLimit applies the configured default and maximum to a requested limit
func (s *LeaderboardService) ClampLimit(n int) int {
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}
	return n
}

// GetWeeklyTop returns the top n entries of the snapshot for the week starting
// at weekStart. The cache is tried first; a miss falls back to the database and
// refills the cache.
func (s *LeaderboardService) GetWeeklyTop(ctx context.Context, weekStart time.Time, n int) ([]domain.LeaderboardEntry, error) {
	n = s.ClampLimit(n)

	if s.cache != nil {
		entries, found, err := s.cache.GetWeeklyTop(ctx, weekStart, n)
		if err != nil {
			s.logger.Warn("failed to read weekly snapshot from cache", "error", err)
		} else if found {
			return entries, nil
		}
	}

	entries, err := s.store.GetWeeklySnapshot(ctx, weekStart, s.config.MaxLimit)
	if err != nil {
		return nil, fmt.Errorf("getting weekly snapshot: %w", err)
	}

	if s.cache != nil && len(entries) > 0 {
		if err := s.cache.StoreWeekly(ctx, domain.NewWeekWindow(weekStart), entries, s.config.CacheTTL); err != nil {
			s.logger.Warn("failed to refill weekly snapshot cache", "error", err)
		}
	}

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

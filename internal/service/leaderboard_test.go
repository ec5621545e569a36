package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyquest-jobs/internal/config"
	"github.com/pyquest-jobs/internal/domain"
)

func leaderboardConfig() *config.LeaderboardConfig {
	return &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100, CacheTTL: time.Hour}
}

func rankedEntries(n int) []domain.LeaderboardEntry {
	w := domain.NewWeekWindow(weekStart)
	entries := make([]domain.LeaderboardEntry, 0, n)
	for i := 0; i < n; i++ {
		p := domain.Profile{ID: fmt.Sprintf("user-%02d", i), League: domain.LeagueBronze}
		entries = append(entries, domain.NewLeaderboardEntry(p, int64(1000-i), w))
	}
	return domain.RankEntries(entries)
}

func TestLeaderboardService_ClampLimit(t *testing.T) {
	svc := NewLeaderboardService(newMemStore(nil), nil, leaderboardConfig(), testLogger())

	assert.Equal(t, 10, svc.ClampLimit(0))
	assert.Equal(t, 10, svc.ClampLimit(-3))
	assert.Equal(t, 5, svc.ClampLimit(5))
	assert.Equal(t, 100, svc.ClampLimit(500))
}

func TestLeaderboardService_CacheHit(t *testing.T) {
	store := newMemStore(nil)
	cache := newMemCache()
	require.NoError(t, cache.StoreWeekly(context.Background(), domain.NewWeekWindow(weekStart), rankedEntries(15), time.Hour))
	svc := NewLeaderboardService(store, cache, leaderboardConfig(), testLogger())

	entries, err := svc.GetWeeklyTop(context.Background(), weekStart, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 10)
	assert.Equal(t, int64(1), entries[0].Rank)
}

func TestLeaderboardService_MissFallsBackAndRefills(t *testing.T) {
	store := newMemStore(nil)
	_, err := store.ReplaceWeeklySnapshot(context.Background(), domain.NewWeekWindow(weekStart), rankedEntries(12))
	require.NoError(t, err)
	cache := newMemCache()
	svc := NewLeaderboardService(store, cache, leaderboardConfig(), testLogger())

	entries, err := svc.GetWeeklyTop(context.Background(), weekStart, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, 1, cache.stores)
	assert.Len(t, cache.weeks["2025-03-10"], 12)

	entries, err = svc.GetWeeklyTop(context.Background(), weekStart, 20)
	require.NoError(t, err)
	assert.Len(t, entries, 12)
	assert.Equal(t, 1, cache.stores)
}

func TestLeaderboardService_CacheErrorFallsBack(t *testing.T) {
	store := newMemStore(nil)
	_, err := store.ReplaceWeeklySnapshot(context.Background(), domain.NewWeekWindow(weekStart), rankedEntries(2))
	require.NoError(t, err)
	cache := newMemCache()
	cache.failGet = true
	svc := NewLeaderboardService(store, cache, leaderboardConfig(), testLogger())

	entries, err := svc.GetWeeklyTop(context.Background(), weekStart, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLeaderboardService_UnknownWeek(t *testing.T) {
	cache := newMemCache()
	svc := NewLeaderboardService(newMemStore(nil), cache, leaderboardConfig(), testLogger())

	entries, err := svc.GetWeeklyTop(context.Background(), weekStart, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, cache.stores)
}

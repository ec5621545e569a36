package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pyquest-jobs/internal/domain"
	"github.com/redis/go-redis/v9"
)

// weeklyKey returns the sorted set holding a week's snapshot ordered by rank
func weeklyKey(weekStart time.Time) string {
	return fmt.Sprintf("leaderboard:weekly:%s", weekStart.Format("2006-01-02"))
}

// weeklyMetaKey returns the hash describing a cached snapshot
func weeklyMetaKey(weekStart time.Time) string {
	return fmt.Sprintf("leaderboard:weekly:%s:meta", weekStart.Format("2006-01-02"))
}

// StoreWeekly replaces the cached snapshot for a week. Members are the encoded
// entries scored by rank, so reads return them in snapshot order.
func (c *Client) StoreWeekly(ctx context.Context, w domain.WeekWindow, entries []domain.LeaderboardEntry, ttl time.Duration) error {
	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding entry for %s: %w", e.UserID, err)
		}
		members = append(members, redis.Z{Score: float64(e.Rank), Member: string(data)})
	}

	key := weeklyKey(w.Start)
	metaKey := weeklyMetaKey(w.Start)

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.ZAdd(ctx, key, members...)
		}
		pipe.HSet(ctx, metaKey,
			"week_start", w.Start.Format(time.RFC3339),
			"week_end", w.LastDay().Format(time.RFC3339),
			"entries", len(entries),
			"computed_at", c.now().UTC().Format(time.RFC3339),
		)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
			pipe.Expire(ctx, metaKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing weekly snapshot: %w", err)
	}
	return nil
}

// GetWeeklyTop returns up to n entries of a cached snapshot. The boolean is false
// when the week has not been cached.
func (c *Client) GetWeeklyTop(ctx context.Context, weekStart time.Time, n int) ([]domain.LeaderboardEntry, bool, error) {
	pipe := c.client.Pipeline()
	metaCmd := pipe.HGet(ctx, weeklyMetaKey(weekStart), "entries")
	rangeCmd := pipe.ZRangeWithScores(ctx, weeklyKey(weekStart), 0, int64(n-1))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, false, fmt.Errorf("getting weekly snapshot: %w", err)
	}

	count, err := metaCmd.Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting weekly snapshot meta: %w", err)
	}
	if total, _ := strconv.Atoi(count); total == 0 {
		return []domain.LeaderboardEntry{}, true, nil
	}

	results, err := rangeCmd.Result()
	if err != nil {
		return nil, false, fmt.Errorf("getting weekly range: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(results))
	for _, result := range results {
		member, ok := result.Member.(string)
		if !ok {
			continue
		}
		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(member), &e); err != nil {
			c.logger.Warn("skipping undecodable snapshot member", "key", weeklyKey(weekStart), "error", err)
			continue
		}
		e.Rank = int64(result.Score)
		entries = append(entries, e)
	}
	return entries, true, nil
}

package service

import (
	"context"
	"time"

	"github.com/pyquest-jobs/internal/domain"
)

// ProfileStore reads and updates per-user progression rows
type ProfileStore interface {
	ListActiveProfiles(ctx context.Context) ([]domain.Profile, error)
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpdateStreak(ctx context.Context, u domain.StreakUpdate) (bool, error)
	ResetHearts(ctx context.Context, fallback int) (int64, error)
	UpdateLeague(ctx context.Context, userID string, league domain.League) error
}

// ProgressStore keeps the per-user achievement counters
type ProgressStore interface {
	// ApplyActivity applies w in one transaction and returns the new value of
	// every counter in w.Deltas. It reports false, changing nothing, when
	// w.EventID was applied before.
	ApplyActivity(ctx context.Context, w domain.ActivityWrite) (map[string]int64, bool, error)
	ListProgress(ctx context.Context, userID string) (map[string]int64, error)
}

// AchievementStore reads the catalog and records unlocks
type AchievementStore interface {
	ListAchievements(ctx context.Context) ([]domain.Achievement, error)
	GetAchievementBySlug(ctx context.Context, slug string) (*domain.Achievement, error)
	// InsertUserAchievement records an unlock and credits xpReward with it.
	// It reports false, crediting nothing, when the user already had it.
	InsertUserAchievement(ctx context.Context, userID, achievementID string, at time.Time, xpReward int64) (bool, error)
	ListUnlockedAchievementIDs(ctx context.Context, userID string) (map[string]struct{}, error)
}

// MilestoneStore claims one-off awards
type MilestoneStore interface {
	// RecordMilestone claims m and credits m.XP in one write. It reports
	// false when m was already claimed.
	RecordMilestone(ctx context.Context, m domain.Milestone) (bool, error)
}

// NotificationStore persists notifications
type NotificationStore interface {
	InsertNotification(ctx context.Context, n domain.Notification) (domain.Notification, error)
	InsertNotifications(ctx context.Context, notifications []domain.Notification) ([]domain.Notification, error)
}

// LeaderboardStore computes and persists weekly snapshots
type LeaderboardStore interface {
	WeeklyXP(ctx context.Context, userID string, w domain.WeekWindow) (int64, error)
	ReplaceWeeklySnapshot(ctx context.Context, w domain.WeekWindow, entries []domain.LeaderboardEntry) (int64, error)
	GetWeeklySnapshot(ctx context.Context, weekStart time.Time, limit int) ([]domain.LeaderboardEntry, error)
}

// Store is everything the jobs need from the relational database
type Store interface {
	ProfileStore
	ProgressStore
	AchievementStore
	MilestoneStore
	NotificationStore
	LeaderboardStore
}

// SnapshotCache serves weekly snapshots without touching the database
type SnapshotCache interface {
	StoreWeekly(ctx context.Context, w domain.WeekWindow, entries []domain.LeaderboardEntry, ttl time.Duration) error
	GetWeeklyTop(ctx context.Context, weekStart time.Time, n int) ([]domain.LeaderboardEntry, bool, error)
}

// Broadcaster pushes realtime updates to connected clients
type Broadcaster interface {
	PublishNotification(n domain.Notification)
	BroadcastWeeklyLeaderboard(weekStart string, entries []domain.LeaderboardEntry)
}

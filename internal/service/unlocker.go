package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pyquest-jobs/internal/domain"
)

// Unlocker grants achievements at most once per user
type Unlocker struct {
	achievements AchievementStore
	notifier     *Notifier
	logger       *slog.Logger
	now          func() time.Time
}

// NewUnlocker creates a new unlocker
func NewUnlocker(achievements AchievementStore, notifier *Notifier, logger *slog.Logger) *Unlocker {
	return &Unlocker{
		achievements: achievements,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

// UnlockBySlug looks up a catalog entry and unlocks it
func (u *Unlocker) UnlockBySlug(ctx context.Context, userID, slug string) (bool, error) {
	a, err := u.achievements.GetAchievementBySlug(ctx, slug)
	if err != nil {
		return false, fmt.Errorf("unlocking %s: %w", slug, err)
	}
	return u.Unlock(ctx, userID, *a)
}

// Unlock records the achievement for the user together with its XP reward.
// Only the call that creates the unlock sends the notification; later calls
// report false. A notification failure is returned but does not undo the unlock.
func (u *Unlocker) Unlock(ctx context.Context, userID string, a domain.Achievement) (bool, error) {
	inserted, err := u.achievements.InsertUserAchievement(ctx, userID, a.ID, u.now().UTC(), a.XPReward)
	if err != nil {
		return false, fmt.Errorf("unlocking %s: %w", a.Slug, err)
	}
	if !inserted {
		return false, nil
	}

	u.logger.Info("achievement unlocked",
		"user_id", userID,
		"achievement", a.Slug,
		"xp_reward", a.XPReward,
	)
	if err := u.notifier.Notify(ctx, domain.AchievementUnlocked(userID, a)); err != nil {
		return true, err
	}
	return true, nil
}

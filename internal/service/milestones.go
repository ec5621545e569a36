package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pyquest-jobs/internal/domain"
)

// Milestones grants streak rewards. The streak job and streak_milestone
// activity events both go through it so a milestone is rewarded once.
type Milestones struct {
	milestones MilestoneStore
	unlocker   *Unlocker
	notifier   *Notifier
	logger     *slog.Logger
}

// NewMilestones creates a new milestone awarder
func NewMilestones(milestones MilestoneStore, unlocker *Unlocker, notifier *Notifier, logger *slog.Logger) *Milestones {
	return &Milestones{
		milestones: milestones,
		unlocker:   unlocker,
		notifier:   notifier,
		logger:     logger,
	}
}

// AwardStreak rewards a current streak of exactly days that started on anchor.
// It reports whether this call granted the reward.
func (m *Milestones) AwardStreak(ctx context.Context, userID string, days int, anchor time.Time) (bool, error) {
	reward, ok := domain.StreakRewardFor(days)
	if !ok {
		return false, nil
	}

	claimed, err := m.milestones.RecordMilestone(ctx, domain.Milestone{
		UserID:     userID,
		Kind:       domain.MilestoneStreak,
		Value:      int64(days),
		AnchoredOn: domain.DateOf(anchor),
		XP:         reward.XP,
	})
	if err != nil {
		return false, fmt.Errorf("claiming %d-day streak milestone: %w", days, err)
	}
	if !claimed {
		return false, nil
	}

	var errs []error
	if err := m.notifier.Notify(ctx, domain.StreakMilestoneReached(userID, days, reward.XP)); err != nil {
		errs = append(errs, err)
	}
	if reward.Slug != "" {
		if _, err := m.unlocker.UnlockBySlug(ctx, userID, reward.Slug); err != nil {
			errs = append(errs, err)
		}
	}

	m.logger.Info("streak milestone awarded", "user_id", userID, "days", days, "xp", reward.XP)
	return true, errors.Join(errs...)
}

// AwardPersonalBest celebrates a new longest streak of exactly days
func (m *Milestones) AwardPersonalBest(ctx context.Context, userID string, days int) (bool, error) {
	if !domain.IsMaxStreakMilestone(days) {
		return false, nil
	}

	claimed, err := m.milestones.RecordMilestone(ctx, domain.Milestone{
		UserID:     userID,
		Kind:       domain.MilestoneMaxStreak,
		Value:      int64(days),
		AnchoredOn: domain.PersonalBestAnchor,
	})
	if err != nil {
		return false, fmt.Errorf("claiming personal best milestone: %w", err)
	}
	if !claimed {
		return false, nil
	}

	if err := m.notifier.Notify(ctx, domain.PersonalBestReached(userID, days)); err != nil {
		return true, err
	}
	return true, nil
}

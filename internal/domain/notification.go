package domain

import (
	"fmt"
	"time"
)

// Notification types
const (
	NotificationAchievement       = "achievement"
	NotificationStreak            = "streak"
	NotificationWeeklyLeaderboard = "weekly_leaderboard"
)

// Notification is an append-only message delivered to a user
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

// AchievementUnlocked builds the notification sent when an achievement is unlocked
func AchievementUnlocked(userID string, a Achievement) Notification {
	return Notification{
		UserID:  userID,
		Type:    NotificationAchievement,
		Title:   "🏆 Achievement Unlocked!",
		Message: a.Description,
		Metadata: map[string]any{
			"achievement_id":    a.ID,
			"achievement_title": a.Title,
			"xp_reward":         a.XPReward,
			"rarity":            a.Rarity,
			"icon":              a.Icon,
		},
	}
}

// StreakMilestoneReached builds the notification for a current-streak milestone
func StreakMilestoneReached(userID string, days int, xp int64) Notification {
	return Notification{
		UserID:  userID,
		Type:    NotificationStreak,
		Title:   "🔥 Amazing Streak!",
		Message: fmt.Sprintf("Congratulations! You've maintained a %d-day learning streak!", days),
		Metadata: map[string]any{
			"streak_days": days,
			"xp_reward":   xp,
			"type":        "milestone",
		},
	}
}

// PersonalBestReached builds the notification for a longest-streak milestone
func PersonalBestReached(userID string, days int) Notification {
	return Notification{
		UserID:  userID,
		Type:    NotificationStreak,
		Title:   "🏆 New Personal Best!",
		Message: fmt.Sprintf("Congratulations! Your new longest streak is %d days!", days),
		Metadata: map[string]any{
			"max_streak": days,
			"type":       "personal_best",
		},
	}
}

// LeaguePromoted builds the notification for a league promotion
func LeaguePromoted(userID string, league League, rank, bonus int64) Notification {
	return Notification{
		UserID: userID,
		Type:   NotificationWeeklyLeaderboard,
		Title:  "🏆 League Promotion!",
		Message: fmt.Sprintf("Congratulations! You've been promoted to %s league! You ranked #%d this week.",
			league, rank),
		Metadata: map[string]any{
			"new_league": string(league),
			"rank":       rank,
			"bonus_xp":   bonus,
			"type":       "promotion",
		},
	}
}

// WeeklyResult builds the notification sent to top ranked users
func WeeklyResult(e LeaderboardEntry) Notification {
	return Notification{
		UserID:  e.UserID,
		Type:    NotificationWeeklyLeaderboard,
		Title:   "📊 Weekly Results!",
		Message: fmt.Sprintf("You finished #%d in the weekly leaderboard with %d XP!", e.Rank, e.WeeklyXP),
		Metadata: map[string]any{
			"rank":       e.Rank,
			"weekly_xp":  e.WeeklyXP,
			"week_start": e.WeekStart.Format("2006-01-02"),
			"type":       "weekly_result",
		},
	}
}

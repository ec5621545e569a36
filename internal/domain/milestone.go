package domain

import "time"

// MilestoneKind distinguishes the families of one-off awards
type MilestoneKind string

const (
	MilestoneStreak          MilestoneKind = "streak"
	MilestoneMaxStreak       MilestoneKind = "max_streak"
	MilestoneLeaguePromotion MilestoneKind = "league_promotion"
)

// Milestone identifies an award that must be granted at most once.
// AnchoredOn scopes the award: a streak milestone is anchored on the day the
// streak began, so reaching the same length in a later streak awards again.
// XP is credited in the same write that claims the milestone.
type Milestone struct {
	UserID     string
	Kind       MilestoneKind
	Value      int64
	AnchoredOn time.Time
	XP         int64
}

// StreakReward describes what a current-streak milestone grants
type StreakReward struct {
	Days int
	XP   int64
	Slug string
}

var streakRewards = map[int]StreakReward{
	3:   {Days: 3, XP: 50, Slug: "three_day_streak"},
	7:   {Days: 7, XP: 100, Slug: "one_week_streak"},
	14:  {Days: 14, XP: 200},
	30:  {Days: 30, XP: 500, Slug: "one_month_streak"},
	60:  {Days: 60, XP: 1000},
	100: {Days: 100, XP: 2000, Slug: "century_streak"},
	365: {Days: 365, XP: 5000},
}

var maxStreakMilestones = map[int]struct{}{
	10: {}, 25: {}, 50: {}, 100: {}, 200: {}, 500: {}, 1000: {},
}

// StreakRewardFor returns the reward for a current streak of exactly days
func StreakRewardFor(days int) (StreakReward, bool) {
	r, ok := streakRewards[days]
	return r, ok
}

// IsMaxStreakMilestone reports whether a new personal best of days is celebrated
func IsMaxStreakMilestone(days int) bool {
	_, ok := maxStreakMilestones[days]
	return ok
}

// StreakAnchor returns the first active day of a streak of the given length
// that ends on lastActive.
func StreakAnchor(lastActive time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	return DateOf(lastActive).AddDate(0, 0, -(days - 1))
}

// PersonalBestAnchor is the fixed anchor for longest-streak milestones, which are
// awarded once per user.
var PersonalBestAnchor = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

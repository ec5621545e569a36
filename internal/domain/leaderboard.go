package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// WeekLength is the span covered by one weekly snapshot
const WeekLength = 7 * 24 * time.Hour

// WeekWindow is the half-open interval [Start, End) a weekly snapshot covers
type WeekWindow struct {
	Start time.Time
	End   time.Time
}

// NewWeekWindow returns the seven-day window starting at start
func NewWeekWindow(start time.Time) WeekWindow {
	return WeekWindow{Start: start, End: start.AddDate(0, 0, 7)}
}

// LastDay returns the final calendar day inside the window
func (w WeekWindow) LastDay() time.Time {
	return w.End.AddDate(0, 0, -1)
}

// Key returns a stable identifier for the window, used for cache keys and idempotency
func (w WeekWindow) Key() string {
	return w.Start.Format("2006-01-02")
}

// Ordinal returns the window start as YYYYMMDD
func (w WeekWindow) Ordinal() int64 {
	y, m, d := w.Start.Date()
	return int64(y*10000 + int(m)*100 + d)
}

// ParseWeekStart accepts an RFC3339 timestamp or a bare YYYY-MM-DD date.
// Bare dates are interpreted as midnight in loc.
func ParseWeekStart(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: week_start parameter is required", ErrInvalidWeekStart)
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q is neither RFC3339 nor YYYY-MM-DD", ErrInvalidWeekStart, raw)
}

// PreviousWeekStart returns midnight of the Monday that starts the last completed week
// before now, in loc.
func PreviousWeekStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	sinceMonday := (int(midnight.Weekday()) + 6) % 7
	thisMonday := midnight.AddDate(0, 0, -sinceMonday)
	return thisMonday.AddDate(0, 0, -7)
}

// LeaderboardEntry represents a single row of a weekly leaderboard snapshot
type LeaderboardEntry struct {
	Rank        int64     `json:"rank"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Level       int       `json:"level"`
	League      League    `json:"league"`
	WeeklyXP    int64     `json:"weekly_xp"`
	WeekStart   time.Time `json:"week_start"`
	WeekEnd     time.Time `json:"week_end"`
}

// NewLeaderboardEntry builds an unranked entry for a profile
func NewLeaderboardEntry(p Profile, weeklyXP int64, w WeekWindow) LeaderboardEntry {
	return LeaderboardEntry{
		UserID:      p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Level:       p.Level,
		League:      p.League,
		WeeklyXP:    weeklyXP,
		WeekStart:   w.Start,
		WeekEnd:     w.LastDay(),
	}
}

// RankEntries drops entries without weekly XP, sorts the rest by weekly XP
// descending and assigns ranks from 1. Equal XP keeps input order.
func RankEntries(entries []LeaderboardEntry) []LeaderboardEntry {
	ranked := make([]LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if e.WeeklyXP > 0 {
			ranked = append(ranked, e)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeeklyXP > ranked[j].WeeklyXP
	})
	for i := range ranked {
		ranked[i].Rank = int64(i + 1)
	}
	return ranked
}

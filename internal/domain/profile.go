package domain

import "time"

// DefaultDailyHearts is the hearts maximum used when a profile has none configured
const DefaultDailyHearts = 5

// Profile represents the per-user progression row
type Profile struct {
	ID                 string     `json:"id"`
	Username           string     `json:"username"`
	DisplayName        string     `json:"display_name,omitempty"`
	AvatarURL          string     `json:"avatar_url,omitempty"`
	Level              int        `json:"level"`
	League             League     `json:"league"`
	TotalXP            int64      `json:"total_xp"`
	CurrentStreak      int        `json:"current_streak"`
	MaxStreak          int        `json:"max_streak"`
	LastActiveDate     *time.Time `json:"last_active_date,omitempty"`
	PreviousActiveDate *time.Time `json:"previous_active_date,omitempty"`
	StreakEvaluatedOn  *time.Time `json:"streak_evaluated_on,omitempty"`
	Hearts             int        `json:"hearts"`
	DailyGoalHearts    *int       `json:"daily_goal_hearts,omitempty"`
}

// MarkActive records activity on day. PreviousActiveDate holds the latest
// active day before LastActiveDate. LastActiveDate never moves backwards, but
// an earlier day that arrives late can still fill PreviousActiveDate.
func (p *Profile) MarkActive(day time.Time) {
	day = DateOf(day)
	switch {
	case p.LastActiveDate == nil:
		p.LastActiveDate = &day
	case p.LastActiveDate.Before(day):
		p.PreviousActiveDate = p.LastActiveDate
		p.LastActiveDate = &day
	case day.Before(*p.LastActiveDate):
		if p.PreviousActiveDate == nil || p.PreviousActiveDate.Before(day) {
			p.PreviousActiveDate = &day
		}
	}
}

// LastActiveBefore returns the latest recorded active day strictly before day
func (p *Profile) LastActiveBefore(day time.Time) *time.Time {
	day = DateOf(day)
	if p.LastActiveDate != nil && p.LastActiveDate.Before(day) {
		return p.LastActiveDate
	}
	if p.PreviousActiveDate != nil && p.PreviousActiveDate.Before(day) {
		return p.PreviousActiveDate
	}
	return nil
}

// MaxHearts returns the daily hearts maximum for the profile
func (p *Profile) MaxHearts(fallback int) int {
	if p.DailyGoalHearts != nil && *p.DailyGoalHearts > 0 {
		return *p.DailyGoalHearts
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultDailyHearts
}

// StreakUpdate is the outcome of evaluating one profile's streak for a day
type StreakUpdate struct {
	UserID          string
	CurrentStreak   int
	MaxStreak       int
	Incremented     bool
	Reset           bool
	NewPersonalBest bool
	EvaluatedOn     time.Time
}

// Changed reports whether the update differs from the profile it was computed from
func (u StreakUpdate) Changed() bool {
	return u.Incremented || u.Reset || u.NewPersonalBest
}

// EvaluateStreak computes the streak roll-up for a profile on the given calendar day.
// Only activity before today counts, so the outcome is the same whether today's
// activity arrived before or after the run. A profile whose latest earlier
// activity was yesterday extends its streak and one idle for two or more days
// loses it.
func EvaluateStreak(p Profile, today time.Time) StreakUpdate {
	today = DateOf(today)
	u := StreakUpdate{
		UserID:        p.ID,
		CurrentStreak: p.CurrentStreak,
		MaxStreak:     p.MaxStreak,
		EvaluatedOn:   today,
	}
	last := p.LastActiveBefore(today)
	if last == nil {
		return u
	}

	idle := DaysBetween(*last, today)
	switch {
	case idle == 1:
		if u.CurrentStreak <= 0 {
			u.CurrentStreak = 1
		} else {
			u.CurrentStreak++
		}
		u.Incremented = true
	case idle > 1:
		if u.CurrentStreak != 0 {
			u.Reset = true
		}
		u.CurrentStreak = 0
	}

	if u.CurrentStreak > u.MaxStreak {
		u.MaxStreak = u.CurrentStreak
		u.NewPersonalBest = true
	}
	return u
}

// DateOf returns t's calendar date in t's location as midnight UTC
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Activity types accepted by the achievement processor
const (
	ActivityLessonCompleted    = "lesson_completed"
	ActivityChallengeCompleted = "challenge_completed"
	ActivityStreakMilestone    = "streak_milestone"
	ActivityXPMilestone        = "xp_milestone"
	ActivityPerfectLesson      = "perfect_lesson"
	ActivitySpeedDemon         = "speed_demon"
)

// ActivityEvent is a single user activity reported by a client or the event stream.
// Events carrying the same EventID are applied once.
type ActivityEvent struct {
	EventID      string          `json:"event_id,omitempty"`
	UserID       string          `json:"user_id"`
	ActivityType string          `json:"activity_type"`
	ActivityData json.RawMessage `json:"activity_data,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at,omitempty"`
}

// Validate checks the fields every event must carry
func (e ActivityEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" || strings.TrimSpace(e.ActivityType) == "" {
		return fmt.Errorf("%w: user_id and activity_type are required", ErrInvalidRequest)
	}
	return nil
}

// ActivityWrite is every counter and activity change a single event makes.
// Stores apply it atomically and at most once per non-empty EventID.
type ActivityWrite struct {
	EventID  string
	UserID   string
	ActiveOn *time.Time
	Deltas   map[string]int64
}

// DecodeData unmarshals the activity payload into v. A missing payload leaves v untouched.
func (e ActivityEvent) DecodeData(v any) error {
	data := bytes.TrimSpace(e.ActivityData)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: activity_data for %s: %v", ErrInvalidRequest, e.ActivityType, err)
	}
	return nil
}

// LessonCompletedData is the payload of a lesson_completed event
type LessonCompletedData struct {
	LessonID  string   `json:"lesson_id"`
	Score     float64  `json:"score"`
	XPEarned  int64    `json:"xp_earned"`
	TimeTaken *float64 `json:"time_taken,omitempty"`
}

// Perfect reports whether the lesson was completed with a full score
func (d LessonCompletedData) Perfect() bool {
	return d.Score >= 100
}

// Fast reports whether the lesson was completed in under thirty seconds
func (d LessonCompletedData) Fast() bool {
	return d.TimeTaken != nil && *d.TimeTaken > 0 && *d.TimeTaken < 30
}

// ChallengeCompletedData is the payload of a challenge_completed event
type ChallengeCompletedData struct {
	ChallengeType string  `json:"challenge_type"`
	Difficulty    string  `json:"difficulty"`
	Score         float64 `json:"score"`
}

// Mastered reports a hard challenge finished with a score of at least 90
func (d ChallengeCompletedData) Mastered() bool {
	return strings.EqualFold(d.Difficulty, "hard") && d.Score >= 90
}

// StreakMilestoneData is the payload of a streak_milestone event
type StreakMilestoneData struct {
	StreakDays int `json:"streak_days"`
}

// XPMilestoneData is the payload of an xp_milestone event
type XPMilestoneData struct {
	TotalXP int64 `json:"total_xp"`
}

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pyquest-jobs/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var occurredAt = time.Date(2025, 3, 12, 15, 4, 5, 0, time.UTC)

func newTestProcessor(f *fixture) *Processor {
	return NewProcessor(f.store, f.unlocker, f.milestones, time.UTC, testLogger())
}

func event(userID, activityType string, data any) domain.ActivityEvent {
	e := domain.ActivityEvent{
		UserID:       userID,
		ActivityType: activityType,
		OccurredAt:   occurredAt,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			panic(err)
		}
		e.ActivityData = raw
	}
	return e
}

func TestProcess_FirstLesson(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1", Username: "ada"})
	p := newTestProcessor(f)

	result, err := p.Process(context.Background(), event("u1", domain.ActivityLessonCompleted, map[string]any{
		"lesson_id":  "l-1",
		"score":      100,
		"xp_earned":  20,
		"time_taken": 12.5,
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"first_steps"}, result.Unlocked)
	assert.Equal(t, map[string]int64{
		domain.MetricLessonsCompleted: 1,
		domain.MetricPerfectLessons:   1,
		domain.MetricFastLearner:      1,
	}, f.store.progress["u1"])

	profile := f.store.profile("u1")
	require.NotNil(t, profile.LastActiveDate)
	assert.Equal(t, date(2025, 3, 12), *profile.LastActiveDate)
	assert.Equal(t, int64(10), profile.TotalXP)

	notes := f.store.notificationsFor("u1")
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotificationAchievement, notes[0].Type)
	assert.Len(t, f.hub.notifications, 1)
}

func TestProcess_LessonThresholdAndCatalogPass(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	f.store.progress["u1"] = map[string]int64{domain.MetricLessonsCompleted: 9}
	p := newTestProcessor(f)

	result, err := p.Process(context.Background(), event("u1", domain.ActivityLessonCompleted, map[string]any{"score": 70}))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"dedicated_learner", "first_steps"}, result.Unlocked)
	assert.Equal(t, int64(60), f.store.profile("u1").TotalXP)
	assert.Zero(t, f.store.progress["u1"][domain.MetricPerfectLessons])
}

func TestProcess_RepeatedEventUnlocksOnce(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	p := newTestProcessor(f)
	ev := event("u1", domain.ActivityLessonCompleted, map[string]any{"score": 50})

	first, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	second, err := p.Process(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, []string{"first_steps"}, first.Unlocked)
	assert.Empty(t, second.Unlocked)
	assert.Equal(t, []int64{10}, f.store.xpAwards["u1"])
	assert.Equal(t, int64(2), f.store.progress["u1"][domain.MetricLessonsCompleted])
}

func TestProcess_RetryAfterFailedWriteCountsOnce(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	f.store.progress["u1"] = map[string]int64{domain.MetricLessonsCompleted: 9}
	f.store.failApply["u1"] = 1
	p := newTestProcessor(f)
	ev := event("u1", domain.ActivityLessonCompleted, map[string]any{"score": 100})
	ev.EventID = "evt-1"

	_, err := p.Process(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, map[string]int64{domain.MetricLessonsCompleted: 9}, f.store.progress["u1"])
	assert.Nil(t, f.store.profile("u1").LastActiveDate)

	result, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Contains(t, result.Unlocked, "dedicated_learner")
	assert.Equal(t, map[string]int64{
		domain.MetricLessonsCompleted: 10,
		domain.MetricPerfectLessons:   1,
	}, f.store.progress["u1"])
}

func TestProcess_DuplicateEventIDAppliedOnce(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	f.store.progress["u1"] = map[string]int64{domain.MetricSpeedDemon: 9}
	p := newTestProcessor(f)
	ev := event("u1", domain.ActivitySpeedDemon, nil)
	ev.EventID = "activity-events/3/118"

	first, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Contains(t, first.Unlocked, "supersonic")
	assert.False(t, first.Duplicate)

	second, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Empty(t, second.Unlocked)
	assert.Equal(t, int64(10), f.store.progress["u1"][domain.MetricSpeedDemon])

	// a different event still counts
	ev.EventID = "activity-events/3/119"
	third, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, third.Duplicate)
	assert.Equal(t, int64(11), f.store.progress["u1"][domain.MetricSpeedDemon])
}

func TestProcess_ChallengeCompleted(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	p := newTestProcessor(f)

	result, err := p.Process(context.Background(), event("u1", domain.ActivityChallengeCompleted, map[string]any{
		"challenge_type": "algorithms",
		"difficulty":     "HARD",
		"score":          95,
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{domain.SlugFirstChallenge}, result.Unlocked)
	assert.Equal(t, map[string]int64{
		domain.MetricChallengesCompleted: 1,
		domain.MetricChallengeMaster:     1,
		"algorithms_challenges":          1,
	}, f.store.progress["u1"])
	assert.NotNil(t, f.store.profile("u1").LastActiveDate)
}

func TestProcess_ChallengeWithoutType(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	f.store.progress["u1"] = map[string]int64{domain.MetricChallengesCompleted: 3}
	p := newTestProcessor(f)

	result, err := p.Process(context.Background(), event("u1", domain.ActivityChallengeCompleted, map[string]any{
		"difficulty": "easy",
		"score":      100,
	}))
	require.NoError(t, err)

	// the catalog pass still catches the first challenge achievement
	assert.Equal(t, []string{domain.SlugFirstChallenge}, result.Unlocked)
	assert.Equal(t, map[string]int64{domain.MetricChallengesCompleted: 4}, f.store.progress["u1"])
}

func TestProcess_StreakMilestone(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	p := newTestProcessor(f)
	ev := event("u1", domain.ActivityStreakMilestone, map[string]any{"streak_days": 7})

	result, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, result.Milestone)
	assert.True(t, f.store.isUnlocked("u1", "one_week_streak"))
	assert.True(t, f.store.isUnlocked("u1", "century_club"))
	assert.Equal(t, int64(160), f.store.profile("u1").TotalXP)

	again, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, again.Milestone)
	assert.Equal(t, int64(160), f.store.profile("u1").TotalXP)
}

func TestProcess_StreakMilestoneNotOnTable(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	p := newTestProcessor(f)

	result, err := p.Process(context.Background(), event("u1", domain.ActivityStreakMilestone, map[string]any{"streak_days": 8}))
	require.NoError(t, err)
	assert.False(t, result.Milestone)
	assert.Empty(t, f.store.notificationsFor("u1"))
}

func TestProcess_XPMilestoneUsesStoredTotal(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1", TotalXP: 600})
	p := newTestProcessor(f)

	result, err := p.Process(context.Background(), event("u1", domain.ActivityXPMilestone, map[string]any{"total_xp": 5000}))
	require.NoError(t, err)

	assert.Equal(t, []string{"century_club", "xp_expert"}, result.Unlocked)
	assert.False(t, f.store.isUnlocked("u1", "xp_legend"))
	assert.Equal(t, int64(635), f.store.profile("u1").TotalXP)
}

func TestProcess_PerfectLesson(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	f.store.progress["u1"] = map[string]int64{domain.MetricPerfectLessons: 4}
	p := newTestProcessor(f)

	result, err := p.Process(context.Background(), event("u1", domain.ActivityPerfectLesson, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"perfectionist"}, result.Unlocked)
}

func TestProcess_SpeedDemon(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	f.store.progress["u1"] = map[string]int64{domain.MetricSpeedDemon: 9}
	p := newTestProcessor(f)

	result, err := p.Process(context.Background(), event("u1", domain.ActivitySpeedDemon, nil))
	require.NoError(t, err)
	// the 100 XP reward also crosses the first total XP requirement
	assert.Equal(t, []string{"supersonic", "century_club"}, result.Unlocked)
	assert.False(t, f.store.isUnlocked("u1", "lightning_fast"))
}

func TestProcess_UnknownTypeIgnored(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1", TotalXP: 5000})
	p := newTestProcessor(f)

	result, err := p.Process(context.Background(), event("u1", "lesson_started", nil))
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.Empty(t, result.Unlocked)
	assert.Empty(t, f.store.progress["u1"])
}

func TestProcess_InvalidEvents(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "u1"})
	p := newTestProcessor(f)

	_, err := p.Process(context.Background(), event("", domain.ActivityLessonCompleted, nil))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	bad := event("u1", domain.ActivityLessonCompleted, nil)
	bad.ActivityData = json.RawMessage(`{"score":"full"}`)
	_, err = p.Process(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Empty(t, f.store.progress["u1"])
}

func TestProcess_MissingProfile(t *testing.T) {
	f := newFixture()
	p := newTestProcessor(f)

	_, err := p.Process(context.Background(), event("ghost", domain.ActivityLessonCompleted, map[string]any{"score": 100}))
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
	assert.Empty(t, f.store.progress["ghost"])
}

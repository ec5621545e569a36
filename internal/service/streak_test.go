package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyquest-jobs/internal/config"
	"github.com/pyquest-jobs/internal/domain"
)

type recordingWeekly struct {
	mu    sync.Mutex
	weeks []time.Time
}

func (r *recordingWeekly) Run(ctx context.Context, weekStart time.Time) (WeeklyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weeks = append(r.weeks, weekStart)
	return WeeklyResult{WeekStart: weekStart.Format("2006-01-02")}, nil
}

func jobsConfig() *config.JobsConfig {
	return &config.JobsConfig{
		DefaultHearts:  5,
		Concurrency:    4,
		NotifyTopN:     10,
		WeeklyOnMonday: true,
	}
}

// wednesday is a mid-week run time
var wednesday = time.Date(2025, 3, 12, 0, 5, 0, 0, time.UTC)

func seedStreakProfiles(s *memStore) {
	s.addProfile(domain.Profile{ID: "a", CurrentStreak: 2, MaxStreak: 2, LastActiveDate: datePtr(2025, 3, 11)})
	s.addProfile(domain.Profile{ID: "b", CurrentStreak: 5, MaxStreak: 5, LastActiveDate: datePtr(2025, 3, 9)})
	s.addProfile(domain.Profile{ID: "c", CurrentStreak: 4, MaxStreak: 6, LastActiveDate: datePtr(2025, 3, 12)})
	s.addProfile(domain.Profile{ID: "d"})
	s.addProfile(domain.Profile{ID: "e", LastActiveDate: datePtr(2025, 3, 11)})
}

func TestStreakJob_Run(t *testing.T) {
	f := newFixture()
	seedStreakProfiles(f.store)
	weekly := &recordingWeekly{}
	job := NewStreakJob(f.store, f.milestones, weekly, jobsConfig(), time.UTC, testLogger())

	result, err := job.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-12", result.Date)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 4, result.Profiles.Total)
	assert.Equal(t, 4, result.Profiles.Processed)
	assert.Zero(t, result.Profiles.Failed)
	assert.Equal(t, int64(2), result.Incremented)
	assert.Equal(t, int64(1), result.Reset)
	assert.Equal(t, int64(1), result.Milestones)
	assert.Equal(t, int64(5), result.HeartsReset)
	assert.Nil(t, result.Weekly)
	assert.Empty(t, weekly.weeks)

	a := f.store.profile("a")
	assert.Equal(t, 3, a.CurrentStreak)
	assert.Equal(t, 3, a.MaxStreak)
	assert.True(t, f.store.isUnlocked("a", "three_day_streak"))
	assert.Equal(t, []int64{50, 25}, f.store.xpAwards["a"])

	b := f.store.profile("b")
	assert.Zero(t, b.CurrentStreak)
	assert.Equal(t, 5, b.MaxStreak)
	assert.Empty(t, f.store.notificationsFor("b"))

	c := f.store.profile("c")
	assert.Equal(t, 4, c.CurrentStreak)
	assert.Equal(t, 6, c.MaxStreak)

	assert.Equal(t, 1, f.store.profile("e").CurrentStreak)
	assert.Zero(t, f.store.profile("d").CurrentStreak)
}

func TestStreakJob_RerunSameDayIsNoop(t *testing.T) {
	f := newFixture()
	seedStreakProfiles(f.store)
	job := NewStreakJob(f.store, f.milestones, nil, jobsConfig(), time.UTC, testLogger())

	_, err := job.Run(context.Background(), wednesday)
	require.NoError(t, err)
	second, err := job.Run(context.Background(), wednesday.Add(6*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 4, second.Profiles.Skipped)
	assert.Zero(t, second.Profiles.Processed)
	assert.Zero(t, second.Incremented)
	assert.Equal(t, 3, f.store.profile("a").CurrentStreak)
	assert.Equal(t, []int64{50, 25}, f.store.xpAwards["a"])
}

func TestStreakJob_FailingProfileIsIsolated(t *testing.T) {
	f := newFixture()
	seedStreakProfiles(f.store)
	f.store.failUpdate["b"] = true
	job := NewStreakJob(f.store, f.milestones, nil, jobsConfig(), time.UTC, testLogger())

	result, err := job.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Profiles.Failed)
	assert.Equal(t, 3, result.Profiles.Processed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "b")
	assert.Equal(t, 3, f.store.profile("a").CurrentStreak)
	assert.Equal(t, 5, f.store.profile("b").CurrentStreak)
}

func TestStreakJob_ListFailure(t *testing.T) {
	f := newFixture()
	f.store.failList = true
	job := NewStreakJob(f.store, f.milestones, nil, jobsConfig(), time.UTC, testLogger())

	_, err := job.Run(context.Background(), wednesday)
	assert.Error(t, err)
}

func TestStreakJob_PersonalBest(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "p", CurrentStreak: 9, MaxStreak: 9, LastActiveDate: datePtr(2025, 3, 11)})
	job := NewStreakJob(f.store, f.milestones, nil, jobsConfig(), time.UTC, testLogger())

	result, err := job.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.PersonalBests)
	assert.Zero(t, result.Milestones)
	notes := f.store.notificationsFor("p")
	require.Len(t, notes, 1)
	assert.Equal(t, "personal_best", notes[0].Metadata["type"])
}

func TestStreakJob_ResetsHeartsToDailyGoal(t *testing.T) {
	f := newFixture()
	goal := 3
	f.store.addProfile(domain.Profile{ID: "h1", Hearts: 0, DailyGoalHearts: &goal})
	f.store.addProfile(domain.Profile{ID: "h2", Hearts: 1})
	job := NewStreakJob(f.store, f.milestones, nil, jobsConfig(), time.UTC, testLogger())

	result, err := job.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.HeartsReset)
	assert.Equal(t, 3, f.store.profile("h1").Hearts)
	assert.Equal(t, 5, f.store.profile("h2").Hearts)
}

func TestStreakJob_MondayRunsWeekly(t *testing.T) {
	f := newFixture()
	weekly := &recordingWeekly{}
	job := NewStreakJob(f.store, f.milestones, weekly, jobsConfig(), time.UTC, testLogger())

	monday := time.Date(2025, 3, 17, 0, 5, 0, 0, time.UTC)
	result, err := job.Run(context.Background(), monday)
	require.NoError(t, err)

	require.Len(t, weekly.weeks, 1)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), weekly.weeks[0])
	require.NotNil(t, result.Weekly)
	assert.Equal(t, "2025-03-10", result.Weekly.WeekStart)
}

func TestStreakJob_UsesConfiguredZone(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*60*60)
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "z", CurrentStreak: 1, MaxStreak: 1, LastActiveDate: datePtr(2025, 3, 10)})
	job := NewStreakJob(f.store, f.milestones, nil, jobsConfig(), loc, testLogger())

	// 2025-03-12 03:00 UTC is still 2025-03-11 in UTC-8
	result, err := job.Run(context.Background(), time.Date(2025, 3, 12, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "2025-03-11", result.Date)
	assert.Equal(t, 2, f.store.profile("z").CurrentStreak)
}

func TestStreakJob_ActivityBeforeRunCountsOnce(t *testing.T) {
	f := newFixture()
	f.store.addProfile(domain.Profile{ID: "early", CurrentStreak: 2, MaxStreak: 2, LastActiveDate: datePtr(2025, 3, 11)})
	f.store.addProfile(domain.Profile{ID: "late", CurrentStreak: 2, MaxStreak: 2, LastActiveDate: datePtr(2025, 3, 11)})
	p := newTestProcessor(f)
	job := NewStreakJob(f.store, f.milestones, nil, jobsConfig(), time.UTC, testLogger())

	lesson := func(userID string, at time.Time) {
		ev := event(userID, domain.ActivityLessonCompleted, map[string]any{"score": 80})
		ev.OccurredAt = at
		_, err := p.Process(context.Background(), ev)
		require.NoError(t, err)
	}

	// the 12th: one user is active before the run, the other after it
	lesson("early", time.Date(2025, 3, 12, 0, 1, 0, 0, time.UTC))
	first, err := job.Run(context.Background(), time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Incremented)
	lesson("late", time.Date(2025, 3, 12, 21, 0, 0, 0, time.UTC))

	second, err := job.Run(context.Background(), time.Date(2025, 3, 13, 0, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Incremented)

	for _, id := range []string{"early", "late"} {
		got := f.store.profile(id)
		assert.Equal(t, 4, got.CurrentStreak, id)
		assert.Equal(t, 4, got.MaxStreak, id)
		assert.True(t, f.store.isUnlocked(id, "three_day_streak"), id)
	}
}

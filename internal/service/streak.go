package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pyquest-jobs/internal/batch"
	"github.com/pyquest-jobs/internal/config"
	"github.com/pyquest-jobs/internal/domain"
)

// WeeklyRunner builds the weekly leaderboard for a week
type WeeklyRunner interface {
	Run(ctx context.Context, weekStart time.Time) (WeeklyResult, error)
}

// StreakResult summarizes one run of the streak maintenance job
type StreakResult struct {
	RunID         string        `json:"run_id"`
	Date          string        `json:"date"`
	Profiles      batch.Summary `json:"profiles"`
	Incremented   int64         `json:"incremented"`
	Reset         int64         `json:"reset"`
	Milestones    int64         `json:"milestones"`
	PersonalBests int64         `json:"personal_bests"`
	HeartsReset   int64         `json:"hearts_reset"`
	Weekly        *WeeklyResult `json:"weekly,omitempty"`
	WeeklyError   string        `json:"weekly_error,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
}

type streakCounters struct {
	incremented   atomic.Int64
	reset         atomic.Int64
	milestones    atomic.Int64
	personalBests atomic.Int64
}

// StreakJob rolls every active user's streak forward once per day and refills hearts
type StreakJob struct {
	profiles   ProfileStore
	milestones *Milestones
	weekly     WeeklyRunner
	config     *config.JobsConfig
	loc        *time.Location
	logger     *slog.Logger

	mu sync.Mutex
}

// NewStreakJob creates a new streak maintenance job. weekly may be nil.
func NewStreakJob(
	profiles ProfileStore,
	milestones *Milestones,
	weekly WeeklyRunner,
	cfg *config.JobsConfig,
	loc *time.Location,
	logger *slog.Logger,
) *StreakJob {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakJob{
		profiles:   profiles,
		milestones: milestones,
		weekly:     weekly,
		config:     cfg,
		loc:        loc,
		logger:     logger,
	}
}

// Run evaluates streaks for the calendar day of now in the job's time zone.
// Profiles already evaluated that day are skipped, so running twice is safe.
func (j *StreakJob) Run(ctx context.Context, now time.Time) (StreakResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	local := now.In(j.loc)
	today := domain.DateOf(local)
	result := StreakResult{
		RunID: uuid.NewString(),
		Date:  today.Format("2006-01-02"),
	}
	logger := j.logger.With("job", "streak", "run_id", result.RunID, "date", result.Date)

	profiles, err := j.profiles.ListActiveProfiles(ctx)
	if err != nil {
		return result, fmt.Errorf("fetching active profiles: %w", err)
	}

	var counters streakCounters
	result.Profiles = batch.Run(ctx, batch.Options{
		Limit:     j.config.Concurrency,
		MaxErrors: j.config.MaxErrorSamples,
	}, profiles, func(ctx context.Context, p domain.Profile) error {
		return j.evaluate(ctx, p, today, &counters)
	})
	result.Incremented = counters.incremented.Load()
	result.Reset = counters.reset.Load()
	result.Milestones = counters.milestones.Load()
	result.PersonalBests = counters.personalBests.Load()
	result.Errors = result.Profiles.ErrorStrings()

	for _, err := range result.Profiles.Errors {
		logger.Error("streak update failed", "error", err)
	}

	hearts, err := j.profiles.ResetHearts(ctx, j.config.DefaultHearts)
	if err != nil {
		return result, fmt.Errorf("resetting hearts: %w", err)
	}
	result.HeartsReset = hearts

	if j.config.WeeklyOnMonday && j.weekly != nil && local.Weekday() == time.Monday {
		weekStart := domain.PreviousWeekStart(now, j.loc)
		weekly, err := j.weekly.Run(ctx, weekStart)
		if err != nil {
			logger.Error("weekly leaderboard failed", "week_start", weekStart.Format("2006-01-02"), "error", err)
			result.WeeklyError = err.Error()
		} else {
			result.Weekly = &weekly
		}
	}

	logger.Info("streak maintenance completed",
		"profiles", result.Profiles.Total,
		"processed", result.Profiles.Processed,
		"skipped", result.Profiles.Skipped,
		"failed", result.Profiles.Failed,
		"incremented", result.Incremented,
		"reset", result.Reset,
		"hearts_reset", result.HeartsReset,
		"duration", result.Profiles.Duration,
	)
	return result, nil
}

func (j *StreakJob) evaluate(ctx context.Context, p domain.Profile, today time.Time, counters *streakCounters) error {
	if p.StreakEvaluatedOn != nil && !domain.DateOf(*p.StreakEvaluatedOn).Before(today) {
		return batch.ErrSkip
	}

	u := domain.EvaluateStreak(p, today)
	applied, err := j.profiles.UpdateStreak(ctx, u)
	if err != nil {
		return fmt.Errorf("updating streak for %s: %w", p.ID, err)
	}
	if !applied {
		return batch.ErrSkip
	}

	var errs []error
	if u.Incremented {
		counters.incremented.Add(1)
		anchor := domain.StreakAnchor(*p.LastActiveBefore(today), u.CurrentStreak)
		awarded, err := j.milestones.AwardStreak(ctx, p.ID, u.CurrentStreak, anchor)
		if awarded {
			counters.milestones.Add(1)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if u.Reset {
		counters.reset.Add(1)
	}
	if u.NewPersonalBest {
		awarded, err := j.milestones.AwardPersonalBest(ctx, p.ID, u.MaxStreak)
		if awarded {
			counters.personalBests.Add(1)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("streak rewards for %s: %w", p.ID, err)
	}
	return nil
}

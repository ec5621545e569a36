package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pyquest-jobs/internal/domain"
)

// ProcessResult reports what one activity event changed
type ProcessResult struct {
	UserID       string   `json:"user_id"`
	ActivityType string   `json:"activity_type"`
	Unlocked     []string `json:"unlocked"`
	Milestone    bool     `json:"milestone,omitempty"`
	Ignored      bool     `json:"ignored,omitempty"`
	Duplicate    bool     `json:"duplicate,omitempty"`
}

// Processor applies activity events to progress counters and unlocks achievements
type Processor struct {
	profiles     ProfileStore
	progress     ProgressStore
	achievements AchievementStore
	unlocker     *Unlocker
	milestones   *Milestones
	loc          *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

// NewProcessor creates a new achievement processor
func NewProcessor(
	store Store,
	unlocker *Unlocker,
	milestones *Milestones,
	loc *time.Location,
	logger *slog.Logger,
) *Processor {
	if loc == nil {
		loc = time.UTC
	}
	return &Processor{
		profiles:     store,
		progress:     store,
		achievements: store,
		unlocker:     unlocker,
		milestones:   milestones,
		loc:          loc,
		logger:       logger,
		now:          time.Now,
	}
}

// Process handles a single activity event. The event's counter and activity
// writes land together or not at all, so a failed call can be retried; an
// event whose id was already applied is reported as a duplicate. Individual
// unlock failures are logged and skipped.
func (p *Processor) Process(ctx context.Context, e domain.ActivityEvent) (ProcessResult, error) {
	result := ProcessResult{
		UserID:       e.UserID,
		ActivityType: e.ActivityType,
		Unlocked:     []string{},
	}
	if err := e.Validate(); err != nil {
		return result, err
	}

	at := e.OccurredAt
	if at.IsZero() {
		at = p.now()
	}
	today := domain.DateOf(at.In(p.loc))

	var err error
	switch e.ActivityType {
	case domain.ActivityLessonCompleted:
		err = p.lessonCompleted(ctx, e, today, &result)
	case domain.ActivityChallengeCompleted:
		err = p.challengeCompleted(ctx, e, today, &result)
	case domain.ActivityStreakMilestone:
		err = p.streakMilestone(ctx, e, today, &result)
	case domain.ActivityXPMilestone:
		err = p.xpMilestone(ctx, e, &result)
	case domain.ActivityPerfectLesson:
		err = p.countAndUnlock(ctx, e, domain.MetricPerfectLessons, domain.PerfectLessonUnlocks, &result)
	case domain.ActivitySpeedDemon:
		err = p.countAndUnlock(ctx, e, domain.MetricSpeedDemon, domain.SpeedDemonUnlocks, &result)
	default:
		p.logger.Warn("ignoring unknown activity type",
			"user_id", e.UserID,
			"activity_type", e.ActivityType,
		)
		result.Ignored = true
		return result, nil
	}
	if err != nil {
		return result, err
	}
	if result.Duplicate {
		return result, nil
	}

	if err := p.evaluateCatalog(ctx, e.UserID, &result); err != nil {
		p.logger.Error("achievement catalog pass failed",
			"user_id", e.UserID,
			"activity_type", e.ActivityType,
			"error", err,
		)
	}
	return result, nil
}

func (p *Processor) lessonCompleted(ctx context.Context, e domain.ActivityEvent, today time.Time, result *ProcessResult) error {
	var data domain.LessonCompletedData
	if err := e.DecodeData(&data); err != nil {
		return err
	}

	deltas := map[string]int64{domain.MetricLessonsCompleted: 1}
	if data.Perfect() {
		deltas[domain.MetricPerfectLessons] = 1
	}
	if data.Fast() {
		deltas[domain.MetricFastLearner] = 1
	}
	counts, err := p.apply(ctx, e, &today, deltas, result)
	if err != nil || result.Duplicate {
		return err
	}

	p.unlockSlugs(ctx, e.UserID, domain.ExactMatch(domain.LessonCountUnlocks, counts[domain.MetricLessonsCompleted]), result)
	return nil
}

func (p *Processor) challengeCompleted(ctx context.Context, e domain.ActivityEvent, today time.Time, result *ProcessResult) error {
	var data domain.ChallengeCompletedData
	if err := e.DecodeData(&data); err != nil {
		return err
	}

	deltas := map[string]int64{domain.MetricChallengesCompleted: 1}
	if data.Mastered() {
		deltas[domain.MetricChallengeMaster] = 1
	}
	if data.ChallengeType != "" {
		deltas[domain.ChallengeTypeMetric(data.ChallengeType)] = 1
	}
	counts, err := p.apply(ctx, e, &today, deltas, result)
	if err != nil || result.Duplicate {
		return err
	}

	if counts[domain.MetricChallengesCompleted] == 1 {
		p.unlockSlugs(ctx, e.UserID, []string{domain.SlugFirstChallenge}, result)
	}
	return nil
}

func (p *Processor) streakMilestone(ctx context.Context, e domain.ActivityEvent, today time.Time, result *ProcessResult) error {
	var data domain.StreakMilestoneData
	if err := e.DecodeData(&data); err != nil {
		return err
	}
	if data.StreakDays <= 0 {
		return nil
	}

	awarded, err := p.milestones.AwardStreak(ctx, e.UserID, data.StreakDays, domain.StreakAnchor(today, data.StreakDays))
	result.Milestone = awarded
	if err != nil {
		if !awarded {
			return err
		}
		p.logger.Error("streak milestone partially applied",
			"user_id", e.UserID,
			"streak_days", data.StreakDays,
			"error", err,
		)
	}
	return nil
}

// xpMilestone never trusts the reported total beyond what the profile holds
func (p *Processor) xpMilestone(ctx context.Context, e domain.ActivityEvent, result *ProcessResult) error {
	var data domain.XPMilestoneData
	if err := e.DecodeData(&data); err != nil {
		return err
	}
	profile, err := p.profiles.GetProfile(ctx, e.UserID)
	if err != nil {
		return err
	}

	total := min(data.TotalXP, profile.TotalXP)
	p.unlockSlugs(ctx, e.UserID, domain.AtLeast(domain.XPMilestoneUnlocks, total), result)
	return nil
}

func (p *Processor) countAndUnlock(ctx context.Context, e domain.ActivityEvent, metric string, table []domain.Threshold, result *ProcessResult) error {
	counts, err := p.apply(ctx, e, nil, map[string]int64{metric: 1}, result)
	if err != nil || result.Duplicate {
		return err
	}
	p.unlockSlugs(ctx, e.UserID, domain.ExactMatch(table, counts[metric]), result)
	return nil
}

// apply stores the event's writes, marking the user active on activeOn when set
func (p *Processor) apply(ctx context.Context, e domain.ActivityEvent, activeOn *time.Time, deltas map[string]int64, result *ProcessResult) (map[string]int64, error) {
	counts, applied, err := p.progress.ApplyActivity(ctx, domain.ActivityWrite{
		EventID:  e.EventID,
		UserID:   e.UserID,
		ActiveOn: activeOn,
		Deltas:   deltas,
	})
	if err != nil {
		return nil, fmt.Errorf("applying %s for %s: %w", e.ActivityType, e.UserID, err)
	}
	if !applied {
		p.logger.Info("skipping already applied activity",
			"event_id", e.EventID,
			"user_id", e.UserID,
			"activity_type", e.ActivityType,
		)
		result.Duplicate = true
	}
	return counts, nil
}

func (p *Processor) unlockSlugs(ctx context.Context, userID string, slugs []string, result *ProcessResult) {
	for _, slug := range slugs {
		unlocked, err := p.unlocker.UnlockBySlug(ctx, userID, slug)
		if err != nil {
			p.logger.Error("failed to unlock achievement",
				"user_id", userID,
				"achievement", slug,
				"error", err,
			)
		}
		if unlocked {
			result.Unlocked = append(result.Unlocked, slug)
		}
	}
}

// evaluateCatalog re-checks every requirement-bearing achievement against the
// user's current profile and counters
func (p *Processor) evaluateCatalog(ctx context.Context, userID string, result *ProcessResult) error {
	catalog, err := p.achievements.ListAchievements(ctx)
	if err != nil {
		return err
	}
	profile, err := p.profiles.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	progress, err := p.progress.ListProgress(ctx, userID)
	if err != nil {
		return err
	}
	owned, err := p.achievements.ListUnlockedAchievementIDs(ctx, userID)
	if err != nil {
		return err
	}

	for _, a := range catalog {
		if _, ok := owned[a.ID]; ok {
			continue
		}
		if !domain.RequirementMet(a, *profile, progress) {
			continue
		}
		unlocked, err := p.unlocker.Unlock(ctx, userID, a)
		if err != nil {
			p.logger.Error("failed to unlock achievement",
				"user_id", userID,
				"achievement", a.Slug,
				"error", err,
			)
		}
		if unlocked {
			result.Unlocked = append(result.Unlocked, a.Slug)
		}
	}
	return nil
}

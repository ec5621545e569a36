package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pyquest-jobs/internal/batch"
	"github.com/pyquest-jobs/internal/config"
	"github.com/pyquest-jobs/internal/domain"
)

// DefaultNotifyTopN is how many leaders get a weekly result notification
const DefaultNotifyTopN = 10

// WeeklyResult summarizes one weekly leaderboard run
type WeeklyResult struct {
	RunID      string        `json:"run_id"`
	WeekStart  string        `json:"week_start"`
	WeekEnd    string        `json:"week_end"`
	Profiles   batch.Summary `json:"profiles"`
	Ranked     int           `json:"ranked"`
	Stored     int64         `json:"stored"`
	Cached     bool          `json:"cached"`
	Promotions int           `json:"promotions"`
	Notified   int           `json:"notified"`
	Errors     []string      `json:"errors,omitempty"`
}

// WeeklyJob ranks users by the XP they earned in a week and stores the snapshot
type WeeklyJob struct {
	store    Store
	cache    SnapshotCache
	hub      Broadcaster
	notifier *Notifier
	config   *config.JobsConfig
	cacheTTL time.Duration
	logger   *slog.Logger

	mu sync.Mutex
}

// NewWeeklyJob creates a new weekly leaderboard job. cache may be nil.
func NewWeeklyJob(
	store Store,
	cache SnapshotCache,
	notifier *Notifier,
	cfg *config.JobsConfig,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *WeeklyJob {
	return &WeeklyJob{
		store:    store,
		cache:    cache,
		notifier: notifier,
		config:   cfg,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// SetHub sets the hub leaderboard updates are broadcast to
func (j *WeeklyJob) SetHub(hub Broadcaster) {
	j.hub = hub
}

// Run builds the snapshot for the seven days starting at weekStart, replacing
// any snapshot already stored for that week.
func (j *WeeklyJob) Run(ctx context.Context, weekStart time.Time) (WeeklyResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	w := domain.NewWeekWindow(weekStart)
	result := WeeklyResult{
		RunID:     uuid.NewString(),
		WeekStart: w.Key(),
		WeekEnd:   w.LastDay().Format("2006-01-02"),
	}
	logger := j.logger.With("job", "weekly_leaderboard", "run_id", result.RunID, "week_start", result.WeekStart)

	profiles, err := j.store.ListProfiles(ctx)
	if err != nil {
		return result, fmt.Errorf("fetching profiles: %w", err)
	}

	type slot struct {
		index   int
		profile domain.Profile
	}
	slots := make([]slot, len(profiles))
	for i, p := range profiles {
		slots[i] = slot{index: i, profile: p}
	}

	// each goroutine writes only its own index
	weekly := make([]int64, len(profiles))
	result.Profiles = batch.Run(ctx, batch.Options{
		Limit:     j.config.Concurrency,
		MaxErrors: j.config.MaxErrorSamples,
	}, slots, func(ctx context.Context, s slot) error {
		xp, err := j.store.WeeklyXP(ctx, s.profile.ID, w)
		if err != nil {
			return fmt.Errorf("weekly xp for %s: %w", s.profile.ID, err)
		}
		weekly[s.index] = xp
		return nil
	})
	result.Errors = result.Profiles.ErrorStrings()
	for _, err := range result.Profiles.Errors {
		logger.Error("weekly xp calculation failed", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("weekly leaderboard canceled: %w", err)
	}
	// a partial ranking must not replace the stored one or drive promotions
	if result.Profiles.Failed > 0 || result.Profiles.Canceled > 0 {
		return result, fmt.Errorf("weekly leaderboard incomplete: %d of %d profiles failed: %w",
			result.Profiles.Failed+result.Profiles.Canceled, result.Profiles.Total, result.Profiles.Err())
	}

	byID := make(map[string]domain.Profile, len(profiles))
	entries := make([]domain.LeaderboardEntry, 0, len(profiles))
	for i, p := range profiles {
		byID[p.ID] = p
		entries = append(entries, domain.NewLeaderboardEntry(p, weekly[i], w))
	}
	ranked := domain.RankEntries(entries)
	result.Ranked = len(ranked)

	stored, err := j.store.ReplaceWeeklySnapshot(ctx, w, ranked)
	if err != nil {
		return result, fmt.Errorf("storing weekly snapshot: %w", err)
	}
	result.Stored = stored

	if j.cache != nil {
		if err := j.cache.StoreWeekly(ctx, w, ranked, j.cacheTTL); err != nil {
			logger.Warn("failed to cache weekly snapshot", "error", err)
		} else {
			result.Cached = true
		}
	}
	if j.hub != nil {
		j.hub.BroadcastWeeklyLeaderboard(w.Key(), ranked)
	}

	for _, e := range ranked {
		promoted, err := j.promote(ctx, byID[e.UserID], e, w)
		if promoted {
			result.Promotions++
		}
		if err != nil {
			logger.Error("league promotion failed", "user_id", e.UserID, "error", err)
			result.Errors = append(result.Errors, err.Error())
		}
	}

	notified, err := j.notifyLeaders(ctx, ranked)
	result.Notified = notified
	if err != nil {
		logger.Error("weekly result notifications failed", "error", err)
		result.Errors = append(result.Errors, err.Error())
	}

	logger.Info("weekly leaderboard completed",
		"profiles", result.Profiles.Total,
		"failed", result.Profiles.Failed,
		"ranked", result.Ranked,
		"promotions", result.Promotions,
		"notified", result.Notified,
		"duration", result.Profiles.Duration,
	)
	return result, nil
}

// promote moves a user up one league when their XP outgrows the current tier.
// A user is promoted at most once per week and the bonus is credited with the claim.
func (j *WeeklyJob) promote(ctx context.Context, p domain.Profile, e domain.LeaderboardEntry, w domain.WeekWindow) (bool, error) {
	next, ok := domain.Promotion(p.League, p.TotalXP+e.WeeklyXP)
	if !ok {
		return false, nil
	}

	bonus := domain.PromotionBonus(next)
	claimed, err := j.store.RecordMilestone(ctx, domain.Milestone{
		UserID:     e.UserID,
		Kind:       domain.MilestoneLeaguePromotion,
		Value:      w.Ordinal(),
		AnchoredOn: domain.DateOf(w.Start),
		XP:         bonus,
	})
	if err != nil {
		return false, fmt.Errorf("claiming promotion for %s: %w", e.UserID, err)
	}
	if !claimed {
		return false, nil
	}

	var errs []error
	if err := j.store.UpdateLeague(ctx, e.UserID, next); err != nil {
		errs = append(errs, fmt.Errorf("updating league: %w", err))
	}
	if err := j.notifier.Notify(ctx, domain.LeaguePromoted(e.UserID, next, e.Rank, bonus)); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return true, fmt.Errorf("promoting %s to %s: %w", e.UserID, next, err)
	}
	return true, nil
}

func (j *WeeklyJob) notifyLeaders(ctx context.Context, ranked []domain.LeaderboardEntry) (int, error) {
	topN := j.config.NotifyTopN
	if topN <= 0 {
		topN = DefaultNotifyTopN
	}

	notes := make([]domain.Notification, 0, topN)
	for _, e := range ranked {
		if e.Rank > int64(topN) {
			break
		}
		notes = append(notes, domain.WeeklyResult(e))
	}
	return j.notifier.NotifyAll(ctx, notes)
}

package postgres

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pyquest-jobs/internal/domain"
)

const achievementColumns = `
	id, slug, title, description, COALESCE(icon, ''), rarity, xp_reward,
	COALESCE(requirement_type, ''), requirement_value`

func scanAchievement(row pgx.Row) (domain.Achievement, error) {
	var a domain.Achievement
	err := row.Scan(
		&a.ID,
		&a.Slug,
		&a.Title,
		&a.Description,
		&a.Icon,
		&a.Rarity,
		&a.XPReward,
		&a.RequirementType,
		&a.RequirementValue,
	)
	return a, err
}

// ListAchievements returns the full achievement catalog
func (r *Repository) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+achievementColumns+` FROM achievements ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}
	defer rows.Close()

	var catalog []domain.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning achievement: %w", err)
		}
		catalog = append(catalog, a)
	}
	return catalog, rows.Err()
}

// GetAchievementBySlug looks up a catalog entry by its slug
func (r *Repository) GetAchievementBySlug(ctx context.Context, slug string) (*domain.Achievement, error) {
	a, err := scanAchievement(r.pool.QueryRow(ctx,
		`SELECT `+achievementColumns+` FROM achievements WHERE slug = $1`, slug))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAchievementNotFound
		}
		return nil, fmt.Errorf("getting achievement %q: %w", slug, err)
	}
	return &a, nil
}

// InsertUserAchievement records an unlock and credits its XP reward in the same
// transaction. It reports false when the user already had the achievement.
func (r *Repository) InsertUserAchievement(ctx context.Context, userID, achievementID string, at time.Time, xpReward int64) (bool, error) {
	query := `
		INSERT INTO user_achievements (user_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`
	var inserted bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, userID, achievementID, at)
		if err != nil {
			return fmt.Errorf("inserting user achievement: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true
		return awardXP(ctx, tx, userID, xpReward)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// ListUnlockedAchievementIDs returns the ids of achievements the user already holds
func (r *Repository) ListUnlockedAchievementIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT achievement_id FROM user_achievements WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing unlocked achievements: %w", err)
	}
	defer rows.Close()

	unlocked := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning unlocked achievement: %w", err)
		}
		unlocked[id] = struct{}{}
	}
	return unlocked, rows.Err()
}

// markActiveQuery mirrors domain.Profile.MarkActive. Every SET expression
// sees the row as it was before the update.
const markActiveQuery = `
	UPDATE profiles
	SET previous_active_date = CASE
			WHEN last_active_date IS NULL THEN previous_active_date
			WHEN last_active_date < $2::date THEN last_active_date
			WHEN last_active_date > $2::date THEN GREATEST(COALESCE(previous_active_date, $2::date), $2::date)
			ELSE previous_active_date
		END,
		last_active_date = GREATEST(COALESCE(last_active_date, $2::date), $2::date)
	WHERE id = $1
`

const incrementProgressQuery = `
	INSERT INTO achievement_progress (user_id, metric, progress, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $4)
	ON CONFLICT (user_id, metric)
	DO UPDATE SET progress = achievement_progress.progress + $3, updated_at = $4
	RETURNING progress
`

// ApplyActivity claims the event id, marks the user active and increments the
// counters in one transaction. It reports false when the event id was already
// claimed, in which case nothing changes.
func (r *Repository) ApplyActivity(ctx context.Context, w domain.ActivityWrite) (map[string]int64, bool, error) {
	for _, delta := range w.Deltas {
		if delta < 0 {
			return nil, false, domain.ErrNegativeDelta
		}
	}
	// a fixed order keeps concurrent events for one user from deadlocking
	metrics := slices.Sorted(maps.Keys(w.Deltas))

	now := time.Now()
	counts := make(map[string]int64, len(metrics))
	applied := true
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if w.EventID != "" {
			tag, err := tx.Exec(ctx, `
				INSERT INTO processed_events (event_id, user_id, processed_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (event_id) DO NOTHING
			`, w.EventID, w.UserID, now)
			if err != nil {
				return fmt.Errorf("claiming event %s: %w", w.EventID, err)
			}
			if tag.RowsAffected() == 0 {
				applied = false
				return nil
			}
		}

		if w.ActiveOn != nil {
			tag, err := tx.Exec(ctx, markActiveQuery, w.UserID, *w.ActiveOn)
			if err != nil {
				return fmt.Errorf("marking active: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return domain.ErrProfileNotFound
			}
		}

		for _, metric := range metrics {
			var progress int64
			if err := tx.QueryRow(ctx, incrementProgressQuery, w.UserID, metric, w.Deltas[metric], now).Scan(&progress); err != nil {
				return fmt.Errorf("incrementing progress %s: %w", metric, err)
			}
			counts[metric] = progress
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return nil, false, nil
	}
	return counts, true, nil
}

// ListProgress returns all counters for a user keyed by metric
func (r *Repository) ListProgress(ctx context.Context, userID string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT metric, progress FROM achievement_progress WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing progress: %w", err)
	}
	defer rows.Close()

	progress := make(map[string]int64)
	for rows.Next() {
		var metric string
		var value int64
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, fmt.Errorf("scanning progress: %w", err)
		}
		progress[metric] = value
	}
	return progress, rows.Err()
}

// RecordMilestone claims a one-off award and credits m.XP in the same
// transaction. It reports false when the milestone was already recorded.
func (r *Repository) RecordMilestone(ctx context.Context, m domain.Milestone) (bool, error) {
	query := `
		INSERT INTO milestone_awards (user_id, kind, value, anchored_on, awarded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`
	var claimed bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, m.UserID, string(m.Kind), m.Value, m.AnchoredOn, time.Now())
		if err != nil {
			return fmt.Errorf("recording milestone: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		claimed = true
		return awardXP(ctx, tx, m.UserID, m.XP)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pyquest-jobs/internal/domain"
)

const profileColumns = `
	id, username, COALESCE(display_name, ''), COALESCE(avatar_url, ''), level, league,
	total_xp, current_streak, max_streak, last_active_date, previous_active_date,
	streak_evaluated_on, hearts, daily_goal_hearts`

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var p domain.Profile
	var league string
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.DisplayName,
		&p.AvatarURL,
		&p.Level,
		&league,
		&p.TotalXP,
		&p.CurrentStreak,
		&p.MaxStreak,
		&p.LastActiveDate,
		&p.PreviousActiveDate,
		&p.StreakEvaluatedOn,
		&p.Hearts,
		&p.DailyGoalHearts,
	)
	p.League = domain.League(league)
	return p, err
}

func (r *Repository) listProfiles(ctx context.Context, query string) ([]domain.Profile, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ListActiveProfiles returns every profile that has ever been active, ordered by id
func (r *Repository) ListActiveProfiles(ctx context.Context) ([]domain.Profile, error) {
	profiles, err := r.listProfiles(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE last_active_date IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing active profiles: %w", err)
	}
	return profiles, nil
}

// ListProfiles returns all profiles ordered by id
func (r *Repository) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	profiles, err := r.listProfiles(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return profiles, nil
}

// GetProfile retrieves a single profile
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return &p, nil
}

// UpdateStreak stores the streak roll-up for one day. It reports false when the
// profile was already evaluated for that day, which makes reruns no-ops.
func (r *Repository) UpdateStreak(ctx context.Context, u domain.StreakUpdate) (bool, error) {
	query := `
		UPDATE profiles
		SET current_streak = $2, max_streak = $3, streak_evaluated_on = $4
		WHERE id = $1 AND (streak_evaluated_on IS NULL OR streak_evaluated_on < $4)
	`
	tag, err := r.pool.Exec(ctx, query, u.UserID, u.CurrentStreak, u.MaxStreak, u.EvaluatedOn)
	if err != nil {
		return false, fmt.Errorf("updating streak: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetHearts refills every profile's hearts to its daily goal in one statement
func (r *Repository) ResetHearts(ctx context.Context, fallback int) (int64, error) {
	if fallback <= 0 {
		fallback = domain.DefaultDailyHearts
	}
	query := `
		UPDATE profiles
		SET hearts = COALESCE(NULLIF(daily_goal_hearts, 0), $1)
	`
	tag, err := r.pool.Exec(ctx, query, fallback)
	if err != nil {
		return 0, fmt.Errorf("resetting hearts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// awardXP adds amount to the user's total XP inside tx
func awardXP(ctx context.Context, tx pgx.Tx, userID string, amount int64) error {
	if amount < 0 {
		return domain.ErrNegativeDelta
	}
	if amount == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `UPDATE profiles SET total_xp = total_xp + $2 WHERE id = $1`, userID, amount)
	if err != nil {
		return fmt.Errorf("awarding xp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

// UpdateLeague sets the user's league
func (r *Repository) UpdateLeague(ctx context.Context, userID string, league domain.League) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET league = $2 WHERE id = $1`, userID, string(league))
	if err != nil {
		return fmt.Errorf("updating league: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

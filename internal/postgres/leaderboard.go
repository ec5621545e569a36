package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pyquest-jobs/internal/domain"
)

// WeeklyXP sums the XP a user earned inside the window from completed lessons,
// completed daily challenges and achievements unlocked.
func (r *Repository) WeeklyXP(ctx context.Context, userID string, w domain.WeekWindow) (int64, error) {
	query := `
		SELECT (
			COALESCE((
				SELECT SUM(xp_earned) FROM user_lessons
				WHERE user_id = $1 AND completed AND completed_at >= $2 AND completed_at < $3
			), 0)
			+ COALESCE((
				SELECT SUM(score) FROM daily_challenge_attempts
				WHERE user_id = $1 AND completed AND created_at >= $2 AND created_at < $3
			), 0)
			+ COALESCE((
				SELECT SUM(a.xp_reward)
				FROM user_achievements ua
				JOIN achievements a ON a.id = ua.achievement_id
				WHERE ua.user_id = $1 AND ua.unlocked_at >= $2 AND ua.unlocked_at < $3
			), 0)
		)::BIGINT
	`
	var total int64
	if err := r.pool.QueryRow(ctx, query, userID, w.Start, w.End).Scan(&total); err != nil {
		return 0, fmt.Errorf("calculating weekly xp: %w", err)
	}
	return total, nil
}

// ReplaceWeeklySnapshot deletes the snapshot rows of the window and bulk inserts
// entries in a single transaction.
func (r *Repository) ReplaceWeeklySnapshot(ctx context.Context, w domain.WeekWindow, entries []domain.LeaderboardEntry) (int64, error) {
	var copied int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM leaderboards WHERE week_start >= $1 AND week_start < $2`,
			w.Start, w.End,
		); err != nil {
			return fmt.Errorf("clearing weekly snapshot: %w", err)
		}

		if len(entries) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []any{
				e.UserID, e.Username, e.DisplayName, e.AvatarURL, e.Level,
				string(e.League), e.WeeklyXP, e.Rank, e.WeekStart, e.WeekEnd,
			})
		}

		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"leaderboards"},
			[]string{"user_id", "username", "display_name", "avatar_url", "level",
				"league", "weekly_xp", "rank", "week_start", "week_end"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("inserting weekly snapshot: %w", err)
		}
		copied = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return copied, nil
}

// GetWeeklySnapshot reads the top entries of a stored weekly snapshot
func (r *Repository) GetWeeklySnapshot(ctx context.Context, weekStart time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT user_id, username, COALESCE(display_name, ''), COALESCE(avatar_url, ''),
			   level, league, weekly_xp, rank, week_start, week_end
		FROM leaderboards
		WHERE week_start = $1
		ORDER BY rank
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, weekStart, limit)
	if err != nil {
		return nil, fmt.Errorf("getting weekly snapshot: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		var league string
		err := rows.Scan(&e.UserID, &e.Username, &e.DisplayName, &e.AvatarURL,
			&e.Level, &league, &e.WeeklyXP, &e.Rank, &e.WeekStart, &e.WeekEnd)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot entry: %w", err)
		}
		e.League = domain.League(league)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

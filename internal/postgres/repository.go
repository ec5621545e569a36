package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pyquest-jobs/internal/config"
	"github.com/pyquest-jobs/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			display_name TEXT,
			avatar_url TEXT,
			level INT NOT NULL DEFAULT 1,
			league TEXT NOT NULL DEFAULT 'bronze',
			total_xp BIGINT NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
			current_streak INT NOT NULL DEFAULT 0,
			max_streak INT NOT NULL DEFAULT 0,
			last_active_date DATE,
			previous_active_date DATE,
			streak_evaluated_on DATE,
			hearts INT NOT NULL DEFAULT 5,
			daily_goal_hearts INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`ALTER TABLE profiles ADD COLUMN IF NOT EXISTS streak_evaluated_on DATE`,
		`ALTER TABLE profiles ADD COLUMN IF NOT EXISTS previous_active_date DATE`,
		`CREATE TABLE IF NOT EXISTS achievements (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			slug TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon TEXT,
			rarity TEXT NOT NULL DEFAULT 'common',
			xp_reward BIGINT NOT NULL DEFAULT 0 CHECK (xp_reward >= 0),
			requirement_type TEXT,
			requirement_value BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS user_achievements (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			achievement_id TEXT NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
			unlocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, achievement_id)
		)`,
		`CREATE TABLE IF NOT EXISTS achievement_progress (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			progress BIGINT NOT NULL DEFAULT 0 CHECK (progress >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, metric)
		)`,
		`CREATE TABLE IF NOT EXISTS milestone_awards (
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			value BIGINT NOT NULL,
			anchored_on DATE NOT NULL,
			awarded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, kind, value, anchored_on)
		)`,
		// TODO: prune processed_events rows older than the activity topic's retention
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS user_lessons (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			lesson_id TEXT,
			xp_earned BIGINT NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS daily_challenge_attempts (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			score BIGINT NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboards (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			display_name TEXT,
			avatar_url TEXT,
			level INT NOT NULL DEFAULT 1,
			league TEXT NOT NULL DEFAULT 'bronze',
			weekly_xp BIGINT NOT NULL,
			rank BIGINT NOT NULL,
			week_start TIMESTAMPTZ NOT NULL,
			week_end TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_last_active ON profiles(last_active_date) WHERE last_active_date IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_user_lessons_user_completed ON user_lessons(user_id, completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_challenge_attempts_user_created ON daily_challenge_attempts(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_user_achievements_user_unlocked ON user_achievements(user_id, unlocked_at)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboards_week_rank ON leaderboards(week_start, rank)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// SeedAchievements inserts catalog entries whose slug is not present yet
func (r *Repository) SeedAchievements(ctx context.Context, catalog []domain.Achievement) error {
	if len(catalog) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO achievements (slug, title, description, icon, rarity, xp_reward, requirement_type, requirement_value)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		ON CONFLICT (slug) DO NOTHING
	`
	for _, a := range catalog {
		batch.Queue(query, a.Slug, a.Title, a.Description, a.Icon, a.Rarity, a.XPReward, a.RequirementType, a.RequirementValue)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range catalog {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("seeding achievements: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	r.logger.Info("achievement catalog seeded", "inserted", inserted, "catalog_size", len(catalog))
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

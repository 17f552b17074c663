package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
// It returns the number of migrations applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
	}
	return count, nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		last = max(last, v)
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
			break
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_course_paths", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_participation", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_reviews", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_users_and_learning_paths", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: COURSE PATHS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS course_paths (
    id TEXT PRIMARY KEY,
    subject VARCHAR(200) NOT NULL,
    difficulty VARCHAR(20) NOT NULL,
    creator_id TEXT NOT NULL,
    status VARCHAR(10) NOT NULL DEFAULT 'DRAFT',
    failure_reason TEXT NOT NULL DEFAULT '',
    idempotency_key VARCHAR(128),
    topics JSONB NOT NULL DEFAULT '[]'::jsonb,

    -- Derived aggregates. Written only by enrollment, review and reconcile paths.
    enrollment_count INTEGER NOT NULL DEFAULT 0,
    review_count INTEGER NOT NULL DEFAULT 0,
    rating_sum INTEGER NOT NULL DEFAULT 0,
    rating_1 INTEGER NOT NULL DEFAULT 0,
    rating_2 INTEGER NOT NULL DEFAULT 0,
    rating_3 INTEGER NOT NULL DEFAULT 0,
    rating_4 INTEGER NOT NULL DEFAULT 0,
    rating_5 INTEGER NOT NULL DEFAULT 0,
    sentiment_positive INTEGER NOT NULL DEFAULT 0,
    sentiment_neutral INTEGER NOT NULL DEFAULT 0,
    sentiment_negative INTEGER NOT NULL DEFAULT 0,

    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    archived_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT course_paths_creator_key_unique UNIQUE (creator_id, idempotency_key),
    CONSTRAINT valid_difficulty CHECK (difficulty IN ('BEGINNER', 'INTERMEDIATE', 'ADVANCED')),
    CONSTRAINT valid_status CHECK (status IN ('DRAFT', 'READY', 'FAILED')),
    CONSTRAINT ready_has_topics CHECK (status <> 'READY' OR jsonb_array_length(topics) > 0),
    CONSTRAINT non_negative_aggregates CHECK (
        enrollment_count >= 0 AND review_count >= 0 AND rating_sum >= 0 AND
        rating_1 >= 0 AND rating_2 >= 0 AND rating_3 >= 0 AND rating_4 >= 0 AND rating_5 >= 0 AND
        sentiment_positive >= 0 AND sentiment_neutral >= 0 AND sentiment_negative >= 0
    ),
    CONSTRAINT consistent_review_aggregates CHECK (
        rating_1 + rating_2 + rating_3 + rating_4 + rating_5 = review_count AND
        rating_1 + 2 * rating_2 + 3 * rating_3 + 4 * rating_4 + 5 * rating_5 = rating_sum AND
        sentiment_positive + sentiment_neutral + sentiment_negative = review_count
    )
);

CREATE INDEX IF NOT EXISTS idx_course_paths_creator ON course_paths(creator_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_course_paths_stale_drafts ON course_paths(updated_at) WHERE status = 'DRAFT';
CREATE INDEX IF NOT EXISTS idx_course_paths_ready ON course_paths(created_at DESC) WHERE status = 'READY' AND archived_at IS NULL;
`

const migration001Down = `
DROP TABLE IF EXISTS course_paths;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ENROLLMENTS AND PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS enrollments (
    user_id TEXT NOT NULL,
    course_path_id TEXT NOT NULL REFERENCES course_paths(id) ON DELETE CASCADE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, course_path_id)
);

CREATE INDEX IF NOT EXISTS idx_enrollments_course_path ON enrollments(course_path_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_user_recent ON enrollments(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS progress_records (
    user_id TEXT NOT NULL,
    course_path_id TEXT NOT NULL REFERENCES course_paths(id) ON DELETE CASCADE,
    completed_indices INTEGER[] NOT NULL DEFAULT '{}',
    percentage NUMERIC(4,1) NOT NULL DEFAULT 0,
    last_activity_at TIMESTAMP WITH TIME ZONE,
    version BIGINT NOT NULL DEFAULT 1,
    PRIMARY KEY (user_id, course_path_id),
    CONSTRAINT valid_percentage CHECK (percentage >= 0 AND percentage <= 100)
);
`

const migration002Down = `
DROP TABLE IF EXISTS progress_records;
DROP TABLE IF EXISTS enrollments;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: REVIEWS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS reviews (
    id TEXT PRIMARY KEY,
    course_path_id TEXT NOT NULL REFERENCES course_paths(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    rating SMALLINT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    sentiment_label VARCHAR(10) NOT NULL DEFAULT 'neutral',
    sentiment_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    helpful_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT reviews_user_path_unique UNIQUE (user_id, course_path_id),
    CONSTRAINT valid_rating CHECK (rating BETWEEN 1 AND 5),
    CONSTRAINT valid_sentiment CHECK (sentiment_label IN ('positive', 'neutral', 'negative')),
    CONSTRAINT valid_text_length CHECK (char_length(text) <= 5000),
    CONSTRAINT valid_helpful_count CHECK (helpful_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_reviews_course_path_recent ON reviews(course_path_id, created_at DESC);

CREATE TABLE IF NOT EXISTS review_helpful_votes (
    review_id TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
    voter_id TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (review_id, voter_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS review_helpful_votes;
DROP TABLE IF EXISTS reviews;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: USERS AND LEARNING PATHS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username VARCHAR(50) NOT NULL,
    email VARCHAR(254) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    CONSTRAINT users_username_unique UNIQUE (username),
    CONSTRAINT users_email_unique UNIQUE (email)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users(lower(username));

CREATE TABLE IF NOT EXISTS user_roles (
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    role VARCHAR(20) NOT NULL,
    PRIMARY KEY (user_id, role),
    CONSTRAINT valid_role CHECK (role IN ('ROLE_USER', 'ROLE_ADMIN', 'ROLE_INSTRUCTOR'))
);

CREATE TABLE IF NOT EXISTS learning_paths (
    id TEXT PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    difficulty VARCHAR(20) NOT NULL,
    creator_id TEXT NOT NULL,
    course_path_ids TEXT[] NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    CONSTRAINT valid_lp_difficulty CHECK (difficulty IN ('BEGINNER', 'INTERMEDIATE', 'ADVANCED')),
    CONSTRAINT non_empty_course_paths CHECK (cardinality(course_path_ids) > 0)
);
`

const migration004Down = `
DROP TABLE IF EXISTS learning_paths;
DROP TABLE IF EXISTS user_roles;
DROP TABLE IF EXISTS users;
`

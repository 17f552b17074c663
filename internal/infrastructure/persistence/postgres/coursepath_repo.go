package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE PATH REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const coursePathColumns = `
	id, subject, difficulty, creator_id, status, failure_reason,
	COALESCE(idempotency_key, ''), topics,
	enrollment_count, review_count, rating_sum,
	rating_1, rating_2, rating_3, rating_4, rating_5,
	sentiment_positive, sentiment_neutral, sentiment_negative,
	version, created_at, updated_at, archived_at`

// CoursePathRepository implements coursepath.Repository for PostgreSQL.
type CoursePathRepository struct {
	conn *Connection
}

// NewCoursePathRepository creates a new CoursePathRepository.
func NewCoursePathRepository(conn *Connection) *CoursePathRepository {
	return &CoursePathRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new path at version 1.
func (r *CoursePathRepository) Create(ctx context.Context, p *coursepath.CoursePath) error {
	topics, err := json.Marshal(nonNilTopics(p.Topics))
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO course_paths (
			id, subject, difficulty, creator_id, status, failure_reason,
			idempotency_key, topics, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, 1, $9, $10)
	`,
		p.ID, p.Subject, string(p.Difficulty), string(p.CreatorID), string(p.Status), p.FailureReason,
		p.IdempotencyKey, topics, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("coursepath", "Create", shared.ErrAlreadyExists, "course path already exists", err)
		}
		return fmt.Errorf("failed to create course path: %w", err)
	}
	p.Version = 1
	return nil
}

// SaveLifecycle persists lifecycle fields under a version check. Aggregate
// columns are never written here; the fresh values are read back into p.
func (r *CoursePathRepository) SaveLifecycle(ctx context.Context, p *coursepath.CoursePath) error {
	topics, err := json.Marshal(nonNilTopics(p.Topics))
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}

	row := r.conn.QueryRow(ctx, `
		UPDATE course_paths SET
			status = $1,
			failure_reason = $2,
			topics = $3,
			updated_at = $4,
			archived_at = $5,
			version = version + 1
		WHERE id = $6 AND version = $7
		RETURNING `+coursePathColumns,
		string(p.Status), p.FailureReason, topics, p.UpdatedAt, p.ArchivedAt, p.ID, p.Version,
	)
	saved, err := scanCoursePath(row)
	if err == nil {
		*p = *saved
		return nil
	}
	if !shared.IsNotFound(err) {
		if IsCheckViolation(err) {
			return shared.WrapError("coursepath", "SaveLifecycle", shared.ErrInvalidState, "lifecycle constraint violated", err)
		}
		return err
	}

	var exists bool
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM course_paths WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check course path: %w", err)
	}
	if !exists {
		return shared.ErrCoursePathNotFound
	}
	return shared.ErrCoursePathConflict
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a path by ID.
func (r *CoursePathRepository) GetByID(ctx context.Context, id string) (*coursepath.CoursePath, error) {
	return scanCoursePath(r.conn.QueryRow(ctx, `SELECT `+coursePathColumns+` FROM course_paths WHERE id = $1`, id))
}

// GetByIdempotencyKey returns the path a creator created with key.
func (r *CoursePathRepository) GetByIdempotencyKey(ctx context.Context, creatorID shared.UserID, key string) (*coursepath.CoursePath, error) {
	if key == "" {
		return nil, shared.ErrCoursePathNotFound
	}
	return scanCoursePath(r.conn.QueryRow(ctx,
		`SELECT `+coursePathColumns+` FROM course_paths WHERE creator_id = $1 AND idempotency_key = $2`,
		string(creatorID), key))
}

// ListByCreator returns a creator's paths, newest first.
func (r *CoursePathRepository) ListByCreator(ctx context.Context, creatorID shared.UserID) ([]*coursepath.CoursePath, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+coursePathColumns+` FROM course_paths WHERE creator_id = $1 ORDER BY created_at DESC, id DESC`,
		string(creatorID))
	if err != nil {
		return nil, fmt.Errorf("failed to list course paths: %w", err)
	}
	return collectCoursePaths(rows)
}

// ListByIDs returns the found paths in the order of ids.
func (r *CoursePathRepository) ListByIDs(ctx context.Context, ids []string) ([]*coursepath.CoursePath, error) {
	if len(ids) == 0 {
		return []*coursepath.CoursePath{}, nil
	}
	rows, err := r.conn.Query(ctx, `SELECT `+coursePathColumns+` FROM course_paths WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list course paths: %w", err)
	}
	found, err := collectCoursePaths(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*coursepath.CoursePath, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]*coursepath.CoursePath, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Search returns READY, non-archived paths whose subject contains every term.
func (r *CoursePathRepository) Search(ctx context.Context, terms []string, page shared.Pagination) ([]*coursepath.CoursePath, error) {
	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			patterns = append(patterns, "%"+escapeLike(t)+"%")
		}
	}
	rows, err := r.conn.Query(ctx, `
		SELECT `+coursePathColumns+`
		FROM course_paths
		WHERE status = 'READY' AND archived_at IS NULL AND subject ILIKE ALL($1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, patterns, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to search course paths: %w", err)
	}
	return collectCoursePaths(rows)
}

// ListStaleDrafts returns DRAFT paths last updated before the cutoff, oldest first.
func (r *CoursePathRepository) ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]*coursepath.CoursePath, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+coursePathColumns+`
		FROM course_paths
		WHERE status = 'DRAFT' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale drafts: %w", err)
	}
	return collectCoursePaths(rows)
}

// ListIDsAfter pages through all ids in ascending order.
func (r *CoursePathRepository) ListIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT id FROM course_paths WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list course path ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan course path ids: %w", err)
	}
	return ids, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanCoursePath(row pgx.Row) (*coursepath.CoursePath, error) {
	var (
		p                     coursepath.CoursePath
		difficulty, creatorID string
		status                string
		topics                []byte
		a                     coursepath.Aggregates
	)
	err := row.Scan(
		&p.ID, &p.Subject, &difficulty, &creatorID, &status, &p.FailureReason,
		&p.IdempotencyKey, &topics,
		&a.EnrollmentCount, &a.ReviewCount, &a.RatingSum,
		&a.RatingDistribution[0], &a.RatingDistribution[1], &a.RatingDistribution[2],
		&a.RatingDistribution[3], &a.RatingDistribution[4],
		&a.Sentiment.Positive, &a.Sentiment.Neutral, &a.Sentiment.Negative,
		&p.Version, &p.CreatedAt, &p.UpdatedAt, &p.ArchivedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCoursePathNotFound
		}
		return nil, fmt.Errorf("failed to scan course path: %w", err)
	}

	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &p.Topics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
		}
	}
	if len(p.Topics) == 0 {
		p.Topics = nil
	}
	p.Difficulty = shared.Difficulty(difficulty)
	p.CreatorID = shared.UserID(creatorID)
	p.Status = coursepath.Status(status)
	p.Aggregates = a
	return &p, nil
}

func collectCoursePaths(rows pgx.Rows) ([]*coursepath.CoursePath, error) {
	defer rows.Close()
	out := make([]*coursepath.CoursePath, 0)
	for rows.Next() {
		p, err := scanCoursePath(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate course paths: %w", err)
	}
	return out, nil
}

func nonNilTopics(t []coursepath.Topic) []coursepath.Topic {
	if t == nil {
		return []coursepath.Topic{}
	}
	return t
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

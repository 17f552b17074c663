package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/progress"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository. The relation row and
// enrollment_count move in one transaction; the path version is untouched.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

// Enroll inserts the pair and increments enrollment_count.
func (r *EnrollmentRepository) Enroll(ctx context.Context, userID shared.UserID, coursePathID string) (bool, error) {
	var created bool
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO enrollments (user_id, course_path_id, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_id, course_path_id) DO NOTHING
		`, string(userID), coursePathID)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return shared.ErrCoursePathNotFound
			}
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if err := admitEnrollment(ctx, tx, coursePathID); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Unenroll deletes the pair and decrements enrollment_count.
func (r *EnrollmentRepository) Unenroll(ctx context.Context, userID shared.UserID, coursePathID string) (bool, error) {
	var removed bool
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM enrollments WHERE user_id = $1 AND course_path_id = $2`,
			string(userID), coursePathID)
		if err != nil {
			return fmt.Errorf("failed to delete enrollment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if err := bumpEnrollmentCount(ctx, tx, coursePathID, -1); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// admitEnrollment increments enrollment_count only while the path is READY
// and not archived. The row lock it takes orders it against a concurrent
// archive, so the earlier status check in the handler cannot go stale.
func admitEnrollment(ctx context.Context, tx pgx.Tx, coursePathID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE course_paths SET enrollment_count = enrollment_count + 1
		WHERE id = $1 AND status = 'READY' AND archived_at IS NULL
	`, coursePathID)
	if err != nil {
		if IsCheckViolation(err) {
			return shared.ErrAggregateInvariant
		}
		return fmt.Errorf("failed to update enrollment count: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	var archived bool
	err = tx.QueryRow(ctx,
		`SELECT status, archived_at IS NOT NULL FROM course_paths WHERE id = $1`,
		coursePathID).Scan(&status, &archived)
	switch {
	case IsNoRows(err):
		return shared.ErrCoursePathNotFound
	case err != nil:
		return fmt.Errorf("failed to load course path status: %w", err)
	case archived:
		return shared.ErrCoursePathArchived
	default:
		return shared.ErrCoursePathNotReady
	}
}

func bumpEnrollmentCount(ctx context.Context, tx pgx.Tx, coursePathID string, delta int) error {
	tag, err := tx.Exec(ctx,
		`UPDATE course_paths SET enrollment_count = enrollment_count + $1 WHERE id = $2`,
		delta, coursePathID)
	if err != nil {
		if IsCheckViolation(err) {
			return shared.ErrAggregateInvariant
		}
		return fmt.Errorf("failed to update enrollment count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrCoursePathNotFound
	}
	return nil
}

// Exists reports whether the user is enrolled.
func (r *EnrollmentRepository) Exists(ctx context.Context, userID shared.UserID, coursePathID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_path_id = $2)`,
		string(userID), coursePathID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return exists, nil
}

// ListCoursePathIDs returns the user's enrollments, newest first.
func (r *EnrollmentRepository) ListCoursePathIDs(ctx context.Context, userID shared.UserID) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT course_path_id FROM enrollments
		WHERE user_id = $1
		ORDER BY created_at DESC, course_path_id DESC
	`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan enrollments: %w", err)
	}
	return ids, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository with a version column.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Get returns ErrProgressNotFound when the user has no record.
func (r *ProgressRepository) Get(ctx context.Context, userID shared.UserID, coursePathID string) (*progress.Record, error) {
	var (
		indices    []int32
		percentage float64
		lastAt     *time.Time
		version    int64
	)
	err := r.conn.QueryRow(ctx, `
		SELECT completed_indices, percentage::float8, last_activity_at, version
		FROM progress_records
		WHERE user_id = $1 AND course_path_id = $2
	`, string(userID), coursePathID).Scan(&indices, &percentage, &lastAt, &version)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	rec := progress.NewRecord(userID, coursePathID)
	for _, i := range indices {
		rec.Completed[int(i)] = struct{}{}
	}
	rec.Percentage = percentage
	if lastAt != nil {
		rec.LastActivityAt = *lastAt
	}
	rec.Version = version
	return rec, nil
}

// Save inserts a new record (Version == 0) or updates under a version check.
func (r *ProgressRepository) Save(ctx context.Context, rec *progress.Record) error {
	indices := make([]int32, 0, len(rec.Completed))
	for _, i := range rec.CompletedIndices() {
		indices = append(indices, int32(i))
	}
	var lastAt *time.Time
	if !rec.LastActivityAt.IsZero() {
		lastAt = &rec.LastActivityAt
	}

	var (
		tagRows int64
		err     error
	)
	if rec.Version == 0 {
		tag, execErr := r.conn.Exec(ctx, `
			INSERT INTO progress_records (user_id, course_path_id, completed_indices, percentage, last_activity_at, version)
			VALUES ($1, $2, $3, $4, $5, 1)
			ON CONFLICT (user_id, course_path_id) DO NOTHING
		`, string(rec.UserID), rec.CoursePathID, indices, rec.Percentage, lastAt)
		tagRows, err = tag.RowsAffected(), execErr
	} else {
		tag, execErr := r.conn.Exec(ctx, `
			UPDATE progress_records SET
				completed_indices = $1,
				percentage = $2,
				last_activity_at = $3,
				version = version + 1
			WHERE user_id = $4 AND course_path_id = $5 AND version = $6
		`, indices, rec.Percentage, lastAt, string(rec.UserID), rec.CoursePathID, rec.Version)
		tagRows, err = tag.RowsAffected(), execErr
	}
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrCoursePathNotFound
		}
		return fmt.Errorf("failed to save progress: %w", err)
	}
	if tagRows == 0 {
		return shared.ErrProgressConflict
	}
	rec.Version++
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE STORE
// ══════════════════════════════════════════════════════════════════════════════

// AggregateStore implements coursepath.AggregateStore.
type AggregateStore struct {
	conn *Connection
}

// NewAggregateStore creates a new AggregateStore.
func NewAggregateStore(conn *Connection) *AggregateStore {
	return &AggregateStore{conn: conn}
}

// Reconcile locks the path row, recomputes aggregates from enrollments and
// reviews, and writes them back only when they differ.
func (s *AggregateStore) Reconcile(ctx context.Context, coursePathID string) (coursepath.ReconcileResult, error) {
	res := coursepath.ReconcileResult{CoursePathID: coursePathID}

	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		before, err := scanCoursePath(tx.QueryRow(ctx,
			`SELECT `+coursePathColumns+` FROM course_paths WHERE id = $1 FOR UPDATE`, coursePathID))
		if err != nil {
			return err
		}

		var enrollments int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM enrollments WHERE course_path_id = $1`, coursePathID).Scan(&enrollments); err != nil {
			return fmt.Errorf("failed to count enrollments: %w", err)
		}

		rows, err := tx.Query(ctx,
			`SELECT rating, sentiment_label FROM reviews WHERE course_path_id = $1`, coursePathID)
		if err != nil {
			return fmt.Errorf("failed to load reviews: %w", err)
		}
		samples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coursepath.ReviewSample, error) {
			var (
				rating int
				label  string
			)
			if err := row.Scan(&rating, &label); err != nil {
				return coursepath.ReviewSample{}, err
			}
			return coursepath.ReviewSample{Rating: shared.Rating(rating), Sentiment: shared.Sentiment(label)}, nil
		})
		if err != nil {
			return fmt.Errorf("failed to scan reviews: %w", err)
		}

		res.Before = before.Aggregates
		res.After = coursepath.Recompute(enrollments, samples)
		if res.After == res.Before {
			return nil
		}

		a := res.After
		_, err = tx.Exec(ctx, `
			UPDATE course_paths SET
				enrollment_count = $1, review_count = $2, rating_sum = $3,
				rating_1 = $4, rating_2 = $5, rating_3 = $6, rating_4 = $7, rating_5 = $8,
				sentiment_positive = $9, sentiment_neutral = $10, sentiment_negative = $11,
				version = version + 1
			WHERE id = $12
		`,
			a.EnrollmentCount, a.ReviewCount, a.RatingSum,
			a.RatingDistribution[0], a.RatingDistribution[1], a.RatingDistribution[2],
			a.RatingDistribution[3], a.RatingDistribution[4],
			a.Sentiment.Positive, a.Sentiment.Neutral, a.Sentiment.Negative,
			coursePathID,
		)
		if err != nil {
			return fmt.Errorf("failed to write aggregates: %w", err)
		}
		res.Repaired = true
		return nil
	})
	if err != nil {
		return coursepath.ReconcileResult{}, err
	}
	return res, nil
}

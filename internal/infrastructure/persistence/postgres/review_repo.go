package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const reviewColumns = `
	id, course_path_id, user_id, rating, text, sentiment_label, sentiment_score,
	helpful_count, created_at, updated_at`

// reviewOrder whitelists ORDER BY clauses per sort.
var reviewOrder = map[review.Sort]string{
	review.SortRecent:     "created_at DESC, id DESC",
	review.SortRatingHigh: "rating DESC, created_at DESC, id DESC",
	review.SortRatingLow:  "rating ASC, created_at DESC, id DESC",
	review.SortHelpful:    "helpful_count DESC, created_at DESC, id DESC",
}

// ReviewRepository implements review.Repository for PostgreSQL.
type ReviewRepository struct {
	conn *Connection
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(conn *Connection) *ReviewRepository {
	return &ReviewRepository{conn: conn}
}

// Get returns the user's review of a path.
func (r *ReviewRepository) Get(ctx context.Context, userID shared.UserID, coursePathID string) (*review.Review, error) {
	return scanReview(r.conn.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE user_id = $1 AND course_path_id = $2`,
		string(userID), coursePathID))
}

// GetByID returns a review by ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*review.Review, error) {
	return scanReview(r.conn.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
}

// Apply writes the review columns of the path guarded by ExpectedVersion and
// upserts the review row in the same transaction.
func (r *ReviewRepository) Apply(ctx context.Context, w review.Write) error {
	if w.Review == nil {
		return shared.NewValidationError("review", "Apply", "review", "review is required")
	}
	if err := w.Aggregates.Check(); err != nil {
		return err
	}
	rv := w.Review
	a := w.Aggregates

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE course_paths SET
				review_count = $1, rating_sum = $2,
				rating_1 = $3, rating_2 = $4, rating_3 = $5, rating_4 = $6, rating_5 = $7,
				sentiment_positive = $8, sentiment_neutral = $9, sentiment_negative = $10,
				version = version + 1
			WHERE id = $11 AND version = $12
		`,
			a.ReviewCount, a.RatingSum,
			a.RatingDistribution[0], a.RatingDistribution[1], a.RatingDistribution[2],
			a.RatingDistribution[3], a.RatingDistribution[4],
			a.Sentiment.Positive, a.Sentiment.Neutral, a.Sentiment.Negative,
			rv.CoursePathID, w.ExpectedVersion,
		)
		if err != nil {
			if IsCheckViolation(err) {
				return shared.ErrAggregateInvariant
			}
			return fmt.Errorf("failed to write aggregates: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM course_paths WHERE id = $1)`, rv.CoursePathID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check course path: %w", err)
			}
			if !exists {
				return shared.ErrCoursePathNotFound
			}
			return shared.ErrCoursePathConflict
		}

		if w.Insert {
			_, err = tx.Exec(ctx, `
				INSERT INTO reviews (
					id, course_path_id, user_id, rating, text, sentiment_label, sentiment_score,
					helpful_count, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
			`,
				rv.ID, rv.CoursePathID, string(rv.UserID), rv.Rating.Int(), rv.Text,
				string(rv.SentimentLabel), rv.SentimentScore, rv.CreatedAt, rv.UpdatedAt,
			)
			if err != nil {
				// Same user, concurrent first submissions.
				if IsUniqueViolation(err) {
					return shared.ErrCoursePathConflict
				}
				return fmt.Errorf("failed to insert review: %w", err)
			}
			return nil
		}

		tag, err = tx.Exec(ctx, `
			UPDATE reviews SET
				rating = $1, text = $2, sentiment_label = $3, sentiment_score = $4, updated_at = $5
			WHERE id = $6 AND user_id = $7 AND course_path_id = $8
		`,
			rv.Rating.Int(), rv.Text, string(rv.SentimentLabel), rv.SentimentScore, rv.UpdatedAt,
			rv.ID, string(rv.UserID), rv.CoursePathID,
		)
		if err != nil {
			return fmt.Errorf("failed to update review: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrCoursePathConflict
		}
		return nil
	})
}

// ListByCoursePath returns one sorted page of a path's reviews.
func (r *ReviewRepository) ListByCoursePath(ctx context.Context, coursePathID string, sortBy review.Sort, page shared.Pagination) (review.Page, error) {
	out := review.Page{Items: []*review.Review{}}

	if err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM reviews WHERE course_path_id = $1`, coursePathID).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("failed to count reviews: %w", err)
	}
	if out.Total == 0 {
		return out, nil
	}

	order, ok := reviewOrder[sortBy]
	if !ok {
		order = reviewOrder[review.SortRecent]
	}
	rows, err := r.conn.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE course_path_id = $1
		ORDER BY `+order+`
		LIMIT $2 OFFSET $3
	`, coursePathID, page.Limit(), page.Offset())
	if err != nil {
		return out, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return out, err
		}
		out.Items = append(out.Items, rv)
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("failed to iterate reviews: %w", err)
	}
	return out, nil
}

// AddHelpfulVote records one vote per (review, voter).
func (r *ReviewRepository) AddHelpfulVote(ctx context.Context, reviewID string, voterID shared.UserID) (bool, int, error) {
	var (
		added bool
		count int
	)
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT helpful_count FROM reviews WHERE id = $1 FOR UPDATE`, reviewID).Scan(&count); err != nil {
			if IsNoRows(err) {
				return shared.ErrReviewNotFound
			}
			return fmt.Errorf("failed to lock review: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO review_helpful_votes (review_id, voter_id, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (review_id, voter_id) DO NOTHING
		`, reviewID, string(voterID))
		if err != nil {
			return fmt.Errorf("failed to insert vote: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if err := tx.QueryRow(ctx,
			`UPDATE reviews SET helpful_count = helpful_count + 1 WHERE id = $1 RETURNING helpful_count`,
			reviewID).Scan(&count); err != nil {
			return fmt.Errorf("failed to increment helpful count: %w", err)
		}
		added = true
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return added, count, nil
}

func scanReview(row pgx.Row) (*review.Review, error) {
	var (
		rv            review.Review
		userID, label string
		rating        int
	)
	err := row.Scan(
		&rv.ID, &rv.CoursePathID, &userID, &rating, &rv.Text, &label, &rv.SentimentScore,
		&rv.HelpfulCount, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to scan review: %w", err)
	}
	rv.UserID = shared.UserID(userID)
	rv.Rating = shared.Rating(rating)
	rv.SentimentLabel = shared.Sentiment(label)
	return &rv, nil
}

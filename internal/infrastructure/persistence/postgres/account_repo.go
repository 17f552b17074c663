package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillmate/skillmate-core/internal/domain/learningpath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

// Create inserts the user and their roles in one transaction.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, username, email, created_at) VALUES ($1, $2, $3, $4)`,
			string(u.ID), u.Username, u.Email, u.CreatedAt)
		if err != nil {
			if IsUniqueViolation(err) {
				switch ConstraintName(err) {
				case "users_username_unique", "idx_users_username_lower":
					return shared.ErrUsernameTaken
				case "users_email_unique":
					return shared.ErrEmailTaken
				default:
					return shared.WrapError("user", "Create", shared.ErrAlreadyExists, "user already exists", err)
				}
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		for _, role := range u.Roles {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				string(u.ID), string(role)); err != nil {
				return fmt.Errorf("failed to insert role: %w", err)
			}
		}
		return nil
	})
}

// GetByID returns a user with roles.
func (r *UserRepository) GetByID(ctx context.Context, id shared.UserID) (*user.User, error) {
	var (
		u     user.User
		uid   string
		roles []string
	)
	err := r.conn.QueryRow(ctx, `
		SELECT u.id, u.username, u.email, u.created_at,
		       COALESCE(array_agg(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles r ON r.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.id
	`, string(id)).Scan(&uid, &u.Username, &u.Email, &u.CreatedAt, &roles)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.ID = shared.UserID(uid)
	u.Roles = make([]shared.Role, 0, len(roles))
	for _, role := range roles {
		u.Roles = append(u.Roles, shared.Role(role))
	}
	return &u, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING PATH REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LearningPathRepository implements learningpath.Repository.
type LearningPathRepository struct {
	conn *Connection
}

// NewLearningPathRepository creates a new LearningPathRepository.
func NewLearningPathRepository(conn *Connection) *LearningPathRepository {
	return &LearningPathRepository{conn: conn}
}

// Create inserts a learning path.
func (r *LearningPathRepository) Create(ctx context.Context, lp *learningpath.LearningPath) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO learning_paths (id, title, description, difficulty, creator_id, course_path_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, lp.ID, lp.Title, lp.Description, string(lp.Difficulty), string(lp.CreatorID), lp.CoursePathIDs, lp.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("learningpath", "Create", shared.ErrAlreadyExists, "learning path already exists", err)
		}
		return fmt.Errorf("failed to create learning path: %w", err)
	}
	return nil
}

// GetByID returns a learning path.
func (r *LearningPathRepository) GetByID(ctx context.Context, id string) (*learningpath.LearningPath, error) {
	var (
		lp                    learningpath.LearningPath
		difficulty, creatorID string
		createdAt             time.Time
	)
	err := r.conn.QueryRow(ctx, `
		SELECT id, title, description, difficulty, creator_id, course_path_ids, created_at
		FROM learning_paths WHERE id = $1
	`, id).Scan(&lp.ID, &lp.Title, &lp.Description, &difficulty, &creatorID, &lp.CoursePathIDs, &createdAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLearningPathNotFound
		}
		return nil, fmt.Errorf("failed to get learning path: %w", err)
	}
	lp.Difficulty = shared.Difficulty(difficulty)
	lp.CreatorID = shared.UserID(creatorID)
	lp.CreatedAt = createdAt
	return &lp, nil
}

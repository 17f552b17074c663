// Package learningpath models curated sequences of course paths.
package learningpath

import (
	"context"
	"strings"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

const MaxTitleLength = 200

// LearningPath is an ordered list of existing course paths.
type LearningPath struct {
	ID            string
	Title         string
	Description   string
	Difficulty    shared.Difficulty
	CreatorID     shared.UserID
	CoursePathIDs []string
	CreatedAt     time.Time
}

// NewParams are the inputs for New.
type NewParams struct {
	ID            string
	Title         string
	Description   string
	Difficulty    shared.Difficulty
	CreatorID     shared.UserID
	CoursePathIDs []string
	Now           time.Time
}

// New validates shape only; referenced course paths are checked by the caller.
func New(p NewParams) (*LearningPath, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" || len([]rune(title)) > MaxTitleLength {
		return nil, shared.NewValidationError("learningpath", "New", "title", "title must be 1-200 characters")
	}
	if !p.Difficulty.IsValid() {
		return nil, shared.NewValidationError("learningpath", "New", "difficulty", "unsupported difficulty")
	}
	if len(p.CoursePathIDs) == 0 {
		return nil, shared.NewValidationError("learningpath", "New", "coursePathIds", "at least one course path is required")
	}
	seen := make(map[string]bool, len(p.CoursePathIDs))
	for _, id := range p.CoursePathIDs {
		if id == "" || seen[id] {
			return nil, shared.NewValidationError("learningpath", "New", "coursePathIds", "course path ids must be unique and non-empty")
		}
		seen[id] = true
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &LearningPath{
		ID:            p.ID,
		Title:         title,
		Description:   strings.TrimSpace(p.Description),
		Difficulty:    p.Difficulty,
		CreatorID:     p.CreatorID,
		CoursePathIDs: append([]string(nil), p.CoursePathIDs...),
		CreatedAt:     now,
	}, nil
}

// Repository persists learning paths.
type Repository interface {
	Create(ctx context.Context, lp *LearningPath) error
	GetByID(ctx context.Context, id string) (*LearningPath, error)
}

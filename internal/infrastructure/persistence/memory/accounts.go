package memory

import (
	"context"
	"strings"

	"github.com/skillmate/skillmate-core/internal/domain/learningpath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/domain/user"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[u.ID]; ok {
		return shared.NewDomainError("user", "Create", shared.ErrAlreadyExists, "user already exists")
	}
	for _, other := range r.s.users {
		if strings.EqualFold(other.Username, u.Username) {
			return shared.ErrUsernameTaken
		}
		if other.Email == u.Email {
			return shared.ErrEmailTaken
		}
	}
	c := *u
	c.Roles = append([]shared.Role(nil), u.Roles...)
	r.s.users[u.ID] = &c
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id shared.UserID) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	c := *u
	c.Roles = append([]shared.Role(nil), u.Roles...)
	return &c, nil
}

type learningPathRepo struct{ s *Store }

func (r *learningPathRepo) Create(ctx context.Context, lp *learningpath.LearningPath) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.learning[lp.ID]; ok {
		return shared.NewDomainError("learningpath", "Create", shared.ErrAlreadyExists, "learning path already exists")
	}
	c := *lp
	c.CoursePathIDs = append([]string(nil), lp.CoursePathIDs...)
	r.s.learning[lp.ID] = &c
	return nil
}

func (r *learningPathRepo) GetByID(ctx context.Context, id string) (*learningpath.LearningPath, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	lp, ok := r.s.learning[id]
	if !ok {
		return nil, shared.ErrLearningPathNotFound
	}
	c := *lp
	c.CoursePathIDs = append([]string(nil), lp.CoursePathIDs...)
	return &c, nil
}
